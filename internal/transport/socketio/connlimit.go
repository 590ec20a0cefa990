package socketio

import (
	"net"
	"strings"
	"sync"
)

// ConnectionLimiter bounds concurrent UI connections from other machines.
// Loopback clients are never limited. When an external client pushes the
// count over the limit, the oldest external client is evicted.
type ConnectionLimiter struct {
	mu          sync.Mutex
	maxExternal int
	external    []string          // external client IDs, oldest first
	connections map[string]string // clientID -> remote address
}

// NewConnectionLimiter creates a limiter that allows up to maxExternal
// concurrent non-loopback connections.
func NewConnectionLimiter(maxExternal int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxExternal: maxExternal,
		connections: make(map[string]string),
	}
}

// TryAdd registers a connection and returns the ID of the client it evicts,
// or "" when nobody has to go.
func (cl *ConnectionLimiter) TryAdd(clientID, remoteAddr string) (evictedID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.connections[clientID]; exists {
		return ""
	}
	cl.connections[clientID] = remoteAddr

	if isLoopback(remoteAddr) {
		return ""
	}

	cl.external = append(cl.external, clientID)
	if len(cl.external) <= cl.maxExternal {
		return ""
	}

	evictedID = cl.external[0]
	cl.external = cl.external[1:]
	delete(cl.connections, evictedID)
	return evictedID
}

// Remove unregisters a connection when a client disconnects.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	addr, exists := cl.connections[clientID]
	if !exists {
		return
	}
	delete(cl.connections, clientID)

	if isLoopback(addr) {
		return
	}
	for i, id := range cl.external {
		if id == clientID {
			cl.external = append(cl.external[:i], cl.external[i+1:]...)
			break
		}
	}
}

// Len returns the tracked connection count and how many are external.
func (cl *ConnectionLimiter) Len() (total, external int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.connections), len(cl.external)
}

// isLoopback accepts bare IPs, host:port pairs and IPv4-mapped IPv6.
func isLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
