package catalog

import "sync"

// Resettable is an expensive host object that can be cleared and reused.
type Resettable interface {
	Reset()
}

// Pool recycles Resettable instances. It grows to the peak number of
// instances in use and never shrinks.
type Pool[T Resettable] struct {
	mu      sync.Mutex
	newFn   func() T
	free    []T
	created []T
}

// NewPool creates a pool that builds new instances with newFn.
func NewPool[T Resettable](newFn func() T) *Pool[T] {
	return &Pool[T]{newFn: newFn}
}

// Acquire returns a pooled instance, constructing one only if none is free.
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free = p.free[:n-1]
		return v
	}

	v := p.newFn()
	p.created = append(p.created, v)
	return v
}

// Release resets v and returns it to the pool.
func (p *Pool[T]) Release(v T) {
	v.Reset()
	p.mu.Lock()
	p.free = append(p.free, v)
	p.mu.Unlock()
}

// ReleaseAll resets every instance the pool has created and makes all of them
// available again.
func (p *Pool[T]) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, v := range p.created {
		v.Reset()
	}
	p.free = append(p.free[:0], p.created...)
}

// Free returns the number of idle instances.
func (p *Pool[T]) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Created returns the number of instances ever constructed.
func (p *Pool[T]) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created)
}
