// Package config loads SongLoader settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xyonico/BeatSaberSongLoader/internal/domain/song"
	"github.com/xyonico/BeatSaberSongLoader/internal/infra/archive"
)

// Config covers process level configuration.
type Config struct {
	SongsDir          string   `yaml:"songs_dir"`
	CacheDirName      string   `yaml:"cache_dir_name"`
	ArchiveExtensions []string `yaml:"archive_extensions"`
	IndexPath         string   `yaml:"index_path"`
	ThumbnailDir      string   `yaml:"thumbnail_dir"`

	Log      LogConfig     `yaml:"log"`
	HTTP     HTTPConfig    `yaml:"http"`
	Identity song.IDPolicy `yaml:"identity"`
	Loader   LoaderConfig  `yaml:"loader"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// LoaderConfig controls how accepted songs are drained on the primary
// context. DrainBatch 0 drains everything queued per tick.
type LoaderConfig struct {
	DrainInterval    time.Duration `yaml:"drain_interval"`
	DrainBatch       int           `yaml:"drain_batch"`
	ProgressDebounce time.Duration `yaml:"progress_debounce"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SongsDir:          "./CustomSongs",
		CacheDirName:      archive.DefaultCacheDirName,
		ArchiveExtensions: append([]string(nil), archive.DefaultExtensions...),
		IndexPath:         "data/songs.db",
		ThumbnailDir:      "data/thumbs",
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 3001,
		},
		Identity: song.DefaultIDPolicy,
		Loader: LoaderConfig{
			DrainInterval:    16 * time.Millisecond,
			ProgressDebounce: 100 * time.Millisecond,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path over the defaults, then applies SONGLOADER_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.SongsDir = getEnvAny([]string{"SONGLOADER_SONGS_DIR", "SONGLOADER_ROOT"}, c.SongsDir)
	c.CacheDirName = getEnv("SONGLOADER_CACHE_DIR_NAME", c.CacheDirName)
	if exts := getEnv("SONGLOADER_ARCHIVE_EXTENSIONS", ""); exts != "" {
		c.ArchiveExtensions = splitList(exts)
	}
	c.IndexPath = getEnvAny([]string{"SONGLOADER_INDEX_PATH", "SONGLOADER_DB_PATH"}, c.IndexPath)
	c.ThumbnailDir = getEnv("SONGLOADER_THUMBNAIL_DIR", c.ThumbnailDir)

	c.Log.Level = getEnv("SONGLOADER_LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvBoolAny([]string{"SONGLOADER_LOG_PRETTY"}, c.Log.Pretty)

	c.HTTP.Bind = getEnvAny([]string{"SONGLOADER_HTTP_BIND", "SONGLOADER_BIND"}, c.HTTP.Bind)
	c.HTTP.Port = getEnvIntAny([]string{"SONGLOADER_HTTP_PORT", "SONGLOADER_PORT"}, c.HTTP.Port)

	c.Identity.IncludeAuthor = getEnvBoolAny([]string{"SONGLOADER_ID_INCLUDE_AUTHOR"}, c.Identity.IncludeAuthor)

	c.Loader.DrainInterval = getEnvDuration("SONGLOADER_DRAIN_INTERVAL", c.Loader.DrainInterval)
	c.Loader.DrainBatch = getEnvIntAny([]string{"SONGLOADER_DRAIN_BATCH"}, c.Loader.DrainBatch)
	c.Loader.ProgressDebounce = getEnvDuration("SONGLOADER_PROGRESS_DEBOUNCE", c.Loader.ProgressDebounce)

	c.Metrics.Enabled = getEnvBoolAny([]string{"SONGLOADER_METRICS_ENABLED"}, c.Metrics.Enabled)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.SongsDir) == "" {
		errs = append(errs, errors.New("songs_dir is required"))
	}
	if c.CacheDirName == "" || strings.ContainsAny(c.CacheDirName, `/\`) {
		errs = append(errs, fmt.Errorf("cache_dir_name %q must be a plain folder name", c.CacheDirName))
	}
	if len(c.ArchiveExtensions) == 0 {
		errs = append(errs, errors.New("archive_extensions must not be empty"))
	}
	for i, ext := range c.ArchiveExtensions {
		if !strings.HasPrefix(ext, ".") {
			c.ArchiveExtensions[i] = "." + ext
		}
	}
	if c.IndexPath == "" {
		errs = append(errs, errors.New("index_path is required"))
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Loader.DrainInterval <= 0 {
		errs = append(errs, errors.New("loader.drain_interval must be positive"))
	}
	if c.Loader.DrainBatch < 0 {
		errs = append(errs, errors.New("loader.drain_batch must not be negative"))
	}
	if c.Loader.ProgressDebounce < 0 {
		errs = append(errs, errors.New("loader.progress_debounce must not be negative"))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Bind, c.HTTP.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
