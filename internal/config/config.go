// Package config provides configuration management for the review agent.
// Configuration is read from an optional TOML file and then overridden by
// environment variables, with sensible defaults for everything.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort           = 8788
	DefaultLogLevel       = "info"
	DefaultDataDir        = ".heimdex-review"
	DefaultRedisChannel   = "review:tag-created"
	DefaultNotifyDebounce = 250 * time.Millisecond
	DefaultFrameRate      = 30.0
	DefaultFFprobe        = "ffprobe"

	// Environment variable names
	EnvPort           = "REVIEW_PORT"
	EnvLogLevel       = "REVIEW_LOG_LEVEL"
	EnvDataDir        = "REVIEW_DATA_DIR"
	EnvExportDir      = "REVIEW_EXPORT_DIR"
	EnvHeadless       = "REVIEW_HEADLESS"
	EnvRedisURL       = "REVIEW_REDIS_URL"
	EnvRedisChannel   = "REVIEW_REDIS_CHANNEL"
	EnvNotifyDebounce = "REVIEW_NOTIFY_DEBOUNCE_MS"
	EnvFFprobe        = "REVIEW_FFPROBE"
	EnvFrameRate      = "REVIEW_FRAME_RATE"

	// Database filename
	DBFilename = "review.db"

	// ConfigFilename is looked up inside the data directory when no explicit
	// path is given.
	ConfigFilename = "config.toml"

	// LockFilename guards against two agents sharing one data directory.
	LockFilename = "reviewd.lock"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LockPath() string
	ExportDir() string
	Headless() bool
	RedisURL() string
	RedisChannel() string
	NotifyDebounce() time.Duration
	FFprobePath() string
	FrameRate() float64
}

// fileConfig mirrors the TOML layout of config.toml.
type fileConfig struct {
	Server struct {
		Port     int    `toml:"port"`
		LogLevel string `toml:"log_level"`
		Headless bool   `toml:"headless"`
	} `toml:"server"`
	Paths struct {
		DataDir   string `toml:"data_dir"`
		ExportDir string `toml:"export_dir"`
		FFprobe   string `toml:"ffprobe"`
	} `toml:"paths"`
	Notify struct {
		RedisURL     string `toml:"redis_url"`
		RedisChannel string `toml:"redis_channel"`
		DebounceMs   int    `toml:"debounce_ms"`
	} `toml:"notify"`
	Export struct {
		FrameRate float64 `toml:"frame_rate"`
	} `toml:"export"`
}

// EnvConfig holds the resolved configuration. The name is kept from the days
// when only environment variables were consulted; file values are applied
// first and environment variables still win.
type EnvConfig struct {
	port           int
	logLevel       string
	dataDir        string
	exportDir      string
	headless       bool
	redisURL       string
	redisChannel   string
	notifyDebounce time.Duration
	ffprobePath    string
	frameRate      float64

	sourcePath string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	return Load("")
}

// Load reads the TOML file at path (or <data_dir>/config.toml when path is
// empty), then applies environment overrides. A missing file is not an error.
func Load(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		redisChannel:   DefaultRedisChannel,
		notifyDebounce: DefaultNotifyDebounce,
		ffprobePath:    DefaultFFprobe,
		frameRate:      DefaultFrameRate,
	}

	// The data dir decides where the default config file lives.
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}
	if path == "" {
		path = filepath.Join(cfg.dataDir, ConfigFilename)
	}
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.exportDir == "" {
		cfg.exportDir = filepath.Join(cfg.dataDir, "exports")
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.sourcePath = path

	if fc.Server.Port != 0 {
		if err := validatePort(fc.Server.Port); err != nil {
			return fmt.Errorf("invalid server.port: %w", err)
		}
		c.port = fc.Server.Port
	}
	if fc.Server.LogLevel != "" {
		c.logLevel = fc.Server.LogLevel
	}
	c.headless = fc.Server.Headless
	if fc.Paths.DataDir != "" {
		c.dataDir = fc.Paths.DataDir
	}
	if fc.Paths.ExportDir != "" {
		c.exportDir = fc.Paths.ExportDir
	}
	if fc.Paths.FFprobe != "" {
		c.ffprobePath = fc.Paths.FFprobe
	}
	if fc.Notify.RedisURL != "" {
		c.redisURL = fc.Notify.RedisURL
	}
	if fc.Notify.RedisChannel != "" {
		c.redisChannel = fc.Notify.RedisChannel
	}
	if fc.Notify.DebounceMs > 0 {
		c.notifyDebounce = time.Duration(fc.Notify.DebounceMs) * time.Millisecond
	}
	if fc.Export.FrameRate > 0 {
		c.frameRate = fc.Export.FrameRate
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validatePort(port); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if ed := os.Getenv(EnvExportDir); ed != "" {
		c.exportDir = ed
	}
	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = headless
	}
	if u := os.Getenv(EnvRedisURL); u != "" {
		c.redisURL = u
	}
	if ch := os.Getenv(EnvRedisChannel); ch != "" {
		c.redisChannel = ch
	}
	if d := os.Getenv(EnvNotifyDebounce); d != "" {
		ms, err := strconv.Atoi(d)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid %s: must be a non-negative integer", EnvNotifyDebounce)
		}
		c.notifyDebounce = time.Duration(ms) * time.Millisecond
	}
	if fp := os.Getenv(EnvFFprobe); fp != "" {
		c.ffprobePath = fp
	}
	if fr := os.Getenv(EnvFrameRate); fr != "" {
		rate, err := strconv.ParseFloat(strings.TrimSpace(fr), 64)
		if err != nil || rate <= 0 {
			return fmt.Errorf("invalid %s: must be a positive number", EnvFrameRate)
		}
		c.frameRate = rate
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the single-instance lock file path
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// ExportDir returns the directory export batches are written to
func (c *EnvConfig) ExportDir() string {
	return c.exportDir
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

// RedisURL returns the redis URL for tag-created notifications; empty disables it.
func (c *EnvConfig) RedisURL() string {
	return c.redisURL
}

func (c *EnvConfig) RedisChannel() string {
	return c.redisChannel
}

func (c *EnvConfig) NotifyDebounce() time.Duration {
	return c.notifyDebounce
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// FrameRate is the fallback frame rate when a recording cannot be probed.
func (c *EnvConfig) FrameRate() float64 {
	return c.frameRate
}

// SourcePath returns the config file that was applied, or "" if none existed.
func (c *EnvConfig) SourcePath() string {
	return c.sourcePath
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
