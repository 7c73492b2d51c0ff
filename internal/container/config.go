// Package container provides dependency injection and lifecycle management
// for the invoice matching service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Lock configuration
	Lock LockConfig

	// Report configuration
	Report ReportConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// LockConfig holds per-match lock settings.
type LockConfig struct {
	// Backend is "memory" or "redis"
	Backend string

	// Timeout bounds how long a mutation waits for its match lock
	Timeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL is how long a redis lock survives a crashed holder
	TTL time.Duration

	Prefix string
}

// ReportConfig holds snapshot worker settings.
type ReportConfig struct {
	OutputDir  string
	Interval   time.Duration
	Facilities []string
	Retain     int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/invoice_matching.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lock: LockConfig{
			Backend: "memory",
			Timeout: 10 * time.Second,
			TTL:     30 * time.Second,
		},
		Report: ReportConfig{
			OutputDir: "reports",
			Interval:  24 * time.Hour,
			Retain:    30,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}

	if c.Report.Interval > 0 && c.Report.OutputDir == "" {
		return fmt.Errorf("report.output_dir is required")
	}

	return nil
}
