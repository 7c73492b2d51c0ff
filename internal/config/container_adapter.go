package config

import (
	"github.com/garyjia/invoice-matching/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Lock: container.LockConfig{
			Backend:       c.Lock.Backend,
			Timeout:       c.Lock.Timeout,
			RedisAddr:     c.Lock.RedisAddr,
			RedisPassword: c.Lock.RedisPassword,
			RedisDB:       c.Lock.RedisDB,
			TTL:           c.Lock.TTL,
			Prefix:        c.Lock.Prefix,
		},
		Report: container.ReportConfig{
			OutputDir:  c.Report.OutputDir,
			Interval:   c.Report.Interval,
			Facilities: append([]string(nil), c.Report.Facilities...),
			Retain:     c.Report.Retain,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
