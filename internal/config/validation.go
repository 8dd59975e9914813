package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/storefront/internal/logging"
)

var environments = map[string]bool{"development": true, "staging": true, "production": true}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := validateServerConfig(&c.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateStorageConfig(&c.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := validateDirectoryConfig(&c.Directory); err != nil {
		return fmt.Errorf("directory config: %w", err)
	}
	if err := validateCacheConfig(&c.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if c.Development.Debounce < 0 {
		return fmt.Errorf("development config: debounce must not be negative")
	}
	if err := validateLogConfig(&c.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	// 0 lets the system pick a port.
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", cfg.Port)
	}
	if strings.ContainsAny(cfg.Host, ";&|$`()<>\"'\\ ") {
		return fmt.Errorf("host %q contains invalid characters", cfg.Host)
	}
	if !environments[cfg.Environment] {
		return fmt.Errorf("unknown environment %q", cfg.Environment)
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if cfg.Environment == "production" && cfg.AdminToken == "" {
		return fmt.Errorf("admin_token is required in production")
	}
	return nil
}

func validateStorageConfig(cfg *StorageConfig) error {
	if err := validatePath(cfg.Root); err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if strings.Contains(cfg.Prefix, "..") {
		return fmt.Errorf("prefix contains traversal: %s", cfg.Prefix)
	}
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream_timeout must be positive")
	}
	return nil
}

func validateDirectoryConfig(cfg *DirectoryConfig) error {
	switch cfg.Driver {
	case DriverMemory:
		if cfg.Seed != "" {
			return validatePath(cfg.Seed)
		}
		return nil
	case DriverSQLite:
		if cfg.DSN == "" {
			return fmt.Errorf("dsn is required for the sqlite driver")
		}
		return nil
	default:
		return fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

func validateCacheConfig(cfg *CacheConfig) error {
	if cfg.MaxBytes <= 0 {
		return fmt.Errorf("max_bytes must be positive")
	}
	for name, d := range map[string]time.Duration{
		"domain_ttl":       cfg.DomainTTL,
		"template_ttl":     cfg.TemplateTTL,
		"janitor_interval": cfg.JanitorInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	for pageType, ttl := range cfg.PageTTLs {
		if ttl < 0 {
			return fmt.Errorf("page_ttls.%s must not be negative", pageType)
		}
	}
	return nil
}

func validateLogConfig(cfg *LogConfig) error {
	if _, err := logging.ParseLevel(cfg.Level); err != nil {
		return err
	}
	if cfg.Format != "text" && cfg.Format != "json" {
		return fmt.Errorf("unknown format %q", cfg.Format)
	}
	return nil
}

// validatePath rejects empty paths and paths with shell metacharacters.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	clean := filepath.Clean(path)
	if strings.ContainsAny(clean, ";&|$`<>\"'\x00") {
		return fmt.Errorf("path contains invalid characters: %s", path)
	}
	return nil
}
