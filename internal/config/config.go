// Package config loads storefront configuration with Viper from a YAML
// file, STOREFRONT_ environment variables and command-line flags.
//
// Precedence, highest first: flags bound with viper.BindPFlag, environment
// variables (STOREFRONT_SERVER_PORT, STOREFRONT_CACHE_MAX_BYTES, ...), the
// config file (.storefront.yml or STOREFRONT_CONFIG_FILE), defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "STOREFRONT"

// Directory drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Development DevelopmentConfig `mapstructure:"development"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AdminToken     string        `mapstructure:"admin_token"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// StorageConfig locates theme files. Keys are <prefix>/<storeID>/<file>
// below Root.
type StorageConfig struct {
	Root            string        `mapstructure:"root"`
	Prefix          string        `mapstructure:"prefix"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
}

// DirectoryConfig selects where stores and catalog data come from.
type DirectoryConfig struct {
	Driver string `mapstructure:"driver"`
	Seed   string `mapstructure:"seed"`
	DSN    string `mapstructure:"dsn"`
}

type PlatformConfig struct {
	ReservedDomains []string `mapstructure:"reserved_domains"`
}

type CacheConfig struct {
	MaxBytes        int64                    `mapstructure:"max_bytes"`
	DomainTTL       time.Duration            `mapstructure:"domain_ttl"`
	TemplateTTL     time.Duration            `mapstructure:"template_ttl"`
	PageTTLs        map[string]time.Duration `mapstructure:"page_ttls"`
	JanitorInterval time.Duration            `mapstructure:"janitor_interval"`
}

type DevelopmentConfig struct {
	HotReload    bool          `mapstructure:"hot_reload"`
	DisableCache bool          `mapstructure:"disable_cache"`
	Debounce     time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key with its default. Environment variables
// only reach Unmarshal for keys Viper knows about.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("storage.root", "./themes")
	v.SetDefault("storage.prefix", "templates")
	v.SetDefault("storage.upstream_timeout", 10*time.Second)

	v.SetDefault("directory.driver", DriverMemory)
	v.SetDefault("directory.seed", "")
	v.SetDefault("directory.dsn", "")

	v.SetDefault("platform.reserved_domains", []string{})

	v.SetDefault("cache.max_bytes", int64(256<<20))
	v.SetDefault("cache.domain_ttl", 30*time.Minute)
	v.SetDefault("cache.template_ttl", time.Hour)
	v.SetDefault("cache.page_ttls", map[string]time.Duration{})
	v.SetDefault("cache.janitor_interval", time.Minute)

	v.SetDefault("development.hot_reload", false)
	v.SetDefault("development.disable_cache", false)
	v.SetDefault("development.debounce", 200*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// BindEnv enables STOREFRONT_<SECTION>_<KEY> overrides.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v, applying defaults for unset keys.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// normalize lowercases enumerations and drops blank list entries.
func (c *Config) normalize() {
	c.Server.Environment = strings.ToLower(strings.TrimSpace(c.Server.Environment))
	c.Directory.Driver = strings.ToLower(strings.TrimSpace(c.Directory.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Platform.ReservedDomains = compact(c.Platform.ReservedDomains)
	c.Server.AllowedOrigins = compact(c.Server.AllowedOrigins)
	c.Storage.Prefix = strings.Trim(c.Storage.Prefix, "/")
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}
