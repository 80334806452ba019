// Package config loads runtime settings for the migrate CLI and the tenant
// gateway: defaults, then an optional TOML file, then environment variables,
// then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigFile names the TOML file to load when -config is not given.
const EnvConfigFile = "FITOS_CONFIG"

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	MinIO     MinIOConfig     `toml:"minio"`
	Migration MigrationConfig `toml:"migration"`
	Resolver  ResolverConfig  `toml:"resolver"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
}

type DatabaseConfig struct {
	URL             string        `toml:"url"`
	MaxConns        int32         `toml:"max_conns"`
	MinConns        int32         `toml:"min_conns"`
	MaxConnLifetime time.Duration `toml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `toml:"max_conn_idle_time"`
}

// RedisConfig is optional. An empty Addr disables the invalidation bus.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

// MinIOConfig is optional. An empty Bucket disables report archiving.
type MinIOConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
}

type MigrationConfig struct {
	Workers      int      `toml:"workers"`
	BatchSize    int      `toml:"batch_size"`
	RowPolicy    string   `toml:"row_policy"`
	LegacySchema string   `toml:"legacy_schema"`
	Tenants      []string `toml:"tenants"`
	ValidateOnly bool     `toml:"validate_only"`
	JSON         bool     `toml:"json"`
}

type ResolverConfig struct {
	BaseDomain   string        `toml:"base_domain"`
	TTL          time.Duration `toml:"ttl"`
	RefreshAfter time.Duration `toml:"refresh_after"`
	NegativeTTL  time.Duration `toml:"negative_ttl"`
	WarmInterval time.Duration `toml:"warm_interval"`
	MaxEntries   int           `toml:"max_entries"`
}

type ServerConfig struct {
	Port       int    `toml:"port"`
	AdminToken string `toml:"admin_token"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Defaults returns development defaults. DATABASE_URL has none.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "fitos:tenant:invalidate",
		},
		MinIO: MinIOConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
		},
		Migration: MigrationConfig{
			Workers:      4,
			BatchSize:    500,
			RowPolicy:    "skip",
			LegacySchema: "public",
		},
		Resolver: ResolverConfig{
			TTL:          5 * time.Minute,
			RefreshAfter: 4 * time.Minute,
			NegativeTTL:  30 * time.Second,
			WarmInterval: 2 * time.Minute,
			MaxEntries:   10000,
		},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// LoadFile overlays the TOML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConns = int32(getInt("DATABASE_MAX_CONNS", int(cfg.Database.MaxConns)))
	cfg.Database.MinConns = int32(getInt("DATABASE_MIN_CONNS", int(cfg.Database.MinConns)))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Channel = getEnv("REDIS_INVALIDATION_CHANNEL", cfg.Redis.Channel)

	cfg.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", cfg.MinIO.Endpoint)
	cfg.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.MinIO.AccessKey)
	cfg.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.MinIO.SecretKey)
	cfg.MinIO.UseSSL = getBool("MINIO_USE_SSL", cfg.MinIO.UseSSL)
	cfg.MinIO.Bucket = getEnv("MINIO_BUCKET", cfg.MinIO.Bucket)

	cfg.Migration.Workers = getInt("MIGRATION_WORKERS", cfg.Migration.Workers)
	cfg.Migration.BatchSize = getInt("MIGRATION_BATCH_SIZE", cfg.Migration.BatchSize)
	cfg.Migration.RowPolicy = getEnv("MIGRATION_ROW_POLICY", cfg.Migration.RowPolicy)
	cfg.Migration.LegacySchema = getEnv("LEGACY_SCHEMA", cfg.Migration.LegacySchema)
	cfg.Migration.Tenants = getList("MIGRATION_TENANTS", cfg.Migration.Tenants)

	cfg.Resolver.BaseDomain = getEnv("TENANT_BASE_DOMAIN", cfg.Resolver.BaseDomain)
	cfg.Resolver.TTL = getDuration("TENANT_CACHE_TTL", cfg.Resolver.TTL)
	cfg.Resolver.RefreshAfter = getDuration("TENANT_CACHE_REFRESH_AFTER", cfg.Resolver.RefreshAfter)
	cfg.Resolver.NegativeTTL = getDuration("TENANT_CACHE_NEGATIVE_TTL", cfg.Resolver.NegativeTTL)
	cfg.Resolver.WarmInterval = getDuration("TENANT_CACHE_WARM_INTERVAL", cfg.Resolver.WarmInterval)
	cfg.Resolver.MaxEntries = getInt("TENANT_CACHE_MAX_ENTRIES", cfg.Resolver.MaxEntries)

	cfg.Server.Port = getInt("PORT", cfg.Server.Port)
	cfg.Server.AdminToken = getEnv("ADMIN_TOKEN", cfg.Server.AdminToken)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// Load builds a Config for the named command. bind registers the command's
// own flags against cfg; they are parsed last and win over every other source.
func Load(name string, args []string, bind func(fs *flag.FlagSet, cfg *Config)) (*Config, error) {
	cfg := Defaults()

	path := configPath(args)
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	ApplyEnv(&cfg)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", path, "path to a TOML config file")
	fs.StringVar(&cfg.Database.URL, "database-url", cfg.Database.URL, "PostgreSQL connection string")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format (json, console)")
	if bind != nil {
		bind(fs, &cfg)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Database.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("database max conns must be positive, got %d", c.Database.MaxConns))
	}
	if c.Migration.Workers < 1 {
		errs = append(errs, fmt.Errorf("migration workers must be positive, got %d", c.Migration.Workers))
	}
	if c.Migration.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("migration batch size must be positive, got %d", c.Migration.BatchSize))
	}
	switch c.Migration.RowPolicy {
	case "skip", "abort":
	default:
		errs = append(errs, fmt.Errorf("migration row policy must be skip or abort, got %q", c.Migration.RowPolicy))
	}
	if c.Migration.LegacySchema == "" {
		errs = append(errs, errors.New("legacy schema is required"))
	}
	if c.Resolver.TTL <= 0 {
		errs = append(errs, fmt.Errorf("resolver ttl must be positive, got %s", c.Resolver.TTL))
	}
	if c.Resolver.RefreshAfter <= 0 || c.Resolver.RefreshAfter > c.Resolver.TTL {
		errs = append(errs, fmt.Errorf("resolver refresh-after must be in (0, ttl], got %s", c.Resolver.RefreshAfter))
	}
	return errors.Join(errs...)
}

// configPath finds -config before the full flag set exists, since the file
// has to be applied before flags are bound.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		a := strings.TrimLeft(args[i], "-")
		if len(a) == len(args[i]) {
			continue
		}
		if a == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "config="); ok {
			return v
		}
	}
	return ""
}
