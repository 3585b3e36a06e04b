package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig leaves the balance cache disabled when Enabled is false.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
	CacheTTL time.Duration
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type LedgerConfig struct {
	Store       string
	LockTimeout time.Duration
	Currencies  []string
	// MinorUnits is the number of decimal places used to render amounts.
	MinorUnits int32
	SeedFile   string
}

type LogConfig struct {
	Level       string
	Development bool
}

var envBindings = map[string]string{
	"server.port":             "SERVER_PORT",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":     "SERVER_IDLE_TIMEOUT",
	"server.request_timeout":  "SERVER_REQUEST_TIMEOUT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
	"server.allowed_origins":  "SERVER_ALLOWED_ORIGINS",

	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",

	"redis.enabled":   "REDIS_ENABLED",
	"redis.host":      "REDIS_HOST",
	"redis.port":      "REDIS_PORT",
	"redis.password":  "REDIS_PASSWORD",
	"redis.db":        "REDIS_DB",
	"redis.prefix":    "REDIS_PREFIX",
	"redis.cache_ttl": "REDIS_CACHE_TTL",

	"ledger.store":        "LEDGER_STORE",
	"ledger.lock_timeout": "LEDGER_LOCK_TIMEOUT",
	"ledger.currencies":   "LEDGER_CURRENCIES",
	"ledger.minor_units":  "LEDGER_MINOR_UNITS",
	"ledger.seed_file":    "LEDGER_SEED_FILE",

	"log.level":       "LOG_LEVEL",
	"log.development": "LOG_DEVELOPMENT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"https://*", "http://*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "ledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Minute*5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ledger")
	v.SetDefault("redis.cache_ttl", 5*time.Minute)

	v.SetDefault("ledger.store", StorePostgres)
	v.SetDefault("ledger.lock_timeout", 2*time.Second)
	v.SetDefault("ledger.currencies", []string{"USD"})
	v.SetDefault("ledger.minor_units", 2)
	v.SetDefault("ledger.seed_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration from path, if given, with environment variables
// taking precedence. A missing file at path is an error; an empty path means
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  list(v, "server.allowed_origins"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
			CacheTTL: v.GetDuration("redis.cache_ttl"),
		},
		Ledger: LedgerConfig{
			Store:       strings.ToLower(v.GetString("ledger.store")),
			LockTimeout: v.GetDuration("ledger.lock_timeout"),
			Currencies:  list(v, "ledger.currencies"),
			MinorUnits:  v.GetInt32("ledger.minor_units"),
			SeedFile:    v.GetString("ledger.seed_file"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// list accepts both YAML sequences and comma separated environment values.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Store {
	case StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("ledger.store must be %q or %q, got %q", StorePostgres, StoreMemory, c.Ledger.Store))
	}
	if c.Ledger.LockTimeout < time.Millisecond {
		errs = append(errs, errors.New("ledger.lock_timeout must be at least 1ms"))
	}
	if len(c.Ledger.Currencies) == 0 {
		errs = append(errs, errors.New("ledger.currencies must not be empty"))
	}
	if c.Ledger.MinorUnits < 0 || c.Ledger.MinorUnits > 18 {
		errs = append(errs, errors.New("ledger.minor_units must be between 0 and 18"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	return errors.Join(errs...)
}
