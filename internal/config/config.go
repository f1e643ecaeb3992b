package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Mongo     MongoConfig
	Auth      AuthConfig
	Policy    PolicyConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	CORSOrigins     []string
}

type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	URL         string
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
	LockTimeout time.Duration
	AutoMigrate bool
}

// DSN returns URL when set, otherwise a postgres URL built from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

type NATSConfig struct {
	URL    string
	Stream string
}

// Enabled reports whether notifications are published.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
	Bucket   string
}

func (m MongoConfig) Enabled() bool { return m.URI != "" }

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type PolicyConfig struct {
	File string
}

// Load reads an optional .env file (or ENV_FILE) and then the process
// environment.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	e := &env{}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        e.str("SERVICE_NAME", "ojt-placements"),
			Version:     e.str("SERVICE_VERSION", "dev"),
			Environment: e.str("ENVIRONMENT", "development"),
			LogLevel:    e.str("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            e.int("HTTP_PORT", 8080),
			GRPCPort:        e.int("GRPC_PORT", 9090),
			ReadTimeout:     e.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    e.duration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     e.duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  e.duration("REQUEST_TIMEOUT", 30*time.Second),
			CORSOrigins:     e.list("CORS_ORIGINS", []string{"*"}),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(e.str("STORE_DRIVER", DriverPostgres)),
		},
		Database: DatabaseConfig{
			URL:         e.str("DATABASE_URL", ""),
			Host:        e.str("DB_HOST", "localhost"),
			Port:        e.int("DB_PORT", 5432),
			User:        e.str("DB_USER", "postgres"),
			Password:    e.str("DB_PASSWORD", ""),
			Database:    e.str("DB_NAME", "ojt_placements"),
			SSLMode:     e.str("DB_SSLMODE", "disable"),
			MaxConns:    int32(e.int("DB_MAX_CONNS", 10)),
			MinConns:    int32(e.int("DB_MIN_CONNS", 2)),
			MaxConnTime: e.duration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: e.duration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
			HealthCheck: e.duration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			LockTimeout: e.duration("LOCK_TIMEOUT", 3*time.Second),
			AutoMigrate: e.bool("DB_AUTO_MIGRATE", true),
		},
		NATS: NATSConfig{
			URL:    e.str("NATS_URL", ""),
			Stream: e.str("NATS_STREAM", "NOTIFICATIONS"),
		},
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", ""),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Limit:  e.int("RATE_LIMIT", 60),
			Window: e.duration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Mongo: MongoConfig{
			URI:      e.str("MONGO_URI", ""),
			Database: e.str("MONGO_DB_NAME", "ojt_documents"),
			Bucket:   e.str("MONGO_BUCKET", "requirements"),
		},
		Auth: AuthConfig{
			JWTSecret: e.str("JWT_SECRET", ""),
			Issuer:    e.str("JWT_ISSUER", ""),
		},
		Policy: PolicyConfig{
			File: e.str("POLICY_FILE", ""),
		},
	}

	if len(e.errs) > 0 {
		return nil, stderrors.Join(e.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Database == "") {
			errs = append(errs, fmt.Errorf("postgres store requires DATABASE_URL or DB_HOST and DB_NAME"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", c.Store.Driver))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT: %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("GRPC_PORT: %d out of range", c.Server.GRPCPort))
	}
	if c.Database.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TIMEOUT must be positive"))
	}
	if c.Service.Environment == "production" && c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required in production"))
	}
	if c.RateLimit.Limit < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT must not be negative"))
	}

	return stderrors.Join(errs...)
}

// env reads typed values and collects parse failures.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *env) list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
