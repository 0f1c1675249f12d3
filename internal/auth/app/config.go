package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/sethvargo/go-envconfig"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Rate limit backends.
const (
	LimiterLocal = "local"
	LimiterRedis = "redis"
)

type Config struct {
	Issuer   string `env:"AUTH_ISSUER,   default=authcore"`
	Audience string `env:"AUTH_AUDIENCE, default=authcore-api"`

	Algorithm string `env:"AUTH_ALGORITHM, default=EdDSA"` // RS256, ES256, EdDSA
	RSABits   int    `env:"AUTH_RSA_BITS"`
	NumKeys   int    `env:"AUTH_NUM_KEYS,  default=3"`

	// SigningKeyFile holds a PEM private key. Empty means ephemeral keys, so
	// every issued token dies with the process.
	SigningKeyFile string `env:"AUTH_SIGNING_KEY_FILE"`
	// MasterKeyFile seals MFA secrets at rest. Empty means an ephemeral key.
	MasterKeyFile string `env:"AUTH_MASTER_KEY_FILE"`
	PepperFile    string `env:"AUTH_PEPPER_FILE, default=pepper"`

	Store   StoreConfig
	Limits  LimitsConfig
	Tokens  TokensConfig
	Logging LoggingConfig

	HashConcurrency int `env:"AUTH_HASH_CONCURRENCY"`

	Env                  string        `env:"ENV,                   default=dev"`
	Port                 int           `env:"PORT,                  default=8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD, default=10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL, default=1h"`
}

type StoreConfig struct {
	Driver string `env:"AUTH_STORE_DRIVER, default=sqlite"`
	// DSN is a file path for sqlite and a postgres:// URL for postgres.
	DSN string `env:"AUTH_DATABASE_DSN, default=auth.db"`
}

type TokensConfig struct {
	AccessTTL     time.Duration `env:"AUTH_ACCESS_TTL,      default=15m"`
	RefreshTTL    time.Duration `env:"AUTH_REFRESH_TTL,     default=168h"`
	RememberMeTTL time.Duration `env:"AUTH_REMEMBER_ME_TTL, default=720h"`
	ResetTTL      time.Duration `env:"AUTH_RESET_TTL,       default=30m"`
}

type LimitsConfig struct {
	Backend  string `env:"AUTH_RATELIMIT_BACKEND, default=local"`
	RedisURL string `env:"AUTH_REDIS_URL"`

	Requests int           `env:"AUTH_RATELIMIT_REQUESTS, default=5"`
	Window   time.Duration `env:"AUTH_RATELIMIT_WINDOW,   default=1m"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,  default=info"`
	Format string `env:"LOG_FORMAT, default=json"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig(ctx context.Context) (Config, error) {
	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the application cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Algorithm {
	case jwtx.AlgorithmRS256, jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA:
	default:
		errs = append(errs, fmt.Errorf("AUTH_ALGORITHM: unsupported algorithm %q", c.Algorithm))
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("AUTH_STORE_DRIVER: unknown driver %q", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("AUTH_DATABASE_DSN: required"))
	}

	switch c.Limits.Backend {
	case LimiterLocal:
	case LimiterRedis:
		if c.Limits.RedisURL == "" {
			errs = append(errs, errors.New("AUTH_REDIS_URL: required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_RATELIMIT_BACKEND: unknown backend %q", c.Limits.Backend))
	}

	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 || c.Tokens.RememberMeTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Tokens.RememberMeTTL < c.Tokens.RefreshTTL {
		errs = append(errs, errors.New("AUTH_REMEMBER_ME_TTL: shorter than AUTH_REFRESH_TTL"))
	}

	return errors.Join(errs...)
}
