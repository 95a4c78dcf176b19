package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// AuthConfig holds the token and hashing parameters of the core.
type AuthConfig struct {
	// Secret signs access tokens. Required; the process refuses to start
	// without it.
	Secret string `env:"SECRET,required"`

	// Issuer is embedded into and validated against the iss claim.
	Issuer string `env:"ISSUER" envDefault:"shutterdesk"`

	AccessTTL  time.Duration `env:"ACCESS_TTL"  envDefault:"15m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`

	// HashCost is the bcrypt cost factor.
	HashCost int `env:"HASH_COST" envDefault:"12"`
}

// DBConfig holds the PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig holds the optional permission-cache backend settings.
type RedisConfig struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"30s"`
}

// HTTPConfig holds the server settings.
type HTTPConfig struct {
	Addr              string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	RateBurst         int           `env:"RATE_BURST" envDefault:"20"`
	RatePerSec        int           `env:"RATE_PER_SEC" envDefault:"10"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	CookieTokens      bool          `env:"COOKIE_TOKENS" envDefault:"true"`
	TrustProxy        bool          `env:"TRUST_PROXY" envDefault:"false"`
	StoreCallTimeout  time.Duration `env:"STORE_CALL_TIMEOUT" envDefault:"5s"`
	ShutdownGraceWait time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
}

// AppConfig is the process configuration, loaded from environment
// variables. With no DB DSN configured the service runs on the in-memory
// store, which is only useful for development.
type AppConfig struct {
	Dev bool `env:"DEV" envDefault:"false"`

	Auth     AuthConfig  `envPrefix:"AUTH_"`
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	HTTP     HTTPConfig  `envPrefix:"HTTP_"`
}

// Load parses the configuration from the environment.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SDESK_"}); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return errors.New("config: access TTL must be shorter than refresh TTL")
	}
	if c.HTTP.StoreCallTimeout <= 0 {
		return errors.New("config: store call timeout must be positive")
	}
	return nil
}
