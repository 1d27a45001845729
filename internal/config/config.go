package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/kodama/internal/provider/runware"
)

// Config represents the service configuration.
type Config struct {
	Server  ServerConfig
	CORS    CORSConfig
	Auth    AuthConfig
	Redis   RedisConfig
	Runware runware.Config
	Pricing PricingConfig
	Credits CreditsConfig
	Polling PollingConfig
	Storage StorageConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"30"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Request-Id,X-Account-Id,X-Account-Email,X-Account-Name,X-Account-Role"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// AuthConfig contains JWT verification settings.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

// RedisConfig contains Redis connection settings. An empty address selects
// the in-memory store.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// PricingConfig contains pricing engine settings.
type PricingConfig struct {
	DefaultMarkupPercent  float64 `env:"PRICING_DEFAULT_MARKUP_PERCENT" envDefault:"100"`
	ExchangeRate          float64 `env:"PRICING_EXCHANGE_RATE"          envDefault:"36"`
	CreditsPerDisplayUnit int64   `env:"PRICING_CREDITS_PER_UNIT"       envDefault:"1"`
}

// CreditsConfig contains credit account settings.
type CreditsConfig struct {
	StartingGrant int64 `env:"CREDITS_STARTING_GRANT" envDefault:"10"`
}

// PollingConfig controls how generation tasks are polled.
type PollingConfig struct {
	Attempts        int `env:"POLLING_ATTEMPTS"         envDefault:"30"`
	IntervalSeconds int `env:"POLLING_INTERVAL_SECONDS" envDefault:"10"`
}

// StorageConfig controls retention cleanup.
type StorageConfig struct {
	CleanupIntervalMinutes int `env:"STORAGE_CLEANUP_INTERVAL_MINUTES" envDefault:"60"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*AuthConfig
	*RedisConfig
	*runware.Config
	*PricingConfig
	*CreditsConfig
	*PollingConfig
	*StorageConfig
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Auth,
		&cfg.Redis,
		&cfg.Runware,
		&cfg.Pricing,
		&cfg.Credits,
		&cfg.Polling,
		&cfg.Storage,
	}
}
