package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/pos-checkout/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (POS_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	Redis        RedisConfig
	AMQP         AMQPConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig controls checkout arithmetic.
type PricingConfig struct {
	TaxRounding string `default:"half_up" usage:"Tax rounding mode: half_up or half_even" flag:"tax-rounding"`
}

// RedisConfig enables the tax rate cache and the shared rate limit store.
// An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address host:port (POS_REDIS_ADDR or REDIS_URL)"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"5m" usage:"Tax rate cache TTL"`
}

// AMQPConfig enables order event publishing. An empty URL disables it.
type AMQPConfig struct {
	URL      string `default:"" usage:"AMQP broker URL (POS_AMQP_URL or AMQP_URL)"`
	Exchange string `default:"pos.events" usage:"Topic exchange for order events"`
}

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
	}
	if _, err := pricing.ParseRoundingMode(c.Pricing.TaxRounding); err != nil {
		return errors.Wrap(err, "pricing.taxRounding")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the POS_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_URL")
	}
	if c.AMQP.URL == "" {
		c.AMQP.URL = os.Getenv("AMQP_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
