package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (EYEWEAR_ prefix), a .env file, flags, or YAML
// config files.
type Config struct {
	Addr          string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string        `usage:"PostgreSQL connection URL (EYEWEAR_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL  string        `default:"" usage:"Public base URL for product images (e.g. https://cdn.example.com/products)" flag:"image-base-url"`
	PresignExpiry time.Duration `default:"15m" usage:"Lifetime of presigned image URLs, 0 streams images through the API" flag:"presign-expiry"`
	MaxImageBytes int64         `default:"5242880" usage:"Maximum product image upload size" flag:"max-image-bytes"`
	APIKeyPepper  string        `usage:"HMAC pepper for API key hashing (EYEWEAR_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Storage       StorageConfig
	Stripe        StripeConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// StorageConfig points at an S3-compatible bucket. An empty endpoint
// disables image uploads.
type StorageConfig struct {
	Endpoint  string `default:"" usage:"S3-compatible endpoint host:port"`
	AccessKey string `default:"" usage:"Object storage access key"`
	SecretKey string `default:"" usage:"Object storage secret key"`
	Bucket    string `default:"product-images" usage:"Bucket holding product images"`
	UseSSL    bool   `default:"false" usage:"Use TLS for object storage" flag:"storage-use-ssl"`
}

// Enabled reports whether an endpoint is configured.
func (c StorageConfig) Enabled() bool { return c.Endpoint != "" }

// StripeConfig holds payment provider credentials. An empty secret key
// disables checkout and the webhook.
type StripeConfig struct {
	SecretKey     string        `default:"" usage:"Stripe secret API key"`
	WebhookSecret string        `default:"" usage:"Stripe webhook signing secret"`
	SuccessURL    string        `default:"http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}" usage:"Redirect after a successful payment"`
	CancelURL     string        `default:"http://localhost:3000/cart" usage:"Redirect after an abandoned payment"`
	Tolerance     time.Duration `default:"5m" usage:"Maximum webhook signature age"`
}

// Enabled reports whether a secret key is configured.
func (c StripeConfig) Enabled() bool { return c.SecretKey != "" }

// RateLimitConfig controls the per-client sliding window rate limiter.
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

// LoadConfig loads a .env file when present, then configuration from
// environment variables and YAML config files, and applies platform
// defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "EYEWEAR",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/eyewear/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set EYEWEAR_DATABASE_URL or DATABASE_URL")
	case c.APIKeyPepper == "":
		return errors.New("API key pepper is required: set EYEWEAR_API_KEY_PEPPER")
	case c.Stripe.Enabled() && c.Stripe.WebhookSecret == "":
		return errors.New("stripe webhook secret is required when a stripe secret key is set")
	case c.Storage.Enabled() && (c.Storage.AccessKey == "" || c.Storage.SecretKey == ""):
		return errors.New("storage credentials are required when a storage endpoint is set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's EYEWEAR_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
