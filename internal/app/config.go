package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/restaurant-orders/internal/domain/order"
	"github.com/xenking/restaurant-orders/internal/gateway/stripe"
	"github.com/xenking/restaurant-orders/internal/mail"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (ORDERS_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Auth         AuthConfig
	Stripe       StripeConfig
	Expiry       ExpiryConfig
	Mail         MailConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	AccessTokenSecret string `usage:"HS256 secret used to verify customer access tokens" flag:"access-token-secret"`
}

// StripeConfig holds the hosted checkout credentials. Card and online
// payments are rejected when SecretKey is empty.
type StripeConfig struct {
	SecretKey     string `usage:"Stripe secret API key" flag:"stripe-secret-key"`
	WebhookSecret string `usage:"Stripe webhook signing secret" flag:"stripe-webhook-secret"`
	Currency      string `default:"egp" usage:"ISO currency of checkout sessions"`
	SuccessURL    string `usage:"Redirect after a completed payment" flag:"stripe-success-url"`
	CancelURL     string `usage:"Redirect after an abandoned payment" flag:"stripe-cancel-url"`
}

// ExpiryConfig controls how long unpaid orders live and what the sweeper does
// with them.
type ExpiryConfig struct {
	TTL           time.Duration `default:"1h" usage:"Lifetime of a pending order"`
	Mode          string        `default:"cancel" usage:"What to do with overdue orders: cancel or delete"`
	SweepInterval time.Duration `default:"1m" usage:"Interval between expiry sweeps; 0 disables the in-process sweeper" flag:"sweep-interval"`
}

// MailConfig holds SMTP settings for confirmation emails. Mail is disabled
// when Host is empty.
type MailConfig struct {
	Host     string `usage:"SMTP host"`
	Port     int    `default:"587" usage:"SMTP port"`
	Username string `usage:"SMTP username"`
	Password string `usage:"SMTP password"`
	From     string `usage:"Sender address of confirmation emails"`
	OrderURL string `usage:"Storefront order page; the order id is appended" flag:"mail-order-url"`
}

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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
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
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	}
	if _, err := order.ParseExpiryMode(c.Expiry.Mode); err != nil {
		return errors.Wrap(err, "expiry mode")
	}
	if c.Expiry.TTL <= 0 {
		return errors.New("expiry TTL must be positive")
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return errors.New("stripe webhook secret is required when a secret key is set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ORDERS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// ExpiryPolicy returns the order expiry policy described by the config.
func (c *Config) ExpiryPolicy() order.ExpiryPolicy {
	mode, _ := order.ParseExpiryMode(c.Expiry.Mode)
	return order.ExpiryPolicy{TTL: c.Expiry.TTL, Mode: mode}
}

// StripeGateway returns the gateway settings for the Stripe adapter.
func (c *Config) StripeGateway() stripe.Config {
	return stripe.Config{
		SecretKey:     c.Stripe.SecretKey,
		WebhookSecret: c.Stripe.WebhookSecret,
		Currency:      c.Stripe.Currency,
		SuccessURL:    c.Stripe.SuccessURL,
		CancelURL:     c.Stripe.CancelURL,
	}
}

// SMTP returns the notifier settings.
func (c *Config) SMTP() mail.Config {
	return mail.Config{
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
		From:     c.Mail.From,
		OrderURL: c.Mail.OrderURL,
	}
}
