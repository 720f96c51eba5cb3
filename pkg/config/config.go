package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App     AppConfig
	Backend BackendConfig
	Payment PaymentConfig
	Redis   RedisConfig
	Cache   CacheConfig
	JWT     JWTConfig
	Cart    CartConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BackendConfig points at the remote storefront REST API.
type BackendConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_BACKEND_BASE_URL" required:"true"`
	RequestTimeout time.Duration `envconfig:"STOREFRONT_BACKEND_TIMEOUT" default:"20s"`
	UserAgent      string        `envconfig:"STOREFRONT_BACKEND_USER_AGENT" default:"storefront-core"`
}

func (b *BackendConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(b.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("STOREFRONT_BACKEND_BASE_URL must be an absolute URL")
	}
	b.BaseURL = strings.TrimRight(parsed.String(), "/")
	if b.RequestTimeout <= 0 {
		b.RequestTimeout = 20 * time.Second
	}
	return nil
}

// PaymentConfig describes the online payment provider's redirect contract.
type PaymentConfig struct {
	Provider           string `envconfig:"STOREFRONT_PAYMENT_PROVIDER" default:"vnpay"`
	CompletionHost     string `envconfig:"STOREFRONT_PAYMENT_COMPLETION_HOST"`
	CompletionPath     string `envconfig:"STOREFRONT_PAYMENT_COMPLETION_PATH" default:"/payment/return"`
	SuccessParam       string `envconfig:"STOREFRONT_PAYMENT_SUCCESS_PARAM" default:"vnp_ResponseCode"`
	SuccessValue       string `envconfig:"STOREFRONT_PAYMENT_SUCCESS_VALUE" default:"00"`
	SessionIdleTimeout time.Duration `envconfig:"STOREFRONT_PAYMENT_SESSION_IDLE_TIMEOUT" default:"15m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CacheConfig covers the local sqlite snapshot cache.
type CacheConfig struct {
	Path        string        `envconfig:"STOREFRONT_CACHE_PATH" default:"storefront-cache.db"`
	SnapshotTTL time.Duration `envconfig:"STOREFRONT_CACHE_SNAPSHOT_TTL" default:"5m"`
	AutoMigrate bool          `envconfig:"STOREFRONT_CACHE_AUTO_MIGRATE" default:"true"`
}

type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
}

type CartConfig struct {
	SelectAllOnLoad bool `envconfig:"STOREFRONT_CART_SELECT_ALL_ON_LOAD" default:"true"`
}
