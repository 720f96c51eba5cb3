package config

// Environment variable names shared between Load and tests.
const (
	EnvAppEnv         = "STOREFRONT_APP_ENV"
	EnvPort           = "STOREFRONT_APP_PORT"
	EnvBackendBaseURL = "STOREFRONT_BACKEND_BASE_URL"
	EnvBackendTimeout = "STOREFRONT_BACKEND_TIMEOUT"
	EnvRedisURL       = "STOREFRONT_REDIS_URL"
	EnvJWTSecret      = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer      = "STOREFRONT_JWT_ISSUER"
	EnvCachePath      = "STOREFRONT_CACHE_PATH"
	EnvSelectAll      = "STOREFRONT_CART_SELECT_ALL_ON_LOAD"
)
