package config

import "time"

// PlatformConfig holds the platform API client configuration
type PlatformConfig struct {
	// Base URL handed to user code and used for token exchange
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// Admin credential for the domain token exchange
	AdminToken string `mapstructure:"admin_token"`

	Timeout time.Duration `mapstructure:"timeout" validate:"required"`

	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Maximum requests per second
	Requests int `mapstructure:"requests" validate:"min=1"`

	// Burst size for token bucket
	Burst int `mapstructure:"burst" validate:"min=1"`
}

// RetryConfig holds retry configuration for failed requests
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=0"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// CircuitBreakerConfig opens the breaker after Threshold consecutive failures
type CircuitBreakerConfig struct {
	Threshold int           `mapstructure:"threshold" validate:"min=1"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig decides how domain tokens are obtained
type AuthConfig struct {
	// Mode: "platform" exchanges the admin token, "local" signs JWTs itself
	Mode string `mapstructure:"mode" validate:"required,oneof=platform local"`

	// HMAC key for local mode
	SigningKey string `mapstructure:"signing_key" validate:"required_if=Mode local"`

	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"required"`
	Issuer   string        `mapstructure:"issuer"`
}
