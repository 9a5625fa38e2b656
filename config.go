package authcore

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/ratelimit"
	"github.com/MrEthical07/authcore/session"
)

// Config is the full engine configuration. Field tags name the keys
// accepted by LoadConfig.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Environment string          `mapstructure:"environment"`
	JWT         JWTConfig       `mapstructure:"jwt"`
	Password    PasswordConfig  `mapstructure:"password"`
	Session     SessionConfig   `mapstructure:"session"`
	Security    SecurityConfig  `mapstructure:"security"`
	RateLimit   RateLimitConfig `mapstructure:"rateLimit"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the token secrets and lifetimes. Both secrets must be at
// least 32 bytes and must differ.
type JWTConfig struct {
	Secret             string        `mapstructure:"secret"`
	RefreshSecret      string        `mapstructure:"refreshSecret"`
	AccessTokenExpiry  time.Duration `mapstructure:"accessTokenExpiry"`
	RefreshTokenExpiry time.Duration `mapstructure:"refreshTokenExpiry"`
	MaxFutureIAT       time.Duration `mapstructure:"maxFutureIat"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds PBKDF2 parameters and the strength policy.
// Iterations is read from the historical "bcryptRounds" key.
type PasswordConfig struct {
	Iterations          int           `mapstructure:"bcryptRounds"`
	SaltLength          int           `mapstructure:"saltLength"`
	KeyLength           int           `mapstructure:"keyLength"`
	MaxConcurrent       int           `mapstructure:"maxConcurrent"`
	MinLength           int           `mapstructure:"minLength"`
	RequireUppercase    bool          `mapstructure:"requireUppercase"`
	RequireLowercase    bool          `mapstructure:"requireLowercase"`
	RequireNumbers      bool          `mapstructure:"requireNumbers"`
	RequireSpecialChars bool          `mapstructure:"requireSpecialChars"`
	ResetTokenTTL       time.Duration `mapstructure:"resetTokenTtl"`
}

func (c PasswordConfig) hasherConfig() password.Config {
	return password.Config{
		Iterations:    c.Iterations,
		SaltLength:    c.SaltLength,
		KeyLength:     c.KeyLength,
		MaxConcurrent: c.MaxConcurrent,
	}
}

func (c PasswordConfig) policy() password.Policy {
	return password.Policy{
		MinLength:           c.MinLength,
		RequireUppercase:    c.RequireUppercase,
		RequireLowercase:    c.RequireLowercase,
		RequireNumbers:      c.RequireNumbers,
		RequireSpecialChars: c.RequireSpecialChars,
	}
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime, per-user caps and the sweeper.
type SessionConfig struct {
	Timeout               time.Duration `mapstructure:"sessionTimeout"`
	MaxSessionsPerUser    int           `mapstructure:"maxSessionsPerUser"`
	SuspiciousIPThreshold int           `mapstructure:"suspiciousIpThreshold"`
	CleanupInterval       time.Duration `mapstructure:"cleanupInterval"`
	RedisPrefix           string        `mapstructure:"redisPrefix"`
	// RedisRetention keeps expired session keys around long enough for the
	// sweeper to report them as expired rather than missing.
	RedisRetention time.Duration `mapstructure:"redisRetention"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig drives the login lockout state machine.
type SecurityConfig struct {
	MaxLoginAttempts int           `mapstructure:"maxLoginAttempts"`
	LockoutDuration  time.Duration `mapstructure:"lockoutDuration"`
}

// RateLimitConfig configures the limiter handed to transports through
// Engine.NewLimiter. The engine never consults it itself.
type RateLimitConfig struct {
	Window        time.Duration `mapstructure:"window"`
	MaxAttempts   int           `mapstructure:"maxAttempts"`
	BlockDuration time.Duration `mapstructure:"blockDuration"`
	RedisPrefix   string        `mapstructure:"redisPrefix"`
}

func (c RateLimitConfig) limiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Window:        c.Window,
		MaxAttempts:   c.MaxAttempts,
		BlockDuration: c.BlockDuration,
	}
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"bufferSize"`
	DropIfFull bool `mapstructure:"dropIfFull"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enableLatencyHistograms"`
}

// DefaultConfig returns production defaults. Secrets are left empty and
// must be supplied.
func DefaultConfig() Config {
	rl := ratelimit.DefaultConfig()
	return Config{
		Environment: "development",
		JWT: JWTConfig{
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			MaxFutureIAT:       60 * time.Second,
		},
		Password: PasswordConfig{
			Iterations:          password.DefaultIterations,
			SaltLength:          password.DefaultSaltLength,
			KeyLength:           password.DefaultKeyLength,
			MaxConcurrent:       runtime.NumCPU(),
			MinLength:           8,
			RequireUppercase:    true,
			RequireLowercase:    true,
			RequireNumbers:      true,
			RequireSpecialChars: true,
			ResetTokenTTL:       time.Hour,
		},
		Session: SessionConfig{
			Timeout:               session.DefaultSessionTimeout,
			MaxSessionsPerUser:    session.DefaultMaxSessionsPerUser,
			SuspiciousIPThreshold: session.DefaultSuspiciousIPThreshold,
			CleanupInterval:       session.DefaultCleanupInterval,
			RedisPrefix:           "as",
			RedisRetention:        time.Hour,
		},
		Security: SecurityConfig{
			MaxLoginAttempts: 5,
			LockoutDuration:  30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Window:        rl.Window,
			MaxAttempts:   rl.MaxAttempts,
			BlockDuration: rl.BlockDuration,
			RedisPrefix:   "arl",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
//
// Validate may return an error naming the first offending field.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("jwt.secret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("jwt.refreshSecret must be at least 32 bytes")
	}
	if c.JWT.Secret == c.JWT.RefreshSecret {
		return errors.New("jwt.secret and jwt.refreshSecret must differ")
	}
	if c.JWT.AccessTokenExpiry <= 0 || c.JWT.RefreshTokenExpiry <= 0 {
		return errors.New("jwt token expiries must be > 0")
	}
	if c.JWT.RefreshTokenExpiry < c.JWT.AccessTokenExpiry {
		return errors.New("jwt.refreshTokenExpiry must be >= jwt.accessTokenExpiry")
	}
	if c.JWT.MaxFutureIAT < 0 {
		return errors.New("jwt.maxFutureIat must be >= 0")
	}

	if c.Password.Iterations < 1 {
		return errors.New("password.bcryptRounds must be > 0")
	}
	if c.Password.MinLength < 1 {
		return errors.New("password.minLength must be > 0")
	}
	if c.Password.ResetTokenTTL <= 0 {
		return errors.New("password.resetTokenTtl must be > 0")
	}
	if c.Password.MaxConcurrent < 1 {
		return errors.New("password.maxConcurrent must be > 0")
	}

	if c.Session.Timeout <= 0 {
		return errors.New("session.sessionTimeout must be > 0")
	}
	if c.Session.MaxSessionsPerUser < 1 {
		return errors.New("session.maxSessionsPerUser must be >= 1")
	}
	if c.Session.SuspiciousIPThreshold < 1 {
		return errors.New("session.suspiciousIpThreshold must be >= 1")
	}
	if c.Session.CleanupInterval < 0 {
		return errors.New("session.cleanupInterval must be >= 0")
	}

	if c.Security.MaxLoginAttempts < 1 {
		return errors.New("security.maxLoginAttempts must be >= 1")
	}
	if c.Security.LockoutDuration <= 0 {
		return errors.New("security.lockoutDuration must be > 0")
	}

	if err := c.RateLimit.limiterConfig().Validate(); err != nil {
		return fmt.Errorf("rateLimit: %w", err)
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("audit.bufferSize must be >= 1 when audit is enabled")
	}
	return nil
}
