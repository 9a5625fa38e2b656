package authcore

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// AUTHCORE_JWT_SECRET or AUTHCORE_SECURITY_LOCKOUTDURATION.
const EnvPrefix = "AUTHCORE"

// LoadConfig reads configuration from DefaultConfig, then the optional
// YAML file at path, then AUTHCORE_* environment variables. The result is
// validated.
//
// LoadConfig may return an error when the file cannot be parsed, a value
// does not decode, or validation fails. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve nested
// fields that the file does not mention.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"environment": d.Environment,

		"jwt.secret":             d.JWT.Secret,
		"jwt.refreshSecret":      d.JWT.RefreshSecret,
		"jwt.accessTokenExpiry":  d.JWT.AccessTokenExpiry,
		"jwt.refreshTokenExpiry": d.JWT.RefreshTokenExpiry,
		"jwt.maxFutureIat":       d.JWT.MaxFutureIAT,

		"password.bcryptRounds":        d.Password.Iterations,
		"password.saltLength":          d.Password.SaltLength,
		"password.keyLength":           d.Password.KeyLength,
		"password.maxConcurrent":       d.Password.MaxConcurrent,
		"password.minLength":           d.Password.MinLength,
		"password.requireUppercase":    d.Password.RequireUppercase,
		"password.requireLowercase":    d.Password.RequireLowercase,
		"password.requireNumbers":      d.Password.RequireNumbers,
		"password.requireSpecialChars": d.Password.RequireSpecialChars,
		"password.resetTokenTtl":       d.Password.ResetTokenTTL,

		"session.sessionTimeout":        d.Session.Timeout,
		"session.maxSessionsPerUser":    d.Session.MaxSessionsPerUser,
		"session.suspiciousIpThreshold": d.Session.SuspiciousIPThreshold,
		"session.cleanupInterval":       d.Session.CleanupInterval,
		"session.redisPrefix":           d.Session.RedisPrefix,
		"session.redisRetention":        d.Session.RedisRetention,

		"security.maxLoginAttempts": d.Security.MaxLoginAttempts,
		"security.lockoutDuration":  d.Security.LockoutDuration,

		"rateLimit.window":        d.RateLimit.Window,
		"rateLimit.maxAttempts":   d.RateLimit.MaxAttempts,
		"rateLimit.blockDuration": d.RateLimit.BlockDuration,
		"rateLimit.redisPrefix":   d.RateLimit.RedisPrefix,

		"audit.enabled":    d.Audit.Enabled,
		"audit.bufferSize": d.Audit.BufferSize,
		"audit.dropIfFull": d.Audit.DropIfFull,

		"metrics.enabled":                 d.Metrics.Enabled,
		"metrics.enableLatencyHistograms": d.Metrics.EnableLatencyHistograms,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}
