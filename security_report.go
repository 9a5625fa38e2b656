package authcore

import "time"

// recommendedIterations is the PBKDF2-SHA512 floor below which the report
// warns.
const recommendedIterations = 100000

type SecurityReport struct {
	ProductionMode        bool
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Password              PasswordConfigReport
	MaxLoginAttempts      int
	LockoutDuration       time.Duration
	SessionTimeout        time.Duration
	MaxSessionsPerUser    int
	SuspiciousIPThreshold int
	RateLimit             RateLimitConfig
	CleanupInterval       time.Duration
	AuditEnabled          bool
	MetricsEnabled        bool
	// Warnings lists settings that are weaker than recommended for
	// production, plus known gaps of the token scheme.
	Warnings []string
}

type PasswordConfigReport struct {
	Iterations    int
	SaltLength    int
	KeyLength     int
	MaxConcurrent int
	MinLength     int
}

// SecurityReport summarizes the effective security posture of the engine.
// It never includes secrets.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	r := SecurityReport{
		ProductionMode:   cfg.Environment == "production",
		SigningAlgorithm: "HS256 (double-encoded signature)",
		AccessTTL:        cfg.JWT.AccessTokenExpiry,
		RefreshTTL:       cfg.JWT.RefreshTokenExpiry,
		Password: PasswordConfigReport{
			Iterations:    cfg.Password.Iterations,
			SaltLength:    cfg.Password.SaltLength,
			KeyLength:     cfg.Password.KeyLength,
			MaxConcurrent: cfg.Password.MaxConcurrent,
			MinLength:     cfg.Password.MinLength,
		},
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LockoutDuration:       cfg.Security.LockoutDuration,
		SessionTimeout:        cfg.Session.Timeout,
		MaxSessionsPerUser:    cfg.Session.MaxSessionsPerUser,
		SuspiciousIPThreshold: cfg.Session.SuspiciousIPThreshold,
		RateLimit:             cfg.RateLimit,
		CleanupInterval:       cfg.Session.CleanupInterval,
		AuditEnabled:          cfg.Audit.Enabled,
		MetricsEnabled:        cfg.Metrics.Enabled,
	}

	r.Warnings = append(r.Warnings,
		"token signatures are double-encoded and only verifiable by authcore",
		"access tokens cannot be revoked before expiry",
	)
	if cfg.Password.Iterations < recommendedIterations {
		r.Warnings = append(r.Warnings, "password hashing iterations below recommended minimum")
	}
	if cfg.Password.MinLength < 8 {
		r.Warnings = append(r.Warnings, "password minimum length below 8")
	}
	if cfg.JWT.AccessTokenExpiry > time.Hour {
		r.Warnings = append(r.Warnings, "access token lifetime above one hour")
	}
	if cfg.Audit.Enabled && cfg.Audit.DropIfFull {
		r.Warnings = append(r.Warnings, "audit events are dropped when the buffer is full")
	}
	return r
}
