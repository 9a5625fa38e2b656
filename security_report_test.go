package authcore

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSecurityReportWarnsOnWeakTestConfig(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	r := engine.SecurityReport()
	assert.False(t, r.ProductionMode)
	assert.Equal(t, 15*time.Minute, r.AccessTTL)
	assert.Equal(t, 1000, r.Password.Iterations)
	assert.Equal(t, 5, r.MaxLoginAttempts)
	assert.Contains(t, r.Warnings, "password hashing iterations below recommended minimum")
	assert.Contains(t, r.Warnings, "access tokens cannot be revoked before expiry")
	assert.NotContains(t, r.Warnings, "access token lifetime above one hour")
}

func TestSecurityReportOmitsSecrets(t *testing.T) {
	engine, _ := newTestEngine(t, func(cfg *Config, _ *Builder) {
		cfg.JWT.AccessTokenExpiry = 2 * time.Hour
		cfg.Password.Iterations = recommendedIterations
	})

	r := engine.SecurityReport()
	assert.Contains(t, r.Warnings, "access token lifetime above one hour")
	assert.NotContains(t, r.Warnings, "password hashing iterations below recommended minimum")
	for _, w := range r.Warnings {
		assert.False(t, strings.Contains(w, testAccessSecret) || strings.Contains(w, testRefreshSecret))
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	assert.Equal(t, SecurityReport{}, e.SecurityReport())
}
