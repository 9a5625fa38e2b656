package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// AuditFunc emits one audit event. metadata is only invoked when the event
// is actually recorded.
type AuditFunc func(ctx context.Context, event string, success bool, userID, sessionID string, err error, metadata func() map[string]string)

// WarnFunc reports a failure the flow chose to swallow.
type WarnFunc func(msg string, err error)

// Common carries the dependencies every flow shares.
type Common struct {
	Now       func() time.Time
	LockUser  func(userID string) func()
	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      WarnFunc

	GetUserByID func(context.Context, string) (*store.UserRecord, error)
	UpdateUser  func(context.Context, *store.UserRecord) error
}

func (c *Common) fill() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.MetricInc == nil {
		c.MetricInc = func(int) {}
	}
	if c.EmitAudit == nil {
		c.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if c.Warn == nil {
		c.Warn = func(string, error) {}
	}
	if c.LockUser == nil {
		c.LockUser = func(string) func() { return func() {} }
	}
}

func (c *Common) ready() bool {
	return c.GetUserByID != nil && c.UpdateUser != nil
}
