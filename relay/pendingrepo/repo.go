package pendingrepo

import (
	"context"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// PendingAuthorization is what the provider redirect left behind for a flow:
// either an authorization code or the provider's error, correlated by state.
type PendingAuthorization struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
	CreatedAt        time.Time
	ExpiresAt        time.Time // zero means it never expires
}

// Expired reports whether the record is no longer visible at now.
func (p *PendingAuthorization) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

func (p *PendingAuthorization) clone() *PendingAuthorization {
	c := *p
	return &c
}

// Repo stores pending authorizations keyed by state. Expired records are
// never returned, and Get, Take and Delete report errors.ErrNotFound when
// nothing live is stored under the state.
type Repo interface {
	Upsert(ctx context.Context, pending *PendingAuthorization) error
	Get(ctx context.Context, state string) (*PendingAuthorization, error)
	// Take returns the record and removes it in one step.
	Take(ctx context.Context, state string) (*PendingAuthorization, error)
	Delete(ctx context.Context, state string) error
	// HasPending reports whether any live record exists, under any state.
	HasPending(ctx context.Context) (bool, error)
	DeleteExpired(ctx context.Context) (int, error)
}

// SingleRecordRepo is implemented by repos that hold at most one record.
// Current returns that record whatever its state, or errors.ErrNotFound
// when nothing live is stored.
type SingleRecordRepo interface {
	Current(ctx context.Context) (*PendingAuthorization, error)
}
