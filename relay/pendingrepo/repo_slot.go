package pendingrepo

import (
	"context"
	"sync"

	relayerrors "github.com/jrsteele09/go-code-relay/internal/errors"
)

// SlotRepo holds at most one pending authorization. Every Upsert replaces
// whatever was there, whatever its state, so only one flow can be in
// flight at a time.
type SlotRepo struct {
	mu   sync.RWMutex
	slot *PendingAuthorization
}

var (
	_ Repo             = (*SlotRepo)(nil)
	_ SingleRecordRepo = (*SlotRepo)(nil)
)

func NewSlotRepo() *SlotRepo {
	return &SlotRepo{}
}

func (r *SlotRepo) Upsert(_ context.Context, pending *PendingAuthorization) error {
	if pending == nil {
		return relayerrors.ErrNilRecord
	}
	if pending.State == "" {
		return relayerrors.ErrEmptyState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.slot = pending.clone()
	return nil
}

func (r *SlotRepo) Get(_ context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, relayerrors.ErrEmptyState
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.matchesLocked(state) {
		return nil, relayerrors.ErrNotFound
	}
	return r.slot.clone(), nil
}

func (r *SlotRepo) Take(_ context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, relayerrors.ErrEmptyState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.matchesLocked(state) {
		return nil, relayerrors.ErrNotFound
	}
	p := r.slot
	r.slot = nil
	return p, nil
}

func (r *SlotRepo) Delete(_ context.Context, state string) error {
	if state == "" {
		return relayerrors.ErrEmptyState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slot != nil && r.slot.State == state {
		r.slot = nil
	}
	return nil
}

func (r *SlotRepo) Current(_ context.Context) (*PendingAuthorization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.slot == nil || r.slot.Expired(NowTimeFunc()) {
		return nil, relayerrors.ErrNotFound
	}
	return r.slot.clone(), nil
}

func (r *SlotRepo) HasPending(_ context.Context) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.slot != nil && !r.slot.Expired(NowTimeFunc()), nil
}

func (r *SlotRepo) DeleteExpired(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slot == nil || !r.slot.Expired(NowTimeFunc()) {
		return 0, nil
	}
	r.slot = nil
	return 1, nil
}

// matchesLocked must be called with r.mu held.
func (r *SlotRepo) matchesLocked(state string) bool {
	return r.slot != nil && r.slot.State == state && !r.slot.Expired(NowTimeFunc())
}
