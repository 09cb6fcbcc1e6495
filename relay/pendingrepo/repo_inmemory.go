package pendingrepo

import (
	"context"
	"sync"

	relayerrors "github.com/jrsteele09/go-code-relay/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory Repo holding one record per state
type InMemoryRepo struct {
	mu      sync.RWMutex
	pending map[string]*PendingAuthorization
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates a new in-memory pending authorization repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		pending: make(map[string]*PendingAuthorization),
	}
}

// Upsert stores or replaces the record for pending.State
func (r *InMemoryRepo) Upsert(_ context.Context, pending *PendingAuthorization) error {
	if pending == nil {
		return relayerrors.ErrNilRecord
	}
	if pending.State == "" {
		return relayerrors.ErrEmptyState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	r.pending[pending.State] = pending.clone()
	return nil
}

// Get retrieves the live record for state
func (r *InMemoryRepo) Get(_ context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, relayerrors.ErrEmptyState
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pending[state]
	if !ok || p.Expired(NowTimeFunc()) {
		return nil, relayerrors.ErrNotFound
	}
	return p.clone(), nil
}

// Take retrieves and removes the live record for state
func (r *InMemoryRepo) Take(_ context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, relayerrors.ErrEmptyState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[state]
	if !ok {
		return nil, relayerrors.ErrNotFound
	}
	delete(r.pending, state)
	if p.Expired(NowTimeFunc()) {
		return nil, relayerrors.ErrNotFound
	}
	return p, nil
}

// Delete removes the record for state
func (r *InMemoryRepo) Delete(_ context.Context, state string) error {
	if state == "" {
		return relayerrors.ErrEmptyState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, state)
	return nil
}

func (r *InMemoryRepo) HasPending(_ context.Context) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := NowTimeFunc()
	for _, p := range r.pending {
		if !p.Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryRepo) DeleteExpired(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := NowTimeFunc()
	removed := 0
	for state, p := range r.pending {
		if p.Expired(now) {
			delete(r.pending, state)
			removed++
		}
	}
	return removed, nil
}
