package relay

import (
	"context"
	"time"

	"github.com/jrsteele09/go-code-relay/internal/config"
	relayerrors "github.com/jrsteele09/go-code-relay/internal/errors"
	"github.com/jrsteele09/go-code-relay/relay/pendingrepo"
	"github.com/rs/zerolog/log"
)

// Deposit holds what the provider redirect carried.
type Deposit struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Service relays authorization codes from the provider redirect to the
// client polling for them.
type Service struct {
	repo    pendingrepo.Repo
	ttl     time.Duration
	consume bool
}

// NewService creates a relay over repo using the TTL and consume policy in cfg.
func NewService(repo pendingrepo.Repo, cfg config.RelayConfig) *Service {
	return &Service{
		repo:    repo,
		ttl:     cfg.GetCodeTTL(),
		consume: cfg.GetConsumeOnWithdraw(),
	}
}

// Deposit stores the redirect parameters under their state, replacing any
// earlier deposit for the same state. A deposit needs a state and either a
// code or a provider error.
func (s *Service) Deposit(ctx context.Context, d Deposit) error {
	if d.State == "" || (d.Code == "" && d.Error == "") {
		return ErrMissingCodeOrState
	}

	now := pendingrepo.NowTimeFunc()
	err := s.repo.Upsert(ctx, &pendingrepo.PendingAuthorization{
		State:            d.State,
		Code:             d.Code,
		Error:            d.Error,
		ErrorDescription: d.ErrorDescription,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.ttl),
	})
	if err != nil {
		return relayerrors.Wrapf(err, "[Service Deposit] store")
	}

	log.Ctx(ctx).Debug().
		Str("state", d.State).
		Bool("hasCode", d.Code != "").
		Str("providerError", d.Error).
		Time("expiresAt", now.Add(s.ttl)).
		Msg("Pending authorization stored")
	return nil
}

// Withdraw returns the code deposited under state. The checks run in a fixed
// order: missing state, nothing stored, state mismatch. An error the
// provider reported for the flow is returned ahead of the last two. When the service consumes on withdraw
// the record is removed as it is read, so a code is handed out only once.
// A provider error is cleared once reported under either policy.
func (s *Service) Withdraw(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrMissingState
	}

	var p *pendingrepo.PendingAuthorization
	var err error
	if s.consume {
		p, err = s.repo.Take(ctx, state)
	} else {
		p, err = s.repo.Get(ctx, state)
	}

	if relayerrors.Is(err, relayerrors.ErrNotFound) {
		return "", s.missError(ctx, state)
	}
	if err != nil {
		return "", relayerrors.Wrapf(err, "[Service Withdraw] load")
	}

	if p.Error != "" {
		if !s.consume {
			if err := s.repo.Delete(ctx, state); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("state", state).Msg("Failed to clear reported provider error")
			}
		}
		return "", &ProviderError{Code: p.Error, Description: p.ErrorDescription}
	}
	if p.Code == "" {
		return "", ErrNoCodeStored
	}

	log.Ctx(ctx).Debug().Str("state", state).Bool("consumed", s.consume).Msg("Pending authorization withdrawn")
	return p.Code, nil
}

// missError explains why nothing is stored under state. A single-record
// repo holds exactly one flow, so its provider error or missing code is
// reported ahead of the mismatch. A keyed repo only tells apart an empty
// store from one holding other flows.
func (s *Service) missError(ctx context.Context, state string) error {
	if single, ok := s.repo.(pendingrepo.SingleRecordRepo); ok {
		current, err := single.Current(ctx)
		if relayerrors.Is(err, relayerrors.ErrNotFound) {
			return ErrNoCodeStored
		}
		if err != nil {
			return relayerrors.Wrapf(err, "[Service Withdraw] load current")
		}
		if current.Error != "" {
			return &ProviderError{Code: current.Error, Description: current.ErrorDescription}
		}
		if current.Code == "" {
			return ErrNoCodeStored
		}
		log.Ctx(ctx).Debug().Str("requestedState", state).Msg("Withdraw state mismatch")
		return ErrStateMismatch
	}

	hasPending, err := s.repo.HasPending(ctx)
	if err != nil {
		return relayerrors.Wrapf(err, "[Service Withdraw] check pending")
	}
	if !hasPending {
		return ErrNoCodeStored
	}
	log.Ctx(ctx).Debug().Str("requestedState", state).Msg("Withdraw state mismatch")
	return ErrStateMismatch
}
