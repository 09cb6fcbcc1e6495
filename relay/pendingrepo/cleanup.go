package pendingrepo

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupManager periodically removes expired pending authorizations so an
// abandoned flow does not hold memory (or documents) forever.
type CleanupManager struct {
	repo     Repo
	interval time.Duration
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(repo Repo, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		repo:     repo,
		interval: interval,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (cm *CleanupManager) Run(ctx context.Context) error {
	log.Info().Str("interval", cm.interval.String()).Msg("Starting pending authorization cleanup")

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.Sweep(ctx)
	for {
		select {
		case <-ticker.C:
			cm.Sweep(ctx)
		case <-ctx.Done():
			log.Info().Msg("Pending authorization cleanup stopped")
			return nil
		}
	}
}

// Sweep performs a single cleanup pass and returns how many records it removed.
func (cm *CleanupManager) Sweep(ctx context.Context) int {
	count, err := cm.repo.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up expired pending authorizations")
		return count
	}
	if count > 0 {
		log.Debug().Int("count", count).Msg("Cleaned up expired pending authorizations")
	}
	return count
}
