package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vistaflix/tvlink/internal/metrics"
	"github.com/vistaflix/tvlink/internal/repository"
)

// CleanupJob prunes aged-out rows on a fixed interval. Expiry is enforced at
// read time by the repositories; this job only reclaims storage and keeps the
// unique index on activation codes from filling up with dead entries.
type CleanupJob struct {
	activationRepo repository.ActivationCodeRepository
	sessionRepo    repository.SessionRepository
	interval       time.Duration
	done           chan struct{}
}

func NewCleanupJob(
	activationRepo repository.ActivationCodeRepository,
	sessionRepo repository.SessionRepository,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		activationRepo: activationRepo,
		sessionRepo:    sessionRepo,
		interval:       interval,
		done:           make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pruned := j.runCleanup(ctx, "activation codes", j.activationRepo.DeleteExpired)
	if pruned > 0 {
		metrics.ExpiredPruned.Add(float64(pruned))
	}

	j.runCleanup(ctx, "sessions", j.sessionRepo.DeleteExpired)
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) int64 {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
		return 0
	}
	if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
	return count
}
