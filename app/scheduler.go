package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"idx-flow/database"
	"idx-flow/pipeline"
)

// PipelineRunner is the part of pipeline.Runner the scheduler drives.
type PipelineRunner interface {
	Run(ctx context.Context, feature, trigger string) (*pipeline.Summary, error)
}

// Scheduler periodically runs the full pipeline.
type Scheduler struct {
	runner   PipelineRunner
	interval time.Duration
	done     chan struct{}
}

// NewScheduler creates a scheduler. interval <= 0 means daily.
func NewScheduler(runner PipelineRunner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs once immediately, then on every tick until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msgf("⏰ Pipeline scheduler started (every %v)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial run
	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			log.Info().Msg("⏰ Pipeline scheduler stopped")
			return
		case <-s.done:
			log.Info().Msg("⏰ Pipeline scheduler stopped")
			return
		}
	}
}

// Stop stops the loop. It must be called at most once.
func (s *Scheduler) Stop() {
	close(s.done)
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.runner.Run(ctx, pipeline.FeatureAll, database.TriggerScheduled)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		log.Info().Msg("⏭️  Scheduled run skipped, a run is already in progress")
	case err != nil:
		log.Error().Err(err).Msg("❌ Scheduled run aborted")
	}
}
