// Package pipeline runs one invocation of ingestion and analytics end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"idx-flow/batch"
	"idx-flow/cache"
	"idx-flow/dates"
	"idx-flow/marketdata"
	"idx-flow/storage"
	"idx-flow/tracker"
)

// Features
const (
	FeatureIngest       = "ingest"
	FeatureOrderFlow    = "orderflow"
	FeatureAccumulation = "accumulation"
	FeatureInventory    = "inventory"
	FeatureAll          = "all"
)

// ErrBusy is returned when a run is requested while another one is in progress.
var ErrBusy = errors.New("a pipeline run is already in progress")

// ValidFeature reports whether f can be run.
func ValidFeature(f string) bool {
	return len(stagesFor(f)) > 0
}

// stagesFor lists the stages of a feature. Ingestion always precedes analytics.
func stagesFor(feature string) []string {
	switch feature {
	case FeatureIngest, FeatureOrderFlow, FeatureAccumulation, FeatureInventory:
		return []string{feature}
	case FeatureAll:
		return []string{FeatureIngest, FeatureOrderFlow, FeatureAccumulation, FeatureInventory}
	}
	return nil
}

// Options tunes a Runner.
type Options struct {
	BatchSize   int
	Concurrency int
	YieldDelay  time.Duration

	LookbackDays             int
	AccumulationBackfillDays int
	InventoryDays            int
}

// Summary is what a finished run reports.
type Summary struct {
	RunID    string
	Feature  string
	Stats    batch.Stats
	Failures []batch.Outcome
	Duration time.Duration
}

// Runner executes runs one at a time.
type Runner struct {
	objects     storage.ObjectStore
	fetcher     marketdata.Fetcher
	source      InstrumentSource
	tracker     *tracker.Safe
	newRunCache func(runID string) cache.RunCache
	opts        Options
	now         func() time.Time

	mu   sync.Mutex
	busy bool
}

// NewRunner creates a Runner. Each run gets a fresh in-memory run cache unless
// WithRunCache is used.
func NewRunner(objects storage.ObjectStore, fetcher marketdata.Fetcher, source InstrumentSource, tr *tracker.Safe, opts Options) *Runner {
	if tr == nil {
		tr = tracker.NewSafe(nil)
	}
	return &Runner{
		objects:     objects,
		fetcher:     fetcher,
		source:      source,
		tracker:     tr,
		newRunCache: func(string) cache.RunCache { return cache.NewMemoryRunCache() },
		opts:        opts,
		now:         time.Now,
	}
}

// WithRunCache replaces the per-run cache factory. f is called once per run with
// the run ID.
func (r *Runner) WithRunCache(f func(runID string) cache.RunCache) *Runner {
	r.newRunCache = f
	return r
}

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Run executes feature. Item failures are tallied, never returned. An error is
// returned only for setup failures, which also mark the run failed.
func (r *Runner) Run(ctx context.Context, feature, trigger string) (*Summary, error) {
	stages := stagesFor(feature)
	if len(stages) == 0 {
		return nil, fmt.Errorf("unknown feature %q", feature)
	}

	if !r.claim() {
		return nil, ErrBusy
	}
	defer r.release()
	return r.execute(ctx, feature, trigger, stages)
}

// Go starts feature in the background. The busy check happens before Go returns,
// so a caller sees ErrBusy synchronously.
func (r *Runner) Go(ctx context.Context, feature, trigger string) error {
	stages := stagesFor(feature)
	if len(stages) == 0 {
		return fmt.Errorf("unknown feature %q", feature)
	}
	if !r.claim() {
		return ErrBusy
	}
	go func() {
		defer r.release()
		if _, err := r.execute(ctx, feature, trigger, stages); err != nil {
			log.Error().Err(err).Msgf("❌ Background %s run failed", feature)
		}
	}()
	return nil
}

func (r *Runner) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return false
	}
	r.busy = true
	return true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

func (r *Runner) execute(ctx context.Context, feature, trigger string, stages []string) (*Summary, error) {
	started := time.Now()
	id := r.tracker.Start(ctx, feature, trigger)
	summary := &Summary{RunID: id, Feature: feature}
	log.Info().Msgf("🚀 Run %s started: feature=%s trigger=%s", id, feature, trigger)

	cat, err := r.setup(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("❌ Run %s aborted during setup", id)
		r.tracker.Fail(ctx, id, err.Error())
		return summary, err
	}

	st := &run{
		Runner:     r,
		id:         id,
		cat:        cat,
		today:      dates.Of(r.now().In(dates.Location())),
		runCache:   r.newRunCache(id),
		milestones: tracker.NewMilestones(10),
	}
	log.Info().Msgf("📋 %d instruments, run date %s", len(cat.Codes), st.today)

	for i, stage := range stages {
		outcomes := st.runStage(ctx, stage, i, len(stages))
		stats := batch.Tally(outcomes)
		summary.Stats = summary.Stats.Add(stats)
		summary.Failures = append(summary.Failures, batch.Failures(outcomes)...)
		log.Info().Msgf("✅ Stage %s: %d ok, %d skipped, %d failed", stage, stats.Success, stats.Skipped, stats.Failed)
	}

	summary.Duration = time.Since(started)
	r.tracker.Complete(ctx, id, summary.Stats)
	for _, f := range summary.Failures {
		log.Warn().Err(f.Err).Msgf("⚠️  %s failed", f.Item)
	}
	log.Info().Msgf("🏁 Run %s finished in %v: %d ok, %d skipped, %d failed",
		id, summary.Duration.Round(time.Millisecond), summary.Stats.Success, summary.Stats.Skipped, summary.Stats.Failed)
	return summary, nil
}

// setup verifies the object store and loads the instrument list.
func (r *Runner) setup(ctx context.Context) (*Catalog, error) {
	if p, ok := r.objects.(storage.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := p.Ping(pingCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("object store unreachable: %w", err)
		}
	}
	cat, err := r.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot read instrument list: %w", err)
	}
	return cat, nil
}
