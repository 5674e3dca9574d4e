package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"idx-flow/batch"
	"idx-flow/cache"
)

// Event types
const (
	EventCreated   = "run_created"
	EventProgress  = "run_progress"
	EventCompleted = "run_completed"
	EventFailed    = "run_failed"
)

// Event is pushed to notifiers on every tracker call.
type Event struct {
	Type    string       `json:"type"`
	RunID   string       `json:"run_id"`
	Feature string       `json:"feature,omitempty"`
	Percent int          `json:"percent"`
	Note    string       `json:"note,omitempty"`
	Stats   *batch.Stats `json:"stats,omitempty"`
	Message string       `json:"message,omitempty"`
	At      time.Time    `json:"at"`
}

// Notifier receives run events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Safe wraps a Tracker so that the pipeline never waits on or fails because of
// tracker availability. Errors are logged and dropped.
type Safe struct {
	inner     Tracker
	notifiers []Notifier

	mu       sync.Mutex
	features map[string]string
}

// NewSafe wraps inner. inner may be nil.
func NewSafe(inner Tracker, notifiers ...Notifier) *Safe {
	return &Safe{inner: inner, notifiers: notifiers, features: make(map[string]string)}
}

// Start creates a run. When the tracker is down a local id is returned so the
// run can still be correlated in logs.
func (s *Safe) Start(ctx context.Context, feature, trigger string) string {
	var id string
	if s.inner != nil {
		var err error
		id, err = s.inner.CreateRun(ctx, feature, trigger)
		if err != nil {
			log.Warn().Err(err).Msgf("⚠️  Run tracker unavailable, continuing untracked (%s)", feature)
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	s.features[id] = feature
	s.mu.Unlock()

	s.emit(ctx, Event{Type: EventCreated, RunID: id, Feature: feature})
	return id
}

// Progress records a milestone.
func (s *Safe) Progress(ctx context.Context, id string, percent int, note string) {
	if s.inner != nil {
		if err := s.inner.UpdateProgress(ctx, id, percent, note); err != nil {
			log.Warn().Err(err).Msgf("⚠️  Failed to update progress of run %s", id)
		}
	}
	s.emit(ctx, Event{Type: EventProgress, RunID: id, Percent: percent, Note: note})
}

// Complete records the terminal completed state.
func (s *Safe) Complete(ctx context.Context, id string, stats batch.Stats) {
	if s.inner != nil {
		if err := s.inner.MarkCompleted(ctx, id, stats); err != nil {
			log.Warn().Err(err).Msgf("⚠️  Failed to mark run %s completed", id)
		}
	}
	s.emit(ctx, Event{Type: EventCompleted, RunID: id, Percent: 100, Stats: &stats})
	s.forget(id)
}

// Fail records the terminal failed state.
func (s *Safe) Fail(ctx context.Context, id string, message string) {
	if s.inner != nil {
		if err := s.inner.MarkFailed(ctx, id, message); err != nil {
			log.Warn().Err(err).Msgf("⚠️  Failed to mark run %s failed", id)
		}
	}
	s.emit(ctx, Event{Type: EventFailed, RunID: id, Message: message})
	s.forget(id)
}

func (s *Safe) forget(id string) {
	s.mu.Lock()
	delete(s.features, id)
	s.mu.Unlock()
}

func (s *Safe) emit(ctx context.Context, ev Event) {
	if len(s.notifiers) == 0 {
		return
	}
	ev.At = time.Now()
	if ev.Feature == "" {
		s.mu.Lock()
		ev.Feature = s.features[ev.RunID]
		s.mu.Unlock()
	}
	for _, n := range s.notifiers {
		n.Notify(ctx, ev)
	}
}

// Milestones turns item progress into percent steps so the tracker is written at
// most once per step.
type Milestones struct {
	step int

	mu   sync.Mutex
	last int
}

// NewMilestones reports every step percent. step <= 0 means 10.
func NewMilestones(step int) *Milestones {
	if step <= 0 {
		step = 10
	}
	return &Milestones{step: step}
}

// Cross returns the milestone reached by done/total and true when it is new.
func (m *Milestones) Cross(done, total int) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	pct := done * 100 / total
	pct -= pct % m.step

	m.mu.Lock()
	defer m.mu.Unlock()
	if pct <= m.last {
		return m.last, false
	}
	m.last = pct
	return pct, true
}

const (
	lastRunKeyPrefix = "pipeline:last:"
	lastRunTTL       = 7 * 24 * time.Hour
)

// LastRunKey is where the final event of the latest run of feature is kept.
func LastRunKey(feature string) string { return lastRunKeyPrefix + feature }

type eventStore interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// RedisNotifier publishes events on a redis channel and keeps the terminal event
// of each feature's latest run.
type RedisNotifier struct {
	client  eventStore
	channel string
}

// NewRedisNotifier creates a notifier. A nil client yields nil.
func NewRedisNotifier(client *cache.RedisClient, channel string) *RedisNotifier {
	if client == nil {
		return nil
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes ev. Failures are logged at debug level.
func (r *RedisNotifier) Notify(ctx context.Context, ev Event) {
	if err := r.client.Publish(ctx, r.channel, ev); err != nil {
		log.Debug().Err(err).Msgf("publish %s", ev.Type)
	}
	if ev.Feature == "" || (ev.Type != EventCompleted && ev.Type != EventFailed) {
		return
	}
	if err := r.client.Set(ctx, LastRunKey(ev.Feature), ev, lastRunTTL); err != nil {
		log.Debug().Err(err).Msgf("store last run of %s", ev.Feature)
	}
}

// Last returns the terminal event of the latest finished run of feature, or nil
// when none is recorded.
func (r *RedisNotifier) Last(ctx context.Context, feature string) (*Event, error) {
	var ev Event
	err := r.client.Get(ctx, LastRunKey(feature), &ev)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
