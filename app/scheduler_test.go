package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"idx-flow/pipeline"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, feature, trigger string) (*pipeline.Summary, error) {
	args := m.Called(feature, trigger)
	s, _ := args.Get(0).(*pipeline.Summary)
	return s, args.Error(1)
}

func TestSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	var calls atomic.Int32
	runner := new(mockRunner)
	runner.On("Run", pipeline.FeatureAll, "scheduled").Return(&pipeline.Summary{}, nil).
		Run(func(mock.Arguments) { calls.Add(1) })

	s := NewScheduler(runner, 20*time.Millisecond)
	finished := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(finished)
	}()

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerSurvivesFailures(t *testing.T) {
	var calls atomic.Int32
	count := func(mock.Arguments) { calls.Add(1) }
	runner := new(mockRunner)
	runner.On("Run", pipeline.FeatureAll, "scheduled").Return(nil, pipeline.ErrBusy).Once().Run(count)
	runner.On("Run", pipeline.FeatureAll, "scheduled").Return(nil, errors.New("instrument list: no such table")).Run(count)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(runner, 10*time.Millisecond)
	finished := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(finished)
	}()

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-finished
	runner.AssertCalled(t, "Run", pipeline.FeatureAll, "scheduled")
}

func TestNewSchedulerDefaultsInterval(t *testing.T) {
	assert.Equal(t, 24*time.Hour, NewScheduler(new(mockRunner), 0).interval)
}
