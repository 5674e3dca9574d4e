// Package batch runs a per-item operation over a list with bounded parallelism.
//
// Items are processed in fixed-size batches. Within a batch at most Concurrency items
// are in flight. A failing or panicking item is recorded in its Outcome and never
// stops the other items of the batch or the batches after it.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Result is what an ItemFunc reports for an item that did not fail.
type Result struct {
	Skipped bool
	Note    string
}

// ItemFunc processes one item.
type ItemFunc func(ctx context.Context, item string) (Result, error)

// Outcome is the per-item record returned by Run, in input order.
type Outcome struct {
	Item    string
	Success bool
	Skipped bool
	Note    string
	Err     error
}

// Stats is the aggregate of a run's outcomes.
type Stats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add merges other into s.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		Total:   s.Total + other.Total,
		Success: s.Success + other.Success,
		Skipped: s.Skipped + other.Skipped,
		Failed:  s.Failed + other.Failed,
	}
}

// Controller holds the pacing parameters.
type Controller struct {
	BatchSize   int
	Concurrency int
	YieldDelay  time.Duration

	// OnBatchDone is called after each batch with the number of items finished so far.
	OnBatchDone func(done, total int)
}

// NewController returns a controller with sane lower bounds.
func NewController(batchSize, concurrency int, yield time.Duration) *Controller {
	if batchSize < 1 {
		batchSize = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Controller{BatchSize: batchSize, Concurrency: concurrency, YieldDelay: yield}
}

// Run processes items and returns one Outcome per item at the item's input index.
// Once ctx is cancelled, items of batches that have not started are reported as failed
// with the context error.
func (c *Controller) Run(ctx context.Context, items []string, fn ItemFunc) []Outcome {
	outcomes := make([]Outcome, len(items))
	for i, item := range items {
		outcomes[i].Item = item
	}

	batchSize := c.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	limit := c.Concurrency
	if limit < 1 {
		limit = 1
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				outcomes[i].Err = err
			}
			log.Warn().Err(err).Int("remaining", len(items)-start).Msg("⚠️  Batch run interrupted")
			return outcomes
		}

		var g errgroup.Group
		g.SetLimit(limit)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i] = runItem(ctx, items[i], fn)
				return nil
			})
		}
		_ = g.Wait()

		if c.OnBatchDone != nil {
			c.OnBatchDone(end, len(items))
		}

		if end < len(items) && c.YieldDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.YieldDelay):
			}
		}
	}

	return outcomes
}

func runItem(ctx context.Context, item string, fn ItemFunc) (out Outcome) {
	out.Item = item
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Item: item, Err: fmt.Errorf("panic processing %s: %v", item, r)}
		}
	}()

	res, err := fn(ctx, item)
	if err != nil {
		out.Err = err
		return out
	}
	out.Success = true
	out.Skipped = res.Skipped
	out.Note = res.Note
	return out
}

// Tally counts outcomes. A skipped item counts as skipped, not success.
func Tally(outcomes []Outcome) Stats {
	s := Stats{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			s.Failed++
		case o.Skipped:
			s.Skipped++
		default:
			s.Success++
		}
	}
	return s
}

// Failures returns the failed outcomes.
func Failures(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}
