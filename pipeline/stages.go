package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"idx-flow/accumulation"
	"idx-flow/batch"
	"idx-flow/cache"
	"idx-flow/dates"
	"idx-flow/helpers"
	"idx-flow/inventory"
	"idx-flow/marketdata"
	"idx-flow/orderflow"
	"idx-flow/timeseries"
	"idx-flow/tracker"
)

// run is the state of one invocation.
type run struct {
	*Runner
	id         string
	cat        *Catalog
	today      dates.Day
	runCache   cache.RunCache
	milestones *tracker.Milestones
}

func (r *run) runStage(ctx context.Context, stage string, index, count int) []batch.Outcome {
	switch stage {
	case FeatureIngest:
		return r.ingest(ctx, index, count)
	case FeatureOrderFlow:
		return r.orderFlow(ctx, index, count)
	case FeatureAccumulation:
		return r.accumulation(ctx, index, count)
	case FeatureInventory:
		return r.inventory(ctx, index, count)
	}
	return nil
}

// controller reports progress of stage index out of count as overall milestones.
func (r *run) controller(ctx context.Context, stage string, index, count int) *batch.Controller {
	c := batch.NewController(r.opts.BatchSize, r.opts.Concurrency, r.opts.YieldDelay)
	c.OnBatchDone = func(done, total int) {
		overall := (index*total + done) * 100 / (count * total)
		if pct, ok := r.milestones.Cross(overall, 100); ok {
			r.tracker.Progress(ctx, r.id, pct, fmt.Sprintf("%s %d/%d", stage, done, total))
		}
	}
	return c
}

func (r *run) series() *timeseries.Store {
	return timeseries.NewStore(r.objects, r.fetcher, r.runCache, r.opts.LookbackDays)
}

func (r *run) ingest(ctx context.Context, index, count int) []batch.Outcome {
	store := r.series()
	items := make([]string, 0, len(r.cat.Codes)*len(timeseries.Entities()))
	for _, e := range timeseries.Entities() {
		for _, code := range r.cat.Codes {
			items = append(items, e.Name+"/"+code)
		}
	}

	return r.controller(ctx, FeatureIngest, index, count).Run(ctx, items, func(ctx context.Context, item string) (batch.Result, error) {
		name, code, _ := strings.Cut(item, "/")
		e, ok := timeseries.EntityByName(name)
		if !ok {
			return batch.Result{}, fmt.Errorf("unknown entity %s", name)
		}
		res, err := store.Update(ctx, e, code, r.today)
		if err != nil {
			return batch.Result{}, err
		}
		note := res.Reason
		if !res.Skipped {
			note = fmt.Sprintf("+%d rows", res.Added)
			if res.Placeholder {
				note += " (placeholder)"
			}
		}
		return batch.Result{Skipped: res.Skipped, Note: note}, nil
	})
}

func (r *run) orderFlow(ctx context.Context, index, count int) []batch.Outcome {
	return r.controller(ctx, FeatureOrderFlow, index, count).Run(ctx, r.cat.Codes, func(ctx context.Context, code string) (batch.Result, error) {
		raw, err := r.fetcher.Fetch(ctx, code, r.today, r.today, marketdata.Transactions)
		var notAvailable *marketdata.NotAvailableError
		var dataErr *marketdata.DataError
		switch {
		case errors.As(err, &notAvailable):
			return batch.Result{Skipped: true, Note: "not available"}, nil
		case errors.As(err, &dataErr):
			return batch.Result{Skipped: true, Note: "bad payload"}, nil
		case err != nil:
			return batch.Result{}, err
		}
		if len(raw) == 0 {
			return batch.Result{Skipped: true, Note: "no prints"}, nil
		}

		records, _ := marketdata.Decode[marketdata.TradeRecord](code, raw)
		prints := orderflow.FromRecords(code, records)
		artifacts := orderflow.Decompose(r.today, prints, r.cat.Ref)
		if len(artifacts) == 0 {
			return batch.Result{Skipped: true, Note: "no classified prints"}, nil
		}
		n, err := orderflow.Write(ctx, r.objects, artifacts)
		if err != nil {
			return batch.Result{}, err
		}
		var volume int64
		for _, p := range prints {
			volume += p.Volume
		}
		return batch.Result{Note: fmt.Sprintf("%d artifacts, %s traded", n, helpers.FormatLots(volume))}, nil
	})
}

// accumulation loads every instrument's history, then writes one file per date
// with order-book flow inside the backfill window.
func (r *run) accumulation(ctx context.Context, index, count int) []batch.Outcome {
	store := r.series()

	var (
		mu     sync.Mutex
		inputs []accumulation.Input
	)
	loads := r.controller(ctx, FeatureAccumulation, index, count).Run(ctx, r.cat.Codes, func(ctx context.Context, code string) (batch.Result, error) {
		book, err := store.Load(ctx, timeseries.BidAsk, code)
		if err != nil {
			return batch.Result{}, err
		}
		flows := accumulation.NetFlows(timeseries.Levels(book))
		if len(flows) == 0 {
			return batch.Result{Skipped: true, Note: "no order book history"}, nil
		}
		ohlcv, err := store.Load(ctx, timeseries.OHLCV, code)
		if err != nil {
			return batch.Result{}, err
		}

		mu.Lock()
		inputs = append(inputs, accumulation.Input{
			Code:   code,
			Sector: r.cat.Ref.Sector(code),
			Flows:  flows,
			Bars:   timeseries.Bars(ohlcv),
		})
		mu.Unlock()
		return batch.Result{}, nil
	})
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Code < inputs[j].Code })

	from := r.today.AddDays(-r.opts.AccumulationBackfillDays)
	var days []string
	for _, d := range accumulation.AvailableDates(inputs, from, r.today) {
		days = append(days, d.String())
	}

	writer := batch.NewController(r.opts.BatchSize, 1, 0)
	writes := writer.Run(ctx, days, func(ctx context.Context, day string) (batch.Result, error) {
		asOf, err := dates.Parse(day)
		if err != nil {
			return batch.Result{}, err
		}
		records := accumulation.Build(asOf, inputs)
		if err := accumulation.Write(ctx, r.objects, asOf, records); err != nil {
			return batch.Result{}, err
		}
		net := decimal.Zero
		for _, rec := range records {
			net = net.Add(rec.D[0])
		}
		return batch.Result{Note: fmt.Sprintf("%d instruments, net flow %s", len(records), helpers.FormatRupiah(net))}, nil
	})
	return append(loads, writes...)
}

func (r *run) inventory(ctx context.Context, index, count int) []batch.Outcome {
	store := r.series()
	from := r.today.AddDays(-r.opts.InventoryDays)

	return r.controller(ctx, FeatureInventory, index, count).Run(ctx, r.cat.Codes, func(ctx context.Context, code string) (batch.Result, error) {
		tape, err := store.Load(ctx, timeseries.DoneSummary, code)
		if err != nil {
			return batch.Result{}, err
		}
		byBroker := inventory.Calculate(code, timeseries.Summaries(tape), from, r.today)
		if len(byBroker) == 0 {
			return batch.Result{Skipped: true, Note: "no broker activity"}, nil
		}
		n, err := inventory.Write(ctx, r.objects, code, byBroker)
		if err != nil {
			return batch.Result{}, err
		}
		return batch.Result{Note: fmt.Sprintf("%d brokers", n)}, nil
	})
}
