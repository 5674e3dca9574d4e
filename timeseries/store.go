package timeseries

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"idx-flow/cache"
	"idx-flow/dates"
	"idx-flow/marketdata"
	"idx-flow/storage"
)

// Result is the outcome of one Update.
type Result struct {
	Entity      string
	Code        string
	Skipped     bool
	Added       int
	Placeholder bool
	Reason      string
}

// Store runs the incremental fetch-and-merge for one (entity, instrument) at a time.
// It is safe for concurrent use on distinct instruments.
type Store struct {
	objects      storage.ObjectStore
	fetcher      marketdata.Fetcher
	runCache     cache.RunCache
	lookbackDays int
}

// NewStore creates a Store.
func NewStore(objects storage.ObjectStore, fetcher marketdata.Fetcher, runCache cache.RunCache, lookbackDays int) *Store {
	if runCache == nil {
		runCache = cache.NewMemoryRunCache()
	}
	return &Store{objects: objects, fetcher: fetcher, runCache: runCache, lookbackDays: lookbackDays}
}

// Load reads the persisted series for code. A missing object is an empty series.
func (s *Store) Load(ctx context.Context, e *Entity, code string) (*Series, error) {
	data, _, err := storage.ReadOptional(ctx, s.objects, e.ObjectKey(code))
	if err != nil {
		return nil, err
	}
	return ParseSeries(e, data), nil
}

func skipped(res Result, reason string) (Result, error) {
	res.Skipped = true
	res.Reason = reason
	return res, nil
}

// Update brings the series for code up to date as of today.
//
// Only dates missing from the persisted series inside [today-lookback, today] are
// taken from the response. When nothing is missing, nothing is fetched or written.
func (s *Store) Update(ctx context.Context, e *Entity, code string, today dates.Day) (Result, error) {
	res := Result{Entity: e.Name, Code: code}
	key := e.ObjectKey(code)

	raw, _, err := storage.ReadOptional(ctx, s.objects, key)
	if err != nil {
		return res, fmt.Errorf("load %s: %w", key, err)
	}
	existing := ParseSeries(e, raw)
	if n := len(existing.Invalid); n > 0 {
		log.Warn().Msgf("⚠️  %s: %d rows with unparseable dates ignored", key, n)
	}

	required := dates.Lookback(today, s.lookbackDays)
	missing := existing.Days().Missing(required)
	if len(missing) == 0 {
		return skipped(res, "complete")
	}

	if s.runCache.Done(ctx, e.Name, code) {
		return skipped(res, "already processed this run")
	}

	records, err := s.fetcher.Fetch(ctx, code, required[0], today, e.Granularity)
	var notAvailable *marketdata.NotAvailableError
	var dataErr *marketdata.DataError
	switch {
	case errors.As(err, &notAvailable):
		if !e.PlaceholderOnUnavailable {
			return skipped(res, "not available")
		}
		fresh := make([]Row, 0, len(missing))
		for _, d := range missing {
			fresh = append(fresh, e.placeholder(d))
		}
		res.Placeholder = true
		return s.write(ctx, e, key, raw, existing, fresh, res)
	case errors.As(err, &dataErr):
		log.Warn().Err(err).Msgf("⚠️  %s: payload rejected", key)
		return skipped(res, "bad payload")
	case err != nil:
		return res, err
	}

	if len(records) == 0 {
		return skipped(res, "no data")
	}

	want := dates.NewSet(missing...)
	var fresh []Row
	for _, r := range e.Decode(code, records) {
		if want.Has(r.Day) {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return skipped(res, "no new dates")
	}

	return s.write(ctx, e, key, raw, existing, fresh, res)
}

func (s *Store) write(ctx context.Context, e *Entity, key string, raw []byte, existing *Series, fresh []Row, res Result) (Result, error) {
	var (
		merged []byte
		added  int
		err    error
	)
	if e.Policy == MergeAppendOnly {
		merged, added, err = mergeAppendOnly(e, raw, fresh)
	} else {
		merged, added, err = mergeDefault(e, existing, fresh)
	}
	if err != nil {
		return res, err
	}
	if added == 0 {
		return skipped(res, "no new rows")
	}

	if err := s.objects.Put(ctx, key, merged, storage.ContentTypeCSV); err != nil {
		return res, fmt.Errorf("put %s: %w", key, err)
	}
	s.runCache.MarkDone(ctx, e.Name, res.Code)

	res.Added = added
	log.Debug().Msgf("💾 %s: +%d rows (%s)", key, added, e.Policy)
	return res, nil
}
