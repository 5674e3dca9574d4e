// Package inventory tracks each broker's running net position in an instrument.
package inventory

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"idx-flow/dates"
	"idx-flow/storage"
	"idx-flow/timeseries"
)

// Record is one day of a broker's position.
type Record struct {
	Broker     string
	Code       string
	Date       dates.Day
	NetBuy     decimal.Decimal
	Cumulative decimal.Decimal
	Baseline   bool
}

// Header is the column layout of an inventory file.
var Header = []string{"date", "broker", "code", "net_buy_volume", "cumulative_net_buy_volume"}

// ObjectKey is inventory/<BROKER>/<CODE>.csv.
func ObjectKey(broker, code string) string {
	return fmt.Sprintf("inventory/%s/%s.csv", broker, code)
}

// Calculate returns, per broker, the records for [from, to] sorted by date
// descending. Each series ends with a baseline row dated from-1 with cumulative 0.
func Calculate(code string, summaries []timeseries.Summary, from, to dates.Day) map[string][]Record {
	net := make(map[string]map[dates.Day]decimal.Decimal)
	for _, s := range summaries {
		if s.Day < from || s.Day > to || s.Broker == "" || s.Broker == timeseries.PlaceholderBroker {
			continue
		}
		days, ok := net[s.Broker]
		if !ok {
			days = make(map[dates.Day]decimal.Decimal)
			net[s.Broker] = days
		}
		days[s.Day] = days[s.Day].Add(s.BuyVolume.Sub(s.SellVolume))
	}

	out := make(map[string][]Record, len(net))
	for broker, days := range net {
		ordered := make([]dates.Day, 0, len(days))
		for d := range days {
			ordered = append(ordered, d)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

		recs := make([]Record, 0, len(ordered)+1)
		recs = append(recs, Record{Broker: broker, Code: code, Date: from.AddDays(-1), Baseline: true})
		cumulative := decimal.Zero
		for _, d := range ordered {
			cumulative = cumulative.Add(days[d])
			recs = append(recs, Record{Broker: broker, Code: code, Date: d, NetBuy: days[d], Cumulative: cumulative})
		}
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Date > recs[j].Date })
		out[broker] = recs
	}
	return out
}

// Encode renders one broker's records.
func Encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := w.Write([]string{r.Date.String(), r.Broker, r.Code, r.NetBuy.String(), r.Cumulative.String()}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Write persists every broker file for one instrument and returns how many were written.
func Write(ctx context.Context, store storage.ObjectStore, code string, byBroker map[string][]Record) (int, error) {
	brokers := make([]string, 0, len(byBroker))
	for b := range byBroker {
		brokers = append(brokers, b)
	}
	sort.Strings(brokers)

	for i, b := range brokers {
		data, err := Encode(byBroker[b])
		if err != nil {
			return i, fmt.Errorf("encode %s: %w", ObjectKey(b, code), err)
		}
		if err := store.Put(ctx, ObjectKey(b, code), data, storage.ContentTypeCSV); err != nil {
			return i, fmt.Errorf("put %s: %w", ObjectKey(b, code), err)
		}
	}
	return len(brokers), nil
}
