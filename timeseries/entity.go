// Package timeseries keeps per-instrument CSV series in the object store complete
// over a rolling lookback window without disturbing rows already persisted.
package timeseries

import (
	"encoding/json"
	"fmt"
	"strconv"

	"idx-flow/dates"
	"idx-flow/marketdata"
)

// MergePolicy decides how fetched rows are combined with the persisted series.
type MergePolicy int

const (
	// MergeDefault re-sorts the union descending by date and dedups on RowKey.
	MergeDefault MergePolicy = iota
	// MergeAppendOnly appends new lines after the untouched persisted bytes.
	MergeAppendOnly
)

func (p MergePolicy) String() string {
	if p == MergeAppendOnly {
		return "append-only"
	}
	return "default"
}

// PlaceholderBroker marks a done-summary row written for an instrument the
// provider reported as not available.
const PlaceholderBroker = "N/A"

// RowKey identifies a row within one series.
type RowKey struct {
	Day dates.Day
	Sub string
}

// Row is one record of a series. Fields[0] is the date as persisted.
type Row struct {
	Day    dates.Day
	Sub    string
	Fields []string
}

// Key returns the dedup key.
func (r Row) Key() RowKey { return RowKey{Day: r.Day, Sub: r.Sub} }

// Entity describes one kind of series.
type Entity struct {
	Name        string
	Granularity marketdata.Granularity
	Header      []string
	Policy      MergePolicy

	// SubColumn is the column holding the secondary key, or -1.
	SubColumn int

	// PlaceholderOnUnavailable writes one placeholder row per missing date when the
	// provider answers not-available, so the gap is not retried every run.
	PlaceholderOnUnavailable bool

	decode func(code string, raw []json.RawMessage) []Row
}

// ObjectKey is where the series for code is persisted.
func (e *Entity) ObjectKey(code string) string {
	return fmt.Sprintf("series/%s/%s.csv", e.Name, code)
}

// Decode converts provider records into rows. Malformed records are dropped.
func (e *Entity) Decode(code string, raw []json.RawMessage) []Row {
	return e.decode(code, raw)
}

func (e *Entity) placeholder(day dates.Day) Row {
	fields := make([]string, len(e.Header))
	fields[0] = day.String()
	for i := 1; i < len(fields); i++ {
		fields[i] = PlaceholderBroker
	}
	return Row{Day: day, Sub: PlaceholderBroker, Fields: fields}
}

var (
	// OHLCV is the daily price/volume series.
	OHLCV = &Entity{
		Name:        "ohlcv",
		Granularity: marketdata.Daily,
		Header:      []string{"date", "open", "high", "low", "close", "volume", "value", "frequency"},
		Policy:      MergeDefault,
		SubColumn:   -1,
		decode:      decodeBars,
	}

	// BidAsk is the per-price order book volume series.
	BidAsk = &Entity{
		Name:        "bidask",
		Granularity: marketdata.OrderBook,
		Header:      []string{"date", "price", "bid_volume", "ask_volume", "bid_frequency", "ask_frequency"},
		Policy:      MergeDefault,
		SubColumn:   1,
		decode:      decodeLevels,
	}

	// DoneSummary is the per-broker done summary tape.
	DoneSummary = &Entity{
		Name:                     "donesummary",
		Granularity:              marketdata.Broker,
		Header:                   []string{"date", "broker", "buy_volume", "buy_value", "sell_volume", "sell_value"},
		Policy:                   MergeAppendOnly,
		SubColumn:                1,
		PlaceholderOnUnavailable: true,
		decode:                   decodeSummaries,
	}
)

// Entities returns every ingested entity in ingestion order.
func Entities() []*Entity {
	return []*Entity{OHLCV, BidAsk, DoneSummary}
}

// EntityByName finds an entity.
func EntityByName(name string) (*Entity, bool) {
	for _, e := range Entities() {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func decodeBars(code string, raw []json.RawMessage) []Row {
	bars, _ := marketdata.Decode[marketdata.DailyBar](code, raw)
	rows := make([]Row, 0, len(bars))
	for _, b := range bars {
		day, err := dates.Parse(b.Date)
		if err != nil {
			continue
		}
		rows = append(rows, Row{Day: day, Fields: []string{
			day.String(),
			num(b.Open.Float64), num(b.High.Float64), num(b.Low.Float64), num(b.Close.Float64),
			num(b.Volume.Float64), num(b.Value.Float64), num(b.Frequency.Float64),
		}})
	}
	return rows
}

func decodeLevels(code string, raw []json.RawMessage) []Row {
	levels, _ := marketdata.Decode[marketdata.OrderBookLevel](code, raw)
	rows := make([]Row, 0, len(levels))
	for _, l := range levels {
		day, err := dates.Parse(l.Date)
		if err != nil {
			continue
		}
		price := num(l.Price.Float64)
		rows = append(rows, Row{Day: day, Sub: price, Fields: []string{
			day.String(), price,
			num(l.BidVolume.Float64), num(l.AskVolume.Float64),
			num(l.BidFrequency.Float64), num(l.AskFrequency.Float64),
		}})
	}
	return rows
}

func decodeSummaries(code string, raw []json.RawMessage) []Row {
	sums, _ := marketdata.Decode[marketdata.BrokerSummary](code, raw)
	rows := make([]Row, 0, len(sums))
	for _, s := range sums {
		day, err := dates.Parse(s.Date)
		if err != nil {
			continue
		}
		rows = append(rows, Row{Day: day, Sub: s.Broker, Fields: []string{
			day.String(), s.Broker,
			num(s.BuyVolume.Float64), num(s.BuyValue.Float64),
			num(s.SellVolume.Float64), num(s.SellValue.Float64),
		}})
	}
	return rows
}
