// Package accumulation derives multi-horizon net money flow, volume change and
// moving-average breadth per instrument for one trading date.
package accumulation

import (
	"sort"

	"github.com/shopspring/decimal"

	"idx-flow/dates"
	"idx-flow/timeseries"
)

var (
	// VolumeWindows are the look-back windows of the volume change ratios.
	VolumeWindows = [...]int{1, 3, 5, 10, 20, 50, 100}
	// MAPeriods are the moving-average breadth periods.
	MAPeriods = [...]int{5, 10, 20, 50, 100, 200}
	// WeekLengths are the trading-day lengths of W1..W4.
	WeekLengths = [...]int{5, 10, 15, 20}
)

var hundred = decimal.NewFromInt(100)

// DailyFlow is the net money flow of one trading day.
type DailyFlow struct {
	Day  dates.Day
	Flow decimal.Decimal
}

// Input is everything the engine needs for one instrument.
type Input struct {
	Code   string
	Sector string
	Flows  []DailyFlow
	Bars   []timeseries.Bar
}

// Record is one output row.
type Record struct {
	Code     string
	Sector   string
	Date     dates.Day
	D        [5]decimal.Decimal
	W        [len(WeekLengths)]decimal.Decimal
	Change1D decimal.Decimal
	VolChg   [len(VolumeWindows)]decimal.Decimal
	AboveMA  [len(MAPeriods)]int
}

// NetFlows sums price×bid − price×ask per day, ascending by day.
func NetFlows(levels []timeseries.Level) []DailyFlow {
	byDay := make(map[dates.Day]decimal.Decimal)
	for _, l := range levels {
		net := l.Price.Mul(l.BidVolume).Sub(l.Price.Mul(l.AskVolume))
		byDay[l.Day] = byDay[l.Day].Add(net)
	}
	out := make([]DailyFlow, 0, len(byDay))
	for d, f := range byDay {
		out = append(out, DailyFlow{Day: d, Flow: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// AvailableDates returns the days in [from, to] with flow for at least one input.
func AvailableDates(inputs []Input, from, to dates.Day) []dates.Day {
	set := make(dates.Set)
	for _, in := range inputs {
		for _, f := range in.Flows {
			if f.Day >= from && f.Day <= to {
				set.Add(f.Day)
			}
		}
	}
	out := make([]dates.Day, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build computes a record for every input with flow on asOf, sorted by code.
func Build(asOf dates.Day, inputs []Input) []Record {
	var out []Record
	for _, in := range inputs {
		if rec, ok := Compute(asOf, in); ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Compute derives the record of one instrument as of asOf. History after asOf is
// ignored. It reports false when the instrument has no flow on asOf.
func Compute(asOf dates.Day, in Input) (Record, bool) {
	flows := upTo(in.Flows, asOf)
	if len(flows) == 0 || flows[len(flows)-1].Day != asOf {
		return Record{}, false
	}

	rec := Record{Code: in.Code, Sector: in.Sector, Date: asOf}

	// D0 is today's flow; each Dn adds the flow n entries back.
	last := len(flows) - 1
	running := decimal.Zero
	for n := range rec.D {
		if last-n >= 0 {
			running = running.Add(flows[last-n].Flow)
		}
		rec.D[n] = running.Round(0)
	}

	for i, length := range WeekLengths {
		sum := decimal.Zero
		for k := 0; k < length && last-k >= 0; k++ {
			sum = sum.Add(flows[last-k].Flow)
		}
		rec.W[i] = sum.Round(0)
	}

	bars := barsUpTo(in.Bars, asOf)
	rec.Change1D = percentChange(bars)
	for i, w := range VolumeWindows {
		rec.VolChg[i] = volumeChange(bars, w)
	}
	for i, p := range MAPeriods {
		rec.AboveMA[i] = aboveMA(bars, p)
	}
	return rec, true
}

func upTo(flows []DailyFlow, asOf dates.Day) []DailyFlow {
	i := sort.Search(len(flows), func(i int) bool { return flows[i].Day > asOf })
	return flows[:i]
}

func barsUpTo(bars []timeseries.Bar, asOf dates.Day) []timeseries.Bar {
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Day > asOf })
	return bars[:i]
}

func percentChange(bars []timeseries.Bar) decimal.Decimal {
	if len(bars) < 2 {
		return decimal.Zero
	}
	prev := bars[len(bars)-2].Close
	if prev.IsZero() {
		return decimal.Zero
	}
	return bars[len(bars)-1].Close.Sub(prev).Div(prev).Mul(hundred).Round(2)
}

// volumeChange compares the latest volume with the mean of the w bars before it.
func volumeChange(bars []timeseries.Bar, w int) decimal.Decimal {
	last := len(bars) - 1
	if last < w {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, b := range bars[last-w : last] {
		sum = sum.Add(b.Volume)
	}
	mean := sum.Div(decimal.NewFromInt(int64(w)))
	if mean.IsZero() {
		return decimal.Zero
	}
	return bars[last].Volume.Sub(mean).Div(mean).Mul(hundred).Round(2)
}

// aboveMA is 1 when the latest close is above the p-bar SMA including today.
func aboveMA(bars []timeseries.Bar, p int) int {
	if len(bars) < p {
		return 0
	}
	sum := decimal.Zero
	for _, b := range bars[len(bars)-p:] {
		sum = sum.Add(b.Close)
	}
	sma := sum.Div(decimal.NewFromInt(int64(p)))
	if bars[len(bars)-1].Close.GreaterThan(sma) {
		return 1
	}
	return 0
}
