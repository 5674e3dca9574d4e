package timeseries

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"idx-flow/dates"
)

// Bar is a typed OHLCV row.
type Bar struct {
	Day       dates.Day
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Value     decimal.Decimal
	Frequency decimal.Decimal
}

// Level is a typed bid/ask row.
type Level struct {
	Day       dates.Day
	Price     decimal.Decimal
	BidVolume decimal.Decimal
	AskVolume decimal.Decimal
}

// Summary is a typed done-summary row.
type Summary struct {
	Day        dates.Day
	Broker     string
	BuyVolume  decimal.Decimal
	BuyValue   decimal.Decimal
	SellVolume decimal.Decimal
	SellValue  decimal.Decimal
}

func decimals(fields []string, from, n int) ([]decimal.Decimal, bool) {
	if len(fields) < from+n {
		return nil, false
	}
	out := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		v := strings.TrimSpace(fields[from+i])
		if v == "" {
			out[i] = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, false
		}
		out[i] = d
	}
	return out, true
}

// Bars returns one bar per day in ascending date order. Rows with bad numbers are skipped.
func Bars(s *Series) []Bar {
	seen := make(dates.Set, len(s.Rows))
	out := make([]Bar, 0, len(s.Rows))
	for _, r := range s.Rows {
		if seen.Has(r.Day) {
			continue
		}
		v, ok := decimals(r.Fields, 1, 7)
		if !ok {
			continue
		}
		seen.Add(r.Day)
		out = append(out, Bar{Day: r.Day, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4], Value: v[5], Frequency: v[6]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Levels returns the bid/ask rows in ascending date order.
func Levels(s *Series) []Level {
	out := make([]Level, 0, len(s.Rows))
	for _, r := range s.Rows {
		v, ok := decimals(r.Fields, 1, 3)
		if !ok {
			continue
		}
		out = append(out, Level{Day: r.Day, Price: v[0], BidVolume: v[1], AskVolume: v[2]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Summaries returns done-summary rows, placeholder rows excluded, ascending by date.
func Summaries(s *Series) []Summary {
	out := make([]Summary, 0, len(s.Rows))
	for _, r := range s.Rows {
		if r.Sub == "" || r.Sub == PlaceholderBroker {
			continue
		}
		v, ok := decimals(r.Fields, 2, 4)
		if !ok {
			continue
		}
		out = append(out, Summary{Day: r.Day, Broker: strings.ToUpper(r.Sub), BuyVolume: v[0], BuyValue: v[1], SellVolume: v[2], SellValue: v[3]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
