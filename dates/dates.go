// Package dates is the single place where trading dates are parsed and compared.
//
// Upstream payloads and previously persisted series mix dash and slash separated dates,
// sometimes with a time suffix. Every component normalizes through Parse so that two
// spellings of the same calendar day always produce the same Day key.
package dates

import (
	"fmt"
	"strings"
	"time"
)

// MarketTimeZone is the exchange's local zone (WIB).
const MarketTimeZone = "Asia/Jakarta"

// Layout is the canonical serialization of a Day.
const Layout = "2006-01-02"

// Accepted input layouts, tried in order. Year-first layouts come first so that
// "2024/01/05" is never read as day-first.
var layouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Day is a calendar day encoded as yyyymmdd. The zero value is not a valid day.
type Day int

// ParseError reports a value that matched none of the accepted layouts.
type ParseError struct {
	Value string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable date %q", e.Value)
}

// Parse normalizes s to a Day.
func Parse(s string) (Day, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, &ParseError{Value: s}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return Of(t), nil
		}
	}
	return 0, &ParseError{Value: s}
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(s string) Day {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Of returns the calendar day of t in t's own location.
func Of(t time.Time) Day {
	y, m, d := t.Date()
	return Day(y*10000 + int(m)*100 + d)
}

// Today returns the current exchange-local day.
func Today() Day {
	return Of(time.Now().In(Location()))
}

// Location returns the exchange zone, falling back to a fixed UTC+7 offset.
func Location() *time.Location {
	loc, err := time.LoadLocation(MarketTimeZone)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Date(int(d)/10000, time.Month(int(d)/100%100), int(d)%100, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts by n calendar days.
func (d Day) AddDays(n int) Day {
	return Of(d.Time().AddDate(0, 0, n))
}

// String renders the canonical layout.
func (d Day) String() string {
	if d == 0 {
		return ""
	}
	return d.Time().Format(Layout)
}

// IsZero reports whether d is unset.
func (d Day) IsZero() bool { return d == 0 }

// Range returns every calendar day in [from, to], ascending. Empty if from > to.
func Range(from, to Day) []Day {
	if from > to {
		return nil
	}
	var out []Day
	for d := from; d <= to; d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Lookback returns [today-days, today] inclusive.
func Lookback(today Day, days int) []Day {
	return Range(today.AddDays(-days), today)
}

// Set is a membership set of days.
type Set map[Day]struct{}

// NewSet builds a Set from days.
func NewSet(days ...Day) Set {
	s := make(Set, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(d Day) bool {
	_, ok := s[d]
	return ok
}

// Add inserts d.
func (s Set) Add(d Day) { s[d] = struct{}{} }

// Missing returns the days of required that are not in s, preserving required's order.
func (s Set) Missing(required []Day) []Day {
	var out []Day
	for _, d := range required {
		if !s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}
