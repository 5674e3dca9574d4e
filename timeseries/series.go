package timeseries

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"

	"idx-flow/dates"
)

// Series is a persisted payload split into rows.
type Series struct {
	Rows []Row

	// Invalid holds lines whose date column does not parse. They take no part in
	// gap computation and are carried through rewrites verbatim.
	Invalid []string
}

// Days is the set of dates present in the series.
func (s *Series) Days() dates.Set {
	set := make(dates.Set, len(s.Rows))
	for _, r := range s.Rows {
		set.Add(r.Day)
	}
	return set
}

// Len is the number of parseable rows.
func (s *Series) Len() int { return len(s.Rows) }

// ParseSeries splits persisted content. Each line is parsed on its own so that one
// bad line never hides the rest.
func ParseSeries(e *Entity, data []byte) *Series {
	s := &Series{}
	first := true
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields, err := splitLine(line)
		if err != nil || len(fields) == 0 {
			s.Invalid = append(s.Invalid, line)
			first = false
			continue
		}
		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(fields[0]), e.Header[0]) {
				continue
			}
		}
		day, err := dates.Parse(fields[0])
		if err != nil {
			s.Invalid = append(s.Invalid, line)
			continue
		}
		row := Row{Day: day, Fields: fields}
		if e.SubColumn >= 0 && e.SubColumn < len(fields) {
			row.Sub = strings.TrimSpace(fields[e.SubColumn])
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

func splitLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

func encodeRows(buf *bytes.Buffer, header []string, rows []Row) error {
	w := csv.NewWriter(buf)
	if header != nil {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := w.Write(r.Fields); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// subLess orders sub-keys numerically when both are numbers.
func subLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}

func sortDescending(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Day != rows[j].Day {
			return rows[i].Day > rows[j].Day
		}
		return subLess(rows[i].Sub, rows[j].Sub)
	})
}

func sortAscending(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Day != rows[j].Day {
			return rows[i].Day < rows[j].Day
		}
		return subLess(rows[i].Sub, rows[j].Sub)
	})
}
