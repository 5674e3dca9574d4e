package accumulation

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"idx-flow/dates"
	"idx-flow/storage"
)

// Header lists the columns of an accumulation file.
func Header() []string {
	h := []string{"Code", "Sector", "D0", "D1", "D2", "D3", "D4", "W1", "W2", "W3", "W4", "%1D"}
	for _, w := range VolumeWindows {
		h = append(h, fmt.Sprintf("VolChg%dD", w))
	}
	for _, p := range MAPeriods {
		h = append(h, fmt.Sprintf("AboveMA%d", p))
	}
	return h
}

// ObjectKey is accumulation/<date>.csv.
func ObjectKey(date dates.Day) string {
	return fmt.Sprintf("accumulation/%s.csv", date)
}

// Encode renders records, flows as whole units and percentages to 2dp.
func Encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header()); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{r.Code, r.Sector}
		for _, d := range r.D {
			row = append(row, d.StringFixed(0))
		}
		for _, wk := range r.W {
			row = append(row, wk.StringFixed(0))
		}
		row = append(row, r.Change1D.StringFixed(2))
		for _, v := range r.VolChg {
			row = append(row, v.StringFixed(2))
		}
		for _, m := range r.AboveMA {
			row = append(row, strconv.Itoa(m))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Write persists the file for date.
func Write(ctx context.Context, store storage.ObjectStore, date dates.Day, records []Record) error {
	data, err := Encode(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ObjectKey(date), err)
	}
	if err := store.Put(ctx, ObjectKey(date), data, storage.ContentTypeCSV); err != nil {
		return fmt.Errorf("put %s: %w", ObjectKey(date), err)
	}
	return nil
}
