package orderflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"idx-flow/storage"
)

// Header is the column layout of every order-flow artifact.
var Header = []string{"Price", "HAKI/O", "Bor", "HAKI/F", "Bfreq", "HAKI", "HAKA", "Sfreq", "HAKA/F", "Sor", "HAKA/O", "Tfreq", "TLot", "TOr"}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// Encode renders an artifact as CSV.
func Encode(a Artifact) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, l := range a.Levels {
		row := []string{
			itoa(l.Price), l.HAKIPerOrder, itoa(l.Bor), l.HAKIPerFreq, itoa(l.BFreq),
			itoa(l.HAKI), itoa(l.HAKA), itoa(l.SFreq), l.HAKAPerFreq, itoa(l.Sor),
			l.HAKAPerOrder, itoa(l.TFreq), itoa(l.TLot), itoa(l.TOr),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Write persists artifacts and returns how many were written. It stops at the
// first store error.
func Write(ctx context.Context, store storage.ObjectStore, artifacts []Artifact) (int, error) {
	for i, a := range artifacts {
		data, err := Encode(a)
		if err != nil {
			return i, fmt.Errorf("encode %s: %w", a.Key.ObjectKey(), err)
		}
		if err := store.Put(ctx, a.Key.ObjectKey(), data, storage.ContentTypeCSV); err != nil {
			return i, fmt.Errorf("put %s: %w", a.Key.ObjectKey(), err)
		}
	}
	return len(artifacts), nil
}
