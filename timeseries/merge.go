package timeseries

import (
	"bytes"
	"fmt"
)

// dedupFresh drops fetched rows that repeat a key already seen.
func dedupFresh(seen map[RowKey]struct{}, fresh []Row) []Row {
	out := make([]Row, 0, len(fresh))
	for _, r := range fresh {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// mergeDefault writes header, the union sorted by date descending, then any invalid
// lines. Existing rows win over fetched rows with the same key and are never dropped.
func mergeDefault(e *Entity, existing *Series, fresh []Row) ([]byte, int, error) {
	seen := make(map[RowKey]struct{}, len(existing.Rows)+len(fresh))
	all := make([]Row, 0, len(existing.Rows)+len(fresh))
	for _, r := range existing.Rows {
		seen[r.Key()] = struct{}{}
		all = append(all, r)
	}
	added := dedupFresh(seen, fresh)
	all = append(all, added...)
	sortDescending(all)

	var buf bytes.Buffer
	if err := encodeRows(&buf, e.Header, all); err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", e.Name, err)
	}
	for _, line := range existing.Invalid {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), len(added), nil
}

// mergeAppendOnly returns raw followed by the new rows in ascending date order. The
// header is written only when raw is empty. raw is never parsed or rewritten.
func mergeAppendOnly(e *Entity, raw []byte, fresh []Row) ([]byte, int, error) {
	added := dedupFresh(make(map[RowKey]struct{}, len(fresh)), fresh)
	sortAscending(added)

	var buf bytes.Buffer
	var header []string
	if len(bytes.TrimSpace(raw)) == 0 {
		header = e.Header
	} else {
		buf.Write(raw)
		if raw[len(raw)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	if err := encodeRows(&buf, header, added); err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", e.Name, err)
	}
	return buf.Bytes(), len(added), nil
}
