package dataset

import (
	"bytes"
	"encoding/json"
	"time"
)

// Row is one record of a dataset table. Values holds the data columns; every
// value is a string or nil.
type Row struct {
	ID        int64
	Values    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time

	columns []string
}

// Columns returns the data column names in table order.
func (r Row) Columns() []string { return r.columns }

// MarshalJSON flattens the row to {"id":…, <columns>…, "created_at":…,
// "updated_at":…} with keys in table order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}
	if err := write("id", r.ID); err != nil {
		return nil, err
	}
	cols := r.columns
	if cols == nil {
		cols = sortedKeys(r.Values)
	}
	for _, c := range cols {
		if err := write(c, r.Values[c]); err != nil {
			return nil, err
		}
	}
	if err := write("created_at", timeOrNil(r.CreatedAt)); err != nil {
		return nil, err
	}
	if err := write("updated_at", timeOrNil(r.UpdatedAt)); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
