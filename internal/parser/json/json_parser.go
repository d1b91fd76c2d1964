// Package json turns structured record uploads into a header and rectangular
// rows.
//
// Accepted layouts:
//
//   - newline-delimited (or simply concatenated) JSON objects:
//     {"id":1,"name":"a"}
//     {"id":2,"name":"b"}
//   - a top-level array of objects: [{"id":1},{"id":2}]
//   - an envelope, a single object whose only member is such an array:
//     {"data":[{"id":1},{"id":2}]}
//
// Columns appear in first-seen key order across all records. Scalars become
// their textual form, nested objects and arrays are kept as compact JSON, and
// null or missing keys become nil.
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrEmpty is returned when the input holds no records.
var ErrEmpty = errors.New("json parser: no records")

type field struct {
	key string
	raw json.RawMessage
}

type object []field

// Decode reads every record from r.
func Decode(r io.Reader) ([]string, [][]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("json parser: read: %w", err)
	}
	objs, single, err := decodeObjects(data)
	if err != nil {
		return nil, nil, err
	}
	if single && len(objs[0]) == 1 && isArray(objs[0][0].raw) {
		env := objs[0][0]
		if objs, _, err = decodeObjects(env.raw); err != nil {
			return nil, nil, fmt.Errorf("json parser: envelope %q: %w", env.key, err)
		}
	}
	if len(objs) == 0 {
		return nil, nil, ErrEmpty
	}
	return tabulate(objs)
}

// decodeObjects reads all top-level values of data. single reports that the
// input was exactly one bare object.
func decodeObjects(data []byte) (objs []object, single bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	values := 0
	bare := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("json parser: decode: %w", err)
		}
		values++
		switch tok {
		case json.Delim('{'):
			obj, err := readObject(dec)
			if err != nil {
				return nil, false, err
			}
			objs = append(objs, obj)
			bare++
		case json.Delim('['):
			for i := 0; dec.More(); i++ {
				t, err := dec.Token()
				if err != nil {
					return nil, false, fmt.Errorf("json parser: decode: %w", err)
				}
				if t != json.Delim('{') {
					return nil, false, fmt.Errorf("json parser: element %d in array is not an object", i)
				}
				obj, err := readObject(dec)
				if err != nil {
					return nil, false, err
				}
				objs = append(objs, obj)
			}
			if _, err := dec.Token(); err != nil {
				return nil, false, fmt.Errorf("json parser: decode: %w", err)
			}
		default:
			return nil, false, fmt.Errorf("json parser: unsupported top-level value %v", tok)
		}
	}
	return objs, values == 1 && bare == 1, nil
}

// readObject reads the members of an object whose opening brace has been
// consumed, keeping their order.
func readObject(dec *json.Decoder) (object, error) {
	var obj object
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json parser: decode key: %w", err)
		}
		key, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("json parser: unexpected token %v", t)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("json parser: decode %q: %w", key, err)
		}
		obj = append(obj, field{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("json parser: decode: %w", err)
	}
	return obj, nil
}

func tabulate(objs []object) ([]string, [][]any, error) {
	var cols []string
	index := map[string]int{}
	for _, obj := range objs {
		for _, f := range obj {
			if _, ok := index[f.key]; !ok {
				index[f.key] = len(cols)
				cols = append(cols, f.key)
			}
		}
	}
	rows := make([][]any, len(objs))
	for i, obj := range objs {
		row := make([]any, len(cols))
		for _, f := range obj {
			v, err := scalar(f.raw)
			if err != nil {
				return nil, nil, fmt.Errorf("json parser: record %d key %q: %w", i, f.key, err)
			}
			row[index[f.key]] = v
		}
		rows[i] = row
	}
	return cols, rows, nil
}

// scalar converts one raw JSON value to a string or nil.
func scalar(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.String(), nil
	default:
		// numbers and booleans keep their literal spelling
		return string(raw), nil
	}
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
