package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RawField is one entry of a provider record. The provider delivers either
// descriptor objects ({id, name, value}) or plain values under the record's
// own keys; both shapes are decoded into one of the variants below.
type RawField interface {
	rawField()
}

// NamedField is a descriptor entry whose field name travels as data.
type NamedField struct {
	ID    *int64
	Name  string
	Value any
}

// PlainField is a value stored directly under its key.
type PlainField struct {
	Key   string
	Value any
}

func (NamedField) rawField() {}
func (PlainField) rawField() {}

// RawRecord is a single loosely-typed provider transaction record.
type RawRecord struct {
	Fields map[string]RawField
	// Raw holds the record bytes as received, kept for audit
	Raw json.RawMessage
}

// UnmarshalJSON decodes a record, classifying every entry as NamedField or PlainField.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	var entries map[string]json.RawMessage
	if err := decodeUseNumber(data, &entries); err != nil {
		return fmt.Errorf("failed to decode raw record: %w", err)
	}

	r.Raw = append(json.RawMessage(nil), data...)
	r.Fields = make(map[string]RawField, len(entries))
	for key, entry := range entries {
		field, err := decodeRawField(key, entry)
		if err != nil {
			return fmt.Errorf("failed to decode field %q: %w", key, err)
		}
		r.Fields[key] = field
	}
	return nil
}

// MarshalJSON returns the original bytes so audit copies stay byte-identical.
func (r RawRecord) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	out := make(map[string]any, len(r.Fields))
	for key, f := range r.Fields {
		switch f := f.(type) {
		case NamedField:
			out[key] = map[string]any{"id": f.ID, "name": f.Name, "value": f.Value}
		case PlainField:
			out[key] = f.Value
		}
	}
	return json.Marshal(out)
}

func decodeRawField(key string, entry json.RawMessage) (RawField, error) {
	trimmed := bytes.TrimSpace(entry)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return PlainField{Key: key}, nil
	}

	var value any
	if err := decodeUseNumber(trimmed, &value); err != nil {
		return nil, err
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return PlainField{Key: key, Value: value}, nil
	}
	_, hasName := obj["name"]
	_, hasValue := obj["value"]
	if !hasName && !hasValue {
		return PlainField{Key: key, Value: value}, nil
	}

	field := NamedField{Value: obj["value"]}
	if name, ok := obj["name"].(string); ok {
		field.Name = strings.TrimSpace(name)
	}
	if id, ok := obj["id"].(json.Number); ok {
		if n, err := id.Int64(); err == nil {
			field.ID = &n
		}
	}
	return field, nil
}

func decodeUseNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ResolvedFields is the flat view of a RawRecord.
type ResolvedFields struct {
	// ByName maps field names (descriptor name, else the record key) to values
	ByName map[string]any
	// ByColumn maps provider column ids to values
	ByColumn map[int64]any
}

// Resolve flattens the record once. Keys are visited in sorted order and the
// first non-nil value wins, so the result does not depend on map ordering.
func (r *RawRecord) Resolve() ResolvedFields {
	resolved := ResolvedFields{
		ByName:   make(map[string]any, len(r.Fields)),
		ByColumn: make(map[int64]any),
	}

	keys := make([]string, 0, len(r.Fields))
	for key := range r.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var (
			name   string
			value  any
			column *int64
		)
		switch f := r.Fields[key].(type) {
		case NamedField:
			name, value, column = f.Name, f.Value, f.ID
			if name == "" {
				name = key
			}
		case PlainField:
			name, value = key, f.Value
		}
		if column == nil {
			column = columnFromKey(key)
		}

		if existing, ok := resolved.ByName[name]; !ok || existing == nil {
			resolved.ByName[name] = value
		}
		if column != nil {
			if existing, ok := resolved.ByColumn[*column]; !ok || existing == nil {
				resolved.ByColumn[*column] = value
			}
		}
	}
	return resolved
}

// columnFromKey extracts N from keys of the form "columnN".
func columnFromKey(key string) *int64 {
	rest, ok := strings.CutPrefix(strings.ToLower(key), "column")
	if !ok || rest == "" {
		return nil
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
