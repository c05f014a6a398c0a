package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Fields holds document attributes that have no dedicated struct field.
// They are preserved on decode and re-emitted on encode.
type Fields map[string]any

// Delete removes keys from f. Missing keys are ignored.
func (f Fields) Delete(keys ...string) {
	for _, k := range keys {
		delete(f, k)
	}
}

var knownKeysCache sync.Map // reflect.Type -> map[string]struct{}

// jsonKeys returns the JSON object keys a struct type encodes explicitly.
func jsonKeys(t reflect.Type) map[string]struct{} {
	if cached, ok := knownKeysCache.Load(t); ok {
		return cached.(map[string]struct{})
	}

	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		keys[name] = struct{}{}
	}

	knownKeysCache.Store(t, keys)
	return keys
}

// decodeWithExtra unmarshals data into dst (a pointer to struct) and returns
// the object keys dst does not model.
func decodeWithExtra(data []byte, dst any) (Fields, error) {
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	known := jsonKeys(reflect.TypeOf(dst).Elem())
	var extra Fields
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(Fields)
		}
		extra[k] = v
	}
	return extra, nil
}

// encodeWithExtra marshals src and merges extra keys into the object.
// Modelled fields win over extra keys of the same name.
func encodeWithExtra(src any, extra Fields) ([]byte, error) {
	base, err := json.Marshal(src)
	if err != nil || len(extra) == 0 {
		return base, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}

	for k, v := range extra {
		if _, ok := merged[k]; ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding field %q: %w", k, err)
		}
		merged[k] = raw
	}

	return json.Marshal(merged)
}

// Decode converts a raw document into a typed record.
func Decode(doc map[string]any, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}
