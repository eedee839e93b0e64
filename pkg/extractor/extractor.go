// Package extractor pulls values out of loosely-shaped JSON payloads by
// dot-notation path. The job change stream carries fields either flat or
// nested under an address object depending on which backend version emitted
// the event, so lookups go through paths instead of struct tags.
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Extractor handles extracting values from nested data structures
type Extractor struct{}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{}
}

// Extract extracts a value from data using a dot-notation path.
// Supported syntax:
// - Simple path: "name", "address.city"
// - Array access: "items[0]", "results[2].value"
func (e *Extractor) Extract(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	current := data
	for _, part := range parsePath(path) {
		var err error
		current, err = extractPart(current, part)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
	}

	return current, nil
}

// ExtractString extracts a value and converts it to a string.
// Returns nil when the path resolves to nothing.
func (e *Extractor) ExtractString(data any, path string) (*string, error) {
	value, err := e.Extract(data, path)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	s := toString(value)
	return &s, nil
}

// ExtractFirstString tries each path in order and returns the first non-empty
// string it finds.
func (e *Extractor) ExtractFirstString(data any, paths ...string) *string {
	for _, path := range paths {
		s, err := e.ExtractString(data, path)
		if err != nil || s == nil || *s == "" {
			continue
		}
		return s
	}
	return nil
}

// ExtractTime extracts a value and parses it as an RFC3339 or date-only
// timestamp. Returns nil when the path resolves to nothing or the value does
// not parse.
func (e *Extractor) ExtractTime(data any, path string) *time.Time {
	s, err := e.ExtractString(data, path)
	if err != nil || s == nil || *s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

// FromJSON parses JSON data and returns it as a map
func FromJSON(data json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type pathPart struct {
	key        string
	arrayIndex int // -1 when no index access
}

func parsePath(path string) []pathPart {
	var parts []pathPart
	for _, segment := range strings.Split(path, ".") {
		part := pathPart{key: segment, arrayIndex: -1}
		if open := strings.IndexByte(segment, '['); open >= 0 && strings.HasSuffix(segment, "]") {
			part.key = segment[:open]
			if idx, err := strconv.Atoi(segment[open+1 : len(segment)-1]); err == nil {
				part.arrayIndex = idx
			}
		}
		parts = append(parts, part)
	}
	return parts
}

func extractPart(value any, part pathPart) (any, error) {
	if part.key != "" {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object at %q, got %T", part.key, value)
		}
		value = m[part.key]
	}

	if part.arrayIndex >= 0 {
		arr, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array for index access, got %T", value)
		}
		if part.arrayIndex >= len(arr) {
			return nil, nil
		}
		value = arr[part.arrayIndex]
	}

	return value, nil
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
