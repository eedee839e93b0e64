// Package fingerprint produces deterministic hashes of job payloads so the
// processor can skip upserts that would not change anything.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate creates a deterministic fingerprint for a payload.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions creates a fingerprint excluding specified fields.
// excludeFields contains dot-notation paths ("updated_at", "meta.synced_at");
// excluding a parent path excludes everything under it.
func GenerateWithExclusions(data map[string]any, excludeFields map[string]bool) string {
	var b strings.Builder
	canonicalize(&b, data, excludeFields, "")

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// GenerateFromJSON creates a fingerprint from raw JSON
func GenerateFromJSON(data json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return Generate(m), nil
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

func canonicalize(b *strings.Builder, data any, excludeFields map[string]bool, currentPath string) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		first := true
		for _, k := range keys {
			fieldPath := k
			if currentPath != "" {
				fieldPath = currentPath + "." + k
			}
			if excluded(fieldPath, excludeFields) {
				continue
			}

			if !first {
				b.WriteByte(',')
			}
			first = false
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			canonicalize(b, v[k], excludeFields, fieldPath)
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(b, item, excludeFields, currentPath)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}

func excluded(fieldPath string, excludeFields map[string]bool) bool {
	if excludeFields == nil {
		return false
	}
	if excludeFields[fieldPath] {
		return true
	}
	for e := range excludeFields {
		if strings.HasPrefix(fieldPath, e+".") {
			return true
		}
	}
	return false
}
