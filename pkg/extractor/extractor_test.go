package extractor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	e := New()

	data := map[string]any{
		"name": "Acme Site",
		"address": map[string]any{
			"city": "Portland",
			"zip":  "97201",
		},
		"items": []any{
			map[string]any{"value": "first"},
			map[string]any{"value": "second"},
		},
	}

	t.Run("simple path", func(t *testing.T) {
		value, err := e.Extract(data, "name")
		require.NoError(t, err)
		assert.Equal(t, "Acme Site", value)
	})

	t.Run("nested path", func(t *testing.T) {
		value, err := e.Extract(data, "address.city")
		require.NoError(t, err)
		assert.Equal(t, "Portland", value)
	})

	t.Run("array index", func(t *testing.T) {
		value, err := e.Extract(data, "items[1].value")
		require.NoError(t, err)
		assert.Equal(t, "second", value)
	})

	t.Run("index past the end is nil", func(t *testing.T) {
		value, err := e.Extract(data, "items[5]")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("missing key is nil, not an error", func(t *testing.T) {
		value, err := e.Extract(data, "address.street")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("path through a scalar errors", func(t *testing.T) {
		_, err := e.Extract(data, "name.inner")
		assert.Error(t, err)
	})

	t.Run("empty path returns the input", func(t *testing.T) {
		value, err := e.Extract(data, "")
		require.NoError(t, err)
		assert.Equal(t, data, value)
	})
}

func TestExtractString(t *testing.T) {
	e := New()

	data := map[string]any{
		"name":    "Acme",
		"gallons": 120.5,
		"active":  true,
	}

	t.Run("string value", func(t *testing.T) {
		s, err := e.ExtractString(data, "name")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "Acme", *s)
	})

	t.Run("number is formatted", func(t *testing.T) {
		s, err := e.ExtractString(data, "gallons")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "120.5", *s)
	})

	t.Run("bool is formatted", func(t *testing.T) {
		s, err := e.ExtractString(data, "active")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "true", *s)
	})

	t.Run("missing value is nil", func(t *testing.T) {
		s, err := e.ExtractString(data, "missing")
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestExtractFirstString(t *testing.T) {
	e := New()

	// Flat and nested layouts, the way different backend versions emit jobs.
	flat := map[string]any{"address_city": "Portland"}
	nested := map[string]any{"address": map[string]any{"city": "Salem"}}

	t.Run("first matching path wins", func(t *testing.T) {
		s := e.ExtractFirstString(flat, "address_city", "address.city")
		require.NotNil(t, s)
		assert.Equal(t, "Portland", *s)
	})

	t.Run("falls through to later paths", func(t *testing.T) {
		s := e.ExtractFirstString(nested, "address_city", "address.city")
		require.NotNil(t, s)
		assert.Equal(t, "Salem", *s)
	})

	t.Run("empty strings are skipped", func(t *testing.T) {
		data := map[string]any{"address_city": "", "city": "Eugene"}
		s := e.ExtractFirstString(data, "address_city", "city")
		require.NotNil(t, s)
		assert.Equal(t, "Eugene", *s)
	})

	t.Run("nothing found is nil", func(t *testing.T) {
		assert.Nil(t, e.ExtractFirstString(flat, "missing", "also.missing"))
	})
}

func TestExtractTime(t *testing.T) {
	e := New()

	t.Run("RFC3339", func(t *testing.T) {
		data := map[string]any{"completed_at": "2026-03-10T14:30:00Z"}
		ts := e.ExtractTime(data, "completed_at")
		require.NotNil(t, ts)
		assert.Equal(t, time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC), *ts)
	})

	t.Run("date only", func(t *testing.T) {
		data := map[string]any{"date_out": "2026-03-10"}
		ts := e.ExtractTime(data, "date_out")
		require.NotNil(t, ts)
		assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), *ts)
	})

	t.Run("unparseable is nil", func(t *testing.T) {
		data := map[string]any{"date_out": "next tuesday"}
		assert.Nil(t, e.ExtractTime(data, "date_out"))
	})

	t.Run("missing is nil", func(t *testing.T) {
		assert.Nil(t, e.ExtractTime(map[string]any{}, "date_out"))
	})
}

func TestFromJSON(t *testing.T) {
	m, err := FromJSON(json.RawMessage(`{"name":"Acme","gallons":120.5}`))
	require.NoError(t, err)
	assert.Equal(t, "Acme", m["name"])
	assert.Equal(t, 120.5, m["gallons"])

	_, err = FromJSON(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
