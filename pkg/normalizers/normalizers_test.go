package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	t.Run("abbreviates street suffixes", func(t *testing.T) {
		assert.Equal(t, "123 main st", NormalizeAddress("123 Main Street"))
		assert.Equal(t, "456 oak ave", NormalizeAddress("456 Oak Avenue"))
		assert.Equal(t, "789 sunset blvd", NormalizeAddress("789 Sunset Boulevard"))
		assert.Equal(t, "12 ridge dr", NormalizeAddress("12 Ridge Drive"))
		assert.Equal(t, "34 mill rd", NormalizeAddress("34 Mill Road"))
		assert.Equal(t, "56 elm ln", NormalizeAddress("56 Elm Lane"))
		assert.Equal(t, "78 king ct", NormalizeAddress("78 King Court"))
		assert.Equal(t, "90 park pl", NormalizeAddress("90 Park Place"))
	})

	t.Run("strips periods and commas", func(t *testing.T) {
		assert.Equal(t, "123 main st suite 4", NormalizeAddress("123 Main St., Suite 4"))
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		assert.Equal(t, "123 main st", NormalizeAddress("  123   Main\tStreet "))
	})

	t.Run("only replaces whole words", func(t *testing.T) {
		assert.Equal(t, "10 streeter ave", NormalizeAddress("10 Streeter Avenue"))
		assert.Equal(t, "5 lanewood way", NormalizeAddress("5 Lanewood Way"))
	})

	t.Run("idempotent", func(t *testing.T) {
		once := NormalizeAddress("123 Main Street, Apt. 2")
		assert.Equal(t, once, NormalizeAddress(once))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", NormalizeAddress(""))
		assert.Equal(t, "", NormalizeAddress("   "))
	})

	t.Run("differently formatted addresses normalize equal", func(t *testing.T) {
		a := NormalizeAddress("123 MAIN STREET")
		b := NormalizeAddress("123 main st.")
		assert.Equal(t, a, b)
	})
}

func TestNormalizeZipCode(t *testing.T) {
	assert.Equal(t, "12345", NormalizeZipCode("12345"))
	assert.Equal(t, "123456789", NormalizeZipCode("12345-6789"))
	assert.Equal(t, "", NormalizeZipCode("1234"))
	assert.Equal(t, "", NormalizeZipCode("abcde"))
	assert.Equal(t, "", NormalizeZipCode(""))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "acme rentals llc", NormalizeName("ACME Rentals, LLC."))
	assert.Equal(t, "bobs site 2", NormalizeName("Bob's   Site #2"))
	assert.Equal(t, "", NormalizeName("  "))
}

func TestRegistry(t *testing.T) {
	t.Run("apply known normalizer", func(t *testing.T) {
		assert.Equal(t, "abc", Apply("ABC", "lowercase"))
	})

	t.Run("unknown normalizer is a no-op", func(t *testing.T) {
		assert.Equal(t, "ABC", Apply("ABC", "nope"))
	})

	t.Run("apply chain", func(t *testing.T) {
		assert.Equal(t, "acmeco", ApplyChain(" ACME Co. ", "trim", "lowercase", "remove_punctuation", "remove_whitespace"))
	})

	t.Run("get registered normalizer", func(t *testing.T) {
		fn, ok := Get("naddress")
		assert.True(t, ok)
		assert.Equal(t, "1 main st", fn("1 Main Street"))
	})
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "5551234", DigitsOnly("(555) 123-4"))
	assert.Equal(t, "", DigitsOnly("abc"))
}

func TestAlphanumeric(t *testing.T) {
	assert.Equal(t, "abc123", Alphanumeric("a-b c.1 2!3"))
}
