// Package normalizers provides field normalization functions for invoice matching
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("nname", NormalizeName)
	Register("naddress", NormalizeAddress)
	Register("nzip", NormalizeZipCode)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

var (
	punctRe = regexp.MustCompile(`[.,]`)
	spaceRe = regexp.MustCompile(`\s+`)

	// Whole-word street suffix abbreviations. Word boundaries keep
	// "streeter ave" from becoming "ster ave".
	suffixReplacements = []struct {
		re   *regexp.Regexp
		abbr string
	}{
		{regexp.MustCompile(`\bstreet\b`), "st"},
		{regexp.MustCompile(`\bavenue\b`), "ave"},
		{regexp.MustCompile(`\bboulevard\b`), "blvd"},
		{regexp.MustCompile(`\bdrive\b`), "dr"},
		{regexp.MustCompile(`\broad\b`), "rd"},
		{regexp.MustCompile(`\blane\b`), "ln"},
		{regexp.MustCompile(`\bcourt\b`), "ct"},
		{regexp.MustCompile(`\bplace\b`), "pl"},
	}
)

// NormalizeAddress canonicalizes a street address for comparison: lowercase,
// periods and commas stripped, whitespace collapsed, street suffixes
// abbreviated. Applying it twice yields the same result.
func NormalizeAddress(s string) string {
	s = strings.ToLower(s)
	s = punctRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	for _, r := range suffixReplacements {
		s = r.re.ReplaceAllString(s, r.abbr)
	}
	return strings.TrimSpace(s)
}

// NormalizeZipCode normalizes a US zip code
func NormalizeZipCode(s string) string {
	digits := DigitsOnly(s)
	if len(digits) == 5 || len(digits) == 9 {
		return digits
	}
	return ""
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeName normalizes a customer or site name for matching
// - Lowercase
// - Remove extra whitespace
// - Remove punctuation
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
