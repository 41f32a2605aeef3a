// Package normalize canonicalizes the lexical fields of postal addresses:
// street abbreviations, state names, country synonyms and ZIP+4 extensions.
// All functions are pure and safe for concurrent use.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/TFMV/avs/internal/address"
)

var (
	// Common patterns for comparison keys
	nonAlphaNumeric = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

	fiveDigits = regexp.MustCompile(`^\d{5}$`)
	zipPlus4   = regexp.MustCompile(`^(\d{5})-?(\d{4})$`)
)

// NormalizeStreet expands known abbreviations token by token. Unknown tokens
// keep their casing; token order and count are preserved and the result is
// joined with single spaces.
func NormalizeStreet(line string) string {
	words := strings.Fields(line)
	for i, word := range words {
		if expanded, ok := lookupStreetToken(word); ok {
			words[i] = expanded
		}
	}
	return strings.Join(words, " ")
}

// Street returns the canonical form of a street line: title-cased, then
// abbreviation-expanded.
func Street(line string) string {
	return NormalizeStreet(TitleCase(line))
}

func lookupStreetToken(word string) (string, bool) {
	key := strings.TrimSuffix(strings.ToLower(word), ".")
	expanded, ok := streetAbbreviations[key]
	return expanded, ok
}

// StreetEquivalents returns every lower-case spelling the abbreviation table
// treats as equal to token, sorted. It returns nil for unknown tokens.
func StreetEquivalents(token string) []string {
	key := strings.TrimSuffix(strings.ToLower(token), ".")
	eq, ok := equivalents[key]
	if !ok {
		return nil
	}
	out := make([]string, len(eq))
	copy(out, eq)
	return out
}

// NormalizeState maps a full state name to its two-letter code. Values of two
// characters or fewer are upper-cased; unknown names are returned upper-cased.
func NormalizeState(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	if len(v) <= 2 {
		return strings.ToUpper(v)
	}
	if code, ok := stateCodes[strings.ToLower(v)]; ok {
		return code
	}
	return strings.ToUpper(v)
}

// NormalizeCountry upper-cases a country and folds the United States synonyms
// into "US".
func NormalizeCountry(v string) string {
	upper := strings.ToUpper(strings.Join(strings.Fields(v), " "))
	if code, ok := countrySynonyms[upper]; ok {
		return code
	}
	return upper
}

// SynthesizePostalExtension appends the +4 extension of matched to submitted
// when submitted is a bare 5-digit ZIP and matched carries ZIP+4. Otherwise
// submitted is returned unchanged.
func SynthesizePostalExtension(submitted, matched string) string {
	if !fiveDigits.MatchString(submitted) {
		return submitted
	}
	m := zipPlus4.FindStringSubmatch(strings.TrimSpace(matched))
	if m == nil {
		return submitted
	}
	return submitted + "-" + m[2]
}

// ValidPostalCode reports whether code is a 5-digit ZIP or a ZIP+4.
func ValidPostalCode(code string) bool {
	return address.ValidPostalCode(code)
}

// TitleCase upper-cases every letter that starts the string or follows a
// character that is neither a letter nor a digit, and lower-cases the rest.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevAlnum := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if prevAlnum {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevAlnum = true
		case unicode.IsDigit(r):
			b.WriteRune(r)
			prevAlnum = true
		default:
			b.WriteRune(r)
			prevAlnum = false
		}
	}
	return b.String()
}

// Line2 returns the canonical secondary line form.
func Line2(v string) string {
	return TitleCase(strings.Join(strings.Fields(v), " "))
}

// City returns the canonical city form.
func City(v string) string {
	return TitleCase(strings.Join(strings.Fields(v), " "))
}

// Address returns the canonical form of a, as stored in the reference data.
// The input is not modified.
func Address(a address.Address) address.Address {
	out := a.Clone()
	out.AddressLine1 = Street(a.AddressLine1)
	out.AddressLine2 = Line2(a.AddressLine2)
	out.City = City(a.City)
	out.StateProv = NormalizeState(a.StateProv)
	out.PostalCode = strings.TrimSpace(a.PostalCode)
	out.Country = NormalizeCountry(a.Country)
	return out
}

// Key returns a comparison key for free text: lower-cased, punctuation
// removed, abbreviations expanded and whitespace collapsed.
func Key(input string) string {
	if input == "" {
		return ""
	}

	// Remove punctuation
	normalized := nonAlphaNumeric.ReplaceAllString(strings.ToLower(input), " ")

	// Standardize abbreviations
	words := strings.Fields(normalized)
	for i, word := range words {
		if expanded, ok := streetAbbreviations[word]; ok {
			words[i] = strings.ToLower(expanded)
		}
	}

	return strings.Join(words, " ")
}
