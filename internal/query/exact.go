package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/normalize"
)

// Exact is the structured lookup used by the exact-match resolver.
type Exact struct {
	// StreetPattern is an unanchored regular expression matched
	// case-insensitively against addressLine1. User text inside it is always
	// escaped.
	StreetPattern string

	// AddressLine2 constrains the second line only when non-empty.
	AddressLine2 string

	City      string
	StateProv string
	Country   string

	// PostalCode matches exactly; PostalPrefix matches any stored code that
	// starts with the same five digits.
	PostalCode   string
	PostalPrefix string
}

// BuildExact derives the exact-match predicate for a submitted address.
func BuildExact(a address.Address) Exact {
	return Exact{
		StreetPattern: StreetPattern(a.AddressLine1),
		AddressLine2:  normalize.Line2(a.AddressLine2),
		City:          normalize.City(a.City),
		StateProv:     normalize.NormalizeState(a.StateProv),
		Country:       normalize.NormalizeCountry(a.Country),
		PostalCode:    strings.TrimSpace(a.PostalCode),
		PostalPrefix:  postalPrefix(a.PostalCode),
	}
}

// StreetPattern renders a street line as an abbreviation-tolerant pattern.
// Every token is escaped; tokens known to the abbreviation table become an
// alternation of all their spellings, each optionally followed by a period.
func StreetPattern(line string) string {
	tokens := strings.Fields(line)
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		parts = append(parts, tokenPattern(tok))
	}
	return strings.Join(parts, `\s+`)
}

func tokenPattern(tok string) string {
	eq := normalize.StreetEquivalents(tok)
	if len(eq) == 0 {
		return regexp.QuoteMeta(tok)
	}
	quoted := make([]string, len(eq))
	for i, e := range eq {
		quoted[i] = regexp.QuoteMeta(e)
	}
	return `(?:` + strings.Join(quoted, "|") + `)\.?`
}

func postalPrefix(code string) string {
	code = strings.TrimSpace(code)
	if len(code) < 5 {
		return code
	}
	return code[:5]
}

// Compile returns the street pattern as a case-insensitive Go regexp.
func (q Exact) Compile() (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?i)` + q.StreetPattern)
	if err != nil {
		return nil, fmt.Errorf("compile street pattern: %w", err)
	}
	return re, nil
}

// Matches reports whether a stored address satisfies q. It is the reference
// semantics every backend reproduces.
func (q Exact) Matches(street *regexp.Regexp, a address.Address) bool {
	if !street.MatchString(a.AddressLine1) {
		return false
	}
	if q.AddressLine2 != "" && a.AddressLine2 != q.AddressLine2 {
		return false
	}
	if a.City != q.City || a.StateProv != q.StateProv || a.Country != q.Country {
		return false
	}
	return a.PostalCode == q.PostalCode || strings.HasPrefix(a.PostalCode, q.PostalPrefix)
}
