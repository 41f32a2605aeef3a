package query

import (
	"regexp"
	"strings"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/normalize"
)

// DefaultFuzzyLimit caps the candidate set of a fuzzy lookup.
const DefaultFuzzyLimit = 200

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Text is a free-text lookup over addressLine1, optionally scoped by country.
type Text struct {
	Terms   string
	Country string
	Limit   int
}

// BuildFuzzy derives the broad keyword lookup used when no exact match exists.
func BuildFuzzy(a address.Address, limit int) Text {
	if limit <= 0 {
		limit = DefaultFuzzyLimit
	}
	return Text{
		Terms:   strings.TrimSpace(a.AddressLine1),
		Country: normalize.NormalizeCountry(a.Country),
		Limit:   limit,
	}
}

// Rank counts the distinct search terms found in the stored street line. A
// zero rank means the record does not match.
func (q Text) Rank(a address.Address) int {
	if q.Country != "" && a.Country != q.Country {
		return 0
	}
	have := make(map[string]struct{})
	for _, w := range strings.Fields(normalize.Key(a.AddressLine1)) {
		have[w] = struct{}{}
	}
	seen := make(map[string]struct{})
	rank := 0
	for _, w := range strings.Fields(normalize.Key(q.Terms)) {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := have[w]; ok {
			rank++
		}
	}
	return rank
}

// Words returns the distinct lower-case search words, each known
// abbreviation widened to all of its spellings. Words contain only letters
// and digits, so backends may splice them into their own query syntax.
func (q Text) Words() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(q.Terms), -1) {
		alts := normalize.StreetEquivalents(w)
		if alts == nil {
			alts = []string{w}
		}
		for _, alt := range alts {
			if _, ok := seen[alt]; ok {
				continue
			}
			seen[alt] = struct{}{}
			out = append(out, alt)
		}
	}
	return out
}
