// Package similarity scores how alike two street lines are.
package similarity

import (
	"math"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/mozillazg/go-unidecode"
	"github.com/xrash/smetrics"
)

// Function represents a similarity function interface
type Function interface {
	// Compare returns a similarity score between 0.0 and 1.0,
	// where 0.0 means completely different and 1.0 means identical
	Compare(a, b string) float64
	// Name returns the name of the similarity function
	Name() string
}

// Fold transliterates to ASCII, lower-cases and collapses whitespace so that
// scorers see "Cañon  Rd" and "canon rd" as the same text.
func Fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(unidecode.Unidecode(s))), " ")
}

// Score folds both inputs and returns fn's similarity on a 0-100 scale.
func Score(fn Function, a, b string) int {
	s := fn.Compare(Fold(a), Fold(b))
	switch {
	case s <= 0:
		return 0
	case s >= 1:
		return 100
	}
	return int(math.Round(s * 100))
}

// PartialRatio scores the best alignment of the shorter string against
// equally long windows of the longer one. Window candidates start at the
// matching blocks of a Ratcliff/Obershelp alignment.
type PartialRatio struct{}

func (f PartialRatio) Compare(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	best := 0.0
	for _, m := range matchingBlocks(shorter, longer) {
		start := m.j - m.i
		if start < 0 {
			start = 0
		}
		end := start + len(shorter)
		if end > len(longer) {
			end = len(longer)
		}

		r := ratio(shorter, longer[start:end])
		if r > 0.995 {
			return 1.0
		}
		if r > best {
			best = r
		}
	}
	return best
}

func (f PartialRatio) Name() string {
	return "PartialRatio"
}

// Levenshtein calculates similarity using edit distance
// Good for general string comparison where character-level edits matter
type Levenshtein struct{}

func (f Levenshtein) Compare(a, b string) float64 {
	// Handle empty strings
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	maxLen := max(len([]rune(a)), len([]rune(b)))

	// Convert distance to similarity score (0-1)
	return 1.0 - float64(distance)/float64(maxLen)
}

func (f Levenshtein) Name() string {
	return "Levenshtein"
}

// JaroWinkler implements the Jaro-Winkler similarity algorithm
// Good for short strings where a shared prefix matters
type JaroWinkler struct {
	// Jaro score above which the prefix boost applies, default is 0.7
	BoostThreshold float64
	// Prefix length to consider, default is 4
	PrefixLength int
}

func NewJaroWinkler() JaroWinkler {
	return JaroWinkler{
		BoostThreshold: 0.7,
		PrefixLength:   4,
	}
}

func (f JaroWinkler) Compare(a, b string) float64 {
	// Handle empty strings
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return smetrics.JaroWinkler(a, b, f.BoostThreshold, f.PrefixLength)
}

func (f JaroWinkler) Name() string {
	return "JaroWinkler"
}

// Jaccard calculates similarity using sets of tokens (words)
// Good for street lines where word overlap matters more than exact ordering
type Jaccard struct{}

func (f Jaccard) Compare(a, b string) float64 {
	// Handle empty strings
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	setA := make(map[string]bool)
	setB := make(map[string]bool)
	unionSet := make(map[string]bool)

	for _, token := range tokenize(a) {
		setA[token] = true
		unionSet[token] = true
	}

	for _, token := range tokenize(b) {
		setB[token] = true
		unionSet[token] = true
	}

	// Calculate intersection size
	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}

	if len(unionSet) == 0 {
		return 0.0
	}

	// Calculate Jaccard similarity: |A ∩ B| / |A ∪ B|
	return float64(intersection) / float64(len(unionSet))
}

func (f Jaccard) Name() string {
	return "Jaccard"
}

// ContainedIn checks if one string is contained in another
type ContainedIn struct{}

func (f ContainedIn) Compare(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	if strings.Contains(b, a) || strings.Contains(a, b) {
		// Return a score based on the length ratio of the shorter to the longer string
		minLen := min(len(a), len(b))
		maxLen := max(len(a), len(b))
		return float64(minLen) / float64(maxLen)
	}
	return 0.0
}

func (f ContainedIn) Name() string {
	return "ContainedIn"
}

// Helper function to tokenize a string into words
func tokenize(s string) []string {
	var tokens []string
	inToken := false
	start := 0

	// Process each rune in the string
	for i, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inToken {
				inToken = true
				start = i
			}
		} else {
			if inToken {
				inToken = false
				tokens = append(tokens, strings.ToLower(s[start:i]))
			}
		}
	}

	// Handle the last token if it ends at the end of the string
	if inToken {
		tokens = append(tokens, strings.ToLower(s[start:]))
	}

	return tokens
}
