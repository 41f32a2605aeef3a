package similarity

import (
	"regexp"
	"strings"
)

// AddressSimilarity blends token overlap, Jaro-Winkler and containment, and
// penalizes differing house numbers.
type AddressSimilarity struct {
	tokenJaccard Jaccard
	jaroWinkler  JaroWinkler
	containedIn  ContainedIn

	numericRegex *regexp.Regexp
	unitRegex    *regexp.Regexp
}

// NewAddressSimilarity creates a new address similarity function
func NewAddressSimilarity() *AddressSimilarity {
	return &AddressSimilarity{
		jaroWinkler:  NewJaroWinkler(),
		numericRegex: regexp.MustCompile(`\d+`),
		unitRegex:    regexp.MustCompile(`(?i)(\s+)(apt|apartment|ste|suite|unit|#)\.?\s+[a-z0-9-]+`),
	}
}

// Compare calculates similarity between two street lines
func (f *AddressSimilarity) Compare(a, b string) float64 {
	// Handle empty strings
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	a = f.preprocess(a)
	b = f.preprocess(b)
	if a == b {
		return 1.0
	}

	// House numbers that disagree are a strong signal of a different address
	numberMatch := 1.0
	aNumbers := f.numericRegex.FindAllString(a, 1)
	bNumbers := f.numericRegex.FindAllString(b, 1)
	if len(aNumbers) > 0 && len(bNumbers) > 0 && aNumbers[0] != bNumbers[0] {
		numberMatch = 0.3
	}

	tokenScore := f.tokenJaccard.Compare(a, b)
	jaroScore := f.jaroWinkler.Compare(a, b)
	containmentScore := f.containedIn.Compare(a, b)

	combinedScore := (tokenScore * 0.5) + (jaroScore * 0.2) + (containmentScore * 0.3)
	return combinedScore * numberMatch
}

// preprocess drops unit designators and collapses whitespace
func (f *AddressSimilarity) preprocess(address string) string {
	address = f.unitRegex.ReplaceAllString(strings.ToLower(address), "")
	return strings.Join(strings.Fields(address), " ")
}

func (f *AddressSimilarity) Name() string {
	return "AddressSimilarity"
}
