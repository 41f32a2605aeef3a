package similarity

import (
	"fmt"
	"strings"
)

// DefaultName is the scorer used when none is configured.
const DefaultName = "partial_ratio"

// Registry provides access to the similarity functions by configuration name
type Registry struct {
	partialRatio Function
	levenshtein  Function
	jaroWinkler  Function
	jaccard      Function
	address      Function
}

// NewRegistry creates a new registry with all supported similarity functions
func NewRegistry() *Registry {
	return &Registry{
		partialRatio: PartialRatio{},
		levenshtein:  Levenshtein{},
		jaroWinkler:  NewJaroWinkler(),
		jaccard:      Jaccard{},
		address:      NewAddressSimilarity(),
	}
}

// Lookup returns the similarity function registered under name.
func (r *Registry) Lookup(name string) (Function, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "partial", "partial_ratio", "partialratio":
		return r.partialRatio, nil
	case "levenshtein", "editdistance":
		return r.levenshtein, nil
	case "jaro", "jarowinkler", "jaro_winkler":
		return r.jaroWinkler, nil
	case "jaccard", "token":
		return r.jaccard, nil
	case "address", "addresssimilarity":
		return r.address, nil
	default:
		return nil, fmt.Errorf("unknown similarity function %q", name)
	}
}

// GetByName returns a similarity function by name, falling back to the
// partial ratio for unknown names
func (r *Registry) GetByName(name string) Function {
	fn, err := r.Lookup(name)
	if err != nil {
		return r.partialRatio
	}
	return fn
}

// Names lists the canonical names of the registered functions
func (r *Registry) Names() []string {
	return []string{"partial_ratio", "levenshtein", "jaro_winkler", "jaccard", "address"}
}
