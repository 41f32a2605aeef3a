package query

import (
	"errors"
	"regexp"
	"strings"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/normalize"
)

// DefaultListLimit is the page size of a listing when none is given.
const DefaultListLimit = 30

// ErrInvalidSort is returned for sort keys outside the whitelist.
var ErrInvalidSort = errors.New("invalid sort field")

var sortFields = map[string]string{
	"city":       FieldCity,
	"stateprov":  FieldStateProv,
	"postalcode": FieldPostalCode,
	"country":    FieldCountry,
}

// ParseSort maps a client sort key onto a field name, case-insensitively.
// An empty key means unsorted.
func ParseSort(key string) (string, error) {
	if key == "" {
		return "", nil
	}
	field, ok := sortFields[strings.ToLower(key)]
	if !ok {
		return "", ErrInvalidSort
	}
	return field, nil
}

// Filter selects records for the listing endpoint. Empty fields are
// unconstrained.
type Filter struct {
	AddressLine1 string
	City         string
	StateProv    string
	PostalCode   string
	Country      string
	ReferenceID  *int64
	Search       string
	Sort         string
	Limit        int
}

// Canonical returns f with its values cased the way records are stored and
// the limit defaulted.
func (f Filter) Canonical() Filter {
	out := f
	if f.City != "" {
		out.City = normalize.City(f.City)
	}
	out.StateProv = strings.ToUpper(strings.TrimSpace(f.StateProv))
	out.Country = strings.ToUpper(strings.TrimSpace(f.Country))
	out.PostalCode = strings.TrimSpace(f.PostalCode)
	if out.Limit <= 0 {
		out.Limit = DefaultListLimit
	}
	return out
}

// PostalPattern returns the anchored pattern matching the filter's postal
// code with or without a +4 extension.
func (f Filter) PostalPattern() string {
	if f.PostalCode == "" {
		return ""
	}
	return `^` + regexp.QuoteMeta(f.PostalCode) + `(-\d{4})?$`
}

// SearchText returns the free-text part of the filter as a Text lookup.
func (f Filter) SearchText() Text {
	return Text{Terms: f.Search, Limit: f.Limit}
}

// Matches reports whether a stored address satisfies f. postal is the
// compiled PostalPattern, or nil when the filter has no postal code.
func (f Filter) Matches(postal *regexp.Regexp, a address.Address) bool {
	switch {
	case f.AddressLine1 != "" && a.AddressLine1 != f.AddressLine1:
		return false
	case f.City != "" && a.City != f.City:
		return false
	case f.StateProv != "" && a.StateProv != f.StateProv:
		return false
	case f.Country != "" && a.Country != f.Country:
		return false
	case postal != nil && !postal.MatchString(a.PostalCode):
		return false
	case f.ReferenceID != nil && (a.ReferenceID == nil || *a.ReferenceID != *f.ReferenceID):
		return false
	case f.Search != "" && f.SearchText().Rank(a) == 0:
		return false
	}
	return true
}

// SortValue returns the value of a for a sort field name.
func SortValue(a address.Address, field string) string {
	switch field {
	case FieldCity:
		return a.City
	case FieldStateProv:
		return a.StateProv
	case FieldPostalCode:
		return a.PostalCode
	case FieldCountry:
		return a.Country
	default:
		return ""
	}
}
