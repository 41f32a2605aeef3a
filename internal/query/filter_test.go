package query

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/avs/internal/address"
)

func TestParseSort(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"city", FieldCity, false},
		{"StateProv", FieldStateProv, false},
		{"POSTALCODE", FieldPostalCode, false},
		{"country", FieldCountry, false},
		{"addressLine1", "", true},
		{"$where", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSort(tt.key)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidSort, tt.key)
			continue
		}
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.want, got)
	}
}

func TestFilterCanonical(t *testing.T) {
	f := Filter{City: "antioch", StateProv: "tn", Country: "us", PostalCode: " 37013 "}.Canonical()
	assert.Equal(t, "Antioch", f.City)
	assert.Equal(t, "TN", f.StateProv)
	assert.Equal(t, "US", f.Country)
	assert.Equal(t, "37013", f.PostalCode)
	assert.Equal(t, DefaultListLimit, f.Limit)
}

func TestFilterMatches(t *testing.T) {
	rec := stored()

	f := Filter{PostalCode: "37013"}.Canonical()
	postal := regexp.MustCompile(f.PostalPattern())
	assert.True(t, f.Matches(postal, rec))

	f = Filter{PostalCode: "3701"}.Canonical()
	postal = regexp.MustCompile(f.PostalPattern())
	assert.False(t, f.Matches(postal, rec))

	f = Filter{ReferenceID: address.Ref(1), City: "antioch"}.Canonical()
	assert.True(t, f.Matches(nil, rec))

	f = Filter{ReferenceID: address.Ref(2)}.Canonical()
	assert.False(t, f.Matches(nil, rec))

	f = Filter{Search: "clay"}.Canonical()
	assert.True(t, f.Matches(nil, rec))

	f = Filter{AddressLine1: "2870 Clay Rd", StateProv: "ky"}.Canonical()
	assert.False(t, f.Matches(nil, rec))
}

func TestSortValue(t *testing.T) {
	rec := stored()
	assert.Equal(t, "Antioch", SortValue(rec, FieldCity))
	assert.Equal(t, "37013-4521", SortValue(rec, FieldPostalCode))
	assert.Empty(t, SortValue(rec, "unknown"))
}
