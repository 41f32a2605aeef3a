package weaviate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
	"github.com/TFMV/avs/internal/store"
)

func TestParseRecord(t *testing.T) {
	obj := map[string]interface{}{
		"_additional":  map[string]interface{}{"id": "7d6f0b7e-0f3b-4a5e-9d7c-2a1b3c4d5e6f"},
		"addressLine1": "2870 Clay Rd",
		"addressLine2": "",
		"city":         "Antioch",
		"stateProv":    "TN",
		"postalCode":   "37013-4521",
		"country":      "US",
		"referenceId":  float64(12),
	}

	r := parseRecord(obj)
	assert.Equal(t, "7d6f0b7e-0f3b-4a5e-9d7c-2a1b3c4d5e6f", r.ID)
	assert.Equal(t, "2870 Clay Rd", r.AddressLine1)
	assert.False(t, r.HasAddressLine2())
	require.NotNil(t, r.ReferenceID)
	assert.Equal(t, int64(12), *r.ReferenceID)

	delete(obj, "referenceId")
	assert.Nil(t, parseRecord(obj).ReferenceID)
}

func TestProperties(t *testing.T) {
	a := address.Address{AddressLine1: "1 Main Street", City: "Austin", StateProv: "TX", PostalCode: "73301", Country: "US"}

	props := properties(a, 100)
	assert.Equal(t, "1 Main Street", props["addressLine1"])
	assert.Equal(t, int64(100), props["created_at"])
	assert.NotContains(t, props, "referenceId")

	a.ReferenceID = address.Ref(4)
	assert.Equal(t, int64(4), properties(a, 100)["referenceId"])
}

func TestSelectorWhere(t *testing.T) {
	_, err := selectorWhere(store.ParseSelector("abc"))
	assert.ErrorIs(t, err, store.ErrInvalidID)

	w, err := selectorWhere(store.ParseSelector("7d6f0b7e-0f3b-4a5e-9d7c-2a1b3c4d5e6f"))
	require.NoError(t, err)
	assert.NotNil(t, w)

	w, err = selectorWhere(store.ParseSelector("3"))
	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestListWhere(t *testing.T) {
	assert.Nil(t, listWhere(query.Filter{}.Canonical()))
	assert.NotNil(t, listWhere(query.Filter{City: "austin"}.Canonical()))
}

func TestSortBy(t *testing.T) {
	assert.Equal(t, []graphql.Sort{{Path: []string{"created_at"}, Order: graphql.Asc}}, sortBy(""))
	assert.Equal(t, []graphql.Sort{
		{Path: []string{"city"}, Order: graphql.Asc},
		{Path: []string{"created_at"}, Order: graphql.Asc},
	}, sortBy(query.FieldCity))
}
