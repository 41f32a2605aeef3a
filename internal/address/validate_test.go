package address

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAddress() Address {
	return Address{
		AddressLine1: "2870 Clay Rd",
		City:         "Antioch",
		StateProv:    "TN",
		PostalCode:   "37013",
		Country:      "US",
	}
}

func TestValidPostalCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"30301", true},
		{"30301-1234", true},
		{"3030", false},
		{"ABCDE", false},
		{"30301-12", false},
		{"303011234", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidPostalCode(tt.code), "code %q", tt.code)
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(validAddress()))

	a := validAddress()
	a.AddressLine2 = "Apt 4"
	a.ReferenceID = Ref(42)
	a.PostalCode = "37013-1234"
	assert.NoError(t, Validate(a))
}

func TestValidate_MissingPostalCode(t *testing.T) {
	a := validAddress()
	a.PostalCode = ""

	err := Validate(a)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("postalCode"))
	assert.Equal(t, []string{MsgRequired}, verr.ByField()["postalCode"])
}

func TestValidate_EnumeratesEveryField(t *testing.T) {
	a := Address{
		AddressLine1: "Clay",
		PostalCode:   "3030",
	}

	err := Validate(a)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"addressLine1", "city", "stateProv", "postalCode", "country"}, fields)
	assert.Equal(t, []string{MsgInvalidStreet}, verr.ByField()["addressLine1"])
	assert.Equal(t, []string{MsgInvalidPostal}, verr.ByField()["postalCode"])
}

func TestValidate_StreetNeedsTwoTokens(t *testing.T) {
	a := validAddress()
	a.AddressLine1 = "   2870   "

	var verr *ValidationError
	require.True(t, errors.As(Validate(a), &verr))
	assert.True(t, verr.Has("addressLine1"))
	assert.False(t, verr.Has("city"))
}

func TestClone(t *testing.T) {
	a := validAddress()
	a.ReferenceID = Ref(7)

	c := a.Clone()
	*c.ReferenceID = 8

	assert.Equal(t, int64(7), *a.ReferenceID)
}
