// Package address defines the postal address model shared by the verifier,
// the record stores and the HTTP layer.
package address

// Address represents a postal address as submitted by a client or as stored
// in the reference data set.
type Address struct {
	AddressLine1 string `json:"addressLine1" validate:"required,street"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city" validate:"required"`
	StateProv    string `json:"stateProv" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required,postalcode"`
	Country      string `json:"country" validate:"required"`
	ReferenceID  *int64 `json:"referenceId,omitempty"`
}

// HasAddressLine2 reports whether the optional second line was supplied.
func (a Address) HasAddressLine2() bool {
	return a.AddressLine2 != ""
}

// Clone returns a deep copy of the address.
func (a Address) Clone() Address {
	c := a
	if a.ReferenceID != nil {
		ref := *a.ReferenceID
		c.ReferenceID = &ref
	}
	return c
}

// Ref returns a pointer to v, for building addresses with a reference ID.
func Ref(v int64) *int64 {
	return &v
}
