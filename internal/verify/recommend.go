package verify

import (
	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/normalize"
	"github.com/TFMV/avs/internal/store"
)

// recommend derives the client-facing form of a matched record. The postal
// code is passed in because exact hits and near matches derive it
// differently.
func recommend(rec store.Record, postalCode string) *address.Address {
	out := rec.Address.Clone()
	out.AddressLine1 = normalize.Street(rec.AddressLine1)
	out.City = normalize.City(rec.City)
	out.StateProv = normalize.NormalizeState(rec.StateProv)
	out.Country = normalize.NormalizeCountry(rec.Country)
	out.PostalCode = postalCode
	return &out
}

// recommendExact completes a bare 5-digit submission with the stored +4
// extension.
func recommendExact(submitted address.Address, rec store.Record) *address.Address {
	return recommend(rec, normalize.SynthesizePostalExtension(submitted.PostalCode, rec.PostalCode))
}

// recommendNear keeps the candidate's stored postal code.
func recommendNear(rec store.Record) *address.Address {
	return recommend(rec, rec.PostalCode)
}
