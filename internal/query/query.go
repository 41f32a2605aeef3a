// Package query builds backend-neutral lookup predicates for the reference
// address store. Each predicate carries the values a backend needs to render
// it natively, plus a reference evaluator used by in-process stores.
package query

// Field names shared by every backend.
const (
	FieldAddressLine1 = "addressLine1"
	FieldAddressLine2 = "addressLine2"
	FieldCity         = "city"
	FieldStateProv    = "stateProv"
	FieldPostalCode   = "postalCode"
	FieldCountry      = "country"
	FieldReferenceID  = "referenceId"
)
