// Package store defines the reference address store consumed by the verifier
// and the CRUD endpoints, and the API key store used for client
// authentication. Backends live in sub-packages; Memory is the in-process
// implementation.
package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
)

// Record is a stored reference address and its backend identifier.
type Record struct {
	ID string `json:"id"`
	address.Address
}

// Selector addresses one record either by backend ID or by reference ID.
type Selector struct {
	ID          string
	ReferenceID *int64
}

// ParseSelector interprets an integer as a reference ID and anything else as
// a backend ID.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	if ref, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Selector{ReferenceID: &ref}
	}
	return Selector{ID: s}
}

func (s Selector) String() string {
	if s.ReferenceID != nil {
		return "referenceId=" + strconv.FormatInt(*s.ReferenceID, 10)
	}
	return "id=" + s.ID
}

// APIKey is a client credential for the verification endpoint.
type APIKey struct {
	Key      string    `json:"key"`
	ClientIP string    `json:"client_ip"`
	Created  time.Time `json:"time_generated"`
}

// AddressStore is the reference address store. Each mutation is a single
// atomic document operation.
type AddressStore interface {
	// FindOne returns the first record satisfying q, or ErrNotFound.
	FindOne(ctx context.Context, q query.Exact) (*Record, error)
	// TextSearch returns up to q.Limit keyword candidates, best ranked first.
	TextSearch(ctx context.Context, q query.Text) ([]Record, error)
	List(ctx context.Context, f query.Filter) ([]Record, error)
	Get(ctx context.Context, sel Selector) (*Record, error)
	// Exists reports whether a record with the same address fields exists.
	Exists(ctx context.Context, a address.Address) (bool, error)
	Insert(ctx context.Context, a address.Address) (*Record, error)
	// Update replaces the selected record's address and returns its previous
	// state.
	Update(ctx context.Context, sel Selector, a address.Address) (*Record, error)
	// Delete removes the selected record and returns it.
	Delete(ctx context.Context, sel Selector) (*Record, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// KeyStore persists issued API keys.
type KeyStore interface {
	FindKey(ctx context.Context, key string) (*APIKey, error)
	FindKeyByClient(ctx context.Context, clientIP string) (*APIKey, error)
	// InsertKey stores k, or returns ErrConflict if the key or client
	// already has one.
	InsertKey(ctx context.Context, k APIKey) error
}

// BatchInserter is implemented by backends that load many records in one
// round trip.
type BatchInserter interface {
	InsertMany(ctx context.Context, batch []address.Address) ([]Record, error)
}

// Store combines the address and key stores of one backend.
type Store interface {
	AddressStore
	KeyStore
}

// SameAddress reports whether two addresses have equal address fields,
// ignoring the reference ID.
func SameAddress(a, b address.Address) bool {
	return a.AddressLine1 == b.AddressLine1 &&
		a.AddressLine2 == b.AddressLine2 &&
		a.City == b.City &&
		a.StateProv == b.StateProv &&
		a.PostalCode == b.PostalCode &&
		a.Country == b.Country
}

// Merge returns next with the reference ID of prev when next carries none.
func Merge(prev, next address.Address) address.Address {
	out := next.Clone()
	if out.ReferenceID == nil && prev.ReferenceID != nil {
		ref := *prev.ReferenceID
		out.ReferenceID = &ref
	}
	return out
}
