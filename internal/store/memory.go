package store

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
)

// Memory is an in-process Store. Records keep insertion order, which is the
// order FindOne and unsorted listings observe.
type Memory struct {
	mu      sync.RWMutex
	records []Record
	keys    map[string]APIKey
}

// Compile-time check to ensure Memory implements Store.
var _ Store = (*Memory)(nil)

// NewMemory returns a Memory store holding seed, each given a fresh ID.
func NewMemory(seed ...address.Address) *Memory {
	m := &Memory{keys: make(map[string]APIKey)}
	for _, a := range seed {
		m.records = append(m.records, Record{ID: uuid.NewString(), Address: a.Clone()})
	}
	return m
}

func (m *Memory) FindOne(ctx context.Context, q query.Exact) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("memory.FindOne", "lookup aborted", err)
	}
	street, err := q.Compile()
	if err != nil {
		return nil, Wrap("memory.FindOne", "invalid street pattern", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if q.Matches(street, r.Address) {
			return cloneRecord(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) TextSearch(ctx context.Context, q query.Text) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("memory.TextSearch", "search aborted", err)
	}

	type ranked struct {
		rec  Record
		rank int
	}

	m.mu.RLock()
	var hits []ranked
	for _, r := range m.records {
		if rank := q.Rank(r.Address); rank > 0 {
			hits = append(hits, ranked{rec: *cloneRecord(r), rank: rank})
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank > hits[j].rank })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]Record, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out, nil
}

func (m *Memory) List(ctx context.Context, f query.Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("memory.List", "listing aborted", err)
	}
	f = f.Canonical()

	var postal *regexp.Regexp
	if p := f.PostalPattern(); p != "" {
		var err error
		if postal, err = regexp.Compile(p); err != nil {
			return nil, Wrap("memory.List", "invalid postal pattern", err)
		}
	}

	m.mu.RLock()
	var out []Record
	for _, r := range m.records {
		if f.Matches(postal, r.Address) {
			out = append(out, *cloneRecord(r))
		}
	}
	m.mu.RUnlock()

	if f.Sort != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return query.SortValue(out[i].Address, f.Sort) < query.SortValue(out[j].Address, f.Sort)
		})
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, sel Selector) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(sel)
	if i < 0 {
		return nil, ErrNotFound
	}
	return cloneRecord(m.records[i]), nil
}

func (m *Memory) Exists(ctx context.Context, a address.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if SameAddress(r.Address, a) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Insert(ctx context.Context, a address.Address) (*Record, error) {
	r := Record{ID: uuid.NewString(), Address: a.Clone()}

	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()

	return cloneRecord(r), nil
}

func (m *Memory) Update(ctx context.Context, sel Selector, a address.Address) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(sel)
	if i < 0 {
		return nil, ErrNotFound
	}
	prev := cloneRecord(m.records[i])
	m.records[i].Address = Merge(prev.Address, a)
	return prev, nil
}

func (m *Memory) Delete(ctx context.Context, sel Selector) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(sel)
	if i < 0 {
		return nil, ErrNotFound
	}
	removed := m.records[i]
	m.records = append(m.records[:i], m.records[i+1:]...)
	return &removed, nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) FindKey(ctx context.Context, key string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &k, nil
}

func (m *Memory) FindKeyByClient(ctx context.Context, clientIP string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.keys {
		if k.ClientIP == clientIP {
			return &k, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) InsertKey(ctx context.Context, k APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[k.Key]; ok {
		return ErrConflict
	}
	for _, existing := range m.keys {
		if existing.ClientIP == k.ClientIP {
			return ErrConflict
		}
	}
	if k.Created.IsZero() {
		k.Created = time.Now().UTC()
	}
	m.keys[k.Key] = k
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// indexOf must be called with mu held.
func (m *Memory) indexOf(sel Selector) int {
	for i, r := range m.records {
		switch {
		case sel.ReferenceID != nil:
			if r.ReferenceID != nil && *r.ReferenceID == *sel.ReferenceID {
				return i
			}
		case r.ID == sel.ID:
			return i
		}
	}
	return -1
}

func cloneRecord(r Record) *Record {
	return &Record{ID: r.ID, Address: r.Address.Clone()}
}
