package dataset

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/normalize"
	"github.com/TFMV/avs/internal/store"
)

// DefaultBatchSize is the number of records inserted per round trip.
const DefaultBatchSize = 100

// Stats summarizes a load.
type Stats struct {
	Read       int `json:"read"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// Loader canonicalizes addresses and inserts the ones the store does not
// hold yet.
type Loader struct {
	store     store.AddressStore
	batchSize int
	logger    *zap.Logger
}

// NewLoader creates a loader over st. A non-positive batchSize selects
// DefaultBatchSize.
func NewLoader(st store.AddressStore, batchSize int, logger *zap.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: st, batchSize: batchSize, logger: logger}
}

// Load validates and canonicalizes every row, skips invalid rows and
// duplicates (against the store and within rows) and inserts the rest in
// batches. Stores implementing store.BatchInserter get one call per batch.
func (l *Loader) Load(ctx context.Context, rows []Row) (Stats, error) {
	var stats Stats
	batch := make([]address.Address, 0, l.batchSize)
	seen := make(map[string]struct{})

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.insert(ctx, batch)
		stats.Inserted += n
		if err != nil {
			return err
		}
		l.logger.Info("batch inserted", zap.Int("records", n), zap.Int("total", stats.Inserted))
		batch = batch[:0]
		return nil
	}

	for _, row := range rows {
		stats.Read++

		if row.Err != nil {
			stats.Invalid++
			l.logger.Warn("skipping row", zap.Int("line", row.Line), zap.Error(row.Err))
			continue
		}
		if err := address.Validate(row.Address); err != nil {
			stats.Invalid++
			l.logger.Warn("skipping invalid address", zap.Int("line", row.Line), zap.Error(err))
			continue
		}

		a := normalize.Address(row.Address)
		key := addressKey(a)
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		exists, err := l.store.Exists(ctx, a)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", row.Line, err)
		}
		if exists {
			stats.Duplicates++
			continue
		}

		seen[key] = struct{}{}
		batch = append(batch, a)
		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (l *Loader) insert(ctx context.Context, batch []address.Address) (int, error) {
	if bi, ok := l.store.(store.BatchInserter); ok {
		recs, err := bi.InsertMany(ctx, batch)
		if err != nil {
			return len(recs), fmt.Errorf("failed to insert batch: %w", err)
		}
		return len(recs), nil
	}

	for i, a := range batch {
		if _, err := l.store.Insert(ctx, a); err != nil {
			return i, fmt.Errorf("failed to insert address: %w", err)
		}
	}
	return len(batch), nil
}

// addressKey identifies the fields store.SameAddress compares.
func addressKey(a address.Address) string {
	return strings.Join([]string{
		a.AddressLine1, a.AddressLine2, a.City, a.StateProv, a.PostalCode, a.Country,
	}, "\x1f")
}
