package verify

import (
	"sort"

	"github.com/TFMV/avs/internal/normalize"
	"github.com/TFMV/avs/internal/similarity"
	"github.com/TFMV/avs/internal/store"
)

// candidate is a keyword hit scored against the submitted street line.
type candidate struct {
	rec    store.Record
	street string
	score  int
}

// rankCandidates scores every record against street, drops those below
// floor and orders the rest best first. Equal scores fall back to the
// canonical street and then to the record ID so the order never depends on
// backend iteration.
func rankCandidates(fn similarity.Function, floor int, street string, recs []store.Record) []candidate {
	key := normalize.Key(street)

	out := make([]candidate, 0, len(recs))
	for _, rec := range recs {
		score := similarity.Score(fn, key, normalize.Key(rec.AddressLine1))
		if score < floor {
			continue
		}
		out = append(out, candidate{
			rec:    rec,
			street: normalize.Street(rec.AddressLine1),
			score:  score,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].street != out[j].street {
			return out[i].street < out[j].street
		}
		return out[i].rec.ID < out[j].rec.ID
	})
	return out
}
