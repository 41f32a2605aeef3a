package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFuzzy(t *testing.T) {
	q := BuildFuzzy(submitted(), 0)
	assert.Equal(t, "2870 clay road", q.Terms)
	assert.Equal(t, "US", q.Country)
	assert.Equal(t, DefaultFuzzyLimit, q.Limit)

	assert.Equal(t, 5, BuildFuzzy(submitted(), 5).Limit)
}

func TestTextRank(t *testing.T) {
	q := Text{Terms: "2870 clay road", Country: "US"}

	assert.Equal(t, 3, q.Rank(stored()))

	rec := stored()
	rec.AddressLine1 = "12 Clay Ct"
	assert.Equal(t, 1, q.Rank(rec))

	rec.Country = "CA"
	assert.Zero(t, q.Rank(rec))

	rec = stored()
	rec.AddressLine1 = "9 Elm Street"
	assert.Zero(t, q.Rank(rec))
}

func TestTextWords(t *testing.T) {
	assert.Equal(t, []string{"2870", "clay", "rd", "road"}, Text{Terms: "2870 Clay Road."}.Words())
	assert.Equal(t, []string{"main", "st", "street"}, Text{Terms: "main st street"}.Words())
	assert.Equal(t, []string{"o", "brien"}, Text{Terms: "O'Brien & |!"}.Words())
	assert.Empty(t, Text{Terms: "  --  "}.Words())
}
