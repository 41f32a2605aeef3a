package normalize

import (
	"strconv"
	"testing"

	"github.com/TFMV/avs/internal/address"
)

func BenchmarkStreet(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Street("2870 clay rd ste " + strconv.Itoa(i))
	}
}

func BenchmarkAddress(b *testing.B) {
	base := address.Address{
		AddressLine1: "123 n main st",
		City:         "atlanta",
		StateProv:    "georgia",
		PostalCode:   "30301",
		Country:      "united states",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a := base
		a.AddressLine2 = "apt " + strconv.Itoa(i)
		Address(a)
	}
}
