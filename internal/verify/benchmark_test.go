package verify

import (
	"context"
	"strconv"
	"testing"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/store"
)

func benchmarkVerify(b *testing.B, records int) {
	seed := make([]address.Address, records)
	for i := range seed {
		seed[i] = address.Address{
			AddressLine1: strconv.Itoa(100+i) + " Main Street",
			City:         "Springfield",
			StateProv:    "IL",
			PostalCode:   "62701-" + strconv.Itoa(1000+i%9000),
			Country:      "US",
			ReferenceID:  address.Ref(int64(i)),
		}
	}
	svc := NewService(store.NewMemory(seed...), Config{})
	ctx := context.Background()

	// Wrong city, so every run takes the fuzzy path
	submitted := address.Address{
		AddressLine1: "150 main st",
		City:         "Chicago",
		StateProv:    "IL",
		PostalCode:   "62701",
		Country:      "US",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Verify(ctx, submitted, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkVerifyNearMatch100(b *testing.B) { benchmarkVerify(b, 100) }
func BenchmarkVerifyNearMatch1k(b *testing.B)  { benchmarkVerify(b, 1000) }
func BenchmarkVerifyNearMatch10k(b *testing.B) { benchmarkVerify(b, 10000) }
