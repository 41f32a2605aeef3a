package dataset

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
	"github.com/TFMV/avs/internal/store"
)

const sampleCSV = `addressLine1,city,stateProv,postalCode,country,referenceId
2870 clay rd,antioch,Tennessee,37013-1234,USA,1
4500 Due W Rd NW,Kennesaw,GA,30152,US,
12 Oak St,Austin,TX,78701,US,abc
`

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path, format, want string
		wantErr            bool
	}{
		{"seed.csv", "", FormatCSV, false},
		{"seed.JSON", "", FormatJSON, false},
		{"seed.txt", "csv", FormatCSV, false},
		{"seed.txt", "", "", true},
		{"seed.csv", "xml", "", true},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.path, tt.format)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got)
	}
}

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "2870 clay rd", rows[0].Address.AddressLine1)
	require.NotNil(t, rows[0].Address.ReferenceID)
	assert.Equal(t, int64(1), *rows[0].Address.ReferenceID)
	assert.NoError(t, rows[0].Err)

	assert.Nil(t, rows[1].Address.ReferenceID)
	assert.Error(t, rows[2].Err)
}

func TestReadCSVRequiresStreetColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("city,country\nAntioch,US\n"))
	assert.Error(t, err)
}

func TestReadJSON(t *testing.T) {
	rows, err := ReadJSON(strings.NewReader(`[{"addressLine1":"2870 Clay Rd","city":"Antioch","stateProv":"TN","postalCode":"37013","country":"US","referenceId":7}]`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), *rows[0].Address.ReferenceID)

	_, err = ReadJSON(strings.NewReader(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	rows, err := ReadFile(path, "")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestWriteCSV(t *testing.T) {
	recs := []store.Record{{ID: "a1", Address: address.Address{
		AddressLine1: "2870 Clay Road", City: "Antioch", StateProv: "TN",
		PostalCode: "37013", Country: "US", ReferenceID: address.Ref(3),
	}}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	assert.Equal(t, "a1,2870 Clay Road,,Antioch,TN,37013,US,3", lines[1])

	// The export reads back
	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, recs[0].Address, rows[0].Address)
}

func TestLoaderLoad(t *testing.T) {
	existing := address.Address{
		AddressLine1: "4500 Due W Road NW", City: "Kennesaw", StateProv: "GA",
		PostalCode: "30152", Country: "US",
	}
	mem := store.NewMemory(existing)

	rows, err := ReadCSV(strings.NewReader(sampleCSV + "2870 Clay Road,Antioch,TN,37013-1234,US,1\n1,,,,,\n"))
	require.NoError(t, err)

	stats, err := NewLoader(mem, 1, nil).Load(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, Stats{Read: 5, Inserted: 1, Duplicates: 2, Invalid: 2}, stats)
	assert.Equal(t, 2, mem.Len())

	recs, err := mem.List(context.Background(), query.Filter{City: "antioch"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2870 Clay Road", recs[0].AddressLine1)
	assert.Equal(t, "TN", recs[0].StateProv)
	assert.Equal(t, "US", recs[0].Country)
}

// batchStore records InsertMany calls.
type batchStore struct {
	*store.Memory
	batches [][]address.Address
}

func (b *batchStore) InsertMany(ctx context.Context, batch []address.Address) ([]store.Record, error) {
	b.batches = append(b.batches, append([]address.Address(nil), batch...))
	out := make([]store.Record, 0, len(batch))
	for _, a := range batch {
		rec, err := b.Memory.Insert(ctx, a)
		if err != nil {
			return out, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func TestLoaderUsesBatchInserter(t *testing.T) {
	bs := &batchStore{Memory: store.NewMemory()}

	var rows []Row
	for i, street := range []string{"1 Oak St", "2 Oak St", "3 Oak St"} {
		rows = append(rows, Row{Line: i + 1, Address: address.Address{
			AddressLine1: street, City: "Austin", StateProv: "TX", PostalCode: "78701", Country: "US",
		}})
	}

	stats, err := NewLoader(bs, 2, nil).Load(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Inserted)
	require.Len(t, bs.batches, 2)
	assert.Len(t, bs.batches[0], 2)
	assert.Equal(t, "1 Oak Street", bs.batches[0][0].AddressLine1)
}
