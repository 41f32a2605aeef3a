// Package dataset reads and writes address files and bulk loads them into a
// record store.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/store"
)

// Supported file formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Columns is the CSV header written by WriteCSV. ReadCSV accepts the same
// names in any order and case; id is ignored on read.
var Columns = []string{"id", "addressLine1", "addressLine2", "city", "stateProv", "postalCode", "country", "referenceId"}

// Row is an address read from a file together with its 1-based position.
type Row struct {
	Line    int
	Address address.Address
	// Err is set when the row could not be decoded.
	Err error
}

// DetectFormat picks the format from the file extension when format is empty.
func DetectFormat(path, format string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch f := strings.ToLower(format); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", format)
	}
}

// ReadFile reads every address of path.
func ReadFile(path, format string) ([]Row, error) {
	format, err := DetectFormat(path, format)
	if err != nil {
		return nil, err
	}

	// Open input file
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Process based on format
	if format == FormatCSV {
		return ReadCSV(file)
	}
	return ReadJSON(file)
}

// ReadJSON decodes a JSON array of addresses.
func ReadJSON(r io.Reader) ([]Row, error) {
	var addrs []address.Address
	if err := json.NewDecoder(r).Decode(&addrs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	rows := make([]Row, len(addrs))
	for i, a := range addrs {
		rows[i] = Row{Line: i + 1, Address: a}
	}
	return rows, nil
}

// ReadCSV decodes a CSV file whose first row names the columns. Rows with an
// unparsable referenceId are returned with Err set.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// Read header row
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Find column indices
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := idx["addressline1"]; !ok {
		return nil, errors.New("addressLine1 column not found in CSV header")
	}

	field := func(record []string, name string) string {
		i, ok := idx[strings.ToLower(name)]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}

		row := Row{Line: line, Address: address.Address{
			AddressLine1: field(record, "addressLine1"),
			AddressLine2: field(record, "addressLine2"),
			City:         field(record, "city"),
			StateProv:    field(record, "stateProv"),
			PostalCode:   field(record, "postalCode"),
			Country:      field(record, "country"),
		}}
		if ref := field(record, "referenceId"); ref != "" {
			v, err := strconv.ParseInt(ref, 10, 64)
			if err != nil {
				row.Err = fmt.Errorf("line %d: invalid referenceId %q", line, ref)
			} else {
				row.Address.ReferenceID = &v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV writes recs under the Columns header.
func WriteCSV(w io.Writer, recs []store.Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return err
	}
	for _, r := range recs {
		ref := ""
		if r.ReferenceID != nil {
			ref = strconv.FormatInt(*r.ReferenceID, 10)
		}
		if err := writer.Write([]string{
			r.ID, r.AddressLine1, r.AddressLine2, r.City, r.StateProv, r.PostalCode, r.Country, ref,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
