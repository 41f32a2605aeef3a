package postgres

import (
	"strconv"
	"strings"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
)

const recordColumns = `id::text, address_line1, address_line2, city, state_prov, postal_code, country, reference_id`

// columns maps field names onto table columns.
var columns = map[string]string{
	query.FieldAddressLine1: "address_line1",
	query.FieldAddressLine2: "address_line2",
	query.FieldCity:         "city",
	query.FieldStateProv:    "state_prov",
	query.FieldPostalCode:   "postal_code",
	query.FieldCountry:      "country",
	query.FieldReferenceID:  "reference_id",
}

// where accumulates AND-ed conditions with numbered placeholders. Each "?"
// in a condition consumes the next argument.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func exactQuery(q query.Exact) (string, []any) {
	var w where
	w.add("address_line1 ~* ?", q.StreetPattern)
	if q.AddressLine2 != "" {
		w.add("address_line2 = ?", q.AddressLine2)
	}
	w.add("city = ?", q.City)
	w.add("state_prov = ?", q.StateProv)
	w.add("country = ?", q.Country)
	w.add("(postal_code = ? OR postal_code LIKE ?)", q.PostalCode, likePrefix(q.PostalPrefix))
	return "SELECT " + recordColumns + " FROM addresses" + w.String() + " ORDER BY created_at, id LIMIT 1", w.args
}

func textQuery(q query.Text) (string, []any) {
	var w where
	const doc = "to_tsvector('simple', address_line1)"
	w.add(doc+" @@ to_tsquery('simple', ?)", strings.Join(q.Words(), " | "))
	if q.Country != "" {
		w.add("country = ?", q.Country)
	}

	sql := "SELECT " + recordColumns + " FROM addresses" + w.String() +
		" ORDER BY ts_rank(" + doc + ", to_tsquery('simple', $1)) DESC, created_at, id"
	if q.Limit > 0 {
		w.args = append(w.args, q.Limit)
		sql += " LIMIT $" + strconv.Itoa(len(w.args))
	}
	return sql, w.args
}

func listQuery(f query.Filter) (string, []any) {
	var w where
	if f.AddressLine1 != "" {
		w.add("address_line1 = ?", f.AddressLine1)
	}
	if f.City != "" {
		w.add("city = ?", f.City)
	}
	if f.StateProv != "" {
		w.add("state_prov = ?", f.StateProv)
	}
	if p := f.PostalPattern(); p != "" {
		w.add("postal_code ~ ?", p)
	}
	if f.Country != "" {
		w.add("country = ?", f.Country)
	}
	if f.ReferenceID != nil {
		w.add("reference_id = ?", *f.ReferenceID)
	}
	if f.Search != "" {
		w.add("to_tsvector('simple', address_line1) @@ plainto_tsquery('simple', ?)", f.Search)
	}

	order := "created_at, id"
	if col, ok := columns[f.Sort]; ok {
		order = col + ", " + order
	}
	w.args = append(w.args, f.Limit)
	return "SELECT " + recordColumns + " FROM addresses" + w.String() +
		" ORDER BY " + order + " LIMIT $" + strconv.Itoa(len(w.args)), w.args
}

func sameAddressQuery(a address.Address) (string, []any) {
	var w where
	w.add("address_line1 = ?", a.AddressLine1)
	w.add("address_line2 = ?", a.AddressLine2)
	w.add("city = ?", a.City)
	w.add("state_prov = ?", a.StateProv)
	w.add("postal_code = ?", a.PostalCode)
	w.add("country = ?", a.Country)
	return "SELECT EXISTS (SELECT 1 FROM addresses" + w.String() + ")", w.args
}

// likePrefix escapes LIKE metacharacters in s and appends a wildcard
func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s) + "%"
}
