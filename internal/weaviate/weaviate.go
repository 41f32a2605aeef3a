// Package weaviate stores reference addresses and API keys as Weaviate
// objects. Structured fields are matched with Where filters, the street
// pattern is applied to the filtered candidates, and keyword lookups use
// BM25 over addressLine1.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
	"github.com/TFMV/avs/internal/store"
)

// candidateLimit caps the objects fetched by the structured pre-filter of an
// exact lookup.
const candidateLimit = 500

// batchSize is the number of objects sent per batch request.
const batchSize = 100

// Config holds the Weaviate connection settings
type Config struct {
	Host         string
	Scheme       string
	APIKey       string
	AddressClass string
	KeyClass     string
}

// Client represents the Weaviate client wrapper
type Client struct {
	client       *weaviate.Client
	addressClass string
	keyClass     string

	schemaMu       sync.Mutex
	schemaInitDone bool
}

// Compile-time checks to ensure Client implements the store interfaces.
var (
	_ store.Store         = (*Client)(nil)
	_ store.BatchInserter = (*Client)(nil)
)

// NewClient creates a new Weaviate client wrapper
func NewClient(cfg Config) (*Client, error) {
	// Create authentication config if API key is provided
	var authConfig auth.Config
	if cfg.APIKey != "" {
		authConfig = &auth.ApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:       cfg.Host,
		Scheme:     cfg.Scheme,
		AuthConfig: authConfig,
	})
	if err != nil {
		return nil, store.Wrap("weaviate.NewClient", "failed to create client", err)
	}

	return &Client{
		client:       client,
		addressClass: cfg.AddressClass,
		keyClass:     cfg.KeyClass,
	}, nil
}

// InitSchema creates the address and key classes when missing
func (c *Client) InitSchema(ctx context.Context) error {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()
	if c.schemaInitDone {
		return nil
	}

	schema, err := c.client.Schema().Getter().Do(ctx)
	if err != nil {
		return store.Wrap("weaviate.InitSchema", "failed to get schema", err)
	}
	existing := make(map[string]bool, len(schema.Classes))
	for _, class := range schema.Classes {
		existing[class.Class] = true
	}

	for _, class := range []*models.Class{c.addressClassSchema(), c.keyClassSchema()} {
		if existing[class.Class] {
			continue
		}
		if err := c.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return store.Wrap("weaviate.InitSchema", "failed to create class "+class.Class, err)
		}
	}

	c.schemaInitDone = true
	return nil
}

func (c *Client) addressClassSchema() *models.Class {
	exact := func(name, desc string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"text"}, Tokenization: "field", Description: desc}
	}
	return &models.Class{
		Class:       c.addressClass,
		Description: "Reference postal addresses",
		Properties: []*models.Property{
			{Name: query.FieldAddressLine1, DataType: []string{"text"}, Tokenization: "word", Description: "Street line"},
			exact(query.FieldAddressLine2, "Secondary line"),
			exact(query.FieldCity, "City"),
			exact(query.FieldStateProv, "State or province code"),
			exact(query.FieldPostalCode, "Postal code"),
			exact(query.FieldCountry, "Country code"),
			{Name: query.FieldReferenceID, DataType: []string{"int"}, Description: "External reference ID"},
			{Name: "created_at", DataType: []string{"int"}, Description: "Creation timestamp"},
		},
		Vectorizer: "none",
	}
}

func (c *Client) keyClassSchema() *models.Class {
	return &models.Class{
		Class:       c.keyClass,
		Description: "Issued API keys",
		Properties: []*models.Property{
			{Name: "key", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "client_ip", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "created_at", DataType: []string{"int"}},
		},
		Vectorizer: "none",
	}
}

func (c *Client) FindOne(ctx context.Context, q query.Exact) (*store.Record, error) {
	street, err := q.Compile()
	if err != nil {
		return nil, store.Wrap("weaviate.FindOne", "invalid street pattern", err)
	}

	recs, err := c.get(ctx, exactWhere(q), sortBy(""), candidateLimit)
	if err != nil {
		return nil, store.Wrap("weaviate.FindOne", "exact lookup failed", err)
	}
	for _, r := range recs {
		if q.Matches(street, r.Address) {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (c *Client) TextSearch(ctx context.Context, q query.Text) ([]store.Record, error) {
	words := q.Words()
	if len(words) == 0 {
		return nil, nil
	}
	if err := c.InitSchema(ctx); err != nil {
		return nil, err
	}

	bm25 := c.client.GraphQL().Bm25ArgBuilder().
		WithQuery(strings.Join(words, " ")).
		WithProperties(query.FieldAddressLine1)

	get := c.client.GraphQL().Get().
		WithClassName(c.addressClass).
		WithFields(addressFields()...).
		WithBM25(bm25)
	if q.Country != "" {
		get = get.WithWhere(equalText(query.FieldCountry, q.Country))
	}
	if q.Limit > 0 {
		get = get.WithLimit(q.Limit)
	}

	recs, err := c.run(ctx, get)
	return recs, store.Wrap("weaviate.TextSearch", "bm25 search failed", err)
}

func (c *Client) List(ctx context.Context, f query.Filter) ([]store.Record, error) {
	f = f.Canonical()

	var postal *regexp.Regexp
	if p := f.PostalPattern(); p != "" {
		var err error
		if postal, err = regexp.Compile(p); err != nil {
			return nil, store.Wrap("weaviate.List", "invalid postal pattern", err)
		}
	}

	if err := c.InitSchema(ctx); err != nil {
		return nil, err
	}
	get := c.client.GraphQL().Get().
		WithClassName(c.addressClass).
		WithFields(addressFields()...).
		WithLimit(f.Limit)
	if where := listWhere(f); where != nil {
		get = get.WithWhere(where)
	}
	if f.Search != "" {
		get = get.WithBM25(c.client.GraphQL().Bm25ArgBuilder().
			WithQuery(f.Search).
			WithProperties(query.FieldAddressLine1))
	} else {
		get = get.WithSort(sortBy(f.Sort)...)
	}

	recs, err := c.run(ctx, get)
	if err != nil {
		return nil, store.Wrap("weaviate.List", "listing failed", err)
	}

	// Like on the postal prefix is wider than the pattern
	out := recs[:0]
	for _, r := range recs {
		if postal == nil || postal.MatchString(r.PostalCode) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, sel store.Selector) (*store.Record, error) {
	where, err := selectorWhere(sel)
	if err != nil {
		return nil, err
	}
	recs, err := c.get(ctx, where, sortBy(""), 1)
	if err != nil {
		return nil, store.Wrap("weaviate.Get", "lookup failed", err)
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return &recs[0], nil
}

func (c *Client) Exists(ctx context.Context, a address.Address) (bool, error) {
	where := and(
		equalText(query.FieldAddressLine1, a.AddressLine1),
		equalText(query.FieldCity, a.City),
		equalText(query.FieldStateProv, a.StateProv),
		equalText(query.FieldPostalCode, a.PostalCode),
		equalText(query.FieldCountry, a.Country),
	)
	recs, err := c.get(ctx, where, nil, candidateLimit)
	if err != nil {
		return false, store.Wrap("weaviate.Exists", "duplicate check failed", err)
	}
	for _, r := range recs {
		if store.SameAddress(r.Address, a) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) Insert(ctx context.Context, a address.Address) (*store.Record, error) {
	if err := c.InitSchema(ctx); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	_, err := c.client.Data().Creator().
		WithID(id).
		WithClassName(c.addressClass).
		WithProperties(properties(a, time.Now().Unix())).
		Do(ctx)
	if err != nil {
		return nil, store.Wrap("weaviate.Insert", "failed to add object", err)
	}
	return &store.Record{ID: id, Address: a.Clone()}, nil
}

// InsertMany adds addresses in batches
func (c *Client) InsertMany(ctx context.Context, batch []address.Address) ([]store.Record, error) {
	if err := c.InitSchema(ctx); err != nil {
		return nil, err
	}

	batcher := c.client.Batch().ObjectsBatcher()
	recs := make([]store.Record, len(batch))
	now := time.Now().Unix()

	for i, a := range batch {
		recs[i] = store.Record{ID: uuid.NewString(), Address: a.Clone()}

		batcher = batcher.WithObjects(&models.Object{
			Class:      c.addressClass,
			ID:         strfmt.UUID(recs[i].ID),
			Properties: properties(a, now),
		})

		// Execute batch when it reaches the batch size
		if (i+1)%batchSize == 0 || i == len(batch)-1 {
			if _, err := batcher.Do(ctx); err != nil {
				return recs[:i+1], store.Wrap("weaviate.InsertMany", "failed to execute batch", err)
			}
			batcher = c.client.Batch().ObjectsBatcher()
		}
	}

	return recs, nil
}

// Update replaces the object's properties. The read and the write are two
// requests; Weaviate offers no conditional update.
func (c *Client) Update(ctx context.Context, sel store.Selector, a address.Address) (*store.Record, error) {
	prev, err := c.Get(ctx, sel)
	if err != nil {
		return nil, err
	}

	next := store.Merge(prev.Address, a)
	err = c.client.Data().Updater().
		WithID(prev.ID).
		WithClassName(c.addressClass).
		WithProperties(properties(next, time.Now().Unix())).
		Do(ctx)
	if err != nil {
		return nil, store.Wrap("weaviate.Update", "failed to update object", err)
	}
	return prev, nil
}

func (c *Client) Delete(ctx context.Context, sel store.Selector) (*store.Record, error) {
	prev, err := c.Get(ctx, sel)
	if err != nil {
		return nil, err
	}

	err = c.client.Data().Deleter().
		WithID(prev.ID).
		WithClassName(c.addressClass).
		Do(ctx)
	if err != nil {
		return nil, store.Wrap("weaviate.Delete", "failed to delete object", err)
	}
	return prev, nil
}

// Ping checks the connection to Weaviate
func (c *Client) Ping(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return store.Wrap("weaviate.Ping", "health check failed", err)
	}
	if !live {
		return &store.Error{Op: "weaviate.Ping", Msg: "instance is not live"}
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error { return nil }

func (c *Client) FindKey(ctx context.Context, key string) (*store.APIKey, error) {
	return c.findKey(ctx, "weaviate.FindKey", equalText("key", key))
}

func (c *Client) FindKeyByClient(ctx context.Context, clientIP string) (*store.APIKey, error) {
	return c.findKey(ctx, "weaviate.FindKeyByClient", equalText("client_ip", clientIP))
}

func (c *Client) findKey(ctx context.Context, op string, where *filters.WhereBuilder) (*store.APIKey, error) {
	if err := c.InitSchema(ctx); err != nil {
		return nil, err
	}
	get := c.client.GraphQL().Get().
		WithClassName(c.keyClass).
		WithFields(graphql.Field{Name: "key"}, graphql.Field{Name: "client_ip"}, graphql.Field{Name: "created_at"}).
		WithWhere(where).
		WithLimit(1)

	objs, err := c.objects(ctx, get, c.keyClass)
	if err != nil {
		return nil, store.Wrap(op, "key lookup failed", err)
	}
	if len(objs) == 0 {
		return nil, store.ErrNotFound
	}
	k := &store.APIKey{}
	k.Key, _ = objs[0]["key"].(string)
	k.ClientIP, _ = objs[0]["client_ip"].(string)
	if ts, ok := objs[0]["created_at"].(float64); ok {
		k.Created = time.Unix(int64(ts), 0).UTC()
	}
	return k, nil
}

// InsertKey stores k under an ID derived from the key, so a repeated key
// collides in Weaviate itself.
func (c *Client) InsertKey(ctx context.Context, k store.APIKey) error {
	if _, err := c.FindKeyByClient(ctx, k.ClientIP); err == nil {
		return store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if k.Created.IsZero() {
		k.Created = time.Now().UTC()
	}
	_, err := c.client.Data().Creator().
		WithID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(k.Key)).String()).
		WithClassName(c.keyClass).
		WithProperties(map[string]interface{}{
			"key":        k.Key,
			"client_ip":  k.ClientIP,
			"created_at": k.Created.Unix(),
		}).
		Do(ctx)
	return store.Wrap("weaviate.InsertKey", "failed to add key", err)
}

func (c *Client) get(ctx context.Context, where *filters.WhereBuilder, sort []graphql.Sort, limit int) ([]store.Record, error) {
	if err := c.InitSchema(ctx); err != nil {
		return nil, err
	}
	get := c.client.GraphQL().Get().
		WithClassName(c.addressClass).
		WithFields(addressFields()...).
		WithWhere(where).
		WithLimit(limit)
	if len(sort) > 0 {
		get = get.WithSort(sort...)
	}
	return c.run(ctx, get)
}

func (c *Client) run(ctx context.Context, get *graphql.GetBuilder) ([]store.Record, error) {
	objs, err := c.objects(ctx, get, c.addressClass)
	if err != nil {
		return nil, err
	}
	recs := make([]store.Record, 0, len(objs))
	for _, obj := range objs {
		recs = append(recs, parseRecord(obj))
	}
	return recs, nil
}

// objects executes a Get query and returns the objects of className
func (c *Client) objects(ctx context.Context, get *graphql.GetBuilder, className string) ([]map[string]interface{}, error) {
	result, err := get.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, _ := data[className].([]interface{})
	objs := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if obj, ok := r.(map[string]interface{}); ok {
			objs = append(objs, obj)
		}
	}
	return objs, nil
}

func addressFields() []graphql.Field {
	return []graphql.Field{
		{Name: query.FieldAddressLine1},
		{Name: query.FieldAddressLine2},
		{Name: query.FieldCity},
		{Name: query.FieldStateProv},
		{Name: query.FieldPostalCode},
		{Name: query.FieldCountry},
		{Name: query.FieldReferenceID},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}
}

func properties(a address.Address, createdAt int64) map[string]interface{} {
	props := map[string]interface{}{
		query.FieldAddressLine1: a.AddressLine1,
		query.FieldAddressLine2: a.AddressLine2,
		query.FieldCity:         a.City,
		query.FieldStateProv:    a.StateProv,
		query.FieldPostalCode:   a.PostalCode,
		query.FieldCountry:      a.Country,
		"created_at":            createdAt,
	}
	if a.ReferenceID != nil {
		props[query.FieldReferenceID] = *a.ReferenceID
	}
	return props
}

// parseRecord converts a GraphQL result object into a Record
func parseRecord(obj map[string]interface{}) store.Record {
	var r store.Record
	if additional, ok := obj["_additional"].(map[string]interface{}); ok {
		r.ID, _ = additional["id"].(string)
	}
	r.AddressLine1, _ = obj[query.FieldAddressLine1].(string)
	r.AddressLine2, _ = obj[query.FieldAddressLine2].(string)
	r.City, _ = obj[query.FieldCity].(string)
	r.StateProv, _ = obj[query.FieldStateProv].(string)
	r.PostalCode, _ = obj[query.FieldPostalCode].(string)
	r.Country, _ = obj[query.FieldCountry].(string)
	if ref, ok := obj[query.FieldReferenceID].(float64); ok {
		r.ReferenceID = address.Ref(int64(ref))
	}
	return r
}

func equalText(field, value string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{field}).
		WithOperator(filters.Equal).
		WithValueText(value)
}

// and combines filters, collapsing a single operand
func and(operands ...*filters.WhereBuilder) *filters.WhereBuilder {
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}

func exactWhere(q query.Exact) *filters.WhereBuilder {
	operands := []*filters.WhereBuilder{
		equalText(query.FieldCity, q.City),
		equalText(query.FieldStateProv, q.StateProv),
		equalText(query.FieldCountry, q.Country),
		filters.Where().
			WithOperator(filters.Or).
			WithOperands([]*filters.WhereBuilder{
				equalText(query.FieldPostalCode, q.PostalCode),
				filters.Where().
					WithPath([]string{query.FieldPostalCode}).
					WithOperator(filters.Like).
					WithValueText(q.PostalPrefix + "*"),
			}),
	}
	if q.AddressLine2 != "" {
		operands = append(operands, equalText(query.FieldAddressLine2, q.AddressLine2))
	}
	return and(operands...)
}

func listWhere(f query.Filter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if f.AddressLine1 != "" {
		operands = append(operands, equalText(query.FieldAddressLine1, f.AddressLine1))
	}
	if f.City != "" {
		operands = append(operands, equalText(query.FieldCity, f.City))
	}
	if f.StateProv != "" {
		operands = append(operands, equalText(query.FieldStateProv, f.StateProv))
	}
	if f.PostalCode != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{query.FieldPostalCode}).
			WithOperator(filters.Like).
			WithValueText(f.PostalCode+"*"))
	}
	if f.Country != "" {
		operands = append(operands, equalText(query.FieldCountry, f.Country))
	}
	if f.ReferenceID != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{query.FieldReferenceID}).
			WithOperator(filters.Equal).
			WithValueInt(*f.ReferenceID))
	}
	if len(operands) == 0 {
		return nil
	}
	return and(operands...)
}

func selectorWhere(sel store.Selector) (*filters.WhereBuilder, error) {
	if sel.ReferenceID != nil {
		return filters.Where().
			WithPath([]string{query.FieldReferenceID}).
			WithOperator(filters.Equal).
			WithValueInt(*sel.ReferenceID), nil
	}
	id, err := uuid.Parse(sel.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidID, sel.ID)
	}
	return filters.Where().
		WithPath([]string{"id"}).
		WithOperator(filters.Equal).
		WithValueText(strfmt.UUID(id.String()).String()), nil
}

func sortBy(field string) []graphql.Sort {
	sorts := []graphql.Sort{}
	if field != "" {
		sorts = append(sorts, graphql.Sort{Path: []string{field}, Order: graphql.Asc})
	}
	return append(sorts, graphql.Sort{Path: []string{"created_at"}, Order: graphql.Asc})
}
