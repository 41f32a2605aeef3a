// Package mongo stores reference addresses and API keys in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
	"github.com/TFMV/avs/internal/store"
)

// Config holds the MongoDB connection settings
type Config struct {
	URI               string
	Database          string
	AddressCollection string
	KeyCollection     string
}

// Store implements store.Store on two MongoDB collections.
type Store struct {
	client    *mongo.Client
	addresses *mongo.Collection
	keys      *mongo.Collection
}

// Compile-time checks to ensure Store implements the store interfaces.
var (
	_ store.Store         = (*Store)(nil)
	_ store.BatchInserter = (*Store)(nil)
)

// addressDoc is the stored shape of a reference address
type addressDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	AddressLine1 string             `bson:"addressLine1"`
	AddressLine2 string             `bson:"addressLine2,omitempty"`
	City         string             `bson:"city"`
	StateProv    string             `bson:"stateProv"`
	PostalCode   string             `bson:"postalCode"`
	Country      string             `bson:"country"`
	ReferenceID  *int64             `bson:"referenceId,omitempty"`
}

type keyDoc struct {
	Key      string    `bson:"key"`
	ClientIP string    `bson:"client_ip"`
	Created  time.Time `bson:"time_generated"`
}

// Open connects to MongoDB and ensures the text and unique indexes exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, store.Wrap("mongo.Open", "failed to connect", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:    client,
		addresses: db.Collection(cfg.AddressCollection),
		keys:      db.Collection(cfg.KeyCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.addresses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: query.FieldAddressLine1, Value: "text"}}},
		{Keys: bson.D{{Key: query.FieldReferenceID, Value: 1}}},
		{Keys: bson.D{
			{Key: query.FieldCountry, Value: 1},
			{Key: query.FieldStateProv, Value: 1},
			{Key: query.FieldCity, Value: 1},
		}},
	})
	if err != nil {
		return store.Wrap("mongo.ensureIndexes", "failed to create address indexes", err)
	}

	_, err = s.keys.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "client_ip", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return store.Wrap("mongo.ensureIndexes", "failed to create key indexes", err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, q query.Exact) (*store.Record, error) {
	var doc addressDoc
	err := s.addresses.FindOne(ctx, exactFilter(q)).Decode(&doc)
	if err != nil {
		return nil, store.Wrap("mongo.FindOne", "exact lookup failed", notFound(err))
	}
	return doc.record(), nil
}

func (s *Store) TextSearch(ctx context.Context, q query.Text) ([]store.Record, error) {
	score := bson.M{"score": bson.M{"$meta": "textScore"}}
	opts := options.Find().
		SetProjection(score).
		SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	recs, err := s.find(ctx, textFilter(q), opts)
	return recs, store.Wrap("mongo.TextSearch", "text search failed", err)
}

func (s *Store) List(ctx context.Context, f query.Filter) ([]store.Record, error) {
	f = f.Canonical()
	opts := options.Find().SetLimit(int64(f.Limit))
	if f.Sort != "" {
		opts.SetSort(bson.D{{Key: f.Sort, Value: 1}})
	}

	recs, err := s.find(ctx, listFilter(f), opts)
	return recs, store.Wrap("mongo.List", "listing failed", err)
}

func (s *Store) find(ctx context.Context, filter any, opts *options.FindOptions) ([]store.Record, error) {
	cur, err := s.addresses.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []addressDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	recs := make([]store.Record, len(docs))
	for i := range docs {
		recs[i] = *docs[i].record()
	}
	return recs, nil
}

func (s *Store) Get(ctx context.Context, sel store.Selector) (*store.Record, error) {
	filter, err := selectorFilter(sel)
	if err != nil {
		return nil, err
	}

	var doc addressDoc
	if err := s.addresses.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, store.Wrap("mongo.Get", "lookup failed", notFound(err))
	}
	return doc.record(), nil
}

func (s *Store) Exists(ctx context.Context, a address.Address) (bool, error) {
	n, err := s.addresses.CountDocuments(ctx, sameAddressFilter(a), options.Count().SetLimit(1))
	if err != nil {
		return false, store.Wrap("mongo.Exists", "duplicate check failed", err)
	}
	return n > 0, nil
}

func (s *Store) Insert(ctx context.Context, a address.Address) (*store.Record, error) {
	doc := toDoc(a)
	res, err := s.addresses.InsertOne(ctx, doc)
	if err != nil {
		return nil, store.Wrap("mongo.Insert", "insert failed", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = id
	}
	return doc.record(), nil
}

func (s *Store) Update(ctx context.Context, sel store.Selector, a address.Address) (*store.Record, error) {
	filter, err := selectorFilter(sel)
	if err != nil {
		return nil, err
	}

	var prev addressDoc
	err = s.addresses.FindOneAndUpdate(ctx, filter, updateDoc(a),
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&prev)
	if err != nil {
		return nil, store.Wrap("mongo.Update", "update failed", notFound(err))
	}
	return prev.record(), nil
}

func (s *Store) Delete(ctx context.Context, sel store.Selector) (*store.Record, error) {
	filter, err := selectorFilter(sel)
	if err != nil {
		return nil, err
	}

	var doc addressDoc
	if err := s.addresses.FindOneAndDelete(ctx, filter).Decode(&doc); err != nil {
		return nil, store.Wrap("mongo.Delete", "delete failed", notFound(err))
	}
	return doc.record(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return store.Wrap("mongo.Ping", "ping failed", s.client.Ping(ctx, readpref.Primary()))
}

func (s *Store) Close(ctx context.Context) error {
	return store.Wrap("mongo.Close", "disconnect failed", s.client.Disconnect(ctx))
}

func (s *Store) FindKey(ctx context.Context, key string) (*store.APIKey, error) {
	return s.findKey(ctx, "mongo.FindKey", bson.M{"key": key})
}

func (s *Store) FindKeyByClient(ctx context.Context, clientIP string) (*store.APIKey, error) {
	return s.findKey(ctx, "mongo.FindKeyByClient", bson.M{"client_ip": clientIP})
}

func (s *Store) findKey(ctx context.Context, op string, filter bson.M) (*store.APIKey, error) {
	var doc keyDoc
	if err := s.keys.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, store.Wrap(op, "key lookup failed", notFound(err))
	}
	return &store.APIKey{Key: doc.Key, ClientIP: doc.ClientIP, Created: doc.Created}, nil
}

func (s *Store) InsertKey(ctx context.Context, k store.APIKey) error {
	if k.Created.IsZero() {
		k.Created = time.Now().UTC()
	}
	_, err := s.keys.InsertOne(ctx, keyDoc{Key: k.Key, ClientIP: k.ClientIP, Created: k.Created})
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrConflict
	}
	return store.Wrap("mongo.InsertKey", "insert failed", err)
}

// notFound maps the driver's no-document error onto store.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

func exactFilter(q query.Exact) bson.D {
	filter := bson.D{
		{Key: query.FieldAddressLine1, Value: bson.M{"$regex": q.StreetPattern, "$options": "i"}},
	}
	if q.AddressLine2 != "" {
		filter = append(filter, bson.E{Key: query.FieldAddressLine2, Value: q.AddressLine2})
	}
	return append(filter,
		bson.E{Key: query.FieldCity, Value: q.City},
		bson.E{Key: query.FieldStateProv, Value: q.StateProv},
		bson.E{Key: query.FieldCountry, Value: q.Country},
		bson.E{Key: "$or", Value: bson.A{
			bson.M{query.FieldPostalCode: q.PostalCode},
			bson.M{query.FieldPostalCode: bson.M{"$regex": "^" + regexp.QuoteMeta(q.PostalPrefix)}},
		}},
	)
}

func textFilter(q query.Text) bson.D {
	filter := bson.D{{Key: "$text", Value: bson.M{"$search": strings.Join(q.Words(), " ")}}}
	if q.Country != "" {
		filter = append(filter, bson.E{Key: query.FieldCountry, Value: q.Country})
	}
	return filter
}

func listFilter(f query.Filter) bson.D {
	filter := bson.D{}
	add := func(key string, value any) {
		filter = append(filter, bson.E{Key: key, Value: value})
	}
	if f.AddressLine1 != "" {
		add(query.FieldAddressLine1, f.AddressLine1)
	}
	if f.City != "" {
		add(query.FieldCity, f.City)
	}
	if f.StateProv != "" {
		add(query.FieldStateProv, f.StateProv)
	}
	if p := f.PostalPattern(); p != "" {
		add(query.FieldPostalCode, bson.M{"$regex": p})
	}
	if f.Country != "" {
		add(query.FieldCountry, f.Country)
	}
	if f.ReferenceID != nil {
		add(query.FieldReferenceID, *f.ReferenceID)
	}
	if f.Search != "" {
		add("$text", bson.M{"$search": f.Search})
	}
	return filter
}

func sameAddressFilter(a address.Address) bson.D {
	filter := bson.D{
		{Key: query.FieldAddressLine1, Value: a.AddressLine1},
		{Key: query.FieldCity, Value: a.City},
		{Key: query.FieldStateProv, Value: a.StateProv},
		{Key: query.FieldPostalCode, Value: a.PostalCode},
		{Key: query.FieldCountry, Value: a.Country},
	}
	if a.AddressLine2 != "" {
		return append(filter, bson.E{Key: query.FieldAddressLine2, Value: a.AddressLine2})
	}
	return append(filter, bson.E{Key: query.FieldAddressLine2, Value: bson.M{"$exists": false}})
}

func selectorFilter(sel store.Selector) (bson.M, error) {
	if sel.ReferenceID != nil {
		return bson.M{query.FieldReferenceID: *sel.ReferenceID}, nil
	}
	id, err := primitive.ObjectIDFromHex(sel.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidID, sel.ID)
	}
	return bson.M{"_id": id}, nil
}

// updateDoc replaces the address fields, keeping the stored reference ID when
// the new address has none.
func updateDoc(a address.Address) bson.D {
	set := bson.D{
		{Key: query.FieldAddressLine1, Value: a.AddressLine1},
		{Key: query.FieldCity, Value: a.City},
		{Key: query.FieldStateProv, Value: a.StateProv},
		{Key: query.FieldPostalCode, Value: a.PostalCode},
		{Key: query.FieldCountry, Value: a.Country},
	}
	if a.ReferenceID != nil {
		set = append(set, bson.E{Key: query.FieldReferenceID, Value: *a.ReferenceID})
	}
	if a.AddressLine2 != "" {
		set = append(set, bson.E{Key: query.FieldAddressLine2, Value: a.AddressLine2})
		return bson.D{{Key: "$set", Value: set}}
	}
	return bson.D{
		{Key: "$set", Value: set},
		{Key: "$unset", Value: bson.M{query.FieldAddressLine2: ""}},
	}
}

func toDoc(a address.Address) addressDoc {
	return addressDoc{
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		StateProv:    a.StateProv,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		ReferenceID:  a.ReferenceID,
	}
}

func (d addressDoc) record() *store.Record {
	return &store.Record{
		ID: d.ID.Hex(),
		Address: address.Address{
			AddressLine1: d.AddressLine1,
			AddressLine2: d.AddressLine2,
			City:         d.City,
			StateProv:    d.StateProv,
			PostalCode:   d.PostalCode,
			Country:      d.Country,
			ReferenceID:  d.ReferenceID,
		},
	}
}

// InsertMany loads a batch of addresses with a single unordered insert.
func (s *Store) InsertMany(ctx context.Context, batch []address.Address) ([]store.Record, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	docs := make([]any, len(batch))
	for i, a := range batch {
		docs[i] = toDoc(a)
	}

	res, err := s.addresses.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return nil, store.Wrap("mongo.InsertMany", "batch insert failed", err)
	}

	recs := make([]store.Record, len(batch))
	for i, a := range batch {
		recs[i] = store.Record{Address: a.Clone()}
		if i < len(res.InsertedIDs) {
			if id, ok := res.InsertedIDs[i].(primitive.ObjectID); ok {
				recs[i].ID = id.Hex()
			}
		}
	}
	return recs, nil
}
