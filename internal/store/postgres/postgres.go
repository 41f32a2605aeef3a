// Package postgres stores reference addresses and API keys in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/query"
	"github.com/TFMV/avs/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time checks to ensure Store implements the store interfaces.
var (
	_ store.Store         = (*Store)(nil)
	_ store.BatchInserter = (*Store)(nil)
)

// Open creates the connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, store.Wrap("postgres.Open", "failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, store.Wrap("postgres.Open", "failed to reach database", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) FindOne(ctx context.Context, q query.Exact) (*store.Record, error) {
	sql, args := exactQuery(q)
	rec, err := scanRecord(s.pool.QueryRow(ctx, sql, args...))
	return rec, store.Wrap("postgres.FindOne", "exact lookup failed", err)
}

func (s *Store) TextSearch(ctx context.Context, q query.Text) ([]store.Record, error) {
	if len(q.Words()) == 0 {
		return nil, nil
	}
	sql, args := textQuery(q)
	recs, err := s.collect(ctx, sql, args)
	return recs, store.Wrap("postgres.TextSearch", "text search failed", err)
}

func (s *Store) List(ctx context.Context, f query.Filter) ([]store.Record, error) {
	sql, args := listQuery(f.Canonical())
	recs, err := s.collect(ctx, sql, args)
	return recs, store.Wrap("postgres.List", "listing failed", err)
}

func (s *Store) collect(ctx context.Context, sql string, args []any) ([]store.Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func (s *Store) Get(ctx context.Context, sel store.Selector) (*store.Record, error) {
	cond, arg, err := selectorCondition(sel)
	if err != nil {
		return nil, err
	}
	sql := "SELECT " + recordColumns + " FROM addresses WHERE " + cond + " ORDER BY created_at, id LIMIT 1"
	rec, err := scanRecord(s.pool.QueryRow(ctx, sql, arg))
	return rec, store.Wrap("postgres.Get", "lookup failed", err)
}

func (s *Store) Exists(ctx context.Context, a address.Address) (bool, error) {
	sql, args := sameAddressQuery(a)
	var exists bool
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, store.Wrap("postgres.Exists", "duplicate check failed", err)
	}
	return exists, nil
}

func (s *Store) Insert(ctx context.Context, a address.Address) (*store.Record, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO addresses (id, address_line1, address_line2, city, state_prov, postal_code, country, reference_id)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)`,
		id, a.AddressLine1, a.AddressLine2, a.City, a.StateProv, a.PostalCode, a.Country, a.ReferenceID,
	)
	if err != nil {
		return nil, store.Wrap("postgres.Insert", "insert failed", err)
	}
	return &store.Record{ID: id, Address: a.Clone()}, nil
}

func (s *Store) Update(ctx context.Context, sel store.Selector, a address.Address) (*store.Record, error) {
	cond, arg, err := selectorCondition(sel)
	if err != nil {
		return nil, err
	}

	// The CTE captures the previous row so the caller sees both versions
	sql := `
		WITH prev AS (
			SELECT ` + recordColumns + `, id AS row_id FROM addresses
			WHERE ` + cond + ` ORDER BY created_at, id LIMIT 1 FOR UPDATE
		)
		UPDATE addresses a SET
			address_line1 = $2, address_line2 = $3, city = $4, state_prov = $5,
			postal_code = $6, country = $7, reference_id = COALESCE($8, a.reference_id),
			updated_at = now()
		FROM prev WHERE a.id = prev.row_id
		RETURNING prev.id, prev.address_line1, prev.address_line2, prev.city, prev.state_prov,
			prev.postal_code, prev.country, prev.reference_id`
	rec, err := scanRecord(s.pool.QueryRow(ctx, sql,
		arg, a.AddressLine1, a.AddressLine2, a.City, a.StateProv, a.PostalCode, a.Country, a.ReferenceID,
	))
	return rec, store.Wrap("postgres.Update", "update failed", err)
}

func (s *Store) Delete(ctx context.Context, sel store.Selector) (*store.Record, error) {
	cond, arg, err := selectorCondition(sel)
	if err != nil {
		return nil, err
	}
	sql := `DELETE FROM addresses WHERE id = (
			SELECT id FROM addresses WHERE ` + cond + ` ORDER BY created_at, id LIMIT 1
		) RETURNING ` + recordColumns
	rec, err := scanRecord(s.pool.QueryRow(ctx, sql, arg))
	return rec, store.Wrap("postgres.Delete", "delete failed", err)
}

func (s *Store) Ping(ctx context.Context) error {
	return store.Wrap("postgres.Ping", "ping failed", s.pool.Ping(ctx))
}

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) FindKey(ctx context.Context, key string) (*store.APIKey, error) {
	return s.findKey(ctx, "postgres.FindKey", "key = $1", key)
}

func (s *Store) FindKeyByClient(ctx context.Context, clientIP string) (*store.APIKey, error) {
	return s.findKey(ctx, "postgres.FindKeyByClient", "client_ip = $1", clientIP)
}

func (s *Store) findKey(ctx context.Context, op, cond, arg string) (*store.APIKey, error) {
	var k store.APIKey
	err := s.pool.QueryRow(ctx, "SELECT key, client_ip, created_at FROM api_keys WHERE "+cond, arg).
		Scan(&k.Key, &k.ClientIP, &k.Created)
	if err != nil {
		return nil, store.Wrap(op, "key lookup failed", notFound(err))
	}
	return &k, nil
}

func (s *Store) InsertKey(ctx context.Context, k store.APIKey) error {
	if k.Created.IsZero() {
		k.Created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO api_keys (key, client_ip, created_at) VALUES ($1, $2, $3)",
		k.Key, k.ClientIP, k.Created,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrConflict
	}
	return store.Wrap("postgres.InsertKey", "insert failed", err)
}

// selectorCondition renders sel as a condition on placeholder $1.
func selectorCondition(sel store.Selector) (string, any, error) {
	if sel.ReferenceID != nil {
		return "reference_id = $1", *sel.ReferenceID, nil
	}
	id, err := uuid.Parse(sel.ID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s", store.ErrInvalidID, sel.ID)
	}
	return "id = $1::uuid", id.String(), nil
}

func scanRecord(row pgx.Row) (*store.Record, error) {
	var rec store.Record
	err := row.Scan(
		&rec.ID,
		&rec.AddressLine1,
		&rec.AddressLine2,
		&rec.City,
		&rec.StateProv,
		&rec.PostalCode,
		&rec.Country,
		&rec.ReferenceID,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// notFound maps pgx's empty result error onto store.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// InsertMany loads a batch of addresses in one pipelined round trip.
func (s *Store) InsertMany(ctx context.Context, batch []address.Address) ([]store.Record, error) {
	b := &pgx.Batch{}
	recs := make([]store.Record, len(batch))
	for i, a := range batch {
		recs[i] = store.Record{ID: uuid.NewString(), Address: a.Clone()}
		b.Queue(`
			INSERT INTO addresses (id, address_line1, address_line2, city, state_prov, postal_code, country, reference_id)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)`,
			recs[i].ID, a.AddressLine1, a.AddressLine2, a.City, a.StateProv, a.PostalCode, a.Country, a.ReferenceID,
		)
	}

	if err := s.pool.SendBatch(ctx, b).Close(); err != nil {
		return nil, store.Wrap("postgres.InsertMany", "batch insert failed", err)
	}
	return recs, nil
}
