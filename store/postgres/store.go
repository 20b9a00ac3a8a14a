// Package postgres implements the document store on PostgreSQL, keeping
// records as JSONB rows in a single table.
//
// Filter matching compares the text form of document fields, so numeric and
// string values address the same records, consistent with the other
// backends.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ew-kislov/apigen/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

const table = "apigen_documents"

// Store is a PostgreSQL implementation of the document store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL store on an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the documents table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			seq        BIGSERIAL,
			collection TEXT  NOT NULL,
			id         TEXT  NOT NULL,
			doc        JSONB NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + table + `_doc_idx ON ` + table + ` USING GIN (doc)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apigen/postgres: migrate: %w", err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) FindByID(ctx context.Context, collection string, id any, opts store.FindOptions) (store.Record, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM `+table+` WHERE collection = $1 AND id = $2`,
		collection, store.Key(id)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apigen: find by id: %w", err)
	}
	rec, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("apigen: find by id: %w", err)
	}
	return store.Project(rec, opts.Projection), nil
}

func (s *Store) FindByIDs(ctx context.Context, collection string, ids []any, opts store.FindOptions) ([]store.Record, error) {
	if len(ids) == 0 {
		return []store.Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = store.Key(id)
	}
	q := `SELECT doc FROM ` + table + ` WHERE collection = $1 AND id = ANY($2) ORDER BY seq`
	return s.queryDocs(ctx, q, []any{collection, keys}, opts, "find by ids")
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter, opts store.FindOptions) ([]store.Record, error) {
	q, args := selectQuery(collection, filter, opts)
	return s.queryDocs(ctx, q, args, opts, "find")
}

func (s *Store) Count(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	var b strings.Builder
	b.WriteString(`SELECT count(*) FROM ` + table)
	args := whereClause(&b, collection, filter)

	var count int64
	if err := s.pool.QueryRow(ctx, b.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("apigen: count: %w", err)
	}
	return count, nil
}

func (s *Store) Insert(ctx context.Context, collection string, records ...store.Record) error {
	for _, r := range records {
		doc, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("apigen: insert: %w", err)
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO `+table+` (collection, id, doc) VALUES ($1, $2, $3)`,
			collection, store.Key(r.ID()), doc)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("apigen: insert: %w", store.ErrDuplicateID)
			}
			return fmt.Errorf("apigen: insert: %w", err)
		}
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, collection string, id any, record store.Record) error {
	key := store.Key(id)
	rec := record.Clone()
	if rec.ID() == nil {
		rec[store.IDField] = key
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("apigen: replace: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET doc = $3 WHERE collection = $1 AND id = $2`,
		collection, key, doc)
	if err != nil {
		return fmt.Errorf("apigen: replace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", key, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateByID(ctx context.Context, collection string, id any, set store.Record) error {
	key := store.Key(id)
	patch, err := json.Marshal(setFields(set))
	if err != nil {
		return fmt.Errorf("apigen: update by id: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET doc = doc || $3::jsonb WHERE collection = $1 AND id = $2`,
		collection, key, patch)
	if err != nil {
		return fmt.Errorf("apigen: update by id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", key, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateMany(ctx context.Context, collection string, filter store.Filter, set store.Record) (int64, error) {
	patch, err := json.Marshal(setFields(set))
	if err != nil {
		return 0, fmt.Errorf("apigen: update many: %w", err)
	}

	var b strings.Builder
	b.WriteString(`UPDATE ` + table + ` SET doc = doc || $`)
	args := []any{patch}
	b.WriteString(strconv.Itoa(len(args)))
	b.WriteString(`::jsonb`)
	args = append(args, whereClauseFrom(&b, collection, filter, len(args))...)

	tag, err := s.pool.Exec(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("apigen: update many: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteByID(ctx context.Context, collection string, id any) error {
	key := store.Key(id)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+table+` WHERE collection = $1 AND id = $2`,
		collection, key)
	if err != nil {
		return fmt.Errorf("apigen: delete by id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", key, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	var b strings.Builder
	b.WriteString(`DELETE FROM ` + table)
	args := whereClause(&b, collection, filter)

	tag, err := s.pool.Exec(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("apigen: delete many: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryDocs(ctx context.Context, q string, args []any, opts store.FindOptions, op string) ([]store.Record, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("apigen: %s: %w", op, err)
	}
	defer rows.Close()

	result := []store.Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("apigen: %s: %w", op, err)
		}
		rec, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("apigen: %s: %w", op, err)
		}
		result = append(result, store.Project(rec, opts.Projection))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("apigen: %s: %w", op, err)
	}
	return result, nil
}

// selectQuery builds a filtered SELECT with sort and pagination.
func selectQuery(collection string, filter store.Filter, opts store.FindOptions) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT doc FROM ` + table)
	args := whereClause(&b, collection, filter)

	b.WriteString(` ORDER BY `)
	for _, sf := range opts.Sort {
		args = append(args, sf.Field)
		b.WriteString(`doc->>$` + strconv.Itoa(len(args)))
		if sf.Desc {
			b.WriteString(` DESC`)
		}
		b.WriteString(`, `)
	}
	b.WriteString(`seq`)

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		b.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}
	if opts.Skip > 0 {
		args = append(args, opts.Skip)
		b.WriteString(` OFFSET $` + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

// whereClause appends a WHERE clause matching the collection and filter,
// returning the accumulated arguments.
func whereClause(b *strings.Builder, collection string, filter store.Filter) []any {
	return whereClauseFrom(b, collection, filter, 0)
}

// whereClauseFrom is whereClause with the argument numbering offset by the
// caller's already-bound parameters.
func whereClauseFrom(b *strings.Builder, collection string, filter store.Filter, bound int) []any {
	args := []any{collection}
	b.WriteString(` WHERE collection = $` + strconv.Itoa(bound+1))
	for k, v := range filter {
		if k == store.IDField {
			args = append(args, store.Key(v))
			b.WriteString(` AND id = $` + strconv.Itoa(bound+len(args)))
			continue
		}
		args = append(args, k)
		b.WriteString(` AND doc->>$` + strconv.Itoa(bound+len(args)))
		args = append(args, store.Key(v))
		b.WriteString(` = $` + strconv.Itoa(bound+len(args)))
	}
	return args
}

// setFields strips the id field from a partial update. The id keys the row
// and never changes.
func setFields(set store.Record) store.Record {
	out := make(store.Record, len(set))
	for k, v := range set {
		if k == store.IDField {
			continue
		}
		out[k] = v
	}
	return out
}

func decode(raw []byte) (store.Record, error) {
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// isUniqueViolation checks for a primary key conflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
