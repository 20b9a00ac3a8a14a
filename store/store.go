// Package store defines the document persistence contract the generated
// resolvers are built on. A backend stores opaque records grouped into named
// collections and supports id-based fetch, filtered find, create, full
// replace, partial update, and removal. Backends: MongoDB, Postgres (JSONB),
// and Memory.
package store

import (
	"context"
	"errors"
	"fmt"
)

// IDField is the canonical identifier key of every stored record.
const IDField = "_id"

var (
	// ErrNotFound is returned by id-based writes when no record matched.
	// Id-based reads return a nil record instead.
	ErrNotFound = errors.New("store: record not found")

	// ErrDuplicateID is returned when inserting a record whose id already
	// exists in the collection.
	ErrDuplicateID = errors.New("store: duplicate record id")
)

// Record is an opaque document: field name to value.
type Record map[string]any

// ID returns the record's identifier value, or nil.
func (r Record) ID() any {
	if r == nil {
		return nil
	}
	return r[IDField]
}

// Clone returns a deep copy of the record. Nested maps and slices are
// copied; all other values are shared (expected to be scalars).
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Record:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Filter selects records by field equality. All pairs must match.
type Filter map[string]any

// SortField orders a result set by one field.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions carries the optional knobs of a read operation.
type FindOptions struct {
	// Projection limits returned fields. Empty means all fields.
	// The id field is always included.
	Projection []string

	Sort  []SortField
	Limit int64
	Skip  int64
}

// Store is the document persistence contract. All operations are
// context-aware and safe for concurrent use.
type Store interface {
	// FindByID returns the record with the given id, or nil when absent.
	FindByID(ctx context.Context, collection string, id any, opts FindOptions) (Record, error)

	// FindByIDs returns the records matching the given ids. Missing ids are
	// silently absent from the result.
	FindByIDs(ctx context.Context, collection string, ids []any, opts FindOptions) ([]Record, error)

	// Find returns the records matching the filter.
	Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Record, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, collection string, filter Filter) (int64, error)

	// Insert stores new records. Every record must carry an id.
	Insert(ctx context.Context, collection string, records ...Record) error

	// Replace overwrites the record with the given id wholesale.
	Replace(ctx context.Context, collection string, id any, record Record) error

	// UpdateByID sets the given top-level fields on the record.
	UpdateByID(ctx context.Context, collection string, id any, set Record) error

	// UpdateMany sets the given top-level fields on every record matching
	// the filter and returns the number of matched records.
	UpdateMany(ctx context.Context, collection string, filter Filter, set Record) (int64, error)

	// DeleteByID removes the record with the given id.
	DeleteByID(ctx context.Context, collection string, id any) error

	// DeleteMany removes every record matching the filter and returns the
	// number removed.
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)

	// Migrate prepares backend schema and indexes.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// Project returns a copy of the record limited to the given fields.
// The id field is always kept. An empty field list returns the record as-is.
func Project(r Record, fields []string) Record {
	if r == nil || len(fields) == 0 {
		return r
	}
	out := make(Record, len(fields)+1)
	if v, ok := r[IDField]; ok {
		out[IDField] = v
	}
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Key normalizes an id value to its string form. Backends index records by
// key so that numeric and string ids compare consistently.
func Key(id any) string {
	return fmt.Sprint(id)
}
