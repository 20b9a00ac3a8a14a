// Package memory provides an in-memory implementation of the document store.
// It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ew-kislov/apigen/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a thread-safe in-memory document store.
type Store struct {
	mu sync.RWMutex

	// collection -> id key -> record
	collections map[string]map[string]store.Record
	// collection -> insertion order of id keys
	order map[string][]string
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]store.Record),
		order:       make(map[string][]string),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func (s *Store) FindByID(_ context.Context, collection string, id any, opts store.FindOptions) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][store.Key(id)]
	if !ok {
		return nil, nil
	}
	return store.Project(rec.Clone(), opts.Projection), nil
}

func (s *Store) FindByIDs(_ context.Context, collection string, ids []any, opts store.FindOptions) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.collections[collection][store.Key(id)]; ok {
			out = append(out, store.Project(rec.Clone(), opts.Projection))
		}
	}
	return out, nil
}

func (s *Store) Find(_ context.Context, collection string, filter store.Filter, opts store.FindOptions) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(collection, filter)
	sortRecords(matched, opts.Sort)

	matched = slice(matched, opts.Skip, opts.Limit)
	out := make([]store.Record, len(matched))
	for i, rec := range matched {
		out[i] = store.Project(rec.Clone(), opts.Projection)
	}
	return out, nil
}

func (s *Store) Count(_ context.Context, collection string, filter store.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.matchLocked(collection, filter))), nil
}

func (s *Store) Insert(_ context.Context, collection string, records ...store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[collection]
	if col == nil {
		col = make(map[string]store.Record)
		s.collections[collection] = col
	}
	for _, rec := range records {
		id := rec.ID()
		if id == nil {
			return fmt.Errorf("memory: insert into %s: record has no id", collection)
		}
		key := store.Key(id)
		if _, exists := col[key]; exists {
			return fmt.Errorf("insert %s into %s: %w", key, collection, store.ErrDuplicateID)
		}
		col[key] = rec.Clone()
		s.order[collection] = append(s.order[collection], key)
	}
	return nil
}

func (s *Store) Replace(_ context.Context, collection string, id any, record store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[collection]
	key := store.Key(id)
	prev, ok := col[key]
	if !ok {
		return fmt.Errorf("replace %s in %s: %w", key, collection, store.ErrNotFound)
	}
	next := record.Clone()
	next[store.IDField] = prev[store.IDField]
	col[key] = next
	return nil
}

func (s *Store) UpdateByID(_ context.Context, collection string, id any, set store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[collection]
	key := store.Key(id)
	rec, ok := col[key]
	if !ok {
		return fmt.Errorf("update %s in %s: %w", key, collection, store.ErrNotFound)
	}
	applySet(rec, set)
	return nil
}

func (s *Store) UpdateMany(_ context.Context, collection string, filter store.Filter, set store.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.matchLocked(collection, filter)
	for _, rec := range matched {
		applySet(rec, set)
	}
	return int64(len(matched)), nil
}

func (s *Store) DeleteByID(_ context.Context, collection string, id any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := store.Key(id)
	if _, ok := s.collections[collection][key]; !ok {
		return fmt.Errorf("delete %s from %s: %w", key, collection, store.ErrNotFound)
	}
	delete(s.collections[collection], key)
	s.dropFromOrder(collection, key)
	return nil
}

func (s *Store) DeleteMany(_ context.Context, collection string, filter store.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.matchLocked(collection, filter)
	for _, rec := range matched {
		key := store.Key(rec.ID())
		delete(s.collections[collection], key)
		s.dropFromOrder(collection, key)
	}
	return int64(len(matched)), nil
}

// matchLocked returns the live records matching the filter, in insertion
// order. Caller must hold at least the read lock.
func (s *Store) matchLocked(collection string, filter store.Filter) []store.Record {
	col := s.collections[collection]
	var out []store.Record
	for _, key := range s.order[collection] {
		rec, ok := col[key]
		if !ok {
			continue
		}
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) dropFromOrder(collection, key string) {
	keys := s.order[collection]
	for i, k := range keys {
		if k == key {
			s.order[collection] = append(keys[:i], keys[i+1:]...)
			return
		}
	}
}

// matches reports field equality by string form, so numeric ids and owner
// values compare consistently with their string representation.
func matches(rec store.Record, filter store.Filter) bool {
	for field, want := range filter {
		got, ok := rec[field]
		if !ok {
			return false
		}
		if store.Key(got) != store.Key(want) {
			return false
		}
	}
	return true
}

func applySet(rec store.Record, set store.Record) {
	for k, v := range set {
		if k == store.IDField {
			continue
		}
		rec[k] = store.Record{k: v}.Clone()[k]
	}
}

func sortRecords(recs []store.Record, fields []store.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, f := range fields {
			a := store.Key(recs[i][f.Field])
			b := store.Key(recs[j][f.Field])
			if a == b {
				continue
			}
			if f.Desc {
				return a > b
			}
			return a < b
		}
		return false
	})
}

func slice(recs []store.Record, skip, limit int64) []store.Record {
	if skip > 0 {
		if skip >= int64(len(recs)) {
			return nil
		}
		recs = recs[skip:]
	}
	if limit > 0 && limit < int64(len(recs)) {
		recs = recs[:limit]
	}
	return recs
}
