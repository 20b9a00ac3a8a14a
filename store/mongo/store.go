// Package mongo implements the document store on MongoDB via Grove.
//
// Records are stored one document per record, keyed by the string form of
// their id so that numeric and string ids address the same document.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/ew-kislov/apigen/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Index declares a secondary index created by Migrate.
type Index struct {
	Collection string
	Fields     []string
	Unique     bool
}

// Store is a MongoDB implementation of the document store.
type Store struct {
	db      *grove.DB
	mdb     *mongodriver.MongoDB
	indexes []Index
}

// New creates a MongoDB store backed by Grove. The given indexes are
// created when Migrate runs.
func New(db *grove.DB, indexes ...Index) *Store {
	return &Store{
		db:      db,
		mdb:     mongodriver.Unwrap(db),
		indexes: indexes,
	}
}

// Migrate creates the declared indexes.
func (s *Store) Migrate(ctx context.Context) error {
	byCollection := make(map[string][]mongod.IndexModel)
	for _, idx := range s.indexes {
		if len(idx.Fields) == 0 {
			continue
		}
		keys := make(bson.D, 0, len(idx.Fields))
		for _, f := range idx.Fields {
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		model := mongod.IndexModel{Keys: keys}
		if idx.Unique {
			model.Options = options.Index().SetUnique(true)
		}
		byCollection[idx.Collection] = append(byCollection[idx.Collection], model)
	}
	for col, models := range byCollection {
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("apigen/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FindByID(ctx context.Context, collection string, id any, opts store.FindOptions) (store.Record, error) {
	findOpts := options.FindOne()
	if p := projection(opts); p != nil {
		findOpts = findOpts.SetProjection(p)
	}

	var doc bson.M
	err := s.col(collection).FindOne(ctx, bson.M{store.IDField: store.Key(id)}, findOpts).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("apigen: find by id: %w", err)
	}
	return store.Record(doc), nil
}

func (s *Store) FindByIDs(ctx context.Context, collection string, ids []any, opts store.FindOptions) ([]store.Record, error) {
	if len(ids) == 0 {
		return []store.Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = store.Key(id)
	}
	return s.findAll(ctx, collection, bson.M{store.IDField: bson.M{"$in": keys}}, opts, "find by ids")
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter, opts store.FindOptions) ([]store.Record, error) {
	return s.findAll(ctx, collection, toBSON(filter), opts, "find")
}

func (s *Store) Count(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	count, err := s.col(collection).CountDocuments(ctx, toBSON(filter))
	if err != nil {
		return 0, fmt.Errorf("apigen: count: %w", err)
	}
	return count, nil
}

func (s *Store) Insert(ctx context.Context, collection string, records ...store.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]any, len(records))
	for i, r := range records {
		doc := bson.M(r.Clone())
		doc[store.IDField] = store.Key(r.ID())
		docs[i] = doc
	}
	if _, err := s.col(collection).InsertMany(ctx, docs); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("apigen: insert: %w", store.ErrDuplicateID)
		}
		return fmt.Errorf("apigen: insert: %w", err)
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, collection string, id any, record store.Record) error {
	key := store.Key(id)
	doc := bson.M(record.Clone())
	doc[store.IDField] = key

	res, err := s.col(collection).ReplaceOne(ctx, bson.M{store.IDField: key}, doc)
	if err != nil {
		return fmt.Errorf("apigen: replace: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("record %s: %w", key, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateByID(ctx context.Context, collection string, id any, set store.Record) error {
	key := store.Key(id)
	res, err := s.col(collection).UpdateOne(ctx,
		bson.M{store.IDField: key},
		bson.M{"$set": setFields(set)})
	if err != nil {
		return fmt.Errorf("apigen: update by id: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("record %s: %w", key, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateMany(ctx context.Context, collection string, filter store.Filter, set store.Record) (int64, error) {
	res, err := s.col(collection).UpdateMany(ctx, toBSON(filter), bson.M{"$set": setFields(set)})
	if err != nil {
		return 0, fmt.Errorf("apigen: update many: %w", err)
	}
	return res.MatchedCount, nil
}

func (s *Store) DeleteByID(ctx context.Context, collection string, id any) error {
	key := store.Key(id)
	res, err := s.col(collection).DeleteOne(ctx, bson.M{store.IDField: key})
	if err != nil {
		return fmt.Errorf("apigen: delete by id: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("record %s: %w", key, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	res, err := s.col(collection).DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, fmt.Errorf("apigen: delete many: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) col(name string) *mongod.Collection {
	return s.mdb.Collection(name)
}

func (s *Store) findAll(ctx context.Context, collection string, filter bson.M, opts store.FindOptions, op string) ([]store.Record, error) {
	findOpts := options.Find()
	if p := projection(opts); p != nil {
		findOpts = findOpts.SetProjection(p)
	}
	if len(opts.Sort) > 0 {
		sort := make(bson.D, 0, len(opts.Sort))
		for _, sf := range opts.Sort {
			dir := 1
			if sf.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: sf.Field, Value: dir})
		}
		findOpts = findOpts.SetSort(sort)
	}
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts = findOpts.SetSkip(opts.Skip)
	}

	cur, err := s.col(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("apigen: %s: %w", op, err)
	}
	defer cur.Close(ctx)

	result := []store.Record{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("apigen: %s: %w", op, err)
		}
		result = append(result, store.Record(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("apigen: %s: %w", op, err)
	}
	return result, nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// toBSON converts a filter to a bson document, normalizing id values to
// their string form.
func toBSON(filter store.Filter) bson.M {
	f := bson.M{}
	for k, v := range filter {
		if k == store.IDField {
			f[k] = store.Key(v)
			continue
		}
		f[k] = v
	}
	return f
}

// setFields strips the id field from a partial update. The id is the
// document key and never changes.
func setFields(set store.Record) bson.M {
	out := bson.M{}
	for k, v := range set {
		if k == store.IDField {
			continue
		}
		out[k] = v
	}
	return out
}

// projection builds a field projection. Mongo includes _id by default,
// matching the store contract.
func projection(opts store.FindOptions) bson.M {
	if len(opts.Projection) == 0 {
		return nil
	}
	p := bson.M{}
	for _, f := range opts.Projection {
		p[f] = 1
	}
	return p
}
