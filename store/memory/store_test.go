package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ew-kislov/apigen/store"
	"github.com/ew-kislov/apigen/store/memory"
)

func TestInsertAndFindByID(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "users", store.Record{"_id": "u1", "name": "ada"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec, err := s.FindByID(ctx, "users", "u1", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec["name"] != "ada" {
		t.Errorf("unexpected record: %v", rec)
	}

	rec, err = s.FindByID(ctx, "users", "missing", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for missing id, got %v", rec)
	}
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "users", store.Record{"_id": "u1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	err := s.Insert(ctx, "users", store.Record{"_id": "u1"})
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestNumericAndStringIDsMatch(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "users", store.Record{"_id": 7, "name": "seven"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	rec, err := s.FindByID(ctx, "users", "7", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec == nil {
		t.Fatal("string form of numeric id did not match")
	}
}

func TestFindByIDsSkipsMissing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "users",
		store.Record{"_id": "u1"},
		store.Record{"_id": "u2"},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	recs, err := s.FindByIDs(ctx, "users", []any{"u1", "ghost", "u2"}, store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records, got %d", len(recs))
	}
}

func TestFindMatchesByStringForm(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "posts",
		store.Record{"_id": "p1", "ownerId": 7},
		store.Record{"_id": "p2", "ownerId": 9},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	recs, err := s.Find(ctx, "posts", store.Filter{"ownerId": "7"}, store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(recs) != 1 || recs[0]["_id"] != "p1" {
		t.Errorf("unexpected result: %v", recs)
	}
}

func TestFindSortLimitSkip(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "posts",
		store.Record{"_id": "p1", "rank": "c"},
		store.Record{"_id": "p2", "rank": "a"},
		store.Record{"_id": "p3", "rank": "b"},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	recs, err := s.Find(ctx, "posts", nil, store.FindOptions{
		Sort:  []store.SortField{{Field: "rank"}},
		Limit: 2,
		Skip:  1,
	})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0]["_id"] != "p3" || recs[1]["_id"] != "p1" {
		t.Errorf("unexpected order: %v", recs)
	}
}

func TestProjectionAlwaysKeepsID(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "users", store.Record{"_id": "u1", "name": "ada", "age": 36}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec, err := s.FindByID(ctx, "users", "u1", store.FindOptions{Projection: []string{"name"}})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec["_id"] != "u1" {
		t.Error("projection dropped the id field")
	}
	if rec["name"] != "ada" {
		t.Error("projected field missing")
	}
	if _, ok := rec["age"]; ok {
		t.Error("unprojected field leaked")
	}
}

func TestReplacePreservesID(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "users", store.Record{"_id": "u1", "name": "ada"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.Replace(ctx, "users", "u1", store.Record{"name": "lovelace"}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	rec, err := s.FindByID(ctx, "users", "u1", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec["_id"] != "u1" || rec["name"] != "lovelace" {
		t.Errorf("unexpected record after replace: %v", rec)
	}

	err = s.Replace(ctx, "users", "missing", store.Record{"name": "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateByIDKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "users", store.Record{"_id": "u1", "name": "ada", "age": 36}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.UpdateByID(ctx, "users", "u1", store.Record{"name": "lovelace", "_id": "hijack"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	rec, err := s.FindByID(ctx, "users", "u1", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec["_id"] != "u1" {
		t.Error("set payload changed the id")
	}
	if rec["name"] != "lovelace" || rec["age"] != 36 {
		t.Errorf("unexpected record after update: %v", rec)
	}
}

func TestUpdateManyCountsMatches(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "posts",
		store.Record{"_id": "p1", "status": "open"},
		store.Record{"_id": "p2", "status": "open"},
		store.Record{"_id": "p3", "status": "done"},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	n, err := s.UpdateMany(ctx, "posts", store.Filter{"status": "open"}, store.Record{"status": "done"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 matched, got %d", n)
	}

	count, err := s.Count(ctx, "posts", store.Filter{"status": "done"})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 done, got %d", count)
	}
}

func TestDeleteManyAndOrder(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.Insert(ctx, "posts",
		store.Record{"_id": "p1", "kind": "old"},
		store.Record{"_id": "p2", "kind": "new"},
		store.Record{"_id": "p3", "kind": "old"},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	n, err := s.DeleteMany(ctx, "posts", store.Filter{"kind": "old"})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	recs, err := s.Find(ctx, "posts", nil, store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(recs) != 1 || recs[0]["_id"] != "p2" {
		t.Errorf("unexpected survivors: %v", recs)
	}
}

func TestRecordsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	original := store.Record{"_id": "u1", "tags": []any{"a"}}
	if err := s.Insert(ctx, "users", original); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Mutating the inserted value or a fetched copy never leaks into the
	// stored record.
	original["name"] = "mutated"
	rec, err := s.FindByID(ctx, "users", "u1", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if _, ok := rec["name"]; ok {
		t.Error("caller mutation leaked into the store")
	}

	rec["name"] = "mutated"
	again, err := s.FindByID(ctx, "users", "u1", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if _, ok := again["name"]; ok {
		t.Error("fetched copy mutation leaked into the store")
	}
}
