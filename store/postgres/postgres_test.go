//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ew-kislov/apigen/store"
	"github.com/ew-kislov/apigen/store/postgres"
)

// testStore is the shared store for integration tests.
var testStore *postgres.Store

// TestMain sets up a PostgreSQL testcontainer for integration tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("apigen_test"),
		pgcontainer.WithUsername("apigen"),
		pgcontainer.WithPassword("apigen"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}

	testStore = postgres.New(pool)
	if err := testStore.Migrate(ctx); err != nil {
		testStore.Close()
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}

	code := m.Run()

	testStore.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestInsertAndFindByID(t *testing.T) {
	ctx := context.Background()

	err := testStore.Insert(ctx, "posts", store.Record{"_id": "p1", "title": "hello", "ownerId": "u1"})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec, err := testStore.FindByID(ctx, "posts", "p1", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if rec["title"] != "hello" {
		t.Errorf("expected title %q, got %v", "hello", rec["title"])
	}

	// Absent id yields nil, not an error.
	rec, err = testStore.FindByID(ctx, "posts", "missing", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for missing id, got %v", rec)
	}
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()

	if err := testStore.Insert(ctx, "dup", store.Record{"_id": "d1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	err := testStore.Insert(ctx, "dup", store.Record{"_id": "d1"})
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestFindByNumericID(t *testing.T) {
	ctx := context.Background()

	// A record inserted with a numeric id is addressable by its string form.
	if err := testStore.Insert(ctx, "nums", store.Record{"_id": 7, "name": "seven"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	rec, err := testStore.FindByID(ctx, "nums", "7", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record for string form of numeric id")
	}
}

func TestFilterMatchesStringForm(t *testing.T) {
	ctx := context.Background()

	if err := testStore.Insert(ctx, "owned",
		store.Record{"_id": "o1", "ownerId": 7},
		store.Record{"_id": "o2", "ownerId": 9},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	recs, err := testStore.Find(ctx, "owned", store.Filter{"ownerId": "7"}, store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0]["_id"] != "o1" {
		t.Errorf("expected o1, got %v", recs[0]["_id"])
	}
}

func TestUpdateByIDMergesFields(t *testing.T) {
	ctx := context.Background()

	if err := testStore.Insert(ctx, "merge", store.Record{"_id": "m1", "name": "a", "age": 5}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := testStore.UpdateByID(ctx, "merge", "m1", store.Record{"name": "b"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	rec, err := testStore.FindByID(ctx, "merge", "m1", store.FindOptions{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if rec["name"] != "b" {
		t.Errorf("expected updated name, got %v", rec["name"])
	}
	// Untouched fields survive the patch. JSON numbers decode as float64.
	if rec["age"] != float64(5) {
		t.Errorf("expected age preserved, got %v", rec["age"])
	}

	err = testStore.UpdateByID(ctx, "merge", "missing", store.Record{"name": "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindSortLimitSkip(t *testing.T) {
	ctx := context.Background()

	if err := testStore.Insert(ctx, "sorted",
		store.Record{"_id": "s1", "rank": "c"},
		store.Record{"_id": "s2", "rank": "a"},
		store.Record{"_id": "s3", "rank": "b"},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	recs, err := testStore.Find(ctx, "sorted", nil, store.FindOptions{
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
	if recs[0]["_id"] != "s3" || recs[1]["_id"] != "s1" {
		t.Errorf("unexpected order: %v, %v", recs[0]["_id"], recs[1]["_id"])
	}
}

func TestDeleteMany(t *testing.T) {
	ctx := context.Background()

	if err := testStore.Insert(ctx, "del",
		store.Record{"_id": "x1", "kind": "old"},
		store.Record{"_id": "x2", "kind": "old"},
		store.Record{"_id": "x3", "kind": "new"},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	n, err := testStore.DeleteMany(ctx, "del", store.Filter{"kind": "old"})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	count, err := testStore.Count(ctx, "del", nil)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 remaining, got %d", count)
	}
}
