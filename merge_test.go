package apigen

import (
	"context"
	"errors"
	"testing"

	"github.com/ew-kislov/apigen/store"
	"github.com/ew-kislov/apigen/store/memory"
)

// captureRecord returns a terminal resolver that hands back the request's
// "record" argument, so tests can inspect what the merge produced.
func captureRecord() Resolver {
	return ResolverFunc(func(_ context.Context, p *Params) (*Result, error) {
		rec, _ := p.Args["record"].(map[string]any)
		return Single(store.Record(rec)), nil
	})
}

func TestMergedUpdateFillsUnspecifiedFields(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if err := st.Insert(ctx, "users", store.Record{"_id": 1, "name": "a", "age": 5}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	r := WithMergedUpdate(captureRecord(), st, "users")
	res, err := r.Resolve(ctx, &Params{Args: map[string]any{
		"record": map[string]any{"_id": 1, "name": "x"},
	}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if res.Record["name"] != "x" {
		t.Errorf("input field did not win: %v", res.Record)
	}
	if res.Record["age"] != 5 {
		t.Errorf("unspecified field was lost: %v", res.Record)
	}
	if store.Key(res.Record["_id"]) != "1" {
		t.Errorf("id changed: %v", res.Record["_id"])
	}
}

func TestMergedUpdateMergesNestedObjects(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if err := st.Insert(ctx, "users", store.Record{
		"_id": "u1",
		"profile": map[string]any{
			"city": "Lisbon",
			"zip":  "1000",
		},
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	r := WithMergedUpdate(captureRecord(), st, "users")
	res, err := r.Resolve(ctx, &Params{Args: map[string]any{
		"record": map[string]any{
			"_id":     "u1",
			"profile": map[string]any{"city": "Porto"},
		},
	}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	profile, _ := res.Record["profile"].(map[string]any)
	if profile["city"] != "Porto" {
		t.Errorf("nested field did not win: %v", profile)
	}
	if profile["zip"] != "1000" {
		t.Errorf("sibling nested field was lost: %v", profile)
	}
}

func TestMergedUpdateIDFromArgs(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if err := st.Insert(ctx, "users", store.Record{"_id": "u1", "name": "a", "age": 5}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// The id may come from the request args instead of the record body.
	r := WithMergedUpdate(captureRecord(), st, "users")
	res, err := r.Resolve(ctx, &Params{Args: map[string]any{
		"_id":    "u1",
		"record": map[string]any{"name": "x"},
	}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Record["age"] != 5 {
		t.Errorf("merge did not find the stored record: %v", res.Record)
	}
}

func TestMergedUpdateMissingTargetPassesThrough(t *testing.T) {
	ctx := context.Background()
	r := WithMergedUpdate(captureRecord(), memory.New(), "users")

	res, err := r.Resolve(ctx, &Params{Args: map[string]any{
		"record": map[string]any{"_id": "ghost", "name": "x"},
	}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Record["name"] != "x" || len(res.Record) != 2 {
		t.Errorf("expected partial passed through unchanged, got %v", res.Record)
	}
}

func TestMergedUpdateRequiresID(t *testing.T) {
	ctx := context.Background()
	r := WithMergedUpdate(captureRecord(), memory.New(), "users")

	_, err := r.Resolve(ctx, &Params{Args: map[string]any{
		"record": map[string]any{"name": "x"},
	}})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestMergedUpdateRecordsList(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if err := st.Insert(ctx, "users",
		store.Record{"_id": "u1", "name": "a", "age": 5},
		store.Record{"_id": "u2", "name": "b", "age": 6},
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	var got []map[string]any
	base := ResolverFunc(func(_ context.Context, p *Params) (*Result, error) {
		got, _ = p.Args["records"].([]map[string]any)
		return Many(nil, int64(len(got))), nil
	})

	r := WithMergedUpdate(base, st, "users")
	_, err := r.Resolve(ctx, &Params{Args: map[string]any{
		"records": []map[string]any{
			{"_id": "u1", "name": "x"},
			{"_id": "u2", "age": 7},
		},
	}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 merged records, got %d", len(got))
	}
	if got[0]["name"] != "x" || got[0]["age"] != 5 {
		t.Errorf("records[0] merged wrong: %v", got[0])
	}
	if got[1]["name"] != "b" || got[1]["age"] != 7 {
		t.Errorf("records[1] merged wrong: %v", got[1])
	}
}
