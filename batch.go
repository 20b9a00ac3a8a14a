package apigen

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ew-kislov/apigen/store"
)

// MakeBatchUpdateResolver returns the "update each" resolver for an entity.
// Input is a non-empty "records" list where every entry carries an id and at
// least one other field; malformed payloads fail with ErrInvalidPayload
// before any store interaction. Per record the descriptor's hooks run, an
// id-based partial update is issued, and the stored record is re-fetched.
//
// The result preserves input order and reports Count as the number of
// attempted records, not the number of rows the store actually changed. All
// update+refetch pairs run concurrently; the first failure aborts the batch
// and is surfaced as the call's error. Writes already committed by sibling
// records are not rolled back.
func MakeBatchUpdateResolver(st store.Store, desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		recs, err := batchRecords(p)
		if err != nil {
			return nil, err
		}

		out := make([]store.Record, len(recs))
		projection := p.ProjectionFields()

		g, ctx := errgroup.WithContext(ctx)
		for i, rec := range recs {
			g.Go(func() error {
				doc := store.Record(rec).Clone()
				for _, h := range desc.Hooks() {
					var err error
					if doc, err = h(ctx, doc); err != nil {
						return err
					}
				}

				id := doc.ID()
				set := doc.Clone()
				delete(set, store.IDField)

				if err := st.UpdateByID(ctx, desc.Collection(), id, set); err != nil {
					return err
				}
				stored, err := st.FindByID(ctx, desc.Collection(), id, store.FindOptions{Projection: projection})
				if err != nil {
					return err
				}
				out[i] = stored
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return Many(out, int64(len(recs))), nil
	})
}

// batchRecords validates the "update each" payload: a non-empty list of
// objects, each with an id and at least one other field.
func batchRecords(p *Params) ([]map[string]any, error) {
	recs, ok := recordsArg(p)
	if !ok || len(recs) == 0 {
		return nil, fmt.Errorf("%w: update each expects a non-empty records list", ErrInvalidPayload)
	}
	for i, rec := range recs {
		if rec == nil {
			return nil, fmt.Errorf("%w: records[%d] is not an object", ErrInvalidPayload, i)
		}
		id, ok := rec[store.IDField]
		if !ok || id == nil {
			return nil, fmt.Errorf("%w: records[%d] has no id", ErrInvalidPayload, i)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: records[%d] has no fields to update", ErrInvalidPayload, i)
		}
	}
	return recs, nil
}
