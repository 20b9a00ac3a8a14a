package apigen

import (
	"context"
	"fmt"

	"dario.cat/mergo"

	"github.com/ew-kislov/apigen/store"
)

// WithMergedUpdate layers partial-update semantics over a full-replace
// resolver. It fetches the existing record(s) by id, deep-merges the partial
// input over them — input fields win, unspecified fields retain their prior
// value, nested objects are merged structurally rather than replaced
// wholesale — and rewrites the request's input before delegating.
//
// A partial input whose target does not exist is passed through unchanged;
// the downstream resolver surfaces the not-found condition.
func WithMergedUpdate(base Resolver, st store.Store, collection string) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		if rec, ok := p.Args["record"].(map[string]any); ok && rec != nil {
			merged, err := mergeOne(ctx, st, collection, rec, p)
			if err != nil {
				return nil, err
			}
			p.SetArg("record", merged)
			return base.Resolve(ctx, p)
		}

		if recs, ok := recordsArg(p); ok {
			out := make([]map[string]any, len(recs))
			for i, rec := range recs {
				if rec == nil {
					return nil, fmt.Errorf("%w: records[%d] is not an object", ErrInvalidPayload, i)
				}
				merged, err := mergeOne(ctx, st, collection, rec, nil)
				if err != nil {
					return nil, err
				}
				out[i] = merged
			}
			p.SetArg("records", out)
		}
		return base.Resolve(ctx, p)
	})
}

// mergeOne merges one partial record over its stored counterpart. The record
// id comes from the record itself, falling back to the request's "_id"
// argument for single-record updates.
func mergeOne(ctx context.Context, st store.Store, collection string, partial map[string]any, p *Params) (map[string]any, error) {
	id := partial[store.IDField]
	if id == nil && p != nil && p.Args != nil {
		id = p.Args[store.IDField]
	}
	if id == nil {
		return nil, fmt.Errorf("%w: update expects a record id", ErrInvalidPayload)
	}

	existing, err := st.FindByID(ctx, collection, id, store.FindOptions{})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return partial, nil
	}

	merged := map[string]any(existing.Clone())
	if err := mergo.Merge(&merged, partial, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("apigen: merge partial update: %w", err)
	}
	merged[store.IDField] = existing[store.IDField]
	return merged, nil
}
