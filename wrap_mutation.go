package apigen

import (
	"context"
	"fmt"

	"github.com/ew-kislov/apigen/store"
)

// WrapCreate authorizes create operations. Self access stamps the owner
// field with the caller's subject id on every record in the payload, so a
// self-scoped caller can only ever create records it owns.
func WrapCreate(base Resolver, pol *Policy) (Resolver, error) {
	if pass, err := guardPolicy(pol); err != nil {
		return nil, err
	} else if pass {
		return base, nil
	}

	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		all, err := authorize(pol, p.Claim, scopeWrite)
		if err != nil {
			return nil, err
		}
		if !all {
			if err := stampOwner(p, pol.OwnerField); err != nil {
				return nil, err
			}
		}
		return base.Resolve(ctx, p)
	}), nil
}

// stampOwner sets ownerField = subjectID on the single- or multi-record
// create payload. A payload with neither form is malformed.
func stampOwner(p *Params, ownerField string) error {
	if rec, ok := p.Args["record"].(map[string]any); ok && rec != nil {
		rec[ownerField] = p.Claim.SubjectID
		return nil
	}
	recs, ok := recordsArg(p)
	if !ok {
		return fmt.Errorf("%w: create expects a record or a records list", ErrInvalidPayload)
	}
	for i, rec := range recs {
		if rec == nil {
			return fmt.Errorf("%w: records[%d] is not an object", ErrInvalidPayload, i)
		}
		rec[ownerField] = p.Claim.SubjectID
	}
	return nil
}

// recordsArg extracts the "records" argument as a list of objects. Non-object
// entries yield a nil element so callers can report the exact position.
func recordsArg(p *Params) ([]map[string]any, bool) {
	if p == nil || p.Args == nil {
		return nil, false
	}
	switch v := p.Args["records"].(type) {
	case []map[string]any:
		return v, true
	case []store.Record:
		out := make([]map[string]any, len(v))
		for i, r := range v {
			out[i] = r
		}
		return out, true
	case []any:
		out := make([]map[string]any, len(v))
		for i, e := range v {
			switch rec := e.(type) {
			case map[string]any:
				out[i] = rec
			case store.Record:
				out[i] = rec
			}
		}
		return out, true
	}
	return nil, false
}

// WrapMutationByID authorizes id-based mutations (update or remove by id, or
// an id batch). The id alone does not reveal ownership, so for self access
// the targeted records are pre-fetched through the auxiliary fetch resolver
// projecting only the owner field, and every targeted id must resolve to an
// owned record. Any mismatch anywhere in the batch fails the whole call
// before a single write is issued — a batch is never partially authorized.
func WrapMutationByID(base Resolver, pol *Policy, fetch Resolver) (Resolver, error) {
	if pass, err := guardPolicy(pol); err != nil {
		return nil, err
	} else if pass {
		return base, nil
	}

	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		all, err := authorize(pol, p.Claim, scopeWrite)
		if err != nil {
			return nil, err
		}
		if !all {
			ids := targetIDs(p)
			if len(ids) == 0 {
				return nil, fmt.Errorf("%w: mutation expects an id selector", ErrInvalidPayload)
			}
			if err := verifyOwnership(ctx, fetch, ids, pol.OwnerField, p.Claim.SubjectID); err != nil {
				return nil, err
			}
		}
		return base.Resolve(ctx, p)
	}), nil
}

// WrapMutationFilter authorizes filter-based mutations (update-many,
// remove-many). Scoping works exactly like WrapQueryFilter: the owner filter
// is merged into the mutation's filter, which is inherently safe because a
// scoped filter cannot touch unowned rows.
func WrapMutationFilter(base Resolver, pol *Policy) (Resolver, error) {
	if pass, err := guardPolicy(pol); err != nil {
		return nil, err
	} else if pass {
		return base, nil
	}

	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		all, err := authorize(pol, p.Claim, scopeWrite)
		if err != nil {
			return nil, err
		}
		if !all {
			injectOwnerFilter(p, pol.OwnerField)
		}
		return base.Resolve(ctx, p)
	}), nil
}

// WrapBatchByIDsEach authorizes "update each" operations where every input
// record carries its own id. All targeted owner fields are fetched in one
// batch query; the call proceeds only when every fetched record is owned by
// the caller, otherwise the entire batch is denied.
func WrapBatchByIDsEach(base Resolver, pol *Policy, fetch Resolver) (Resolver, error) {
	if pass, err := guardPolicy(pol); err != nil {
		return nil, err
	} else if pass {
		return base, nil
	}

	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		all, err := authorize(pol, p.Claim, scopeWrite)
		if err != nil {
			return nil, err
		}
		if !all {
			recs, ok := recordsArg(p)
			if !ok || len(recs) == 0 {
				return nil, fmt.Errorf("%w: batch expects a non-empty records list", ErrInvalidPayload)
			}
			ids := make([]any, 0, len(recs))
			for i, rec := range recs {
				if rec == nil {
					return nil, fmt.Errorf("%w: records[%d] is not an object", ErrInvalidPayload, i)
				}
				id, ok := rec[store.IDField]
				if !ok || id == nil {
					return nil, fmt.Errorf("%w: records[%d] has no id", ErrInvalidPayload, i)
				}
				ids = append(ids, id)
			}
			if err := verifyOwnership(ctx, fetch, ids, pol.OwnerField, p.Claim.SubjectID); err != nil {
				return nil, err
			}
		}
		return base.Resolve(ctx, p)
	}), nil
}
