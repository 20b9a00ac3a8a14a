package apigen

import (
	"context"

	"github.com/ew-kislov/apigen/store"
)

// WrapQueryFilter authorizes filter-based read operations (find-one,
// find-many, count, pagination). Self access narrows the filter before the
// fetch, so unowned rows are never touched at the storage layer.
func WrapQueryFilter(base Resolver, pol *Policy) (Resolver, error) {
	if pass, err := guardPolicy(pol); err != nil {
		return nil, err
	} else if pass {
		return base, nil
	}

	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		all, err := authorize(pol, p.Claim, scopeRead)
		if err != nil {
			return nil, err
		}
		if !all {
			injectOwnerFilter(p, pol.OwnerField)
		}
		return base.Resolve(ctx, p)
	}), nil
}

// WrapQueryByID authorizes a single-record fetch by id. The id already
// selects the record, so ownership cannot be checked ahead of the fetch;
// instead the owner field is forced into the projection and the result is
// post-filtered: an unowned record yields a null result.
func WrapQueryByID(base Resolver, pol *Policy) (Resolver, error) {
	if pass, err := guardPolicy(pol); err != nil {
		return nil, err
	} else if pass {
		return base, nil
	}

	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		all, err := authorize(pol, p.Claim, scopeRead)
		if err != nil {
			return nil, err
		}
		if all {
			return base.Resolve(ctx, p)
		}

		p.EnsureProjected(pol.OwnerField)
		res, err := base.Resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		if res == nil || res.Record == nil {
			return res, nil
		}
		if !ownedBy(res.Record, pol.OwnerField, p.Claim.SubjectID) {
			return Single(nil), nil
		}
		return res, nil
	}), nil
}

// WrapQueryByIDs is the collection form of WrapQueryByID: unowned records
// are silently dropped from the result set.
func WrapQueryByIDs(base Resolver, pol *Policy) (Resolver, error) {
	if pass, err := guardPolicy(pol); err != nil {
		return nil, err
	} else if pass {
		return base, nil
	}

	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		all, err := authorize(pol, p.Claim, scopeRead)
		if err != nil {
			return nil, err
		}
		if all {
			return base.Resolve(ctx, p)
		}

		p.EnsureProjected(pol.OwnerField)
		res, err := base.Resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return res, nil
		}

		kept := make([]store.Record, 0, len(res.Records))
		for _, rec := range res.Records {
			if ownedBy(rec, pol.OwnerField, p.Claim.SubjectID) {
				kept = append(kept, rec)
			}
		}
		return Many(kept, int64(len(kept))), nil
	}), nil
}
