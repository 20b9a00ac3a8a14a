package apigen

import (
	"context"
	"fmt"

	"github.com/ew-kislov/apigen/store"
)

// accessScope selects which half of the policy an operation is judged by.
type accessScope int

const (
	scopeRead accessScope = iota
	scopeWrite
)

// guardPolicy is the wrap-time half of the decision pipeline. It reports
// pass-through for an absent or non-impactful policy and rejects a malformed
// one, so configuration defects surface before traffic is served.
func guardPolicy(pol *Policy) (passthrough bool, err error) {
	if pol.Open() {
		return true, nil
	}
	if err := pol.Validate(); err != nil {
		return false, err
	}
	return false, nil
}

// authorize is the per-request half of the decision pipeline. It fails closed
// on an invalid claim, reports all=true when the claim grants unrestricted
// access, and returns ErrAccessDenied when not even self access is granted.
// all=false with a nil error means the caller must self-scope the operation.
func authorize(pol *Policy, c *Claim, scope accessScope) (all bool, err error) {
	if !c.Valid() {
		return false, ErrAuthenticationRequired
	}
	switch scope {
	case scopeRead:
		if pol.CanReadAll(c) {
			return true, nil
		}
		if !pol.CanReadSelf(c) {
			return false, ErrAccessDenied
		}
	case scopeWrite:
		if pol.CanWriteAll(c) {
			return true, nil
		}
		if !pol.CanWriteSelf(c) {
			return false, ErrAccessDenied
		}
	}
	return false, nil
}

// injectOwnerFilter merges {ownerField: subjectID} into the request's filter,
// preserving any caller-supplied conditions. A scoped filter cannot touch
// unowned rows, so this is safe for both reads and filtered mutations.
func injectOwnerFilter(p *Params, ownerField string) {
	f := p.Filter()
	if f == nil {
		f = make(map[string]any, 1)
	}
	f[ownerField] = p.Claim.SubjectID
	p.SetArg("filter", f)
}

// ownedBy reports whether the record's owner field equals the subject id.
// Values compare by string form so numeric and string ids match consistently.
func ownedBy(rec store.Record, ownerField, subjectID string) bool {
	v, ok := rec[ownerField]
	if !ok {
		return false
	}
	return store.Key(v) == subjectID
}

// targetIDs extracts the id selectors of an id-based operation: either a
// single "_id" argument or an "ids" list.
func targetIDs(p *Params) []any {
	if p == nil || p.Args == nil {
		return nil
	}
	if v, ok := p.Args[store.IDField]; ok && v != nil {
		return []any{v}
	}
	switch ids := p.Args["ids"].(type) {
	case []any:
		return ids
	case []string:
		out := make([]any, len(ids))
		for i, s := range ids {
			out[i] = s
		}
		return out
	}
	return nil
}

// verifyOwnership fetches the targeted records through the auxiliary fetch
// resolver, projecting only the owner field, and checks that every targeted
// id resolves to a record owned by the subject. Any mismatch — including a
// missing record, which cannot be verified — denies the whole batch.
func verifyOwnership(ctx context.Context, fetch Resolver, ids []any, ownerField, subjectID string) error {
	fp := &Params{
		Args:       map[string]any{"ids": ids},
		Projection: map[string]bool{ownerField: true},
	}
	res, err := fetch.Resolve(ctx, fp)
	if err != nil {
		return err
	}

	owned := make(map[string]struct{}, len(ids))
	if res != nil {
		for _, rec := range res.Records {
			if ownedBy(rec, ownerField, subjectID) {
				owned[store.Key(rec.ID())] = struct{}{}
			}
		}
		if res.Kind == KindSingle && res.Record != nil && ownedBy(res.Record, ownerField, subjectID) {
			owned[store.Key(res.Record.ID())] = struct{}{}
		}
	}
	for _, id := range ids {
		if _, ok := owned[store.Key(id)]; !ok {
			return fmt.Errorf("record %v: %w", id, ErrAccessDenied)
		}
	}
	return nil
}
