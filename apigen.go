// Package apigen generates a GraphQL-style API surface (queries, mutations,
// subscriptions) over a document database from declaratively registered
// entities, and overlays a row-level authorization model on every generated
// operation.
//
// Each entity declares an access policy: which roles may read or write all
// records, and which roles may touch only records they own. Generated
// resolvers are wrapped so that a caller's identity claim is validated, the
// policy is evaluated, and — when only self access is granted — the operation
// is scoped to records whose owner field matches the caller's subject id.
//
//	gen, err := apigen.New(
//	    apigen.WithStore(memStore),
//	    apigen.WithEntity(userEntity),
//	)
//	res, err := gen.Resolve(ctx, apigen.OpQuery, "userMany", &apigen.Params{
//	    Claim: &apigen.Claim{SubjectID: "u1", Roles: []string{"user"}},
//	})
package apigen

import "context"

// Claim is the caller's authenticated identity, attached to each request by
// the transport layer.
type Claim struct {
	SubjectID string   `json:"subject_id"`
	Roles     []string `json:"roles"`
}

// Valid reports whether the claim is well-formed: a non-empty subject id and
// a present (possibly empty) role list. Validation fails closed: a nil claim
// is invalid.
func (c *Claim) Valid() bool {
	return c != nil && c.SubjectID != "" && c.Roles != nil
}

// HasRole reports whether the claim carries the given role.
func (c *Claim) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey int

const ctxKeyClaim contextKey = iota

// WithClaim returns a context carrying the caller's identity claim. The
// transport layer attaches the claim before the resolver chain runs.
func WithClaim(ctx context.Context, c *Claim) context.Context {
	return context.WithValue(ctx, ctxKeyClaim, c)
}

// ClaimFromContext returns the claim attached to the context, or nil.
func ClaimFromContext(ctx context.Context) *Claim {
	c, ok := ctx.Value(ctxKeyClaim).(*Claim)
	if !ok {
		return nil
	}
	return c
}
