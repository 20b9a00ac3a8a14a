package apigen

import (
	"context"

	"github.com/ew-kislov/apigen/store"
)

// ResultKind tags the shape of a resolver result.
type ResultKind int

const (
	// KindSingle marks a result carrying at most one record.
	KindSingle ResultKind = iota

	// KindMany marks a result carrying a record list and a count.
	KindMany
)

// Params carries one invocation's request state. It is constructed by the
// transport per call, mutated in place by wrappers (filter and projection
// injection, owner-field stamping), and consumed once by the terminal
// resolver. Params are never shared across requests.
type Params struct {
	// Args holds the operation-specific arguments: "filter", "record",
	// "records", "_id", "ids", "limit", "skip", "sort".
	Args map[string]any

	// Projection maps field names to inclusion. Nil means all fields.
	Projection map[string]bool

	// Claim is the caller's identity, attached by the transport layer.
	Claim *Claim
}

// Filter returns the caller-supplied filter argument, or nil.
func (p *Params) Filter() map[string]any {
	if p == nil || p.Args == nil {
		return nil
	}
	f, _ := p.Args["filter"].(map[string]any)
	return f
}

// SetArg sets one argument, allocating the map when needed.
func (p *Params) SetArg(name string, value any) {
	if p.Args == nil {
		p.Args = make(map[string]any, 1)
	}
	p.Args[name] = value
}

// EnsureProjected forces a field into the projection. A nil projection means
// all fields and stays nil.
func (p *Params) EnsureProjected(field string) {
	if p.Projection == nil {
		return
	}
	p.Projection[field] = true
}

// ProjectionFields returns the projected field names, or nil for all fields.
func (p *Params) ProjectionFields() []string {
	if p == nil || len(p.Projection) == 0 {
		return nil
	}
	fields := make([]string, 0, len(p.Projection))
	for f, ok := range p.Projection {
		if ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// Result is the tagged outcome of a resolver call: either a single record
// (possibly nil) or a record list with a count.
type Result struct {
	Kind    ResultKind     `json:"kind"`
	Record  store.Record   `json:"record,omitempty"`
	Records []store.Record `json:"records,omitempty"`
	Count   int64          `json:"count"`
}

// Single wraps one record (or nil) as a resolver result.
func Single(rec store.Record) *Result {
	return &Result{Kind: KindSingle, Record: rec}
}

// Many wraps a record list as a resolver result.
func Many(recs []store.Record, count int64) *Result {
	return &Result{Kind: KindMany, Records: recs, Count: count}
}

// Resolver is one data operation: it consumes request params and produces a
// tagged result. Wrappers are pure combinators over this interface — they
// return resolvers of identical shape, so callers compose them exactly like
// the base resolver.
type Resolver interface {
	Resolve(ctx context.Context, p *Params) (*Result, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(ctx context.Context, p *Params) (*Result, error)

// Resolve returns f(ctx, p).
func (f ResolverFunc) Resolve(ctx context.Context, p *Params) (*Result, error) {
	return f(ctx, p)
}

// WrapResolve returns a resolver whose Resolve is transform(base.Resolve).
func WrapResolve(base Resolver, transform func(next ResolverFunc) ResolverFunc) Resolver {
	return transform(base.Resolve)
}
