package apigen

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ew-kislov/apigen/id"
	"github.com/ew-kislov/apigen/store"
)

// Op identifies the operation class of a schema field.
type Op string

const (
	OpQuery        Op = "query"
	OpMutation     Op = "mutation"
	OpSubscription Op = "subscription"
)

// Schema is the assembled API surface: operation field name to resolver,
// plus subscription field name to bus topic. The maps are built once at
// generator construction and must not be mutated afterwards.
type Schema struct {
	Queries       map[string]Resolver
	Mutations     map[string]Resolver
	Subscriptions map[string]string
}

// buildSchema generates the per-entity fields, wraps them with the entity's
// access policy, and merges custom resolvers on top.
func (g *Generator) buildSchema() (*Schema, error) {
	s := &Schema{
		Queries:       make(map[string]Resolver),
		Mutations:     make(map[string]Resolver),
		Subscriptions: make(map[string]string),
	}

	seen := make(map[string]struct{}, len(g.entities))
	for _, desc := range g.entities {
		if desc == nil {
			return nil, fmt.Errorf("%w: nil entity descriptor", ErrConfiguration)
		}
		if _, dup := seen[desc.Name()]; dup {
			return nil, fmt.Errorf("%w: entity %s declared twice", ErrConfiguration, desc.Name())
		}
		seen[desc.Name()] = struct{}{}

		if err := g.buildEntityFields(s, desc); err != nil {
			return nil, fmt.Errorf("entity %s: %w", desc.Name(), err)
		}
	}

	for field, r := range g.customQueries {
		s.Queries[field] = r
	}
	for field, r := range g.customMutations {
		s.Mutations[field] = r
	}
	return s, nil
}

func (g *Generator) buildEntityFields(s *Schema, desc *Descriptor) error {
	pol := desc.Policy()
	prefix := fieldPrefix(desc.Name())

	// The unwrapped ids fetch doubles as the auxiliary ownership fetch for
	// id-based mutation wrappers.
	fetchByIDs := g.baseFindByIDs(desc)

	queries := map[string]struct {
		base Resolver
		wrap func(Resolver, *Policy) (Resolver, error)
	}{
		prefix + "ById":  {g.baseFindByID(desc), WrapQueryByID},
		prefix + "ByIds": {fetchByIDs, WrapQueryByIDs},
		prefix + "One":   {g.baseFindOne(desc), WrapQueryFilter},
		prefix + "Many":  {g.baseFindMany(desc), WrapQueryFilter},
		prefix + "Count": {g.baseCount(desc), WrapQueryFilter},
	}
	for field, def := range queries {
		wrapped, err := def.wrap(def.base, pol)
		if err != nil {
			return err
		}
		s.Queries[field] = wrapped
	}

	type mutation struct {
		field string
		build func() (Resolver, error)
	}
	replace := WithMergedUpdate(g.baseReplaceByID(desc), g.store, desc.Collection())
	batch := g.guardBatchSize(g.publishEach(MakeBatchUpdateResolver(g.store, desc), desc, "updated"))
	mutations := []mutation{
		{prefix + "CreateOne", func() (Resolver, error) { return WrapCreate(g.baseCreateOne(desc), pol) }},
		{prefix + "CreateMany", func() (Resolver, error) { return WrapCreate(g.baseCreateMany(desc), pol) }},
		{prefix + "UpdateById", func() (Resolver, error) { return WrapMutationByID(replace, pol, fetchByIDs) }},
		{prefix + "UpdateMany", func() (Resolver, error) { return WrapMutationFilter(g.baseUpdateMany(desc), pol) }},
		{prefix + "UpdateEach", func() (Resolver, error) { return WrapBatchByIDsEach(batch, pol, fetchByIDs) }},
		{prefix + "RemoveById", func() (Resolver, error) { return WrapMutationByID(g.baseRemoveByID(desc), pol, fetchByIDs) }},
		{prefix + "RemoveMany", func() (Resolver, error) { return WrapMutationFilter(g.baseRemoveMany(desc), pol) }},
	}
	for _, m := range mutations {
		wrapped, err := m.build()
		if err != nil {
			return err
		}
		s.Mutations[m.field] = wrapped
	}

	if g.config.subscriptionsEnabled() {
		s.Subscriptions[prefix+"Created"] = topicOf(desc, "created")
		s.Subscriptions[prefix+"Updated"] = topicOf(desc, "updated")
		s.Subscriptions[prefix+"Removed"] = topicOf(desc, "removed")
	}
	return nil
}

// ──────────────────────────────────────────────────
// Store-backed base resolvers
// ──────────────────────────────────────────────────

func (g *Generator) baseFindByID(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		recID := argID(p)
		if recID == nil {
			return nil, fmt.Errorf("%w: query expects an id", ErrInvalidPayload)
		}
		rec, err := g.store.FindByID(ctx, desc.Collection(), recID, store.FindOptions{Projection: p.ProjectionFields()})
		if err != nil {
			return nil, err
		}
		return Single(rec), nil
	})
}

func (g *Generator) baseFindByIDs(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		ids := targetIDs(p)
		if len(ids) == 0 {
			return Many(nil, 0), nil
		}
		recs, err := g.store.FindByIDs(ctx, desc.Collection(), ids, store.FindOptions{Projection: p.ProjectionFields()})
		if err != nil {
			return nil, err
		}
		return Many(recs, int64(len(recs))), nil
	})
}

func (g *Generator) baseFindOne(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		opts := findOptions(p)
		opts.Limit = 1
		recs, err := g.store.Find(ctx, desc.Collection(), g.filterFor(desc, p), opts)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return Single(nil), nil
		}
		return Single(recs[0]), nil
	})
}

func (g *Generator) baseFindMany(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		recs, err := g.store.Find(ctx, desc.Collection(), g.filterFor(desc, p), findOptions(p))
		if err != nil {
			return nil, err
		}
		return Many(recs, int64(len(recs))), nil
	})
}

func (g *Generator) baseCount(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		n, err := g.store.Count(ctx, desc.Collection(), g.filterFor(desc, p))
		if err != nil {
			return nil, err
		}
		return Many(nil, n), nil
	})
}

func (g *Generator) baseCreateOne(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		rec, ok := p.Args["record"].(map[string]any)
		if !ok || rec == nil {
			return nil, fmt.Errorf("%w: create expects a record", ErrInvalidPayload)
		}
		doc, err := g.prepareCreate(ctx, desc, rec)
		if err != nil {
			return nil, err
		}
		if err := g.store.Insert(ctx, desc.Collection(), doc); err != nil {
			return nil, err
		}
		g.publish(desc, "created", doc)
		return Single(store.Project(doc, p.ProjectionFields())), nil
	})
}

func (g *Generator) baseCreateMany(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		recs, ok := recordsArg(p)
		if !ok || len(recs) == 0 {
			return nil, fmt.Errorf("%w: create expects a non-empty records list", ErrInvalidPayload)
		}
		docs := make([]store.Record, len(recs))
		for i, rec := range recs {
			if rec == nil {
				return nil, fmt.Errorf("%w: records[%d] is not an object", ErrInvalidPayload, i)
			}
			doc, err := g.prepareCreate(ctx, desc, rec)
			if err != nil {
				return nil, err
			}
			docs[i] = doc
		}
		if err := g.store.Insert(ctx, desc.Collection(), docs...); err != nil {
			return nil, err
		}
		out := make([]store.Record, len(docs))
		for i, doc := range docs {
			g.publish(desc, "created", doc)
			out[i] = store.Project(doc, p.ProjectionFields())
		}
		return Many(out, int64(len(out))), nil
	})
}

// prepareCreate clones the input, runs the entity hooks, and stamps a fresh
// TypeID when the record carries no id.
func (g *Generator) prepareCreate(ctx context.Context, desc *Descriptor, rec map[string]any) (store.Record, error) {
	doc := store.Record(rec).Clone()
	for _, h := range desc.Hooks() {
		var err error
		if doc, err = h(ctx, doc); err != nil {
			return nil, err
		}
	}
	if doc.ID() == nil {
		doc[store.IDField] = id.New(desc.Prefix()).String()
	}
	return doc, nil
}

// baseReplaceByID is the full-replace terminal resolver of updateById. The
// merge helper in front of it turns partial input into a complete document.
func (g *Generator) baseReplaceByID(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		rec, ok := p.Args["record"].(map[string]any)
		if !ok || rec == nil {
			return nil, fmt.Errorf("%w: update expects a record", ErrInvalidPayload)
		}
		recID := argID(p)
		if recID == nil {
			recID = rec[store.IDField]
		}
		if recID == nil {
			return nil, fmt.Errorf("%w: update expects a record id", ErrInvalidPayload)
		}

		doc := store.Record(rec).Clone()
		for _, h := range desc.Hooks() {
			var err error
			if doc, err = h(ctx, doc); err != nil {
				return nil, err
			}
		}
		if err := g.store.Replace(ctx, desc.Collection(), recID, doc); err != nil {
			return nil, err
		}
		stored, err := g.store.FindByID(ctx, desc.Collection(), recID, store.FindOptions{})
		if err != nil {
			return nil, err
		}
		g.publish(desc, "updated", stored)
		return Single(store.Project(stored, p.ProjectionFields())), nil
	})
}

func (g *Generator) baseUpdateMany(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		rec, ok := p.Args["record"].(map[string]any)
		if !ok || rec == nil {
			return nil, fmt.Errorf("%w: update expects a record", ErrInvalidPayload)
		}
		set := store.Record(rec).Clone()
		for _, h := range desc.Hooks() {
			var err error
			if set, err = h(ctx, set); err != nil {
				return nil, err
			}
		}
		n, err := g.store.UpdateMany(ctx, desc.Collection(), g.filterFor(desc, p), set)
		if err != nil {
			return nil, err
		}
		return Many(nil, n), nil
	})
}

func (g *Generator) baseRemoveByID(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		recID := argID(p)
		if recID == nil {
			return nil, fmt.Errorf("%w: remove expects an id", ErrInvalidPayload)
		}
		rec, err := g.store.FindByID(ctx, desc.Collection(), recID, store.FindOptions{})
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return Single(nil), nil
		}
		if err := g.store.DeleteByID(ctx, desc.Collection(), recID); err != nil {
			return nil, err
		}
		g.publish(desc, "removed", rec)
		return Single(store.Project(rec, p.ProjectionFields())), nil
	})
}

func (g *Generator) baseRemoveMany(desc *Descriptor) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		n, err := g.store.DeleteMany(ctx, desc.Collection(), g.filterFor(desc, p))
		if err != nil {
			return nil, err
		}
		return Many(nil, n), nil
	})
}

// guardBatchSize rejects oversized batch payloads before the orchestrator
// touches the store.
func (g *Generator) guardBatchSize(base Resolver) Resolver {
	limit := g.config.MaxBatchSize
	if limit <= 0 {
		return base
	}
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		if recs, ok := recordsArg(p); ok && len(recs) > limit {
			return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", ErrInvalidPayload, len(recs), limit)
		}
		return base.Resolve(ctx, p)
	})
}

// publishEach publishes every record of a successful batch result.
func (g *Generator) publishEach(base Resolver, desc *Descriptor, event string) Resolver {
	return ResolverFunc(func(ctx context.Context, p *Params) (*Result, error) {
		res, err := base.Resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, rec := range res.Records {
			g.publish(desc, event, rec)
		}
		return res, nil
	})
}

func (g *Generator) publish(desc *Descriptor, event string, rec store.Record) {
	if !g.config.subscriptionsEnabled() || rec == nil {
		return
	}
	g.bus.Publish(topicOf(desc, event), rec)
}

func topicOf(desc *Descriptor, event string) string {
	return strings.ToLower(desc.Name()) + "." + event
}

// filterFor returns the request filter restricted to the entity's declared
// filterable fields. The id field and the policy's owner field always pass,
// so owner scoping injected by wrappers survives the restriction.
func (g *Generator) filterFor(desc *Descriptor, p *Params) store.Filter {
	f := p.Filter()
	if f == nil {
		return nil
	}
	allowed := desc.FilterFields()
	if len(allowed) == 0 {
		return store.Filter(f)
	}

	pass := make(map[string]struct{}, len(allowed)+2)
	for _, field := range allowed {
		pass[field] = struct{}{}
	}
	pass[store.IDField] = struct{}{}
	if pol := desc.Policy(); pol != nil && pol.OwnerField != "" {
		pass[pol.OwnerField] = struct{}{}
	}

	out := make(store.Filter, len(f))
	for k, v := range f {
		if _, ok := pass[k]; ok {
			out[k] = v
		}
	}
	return out
}

func argID(p *Params) any {
	if p == nil || p.Args == nil {
		return nil
	}
	return p.Args[store.IDField]
}

func findOptions(p *Params) store.FindOptions {
	opts := store.FindOptions{Projection: p.ProjectionFields()}
	if p.Args == nil {
		return opts
	}
	opts.Limit = intArg(p.Args["limit"])
	opts.Skip = intArg(p.Args["skip"])
	if sort, ok := p.Args["sort"].([]store.SortField); ok {
		opts.Sort = sort
	}
	return opts
}

func intArg(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// fieldPrefix lowers the first rune of the entity name: "User" -> "user".
func fieldPrefix(name string) string {
	r := []rune(name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
