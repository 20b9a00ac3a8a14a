package apigen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ew-kislov/apigen/bus"
	"github.com/ew-kislov/apigen/store"
)

// Generator assembles the generated API surface: for every registered entity
// it builds the query, mutation, and subscription fields, composes the
// authorization wrappers around the store-backed base resolvers, and merges
// custom resolvers on top.
type Generator struct {
	store           store.Store
	bus             *bus.Bus
	logger          *slog.Logger
	config          Config
	entities        []*Descriptor
	customQueries   map[string]Resolver
	customMutations map[string]Resolver
	schema          *Schema
}

// New creates a generator and assembles its schema. A malformed entity
// declaration fails here, before any traffic is served.
func New(opts ...Option) (*Generator, error) {
	g := &Generator{
		logger:          slog.Default(),
		config:          DefaultConfig(),
		customQueries:   make(map[string]Resolver),
		customMutations: make(map[string]Resolver),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.store == nil {
		return nil, errors.New("apigen: store is required")
	}
	if g.bus == nil {
		g.bus = bus.New()
	}

	schema, err := g.buildSchema()
	if err != nil {
		return nil, err
	}
	g.schema = schema
	return g, nil
}

// Schema returns the assembled field maps.
func (g *Generator) Schema() *Schema { return g.schema }

// Store returns the underlying document store.
func (g *Generator) Store() store.Store { return g.store }

// Bus returns the generator's event bus.
func (g *Generator) Bus() *bus.Bus { return g.bus }

// Resolve dispatches one operation. A request without an explicit claim
// falls back to the claim attached to the context by the transport layer.
func (g *Generator) Resolve(ctx context.Context, op Op, field string, p *Params) (*Result, error) {
	var r Resolver
	switch op {
	case OpQuery:
		r = g.schema.Queries[field]
	case OpMutation:
		r = g.schema.Mutations[field]
	}
	if r == nil {
		return nil, fmt.Errorf("%s %s: %w", op, field, ErrUnknownField)
	}

	if p == nil {
		p = &Params{}
	}
	if p.Claim == nil {
		p.Claim = ClaimFromContext(ctx)
	}

	res, err := r.Resolve(ctx, p)
	if err != nil {
		if errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrAuthenticationRequired) {
			g.logger.DebugContext(ctx, "operation denied",
				"op", string(op), "field", field, "subject", subjectOf(p.Claim), "error", err)
		}
		return nil, err
	}
	return res, nil
}

// Subscribe opens a subscription on a generated subscription field. The
// cancel func must be called when the subscriber goes away.
func (g *Generator) Subscribe(field string) (<-chan bus.Event, func(), error) {
	topic, ok := g.schema.Subscriptions[field]
	if !ok {
		return nil, nil, fmt.Errorf("subscription %s: %w", field, ErrUnknownField)
	}
	ch, cancel := g.bus.Subscribe(topic, g.config.subscriptionBuffer())
	return ch, cancel, nil
}

// Close shuts down the generator's event bus.
func (g *Generator) Close() {
	g.bus.Close()
}

func subjectOf(c *Claim) string {
	if c == nil {
		return ""
	}
	return c.SubjectID
}
