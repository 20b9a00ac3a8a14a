package apigen

import (
	"log/slog"

	"github.com/ew-kislov/apigen/bus"
	"github.com/ew-kislov/apigen/store"
)

// Option is a functional option for the Generator.
type Option func(*Generator)

// WithStore sets the document store backing all generated resolvers.
func WithStore(s store.Store) Option { return func(g *Generator) { g.store = s } }

// WithEntity registers entity descriptors to generate fields for.
func WithEntity(descs ...*Descriptor) Option {
	return func(g *Generator) { g.entities = append(g.entities, descs...) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithBus sets the event bus used by subscription fields. A generator
// without an explicit bus creates its own.
func WithBus(b *bus.Bus) Option { return func(g *Generator) { g.bus = b } }

// WithConfig sets the generator configuration.
func WithConfig(c Config) Option { return func(g *Generator) { g.config = c } }

// WithQueryResolver merges a custom query resolver into the schema,
// overriding a generated field of the same name.
func WithQueryResolver(field string, r Resolver) Option {
	return func(g *Generator) { g.customQueries[field] = r }
}

// WithMutationResolver merges a custom mutation resolver into the schema,
// overriding a generated field of the same name.
func WithMutationResolver(field string, r Resolver) Option {
	return func(g *Generator) { g.customMutations[field] = r }
}
