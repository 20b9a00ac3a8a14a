package apigen

import (
	"context"
	"fmt"
	"strings"

	"github.com/ew-kislov/apigen/id"
	"github.com/ew-kislov/apigen/store"
)

// Hook transforms a candidate document before a mutation is issued. Hooks run
// in declaration order; each receives the previous hook's output.
type Hook func(ctx context.Context, record store.Record) (store.Record, error)

// Relation declares a nested relation to another entity, resolved by the
// schema layer through an id-bearing field on this entity's records.
type Relation struct {
	// Field on this entity's records holding the related id (or id list).
	Field string

	// Entity is the related entity's name.
	Entity string

	// Many marks a one-to-many relation (Field holds an id list).
	Many bool
}

// Descriptor is the immutable declaration of one generated entity: its
// collection, access policy, nested relations, filterable fields, and
// pre-mutation hooks. Build descriptors with NewEntity; a built descriptor is
// shared read-only by every resolver generated for it.
type Descriptor struct {
	name         string
	collection   string
	prefix       id.Prefix
	policy       *Policy
	relations    []Relation
	filterFields []string
	hooks        []Hook
}

// Name returns the entity name, e.g. "User".
func (d *Descriptor) Name() string { return d.name }

// Collection returns the backing collection name.
func (d *Descriptor) Collection() string { return d.collection }

// Prefix returns the TypeID prefix stamped onto created records.
func (d *Descriptor) Prefix() id.Prefix { return d.prefix }

// Policy returns the entity's access policy, or nil for open access.
func (d *Descriptor) Policy() *Policy { return d.policy }

// Relations returns the declared nested relations.
func (d *Descriptor) Relations() []Relation {
	out := make([]Relation, len(d.relations))
	copy(out, d.relations)
	return out
}

// FilterFields returns the fields callers may filter by. Empty means any.
func (d *Descriptor) FilterFields() []string {
	out := make([]string, len(d.filterFields))
	copy(out, d.filterFields)
	return out
}

// Hooks returns the declared pre-mutation hooks.
func (d *Descriptor) Hooks() []Hook {
	out := make([]Hook, len(d.hooks))
	copy(out, d.hooks)
	return out
}

// EntityBuilder accumulates an entity declaration. The zero value is not
// usable; start with NewEntity.
type EntityBuilder struct {
	d Descriptor
}

// NewEntity starts an entity declaration. The collection name defaults to the
// lowercased entity name and the id prefix is derived from it.
func NewEntity(name string) *EntityBuilder {
	return &EntityBuilder{d: Descriptor{name: name}}
}

// Collection overrides the backing collection name.
func (b *EntityBuilder) Collection(name string) *EntityBuilder {
	b.d.collection = name
	return b
}

// Access declares the entity's access policy.
func (b *EntityBuilder) Access(p Policy) *EntityBuilder {
	cp := p
	b.d.policy = &cp
	return b
}

// Relation declares a nested relation resolved through the given field.
func (b *EntityBuilder) Relation(field, entity string, many bool) *EntityBuilder {
	b.d.relations = append(b.d.relations, Relation{Field: field, Entity: entity, Many: many})
	return b
}

// Filterable restricts caller-supplied filters to the given fields. The id
// field and the policy's owner field are always permitted.
func (b *EntityBuilder) Filterable(fields ...string) *EntityBuilder {
	b.d.filterFields = append(b.d.filterFields, fields...)
	return b
}

// Hook appends a pre-mutation hook.
func (b *EntityBuilder) Hook(h Hook) *EntityBuilder {
	b.d.hooks = append(b.d.hooks, h)
	return b
}

// Build validates the declaration and returns the immutable descriptor.
// A self-scoped policy without an owner field fails with ErrConfiguration.
func (b *EntityBuilder) Build() (*Descriptor, error) {
	if strings.TrimSpace(b.d.name) == "" {
		return nil, fmt.Errorf("%w: entity name is required", ErrConfiguration)
	}
	if err := b.d.policy.Validate(); err != nil {
		return nil, fmt.Errorf("entity %s: %w", b.d.name, err)
	}
	if b.d.collection == "" {
		b.d.collection = strings.ToLower(b.d.name)
	}
	b.d.prefix = id.ForEntity(b.d.name)

	d := b.d
	d.relations = append([]Relation(nil), b.d.relations...)
	d.filterFields = append([]string(nil), b.d.filterFields...)
	d.hooks = append([]Hook(nil), b.d.hooks...)
	return &d, nil
}

// MustBuild is like Build but panics on error. Use for static declarations.
func (b *EntityBuilder) MustBuild() *Descriptor {
	d, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("apigen: build entity: %v", err))
	}
	return d
}
