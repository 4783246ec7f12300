package model

import (
	"fmt"
	"sort"
)

// RelationKind distinguishes the two relation shapes the registry tracks.
type RelationKind int

const (
	BelongsTo RelationKind = iota
	HasMany
)

// Relation names a link from one model to another. Targets are resolved
// by name through the Registry, never by direct reference, so mutually
// referential models (e.g. a hierarchical Role.parent) register cleanly.
type Relation struct {
	Name       string
	Target     string
	Kind       RelationKind
	ForeignKey string
}

// Property describes a declared field of a model.
type Property struct {
	Name     string
	Required bool
}

// Descriptor is the introspection surface the access core needs from a
// model: declared properties, uniqueness constraints and relations.
type Descriptor struct {
	Name          string
	Properties    []Property
	UniqueFields  []string
	UniqueIndexes [][]string
	Relations     map[string]Relation
}

// Unique returns every field carrying a uniqueness constraint, including
// members of composite unique indexes, deduplicated and sorted.
func (d *Descriptor) Unique() []string {
	seen := make(map[string]struct{}, len(d.UniqueFields))
	for _, f := range d.UniqueFields {
		seen[f] = struct{}{}
	}
	for _, idx := range d.UniqueIndexes {
		for _, f := range idx {
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// HasProperty reports whether the model declares the named field.
func (d *Descriptor) HasProperty(name string) bool {
	for _, p := range d.Properties {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Relation returns the declared relation with the given name.
func (d *Descriptor) Relation(name string) (Relation, bool) {
	r, ok := d.Relations[name]
	return r, ok
}

// Registry holds all model descriptors keyed by name. Descriptors are
// registered once at startup; lookups at request time are read-only.
type Registry struct {
	models map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Registering the same name twice is a
// programming error and is rejected.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("model: descriptor requires a name")
	}
	if _, ok := r.models[d.Name]; ok {
		return fmt.Errorf("model: %s already registered", d.Name)
	}
	if d.Relations == nil {
		d.Relations = map[string]Relation{}
	}
	r.models[d.Name] = d
	return nil
}

// MustRegister is Register for static startup wiring.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup resolves a descriptor by model name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.models[name]
	return d, ok
}

// Validate checks that every relation target names a registered model.
// Called once after registration, before serving requests.
func (r *Registry) Validate() error {
	for name, d := range r.models {
		for rel, link := range d.Relations {
			if _, ok := r.models[link.Target]; !ok {
				return fmt.Errorf("model: %s.%s targets unregistered model %s", name, rel, link.Target)
			}
		}
	}
	return nil
}
