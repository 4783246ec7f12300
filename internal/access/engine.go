package access

import (
	"entgate.dev/internal/model"
	"entgate.dev/internal/obs"
)

// Engine is the recursive filter engine: it walks a scope tree in step
// with a caller-supplied inclusion tree, rewriting the where clause at
// every level and pruning inclusions the caller may not see. It is
// stateless with respect to request data.
type Engine struct {
	reg *model.Registry
}

// NewEngine builds an engine over the given model registry.
func NewEngine(reg *model.Registry) *Engine {
	return &Engine{reg: reg}
}

// ApplyScope authorizes and rewrites filter for one access kind. The
// permission condition is evaluated upstream by the authorization
// boundary; here only the narrowing rules run.
//
// A missing scope entry for the requested kind fails closed: the result
// matches zero rows rather than raising an error, because "not exposed"
// is a normal condition, not a caller fault.
func (e *Engine) ApplyScope(modelName string, f *Filter, sc *Scope, kind Kind, caller Caller) *Filter {
	out, ok := e.apply(modelName, f, sc, kind, caller)
	if !ok {
		return ImpossibleFilter()
	}
	return out
}

// apply reports ok=false when the scope does not expose the kind. At
// the root that becomes the impossible filter; on inclusions the branch
// is dropped outright so the response does not reveal that the nested
// collection exists.
func (e *Engine) apply(modelName string, f *Filter, sc *Scope, kind Kind, caller Caller) (*Filter, bool) {
	rule, ok := sc.rule(kind)
	if !ok {
		return nil, false
	}

	obs.ScopeApplied(modelName)

	if f == nil {
		f = &Filter{}
	}

	out := &Filter{
		Limit:  f.Limit,
		Offset: f.Offset,
		Order:  f.Order,
	}

	// The filter method owns the narrowing; caller-supplied raw input
	// never survives unrewritten when a scope exists.
	where := f.Where.Clone()
	if rule.Filter != nil {
		where = rule.Filter(caller, where)
	}
	out.Where = where

	desc, ok := e.reg.Lookup(modelName)
	if !ok {
		// Unregistered model: nothing to recurse into.
		return out, true
	}

	for _, inc := range f.Include {
		rel, ok := desc.Relation(inc.Relation)
		if !ok {
			// Not a declared relation; cannot be satisfied, drop it.
			continue
		}
		child, ok := sc.Include[inc.Relation]
		if !ok {
			continue
		}
		rewritten, ok := e.apply(rel.Target, inc.Scope, child, kind, caller)
		if !ok {
			continue
		}
		out.Include = append(out.Include, Inclusion{Relation: inc.Relation, Scope: rewritten})
	}

	return out, true
}
