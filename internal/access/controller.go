package access

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"entgate.dev/internal/model"
	"entgate.dev/internal/obs"
)

// Request carries everything an operation handler consumes: the caller,
// ancestor path ids in route order, the target id for by-id operations,
// the caller-supplied filter, and mutation payloads.
type Request struct {
	Caller  Caller
	PathIDs []string
	ID      string
	Filter  *Filter
	Records []Record
	Patch   Record
}

// HandlerFunc executes one generated operation.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Operation is one declarative route record. A transport adapter binds
// these to actual routes; nothing here depends on a wire format.
type Operation struct {
	Method  string
	Path    string
	Model   string
	Kind    Kind
	Handler HandlerFunc
}

// Generator synthesizes the full operation set for a scope tree.
// Operation presence is data-driven: an access kind absent from a scope
// produces no operation at all, so unexposed surface area is invisible
// rather than generated-then-denied.
type Generator struct {
	reg    *model.Registry
	engine *Engine
}

// NewGenerator builds a generator over the registry.
func NewGenerator(reg *model.Registry) *Generator {
	return &Generator{reg: reg, engine: NewEngine(reg)}
}

// Engine exposes the generator's filter engine for callers that need
// direct ApplyScope/CheckExists access.
func (g *Generator) Engine() *Engine {
	return g.engine
}

// Build emits operations for the root collection at basePath and,
// recursively, for every relation in the scope tree. Nested routes are
// namespaced under the parent path plus a parent id segment and receive
// the ancestor id chain for existence validation.
func (g *Generator) Build(rootModel string, rootScope *Scope, basePath string) []Operation {
	b := &builder{
		Generator: g,
		rootModel: rootModel,
		rootScope: rootScope,
		onPath:    map[*Scope]bool{},
	}
	b.collection(rootModel, rootScope, basePath, nil, "")
	return b.ops
}

type builder struct {
	*Generator
	rootModel string
	rootScope *Scope
	ops       []Operation

	// onPath guards against scope trees that mirror relation graph
	// cycles (e.g. Role.parent -> Role): route nesting stops where a
	// scope would repeat on its own ancestry.
	onPath map[*Scope]bool
}

func (b *builder) collection(modelName string, sc *Scope, path string, relPath []string, parentFK string) {
	if b.onPath[sc] {
		return
	}
	b.onPath[sc] = true
	defer delete(b.onPath, sc)

	depth := len(relPath)
	idSeg := fmt.Sprintf(":id%d", depth)
	byID := path + "/" + idSeg

	if sc.Create != nil {
		b.add("POST", path, modelName, KindCreate, b.createHandler(modelName, sc, relPath, parentFK))
	}
	if sc.Read != nil {
		b.add("GET", path, modelName, KindRead, b.listHandler(modelName, sc, relPath, parentFK))
		b.add("GET", path+"/count", modelName, KindRead, b.countHandler(modelName, sc, relPath, parentFK))
		b.add("GET", byID, modelName, KindRead, b.findByIDHandler(modelName, sc, relPath, parentFK))
	}
	if sc.Update != nil {
		b.add("PATCH", path, modelName, KindUpdate, b.updateAllHandler(modelName, sc, relPath, parentFK))
		b.add("PATCH", byID, modelName, KindUpdate, b.updateByIDHandler(modelName, sc, relPath, parentFK))
	}
	if sc.Delete != nil {
		b.add("DELETE", path, modelName, KindDelete, b.deleteAllHandler(modelName, sc, relPath, parentFK))
		b.add("DELETE", byID, modelName, KindDelete, b.deleteByIDHandler(modelName, sc, relPath, parentFK))
	}
	if sc.History != nil {
		b.add("GET", path+"/history", modelName, KindHistory, b.historyHandler(modelName, sc, relPath, parentFK))
	}

	desc, ok := b.reg.Lookup(modelName)
	if !ok {
		return
	}

	relations := lo.Keys(sc.Include)
	sort.Strings(relations)
	for _, name := range relations {
		rel, ok := desc.Relation(name)
		if !ok {
			// Scope entry without a declared relation cannot be
			// reached; emit nothing for it.
			continue
		}
		child := sc.Include[name]
		fk := ""
		if rel.Kind == model.HasMany {
			fk = rel.ForeignKey
		}
		b.collection(rel.Target, child, byID+"/"+name, append(relPath[:depth:depth], name), fk)
	}
}

func (b *builder) add(method, path, modelName string, kind Kind, h HandlerFunc) {
	b.ops = append(b.ops, Operation{Method: method, Path: path, Model: modelName, Kind: kind, Handler: h})
}

// authorize evaluates the scope's permission condition for the kind.
func (b *builder) authorize(sc *Scope, kind Kind, caller Caller) error {
	cond, ok := sc.Condition(kind)
	if !ok {
		return ErrNotFound
	}
	allowed := cond.Eval(caller.Permissions())
	obs.AuthDecision(string(kind), allowed)
	if !allowed {
		return ErrUnauthorized
	}
	return nil
}

// checkAncestors validates the parent id chain for nested collections.
func (b *builder) checkAncestors(ctx context.Context, relPath []string, req Request) error {
	if len(relPath) == 0 {
		return nil
	}
	if len(req.PathIDs) < len(relPath) {
		return ErrNotFound
	}
	return b.engine.CheckExists(ctx, req.PathIDs[:len(relPath)], b.rootModel, b.rootScope, relPath, req.Caller)
}

// pin conjoins a fixed field constraint into a narrowed clause. A field
// the filter method already constrained is never overwritten: the two
// constraints are ANDed so both must hold.
func pin(where Where, field, value string) Where {
	if cur, ok := where[field]; ok {
		if cur == value {
			return where.Clone()
		}
		return Where{"and": []Where{where.Clone(), {field: value}}}
	}
	out := where.Clone()
	out[field] = value
	return out
}

// pinParent constrains a narrowed where clause to the immediate parent
// of a nested has-many route.
func pinParent(where Where, parentFK string, req Request) Where {
	if parentFK == "" || len(req.PathIDs) == 0 {
		return where
	}
	return pin(where, parentFK, req.PathIDs[len(req.PathIDs)-1])
}

// checkDenied rejects patches touching properties the rule withholds.
func checkDenied(rule *Rule, patch Record) error {
	if rule == nil {
		return nil
	}
	for _, f := range rule.Deny {
		if _, ok := patch[f]; ok {
			return fmt.Errorf("%w: %s is not writable", ErrValidation, f)
		}
	}
	return nil
}

func (b *builder) createHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindCreate, req.Caller); err != nil {
			return nil, err
		}
		if len(req.Records) == 0 {
			return nil, fmt.Errorf("%w: request body is required", ErrValidation)
		}

		desc, ok := b.reg.Lookup(modelName)
		if !ok {
			return nil, ErrNotFound
		}

		recs := make([]Record, len(req.Records))
		for i, rec := range req.Records {
			c := Record{}
			for k, v := range rec {
				c[k] = v
			}
			if parentFK != "" && len(req.PathIDs) > 0 {
				c[parentFK] = req.PathIDs[len(req.PathIDs)-1]
			}
			recs[i] = c
		}
		for _, rec := range recs {
			if err := validateShape(desc, rec, false); err != nil {
				return nil, err
			}
		}

		repo := sc.Repo(ctx)
		if err := CheckUnique(ctx, desc, recs, false, repo); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}

		if len(recs) == 1 {
			return repo.Create(ctx, recs[0])
		}
		return repo.CreateAll(ctx, recs)
	}
}

func (b *builder) listHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindRead, req.Caller); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}
		f := b.engine.ApplyScope(modelName, req.Filter, sc, KindRead, req.Caller)
		f.Where = pinParent(f.Where, parentFK, req)
		return sc.Repo(ctx).Find(ctx, f)
	}
}

func (b *builder) countHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindRead, req.Caller); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}
		f := b.engine.ApplyScope(modelName, req.Filter, sc, KindRead, req.Caller)
		n, err := sc.Repo(ctx).Count(ctx, pinParent(f.Where, parentFK, req))
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": n}, nil
	}
}

func (b *builder) findByIDHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindRead, req.Caller); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}

		in := &Filter{Where: Where{"id": req.ID}}
		if req.Filter != nil {
			in.Include = req.Filter.Include
		}
		// Re-pin the target id after narrowing; an id constraint the
		// filter method wrote keeps holding.
		f := b.engine.ApplyScope(modelName, in, sc, KindRead, req.Caller)
		f.Where = pinParent(pin(f.Where, "id", req.ID), parentFK, req)

		rec, err := sc.Repo(ctx).FindOne(ctx, f)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, ErrNotFound
		}
		return rec, nil
	}
}

func (b *builder) updateAllHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindUpdate, req.Caller); err != nil {
			return nil, err
		}
		desc, ok := b.reg.Lookup(modelName)
		if !ok {
			return nil, ErrNotFound
		}
		if err := validateShape(desc, req.Patch, true); err != nil {
			return nil, err
		}
		if err := checkDenied(sc.Update, req.Patch); err != nil {
			return nil, err
		}
		repo := sc.Repo(ctx)
		if err := CheckUnique(ctx, desc, []Record{req.Patch}, true, repo); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}
		f := b.engine.ApplyScope(modelName, req.Filter, sc, KindUpdate, req.Caller)
		n, err := repo.UpdateAll(ctx, req.Patch, pinParent(f.Where, parentFK, req))
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": n}, nil
	}
}

func (b *builder) updateByIDHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindUpdate, req.Caller); err != nil {
			return nil, err
		}
		desc, ok := b.reg.Lookup(modelName)
		if !ok {
			return nil, ErrNotFound
		}
		if err := validateShape(desc, req.Patch, true); err != nil {
			return nil, err
		}
		if err := checkDenied(sc.Update, req.Patch); err != nil {
			return nil, err
		}
		repo := sc.Repo(ctx)
		if err := CheckUnique(ctx, desc, []Record{req.Patch}, true, repo); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}

		f := b.engine.ApplyScope(modelName, &Filter{Where: Where{"id": req.ID}}, sc, KindUpdate, req.Caller)
		where := pinParent(pin(f.Where, "id", req.ID), parentFK, req)

		n, err := repo.UpdateAll(ctx, req.Patch, where)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return repo.FindByID(ctx, req.ID)
	}
}

func (b *builder) deleteAllHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindDelete, req.Caller); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}
		f := b.engine.ApplyScope(modelName, req.Filter, sc, KindDelete, req.Caller)
		n, err := sc.Repo(ctx).DeleteAll(ctx, pinParent(f.Where, parentFK, req))
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": n}, nil
	}
}

func (b *builder) deleteByIDHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindDelete, req.Caller); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}

		f := b.engine.ApplyScope(modelName, &Filter{Where: Where{"id": req.ID}}, sc, KindDelete, req.Caller)
		where := pinParent(pin(f.Where, "id", req.ID), parentFK, req)

		n, err := sc.Repo(ctx).DeleteAll(ctx, where)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	}
}

func (b *builder) historyHandler(modelName string, sc *Scope, relPath []string, parentFK string) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		if err := b.authorize(sc, KindHistory, req.Caller); err != nil {
			return nil, err
		}
		if err := b.checkAncestors(ctx, relPath, req); err != nil {
			return nil, err
		}
		f := b.engine.ApplyScope(modelName, req.Filter, sc, KindHistory, req.Caller)
		f.Where = pinParent(f.Where, parentFK, req)

		hq, ok := sc.Repo(ctx).(HistoryQuerier)
		if !ok {
			// Storage without an audit mode has no trail to return.
			return []Record{}, nil
		}
		return hq.History(ctx, f)
	}
}

// validateShape rejects unknown properties and, for full records,
// missing required ones. The id is always repository-assigned.
func validateShape(desc *model.Descriptor, rec Record, partial bool) error {
	if rec == nil {
		return fmt.Errorf("%w: request body is required", ErrValidation)
	}
	for k := range rec {
		if k == "id" {
			if partial {
				return fmt.Errorf("%w: id is immutable", ErrValidation)
			}
			continue
		}
		if !desc.HasProperty(k) {
			return fmt.Errorf("%w: unknown property %s", ErrValidation, k)
		}
	}
	if partial {
		return nil
	}
	for _, p := range desc.Properties {
		if !p.Required {
			continue
		}
		if !hasValue(rec, p.Name) {
			return fmt.Errorf("%w: %s is required", ErrValidation, p.Name)
		}
	}
	return nil
}
