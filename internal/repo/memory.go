// Package repo provides repository implementations for the access core.
// The in-memory pool backs tests and the default wiring; the Postgres
// implementation lives in internal/store/pg.
package repo

import (
	"context"
	"sync"
	"time"

	"entgate.dev/internal/access"
	"entgate.dev/internal/ids"
	"entgate.dev/internal/model"
)

// Pool holds one in-memory repository per model so inclusion queries
// can resolve related rows across repositories.
type Pool struct {
	mu    sync.Mutex
	reg   *model.Registry
	repos map[string]*Memory
}

// NewPool builds an empty pool over the registry.
func NewPool(reg *model.Registry) *Pool {
	return &Pool{reg: reg, repos: make(map[string]*Memory)}
}

// Repo returns the repository for a model, creating it on first use.
func (p *Pool) Repo(modelName string) *Memory {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.repos[modelName]
	if !ok {
		m = &Memory{pool: p, model: modelName, recs: map[string]access.Record{}}
		p.repos[modelName] = m
	}
	return m
}

// Accessor adapts the pool to the scope tree's repository accessor.
func (p *Pool) Accessor(modelName string) access.RepoAccessor {
	return func(context.Context) access.Repository {
		return p.Repo(modelName)
	}
}

// Memory is a map-backed repository. Reads and writes are safe for
// concurrent use; each operation holds the repository lock for its
// duration, which is adequate for tests and single-process wiring.
type Memory struct {
	mu      sync.RWMutex
	pool    *Pool
	model   string
	recs    map[string]access.Record
	history []access.Record
}

var (
	_ access.Repository     = (*Memory)(nil)
	_ access.HistoryQuerier = (*Memory)(nil)
)

func (m *Memory) Create(ctx context.Context, rec access.Record) (access.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(rec)
}

func (m *Memory) CreateAll(ctx context.Context, recs []access.Record) ([]access.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]access.Record, 0, len(recs))
	for _, rec := range recs {
		created, err := m.create(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func (m *Memory) create(rec access.Record) (access.Record, error) {
	c := clone(rec)
	id, _ := c["id"].(string)
	if id == "" {
		id = ids.New()
		c["id"] = id
	}
	if _, exists := m.recs[id]; exists {
		return nil, &access.ConflictError{Model: m.model, Fields: []string{"id"}}
	}
	m.recs[id] = c
	m.appendHistory("create", c)
	return clone(c), nil
}

func (m *Memory) Find(ctx context.Context, f *access.Filter) ([]access.Record, error) {
	m.mu.RLock()
	matched := m.match(f)
	m.mu.RUnlock()

	if f != nil {
		if f.Offset > 0 {
			if f.Offset >= len(matched) {
				matched = nil
			} else {
				matched = matched[f.Offset:]
			}
		}
		if f.Limit > 0 && f.Limit < len(matched) {
			matched = matched[:f.Limit]
		}
		for i := range matched {
			if err := m.attachIncludes(ctx, matched[i], f.Include); err != nil {
				return nil, err
			}
		}
	}
	return matched, nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (access.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	return clone(rec), nil
}

func (m *Memory) FindOne(ctx context.Context, f *access.Filter) (access.Record, error) {
	rows, err := m.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (m *Memory) Count(ctx context.Context, where access.Where) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.recs {
		if MatchWhere(rec, where) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateAll(ctx context.Context, patch access.Record, where access.Where) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.recs {
		if !MatchWhere(rec, where) {
			continue
		}
		for k, v := range patch {
			if k == "id" {
				continue
			}
			rec[k] = v
		}
		m.recs[id] = rec
		m.appendHistory("update", rec)
		n++
	}
	return n, nil
}

func (m *Memory) UpdateByID(ctx context.Context, id string, patch access.Record) (access.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	m.appendHistory("update", rec)
	return clone(rec), nil
}

func (m *Memory) DeleteAll(ctx context.Context, where access.Where) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.recs {
		if !MatchWhere(rec, where) {
			continue
		}
		m.appendHistory("delete", rec)
		delete(m.recs, id)
		n++
	}
	return n, nil
}

func (m *Memory) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return access.ErrNotFound
	}
	m.appendHistory("delete", rec)
	delete(m.recs, id)
	return nil
}

func (m *Memory) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.recs[id]
	return ok, nil
}

// History returns the mutation trail filtered by the same where
// semantics as live rows; entries carry the record snapshot plus "op"
// and "at".
func (m *Memory) History(ctx context.Context, f *access.Filter) ([]access.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []access.Record
	for _, entry := range m.history {
		if f == nil || MatchWhere(entry, f.Where) {
			out = append(out, clone(entry))
		}
	}
	return out, nil
}

func (m *Memory) appendHistory(op string, rec access.Record) {
	entry := clone(rec)
	entry["op"] = op
	entry["at"] = time.Now().UTC()
	m.history = append(m.history, entry)
}

// match returns clones of all rows matching the filter's where clause.
func (m *Memory) match(f *access.Filter) []access.Record {
	var where access.Where
	if f != nil {
		where = f.Where
	}
	var out []access.Record
	for _, rec := range m.recs {
		if MatchWhere(rec, where) {
			out = append(out, clone(rec))
		}
	}
	return out
}

// attachIncludes resolves requested relations against sibling
// repositories in the pool, honoring each inclusion's nested filter.
func (m *Memory) attachIncludes(ctx context.Context, rec access.Record, incs []access.Inclusion) error {
	if len(incs) == 0 {
		return nil
	}
	desc, ok := m.pool.reg.Lookup(m.model)
	if !ok {
		return nil
	}
	for _, inc := range incs {
		rel, ok := desc.Relation(inc.Relation)
		if !ok {
			continue
		}
		child := m.pool.Repo(rel.Target)
		f := &access.Filter{}
		if inc.Scope != nil {
			f.Where = inc.Scope.Where.Clone()
			f.Include = inc.Scope.Include
			f.Limit = inc.Scope.Limit
			f.Offset = inc.Scope.Offset
		} else {
			f.Where = access.Where{}
		}
		switch rel.Kind {
		case model.HasMany:
			f.Where[rel.ForeignKey] = rec["id"]
			rows, err := child.Find(ctx, f)
			if err != nil {
				return err
			}
			rec[inc.Relation] = rows
		case model.BelongsTo:
			fkVal, _ := rec[rel.ForeignKey].(string)
			if fkVal == "" {
				rec[inc.Relation] = nil
				continue
			}
			f.Where["id"] = fkVal
			row, err := child.FindOne(ctx, f)
			if err != nil {
				return err
			}
			rec[inc.Relation] = row
		}
	}
	return nil
}

// MatchWhere evaluates a where clause against a record. "or" and "and"
// compose sub-clauses; every other key is field equality.
func MatchWhere(rec access.Record, where access.Where) bool {
	for k, v := range where {
		switch k {
		case "or":
			clauses, ok := v.([]access.Where)
			if !ok {
				return false
			}
			any := false
			for _, c := range clauses {
				if MatchWhere(rec, c) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		case "and":
			clauses, ok := v.([]access.Where)
			if !ok {
				return false
			}
			for _, c := range clauses {
				if !MatchWhere(rec, c) {
					return false
				}
			}
		default:
			if rec[k] != v {
				return false
			}
		}
	}
	return true
}

func clone(rec access.Record) access.Record {
	out := make(access.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
