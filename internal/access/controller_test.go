package access

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"entgate.dev/internal/model"
)

func opSet(ops []Operation) map[string]Kind {
	set := make(map[string]Kind, len(ops))
	for _, op := range ops {
		set[op.Method+" "+op.Path] = op.Kind
	}
	return set
}

func fullTeamScope(teamRepo, memberRepo Repository) *Scope {
	cond := Atom("teams")
	memberScope := &Scope{
		Model:  "Member",
		Repo:   accessorFor(memberRepo),
		Create: &cond,
		Read:   &Rule{Cond: cond, Filter: passAll},
		Update: &Rule{Cond: cond, Filter: passAll},
		Delete: &Rule{Cond: cond, Filter: passAll},
	}
	return &Scope{
		Model:   "Team",
		Repo:    accessorFor(teamRepo),
		Create:  &cond,
		Read:    &Rule{Cond: cond, Filter: passAll},
		Update:  &Rule{Cond: cond, Filter: passAll},
		Delete:  &Rule{Cond: cond, Filter: passAll},
		History: &Rule{Cond: cond, Filter: passAll},
		Include: map[string]*Scope{"members": memberScope},
	}
}

func TestBuildEmitsOperationsPerKind(t *testing.T) {
	reg := testRegistry(t)
	g := NewGenerator(reg)

	ops := g.Build("Team", fullTeamScope(&fakeRepo{}, &fakeRepo{}), "/v1/teams")
	set := opSet(ops)

	for _, want := range []string{
		"POST /v1/teams",
		"GET /v1/teams",
		"GET /v1/teams/count",
		"GET /v1/teams/:id0",
		"PATCH /v1/teams",
		"PATCH /v1/teams/:id0",
		"DELETE /v1/teams",
		"DELETE /v1/teams/:id0",
		"GET /v1/teams/history",
		"POST /v1/teams/:id0/members",
		"GET /v1/teams/:id0/members",
		"GET /v1/teams/:id0/members/count",
		"GET /v1/teams/:id0/members/:id1",
		"PATCH /v1/teams/:id0/members/:id1",
		"DELETE /v1/teams/:id0/members/:id1",
	} {
		require.Contains(t, set, want)
	}

	// Members expose no history rule: no history route exists.
	require.NotContains(t, set, "GET /v1/teams/:id0/members/history")
}

func TestBuildAbsentKindEmitsNoRoute(t *testing.T) {
	reg := testRegistry(t)
	g := NewGenerator(reg)

	readOnly := &Scope{
		Model: "Team",
		Repo:  accessorFor(&fakeRepo{}),
		Read:  &Rule{Cond: Atom("teams"), Filter: passAll},
	}
	ops := g.Build("Team", readOnly, "/v1/teams")
	set := opSet(ops)

	require.Contains(t, set, "GET /v1/teams")
	require.NotContains(t, set, "POST /v1/teams", "no create scope means the route does not exist at all")
	require.NotContains(t, set, "PATCH /v1/teams")
	require.NotContains(t, set, "DELETE /v1/teams")
}

func TestBuildSelfReferentialScopeTerminates(t *testing.T) {
	reg := model.NewRegistry()
	reg.MustRegister(&model.Descriptor{
		Name: "Node",
		Properties: []model.Property{
			{Name: "id"},
			{Name: "name", Required: true},
			{Name: "parentId"},
		},
		Relations: map[string]model.Relation{
			"parent":   {Name: "parent", Target: "Node", Kind: model.BelongsTo, ForeignKey: "parentId"},
			"children": {Name: "children", Target: "Node", Kind: model.HasMany, ForeignKey: "parentId"},
		},
	})

	nodeScope := &Scope{
		Model: "Node",
		Repo:  accessorFor(&fakeRepo{}),
		Read:  &Rule{Cond: Atom("nodes"), Filter: passAll},
	}
	nodeScope.Include = map[string]*Scope{
		"parent":   nodeScope,
		"children": nodeScope,
	}

	g := NewGenerator(reg)
	ops := g.Build("Node", nodeScope, "/v1/nodes")
	set := opSet(ops)

	// One level of nesting, then the cycle stops.
	require.Contains(t, set, "GET /v1/nodes")
	require.Contains(t, set, "GET /v1/nodes/:id0/children")
	require.Contains(t, set, "GET /v1/nodes/:id0/parent")
	require.NotContains(t, set, "GET /v1/nodes/:id0/children/:id1/children")
}

func findOp(t *testing.T, ops []Operation, method, path string) Operation {
	t.Helper()
	for _, op := range ops {
		if op.Method == method && op.Path == path {
			return op
		}
	}
	t.Fatalf("operation %s %s not found", method, path)
	return Operation{}
}

func TestCreateHandlerRejectsUnauthorized(t *testing.T) {
	reg := testRegistry(t)
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(&fakeRepo{}, &fakeRepo{}), "/v1/teams")
	create := findOp(t, ops, "POST", "/v1/teams")

	_, err := create.Handler(context.Background(), Request{
		Caller:  StaticCaller{Subject: "u1"},
		Records: []Record{{"name": "ops"}},
	})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateHandlerValidatesShape(t *testing.T) {
	reg := testRegistry(t)
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(&fakeRepo{}, &fakeRepo{}), "/v1/teams")
	create := findOp(t, ops, "POST", "/v1/teams")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}

	_, err := create.Handler(context.Background(), Request{
		Caller:  caller,
		Records: []Record{{"name": "ops", "bogus": true}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = create.Handler(context.Background(), Request{
		Caller:  caller,
		Records: []Record{{}},
	})
	require.ErrorIs(t, err, ErrValidation, "required property missing")

	_, err = create.Handler(context.Background(), Request{Caller: caller})
	require.ErrorIs(t, err, ErrValidation, "empty body")
}

func TestCreateHandlerSingleAndBulk(t *testing.T) {
	reg := testRegistry(t)
	repo := &fakeRepo{}
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(repo, &fakeRepo{}), "/v1/teams")
	create := findOp(t, ops, "POST", "/v1/teams")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}

	out, err := create.Handler(context.Background(), Request{
		Caller:  caller,
		Records: []Record{{"name": "ops"}},
	})
	require.NoError(t, err)
	_, isSingle := out.(Record)
	require.True(t, isSingle, "single input yields a single record")

	out, err = create.Handler(context.Background(), Request{
		Caller:  caller,
		Records: []Record{{"name": "a"}, {"name": "b"}},
	})
	require.NoError(t, err)
	_, isBulk := out.([]Record)
	require.True(t, isBulk, "bulk input yields a slice")
}

func TestNestedCreateInjectsParentForeignKey(t *testing.T) {
	reg := testRegistry(t)
	teamRepo := &fakeRepo{rows: []Record{{"id": "t1", "name": "ops"}}}
	memberRepo := &fakeRepo{}
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(teamRepo, memberRepo), "/v1/teams")
	create := findOp(t, ops, "POST", "/v1/teams/:id0/members")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}
	out, err := create.Handler(context.Background(), Request{
		Caller:  caller,
		PathIDs: []string{"t1"},
		Records: []Record{{"email": "a@x"}},
	})
	require.NoError(t, err)
	rec := out.(Record)
	require.Equal(t, "t1", rec["teamId"], "parent id wins over any client value")
}

func TestNestedCreateMissingParent(t *testing.T) {
	reg := testRegistry(t)
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(&fakeRepo{}, &fakeRepo{}), "/v1/teams")
	create := findOp(t, ops, "POST", "/v1/teams/:id0/members")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}
	_, err := create.Handler(context.Background(), Request{
		Caller:  caller,
		PathIDs: []string{"t-missing"},
		Records: []Record{{"email": "a@x"}},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindByIDHandlerFiltersInvisible(t *testing.T) {
	reg := testRegistry(t)
	teamRepo := &fakeRepo{rows: []Record{{"id": "t1", "name": "ops"}}}

	cond := Atom("teams")
	hideAll := func(_ Caller, where Where) Where {
		out := where.Clone()
		out["name"] = "nothing-matches"
		return out
	}
	scope := &Scope{
		Model: "Team",
		Repo:  accessorFor(teamRepo),
		Read:  &Rule{Cond: cond, Filter: hideAll},
	}

	g := NewGenerator(reg)
	ops := g.Build("Team", scope, "/v1/teams")
	byID := findOp(t, ops, "GET", "/v1/teams/:id0")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}
	_, err := byID.Handler(context.Background(), Request{Caller: caller, ID: "t1"})
	require.ErrorIs(t, err, ErrNotFound, "hidden and missing are the same answer")
}

func TestByIDHandlersKeepNarrowedID(t *testing.T) {
	reg := testRegistry(t)
	teamRepo := &fakeRepo{rows: []Record{
		{"id": "t1", "name": "mine"},
		{"id": "t2", "name": "other"},
	}}

	cond := Atom("teams")
	selfOnly := func(c Caller, where Where) Where {
		out := where.Clone()
		out["id"] = c.SubjectID()
		return out
	}
	scope := &Scope{
		Model:  "Team",
		Repo:   accessorFor(teamRepo),
		Read:   &Rule{Cond: cond, Filter: selfOnly},
		Update: &Rule{Cond: cond, Filter: selfOnly},
		Delete: &Rule{Cond: cond, Filter: selfOnly},
	}
	g := NewGenerator(reg)
	ops := g.Build("Team", scope, "/v1/teams")
	caller := StaticCaller{Subject: "t1", Perms: []string{"teams"}}

	get := findOp(t, ops, "GET", "/v1/teams/:id0")
	out, err := get.Handler(context.Background(), Request{Caller: caller, ID: "t1"})
	require.NoError(t, err)
	require.Equal(t, "mine", out.(Record)["name"])

	_, err = get.Handler(context.Background(), Request{Caller: caller, ID: "t2"})
	require.ErrorIs(t, err, ErrNotFound, "an id constraint from the filter method must survive the target pin")

	patch := findOp(t, ops, "PATCH", "/v1/teams/:id0")
	_, err = patch.Handler(context.Background(), Request{Caller: caller, ID: "t2", Patch: Record{"name": "stolen"}})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "other", teamRepo.rows[1]["name"], "foreign record must stay untouched")

	del := findOp(t, ops, "DELETE", "/v1/teams/:id0")
	_, err = del.Handler(context.Background(), Request{Caller: caller, ID: "t2"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, teamRepo.rows, 2)
}

func TestNestedByIDRequiresMatchingParent(t *testing.T) {
	reg := testRegistry(t)
	teamRepo := &fakeRepo{rows: []Record{
		{"id": "t1", "name": "ops"},
		{"id": "t2", "name": "dev"},
	}}
	memberRepo := &fakeRepo{rows: []Record{
		{"id": "m1", "email": "a@x", "teamId": "t2"},
	}}
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(teamRepo, memberRepo), "/v1/teams")
	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}

	get := findOp(t, ops, "GET", "/v1/teams/:id0/members/:id1")

	// t1 exists, but m1 belongs to t2.
	_, err := get.Handler(context.Background(), Request{Caller: caller, PathIDs: []string{"t1"}, ID: "m1"})
	require.ErrorIs(t, err, ErrNotFound)

	out, err := get.Handler(context.Background(), Request{Caller: caller, PathIDs: []string{"t2"}, ID: "m1"})
	require.NoError(t, err)
	require.Equal(t, "a@x", out.(Record)["email"])

	del := findOp(t, ops, "DELETE", "/v1/teams/:id0/members/:id1")
	_, err = del.Handler(context.Background(), Request{Caller: caller, PathIDs: []string{"t1"}, ID: "m1"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, memberRepo.rows, 1, "record under another parent must not be deleted")

	patch := findOp(t, ops, "PATCH", "/v1/teams/:id0/members/:id1")
	_, err = patch.Handler(context.Background(), Request{Caller: caller, PathIDs: []string{"t1"}, ID: "m1", Patch: Record{"email": "x@x"}})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "a@x", memberRepo.rows[0]["email"])
}

func TestUpdateHandlersRejectDeniedProperties(t *testing.T) {
	reg := testRegistry(t)
	teamRepo := &fakeRepo{rows: []Record{{"id": "t1", "name": "ops"}}}

	cond := Atom("teams")
	scope := &Scope{
		Model: "Team",
		Repo:  accessorFor(teamRepo),
		Update: &Rule{
			Cond:   cond,
			Filter: passAll,
			Deny:   []string{"name"},
		},
	}
	g := NewGenerator(reg)
	ops := g.Build("Team", scope, "/v1/teams")
	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}

	byID := findOp(t, ops, "PATCH", "/v1/teams/:id0")
	_, err := byID.Handler(context.Background(), Request{Caller: caller, ID: "t1", Patch: Record{"name": "renamed"}})
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, "ops", teamRepo.rows[0]["name"])

	bulk := findOp(t, ops, "PATCH", "/v1/teams")
	_, err = bulk.Handler(context.Background(), Request{Caller: caller, Patch: Record{"name": "renamed"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateByIDHandler(t *testing.T) {
	reg := testRegistry(t)
	teamRepo := &fakeRepo{rows: []Record{{"id": "t1", "name": "ops"}}}
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(teamRepo, &fakeRepo{}), "/v1/teams")
	patch := findOp(t, ops, "PATCH", "/v1/teams/:id0")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}

	out, err := patch.Handler(context.Background(), Request{
		Caller: caller,
		ID:     "t1",
		Patch:  Record{"name": "platform"},
	})
	require.NoError(t, err)
	require.Equal(t, "platform", out.(Record)["name"])

	_, err = patch.Handler(context.Background(), Request{
		Caller: caller,
		ID:     "t1",
		Patch:  Record{"id": "t2"},
	})
	require.ErrorIs(t, err, ErrValidation, "id is immutable")

	_, err = patch.Handler(context.Background(), Request{
		Caller: caller,
		ID:     "missing",
		Patch:  Record{"name": "x"},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteByIDHandler(t *testing.T) {
	reg := testRegistry(t)
	teamRepo := &fakeRepo{rows: []Record{{"id": "t1", "name": "ops"}}}
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(teamRepo, &fakeRepo{}), "/v1/teams")
	del := findOp(t, ops, "DELETE", "/v1/teams/:id0")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}

	out, err := del.Handler(context.Background(), Request{Caller: caller, ID: "t1"})
	require.NoError(t, err)
	require.Nil(t, out)

	_, err = del.Handler(context.Background(), Request{Caller: caller, ID: "t1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCountHandler(t *testing.T) {
	reg := testRegistry(t)
	teamRepo := &fakeRepo{rows: []Record{
		{"id": "t1", "name": "a"},
		{"id": "t2", "name": "b"},
	}}
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(teamRepo, &fakeRepo{}), "/v1/teams")
	count := findOp(t, ops, "GET", "/v1/teams/count")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}
	out, err := count.Handler(context.Background(), Request{Caller: caller})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"count": 2}, out)
}

func TestHistoryHandlerWithoutTrail(t *testing.T) {
	reg := testRegistry(t)
	g := NewGenerator(reg)
	ops := g.Build("Team", fullTeamScope(&fakeRepo{}, &fakeRepo{}), "/v1/teams")
	history := findOp(t, ops, "GET", "/v1/teams/history")

	caller := StaticCaller{Subject: "u1", Perms: []string{"teams"}}
	out, err := history.Handler(context.Background(), Request{Caller: caller})
	require.NoError(t, err)
	require.Equal(t, []Record{}, out, "storage without an audit trail yields an empty slice")
}

func TestOperationPathsAreDeterministic(t *testing.T) {
	reg := testRegistry(t)
	g := NewGenerator(reg)

	first := g.Build("Team", fullTeamScope(&fakeRepo{}, &fakeRepo{}), "/v1/teams")
	second := g.Build("Team", fullTeamScope(&fakeRepo{}, &fakeRepo{}), "/v1/teams")
	require.Equal(t, fmt.Sprint(opSet(first)), fmt.Sprint(opSet(second)))
	require.Equal(t, len(first), len(second))
}
