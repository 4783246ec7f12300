package access

// Kind enumerates the access kinds a scope can expose.
type Kind string

const (
	KindCreate  Kind = "create"
	KindRead    Kind = "read"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindHistory Kind = "history"
)

// FilterMethod narrows a query's where clause to what the caller may
// touch. It must be pure and idempotent; it owns all narrowing logic
// (ownership checks, tenant scoping) for its level of the tree.
type FilterMethod func(caller Caller, where Where) Where

// Rule pairs the permission condition gating an access kind with the
// filter method that narrows its queries.
type Rule struct {
	Cond   Condition
	Filter FilterMethod

	// Deny lists properties writes through this rule may not touch.
	// Fields on dedicated flows (activation, password changes) stay
	// unreachable from generated patch operations.
	Deny []string
}

// Scope declares, per model, which access kinds are exposed and how
// each is authorized and narrowed. Absent kinds are denied by default.
// Include maps relation names to child scopes, mirroring the entity
// relation graph as a scope tree.
type Scope struct {
	Model string
	Repo  RepoAccessor

	// Create carries only a condition; there is no row to filter
	// before it exists.
	Create *Condition

	Read    *Rule
	Update  *Rule
	Delete  *Rule
	History *Rule

	Include map[string]*Scope
}

// Rule returns the rule for an access kind. For create the returned
// rule has no filter method.
func (s *Scope) rule(kind Kind) (Rule, bool) {
	switch kind {
	case KindCreate:
		if s.Create == nil {
			return Rule{}, false
		}
		return Rule{Cond: *s.Create}, true
	case KindRead:
		if s.Read == nil {
			return Rule{}, false
		}
		return *s.Read, true
	case KindUpdate:
		if s.Update == nil {
			return Rule{}, false
		}
		return *s.Update, true
	case KindDelete:
		if s.Delete == nil {
			return Rule{}, false
		}
		return *s.Delete, true
	case KindHistory:
		if s.History == nil {
			return Rule{}, false
		}
		return *s.History, true
	default:
		return Rule{}, false
	}
}

// Condition returns the permission condition for an access kind.
func (s *Scope) Condition(kind Kind) (Condition, bool) {
	r, ok := s.rule(kind)
	if !ok {
		return Condition{}, false
	}
	return r.Cond, true
}

// Exposes reports whether the scope declares the access kind at all.
func (s *Scope) Exposes(kind Kind) bool {
	_, ok := s.rule(kind)
	return ok
}
