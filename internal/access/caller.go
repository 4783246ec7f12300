package access

// Caller is the per-request identity consumed by permission conditions
// and filter methods. Permission sets are snapshots computed at session
// issue time; they are not re-derived per request.
type Caller interface {
	// SubjectID identifies the authenticated account.
	SubjectID() string

	// Permissions returns the session's permission set.
	Permissions() map[string]struct{}

	// Arg returns the i-th positional request argument (path segments
	// in route order), or "" when absent. Filter methods use these to
	// scope by ancestor ids, e.g. a groupId from arg 0.
	Arg(i int) string
}

// StaticCaller is a plain Caller value for wiring and tests.
type StaticCaller struct {
	Subject string
	Perms   []string
	Args    []string
}

func (c StaticCaller) SubjectID() string { return c.Subject }

func (c StaticCaller) Permissions() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Perms))
	for _, p := range c.Perms {
		set[p] = struct{}{}
	}
	return set
}

func (c StaticCaller) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}
