package access

// Record is a loosely typed persisted row.
type Record map[string]any

// Where is an equality/composition clause over record fields. Two keys
// are treated as operators rather than field names: "or" and "and",
// each holding []Where. Everything else is field = value.
type Where map[string]any

// Clone returns a shallow copy safe for per-level rewriting.
func (w Where) Clone() Where {
	if w == nil {
		return Where{}
	}
	out := make(Where, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Inclusion asks for a named relation to be fetched alongside the
// parent rows, optionally narrowed by its own nested filter.
type Inclusion struct {
	Relation string
	Scope    *Filter
}

// Filter is the query shape the engine authorizes and rewrites. Limit,
// offset and order pass through untouched.
type Filter struct {
	Where   Where
	Include []Inclusion
	Limit   int
	Offset  int
	Order   []string
}

// impossibleID can never collide with an issued identifier.
const impossibleID = "\x00impossible"

// ImpossibleFilter matches zero rows. Returned when an access kind has
// no scope entry: the caller sees an empty result, not an error.
func ImpossibleFilter() *Filter {
	return &Filter{Where: Where{"id": impossibleID}}
}

// Impossible reports whether f is the zero-match filter.
func Impossible(f *Filter) bool {
	if f == nil || f.Where == nil {
		return false
	}
	v, ok := f.Where["id"]
	return ok && v == impossibleID
}
