package access

// Condition is a boolean expression over a caller's permission set:
// a single permission name, or an all-of/any-of composition. The zero
// Condition evaluates to false.
type Condition struct {
	atom string
	all  []Condition
	any  []Condition
}

// Atom requires a single named permission.
func Atom(name string) Condition {
	return Condition{atom: name}
}

// All requires every child condition to hold.
func All(conds ...Condition) Condition {
	return Condition{all: conds}
}

// Any requires at least one child condition to hold.
func Any(conds ...Condition) Condition {
	return Condition{any: conds}
}

// Eval evaluates the condition against a permission set.
func (c Condition) Eval(perms map[string]struct{}) bool {
	switch {
	case c.atom != "":
		_, ok := perms[c.atom]
		return ok
	case c.all != nil:
		for _, child := range c.all {
			if !child.Eval(perms) {
				return false
			}
		}
		return len(c.all) > 0
	case c.any != nil:
		for _, child := range c.any {
			if child.Eval(perms) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
