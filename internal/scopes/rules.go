package scopes

import "entgate.dev/internal/access"

// PassThrough keeps the caller-supplied clause. Used where the
// permission condition alone is the gate.
func PassThrough() access.FilterMethod {
	return func(_ access.Caller, where access.Where) access.Where {
		return where.Clone()
	}
}

// SelfOrScope narrows reads to the caller's own record unless the
// session holds the broader scope. idField names the column carrying
// the subject id.
func SelfOrScope(broad ScopeSlug, idField string) access.FilterMethod {
	return func(caller access.Caller, where access.Where) access.Where {
		out := where.Clone()
		if _, ok := caller.Permissions()[string(broad)]; ok {
			return out
		}
		out[idField] = caller.SubjectID()
		return out
	}
}

// ByArg pins a field to a positional request argument, e.g. scoping a
// nested collection by the groupId in arg 0.
func ByArg(field string, arg int) access.FilterMethod {
	return func(caller access.Caller, where access.Where) access.Where {
		out := where.Clone()
		if v := caller.Arg(arg); v != "" {
			out[field] = v
		}
		return out
	}
}
