package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"entgate.dev/internal/access"
)

// bindOperations registers generated operations onto the mux. The
// generator emits ":idN" path parameters; ServeMux wants "{idN}".
func (a *API) bindOperations(ops []access.Operation) {
	for _, op := range ops {
		pattern, wildcards := muxPattern(op.Path)
		a.mux.HandleFunc(op.Method+" "+pattern, a.operationHandler(op, wildcards))
	}
}

// muxPattern rewrites ":idN" segments into ServeMux wildcards and
// returns the wildcard names in path order.
func muxPattern(path string) (string, []string) {
	segs := strings.Split(path, "/")
	var names []string
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			name := s[1:]
			segs[i] = "{" + name + "}"
			names = append(names, name)
		}
	}
	return strings.Join(segs, "/"), names
}

// operationHandler adapts one generated operation to HTTP: path ids
// and the session become the request; the filter comes from the query
// string; mutation payloads come from the body.
func (a *API) operationHandler(op access.Operation, wildcards []string) http.HandlerFunc {
	targetsID := len(wildcards) > 0 && strings.HasSuffix(op.Path, ":"+wildcards[len(wildcards)-1])

	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		values := make([]string, len(wildcards))
		for i, name := range wildcards {
			values[i] = r.PathValue(name)
		}

		req := access.Request{
			Caller: access.StaticCaller{
				Subject: sess.SubjectID,
				Perms:   sess.Permissions,
				Args:    values,
			},
		}
		if targetsID {
			req.ID = values[len(values)-1]
			req.PathIDs = values[:len(values)-1]
		} else {
			req.PathIDs = values
		}

		f, err := parseFilter(r.URL.Query().Get("filter"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Filter = f

		switch op.Method {
		case http.MethodPost:
			recs, err := decodeRecords(w, r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			req.Records = recs
		case http.MethodPatch:
			var patch access.Record
			if err := decodeJSON(w, r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			req.Patch = patch
		}

		out, err := op.Handler(r.Context(), req)
		if err != nil {
			handleAccessError(w, err)
			return
		}

		switch {
		case out == nil:
			w.WriteHeader(http.StatusNoContent)
		case op.Method == http.MethodPost:
			writeJSON(w, http.StatusCreated, out)
		default:
			writeJSON(w, http.StatusOK, out)
		}
	}
}

// decodeRecords accepts a single object or an array of objects.
func decodeRecords(w http.ResponseWriter, r *http.Request) ([]access.Record, error) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var recs []access.Record
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}
	var rec access.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return []access.Record{rec}, nil
}

// wireFilter is the JSON shape of the "filter" query parameter.
type wireFilter struct {
	Where   map[string]any `json:"where"`
	Include []wireInclude  `json:"include"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	Order   []string       `json:"order"`
}

// wireInclude is either a bare relation name or {"relation": ...,
// "scope": {...}}.
type wireInclude struct {
	Relation string
	Scope    *wireFilter
}

func (wi *wireInclude) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		wi.Relation = name
		return nil
	}
	var obj struct {
		Relation string      `json:"relation"`
		Scope    *wireFilter `json:"scope"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Relation == "" {
		return fmt.Errorf("include entry needs a relation name")
	}
	wi.Relation = obj.Relation
	wi.Scope = obj.Scope
	return nil
}

func parseFilter(raw string) (*access.Filter, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var wf wireFilter
	if err := json.Unmarshal([]byte(raw), &wf); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return wf.toFilter(), nil
}

func (wf *wireFilter) toFilter() *access.Filter {
	if wf == nil {
		return nil
	}
	f := &access.Filter{
		Where:  normalizeWhere(wf.Where),
		Limit:  wf.Limit,
		Offset: wf.Offset,
		Order:  wf.Order,
	}
	for _, inc := range wf.Include {
		f.Include = append(f.Include, access.Inclusion{
			Relation: inc.Relation,
			Scope:    inc.Scope.toFilter(),
		})
	}
	return f
}

// normalizeWhere converts decoded JSON into the engine's clause shape,
// rewriting or/and arrays into []access.Where.
func normalizeWhere(raw map[string]any) access.Where {
	if raw == nil {
		return nil
	}
	out := make(access.Where, len(raw))
	for k, v := range raw {
		if k == "or" || k == "and" {
			arr, ok := v.([]any)
			if !ok {
				continue
			}
			clauses := make([]access.Where, 0, len(arr))
			for _, el := range arr {
				m, ok := el.(map[string]any)
				if !ok {
					continue
				}
				clauses = append(clauses, normalizeWhere(m))
			}
			out[k] = clauses
			continue
		}
		out[k] = v
	}
	return out
}
