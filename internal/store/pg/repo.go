package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"entgate.dev/internal/access"
	"entgate.dev/internal/ids"
	"entgate.dev/internal/model"
)

// Repo serves one model out of the shared document tables.
type Repo struct {
	store *Store
	model string
}

var (
	_ access.Repository     = (*Repo)(nil)
	_ access.HistoryQuerier = (*Repo)(nil)
)

func (r *Repo) Create(ctx context.Context, rec access.Record) (access.Record, error) {
	c := cloneRecord(rec)
	id, _ := c["id"].(string)
	if id == "" {
		id = ids.New()
		c["id"] = id
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	_, err = r.store.db.ExecContext(ctx, `
		insert into records (model, id, doc)
		values ($1, $2, $3)
	`, r.model, id, doc)
	if err != nil {
		return nil, r.writeErr(err)
	}
	if err := r.appendHistory(ctx, id, c, "create"); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repo) CreateAll(ctx context.Context, recs []access.Record) ([]access.Record, error) {
	out := make([]access.Record, 0, len(recs))
	for _, rec := range recs {
		created, err := r.Create(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func (r *Repo) Find(ctx context.Context, f *access.Filter) ([]access.Record, error) {
	clause, args, err := r.whereSQL(f)
	if err != nil {
		return nil, err
	}
	order, err := r.orderSQL(f)
	if err != nil {
		return nil, err
	}
	q := `select doc from records where model = $1` + clause + order + limitSQL(f)

	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec access.Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if f != nil {
		for _, rec := range out {
			if err := r.attachIncludes(ctx, rec, f.Include); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (r *Repo) FindByID(ctx context.Context, id string) (access.Record, error) {
	var doc []byte
	err := r.store.db.QueryRowContext(ctx, `
		select doc from records where model = $1 and id = $2
	`, r.model, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec access.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Repo) FindOne(ctx context.Context, f *access.Filter) (access.Record, error) {
	limited := &access.Filter{Limit: 1}
	if f != nil {
		limited.Where = f.Where
		limited.Include = f.Include
		limited.Order = f.Order
	}
	rows, err := r.Find(ctx, limited)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *Repo) Count(ctx context.Context, where access.Where) (int, error) {
	clause, args, err := r.whereSQL(&access.Filter{Where: where})
	if err != nil {
		return 0, err
	}
	var n int
	err = r.store.db.QueryRowContext(ctx,
		`select count(*) from records where model = $1`+clause, args...,
	).Scan(&n)
	return n, err
}

func (r *Repo) UpdateAll(ctx context.Context, patch access.Record, where access.Where) (int, error) {
	p := cloneRecord(patch)
	delete(p, "id")
	doc, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}

	clause, args, err := r.whereSQLOffset(where, 2)
	if err != nil {
		return 0, err
	}
	args = append([]any{r.model, doc}, args...)

	res, err := r.store.db.ExecContext(ctx, `
		update records set doc = doc || $2::jsonb, updated_at = now()
		where model = $1`+clause, args...)
	if err != nil {
		return 0, r.writeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := r.logUpdated(ctx, where); err != nil {
			return 0, err
		}
	}
	return int(n), nil
}

func (r *Repo) UpdateByID(ctx context.Context, id string, patch access.Record) (access.Record, error) {
	n, err := r.UpdateAll(ctx, patch, access.Where{"id": id})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, access.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *Repo) DeleteAll(ctx context.Context, where access.Where) (int, error) {
	// Snapshot doomed rows into history before removal.
	doomed, err := r.Find(ctx, &access.Filter{Where: where})
	if err != nil {
		return 0, err
	}
	for _, rec := range doomed {
		id, _ := rec["id"].(string)
		if err := r.appendHistory(ctx, id, rec, "delete"); err != nil {
			return 0, err
		}
	}

	clause, args, err := r.whereSQL(&access.Filter{Where: where})
	if err != nil {
		return 0, err
	}
	res, err := r.store.db.ExecContext(ctx,
		`delete from records where model = $1`+clause, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repo) DeleteByID(ctx context.Context, id string) error {
	n, err := r.DeleteAll(ctx, access.Where{"id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx, `
		select count(*) from records where model = $1 and id = $2
	`, r.model, id).Scan(&n)
	return n > 0, err
}

// History reads the audit trail; entries carry the record snapshot
// plus "op" and "at". The id key maps to record_id here.
func (r *Repo) History(ctx context.Context, f *access.Filter) ([]access.Record, error) {
	var where access.Where
	if f != nil {
		where = f.Where
	}
	clause, args, err := r.whereClause(where, 1, "record_id")
	if err != nil {
		return nil, err
	}
	args = append([]any{r.model}, args...)
	rows, err := r.store.db.QueryContext(ctx, `
		select doc, op, at from records_history where model = $1`+clause+` order by at
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.Record
	for rows.Next() {
		var (
			doc []byte
			op  string
			at  sql.NullTime
		)
		if err := rows.Scan(&doc, &op, &at); err != nil {
			return nil, err
		}
		var rec access.Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, err
		}
		rec["op"] = op
		if at.Valid {
			rec["at"] = at.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) appendHistory(ctx context.Context, id string, rec access.Record, op string) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.store.db.ExecContext(ctx, `
		insert into records_history (model, record_id, doc, op)
		values ($1, $2, $3, $4)
	`, r.model, id, doc, op)
	return err
}

func (r *Repo) logUpdated(ctx context.Context, where access.Where) error {
	updated, err := r.Find(ctx, &access.Filter{Where: where})
	if err != nil {
		return err
	}
	for _, rec := range updated {
		id, _ := rec["id"].(string)
		if err := r.appendHistory(ctx, id, rec, "update"); err != nil {
			return err
		}
	}
	return nil
}

// attachIncludes resolves requested relations against the shared
// document table, honoring each inclusion's nested filter.
func (r *Repo) attachIncludes(ctx context.Context, rec access.Record, incs []access.Inclusion) error {
	if len(incs) == 0 {
		return nil
	}
	desc, ok := r.store.reg.Lookup(r.model)
	if !ok {
		return nil
	}
	for _, inc := range incs {
		rel, ok := desc.Relation(inc.Relation)
		if !ok {
			continue
		}
		child := r.store.Repo(rel.Target)
		f := &access.Filter{Where: access.Where{}}
		if inc.Scope != nil {
			f.Where = inc.Scope.Where.Clone()
			f.Include = inc.Scope.Include
			f.Limit = inc.Scope.Limit
			f.Offset = inc.Scope.Offset
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

// pgUniqueViolation is the class 23 error code for unique constraints.
const pgUniqueViolation = "23505"

// writeErr maps driver unique violations onto the shared conflict
// error; everything else passes through untouched.
func (r *Repo) writeErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &access.ConflictError{Model: r.model, Fields: []string{"id"}}
	}
	return err
}

// fieldOK reports whether a caller-supplied field name may be rendered
// into SQL. Field names reach string interpolation, so only declared
// properties pass.
func (r *Repo) fieldOK(name string) bool {
	desc, ok := r.store.reg.Lookup(r.model)
	if !ok {
		return false
	}
	return desc.HasProperty(name)
}

// whereSQL renders a where clause into SQL anded onto the model guard.
// Model name is always $1; clause parameters start at $2.
func (r *Repo) whereSQL(f *access.Filter) (string, []any, error) {
	var where access.Where
	if f != nil {
		where = f.Where
	}
	clause, args, err := r.whereClause(where, 1, "id")
	if err != nil {
		return "", nil, err
	}
	return clause, append([]any{r.model}, args...), nil
}

func (r *Repo) whereSQLOffset(where access.Where, offset int) (string, []any, error) {
	return r.whereClause(where, offset, "id")
}

func (r *Repo) whereClause(where access.Where, offset int, idCol string) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	expr, args, err := r.renderWhere(where, offset, idCol)
	if err != nil {
		return "", nil, err
	}
	if expr == "" {
		return "", nil, nil
	}
	return " and " + expr, args, nil
}

func (r *Repo) renderWhere(where access.Where, offset int, idCol string) (string, []any, error) {
	var (
		parts []string
		args  []any
	)
	for _, k := range sortedKeys(where) {
		v := where[k]
		switch k {
		case "or", "and":
			clauses, ok := v.([]access.Where)
			if !ok {
				continue
			}
			var subs []string
			for _, c := range clauses {
				expr, sub, err := r.renderWhere(c, offset+len(args), idCol)
				if err != nil {
					return "", nil, err
				}
				if expr == "" {
					continue
				}
				subs = append(subs, expr)
				args = append(args, sub...)
			}
			if len(subs) == 0 {
				continue
			}
			sep := " or "
			if k == "and" {
				sep = " and "
			}
			parts = append(parts, "("+strings.Join(subs, sep)+")")
		case "id":
			args = append(args, fmt.Sprint(v))
			parts = append(parts, fmt.Sprintf("%s = $%d", idCol, offset+len(args)))
		default:
			if !r.fieldOK(k) {
				return "", nil, fmt.Errorf("%w: unknown field %s", access.ErrValidation, k)
			}
			args = append(args, fmt.Sprint(v))
			parts = append(parts, fmt.Sprintf("doc->>'%s' = $%d", k, offset+len(args)))
		}
	}
	return strings.Join(parts, " and "), args, nil
}

func (r *Repo) orderSQL(f *access.Filter) (string, error) {
	if f == nil || len(f.Order) == 0 {
		return "", nil
	}
	var parts []string
	for _, o := range f.Order {
		field, dir, _ := strings.Cut(o, " ")
		if field == "" {
			continue
		}
		col := "id"
		if field != "id" {
			if !r.fieldOK(field) {
				return "", fmt.Errorf("%w: unknown order field %s", access.ErrValidation, field)
			}
			col = fmt.Sprintf("doc->>'%s'", field)
		}
		if strings.EqualFold(dir, "desc") {
			col += " desc"
		}
		parts = append(parts, col)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " order by " + strings.Join(parts, ", "), nil
}

func limitSQL(f *access.Filter) string {
	if f == nil {
		return ""
	}
	var sb strings.Builder
	if f.Limit > 0 {
		fmt.Fprintf(&sb, " limit %d", f.Limit)
	}
	if f.Offset > 0 {
		fmt.Fprintf(&sb, " offset %d", f.Offset)
	}
	return sb.String()
}

func sortedKeys(where access.Where) []string {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneRecord(rec access.Record) access.Record {
	out := make(access.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
