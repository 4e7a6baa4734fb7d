// Package query assembles SELECT statements over the fast tables of a schema.
//
// A Relation accumulates select columns, joins, includes and predicates
// through chained calls and is consumed by one terminal operation
// (ToArray, ToArrayFast, Count, Pluck, ...). Included associations are
// selected under their own table alias and hydrated into the base entity's
// jointure tree.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/conduit-lang/revstore/internal/orm/conn"
	"github.com/conduit-lang/revstore/internal/orm/schema"
	"github.com/conduit-lang/revstore/internal/orm/validation"
)

const (
	sqlFalse = "FALSE"
	sqlTrue  = "TRUE"
)

type fragment struct {
	sql      string
	bindings []any
}

type include struct {
	model *schema.Model
	path  string
	alias string
}

// state is shared between a relation and the relations proxified onto it
type state struct {
	selects  []string
	shape    []validation.Prop
	joins    []fragment
	includes []include
	where    []fragment
}

// Relation is a mutable SELECT builder rooted at one model. It is not safe
// for concurrent use.
type Relation struct {
	model *schema.Model
	state *state
	exec  conn.Executor

	parent   *Relation
	basePath string
	table    string

	group        string
	order        string
	explicitSort bool
	limit        int
}

// New creates a relation selecting every field of model from its fast table
func New(model *schema.Model, exec conn.Executor) *Relation {
	r := &Relation{
		model: model,
		state: &state{},
		exec:  exec,
		table: model.Table(),
		order: quote(model.Table()) + ".`id`",
	}
	r.addColumns(model, model.Table(), model.RowPrefix(), true)
	return r
}

// Model returns the base model
func (r *Relation) Model() *schema.Model {
	return r.model
}

// TableRef is the table name or alias base columns are qualified with
func (r *Relation) TableRef() string {
	return r.table
}

func (r *Relation) addColumns(m *schema.Model, tableRef, alias string, validate bool) {
	for _, f := range m.Fields {
		key := alias + "." + f.Name
		r.state.selects = append(r.state.selects, f.Select(tableRef)+" AS "+quote(key))
		if validate {
			r.state.shape = append(r.state.shape, validation.Prop{Key: key, Type: f.SerializedValidator})
		}
	}
}

// Includes selects the columns of model under alias and hydrates them at
// path in the base entity's jointure. Including the same path twice is a no-op.
func (r *Relation) Includes(model *schema.Model, path, alias string, validate bool) *Relation {
	full := r.basePath + path
	if _, ok := r.include(full); ok {
		return r
	}
	r.state.includes = append(r.state.includes, include{model: model, path: full, alias: alias})
	r.addColumns(model, alias, alias, validate)
	return r
}

func (r *Relation) include(path string) (include, bool) {
	for _, inc := range r.state.includes {
		if inc.path == path {
			return inc, true
		}
	}
	return include{}, false
}

// Joins appends a raw join clause unless an identical one is already present
func (r *Relation) Joins(sql string, bindings ...any) *Relation {
	for _, j := range r.state.joins {
		if j.sql == sql && sameBindings(j.bindings, bindings) {
			return r
		}
	}
	r.state.joins = append(r.state.joins, fragment{sql: sql, bindings: bindings})
	return r
}

// sameBindings compares binding lists by their JSON encoding, so nil and
// empty lists are equal and numbers compare by value whatever their Go type
func sameBindings(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, errX := json.Marshal(a[i])
		y, errY := json.Marshal(b[i])
		if errX != nil || errY != nil {
			if !reflect.DeepEqual(a[i], b[i]) {
				return false
			}
			continue
		}
		if !bytes.Equal(x, y) {
			return false
		}
	}
	return true
}

// Where appends a raw predicate; predicates are combined with AND
func (r *Relation) Where(sql string, bindings ...any) *Relation {
	r.state.where = append(r.state.where, fragment{sql: sql, bindings: bindings})
	return r
}

// WhereIn filters expr on a value list. An empty list matches nothing.
func (r *Relation) WhereIn(expr string, values []any) *Relation {
	if len(values) == 0 {
		return r.None()
	}
	return r.Where(expr+" IN ("+placeholders(len(values))+")", values...)
}

// WhereID filters on the base id
func (r *Relation) WhereID(id int64) *Relation {
	return r.Where(r.idColumn()+" = ?", id)
}

// WhereIDs filters on a list of base ids. An empty list matches nothing.
func (r *Relation) WhereIDs(ids []int64) *Relation {
	return r.WhereIn(r.idColumn(), int64sToAny(ids))
}

// WhereNotIDs excludes a list of base ids. An empty list filters nothing.
func (r *Relation) WhereNotIDs(ids []int64) *Relation {
	if len(ids) == 0 {
		return r.Where(sqlTrue)
	}
	return r.Where(r.idColumn()+" NOT IN ("+placeholders(len(ids))+")", int64sToAny(ids)...)
}

// None makes the relation match nothing
func (r *Relation) None() *Relation {
	return r.Where(sqlFalse)
}

// Or merges the joins of every sub-relation and adds one predicate that is
// the OR of each sub-relation's AND-ed predicates. Without sub-relations
// nothing matches.
func (r *Relation) Or(subs ...*Relation) *Relation {
	if len(subs) == 0 {
		return r.None()
	}

	parts := make([]string, 0, len(subs))
	bindings := make([]any, 0)
	for _, sub := range subs {
		for _, j := range sub.state.joins {
			r.Joins(j.sql, j.bindings...)
		}
		if len(sub.state.where) == 0 {
			parts = append(parts, sqlTrue)
			continue
		}
		clauses := make([]string, 0, len(sub.state.where))
		for _, w := range sub.state.where {
			clauses = append(clauses, "("+w.sql+")")
			bindings = append(bindings, w.bindings...)
		}
		if len(clauses) == 1 {
			parts = append(parts, clauses[0])
		} else {
			parts = append(parts, "("+strings.Join(clauses, " AND ")+")")
		}
	}
	return r.Where(strings.Join(parts, " OR "), bindings...)
}

// Group sets the GROUP BY expression
func (r *Relation) Group(expr string) *Relation {
	r.group = expr
	return r
}

// Sort sets the ORDER BY expression. An explicit sort is kept by FindMany.
func (r *Relation) Sort(expr string) *Relation {
	r.order = expr
	r.explicitSort = true
	return r
}

// Limit caps the number of returned rows; 0 means no limit
func (r *Relation) Limit(n int) *Relation {
	r.limit = n
	return r
}

// Tap applies fn to the relation, for reusable scopes
func (r *Relation) Tap(fn func(*Relation)) *Relation {
	fn(r)
	return r
}

// WithConnection rebinds the executor, typically to a transaction
func (r *Relation) WithConnection(exec conn.Executor) *Relation {
	r.exec = exec
	return r
}

// IncludeForeignKey left joins the target of a scalar foreign key and
// includes it under the association name ("authorId" -> "author"). It panics
// when name is not a scalar foreign key of the model.
func (r *Relation) IncludeForeignKey(name string) *Relation {
	f, ok := r.model.Field(name)
	if !ok || !f.IsScalarForeignKey() {
		panic(fmt.Sprintf("model %s: %s is not a foreign key", r.model.Name, name))
	}

	assoc := f.AssociationName()
	alias := strings.ReplaceAll(r.basePath+assoc, ".", "_")
	r.Joins(fmt.Sprintf("LEFT JOIN %s AS %s ON %s.`id` = %s.%s",
		quote(f.ForeignKey.Table()), quote(alias), quote(alias), quote(r.table), quote(f.Name)))
	return r.Includes(f.ForeignKey, assoc, alias, false)
}

// WithAutoJoins includes every foreign key declared with AutoJoin
func (r *Relation) WithAutoJoins() *Relation {
	for _, f := range r.model.AutoJoinFields() {
		r.IncludeForeignKey(f.Name)
	}
	return r
}

// WithoutDependant keeps only rows that no other model of the registry
// references, through either a scalar foreign key or a foreign-key array.
func (r *Relation) WithoutDependant() *Relation {
	registry := r.model.Registry()
	if registry == nil {
		return r
	}

	target := quote(r.table) + ".`id`"
	scalar := make(map[*schema.Model][]string)
	owners := make([]*schema.Model, 0)

	for _, dep := range registry.Dependants(r.model) {
		if dep.Field.IsForeignKeyArray() {
			jt := quote(dep.Owner.JoinTable(dep.Field))
			r.Joins(fmt.Sprintf("LEFT JOIN %s ON %s.`foreignId` = %s", jt, jt, target))
			r.Where(jt + ".`foreignId` IS NULL")
			continue
		}
		if _, seen := scalar[dep.Owner]; !seen {
			owners = append(owners, dep.Owner)
		}
		scalar[dep.Owner] = append(scalar[dep.Owner], dep.Field.Name)
	}

	for _, owner := range owners {
		alias := owner.Table()
		from := quote(owner.Table())
		if owner == r.model {
			alias = owner.RowPrefix() + "Dependant"
			from += " AS " + quote(alias)
		}
		conds := make([]string, 0, len(scalar[owner]))
		for _, name := range scalar[owner] {
			conds = append(conds, quote(alias)+"."+quote(name)+" = "+target)
		}
		r.Joins("LEFT JOIN " + from + " ON " + strings.Join(conds, " OR "))
		r.Where(quote(alias) + ".`id` IS NULL")
	}
	return r
}

// Proxify links r to parent: every select, join, include and predicate added
// to r is written into parent's state, with include paths prefixed by
// pathPrefix. Base columns of r are qualified with the alias parent uses for
// that path, when it has been included. An empty pathPrefix shares the
// parent's base path and table.
func (r *Relation) Proxify(parent *Relation, pathPrefix string) *Relation {
	r.parent = parent
	r.state = parent.state
	r.exec = parent.exec

	prefix := strings.TrimSuffix(pathPrefix, ".")
	if prefix == "" {
		r.basePath = parent.basePath
		r.table = parent.table
		return r
	}
	r.basePath = parent.basePath + prefix + "."
	if inc, ok := parent.include(strings.TrimSuffix(r.basePath, ".")); ok {
		r.table = inc.alias
	}
	return r
}

// Unproxify returns the relation r was proxified onto, or r itself
func (r *Relation) Unproxify() *Relation {
	if r.parent == nil {
		return r
	}
	return r.parent
}

// ToSQL renders the current state
func (r *Relation) ToSQL() string {
	return r.render(r.state.selects, r.group, r.order, r.limit)
}

// ToBindings returns join bindings followed by predicate bindings
func (r *Relation) ToBindings() []any {
	out := make([]any, 0)
	for _, j := range r.state.joins {
		out = append(out, j.bindings...)
	}
	for _, w := range r.state.where {
		out = append(out, w.bindings...)
	}
	return out
}

// ToExistsSQL renders a single-row query selecting only the base id
func (r *Relation) ToExistsSQL() string {
	return r.render([]string{r.idColumn()}, "", "", 1)
}

func (r *Relation) render(selects []string, group, order string, limit int) string {
	parts := []string{"SELECT " + strings.Join(selects, ", "), "FROM " + quote(r.model.Table())}
	for _, j := range r.state.joins {
		parts = append(parts, j.sql)
	}
	if len(r.state.where) > 0 {
		clauses := make([]string, 0, len(r.state.where))
		for _, w := range r.state.where {
			clauses = append(clauses, "("+w.sql+")")
		}
		parts = append(parts, "WHERE "+strings.Join(clauses, " AND "))
	}
	if group != "" {
		parts = append(parts, "GROUP BY "+group)
	}
	if order != "" {
		parts = append(parts, "ORDER BY "+order)
	}
	if limit > 0 {
		parts = append(parts, "LIMIT "+strconv.Itoa(limit))
	}
	return strings.Join(parts, " ")
}

func (r *Relation) matchesNothing() bool {
	for _, w := range r.state.where {
		if w.sql == sqlFalse {
			return true
		}
	}
	return false
}

func (r *Relation) query(ctx context.Context, sql string) (*conn.Rows, error) {
	if r.exec == nil {
		return nil, ErrNoExecutor
	}
	return r.exec.Query(ctx, sql, r.ToBindings())
}

// ToArray executes the query, validates every row against the accumulated
// row shape and hydrates base entities with their included associations.
func (r *Relation) ToArray(ctx context.Context) ([]*schema.Entity, error) {
	if r.matchesNothing() {
		return []*schema.Entity{}, nil
	}

	rows, err := r.query(ctx, r.ToSQL())
	if err != nil {
		return nil, err
	}
	records := rows.Maps()
	if err := validation.Each(validation.Object(r.state.shape), records); err != nil {
		return nil, err
	}

	prefix := r.model.RowPrefix()
	out := make([]*schema.Entity, 0, len(records))
	for _, row := range records {
		base, err := r.model.EntityFromRow(row, prefix)
		if err != nil {
			return nil, err
		}
		for _, inc := range r.state.includes {
			if row[inc.alias+".id"] == nil {
				continue
			}
			sub, err := inc.model.EntityFromRow(row, inc.alias)
			if err != nil {
				return nil, err
			}
			attach(base, inc.path, sub)
		}
		out = append(out, base)
	}
	return out, nil
}

// attach stores sub at the dotted path of base's jointure, creating
// intermediate nodes as needed
func attach(base *schema.Entity, path string, sub *schema.Entity) {
	segments := strings.Split(path, ".")
	cur := base.Jointure
	for _, seg := range segments[:len(segments)-1] {
		switch node := cur[seg].(type) {
		case *schema.Entity:
			cur = node.Jointure
		case map[string]any:
			cur = node
		default:
			next := make(map[string]any)
			cur[seg] = next
			cur = next
		}
	}
	cur[segments[len(segments)-1]] = sub
}

func (r *Relation) fastSQL() string {
	selects := make([]string, 0, len(r.model.Fields))
	for _, f := range r.model.Fields {
		selects = append(selects, f.Select(r.table)+" AS "+quote(f.Name))
	}
	return r.render(selects, r.group, r.order, r.limit)
}

// ToRowsFast selects only the base model's columns and deserializes them,
// without row validation or include hydration.
func (r *Relation) ToRowsFast(ctx context.Context) ([]map[string]any, error) {
	if r.matchesNothing() {
		return []map[string]any{}, nil
	}

	rows, err := r.query(ctx, r.fastSQL())
	if err != nil {
		return nil, err
	}

	out := rows.Maps()
	for _, row := range out {
		for _, f := range r.model.Fields {
			v, err := f.Deserialize(row[f.Name])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", r.model.Name, f.Name, err)
			}
			row[f.Name] = v
		}
	}
	return out, nil
}

// ToArrayFast is ToRowsFast returning entities with an empty jointure
func (r *Relation) ToArrayFast(ctx context.Context) ([]*schema.Entity, error) {
	rows, err := r.ToRowsFast(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Entity, 0, len(rows))
	for _, row := range rows {
		e := schema.NewEntity(r.model)
		e.Values = row
		out = append(out, e)
	}
	return out, nil
}

// Pluck selects columns and returns their raw values: bare values for a
// single column, []any tuples otherwise.
func (r *Relation) Pluck(ctx context.Context, columns ...string) ([]any, error) {
	if r.matchesNothing() {
		return []any{}, nil
	}

	rows, err := r.query(ctx, r.render(columns, r.group, r.order, r.limit))
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, rows.Len())
	for _, values := range rows.Values {
		if len(columns) == 1 {
			out = append(out, values[0])
			continue
		}
		tuple := make([]any, len(values))
		copy(tuple, values)
		out = append(out, tuple)
	}
	return out, nil
}

// Count returns the number of matching rows. The select list is left untouched.
func (r *Relation) Count(ctx context.Context) (int64, error) {
	rows, err := r.query(ctx, r.render([]string{"COUNT(*) AS count"}, r.group, "", 0))
	if err != nil {
		return 0, err
	}
	v, ok := rows.Scalar()
	if !ok {
		return 0, nil
	}
	n, ok := schema.AsInt64(v)
	if !ok {
		return 0, fmt.Errorf("count: unexpected value %v (%T)", v, v)
	}
	return n, nil
}

// Exists reports whether at least one row matches
func (r *Relation) Exists(ctx context.Context) (bool, error) {
	n, err := r.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// First returns the first matching entity, or nil
func (r *Relation) First(ctx context.Context) (*schema.Entity, error) {
	entities, err := r.Limit(1).ToArray(ctx)
	if err != nil || len(entities) == 0 {
		return nil, err
	}
	return entities[0], nil
}

// Find returns the entity with id, or nil when it does not exist. Like
// First it narrows r.
func (r *Relation) Find(ctx context.Context, id int64) (*schema.Entity, error) {
	return r.WhereID(id).First(ctx)
}

// FindMany loads every listed id. Any unresolved id is an *IntegrityError.
// Unless a sort was set, entities come back in the order of ids.
func (r *Relation) FindMany(ctx context.Context, ids []int64) ([]*schema.Entity, error) {
	entities, err := r.WhereIDs(ids).ToArray(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*schema.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID()] = e
	}

	missing := make([]int64, 0)
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &IntegrityError{Op: "findMany", Message: "some ids were not found", Missing: missing}
	}
	if len(entities) != len(ids) {
		return nil, &IntegrityError{
			Op:      "findMany",
			Message: fmt.Sprintf("expected %d rows, got %d", len(ids), len(entities)),
		}
	}

	if r.explicitSort {
		return entities, nil
	}
	ordered := make([]*schema.Entity, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

func (r *Relation) idColumn() string {
	return quote(r.table) + ".`id`"
}

func quote(name string) string {
	return "`" + name + "`"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64sToAny(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
