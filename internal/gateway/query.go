// Package gateway defines the Remote Data Gateway contract the sync
// components consume, plus the REST/WebSocket implementation that talks to
// the hosted backend. The gateway is the single source of truth; components
// keep no durable state of their own.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FilterOp is a comparison operator in the backend's filter grammar.
type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpNeq   FilterOp = "neq"
	OpGt    FilterOp = "gt"
	OpGte   FilterOp = "gte"
	OpLt    FilterOp = "lt"
	OpLte   FilterOp = "lte"
	OpIn    FilterOp = "in"
	OpNotIn FilterOp = "not.in"
	OpIs    FilterOp = "is"
	// OpOr carries a pre-combined disjunction expression in Value; Column is
	// empty.
	OpOr FilterOp = "or"
)

// Filter is one filter clause scoped to a query or mutation.
type Filter struct {
	Column string
	Op     FilterOp
	Value  string
}

// OrderBy orders results by a column.
type OrderBy struct {
	Column     string
	Descending bool
}

// Query is the assembled read request handed to an Executor.
type Query struct {
	Table   string
	Select  string
	Filters []Filter
	Order   []OrderBy
	Offset  int
	Limit   int
}

// Executor issues queries and mutations against named relations. The REST
// gateway implements it; tests substitute function-field stubs.
type Executor interface {
	ExecQuery(ctx context.Context, q Query, dest any) error
	ExecInsert(ctx context.Context, table string, row any, returned any) error
	ExecUpdate(ctx context.Context, table string, patch any, filters []Filter) error
	ExecDelete(ctx context.Context, table string, filters []Filter) error
}

// Builder assembles a query or mutation fluently before handing it to an
// Executor.
type Builder struct {
	exec Executor
	q    Query
}

// From starts a builder against the named relation.
func From(exec Executor, table string) *Builder {
	return &Builder{exec: exec, q: Query{Table: table, Limit: -1, Offset: -1}}
}

// Select sets the column list. Embedded relations use the backend's
// "alias:relation(cols)" syntax and may be rejected by older schemas with a
// schema-mismatch error.
func (b *Builder) Select(columns string) *Builder {
	b.q.Select = columns
	return b
}

func (b *Builder) filter(column string, op FilterOp, value string) *Builder {
	b.q.Filters = append(b.q.Filters, Filter{Column: column, Op: op, Value: value})
	return b
}

func (b *Builder) Eq(column, value string) *Builder  { return b.filter(column, OpEq, value) }
func (b *Builder) Neq(column, value string) *Builder { return b.filter(column, OpNeq, value) }
func (b *Builder) Gt(column, value string) *Builder  { return b.filter(column, OpGt, value) }
func (b *Builder) Gte(column, value string) *Builder { return b.filter(column, OpGte, value) }
func (b *Builder) Lt(column, value string) *Builder  { return b.filter(column, OpLt, value) }
func (b *Builder) Lte(column, value string) *Builder { return b.filter(column, OpLte, value) }

// In filters column to the given value list.
func (b *Builder) In(column string, values []string) *Builder {
	return b.filter(column, OpIn, "("+strings.Join(values, ",")+")")
}

// NotIn excludes rows whose column is in the given value list.
func (b *Builder) NotIn(column string, values []string) *Builder {
	return b.filter(column, OpNotIn, "("+strings.Join(values, ",")+")")
}

// Or adds a pre-combined disjunction, e.g.
// "(participant_one_id.eq.X,participant_two_id.eq.X)".
func (b *Builder) Or(expr string) *Builder {
	return b.filter("", OpOr, expr)
}

// IsNull filters column to null.
func (b *Builder) IsNull(column string) *Builder { return b.filter(column, OpIs, "null") }

// Order appends an ordering key. The first call is the primary key; later
// calls break ties.
func (b *Builder) Order(column string, descending bool) *Builder {
	b.q.Order = append(b.q.Order, OrderBy{Column: column, Descending: descending})
	return b
}

// Range requests rows [from, to] inclusive, the backend's offset+limit
// pagination.
func (b *Builder) Range(from, to int) *Builder {
	b.q.Offset = from
	b.q.Limit = to - from + 1
	return b
}

// Limit caps the row count without an offset.
func (b *Builder) Limit(n int) *Builder {
	b.q.Limit = n
	return b
}

// Get executes the read and decodes rows into dest.
func (b *Builder) Get(ctx context.Context, dest any) error {
	return b.exec.ExecQuery(ctx, b.q, dest)
}

// Insert writes one row. When returned is non-nil the created row is decoded
// into it; backends may legitimately return nothing, in which case returned
// is left untouched.
func (b *Builder) Insert(ctx context.Context, row any, returned any) error {
	return b.exec.ExecInsert(ctx, b.q.Table, row, returned)
}

// Update patches rows matching the builder's filters.
func (b *Builder) Update(ctx context.Context, patch any) error {
	return b.exec.ExecUpdate(ctx, b.q.Table, patch, b.q.Filters)
}

// Delete removes rows matching the builder's filters.
func (b *Builder) Delete(ctx context.Context) error {
	return b.exec.ExecDelete(ctx, b.q.Table, b.q.Filters)
}

// Params encodes the query into the backend's URL parameter grammar.
func (q Query) Params() url.Values {
	v := url.Values{}
	if q.Select != "" {
		v.Set("select", q.Select)
	}
	for _, f := range q.Filters {
		f.apply(v)
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		v.Set("order", strings.Join(parts, ","))
	}
	if q.Offset >= 0 {
		v.Set("offset", fmt.Sprintf("%d", q.Offset))
	}
	if q.Limit >= 0 {
		v.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	return v
}

func (f Filter) apply(v url.Values) {
	if f.Op == OpOr {
		v.Add("or", f.Value)
		return
	}
	v.Add(f.Column, string(f.Op)+"."+f.Value)
}

// FormatTime renders t in the timestamp format the backend's filter grammar
// expects.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
