package store

import (
	"fmt"
	"strings"
	"time"
)

type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpILike Op = "ilike"
	OpIn    Op = "in"
)

func (o Op) IsValid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpILike, OpIn:
		return true
	default:
		return false
	}
}

type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(col string, v any) Filter      { return Filter{Column: col, Op: OpEq, Value: v} }
func Neq(col string, v any) Filter     { return Filter{Column: col, Op: OpNeq, Value: v} }
func Gte(col string, v any) Filter     { return Filter{Column: col, Op: OpGte, Value: v} }
func Lte(col string, v any) Filter     { return Filter{Column: col, Op: OpLte, Value: v} }
func ILike(col, pattern string) Filter { return Filter{Column: col, Op: OpILike, Value: pattern} }
func In(col string, vs ...any) Filter  { return Filter{Column: col, Op: OpIn, Value: vs} }

type Order struct {
	Column string
	Desc   bool
}

type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Where returns a query with only equality-style filters set.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

func (q Query) OrderBy(col string, desc bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: col, Desc: desc})
	return q
}

func (q Query) Page(limit, offset int) Query {
	q.Limit = limit
	q.Offset = offset
	return q
}

// Validate checks every column name used by the query.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if !ValidIdentifier(f.Column) {
			return fmt.Errorf("%w: %q", ErrBadColumn, f.Column)
		}
		if !f.Op.IsValid() {
			return fmt.Errorf("invalid operator %q", f.Op)
		}
	}
	for _, o := range q.Order {
		if !ValidIdentifier(o.Column) {
			return fmt.Errorf("%w: %q", ErrBadColumn, o.Column)
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("limit and offset must not be negative")
	}
	return nil
}

// EncodeValue renders a filter value the way the REST surface expects it:
// "eq.value", "in.(a,b)".
func (f Filter) EncodeValue() string {
	if f.Op == OpIn {
		vs, _ := f.Value.([]any)
		parts := make([]string, 0, len(vs))
		for _, v := range vs {
			parts = append(parts, formatValue(v))
		}
		return string(f.Op) + ".(" + strings.Join(parts, ",") + ")"
	}
	return string(f.Op) + "." + formatValue(f.Value)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// ParseFilter is the inverse of EncodeValue.
func ParseFilter(column, raw string) (Filter, error) {
	op, val, ok := strings.Cut(raw, ".")
	if !ok {
		return Filter{}, fmt.Errorf("filter %q: expected op.value", column)
	}

	f := Filter{Column: column, Op: Op(op)}
	if !f.Op.IsValid() {
		return Filter{}, fmt.Errorf("filter %q: unknown operator %q", column, op)
	}

	if f.Op == OpIn {
		val = strings.TrimSuffix(strings.TrimPrefix(val, "("), ")")
		items := []any{}
		if val != "" {
			for _, part := range strings.Split(val, ",") {
				items = append(items, strings.TrimSpace(part))
			}
		}
		f.Value = items
		return f, nil
	}

	f.Value = val
	return f, nil
}

// EncodeOrder renders "col.desc,col2.asc".
func EncodeOrder(orders []Order) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		parts = append(parts, o.Column+"."+dir)
	}
	return strings.Join(parts, ",")
}

func ParseOrder(raw string) ([]Order, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []Order
	for _, part := range strings.Split(raw, ",") {
		col, dir, _ := strings.Cut(strings.TrimSpace(part), ".")
		o := Order{Column: col}
		switch dir {
		case "", "asc":
		case "desc":
			o.Desc = true
		default:
			return nil, fmt.Errorf("order %q: unknown direction %q", col, dir)
		}
		out = append(out, o)
	}
	return out, nil
}
