package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects SQL spelling differences between backends.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// placeholder returns the n-th (1-based) bind placeholder.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func qualified(c *Column) string {
	if c.Table == nil {
		return quote(c.Name)
	}
	return quote(c.Table.Name) + "." + quote(c.Name)
}

// compiler accumulates bind arguments while rendering SQL.
type compiler struct {
	dialect Dialect
	args    []any
}

func (c *compiler) bind(col *Column, v any) (string, error) {
	if bp, ok := col.Type.(BindProcessor); ok && v != nil {
		var err error
		if v, err = bp.BindValue(v); err != nil {
			return "", fmt.Errorf("bind %s: %w", col, err)
		}
	}
	c.args = append(c.args, v)
	return c.dialect.placeholder(len(c.args)), nil
}

// Predicate is a boolean SQL expression usable in Filter and joins.
type Predicate interface {
	compile(c *compiler) (string, error)
}

// BinaryExpression compares two columns. Relationship join conditions are
// BinaryExpressions.
type BinaryExpression struct {
	Left  *Column
	Op    string
	Right *Column
}

// Equal builds left = right.
func Equal(left, right *Column) *BinaryExpression {
	return &BinaryExpression{Left: left, Op: "=", Right: right}
}

// String renders the expression with qualified column names.
func (e *BinaryExpression) String() string {
	return e.Left.String() + " " + e.Op + " " + e.Right.String()
}

// Columns returns both sides.
func (e *BinaryExpression) Columns() (*Column, *Column) {
	return e.Left, e.Right
}

func (e *BinaryExpression) compile(*compiler) (string, error) {
	return qualified(e.Left) + " " + e.Op + " " + qualified(e.Right), nil
}

// comparison compares a column to a bound value.
type comparison struct {
	col    *Column
	op     string
	values []any
}

func (p *comparison) compile(c *compiler) (string, error) {
	switch p.op {
	case "IS NULL", "IS NOT NULL":
		return qualified(p.col) + " " + p.op, nil
	case "IN":
		if len(p.values) == 0 {
			return "1 = 0", nil
		}
		marks := make([]string, len(p.values))
		for i, v := range p.values {
			ph, err := c.bind(p.col, v)
			if err != nil {
				return "", err
			}
			marks[i] = ph
		}
		return qualified(p.col) + " IN (" + strings.Join(marks, ", ") + ")", nil
	}
	ph, err := c.bind(p.col, p.values[0])
	if err != nil {
		return "", err
	}
	return qualified(p.col) + " " + p.op + " " + ph, nil
}

// Eq builds col = v. A nil value compiles to IS NULL.
func Eq(col *Column, v any) Predicate {
	if v == nil {
		return IsNull(col)
	}
	return &comparison{col: col, op: "=", values: []any{v}}
}

// Ne builds col <> v.
func Ne(col *Column, v any) Predicate { return &comparison{col: col, op: "<>", values: []any{v}} }

// Gt builds col > v.
func Gt(col *Column, v any) Predicate { return &comparison{col: col, op: ">", values: []any{v}} }

// Ge builds col >= v.
func Ge(col *Column, v any) Predicate { return &comparison{col: col, op: ">=", values: []any{v}} }

// Lt builds col < v.
func Lt(col *Column, v any) Predicate { return &comparison{col: col, op: "<", values: []any{v}} }

// Le builds col <= v.
func Le(col *Column, v any) Predicate { return &comparison{col: col, op: "<=", values: []any{v}} }

// In builds col IN (vs...).
func In(col *Column, vs ...any) Predicate { return &comparison{col: col, op: "IN", values: vs} }

// IsNull builds col IS NULL.
func IsNull(col *Column) Predicate { return &comparison{col: col, op: "IS NULL"} }

// NotNull builds col IS NOT NULL.
func NotNull(col *Column) Predicate { return &comparison{col: col, op: "IS NOT NULL"} }

type conjunction struct {
	op    string
	preds []Predicate
}

// And joins predicates with AND.
func And(preds ...Predicate) Predicate { return &conjunction{op: "AND", preds: preds} }

// Or joins predicates with OR.
func Or(preds ...Predicate) Predicate { return &conjunction{op: "OR", preds: preds} }

func (p *conjunction) compile(c *compiler) (string, error) {
	parts := make([]string, 0, len(p.preds))
	for _, pred := range p.preds {
		s, err := pred.compile(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	if len(parts) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(parts, " "+p.op+" "), nil
}
