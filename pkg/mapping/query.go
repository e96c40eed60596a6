package mapping

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Record is one result row.
type Record struct {
	// Class is the first class entity of the query, or nil.
	Class *Class
	// Values are keyed by column name for the class's own table and by
	// "table.column" for every other column.
	Values map[string]any
}

// Get returns a value by key.
func (r *Record) Get(key string) any {
	return r.Values[key]
}

type selected struct {
	col   *Column
	label string
}

type joinClause struct {
	table *Table
	on    Predicate
}

type orderClause struct {
	col  *Column
	desc bool
}

// Query is a SELECT under construction. Builder methods record the first
// error, which is returned by the executing methods.
type Query struct {
	session *Session
	primary *Class
	from    *Table
	columns []selected
	classes []*Class
	tables  map[string]bool
	joins   []joinClause
	where   []Predicate
	order   []orderClause
	limit   int
	offset  int
	err     error
}

func newQuery(s *Session, entities []any) *Query {
	q := &Query{session: s, tables: make(map[string]bool)}
	if len(entities) == 0 {
		q.err = fmt.Errorf("query needs at least one entity")
		return q
	}
	for _, e := range entities {
		switch v := e.(type) {
		case *Class:
			if v.Table == nil {
				q.err = fmt.Errorf("%s: %w", v.Name, ErrNotMapped)
				return q
			}
			if q.primary == nil {
				q.primary = v
			}
			q.classes = append(q.classes, v)
			q.useTable(v.Table)
			for _, c := range v.Table.Columns {
				q.columns = append(q.columns, selected{col: c})
			}
		case *Column:
			if v.Table == nil {
				q.err = fmt.Errorf("column %s has no table", v.Name)
				return q
			}
			q.useTable(v.Table)
			q.columns = append(q.columns, selected{col: v})
		default:
			q.err = fmt.Errorf("unsupported query entity %T", e)
			return q
		}
	}
	for i := range q.columns {
		c := q.columns[i].col
		if q.primary != nil && c.Table == q.primary.Table {
			q.columns[i].label = c.Name
		} else {
			q.columns[i].label = c.Table.Name + "." + c.Name
		}
	}
	return q
}

// useTable makes the first table seen the FROM table. Columns of other
// tables must be brought in with Join.
func (q *Query) useTable(t *Table) {
	if q.from == nil {
		q.from = t
		q.tables[t.Name] = true
	}
}

// Filter adds WHERE predicates, combined with AND.
func (q *Query) Filter(preds ...Predicate) *Query {
	q.where = append(q.where, preds...)
	return q
}

// Join follows a relationship of a class already in the query, using the
// relationship's join conditions and, for many-to-many, its junction table.
func (q *Query) Join(name string) *Query {
	if q.err != nil {
		return q
	}
	var rel *Relationship
	for _, cls := range q.classes {
		if r, ok := cls.Relationship(name); ok {
			rel = r
			break
		}
	}
	if rel == nil {
		q.err = fmt.Errorf("%w: %s", ErrUnknownRelationship, name)
		return q
	}
	if rel.Target == nil || rel.Target.Table == nil {
		q.err = fmt.Errorf("join %s: %w", name, ErrNotMapped)
		return q
	}
	if rel.Secondary != nil {
		if err := q.addJoin(rel.Secondary, rel.PrimaryJoin); err != nil {
			q.err = err
			return q
		}
		if err := q.addJoin(rel.Target.Table, rel.SecondaryJoin); err != nil {
			q.err = err
			return q
		}
	} else if err := q.addJoin(rel.Target.Table, rel.PrimaryJoin); err != nil {
		q.err = err
		return q
	}
	q.classes = append(q.classes, rel.Target)
	return q
}

func (q *Query) addJoin(t *Table, on Predicate) error {
	if q.tables[t.Name] {
		return fmt.Errorf("table %s is already part of the query", t.Name)
	}
	q.tables[t.Name] = true
	q.joins = append(q.joins, joinClause{table: t, on: on})
	return nil
}

// OrderBy sorts ascending by col.
func (q *Query) OrderBy(col *Column) *Query {
	q.order = append(q.order, orderClause{col: col})
	return q
}

// OrderByDesc sorts descending by col.
func (q *Query) OrderByDesc(col *Column) *Query {
	q.order = append(q.order, orderClause{col: col, desc: true})
	return q
}

// Limit caps the number of rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips rows.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// SQL renders the statement and its arguments.
func (q *Query) SQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	cols := make([]string, len(q.columns))
	for i, s := range q.columns {
		cols[i] = qualified(s.col)
	}
	return q.render("SELECT "+strings.Join(cols, ", "), true)
}

func (q *Query) render(head string, paged bool) (string, []any, error) {
	c := &compiler{dialect: q.session.conn.Dialect()}
	var b strings.Builder
	b.WriteString(head)
	b.WriteString(" FROM ")
	b.WriteString(quote(q.from.Name))
	for _, j := range q.joins {
		on, err := j.on.compile(c)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" JOIN ")
		b.WriteString(quote(j.table.Name))
		b.WriteString(" ON ")
		b.WriteString(on)
	}
	if len(q.where) > 0 {
		parts := make([]string, len(q.where))
		for i, p := range q.where {
			s, err := p.compile(c)
			if err != nil {
				return "", nil, err
			}
			parts[i] = s
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(parts, " AND "))
	}
	if paged {
		if len(q.order) > 0 {
			parts := make([]string, len(q.order))
			for i, o := range q.order {
				parts[i] = qualified(o.col)
				if o.desc {
					parts[i] += " DESC"
				}
			}
			b.WriteString(" ORDER BY ")
			b.WriteString(strings.Join(parts, ", "))
		}
		if q.limit > 0 {
			b.WriteString(" LIMIT " + strconv.Itoa(q.limit))
		}
		if q.offset > 0 {
			b.WriteString(" OFFSET " + strconv.Itoa(q.offset))
		}
	}
	return b.String(), c.args, nil
}

// All runs the query and returns every row.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	sql, args, err := q.SQL()
	if err != nil {
		return nil, err
	}
	if err := q.session.check(); err != nil {
		return nil, err
	}
	rows, err := q.session.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := &Record{Class: q.primary, Values: make(map[string]any, len(values))}
		for i, v := range values {
			if i >= len(q.columns) {
				break
			}
			s := q.columns[i]
			if rp, ok := s.col.Type.(ResultProcessor); ok && v != nil {
				if v, err = rp.ResultValue(v); err != nil {
					return nil, fmt.Errorf("read %s: %w", s.col, err)
				}
			}
			rec.Values[s.label] = v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// First returns the first row or ErrNotFound.
func (q *Query) First(ctx context.Context) (*Record, error) {
	saved := q.limit
	q.limit = 1
	records, err := q.All(ctx)
	q.limit = saved
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Count returns the number of matching rows, ignoring order and paging.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	sql, args, err := q.render("SELECT COUNT(*)", false)
	if err != nil {
		return 0, err
	}
	if err := q.session.check(); err != nil {
		return 0, err
	}
	rows, err := q.session.conn.Query(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, ErrNotFound
	}
	values, err := rows.Values()
	if err != nil {
		return 0, err
	}
	switch n := values[0].(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	}
	return 0, fmt.Errorf("unexpected count value %T", values[0])
}
