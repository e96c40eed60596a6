// Package mapping is the session/query mapping layer: table metadata, column
// types, relationship descriptors, a mapper registry and sessions that run
// queries against a connection.
package mapping

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ForeignKey references a column of another table by name. The reference is
// resolved lazily, so the target table may be defined later.
type ForeignKey struct {
	Target string // "table.column"
}

// NewForeignKey creates a reference to table.column.
func NewForeignKey(table, column string) *ForeignKey {
	return &ForeignKey{Target: table + "." + column}
}

// TableName returns the referenced table.
func (fk *ForeignKey) TableName() string {
	table, _, _ := strings.Cut(fk.Target, ".")
	return table
}

// ColumnName returns the referenced column.
func (fk *ForeignKey) ColumnName() string {
	_, column, _ := strings.Cut(fk.Target, ".")
	return column
}

// Resolve finds the referenced column in md.
func (fk *ForeignKey) Resolve(md *MetaData) (*Column, error) {
	table, ok := md.Table(fk.TableName())
	if !ok {
		return nil, fmt.Errorf("foreign key %s: %w: %s", fk.Target, ErrUnknownTable, fk.TableName())
	}
	col := table.C(fk.ColumnName())
	if col == nil {
		return nil, fmt.Errorf("foreign key %s: %w: %s", fk.Target, ErrUnknownColumn, fk.ColumnName())
	}
	return col, nil
}

// Column is one column of a table.
type Column struct {
	Name          string
	Type          Type
	PrimaryKey    bool
	Nullable      bool
	Unique        bool
	AutoIncrement bool
	ForeignKey    *ForeignKey
	Table         *Table
}

// String returns the qualified column name.
func (c *Column) String() string {
	if c.Table == nil {
		return c.Name
	}
	return c.Table.Name + "." + c.Name
}

// Table is a named, ordered collection of columns.
type Table struct {
	Name    string
	Columns []*Column
	index   map[string]*Column
}

// NewTable creates a table and adds it to md.
func NewTable(md *MetaData, name string, columns ...*Column) (*Table, error) {
	t := &Table{
		Name:  name,
		index: make(map[string]*Column, len(columns)),
	}
	for _, c := range columns {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %s", name, c.Name)
		}
		c.Table = t
		t.Columns = append(t.Columns, c)
		t.index[c.Name] = c
	}
	if err := md.add(t); err != nil {
		return nil, err
	}
	return t, nil
}

// C returns a column by name, or nil.
func (t *Table) C(name string) *Column {
	return t.index[name]
}

// Has reports whether the table has a column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary key columns.
func (t *Table) PrimaryKey() []*Column {
	var pk []*Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// MetaData is a registry of tables with unique names.
type MetaData struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewMetaData creates an empty registry.
func NewMetaData() *MetaData {
	return &MetaData{tables: make(map[string]*Table)}
}

func (md *MetaData) add(t *Table) error {
	md.mu.Lock()
	defer md.mu.Unlock()
	if _, ok := md.tables[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTable, t.Name)
	}
	md.tables[t.Name] = t
	return nil
}

// Table returns a table by name.
func (md *MetaData) Table(name string) (*Table, bool) {
	md.mu.RLock()
	defer md.mu.RUnlock()
	t, ok := md.tables[name]
	return t, ok
}

// Has reports whether a table name is registered.
func (md *MetaData) Has(name string) bool {
	_, ok := md.Table(name)
	return ok
}

// Names returns all table names, sorted.
func (md *MetaData) Names() []string {
	md.mu.RLock()
	defer md.mu.RUnlock()
	names := make([]string, 0, len(md.tables))
	for name := range md.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tables returns all tables sorted by name.
func (md *MetaData) Tables() []*Table {
	names := md.Names()
	md.mu.RLock()
	defer md.mu.RUnlock()
	out := make([]*Table, len(names))
	for i, name := range names {
		out[i] = md.tables[name]
	}
	return out
}

// SortedTables returns tables so that referenced tables come before the
// tables referencing them. Cycles and references to unknown tables are
// ignored for ordering.
func (md *MetaData) SortedTables() []*Table {
	tables := md.Tables()
	visited := make(map[string]int, len(tables)) // 1 = visiting, 2 = done
	out := make([]*Table, 0, len(tables))

	var visit func(t *Table)
	visit = func(t *Table) {
		if visited[t.Name] != 0 {
			return
		}
		visited[t.Name] = 1
		for _, c := range t.Columns {
			if c.ForeignKey == nil {
				continue
			}
			if dep, ok := md.Table(c.ForeignKey.TableName()); ok && dep != t {
				visit(dep)
			}
		}
		visited[t.Name] = 2
		out = append(out, t)
	}
	for _, t := range tables {
		visit(t)
	}
	return out
}

// Remove drops the named tables. Unknown names are ignored.
func (md *MetaData) Remove(names ...string) {
	md.mu.Lock()
	defer md.mu.Unlock()
	for _, name := range names {
		delete(md.tables, name)
	}
}

// Clear removes every table.
func (md *MetaData) Clear() {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.tables = make(map[string]*Table)
}
