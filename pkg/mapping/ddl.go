package mapping

import (
	"context"
	"fmt"
	"strings"
)

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for t.
func CreateTableSQL(t *Table, d Dialect) string {
	defs := make([]string, 0, len(t.Columns))
	pk := t.PrimaryKey()
	for _, c := range t.Columns {
		var b strings.Builder
		b.WriteString(quote(c.Name))
		b.WriteString(" ")
		b.WriteString(columnType(c, d))
		if c.PrimaryKey && len(pk) == 1 {
			b.WriteString(" PRIMARY KEY")
		} else if !c.Nullable && !c.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
		if c.Unique && !c.PrimaryKey {
			b.WriteString(" UNIQUE")
		}
		if c.ForeignKey != nil {
			fmt.Fprintf(&b, " REFERENCES %s (%s)", quote(c.ForeignKey.TableName()), quote(c.ForeignKey.ColumnName()))
		}
		defs = append(defs, b.String())
	}
	if len(pk) > 1 {
		names := make([]string, len(pk))
		for i, c := range pk {
			names[i] = quote(c.Name)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", quote(t.Name), strings.Join(defs, ",\n  "))
}

func columnType(c *Column, d Dialect) string {
	if !c.AutoIncrement {
		return c.Type.SQL()
	}
	if d == SQLite {
		// INTEGER PRIMARY KEY aliases the rowid.
		return "INTEGER"
	}
	if _, ok := c.Type.(BigInteger); ok {
		return "BIGSERIAL"
	}
	return "SERIAL"
}

// CreateAll creates every table of md on conn, referenced tables first.
func (md *MetaData) CreateAll(ctx context.Context, conn Conn) error {
	for _, t := range md.SortedTables() {
		if _, err := conn.Exec(ctx, CreateTableSQL(t, conn.Dialect())); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}
