package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is a column type.
type Type interface {
	// SQL returns the type as written in DDL.
	SQL() string
}

// BindProcessor converts application values before they are sent to the
// database.
type BindProcessor interface {
	BindValue(v any) (any, error)
}

// ResultProcessor converts values read from the database.
type ResultProcessor interface {
	ResultValue(v any) (any, error)
}

type (
	Integer      struct{}
	SmallInteger struct{}
	BigInteger   struct{}
	Boolean      struct{}
	Text         struct{}
	Date         struct{}
	DateTime     struct{}
	Time         struct{}
	Interval     struct{}
	Float        struct{}
)

// String is a variable-length string; Length 0 means unbounded.
type String struct {
	Length int
}

// Char is a fixed-length string.
type Char struct {
	Length int
}

// Numeric is a fixed-point number.
type Numeric struct {
	Precision int
	Scale     int
}

func (Integer) SQL() string      { return "INTEGER" }
func (SmallInteger) SQL() string { return "SMALLINT" }
func (BigInteger) SQL() string   { return "BIGINT" }
func (Boolean) SQL() string      { return "BOOLEAN" }
func (Text) SQL() string         { return "TEXT" }
func (Date) SQL() string         { return "DATE" }
func (DateTime) SQL() string     { return "TIMESTAMP" }
func (Time) SQL() string         { return "TIME" }
func (Interval) SQL() string     { return "INTERVAL" }
func (Float) SQL() string        { return "FLOAT" }

func (t String) SQL() string {
	if t.Length > 0 {
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	}
	return "VARCHAR"
}

func (t Char) SQL() string {
	if t.Length > 0 {
		return fmt.Sprintf("CHAR(%d)", t.Length)
	}
	return "CHAR"
}

func (t Numeric) SQL() string {
	if t.Precision > 0 {
		return fmt.Sprintf("NUMERIC(%d, %d)", t.Precision, t.Scale)
	}
	return "NUMERIC"
}

// ResultValue normalizes integer-backed booleans (SQLite stores 0/1).
func (Boolean) ResultValue(v any) (any, error) {
	switch b := v.(type) {
	case int64:
		return b != 0, nil
	case int32:
		return b != 0, nil
	}
	return v, nil
}

// ParseType parses an SQL type spelling such as "varchar(36)",
// "numeric(12,2)" or "bigint".
func ParseType(s string) (Type, error) {
	spec := strings.ToLower(strings.TrimSpace(s))
	name, args := spec, ""
	if idx := strings.Index(spec, "("); idx != -1 {
		if !strings.HasSuffix(spec, ")") {
			return nil, fmt.Errorf("invalid type %q", s)
		}
		name, args = strings.TrimSpace(spec[:idx]), spec[idx+1:len(spec)-1]
	}

	ints, err := parseArgs(args)
	if err != nil {
		return nil, fmt.Errorf("invalid type %q: %w", s, err)
	}
	arg := func(i int) int {
		if i < len(ints) {
			return ints[i]
		}
		return 0
	}

	switch name {
	case "integer", "int", "int4":
		return Integer{}, nil
	case "smallint", "int2":
		return SmallInteger{}, nil
	case "bigint", "int8":
		return BigInteger{}, nil
	case "boolean", "bool":
		return Boolean{}, nil
	case "varchar", "character varying", "string":
		return String{Length: arg(0)}, nil
	case "char", "character":
		return Char{Length: arg(0)}, nil
	case "text":
		return Text{}, nil
	case "date":
		return Date{}, nil
	case "timestamp", "timestamptz", "datetime":
		return DateTime{}, nil
	case "time":
		return Time{}, nil
	case "interval":
		return Interval{}, nil
	case "numeric", "decimal":
		return Numeric{Precision: arg(0), Scale: arg(1)}, nil
	case "real", "float", "double precision", "float8":
		return Float{}, nil
	}
	return nil, fmt.Errorf("unsupported type %q", s)
}

func parseArgs(args string) ([]int, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	parts := strings.Split(args, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
