package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// StructDecl is the source-independent description of one model struct. It
// is produced either from a reflect.Type (Parser) or from Go source
// (LoadModelsFromPath).
type StructDecl struct {
	Name string
	Meta Meta
	// Parent is the object name of an embedded concrete parent model.
	Parent string
	Fields []FieldDecl
	GoType reflect.Type
}

// FieldDecl is one tagged struct field.
type FieldDecl struct {
	GoField string
	Tag     string
	Type    TypeRef
}

// TypeRef describes the Go type of a field without requiring reflection.
type TypeRef struct {
	// Name is the base type with its package qualifier, e.g. "time.Time",
	// "models.Author" or "int64".
	Name    string
	Pointer bool
	Slice   bool
	// Kind is reflect.Invalid when the type comes from source.
	Kind reflect.Kind
	Go   reflect.Type
}

// Short returns the type name without its package qualifier.
func (t TypeRef) Short() string {
	if i := strings.LastIndex(t.Name, "."); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// ParseTypeRef parses a type spelled as in source ("*Author", "[]models.Tag",
// "time.Time").
func ParseTypeRef(expr string) TypeRef {
	var ref TypeRef
	for {
		switch {
		case strings.HasPrefix(expr, "*"):
			ref.Pointer = true
			expr = expr[1:]
			continue
		case strings.HasPrefix(expr, "[]"):
			if expr == "[]byte" {
				ref.Name = expr
				return ref
			}
			ref.Slice = true
			expr = expr[2:]
			continue
		}
		break
	}
	ref.Name = expr
	return ref
}

// typeRefOf builds a TypeRef from a reflect.Type.
func typeRefOf(t reflect.Type) TypeRef {
	ref := TypeRef{Go: t}
	for {
		switch t.Kind() {
		case reflect.Pointer:
			ref.Pointer = true
			t = t.Elem()
			continue
		case reflect.Slice:
			if t.Elem().Kind() == reflect.Uint8 {
				ref.Name = "[]byte"
				ref.Kind = reflect.Slice
				return ref
			}
			ref.Slice = true
			t = t.Elem()
			continue
		}
		break
	}
	ref.Name = t.String()
	ref.Kind = t.Kind()
	return ref
}

// BuildModel turns a declaration into a Model. Relation targets, parents and
// junction models are resolved later by Set.Resolve.
func BuildModel(decl StructDecl) (*Model, error) {
	if decl.Name == "" {
		return nil, fmt.Errorf("model declaration without a name")
	}
	m := &Model{
		Name:     decl.Name,
		Table:    decl.Meta.Table,
		Proxy:    decl.Meta.Proxy,
		Database: decl.Meta.Database,
		Mixin:    decl.Meta.Mixin,
		GoType:   decl.GoType,
	}
	if m.Table == "" && !m.Proxy {
		m.Table = tableNameFor(decl.Name)
	}

	hasParentLink := false
	for _, fd := range decl.Fields {
		f, err := buildField(fd)
		if err != nil {
			return nil, fmt.Errorf("model %s: field %s: %w", decl.Name, fd.GoField, err)
		}
		if f == nil {
			continue
		}
		f.Owner = m
		if f.IsManyToMany() {
			m.ManyToMany = append(m.ManyToMany, f)
			continue
		}
		if f.Relation != nil && f.Relation.ParentLink {
			hasParentLink = true
		}
		m.Fields = append(m.Fields, f)
	}

	if decl.Parent != "" {
		m.Parent = &Model{Name: decl.Parent} // placeholder until Resolve
		if !m.Proxy && !hasParentLink {
			ptr := strings.ToLower(decl.Parent) + "_ptr"
			link := &Field{
				Name:       ptr,
				Column:     ptr + "_id",
				Kind:       OneToOne.String(),
				PrimaryKey: true,
				Unique:     true,
				Owner:      m,
				Relation:   &Relation{Kind: OneToOne, To: decl.Parent, ParentLink: true},
			}
			m.Fields = append([]*Field{link}, m.Fields...)
		}
	} else if m.Proxy {
		return nil, fmt.Errorf("proxy model %s must embed its parent model", decl.Name)
	}
	return m, nil
}

func buildField(fd FieldDecl) (*Field, error) {
	opts, err := ParseTag(fd.Tag)
	if err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" || name == "-" {
		name = ToSnakeCase(fd.GoField)
	}
	f := &Field{
		Name:       name,
		GoField:    fd.GoField,
		GoType:     fd.Type.Go,
		PrimaryKey: opts.Has("primaryKey"),
		Unique:     opts.Has("unique"),
	}

	if rk := opts.relationKind(); rk != 0 {
		rel := &Relation{
			Kind:        rk,
			To:          opts.Get("to"),
			RelatedName: opts.Get("relatedName"),
			Through:     opts.Get("through"),
			ParentLink:  opts.Has("parentLink"),
		}
		if rel.To == "" {
			rel.To = fd.Type.Short()
		}
		if rel.To == "" {
			return nil, fmt.Errorf("relation without a target model")
		}
		f.Relation = rel
		f.Kind = rk.String()
		if rk == ManyToMany {
			return f, nil
		}
		f.Column = opts.Get("column")
		if f.Column == "" {
			f.Column = name + "_id"
		}
		if rel.ParentLink {
			f.PrimaryKey = true
		}
		if rk == OneToOne {
			f.Unique = true
		}
		f.Null = (opts.Has("null") || fd.Type.Pointer) && !f.PrimaryKey && !opts.Has("notNull")
		return f, nil
	}

	f.Column = opts.Get("column")
	if f.Column == "" {
		f.Column = name
	}
	if err := applyKind(f, opts, fd.Type); err != nil {
		return nil, err
	}
	f.Enum = lookupEnum(fd.Type.Go, opts.Get("enum"))
	f.Null = (opts.Has("null") || fd.Type.Pointer || isNullType(fd.Type.Name)) && !f.PrimaryKey && !opts.Has("notNull")
	return f, nil
}

// sqlKinds maps tag SQL types to field type-names, in lookup order.
var sqlKinds = []struct {
	option string
	kind   string
}{
	{"bigserial", "BigAutoField"},
	{"serial", "AutoField"},
	{"autoIncrement", "AutoField"},
	{"identity", "AutoField"},
	{"identityByDefault", "AutoField"},
	{"varchar", "CharField"},
	{"char", "CharField"},
	{"text", "TextField"},
	{"smallint", "SmallIntegerField"},
	{"integer", "IntegerField"},
	{"bigint", "BigIntegerField"},
	{"boolean", "BooleanField"},
	{"bool", "BooleanField"},
	{"numeric", "DecimalField"},
	{"decimal", "DecimalField"},
	{"real", "FloatField"},
	{"double precision", "FloatField"},
	{"date", "DateField"},
	{"time", "TimeField"},
	{"timestamp", "DateTimeField"},
	{"timestamptz", "DateTimeField"},
	{"interval", "DurationField"},
	{"uuid", "UUIDField"},
	{"json", "JSONField"},
	{"jsonb", "JSONField"},
	{"inet", "GenericIPAddressField"},
	{"bytea", "BinaryField"},
}

// goKinds maps Go type names to field type-names.
var goKinds = map[string]string{
	"bool":            "BooleanField",
	"string":          "TextField",
	"int":             "IntegerField",
	"int32":           "IntegerField",
	"uint16":          "PositiveIntegerField",
	"int8":            "SmallIntegerField",
	"int16":           "SmallIntegerField",
	"uint8":           "PositiveSmallIntegerField",
	"int64":           "BigIntegerField",
	"uint32":          "PositiveBigIntegerField",
	"uint64":          "PositiveBigIntegerField",
	"float32":         "FloatField",
	"float64":         "FloatField",
	"time.Time":       "DateTimeField",
	"time.Duration":   "DurationField",
	"[]byte":          "BinaryField",
	"sql.NullString":  "TextField",
	"sql.NullInt64":   "BigIntegerField",
	"sql.NullInt32":   "IntegerField",
	"sql.NullInt16":   "SmallIntegerField",
	"sql.NullFloat64": "FloatField",
	"sql.NullBool":    "BooleanField",
	"sql.NullTime":    "DateTimeField",
}

var reflectKinds = map[reflect.Kind]string{
	reflect.Bool:    "BooleanField",
	reflect.String:  "TextField",
	reflect.Int:     "IntegerField",
	reflect.Int32:   "IntegerField",
	reflect.Int8:    "SmallIntegerField",
	reflect.Int16:   "SmallIntegerField",
	reflect.Uint8:   "PositiveSmallIntegerField",
	reflect.Uint16:  "PositiveIntegerField",
	reflect.Int64:   "BigIntegerField",
	reflect.Uint32:  "PositiveBigIntegerField",
	reflect.Uint64:  "PositiveBigIntegerField",
	reflect.Float32: "FloatField",
	reflect.Float64: "FloatField",
}

func applyKind(f *Field, opts *TagOptions, t TypeRef) error {
	if k := opts.Get("kind"); k != "" {
		f.Kind = k
	} else {
		for _, sk := range sqlKinds {
			if opts.Has(sk.option) {
				f.Kind = sk.kind
				if sk.kind == "AutoField" && (t.Name == "int64" || t.Kind == reflect.Int64) {
					f.Kind = "BigAutoField"
				}
				break
			}
		}
	}
	if f.Kind == "" {
		if k, ok := goKinds[t.Name]; ok {
			f.Kind = k
		} else if k, ok := reflectKinds[t.Kind]; ok {
			f.Kind = k
		}
	}
	// Unknown kinds stay empty and are skipped by the type map.

	for _, opt := range []string{"varchar", "char", "maxLength"} {
		if v := opts.Get(opt); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s length %q", opt, v)
			}
			f.MaxLength = n
		}
	}
	if f.Kind == "TextField" && f.MaxLength > 0 {
		f.Kind = "CharField"
	}
	for _, opt := range []string{"numeric", "decimal"} {
		if v := opts.Get(opt); v != "" {
			p, s, err := parsePrecision(v)
			if err != nil {
				return err
			}
			f.MaxDigits, f.DecimalPlaces = p, s
		}
	}
	return nil
}

func parsePrecision(v string) (int, int, error) {
	parts := strings.Split(v, ",")
	p, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid precision %q", v)
	}
	s := 0
	if len(parts) > 1 {
		if s, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return 0, 0, fmt.Errorf("invalid scale %q", v)
		}
	}
	return p, s, nil
}

func isNullType(name string) bool {
	return strings.HasPrefix(name, "sql.Null")
}

// customTableNames holds table names registered by generated code.
var customTableNames = make(map[string]string) // Struct name → table name

// RegisterTableName registers a custom table name for a struct type.
// This is called by generated code to provide table names from comments.
func RegisterTableName(structName, tableName string) {
	customTableNames[structName] = tableName
}

func tableNameFor(structName string) string {
	if name, ok := customTableNames[structName]; ok {
		return name
	}
	return ToSnakeCase(structName)
}
