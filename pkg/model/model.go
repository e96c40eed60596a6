// Package model describes declarative models: the struct-tag schema an
// application defines once and that the bridge translates into mapping
// metadata.
package model

import (
	"reflect"
	"strings"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
)

// RelationKind identifies the cardinality of a relational field.
type RelationKind int

const (
	// ForeignKey is a many-to-one reference stored as a column on the owner.
	ForeignKey RelationKind = iota + 1
	// OneToOne is a unique reference stored as a column on the owner.
	OneToOne
	// ManyToMany is realized through a junction model.
	ManyToMany
)

// String returns the type-name used for the relation's field kind.
func (k RelationKind) String() string {
	switch k {
	case ForeignKey:
		return "ForeignKey"
	case OneToOne:
		return "OneToOneField"
	case ManyToMany:
		return "ManyToManyField"
	default:
		return "unknown"
	}
}

// SuppressBackref is the suffix of a related name that disables the reverse
// accessor on the target model.
const SuppressBackref = "+"

// Relation holds the relational part of a field.
type Relation struct {
	Kind RelationKind
	// To is the target model's object name as written in the declaration.
	To string
	// Target is resolved by Set.Resolve.
	Target *Model
	// RelatedName is the explicit reverse accessor name, possibly ending
	// with SuppressBackref.
	RelatedName string
	// Through names an explicit junction model for ManyToMany. When empty an
	// implicit junction model is generated.
	Through      string
	ThroughModel *Model
	// ThroughColumn and ThroughTargetColumn are the junction columns that
	// point back to the owning model and to the target, filled by Resolve.
	ThroughColumn       string
	ThroughTargetColumn string
	// ParentLink marks the one-to-one field that links a child model to its
	// concrete parent in multi-table inheritance.
	ParentLink bool
}

// BackrefDisabled reports whether the related name carries the suppress
// marker.
func (r *Relation) BackrefDisabled() bool {
	return r.RelatedName != "" && strings.HasSuffix(r.RelatedName, SuppressBackref)
}

// Field describes one declared attribute of a model.
type Field struct {
	Name   string
	Column string
	// Kind is the field type-name, e.g. "CharField" or "ForeignKey".
	Kind          string
	PrimaryKey    bool
	Null          bool
	Unique        bool
	MaxLength     int
	MaxDigits     int
	DecimalPlaces int
	Enum          Enumeration
	Relation      *Relation
	// Owner is the model that declared the field. It differs from the model
	// being inspected when the field was inherited from a concrete parent.
	Owner   *Model
	GoField string
	GoType  reflect.Type
}

// IsRelation reports whether the field references another model.
func (f *Field) IsRelation() bool {
	return f.Relation != nil
}

// IsManyToMany reports whether the field is a many-to-many reference.
func (f *Field) IsManyToMany() bool {
	return f.Relation != nil && f.Relation.Kind == ManyToMany
}

// Meta is the model-level part of a declaration. Structs can provide it by
// implementing MetaProvider.
type Meta struct {
	Table string
	// Proxy models reuse their parent's table and never get a table of
	// their own.
	Proxy bool
	// Database is the read alias hint used by DefaultRouter.
	Database string
	// Mixin is attached to the mapped class built for the model.
	Mixin any
}

// MetaProvider lets a model struct declare its Meta.
type MetaProvider interface {
	ModelMeta() Meta
}

// Model is a declared model.
type Model struct {
	Name  string
	Table string
	// Fields holds concrete fields in declaration order, inherited fields
	// first. Many-to-many fields are kept in ManyToMany.
	Fields     []*Field
	ManyToMany []*Field
	Parent     *Model
	Proxy      bool
	// AutoCreated marks implicit junction models.
	AutoCreated bool
	Database    string
	Mixin       any
	GoType      reflect.Type

	// SA is the mapped class bound to the model once the bridge has
	// prepared it.
	SA *mapping.Class
}

// PK returns the primary key field. A child in multi-table inheritance is
// keyed by its parent link, not by the inherited parent key.
func (m *Model) PK() *Field {
	var inherited *Field
	for _, f := range m.Fields {
		if !f.PrimaryKey {
			continue
		}
		if !m.Inherited(f) {
			return f
		}
		if inherited == nil {
			inherited = f
		}
	}
	return inherited
}

// Field returns a concrete or many-to-many field by name.
func (m *Model) Field(name string) *Field {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	for _, f := range m.ManyToMany {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// RelationFields returns foreign-key and one-to-one fields followed by
// many-to-many fields.
func (m *Model) RelationFields() []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if f.IsRelation() {
			out = append(out, f)
		}
	}
	return append(out, m.ManyToMany...)
}

// Inherited reports whether f was declared on a concrete ancestor of m.
func (m *Model) Inherited(f *Field) bool {
	return f.Owner != nil && f.Owner != m
}

// LowerName returns the object name in lower case, as used for reverse
// accessor names and junction column names.
func (m *Model) LowerName() string {
	return strings.ToLower(m.Name)
}
