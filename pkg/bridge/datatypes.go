// Package bridge translates declarative models into mapping metadata: one
// table per model, one mapped class per model and the relationship graph
// between them.
package bridge

import (
	"fmt"
	"maps"
	"strings"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
)

// ColumnSpec is the column type produced for a field, plus the reference
// constraint for foreign keys.
type ColumnSpec struct {
	Type       mapping.Type
	ForeignKey *mapping.ForeignKey
}

// TypeFunc builds the column type of a field.
type TypeFunc func(f *model.Field) (ColumnSpec, error)

// TypeMap maps field type-names to column type constructors.
type TypeMap map[string]TypeFunc

// Fixed returns a TypeFunc that always produces t.
func Fixed(t mapping.Type) TypeFunc {
	return func(*model.Field) (ColumnSpec, error) {
		return ColumnSpec{Type: t}, nil
	}
}

func varchar(f *model.Field) (ColumnSpec, error) {
	return ColumnSpec{Type: mapping.String{Length: f.MaxLength}}, nil
}

func numeric(f *model.Field) (ColumnSpec, error) {
	return ColumnSpec{Type: mapping.Numeric{Precision: f.MaxDigits, Scale: f.DecimalPlaces}}, nil
}

// foreignKey references the target model's primary key column.
func foreignKey(f *model.Field) (ColumnSpec, error) {
	if f.Relation == nil || f.Relation.Target == nil {
		return ColumnSpec{}, fmt.Errorf("field %s: unresolved relation target", f.Name)
	}
	target := f.Relation.Target
	pk := target.PK()
	if pk == nil {
		return ColumnSpec{}, fmt.Errorf("field %s: target model %s has no primary key", f.Name, target.Name)
	}
	return ColumnSpec{
		Type:       mapping.Integer{},
		ForeignKey: mapping.NewForeignKey(target.Table, pk.Column),
	}, nil
}

// DefaultTypes returns a fresh copy of the built-in type table.
func DefaultTypes() TypeMap {
	return TypeMap{
		"AutoField":                  Fixed(mapping.Integer{}),
		"BigAutoField":               Fixed(mapping.BigInteger{}),
		"IntegerField":               Fixed(mapping.Integer{}),
		"PositiveIntegerField":       Fixed(mapping.Integer{}),
		"BigIntegerField":            Fixed(mapping.BigInteger{}),
		"PositiveBigIntegerField":    Fixed(mapping.BigInteger{}),
		"SmallIntegerField":          Fixed(mapping.SmallInteger{}),
		"PositiveSmallIntegerField":  Fixed(mapping.SmallInteger{}),
		"BooleanField":               Fixed(mapping.Boolean{}),
		"NullBooleanField":           Fixed(mapping.Boolean{}),
		"CharField":                  varchar,
		"CommaSeparatedIntegerField": varchar,
		"SlugField":                  varchar,
		"FileField":                  varchar,
		"FilePathField":              varchar,
		"EmailField":                 varchar,
		"URLField":                   varchar,
		"TextField":                  Fixed(mapping.Text{}),
		"DateField":                  Fixed(mapping.Date{}),
		"DateTimeField":              Fixed(mapping.DateTime{}),
		"TimeField":                  Fixed(mapping.Time{}),
		"DurationField":              Fixed(mapping.Interval{}),
		"DecimalField":               numeric,
		"FloatField":                 Fixed(mapping.Float{}),
		"IPAddressField":             Fixed(mapping.Char{Length: 15}),
		"ForeignKey":                 foreignKey,
		"OneToOneField":              foreignKey,
	}
}

// Merge returns a new map holding tm overlaid with others, later entries
// winning on name collision. tm is not modified.
func (tm TypeMap) Merge(others ...TypeMap) TypeMap {
	out := make(TypeMap, len(tm))
	maps.Copy(out, tm)
	for _, o := range others {
		maps.Copy(out, o)
	}
	return out
}

// Column maps a field. ok is false when the type-name has no entry, in
// which case the field gets no column.
func (tm TypeMap) Column(f *model.Field) (spec ColumnSpec, ok bool, err error) {
	if f.Enum != nil && strings.HasSuffix(f.Kind, "IntegerField") {
		return ColumnSpec{Type: NewEnumAdapter(f.Enum)}, true, nil
	}
	fn, ok := tm[f.Kind]
	if !ok {
		return ColumnSpec{}, false, nil
	}
	spec, err = fn(f)
	if err != nil {
		return ColumnSpec{}, true, err
	}
	return spec, true, nil
}
