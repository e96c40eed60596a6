package model

import (
	"fmt"
	"reflect"
)

var metaProviderType = reflect.TypeFor[MetaProvider]()

// Parser extracts model declarations from Go struct types.
type Parser struct {
	cache map[reflect.Type]StructDecl
}

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{
		cache: make(map[reflect.Type]StructDecl),
	}
}

// Parse builds a Model from a Go struct type.
func (p *Parser) Parse(modelType reflect.Type) (*Model, error) {
	decl, err := p.Declare(modelType)
	if err != nil {
		return nil, err
	}
	return BuildModel(decl)
}

// Declare extracts the StructDecl of a Go struct type.
//
// Embedded structs without a tag are abstract: their tagged fields are
// inlined. An embedded struct carrying a tag is a concrete parent (multi-table
// inheritance, or a proxy when the model's Meta says so).
func (p *Parser) Declare(modelType reflect.Type) (StructDecl, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return StructDecl{}, fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}
	if cached, ok := p.cache[modelType]; ok {
		return cached, nil
	}

	decl := StructDecl{
		Name:   modelType.Name(),
		GoType: modelType,
		Meta:   metaOf(modelType),
	}
	if err := p.collectFields(modelType, &decl); err != nil {
		return StructDecl{}, err
	}

	p.cache[modelType] = decl
	return decl, nil
}

func (p *Parser) collectFields(t reflect.Type, decl *StructDecl) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, tagged := field.Tag.Lookup(StructTagKey)
		if tag == "-" {
			continue
		}

		if field.Anonymous {
			et := field.Type
			for et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() != reflect.Struct {
				continue
			}
			if !tagged {
				if err := p.collectFields(et, decl); err != nil {
					return err
				}
				continue
			}
			if decl.Parent != "" {
				return fmt.Errorf("model %s: more than one concrete parent", decl.Name)
			}
			decl.Parent = et.Name()
			opts, err := ParseTag(tag)
			if err != nil {
				return fmt.Errorf("failed to parse tag for field %s: %w", field.Name, err)
			}
			if opts.Has("parentLink") {
				decl.Fields = append(decl.Fields, FieldDecl{
					GoField: field.Name,
					Tag:     tag,
					Type:    typeRefOf(field.Type),
				})
			}
			continue
		}

		if !field.IsExported() || !tagged || tag == "" {
			continue
		}
		decl.Fields = append(decl.Fields, FieldDecl{
			GoField: field.Name,
			Tag:     tag,
			Type:    typeRefOf(field.Type),
		})
	}
	return nil
}

func metaOf(t reflect.Type) Meta {
	switch {
	case t.Implements(metaProviderType):
		return reflect.Zero(t).Interface().(MetaProvider).ModelMeta()
	case reflect.PointerTo(t).Implements(metaProviderType):
		return reflect.New(t).Interface().(MetaProvider).ModelMeta()
	}
	return Meta{}
}
