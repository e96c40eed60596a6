package model

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
)

// sourceStruct is a tagged struct found in source, before embedding is
// flattened.
type sourceStruct struct {
	decl     StructDecl
	abstract bool
	embedded []string // untagged embedded struct names, in order
	order    int
}

// LoadModelsFromPath scans a file or directory for Go structs with po tags
// and adds them to the set. No reflection is involved, so GoType and Enum are
// left empty.
//
// Supported comment directives on the type declaration:
//
//	// table_name: books
//	// database: replica
//	// proxy
//	// abstract
func LoadModelsFromPath(path string, set *Set) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat path: %w", err)
	}

	var filesToParse []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".go") && !strings.HasSuffix(d.Name(), "_test.go") {
				filesToParse = append(filesToParse, p)
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("failed to walk directory: %w", err)
		}
	} else {
		if !strings.HasSuffix(path, ".go") {
			return 0, fmt.Errorf("file must have .go extension")
		}
		filesToParse = append(filesToParse, path)
	}

	if len(filesToParse) == 0 {
		return 0, fmt.Errorf("no .go files found in %s", path)
	}
	sort.Strings(filesToParse)

	structs := make(map[string]*sourceStruct)
	for _, file := range filesToParse {
		if err := collectStructs(file, structs); err != nil {
			return 0, fmt.Errorf("failed to load models from %s: %w", file, err)
		}
	}

	ordered := make([]*sourceStruct, 0, len(structs))
	for _, s := range structs {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	count := 0
	for _, s := range ordered {
		if s.abstract {
			continue
		}
		decl := s.decl
		decl.Fields = flattenFields(s, structs, nil)
		m, err := BuildModel(decl)
		if err != nil {
			return count, err
		}
		if err := set.Add(m); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// flattenFields inlines the fields of untagged embedded structs, which act as
// abstract bases.
func flattenFields(s *sourceStruct, structs map[string]*sourceStruct, seen []string) []FieldDecl {
	var out []FieldDecl
	for _, name := range s.embedded {
		base, ok := structs[name]
		if !ok {
			continue
		}
		cycle := false
		for _, n := range seen {
			if n == name {
				cycle = true
			}
		}
		if cycle {
			continue
		}
		out = append(out, flattenFields(base, structs, append(seen, s.decl.Name))...)
	}
	return append(out, s.decl.Fields...)
}

func collectStructs(filename string, structs map[string]*sourceStruct) error {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("failed to parse file: %w", err)
	}

	for _, decl := range node.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}
		for _, spec := range genDecl.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok || !hasModelTags(structType) {
				continue
			}

			s := &sourceStruct{
				decl:  StructDecl{Name: typeSpec.Name.Name},
				order: len(structs),
			}
			for _, group := range []*ast.CommentGroup{genDecl.Doc, typeSpec.Doc, typeSpec.Comment} {
				if group == nil {
					continue
				}
				for _, c := range group.List {
					applyDirective(s, c.Text)
				}
			}
			if err := collectFields(structType, s); err != nil {
				return fmt.Errorf("struct %s: %w", s.decl.Name, err)
			}
			structs[s.decl.Name] = s
		}
	}
	return nil
}

func applyDirective(s *sourceStruct, comment string) {
	key, value, ok := ParseDirective(comment)
	if !ok {
		if strings.TrimSpace(strings.TrimPrefix(comment, "//")) == "abstract" {
			s.abstract = true
		}
		return
	}
	switch key {
	case "table_name":
		s.decl.Meta.Table = value
	case "database":
		s.decl.Meta.Database = value
	case "proxy":
		s.decl.Meta.Proxy = true
	}
}

func collectFields(structType *ast.StructType, s *sourceStruct) error {
	for _, field := range structType.Fields.List {
		tag, tagged := "", false
		if field.Tag != nil {
			tag, tagged = reflect.StructTag(strings.Trim(field.Tag.Value, "`")).Lookup(StructTagKey)
		}
		if tag == "-" {
			continue
		}
		typeExpr := types.ExprString(field.Type)
		ref := ParseTypeRef(typeExpr)

		if len(field.Names) == 0 {
			name := ref.Short()
			if !tagged {
				s.embedded = append(s.embedded, name)
				continue
			}
			if s.decl.Parent != "" {
				return fmt.Errorf("more than one concrete parent")
			}
			s.decl.Parent = name
			if opts, err := ParseTag(tag); err == nil && opts.Has("parentLink") {
				s.decl.Fields = append(s.decl.Fields, FieldDecl{GoField: name, Tag: tag, Type: ref})
			}
			continue
		}
		if !tagged || tag == "" {
			continue
		}
		for _, fieldName := range field.Names {
			if !fieldName.IsExported() {
				continue
			}
			s.decl.Fields = append(s.decl.Fields, FieldDecl{GoField: fieldName.Name, Tag: tag, Type: ref})
		}
	}
	return nil
}

// hasModelTags checks if a struct has any fields with po tags.
func hasModelTags(structType *ast.StructType) bool {
	if structType.Fields == nil {
		return false
	}
	for _, field := range structType.Fields.List {
		if field.Tag != nil && strings.Contains(field.Tag.Value, StructTagKey+":") {
			return true
		}
	}
	return false
}
