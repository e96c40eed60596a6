package model

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// StructTagKey is the key used in struct tags (e.g., `po:"..."`).
	StructTagKey = "po"
)

// TagOptions represents parsed tag options.
type TagOptions struct {
	Name    string            // Field or column name (first element)
	Options map[string]string // Other options
}

// ParseTag parses a struct tag value into TagOptions.
// Format: "name,option1,option2(value),option3:value"
func ParseTag(tag string) (*TagOptions, error) {
	parts := splitTag(tag)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty tag value")
	}
	opts := &TagOptions{
		Name:    parts[0],
		Options: make(map[string]string),
	}
	for _, opt := range parts[1:] {
		if opt == "" {
			continue
		}
		if idx := strings.Index(opt, "("); idx != -1 {
			if !strings.HasSuffix(opt, ")") {
				return nil, fmt.Errorf("invalid option format: %s", opt)
			}
			opts.Options[opt[:idx]] = opt[idx+1 : len(opt)-1]
		} else if idx := strings.Index(opt, ":"); idx != -1 {
			opts.Options[opt[:idx]] = opt[idx+1:]
		} else {
			opts.Options[opt] = ""
		}
	}
	return opts, nil
}

// Has checks if an option exists.
func (t *TagOptions) Has(key string) bool {
	_, ok := t.Options[key]
	return ok
}

// Get returns the value of an option.
func (t *TagOptions) Get(key string) string {
	return t.Options[key]
}

// relationKind returns the relation declared by the tag, or 0.
func (t *TagOptions) relationKind() RelationKind {
	switch {
	case t.Has("foreignKey"), t.Has("belongsTo"):
		return ForeignKey
	case t.Has("oneToOne"), t.Has("parentLink"):
		return OneToOne
	case t.Has("manyToMany"):
		return ManyToMany
	}
	return 0
}

// splitTag splits a tag value by commas, handling nested parentheses.
func splitTag(tag string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for _, ch := range tag {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 || len(parts) > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// ToSnakeCase converts a string from PascalCase to snake_case. Runs of
// capitals are kept together, so "ISBNCode" becomes "isbn_code".
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var result strings.Builder
	for i, ch := range runes {
		upper := ch >= 'A' && ch <= 'Z'
		if i > 0 && upper {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z' || runes[i-1] >= '0' && runes[i-1] <= '9'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || (nextLower && runes[i-1] != '_') {
				result.WriteRune('_')
			}
		}
		result.WriteRune(ch)
	}
	return strings.ToLower(result.String())
}

var directiveRe = regexp.MustCompile(`^//\s*(table_name|database|proxy)\b:?\s*([a-zA-Z0-9_]*)`)

// ParseDirective extracts a model directive from a comment line.
// Supported forms:
//
//	// table_name: custom_table_name
//	// database: replica
//	// proxy
func ParseDirective(comment string) (key, value string, ok bool) {
	m := directiveRe.FindStringSubmatch(strings.TrimSpace(comment))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
