package model

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// ErrResolved is returned when models are added to a Set that was already
// resolved.
var ErrResolved = errors.New("model set already resolved")

// Set is the collection of declared models of one application. Models may
// reference each other in any order; references are resolved by name in
// Resolve.
type Set struct {
	parser   *Parser
	models   []*Model
	byName   map[string]*Model
	byType   map[reflect.Type]*Model
	resolved bool
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{
		parser: NewParser(),
		byName: make(map[string]*Model),
		byType: make(map[reflect.Type]*Model),
	}
}

// Register parses model structs and adds them to the set.
func (s *Set) Register(models ...any) error {
	for _, v := range models {
		t := reflect.TypeOf(v)
		if t == nil {
			return fmt.Errorf("cannot register nil model")
		}
		m, err := s.parser.Parse(t)
		if err != nil {
			return err
		}
		if err := s.Add(m); err != nil {
			return err
		}
	}
	return nil
}

// Add adds an already built model.
func (s *Set) Add(m *Model) error {
	if s.resolved {
		return ErrResolved
	}
	if _, ok := s.byName[m.Name]; ok {
		return fmt.Errorf("model %s already registered", m.Name)
	}
	s.models = append(s.models, m)
	s.byName[m.Name] = m
	if m.GoType != nil {
		s.byType[m.GoType] = m
	}
	return nil
}

// Get returns a model by object name.
func (s *Set) Get(name string) *Model {
	return s.byName[name]
}

// ByType returns the model declared by a Go struct type.
func (s *Set) ByType(t reflect.Type) *Model {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return s.byType[t]
}

// Models returns the declared models, excluding implicit junction models.
func (s *Set) Models() []*Model {
	out := make([]*Model, 0, len(s.models))
	for _, m := range s.models {
		if !m.AutoCreated {
			out = append(out, m)
		}
	}
	return out
}

// AllModels returns every model including implicit junction models.
func (s *Set) AllModels() []*Model {
	return append([]*Model(nil), s.models...)
}

// Resolve links parents, relation targets and junction models. It must be
// called once, after every model has been added.
func (s *Set) Resolve() error {
	if s.resolved {
		return nil
	}

	done := make(map[*Model]bool)
	for _, m := range s.models {
		if err := s.resolveParent(m, done, nil); err != nil {
			return err
		}
	}

	for _, m := range s.models {
		for _, f := range append(append([]*Field(nil), m.Fields...), m.ManyToMany...) {
			if f.Relation == nil || f.Relation.Target != nil {
				continue
			}
			target := s.byName[f.Relation.To]
			if target == nil {
				return fmt.Errorf("model %s: field %s references unknown model %s", m.Name, f.Name, f.Relation.To)
			}
			f.Relation.Target = target
		}
	}

	// Junctions are appended while iterating, so fix the bound first.
	declared := len(s.models)
	for _, m := range s.models[:declared] {
		for _, f := range m.ManyToMany {
			if m.Inherited(f) {
				continue
			}
			if err := s.resolveThrough(m, f); err != nil {
				return err
			}
		}
	}

	s.resolved = true
	return nil
}

func (s *Set) resolveParent(m *Model, done map[*Model]bool, path []string) error {
	if done[m] || m.Parent == nil {
		done[m] = true
		return nil
	}
	for _, name := range path {
		if name == m.Name {
			return fmt.Errorf("inheritance cycle through %s", m.Name)
		}
	}
	parent := s.byName[m.Parent.Name]
	if parent == nil {
		return fmt.Errorf("model %s: unknown parent model %s", m.Name, m.Parent.Name)
	}
	if err := s.resolveParent(parent, done, append(path, m.Name)); err != nil {
		return err
	}
	m.Parent = parent

	inherited := make([]*Field, 0, len(parent.Fields)+len(m.Fields))
	inherited = append(inherited, parent.Fields...)
	m.Fields = append(inherited, m.Fields...)
	m.ManyToMany = append(append([]*Field(nil), parent.ManyToMany...), m.ManyToMany...)

	if m.Proxy {
		m.Table = parent.Table
		if m.Database == "" {
			m.Database = parent.Database
		}
	}
	done[m] = true
	return nil
}

func (s *Set) resolveThrough(m *Model, f *Field) error {
	rel := f.Relation
	target := rel.Target

	if rel.Through != "" {
		through := s.byName[rel.Through]
		if through == nil {
			return fmt.Errorf("model %s: field %s: unknown through model %s", m.Name, f.Name, rel.Through)
		}
		var toSource, toTarget *Field
		for _, tf := range through.Fields {
			if tf.Relation == nil || tf.IsManyToMany() {
				continue
			}
			switch {
			case tf.Relation.To == m.Name && toSource == nil:
				toSource = tf
			case tf.Relation.To == target.Name && toTarget == nil:
				toTarget = tf
			}
		}
		if toSource == nil || toTarget == nil {
			return fmt.Errorf("model %s: field %s: through model %s needs foreign keys to %s and %s",
				m.Name, f.Name, through.Name, m.Name, target.Name)
		}
		rel.ThroughModel = through
		rel.ThroughColumn = toSource.Column
		rel.ThroughTargetColumn = toTarget.Column
		return nil
	}

	from, to := m.LowerName(), target.LowerName()
	if m == target {
		from, to = "from_"+from, "to_"+to
	}
	name := m.Name + "_" + f.Name
	junction := &Model{
		Name:        name,
		Table:       m.Table + "_" + f.Name,
		AutoCreated: true,
		Database:    m.Database,
	}
	junction.Fields = []*Field{
		{Name: "id", Column: "id", Kind: "AutoField", PrimaryKey: true, Owner: junction},
		{
			Name: from, Column: from + "_id", Kind: ForeignKey.String(), Owner: junction,
			Relation: &Relation{Kind: ForeignKey, To: m.Name, Target: m, RelatedName: name + SuppressBackref},
		},
		{
			Name: to, Column: to + "_id", Kind: ForeignKey.String(), Owner: junction,
			Relation: &Relation{Kind: ForeignKey, To: target.Name, Target: target, RelatedName: name + SuppressBackref},
		},
	}
	rel.ThroughModel = junction
	rel.ThroughColumn = from + "_id"
	rel.ThroughTargetColumn = to + "_id"

	s.models = append(s.models, junction)
	s.byName[junction.Name] = junction
	return nil
}

// Names returns the object names of all models, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
