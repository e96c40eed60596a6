package mapping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// SessionSource hands out the session a class should query with.
type SessionSource interface {
	Session(ctx context.Context, alias string) (*Session, error)
}

// Class is a mapped class: a table, a read alias and the relationships
// registered by the Mapper.
type Class struct {
	Name  string
	Table *Table
	// Alias selects the database the class reads from.
	Alias string
	// Mixin is an application value carried by the class.
	Mixin    any
	Sessions SessionSource

	mu     sync.RWMutex
	props  map[string]*Relationship
	order  []string
	mapped bool
}

// Query returns a query bound to the session of the class's read alias.
// Without entities the query selects the class itself; otherwise the
// entities are passed to Session.Query unchanged.
func (c *Class) Query(ctx context.Context, entities ...any) (*Query, error) {
	if c.Sessions == nil {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrNoSessionSource)
	}
	sess, err := c.Sessions.Session(ctx, c.Alias)
	if err != nil {
		return nil, err
	}
	if len(entities) > 0 {
		return sess.Query(entities...), nil
	}
	return sess.Query(c), nil
}

// C returns a column of the class's table, or nil.
func (c *Class) C(name string) *Column {
	if c.Table == nil {
		return nil
	}
	return c.Table.C(name)
}

// Relationship returns a relationship property by name.
func (c *Class) Relationship(name string) (*Relationship, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.props[name]
	return r, ok
}

// Relationships returns the relationship properties in registration order.
func (c *Class) Relationships() []*Relationship {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Relationship, len(c.order))
	for i, name := range c.order {
		out[i] = c.props[name]
	}
	return out
}

// Mapped reports whether the Mapper has mapped the class.
func (c *Class) Mapped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mapped
}

func (c *Class) addProperty(name string, r *Relationship) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.props == nil {
		c.props = make(map[string]*Relationship)
	}
	if _, ok := c.props[name]; ok {
		return fmt.Errorf("%w: %s.%s", ErrPropertyConflict, c.Name, name)
	}
	if c.Table != nil && c.Table.Has(name) {
		return fmt.Errorf("%w: %s.%s shadows a column", ErrPropertyConflict, c.Name, name)
	}
	c.props[name] = r
	c.order = append(c.order, name)
	return nil
}

// Mapper registers classes against tables and wires their relationships,
// including backrefs on the target classes.
type Mapper struct {
	mu      sync.Mutex
	classes []*Class
}

// NewMapper creates an empty Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Map binds cls to table with the given relationship properties. Backrefs
// are added to the target classes, which do not need to be mapped yet.
func (m *Mapper) Map(cls *Class, table *Table, props map[string]*Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cls.mu.Lock()
	if cls.mapped {
		cls.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyMapped, cls.Name)
	}
	cls.Table = table
	cls.mapped = true
	cls.mu.Unlock()

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rel := props[key]
		rel.Key = key
		rel.Parent = cls
		if err := cls.addProperty(key, rel); err != nil {
			return err
		}
		if rel.Backref == nil {
			continue
		}
		if rel.Target == nil {
			return fmt.Errorf("%s.%s: %w", cls.Name, key, ErrNotMapped)
		}
		if err := rel.Target.addProperty(rel.Backref.Name, rel.reverse()); err != nil {
			return fmt.Errorf("backref of %s.%s: %w", cls.Name, key, err)
		}
	}
	m.classes = append(m.classes, cls)
	return nil
}

// Configure checks that every relationship points at a mapped class.
func (m *Mapper) Configure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, cls := range m.classes {
		for _, rel := range cls.Relationships() {
			if rel.Target == nil || !rel.Target.Mapped() {
				name := "<nil>"
				if rel.Target != nil {
					name = rel.Target.Name
				}
				errs = append(errs, fmt.Errorf("%s.%s -> %s: %w", cls.Name, rel.Key, name, ErrNotMapped))
			}
		}
	}
	return errors.Join(errs...)
}

// Classes returns the mapped classes in mapping order.
func (m *Mapper) Classes() []*Class {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Class(nil), m.classes...)
}

// Reset forgets every mapped class.
func (m *Mapper) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes = nil
}

// Class returns a mapped class by name.
func (m *Mapper) Class(name string) (*Class, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
