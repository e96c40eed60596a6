package model

// DefaultAlias is the database alias used when nothing routes elsewhere.
const DefaultAlias = "default"

// Router picks the database alias a model's reads go to.
type Router interface {
	DBForRead(m *Model) string
}

// RouterFunc adapts a function to Router.
type RouterFunc func(m *Model) string

// DBForRead implements Router.
func (f RouterFunc) DBForRead(m *Model) string {
	alias := f(m)
	if alias == "" {
		return DefaultAlias
	}
	return alias
}

// DefaultRouter routes a model to its Database hint, or to DefaultAlias.
type DefaultRouter struct{}

// DBForRead implements Router.
func (DefaultRouter) DBForRead(m *Model) string {
	if m.Database != "" {
		return m.Database
	}
	return DefaultAlias
}
