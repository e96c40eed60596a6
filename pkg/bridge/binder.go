package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
)

// Bridge binds a model set to the mapping layer. It is built once at
// startup; after Prepare returns, its metadata, mapper and cache are only
// read.
type Bridge struct {
	set      *model.Set
	md       *mapping.MetaData
	mapper   *mapping.Mapper
	cache    *Cache
	types    TypeMap
	router   model.Router
	sessions mapping.SessionSource
	log      *slog.Logger

	mu       sync.Mutex
	prepared bool

	// What Prepare wrote, so it can be undone without touching entries
	// that others put into a shared registry or cache.
	tables    []string
	bound     map[*model.Model]*mapping.Class
	displaced map[string]*mapping.Class
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTypes merges extra type-name entries over the defaults.
func WithTypes(types TypeMap) Option {
	return func(b *Bridge) {
		b.types = b.types.Merge(types)
	}
}

// WithRouter sets the read-alias router. The default uses each model's
// Database hint.
func WithRouter(r model.Router) Option {
	return func(b *Bridge) {
		b.router = r
	}
}

// WithSessions sets the session source every class queries through.
func WithSessions(s mapping.SessionSource) Option {
	return func(b *Bridge) {
		b.sessions = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetaData synthesizes into an existing registry instead of a new one.
func WithMetaData(md *mapping.MetaData) Option {
	return func(b *Bridge) {
		b.md = md
	}
}

// WithCache registers classes into an existing cache.
func WithCache(c *Cache) Option {
	return func(b *Bridge) {
		b.cache = c
	}
}

// New creates a Bridge for set.
func New(set *model.Set, opts ...Option) *Bridge {
	b := &Bridge{
		set:    set,
		md:     mapping.NewMetaData(),
		mapper: mapping.NewMapper(),
		cache:  NewCache(),
		types:  DefaultTypes(),
		router: model.DefaultRouter{},
		log:    discard,

		bound:     make(map[*model.Model]*mapping.Class),
		displaced: make(map[string]*mapping.Class),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prepare synthesizes the tables, creates one class per model and then
// wires every relationship. Classes are all created before the first
// relationship is extracted, since relationships may point at any model.
// Models get their class only once every model is bound. On error Prepare
// removes everything it wrote, so it can be retried. Calling Prepare again
// after success is a no-op.
func (b *Bridge) Prepare(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prepared {
		return nil
	}

	if err := b.bind(ctx); err != nil {
		b.unbind()
		return err
	}

	b.prepared = true
	b.log.Info("models bound",
		slog.Int("tables", len(b.md.Names())),
		slog.Int("classes", len(b.bound)))
	return nil
}

func (b *Bridge) bind(ctx context.Context) error {
	if err := b.set.Resolve(); err != nil {
		return err
	}
	added, err := generateTables(b.md, b.set.AllModels(), b.types, b.log)
	b.tables = added
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	models := b.set.Models()
	for _, m := range models {
		table, ok := b.md.Table(m.Table)
		if !ok {
			return fmt.Errorf("model %s: %w: %s", m.Name, mapping.ErrUnknownTable, m.Table)
		}
		cls := &mapping.Class{
			Name:     m.Name,
			Table:    table,
			Alias:    b.router.DBForRead(m),
			Mixin:    m.Mixin,
			Sessions: b.sessions,
		}
		if prev, ok := b.cache.ByTable(m.Table); ok && !b.owns(prev) {
			if _, seen := b.displaced[m.Table]; !seen {
				b.displaced[m.Table] = prev
			}
		}
		b.cache.Put(m, cls)
		b.bound[m] = cls
	}

	for _, m := range models {
		props, err := extractRelationships(m, b.md, b.cache, b.log)
		if err != nil {
			return err
		}
		cls := b.bound[m]
		if err := b.mapper.Map(cls, cls.Table, props); err != nil {
			return fmt.Errorf("map %s: %w", m.Name, err)
		}
	}
	if err := b.mapper.Configure(); err != nil {
		return err
	}

	for m, cls := range b.bound {
		m.SA = cls
	}
	return nil
}

func (b *Bridge) owns(cls *mapping.Class) bool {
	for _, c := range b.bound {
		if c == cls {
			return true
		}
	}
	return false
}

// unbind removes the tables, cache entries and bindings this bridge wrote.
// Entries written by others, into a shared registry or cache, stay.
func (b *Bridge) unbind() {
	b.md.Remove(b.tables...)
	for m, cls := range b.bound {
		b.cache.Remove(m, cls)
		if m.SA == cls {
			m.SA = nil
		}
	}
	for table, cls := range b.displaced {
		if _, taken := b.cache.ByTable(table); !taken {
			b.cache.PutTable(table, cls)
		}
	}
	b.mapper.Reset()
	b.tables = nil
	b.bound = make(map[*model.Model]*mapping.Class)
	b.displaced = make(map[string]*mapping.Class)
}

// MetaData returns the table registry.
func (b *Bridge) MetaData() *mapping.MetaData {
	return b.md
}

// Mapper returns the mapper holding every bound class.
func (b *Bridge) Mapper() *mapping.Mapper {
	return b.mapper
}

// Cache returns the class cache.
func (b *Bridge) Cache() *Cache {
	return b.cache
}

// Models returns the declared models.
func (b *Bridge) Models() []*model.Model {
	return b.set.Models()
}

// Class returns the class bound to a model by object name.
func (b *Bridge) Class(name string) (*mapping.Class, bool) {
	m := b.set.Get(name)
	if m == nil {
		return nil, false
	}
	return b.cache.ByModel(m)
}

// ClassOf returns the class bound to the model declared by v's struct type.
func (b *Bridge) ClassOf(v any) (*mapping.Class, bool) {
	m := b.set.ByType(reflect.TypeOf(v))
	if m == nil {
		return nil, false
	}
	return b.cache.ByModel(m)
}

// Reset removes the tables, classes and bindings this bridge wrote so
// Prepare can run again. Only for tests; it must not race with queries.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbind()
	b.prepared = false
}
