package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/marshallshelly/pebble-bridge/pkg/logging"
	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
)

// connect is replaced in tests.
var connect = Connect

// ConnectFunc is called once for every alias when its engine connects.
type ConnectFunc func(ctx context.Context, alias string, engine *Engine)

// Engines holds one engine per database alias. Engines connect lazily on
// first use and are shared by every request.
type Engines struct {
	mu        sync.Mutex
	configs   map[string]Config
	engines   map[string]*Engine
	makers    map[string]*mapping.Sessionmaker
	listeners []ConnectFunc
	closed    bool
	log       *slog.Logger
}

// NewEngines creates a registry for the configured aliases.
func NewEngines(configs map[string]Config, log *slog.Logger) *Engines {
	if log == nil {
		log = logging.Discard()
	}
	c := make(map[string]Config, len(configs))
	for alias, cfg := range configs {
		c[alias] = cfg
	}
	return &Engines{
		configs: c,
		engines: make(map[string]*Engine),
		makers:  make(map[string]*mapping.Sessionmaker),
		log:     log,
	}
}

// OnConnect registers a listener for new connections.
func (e *Engines) OnConnect(fn ConnectFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Add registers an engine that is already connected. Listeners fire as if
// it had just connected.
func (e *Engines) Add(ctx context.Context, engine *Engine) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEnginesClosed
	}
	if _, ok := e.engines[engine.Alias()]; ok {
		e.mu.Unlock()
		return fmt.Errorf("engine for alias %q already registered", engine.Alias())
	}
	e.register(engine)
	listeners := append([]ConnectFunc(nil), e.listeners...)
	e.mu.Unlock()

	e.fire(ctx, engine, listeners)
	return nil
}

// Open returns the engine of alias, connecting it on first use.
func (e *Engines) Open(ctx context.Context, alias string) (*Engine, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEnginesClosed
	}
	if engine, ok := e.engines[alias]; ok {
		e.mu.Unlock()
		return engine, nil
	}
	cfg, ok := e.configs[alias]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
	}
	e.mu.Unlock()

	// Connect without the lock so connected aliases stay usable.
	engine, err := connect(ctx, alias, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", alias, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = engine.Close()
		return nil, ErrEnginesClosed
	}
	if existing, ok := e.engines[alias]; ok {
		// Lost a race with a concurrent Open of the same alias.
		e.mu.Unlock()
		_ = engine.Close()
		return existing, nil
	}
	e.register(engine)
	listeners := append([]ConnectFunc(nil), e.listeners...)
	e.mu.Unlock()

	e.log.Info("database connected",
		slog.String("alias", alias),
		slog.String("driver", engine.Driver()))
	// Listeners run unlocked so they can open sessions on this alias.
	e.fire(ctx, engine, listeners)
	return engine, nil
}

func (e *Engines) register(engine *Engine) {
	e.engines[engine.Alias()] = engine
	e.makers[engine.Alias()] = mapping.NewSessionmaker(engine)
}

func (e *Engines) fire(ctx context.Context, engine *Engine, listeners []ConnectFunc) {
	for _, fn := range listeners {
		fn(ctx, engine.Alias(), engine)
	}
}

// Sessionmaker returns the session factory of alias, connecting it on
// first use.
func (e *Engines) Sessionmaker(ctx context.Context, alias string) (*mapping.Sessionmaker, error) {
	if _, err := e.Open(ctx, alias); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.makers[alias], nil
}

// Aliases returns every alias, configured or added, sorted.
func (e *Engines) Aliases() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]bool, len(e.configs)+len(e.engines))
	for alias := range e.configs {
		seen[alias] = true
	}
	for alias := range e.engines {
		seen[alias] = true
	}
	out := make([]string, 0, len(seen))
	for alias := range seen {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Close closes every connected engine.
func (e *Engines) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for alias, engine := range e.engines {
		if err := engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", alias, err))
		}
	}
	e.engines = make(map[string]*Engine)
	e.makers = make(map[string]*mapping.Sessionmaker)
	e.closed = true
	return errors.Join(errs...)
}
