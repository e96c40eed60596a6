// Package session caches one mapping session per database alias for the
// lifetime of a request or worker. A Store travels in the context; it is
// never shared between concurrent requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/runtime"
)

// Opener hands out the session factory of an alias. runtime.Engines
// implements it.
type Opener interface {
	Sessionmaker(ctx context.Context, alias string) (*mapping.Sessionmaker, error)
}

// Store holds the open sessions of one request or worker, at most one per
// alias.
type Store struct {
	opener   Opener
	mu       sync.Mutex
	sessions map[string]*mapping.Session
}

// NewStore creates an empty store opening sessions through opener.
func NewStore(opener Opener) *Store {
	return &Store{
		opener:   opener,
		sessions: make(map[string]*mapping.Session),
	}
}

// Get returns the session of alias, opening one if none is open. Repeated
// calls return the same session until it is closed.
func (s *Store) Get(ctx context.Context, alias string) (*mapping.Session, error) {
	if sess, ok := s.Peek(alias); ok {
		return sess, nil
	}

	// Opening may connect the alias and run connect listeners that call
	// back into this store, so the lock is not held here.
	maker, err := s.opener.Sessionmaker(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", alias, err)
	}
	fresh := maker.New()

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[alias]; ok && !sess.Closed() {
		_ = fresh.Close()
		return sess, nil
	}
	s.sessions[alias] = fresh
	return fresh, nil
}

// Peek returns the open session of alias without opening one.
func (s *Store) Peek(alias string) (*mapping.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[alias]
	if !ok || sess.Closed() {
		return nil, false
	}
	return sess, true
}

// Close closes the session of alias. Closing an alias with no open session
// is a no-op.
func (s *Store) Close(alias string) error {
	s.mu.Lock()
	sess, ok := s.sessions[alias]
	delete(s.sessions, alias)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.Close()
}

// CloseAll closes every open session.
func (s *Store) CloseAll() error {
	var errs []error
	for _, alias := range s.Aliases() {
		if err := s.Close(alias); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Aliases returns the aliases with a cached session, sorted.
func (s *Store) Aliases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for alias := range s.sessions {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

type storeKey struct{}

// WithStore returns a context carrying s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store carried by ctx.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	return s, ok && s != nil
}

// Source resolves sessions from the store in the query's context. It is
// the session source of every mapped class.
type Source struct{}

// Session implements mapping.SessionSource.
func (Source) Session(ctx context.Context, alias string) (*mapping.Session, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, runtime.ErrNoSessionStore
	}
	return s.Get(ctx, alias)
}

// WarmOnConnect opens a session for a newly connected alias in the store
// of ctx, if there is one. Register it with runtime.Engines.OnConnect.
func WarmOnConnect(ctx context.Context, alias string, _ *runtime.Engine) {
	if s, ok := FromContext(ctx); ok {
		_, _ = s.Get(ctx, alias)
	}
}
