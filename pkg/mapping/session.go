package mapping

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Rows iterates over a result set.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// Conn is the database a session runs statements on.
type Conn interface {
	Dialect() Dialect
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// Sessionmaker creates sessions bound to one connection.
type Sessionmaker struct {
	conn Conn
}

// NewSessionmaker creates a factory for sessions on conn.
func NewSessionmaker(conn Conn) *Sessionmaker {
	return &Sessionmaker{conn: conn}
}

// New opens a session.
func (sm *Sessionmaker) New() *Session {
	return &Session{id: uuid.New(), conn: sm.conn}
}

// Session is a unit of work on one connection. A session is not safe for
// concurrent use; each request or worker owns its own.
type Session struct {
	id     uuid.UUID
	conn   Conn
	mu     sync.Mutex
	closed bool
}

// ID identifies the session instance.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Conn returns the connection the session runs on.
func (s *Session) Conn() Conn {
	return s.conn
}

// Query starts a query over classes and columns. The first entity
// determines the FROM table.
func (s *Session) Query(entities ...any) *Query {
	return newQuery(s, entities)
}

// Insert writes one row of cls. Values are keyed by column name and pass
// through the column types' bind processors.
func (s *Session) Insert(ctx context.Context, cls *Class, values map[string]any) error {
	if err := s.check(); err != nil {
		return err
	}
	if cls.Table == nil {
		return fmt.Errorf("%s: %w", cls.Name, ErrNotMapped)
	}
	names := make([]string, 0, len(values))
	for name := range values {
		if !cls.Table.Has(name) {
			return fmt.Errorf("%s: %w: %s", cls.Table.Name, ErrUnknownColumn, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	c := &compiler{dialect: s.conn.Dialect()}
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	for i, name := range names {
		ph, err := c.bind(cls.Table.C(name), values[name])
		if err != nil {
			return err
		}
		cols[i] = quote(name)
		marks[i] = ph
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(cls.Table.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
	_, err := s.conn.Exec(ctx, sql, c.args...)
	return err
}

// Close releases the session. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) check() error {
	if s.Closed() {
		return ErrSessionClosed
	}
	return nil
}
