//go:build integration
// +build integration

package pebblebridge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marshallshelly/pebble-bridge/pkg/bridge"
	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/middleware"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
	"github.com/marshallshelly/pebble-bridge/pkg/runtime"
	"github.com/marshallshelly/pebble-bridge/pkg/session"
)

type Genre int16

const (
	GenreFiction Genre = iota + 1
	GenreHistory
)

type Author struct {
	ID   int    `po:"id,primaryKey,serial"`
	Name string `po:"name,varchar(100)"`
}

type Book struct {
	ID     int     `po:"id,primaryKey,serial"`
	Title  string  `po:"title,varchar(255)"`
	Genre  Genre   `po:"genre"`
	Author *Author `po:"author,foreignKey,relatedName(books)"`
	Shelf  []Shelf `po:"shelves,manyToMany"`
}

type Shelf struct {
	ID    int    `po:"id,primaryKey,serial"`
	Label string `po:"label,varchar(50)"`
}

func init() {
	model.RegisterEnum(model.EnumOf(GenreFiction, GenreHistory))
}

// setupTestDB creates a PostgreSQL container and returns its connection string
func setupTestDB(t *testing.T) string {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return connStr
}

func prepareBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	set := model.NewSet()
	if err := set.Register(Author{}, Shelf{}, Book{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	b := bridge.New(set, bridge.WithSessions(session.Source{}))
	if err := b.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	return b
}

func TestIntegration_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	connStr := setupTestDB(t)

	// Both drivers talk to the same database; each run starts from fresh
	// tables.
	for _, driver := range []string{runtime.DriverPgx, runtime.DriverPostgres} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			b := prepareBridge(t)

			engines := runtime.NewEngines(map[string]runtime.Config{
				model.DefaultAlias: {Driver: driver, URL: connStr, MaxConns: 4},
			}, nil)
			defer engines.Close()

			engine, err := engines.Open(ctx, model.DefaultAlias)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if _, err := engine.Exec(ctx, `DROP TABLE IF EXISTS "book_shelves", "book", "shelf", "author"`); err != nil {
				t.Fatalf("Drop failed: %v", err)
			}
			if err := b.MetaData().CreateAll(ctx, engine); err != nil {
				t.Fatalf("CreateAll failed: %v", err)
			}

			store := session.NewStore(engines)
			ctx = session.WithStore(ctx, store)
			defer store.CloseAll()

			sess, err := store.Get(ctx, model.DefaultAlias)
			if err != nil {
				t.Fatalf("Get session failed: %v", err)
			}

			author, _ := b.Class("Author")
			book, _ := b.Class("Book")
			shelf, _ := b.Class("Shelf")

			mustInsert := func(cls *mapping.Class, values map[string]any) {
				t.Helper()
				if err := sess.Insert(ctx, cls, values); err != nil {
					t.Fatalf("Insert into %s failed: %v", cls.Name, err)
				}
			}
			mustInsert(author, map[string]any{"name": "Mary Beard"})
			mustInsert(author, map[string]any{"name": "Ursula K. Le Guin"})
			mustInsert(book, map[string]any{"title": "SPQR", "genre": GenreHistory, "author_id": 1})
			mustInsert(book, map[string]any{"title": "The Lathe of Heaven", "genre": GenreFiction, "author_id": 2})
			mustInsert(shelf, map[string]any{"label": "favourites"})
			if _, err := engine.Exec(ctx, `INSERT INTO "book_shelves" ("book_id", "shelf_id") VALUES (2, 1)`); err != nil {
				t.Fatalf("Insert into junction failed: %v", err)
			}

			t.Run("join and enum", func(t *testing.T) {
				q, err := book.Query(ctx)
				if err != nil {
					t.Fatalf("Query failed: %v", err)
				}
				rec, err := q.Join("author").
					Filter(mapping.Eq(author.C("name"), "Mary Beard")).
					First(ctx)
				if err != nil {
					t.Fatalf("First failed: %v", err)
				}
				if rec.Get("title") != "SPQR" {
					t.Errorf("expected SPQR, got %v", rec.Get("title"))
				}
				if rec.Get("genre") != GenreHistory {
					t.Errorf("expected GenreHistory, got %#v", rec.Get("genre"))
				}
			})

			t.Run("backref count", func(t *testing.T) {
				q, err := author.Query(ctx)
				if err != nil {
					t.Fatalf("Query failed: %v", err)
				}
				n, err := q.Join("books").Filter(mapping.Eq(book.C("genre"), GenreFiction)).Count(ctx)
				if err != nil {
					t.Fatalf("Count failed: %v", err)
				}
				if n != 1 {
					t.Errorf("expected 1 author of fiction, got %d", n)
				}
			})

			t.Run("many to many", func(t *testing.T) {
				q, err := shelf.Query(ctx, shelf, book.C("title"))
				if err != nil {
					t.Fatalf("Query failed: %v", err)
				}
				records, err := q.Join("book_set").All(ctx)
				if err != nil {
					t.Fatalf("All failed: %v", err)
				}
				if len(records) != 1 || records[0].Get("book.title") != "The Lathe of Heaven" {
					t.Errorf("unexpected shelf contents: %v", records)
				}
			})
		})
	}
}

func TestIntegration_RequestSessions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	connStr := setupTestDB(t)
	ctx := context.Background()
	b := prepareBridge(t)

	engines := runtime.NewEngines(map[string]runtime.Config{
		model.DefaultAlias: {Driver: runtime.DriverPgx, URL: connStr},
	}, nil)
	defer engines.Close()

	engine, err := engines.Open(ctx, model.DefaultAlias)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := b.MetaData().CreateAll(ctx, engine); err != nil {
		t.Fatalf("CreateAll failed: %v", err)
	}

	var opened []*mapping.Session
	r := chi.NewRouter()
	r.Use(middleware.Handler(engines, nil))
	r.Get("/authors/count", func(w http.ResponseWriter, r *http.Request) {
		author, _ := b.Class("Author")
		q, err := author.Query(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		n, err := q.Count(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		store, _ := session.FromContext(r.Context())
		sess, _ := store.Peek(author.Alias)
		opened = append(opened, sess)
		_ = json.NewEncoder(w).Encode(map[string]int64{"count": n})
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authors/count", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
		}
	}

	if len(opened) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(opened))
	}
	if opened[0].ID() == opened[1].ID() {
		t.Error("requests shared a session")
	}
	for _, sess := range opened {
		if !sess.Closed() {
			t.Errorf("session %s left open", sess.ID())
		}
	}
}
