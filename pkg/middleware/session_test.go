package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/runtime"
	"github.com/marshallshelly/pebble-bridge/pkg/session"
)

type stubConn struct{}

func (stubConn) Dialect() mapping.Dialect { return mapping.SQLite }
func (stubConn) Query(context.Context, string, ...any) (mapping.Rows, error) {
	return nil, runtime.ErrEnginesClosed
}
func (stubConn) Exec(context.Context, string, ...any) (int64, error) { return 0, nil }

type stubOpener struct{}

func (stubOpener) Sessionmaker(context.Context, string) (*mapping.Sessionmaker, error) {
	return mapping.NewSessionmaker(stubConn{}), nil
}

func TestHandler_ClosesSessionsOnResponse(t *testing.T) {
	var opened []*mapping.Session

	r := chi.NewRouter()
	r.Use(Handler(stubOpener{}, nil))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		store, ok := session.FromContext(r.Context())
		require.True(t, ok)
		for _, alias := range []string{"default", "replica"} {
			sess, err := store.Get(r.Context(), alias)
			require.NoError(t, err)
			opened = append(opened, sess)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, opened, 2)
	for _, sess := range opened {
		assert.True(t, sess.Closed())
	}
}

func TestHandler_EachRequestGetsItsOwnStore(t *testing.T) {
	var stores []*session.Store
	h := Handler(stubOpener{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, _ := session.FromContext(r.Context())
		stores = append(stores, store)
	}))

	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	require.Len(t, stores, 2)
	assert.NotSame(t, stores[0], stores[1])
}

func TestHandler_ClosesSessionsOnPanic(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	var opened *mapping.Session
	h := Handler(stubOpener{}, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, _ := session.FromContext(r.Context())
		opened, _ = store.Get(r.Context(), "default")
		panic("boom")
	}))

	assert.PanicsWithValue(t, "boom", func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders", nil))
	})
	require.NotNil(t, opened)
	assert.True(t, opened.Closed())
	assert.Contains(t, logs.String(), "closing sessions after panic")
	assert.Contains(t, logs.String(), "/orders")
}

func TestCloseSession_Hooks(t *testing.T) {
	hook := &CloseSession{}

	t.Run("without a store", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		assert.Equal(t, http.ResponseWriter(rec), hook.ProcessResponse(req, rec))
		assert.False(t, hook.ProcessException(req, "boom"))
	})

	t.Run("response passes through", func(t *testing.T) {
		store := session.NewStore(stubOpener{})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(session.WithStore(req.Context(), store))
		sess, err := store.Get(req.Context(), "default")
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		assert.Same(t, rec, hook.ProcessResponse(req, rec))
		assert.True(t, sess.Closed())
	})
}
