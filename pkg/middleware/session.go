// Package middleware closes the sessions a request opened when the request
// ends, normally or by panic.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/marshallshelly/pebble-bridge/pkg/logging"
	"github.com/marshallshelly/pebble-bridge/pkg/session"
)

// CloseSession is the request hook pair closing a request's sessions.
type CloseSession struct {
	Log *slog.Logger
}

// ProcessResponse closes every session of the request and returns resp
// unchanged.
func (c *CloseSession) ProcessResponse(r *http.Request, resp http.ResponseWriter) http.ResponseWriter {
	c.close(r)
	return resp
}

// ProcessException closes every session of the request. It always reports
// false: the panic is not handled here.
func (c *CloseSession) ProcessException(r *http.Request, recovered any) bool {
	c.logger().Warn("closing sessions after panic",
		slog.String("path", r.URL.Path),
		slog.Any("panic", recovered))
	c.close(r)
	return false
}

func (c *CloseSession) close(r *http.Request) {
	store, ok := session.FromContext(r.Context())
	if !ok {
		return
	}
	if err := store.CloseAll(); err != nil {
		c.logger().Error("failed to close sessions", slog.Any("error", err))
	}
}

func (c *CloseSession) logger() *slog.Logger {
	if c.Log == nil {
		return logging.Discard()
	}
	return c.Log
}

// Handler returns net/http middleware, usable with chi's Router.Use, that
// installs a fresh session store for each request and closes its sessions
// afterwards. Panics are re-raised after the sessions are closed.
func Handler(opener session.Opener, log *slog.Logger) func(http.Handler) http.Handler {
	hook := &CloseSession{Log: log}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := session.NewStore(opener)
			r = r.WithContext(session.WithStore(r.Context(), store))

			defer func() {
				if rec := recover(); rec != nil {
					if !hook.ProcessException(r, rec) {
						panic(rec)
					}
				}
			}()

			next.ServeHTTP(w, r)
			hook.ProcessResponse(r, w)
		})
	}
}
