package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-bridge/cmd/pebble-bridge/output"
	"github.com/marshallshelly/pebble-bridge/pkg/bridge"
	"github.com/marshallshelly/pebble-bridge/pkg/logging"
	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/middleware"
	"github.com/marshallshelly/pebble-bridge/pkg/runtime"
	"github.com/marshallshelly/pebble-bridge/pkg/session"
)

var (
	// Serve flags
	listenAddr   string
	createTables bool
)

const defaultLimit = 100

// serveCmd serves the mapped classes over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve <path>",
	Short: "Serve mapped models as a read-only JSON API",
	Long: `Bind the models under path, connect the databases from the config file and
serve a read-only JSON API over the mapped classes.

Routes:
  GET /tables                      tables and their columns
  GET /models/{name}?limit=n       rows of a model
  GET /models/{name}/count         number of rows of a model

Examples:
  pebble-bridge serve ./internal/models --addr :8080
  pebble-bridge serve ./internal/models --create-tables`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(args[0])
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&createTables, "create-tables", false, "Create missing tables on every database before serving")
}

func runServe(path string) error {
	cfg, log, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	if len(cfg.Databases) == 0 {
		return fmt.Errorf("no databases configured; set DATABASE_URL or add databases to the config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, n, err := prepareBridge(ctx, path, cfg, log)
	if err != nil {
		return err
	}
	output.Success("Bound %d models", n)

	engines := runtime.NewEngines(cfg.Engines(), logging.Component(log, "engines"))
	engines.OnConnect(session.WarmOnConnect)
	defer func() { _ = engines.Close() }()

	if createTables {
		for _, alias := range cfg.Aliases() {
			engine, err := engines.Open(ctx, alias)
			if err != nil {
				return err
			}
			if err := b.MetaData().CreateAll(ctx, engine); err != nil {
				return err
			}
			output.Success("Tables created on %s", alias)
		}
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           newRouter(b, engines, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	output.Info("Listening on %s", listenAddr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(b *bridge.Bridge, opener session.Opener, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Handler(opener, logging.Component(log, "http")))
	r.Use(chimw.SetHeader("Content-Type", "application/json"))

	h := &handlers{bridge: b, log: log}
	r.Get("/tables", h.listTables)
	r.Get("/models/{name}", h.listRows)
	r.Get("/models/{name}/count", h.countRows)
	return r
}

type handlers struct {
	bridge *bridge.Bridge
	log    *slog.Logger
}

func (h *handlers) listTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bridge.Describe().Tables)
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) (*mapping.Query, bool) {
	name := chi.URLParam(r, "name")
	cls, ok := h.bridge.Class(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown model %q", name))
		return nil, false
	}
	q, err := cls.Query(r.Context())
	if err != nil {
		h.log.Error("failed to open query", slog.String("model", name), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return nil, false
	}
	return q, true
}

func (h *handlers) listRows(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	q, ok := h.query(w, r)
	if !ok {
		return
	}
	records, err := q.Limit(limit).All(r.Context())
	if err != nil {
		h.log.Error("query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		rows[i] = rec.Values
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) countRows(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}
	n, err := q.Count(r.Context())
	if err != nil {
		h.log.Error("count failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "count failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
