// Package main implements the TruckFinder API server.
package main

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

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/domain"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/events"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/inventory"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/query"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/session"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/metrics"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	InventoryPath string
	PostgresDSN   string
	NATSURL       string
	CORSOrigin    string
	RateLimitRPS  float64
	RateBurst     int
}

func loadConfig() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		InventoryPath: envOr("INVENTORY_CSV", "data/trekkers.csv"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		NATSURL:       os.Getenv("NATS_URL"),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		RateLimitRPS:  envFloat("RATE_LIMIT_RPS", 20),
		RateBurst:     envInt("RATE_LIMIT_BURST", 40),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Load inventory ---
	store, warnings, err := inventory.NewStoreFromFile(cfg.InventoryPath, inventory.LoadConfig{})
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	for _, warn := range warnings {
		logger.Warn("inventory row skipped", "line", warn.Line, "reason", warn.Reason)
	}
	logger.Info("inventory loaded", "records", store.Len(), "skipped", len(warnings))

	// --- Session store (Postgres when configured, in-memory otherwise) ---
	var sessStore session.Store = session.NewMemoryStore()
	if cfg.PostgresDSN != "" {
		pg, err := session.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("session store: %w", err)
		}
		defer pg.Close()
		sessStore = pg
		logger.Info("using postgres session store")
	}

	// --- Event stream (optional) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("truckfinder-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		logger.Info("event stream connected", "url", cfg.NATSURL)
	}

	exec := query.NewExecutor(store)
	srv := newServer(
		store,
		exec,
		session.NewManager(exec, sessStore),
		events.NewPublisher(nc, logger),
		logger,
	)

	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("truckfinder-api"),
		mid.RateLimit(cfg.RateLimitRPS, cfg.RateBurst),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// --- Server ---

type server struct {
	store    *inventory.Store
	exec     *query.Executor
	sessions *session.Manager
	events   *events.Publisher
	log      *slog.Logger

	reg            *metrics.Registry
	searchCount    *metrics.Counter
	compareCount   *metrics.Counter
	searchDuration *metrics.Histogram
}

func newServer(store *inventory.Store, exec *query.Executor, sessions *session.Manager,
	pub *events.Publisher, logger *slog.Logger) *server {

	reg := metrics.New()
	return &server{
		store:        store,
		exec:         exec,
		sessions:     sessions,
		events:       pub,
		log:          logger,
		reg:          reg,
		searchCount:  reg.Counter("truckfinder_searches_total", "Executed search turns."),
		compareCount: reg.Counter("truckfinder_compares_total", "Executed comparisons."),
		searchDuration: reg.Histogram("truckfinder_search_duration_seconds",
			"Search execution latency.", nil),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/compare", s.handleCompare)
	mux.HandleFunc("GET /api/vehicles/{id}", s.handleVehicle)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleReset)
	mux.Handle("GET /metrics", s.reg.Handler())
	return mux
}

// --- Handlers ---

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"records": s.store.Len(),
	})
}

// SearchRequest is the JSON body for POST /api/search. Filters is the raw
// filter delta; absent fields stay untouched in refine mode and explicit
// nulls remove an accumulated constraint.
type SearchRequest struct {
	SessionID string          `json:"session_id"`
	Mode      string          `json:"mode"`
	Filters   json.RawMessage `json:"filters"`
}

// SearchResponse is the JSON response for POST /api/search.
type SearchResponse struct {
	SessionID    string             `json:"session_id"`
	Results      []inventory.Record `json:"results"`
	TotalMatches int                `json:"total_matches"`
	Filter       domain.Filter      `json:"filter"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.Mode == "" {
		req.Mode = string(session.ModeRefine)
	}

	delta := domain.Filter{}
	if len(req.Filters) > 0 {
		var err error
		delta, err = domain.ParseDelta(req.Filters)
		if err != nil {
			s.writeTypedError(w, err)
			return
		}
	}

	out, err := s.sessions.Apply(r.Context(), req.SessionID, delta, session.Mode(req.Mode))
	if err != nil {
		s.writeTypedError(w, err)
		return
	}

	s.searchCount.Inc()
	s.searchDuration.Since(started)
	s.events.Search(r.Context(), events.SearchEvent{
		SessionID:    req.SessionID,
		Mode:         req.Mode,
		FilterJSON:   marshalFilter(out.Filter),
		TotalMatches: out.Result.TotalMatches,
		Returned:     len(out.Result.Records),
		At:           time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, SearchResponse{
		SessionID:    req.SessionID,
		Results:      out.Result.Records,
		TotalMatches: out.Result.TotalMatches,
		Filter:       out.Filter,
	})
}

// CompareRequest is the JSON body for POST /api/compare. Either VehicleIDs or
// SessionID plus Ordinals; explicit ids win when both are present.
type CompareRequest struct {
	SessionID  string `json:"session_id"`
	VehicleIDs []int  `json:"vehicle_ids"`
	Ordinals   []int  `json:"ordinals"`
}

func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ids := req.VehicleIDs
	if len(ids) == 0 && len(req.Ordinals) > 0 {
		if req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "ordinals require a session_id")
			return
		}
		var err error
		ids, err = s.sessions.ResolveOrdinals(r.Context(), req.SessionID, req.Ordinals)
		if err != nil {
			s.writeTypedError(w, err)
			return
		}
	}

	cmp, err := s.exec.Compare(ids)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}

	s.compareCount.Inc()
	s.events.Compare(r.Context(), events.CompareEvent{
		SessionID:  req.SessionID,
		VehicleIDs: ids,
		At:         time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, cmp)
}

func (s *server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "vehicle id must be numeric")
		return
	}
	rec, ok := s.store.ByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown vehicle id %d", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Reset(r.Context(), id); err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "reset"})
}

// --- Error mapping ---

// writeTypedError maps the engine's typed errors onto HTTP statuses. Anything
// unrecognized is a 500 with the detail kept out of the response body.
func (s *server) writeTypedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMalformedFilter),
		errors.Is(err, domain.ErrInvalidSortOrder),
		errors.Is(err, domain.ErrInvalidLimit),
		errors.Is(err, session.ErrInvalidMode),
		errors.Is(err, query.ErrComparisonSize):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrOrdinalOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, query.ErrUnknownRecord):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func marshalFilter(f domain.Filter) string {
	b, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(b)
}
