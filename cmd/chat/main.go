// Package main implements the TruckFinder chat front end. It translates free
// text into structured engine instructions via an LLM and streams the outcome
// as server-sent events. The engine core only ever sees typed instructions.
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
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/domain"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/inventory"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/query"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/session"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/llm"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/mid"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/resilience"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	port := envOr("PORT", "8090")
	csvPath := envOr("INVENTORY_CSV", "data/trekkers.csv")

	store, warnings, err := inventory.NewStoreFromFile(csvPath, inventory.LoadConfig{})
	if err != nil {
		logger.Error("inventory load failed", "err", err)
		os.Exit(1)
	}
	logger.Info("inventory loaded", "records", store.Len(), "skipped", len(warnings))

	extractor := llm.New(llm.Config{
		BaseURL: os.Getenv("LLM_BASE_URL"),
		APIKey:  envOr("LLM_API_KEY", "dummy"),
		Model:   envOr("LLM_MODEL", "gpt-4o-mini"),
	}, store.Brands())

	exec := query.NewExecutor(store)
	app := &chatApp{
		store:     store,
		exec:      exec,
		sessions:  session.NewManager(exec, session.NewMemoryStore()),
		extractor: extractor,
		log:       logger,
		history:   make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", app.handleChat)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(envOr("CORS_ORIGIN", "*")),
	)

	srv := &http.Server{Addr: ":" + port, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("chat API starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}

// extractor lets tests stub the model client.
type extractor interface {
	Extract(ctx context.Context, history []string, text string) (llm.Instruction, error)
}

type chatApp struct {
	store     *inventory.Store
	exec      *query.Executor
	sessions  *session.Manager
	extractor extractor
	log       *slog.Logger

	mu      sync.Mutex
	history map[string][]string
}

const historyDepth = 6

// remember appends a turn and returns the prior history for the session.
func (a *chatApp) remember(sessionID, text string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	prior := a.history[sessionID]
	kept := append(append([]string(nil), prior...), text)
	if len(kept) > historyDepth {
		kept = kept[len(kept)-historyDepth:]
	}
	a.history[sessionID] = kept
	return prior
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (a *chatApp) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		http.Error(w, `{"error":"message required"}`, http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, `{"error":"session_id required"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	stream := &sseWriter{w: w, flusher: flusher}

	ctx := r.Context()
	prior := a.remember(req.SessionID, req.Message)

	in, err := a.extractor.Extract(ctx, prior, req.Message)
	if err != nil {
		a.log.Error("instruction extraction failed", "err", err)
		stream.event("error", errPayload(extractionErrorMessage(err)))
		return
	}
	stream.event("instruction", in)

	switch in.Action {
	case llm.ActionSearch:
		a.runSearch(ctx, stream, req.SessionID, in)
	case llm.ActionCompare:
		a.runCompare(ctx, stream, req.SessionID, in)
	case llm.ActionDetails:
		a.runDetails(ctx, stream, req.SessionID, in)
	}
	stream.event("done", map[string]string{})
}

func (a *chatApp) runSearch(ctx context.Context, stream *sseWriter, sessionID string, in llm.Instruction) {
	delta, err := in.Delta()
	if err != nil {
		stream.event("error", errPayload(err.Error()))
		return
	}
	out, err := a.sessions.Apply(ctx, sessionID, delta, session.Mode(in.Mode))
	if err != nil {
		stream.event("error", errPayload(err.Error()))
		return
	}
	summaries := make([]string, len(out.Result.Records))
	for i, rec := range out.Result.Records {
		summaries[i] = rec.Summary()
	}
	stream.event("results", map[string]any{
		"total_matches": out.Result.TotalMatches,
		"records":       out.Result.Records,
		"summaries":     summaries,
		"filter":        out.Filter,
	})
}

func (a *chatApp) runCompare(ctx context.Context, stream *sseWriter, sessionID string, in llm.Instruction) {
	ids := in.VehicleIDs
	if len(ids) == 0 {
		var err error
		ids, err = a.sessions.ResolveOrdinals(ctx, sessionID, in.Ordinals)
		if err != nil {
			stream.event("error", errPayload(err.Error()))
			return
		}
	}
	cmp, err := a.exec.Compare(ids)
	if err != nil {
		stream.event("error", errPayload(err.Error()))
		return
	}
	stream.event("comparison", cmp)
}

func (a *chatApp) runDetails(ctx context.Context, stream *sseWriter, sessionID string, in llm.Instruction) {
	var id int
	if in.VehicleID != nil {
		id = *in.VehicleID
	} else {
		ids, err := a.sessions.ResolveOrdinals(ctx, sessionID, in.Ordinals)
		if err != nil {
			stream.event("error", errPayload(err.Error()))
			return
		}
		id = ids[0]
	}
	rec, ok := a.store.ByID(id)
	if !ok {
		stream.event("error", errPayload(fmt.Sprintf("unknown vehicle id %d", id)))
		return
	}
	stream.event("vehicle", rec)
}

func extractionErrorMessage(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "assistant temporarily unavailable, please retry shortly"
	case errors.Is(err, llm.ErrBadInstruction),
		errors.Is(err, domain.ErrMalformedFilter),
		errors.Is(err, domain.ErrInvalidSortOrder),
		errors.Is(err, domain.ErrInvalidLimit):
		return "could not understand that request, please rephrase"
	default:
		return "assistant error"
	}
}

func errPayload(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// sseWriter serializes one JSON payload per server-sent event.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) event(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flusher.Flush()
}
