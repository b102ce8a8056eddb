// Package api exposes the hour tick and cached state over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/orchestrator"
	"casino-sim-lab/internal/statecache"
	"casino-sim-lab/internal/storage"
)

// Ticker runs one hour tick.
type Ticker interface {
	RunHourTick(ctx context.Context) (*orchestrator.Summary, error)
}

// HandlerDeps are the collaborators of Handler.
type HandlerDeps struct {
	Ticker      Ticker
	HourLogs    storage.HourLogStore
	WorldCache  *statecache.Cache[domain.WorldState]
	CasinoCache *statecache.Cache[domain.CasinoState]
	Metrics     http.Handler // nil disables /metrics
	Logger      *slog.Logger
}

// Handler serves the HTTP endpoints.
type Handler struct {
	ticker      Ticker
	hourLogs    storage.HourLogStore
	worldCache  *statecache.Cache[domain.WorldState]
	casinoCache *statecache.Cache[domain.CasinoState]
	metrics     http.Handler
	logger      *slog.Logger
	startedAt   time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		ticker:      deps.Ticker,
		hourLogs:    deps.HourLogs,
		worldCache:  deps.WorldCache,
		casinoCache: deps.CasinoCache,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		startedAt:   time.Now(),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.worldCache == nil {
		h.worldCache = statecache.New[domain.WorldState]()
	}
	if h.casinoCache == nil {
		h.casinoCache = statecache.New[domain.CasinoState]()
	}
	return h
}

// Router builds the chi router with CORS for the external dashboard.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Route("/api", func(rr chi.Router) {
		rr.Post("/tick", h.Tick)
		rr.Get("/world", h.World)
		rr.Get("/casino", h.Casino)
		rr.Get("/hours/{hour}", h.Hour)
	})
	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
	return r
}

// Tick runs one hour tick synchronously.
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ticker.RunHourTick(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, orchestrator.ErrTickInProgress) {
			status = http.StatusConflict
		} else {
			h.logger.Error("api_tick_failed", slog.String("error", err.Error()))
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// World returns the cached world snapshot.
func (h *Handler) World(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.worldCache.Load()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "world state not loaded")
		return
	}
	writeJSON(w, http.StatusOK, toWorldResponse(snap.Value, snap.UpdatedAt))
}

// Casino returns the cached casino snapshot.
func (h *Handler) Casino(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.casinoCache.Load()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "casino state not loaded")
		return
	}
	writeJSON(w, http.StatusOK, toCasinoResponse(snap.Value, snap.UpdatedAt))
}

// Hour returns the audit row of one simulated hour.
func (h *Handler) Hour(w http.ResponseWriter, r *http.Request) {
	hour, err := strconv.ParseInt(chi.URLParam(r, "hour"), 10, 64)
	if err != nil || hour < 0 {
		writeError(w, http.StatusBadRequest, "hour must be a non-negative integer")
		return
	}

	entry, err := h.hourLogs.Get(r.Context(), hour)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "hour not found")
			return
		}
		h.logger.Error("api_hour_lookup_failed", slog.Int64("hour", hour), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toHourResponse(entry))
}

// Health reports liveness and the last cached clock.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	}
	if snap, ok := h.worldCache.Load(); ok {
		hour := snap.Value.CurrentHour
		resp.CurrentHour = &hour
		resp.LastUpdate = snap.UpdatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
