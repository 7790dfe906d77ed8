// Package api provides the HTTP server for the family star tracker: the
// scope-partitioned sync endpoint, family bootstrap, the achievements
// catalog and a per-family live balance feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/star-achiever/star/internal/catalog"
	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/syncproto"
)

// Version is reported on /api/version.
const Version = "0.1.0"

// FamilyStore is the authoritative store behind the sync endpoint.
type FamilyStore interface {
	Load(ctx context.Context, familyID string, q syncproto.LoadQuery) (*syncproto.Snapshot, error)
	Save(ctx context.Context, familyID string, scope syncproto.Scope, payload any) (*syncproto.SaveResult, error)
	CreateFamily(ctx context.Context, id, userName string, cat *catalog.Catalog) error
	Counts(ctx context.Context) (families, transactions int64, err error)
}

// Server is the HTTP API server.
type Server struct {
	store          FamilyStore
	cat            *catalog.Catalog
	hub            *FamilyHub
	log            *slog.Logger
	metricsEnabled bool
	requestTimeout time.Duration
}

// NewServer creates a new API server. A nil catalog means the embedded one.
func NewServer(store FamilyStore, cat *catalog.Catalog, log *slog.Logger) *Server {
	if cat == nil {
		cat = catalog.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:          store,
		cat:            cat,
		hub:            NewFamilyHub(),
		log:            log.With("component", "api"),
		requestTimeout: 30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetRequestTimeout bounds every non-streaming request.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// Hub returns the live family event hub.
func (s *Server) Hub() *FamilyHub { return s.hub }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// The event stream is long-lived and sits outside the request timeout.
	r.Get("/api/events", s.hub.HandleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})
		r.Get("/api/status", s.handleStatus)

		// The sync endpoint answers on both paths; older clients post to the root.
		for _, path := range []string{"/", "/api/sync"} {
			r.Get(path, s.handleLoad)
			r.Post(path, s.handleSave)
		}

		r.Post("/api/families", s.handleCreateFamily)
		r.Get("/api/achievements", s.handleAchievements)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	families, txs, err := s.store.Counts(r.Context())
	if err != nil {
		s.log.Error("status counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "running",
		"families":     families,
		"transactions": txs,
		"subscribers":  s.hub.ClientCount(),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// statusFor maps a domain error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingFamilyID),
		errors.Is(err, domain.ErrMissingScope),
		errors.Is(err, domain.ErrUnknownScope),
		errors.Is(err, domain.ErrBadPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrFamilyNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFamilyExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware lets the browser client call the API from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
