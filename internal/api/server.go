// Package api exposes the read-side query contract over HTTP/JSON.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/feed"
	"github.com/secwatch/secfeeds/internal/metrics"
)

// Config shapes the query contract.
type Config struct {
	// SourceNames is the fixed configured source set.
	SourceNames []string
	// KeySources are the defaults for the top-recent query.
	KeySources []string
	// TopLimit is the per-source limit for the top-recent query.
	TopLimit int
	// SourceLimit is the default limit for per-source listings.
	SourceLimit int
}

// Server wires HTTP handlers to the record reader.
type Server struct {
	router chi.Router
	reader feed.Reader
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(reader feed.Reader, cfg Config, logger *zap.Logger) *Server {
	if cfg.TopLimit <= 0 {
		cfg.TopLimit = 5
	}
	if cfg.SourceLimit <= 0 {
		cfg.SourceLimit = 50
	}
	s := &Server{
		reader: reader,
		cfg:    cfg,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sources", s.listSources)
		r.Get("/top", s.topRecent)
		r.Get("/sources/{source}/records", s.recentBySource)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sources": s.cfg.SourceNames})
}

func (s *Server) topRecent(w http.ResponseWriter, r *http.Request) {
	sources := s.cfg.KeySources
	if raw := r.URL.Query().Get("sources"); raw != "" {
		sources = splitSources(raw)
	}
	limit := s.cfg.TopLimit
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		limit = n
	}
	top, err := s.reader.TopRecent(r.Context(), sources, limit)
	if err != nil {
		s.logger.Error("top recent query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make(map[string][]recordResponse, len(top))
	for source, records := range top {
		out[source] = toResponses(records)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) recentBySource(w http.ResponseWriter, r *http.Request) {
	// Underscores stand in for spaces in source names, matching the
	// source page URLs the read side links to.
	source := strings.ReplaceAll(chi.URLParam(r, "source"), "_", " ")
	limit := s.cfg.SourceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.reader.RecentBySource(r.Context(), source, limit)
	if err != nil {
		s.logger.Error("source query failed",
			zap.String("source", source),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(records) == 0 {
		// An empty source gets a 404, not an empty success: it signals
		// the source may be broken rather than merely quiet.
		writeError(w, http.StatusNotFound, "no recent records for "+source)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":  source,
		"records": toResponses(records),
	})
}

// recordResponse is the JSON projection of a stored record.
type recordResponse struct {
	Title          string    `json:"title"`
	Link           string    `json:"link"`
	PubDate        time.Time `json:"pub_date"`
	Source         string    `json:"source"`
	Category       string    `json:"category"`
	Description    string    `json:"description,omitempty"`
	AdvisoryNumber string    `json:"advisory_number,omitempty"`
}

func toResponses(records []feed.Record) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse{
			Title:          rec.Title,
			Link:           rec.Link,
			PubDate:        rec.PublishedAt,
			Source:         rec.Source,
			Category:       string(rec.Category),
			Description:    rec.Description,
			AdvisoryNumber: rec.AdvisoryNumber,
		})
	}
	return out
}

func splitSources(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
