// Package handlers serves a read-only JSON view of the conversion ledger.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/felo/eml-to-txt/internal/config"
	"github.com/felo/eml-to-txt/internal/db"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db  *db.DB
	cfg *config.Config
}

// New creates a new Handlers instance
func New(database *db.DB, cfg *config.Config) *Handlers {
	return &Handlers{
		db:  database,
		cfg: cfg,
	}
}

// Router returns the routes of the ledger browser
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/", h.Summary)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.ViewRun)
	r.Get("/conversions", h.ListConversions)
	r.Get("/conversions/{id}", h.ViewConversion)
	r.Get("/conversions/{id}/text", h.ConversionText)
	r.Get("/attachments/{id}/download", h.DownloadAttachment)

	return r
}

// requestLogger logs client requests.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("module", "web").Str("remote", r.RemoteAddr).Str("proto", r.Proto).
			Str("method", r.Method).Str("path", r.RequestURI).Msg("Request")
		next.ServeHTTP(w, r)
	})
}

// renderJSON writes data as the JSON response body
func renderJSON(w http.ResponseWriter, r *http.Request, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Expires", "-1")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Str("module", "web").Str("path", r.RequestURI).Err(err).Msg("Failed to encode response")
	}
}

// serverError logs err and replies with a generic message
func serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log.Error().Str("module", "web").Str("path", r.RequestURI).Err(err).Msg(msg)
	http.Error(w, msg, http.StatusInternalServerError)
}

// idParam parses the {id} URL parameter
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// pageParams reads limit and offset from the query string
func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
		limit = min(parsed, maxLimit)
	}
	if parsed, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && parsed > 0 {
		offset = parsed
	}
	return limit, offset
}
