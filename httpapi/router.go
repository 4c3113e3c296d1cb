// Package httpapi serves the backup operations over HTTP.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/dbbackup/service"
)

type RouterParams struct {
	Service *service.Service
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// RateLimit is the number of requests per minute and client address
	// accepted by the routes creating, restoring or deleting backups and
	// saving settings. Zero disables the limit.
	RateLimit int
	Logger    zerolog.Logger
}

func NewRouter(params RouterParams) http.Handler {
	h := &handler{
		svc:    params.Service,
		logger: params.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	limit := h.rateLimit(params.RateLimit)

	r.Route("/backups", func(r chi.Router) {
		r.Get("/", h.listBackups)
		r.Get("/{id}", h.getBackup)

		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/", h.createBackup)
			r.Post("/cleanup", h.cleanupBackups)
			r.Put("/{id}", h.restoreBackup)
			r.Delete("/{id}", h.deleteBackup)
		})
	})
	r.Get("/settings", h.getSettings)
	r.With(limit).Put("/settings", h.saveSettings)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics)
	}
	return r
}

type handler struct {
	svc    *service.Service
	logger zerolog.Logger
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startTime := time.Now()
		next.ServeHTTP(ww, r)

		h.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Float64("seconds", time.Since(startTime).Seconds()).
			Msg("http request")
	})
}

func (h *handler) rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.write(w, http.StatusTooManyRequests, response{
				Status: "error",
				Error:  &apiError{Code: "RATE_LIMITED", Message: "Too many requests, try again later."},
			})
		}),
	)
}

// errInvalidBody is returned for request bodies that cannot be decoded.
var errInvalidBody = errors.New("invalid request body")
