package server

import (
	"net/http"

	"github.com/cloo-solutions/sheetrag/internal/api"
	"github.com/cloo-solutions/sheetrag/internal/api/handlers"
	"github.com/cloo-solutions/sheetrag/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	// AuthValidator guards every route except /health; nil disables auth.
	AuthValidator   middleware.AuthValidator
	MaxUploadBytes  int64
	IndexHandler    *handlers.IndexHandler
	WorkbookHandler *handlers.WorkbookHandler
	QueryHandler    *handlers.QueryHandler
	FilterHandler   *handlers.FilterHandler
}

const defaultMaxBodyBytes int64 = 5 * 1024 * 1024

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	uploadLimit := cfg.MaxUploadBytes
	if uploadLimit <= 0 {
		uploadLimit = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.With(middleware.MaxBodyBytes(uploadLimit)).Post("/workbook", cfg.WorkbookHandler.Upload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodyBytes(defaultMaxBodyBytes))

			r.Get("/status", cfg.IndexHandler.Status)
			r.Get("/workbook/url", cfg.WorkbookHandler.DownloadURL)

			r.Post("/index/rebuild", cfg.IndexHandler.Rebuild)
			r.Get("/index/jobs", cfg.IndexHandler.Jobs)
			r.Get("/index/jobs/{id}", cfg.IndexHandler.Job)
			r.Delete("/index", cfg.IndexHandler.Clear)

			r.Post("/query", cfg.QueryHandler.Query)
			r.Post("/search", cfg.QueryHandler.Search)
			r.Post("/filter/inlet", cfg.FilterHandler.Inlet)
		})
	})

	return r
}
