package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cyhdev/backend/internal/serverstate"
)

// RouterConfig holds everything NewRouter needs, following the teacher's
// pattern of a single config struct rather than a long constructor
// parameter list.
type RouterConfig struct {
	State  *serverstate.ServerState
	Logger *zap.Logger
}

// NewRouter builds the Chi router for every route this server exposes,
// all under /api/v1.
func NewRouter(cfg RouterConfig) http.Handler {
	h := &handlers{state: cfg.State, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", newMetricsHandler(cfg.State))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/blog", func(r chi.Router) {
			r.Get("/posts", h.listPosts)
			r.Post("/posts", h.createPost)
			r.Get("/search", h.searchPosts)
		})

		r.Route("/geo", func(r chi.Router) {
			r.Get("/lookup", h.geoLookup)
		})

		r.Route("/i18n", func(r chi.Router) {
			r.Get("/bundle", h.i18nBundle)
		})

		r.Route("/reference", func(r chi.Router) {
			r.Get("/countries", h.listCountries)
			r.Get("/languages", h.listLanguages)
		})

		r.Route("/wasm", func(r chi.Router) {
			r.Get("/{id}", h.getWasmBundle)
			r.Put("/{id}", h.putWasmBundle)
		})

		r.Route("/visitors", func(r chi.Router) {
			r.Post("/visit", h.recordVisit)
			r.Get("/map", h.visitorSnapshot)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/stats", h.systemStats)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)
			r.Get("/{id}", h.getSession)
			r.Delete("/{id}", h.deleteSession)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.registerUser)
		})
	})

	return r
}
