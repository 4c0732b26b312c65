package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vastuchitra/internal/http/handlers"
	"vastuchitra/internal/infra"
	"vastuchitra/internal/middleware"
)

// NewRouter wires the middleware chain and the API surface. The generate
// endpoint holds the connection through the whole pipeline, so the overall
// request timeout bounds it.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
	)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))
		r.Post("/v1/images/generate", app.GenerateImage)
		r.Get("/v1/images", app.ListImages)
		r.Get("/v1/quota", app.Quota)
	})

	return r
}
