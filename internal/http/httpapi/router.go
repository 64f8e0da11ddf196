package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/http/handlers"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/middleware"
)

// Options configure the router beyond the handler container.
type Options struct {
	JWTSecret       string
	CallbackSecret  string
	AllowedOrigins  []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	SubmitPerMinute int
	// StaticDir, when set, is served under /static for locally archived media.
	StaticDir string
	Logger    zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/ads", func(r chi.Router) {
		r.With(middleware.CallbackSecret(opts.CallbackSecret, opts.Logger)).Post("/n8n-callback", app.AdCallback)

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.AuthJWT(opts.JWTSecret),
				middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
			)
			r.With(middleware.RateLimit(opts.SubmitPerMinute, time.Minute)).Post("/", app.CreateAd)
			r.Get("/", app.ListAds)
			r.Get("/{id}", app.GetAd)
			r.Post("/{id}/cancel", app.CancelAd)
			r.Delete("/{id}", app.DeleteAd)
			r.Get("/{id}/events", app.AdEvents)
		})
	})

	return r
}
