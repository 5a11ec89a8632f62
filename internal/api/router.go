package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/ulule/limiter/v3"

	"github.com/dodoapp/lullaby-backend/internal/api/handlers"
	"github.com/dodoapp/lullaby-backend/internal/api/middleware"
	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/generation"
	"github.com/dodoapp/lullaby-backend/internal/metrics"
	"github.com/dodoapp/lullaby-backend/internal/store"
)

// Deps is everything the HTTP surface needs. Idempotency, RateLimitStore and
// Health entries may be nil; a shared RateLimitStore keeps counters consistent
// across replicas.
type Deps struct {
	Store          store.Store
	Voices         *generation.VoiceService
	Lullabies      *generation.LullabyService
	Metrics        *metrics.Metrics
	Idempotency    middleware.IdemStore
	RateLimitStore limiter.Store
	Health         map[string]handlers.Pinger
	HTTP           config.HTTPConfig
}

type Router struct {
	mux  *chi.Mux
	deps Deps
	rl   *middleware.RateLimiter
}

func NewRouter(d Deps) (*Router, error) {
	rt := &Router{mux: chi.NewRouter(), deps: d}
	if d.HTTP.RateLimit != "" && d.HTTP.RateLimit != "off" {
		rl, err := middleware.NewRateLimiter(d.HTTP.RateLimit, d.RateLimitStore)
		if err != nil {
			return nil, err
		}
		rt.rl = rl
	}
	return rt, nil
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.deps.HTTP.CORSOrigins))
	if rt.rl != nil {
		r.Use(rt.rl.Limit)
	}

	health := handlers.NewHealthHandler(rt.deps.Health)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())

	// The mobile client calls /api/...; the bare paths stay for tooling.
	r.Group(rt.routes)
	r.Route("/api", rt.routes)

	return r
}

func (rt *Router) routes(r chi.Router) {
	if rt.deps.Idempotency != nil {
		ttl := rt.deps.HTTP.IdempotencyTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		r.Use(middleware.Idempotency(rt.deps.Idempotency, ttl))
	}

	voiceH := handlers.NewVoiceHandler(rt.deps.Voices)
	r.Route("/voice/profile", func(r chi.Router) {
		r.Post("/", voiceH.Create)
		r.Get("/{id}", voiceH.Get)
	})

	childH := handlers.NewChildHandler(rt.deps.Store)
	r.Route("/children", func(r chi.Router) {
		r.Post("/", childH.Create)
		r.Get("/", childH.List)
	})

	lullabyH := handlers.NewLullabyHandler(rt.deps.Lullabies)
	r.Route("/lullabies", func(r chi.Router) {
		r.Post("/", lullabyH.Create)
		r.Get("/", lullabyH.List)
		r.Get("/{id}", lullabyH.Get)
	})
}
