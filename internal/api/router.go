package api

import (
	"context"
	"net/http"
	"time"

	"github.com/example/ewaste-exchange/internal/api/middleware"
	"github.com/example/ewaste-exchange/internal/api/respond"
	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/logger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxRequestBytes = 64 << 20
	healthTimeout   = 2 * time.Second
)

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Handlers *Handlers
	Tokens   middleware.TokenVerifier
	// Idempotency is nil when Redis is not configured.
	Idempotency middleware.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Metrics     *middleware.HTTPMetrics
	Health      map[string]Pinger
	Log         *logger.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	authn := middleware.Authenticate(cfg.Tokens, log)
	userOnly := middleware.RequireRole(log, string(account.RoleUser))
	recyclerOnly := middleware.RequireRole(log, string(account.RoleRecycler))
	idempotent := middleware.Idempotency(cfg.Idempotency, log)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(log),
		middleware.Recoverer(log),
		middleware.Logging(log, cfg.Metrics),
		chimw.RequestSize(maxRequestBytes),
	)

	r.Get("/healthz", healthz(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.With(authn).Post("/logout", h.Logout)
		r.With(authn).Get("/me", h.Me)
	})

	r.Get("/recyclers", h.ListRecyclers)

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Put("/accounts/me", h.UpdateProfile)
		r.Put("/accounts/me/password", h.ChangePassword)
		r.Put("/accounts/me/images", h.UploadAccountImages)

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", h.ListPosts)
			r.With(userOnly, idempotent).Post("/", h.CreatePost)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetPost)
				r.Post("/messages", h.AddMessage)
				r.Post("/offers", h.AddOffer)
				r.Post("/status", h.UpdateStatus)
				r.Post("/comments", h.AddComment)
				r.Post("/finalize", h.FinalizePrice)

				r.Group(func(r chi.Router) {
					r.Use(userOnly)
					r.Post("/accept-ai-price", h.AcceptAIPrice)
					r.Post("/select-recycler", h.SelectRecycler)
					r.With(idempotent).Post("/requests", h.SendRequest)
				})
			})
		})

		r.Route("/recycler", func(r chi.Router) {
			r.Use(recyclerOnly)
			r.Get("/requests", h.ListRecyclerRequests)
			r.Post("/requests/{id}/respond", h.RespondToRequest)
			r.Post("/requests/{id}/read", h.MarkRequestRead)
			r.Post("/posts/{id}/finalize", h.RecyclerFinalizePrice)
			r.Get("/earnings", h.RecyclerEarnings)
		})
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(deps))}
		status := http.StatusOK
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		respond.JSON(w, status, resp)
	}
}
