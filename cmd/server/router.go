package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	httpmw "github.com/mihaimyh/fit4seniors/middleware/http"
	"github.com/mihaimyh/fit4seniors/pkg/api"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

type routerConfig struct {
	Manager        *entitlement.Manager
	API            *api.Handler
	Webhook        http.Handler
	MetricsHandler http.Handler
	Logger         zerolog.Logger
	// TrustProxy rewrites RemoteAddr from forwarding headers.
	TrustProxy bool
}

func newRouter(cfg routerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(accessLog(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(cfg.Manager))
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// Stripe calls the webhook server to server; it gets no CORS handling.
		if cfg.Webhook != nil {
			r.Method(http.MethodPost, "/webhook", cfg.Webhook)
		} else {
			r.Post("/webhook", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "configuration_error"})
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(api.CORS)
			r.HandleFunc("/create-checkout", cfg.API.CreateCheckout)
			r.HandleFunc("/get-entitlement", cfg.API.GetEntitlement)
			r.HandleFunc("/create-portal", cfg.API.CreatePortal)

			r.Route("/premium", func(r chi.Router) {
				r.Use(cfg.API.RequireUser)
				r.Use(httpmw.RequirePremium(httpmw.Config{
					Manager:   cfg.Manager,
					GetUserID: api.UserIDFromRequest,
				}))
				r.Get("/status", premiumStatus)
			})
		})
	})

	return r
}

func premiumStatus(w http.ResponseWriter, r *http.Request) {
	ent, _ := httpmw.EntitlementFromContext(r.Context())
	writeJSON(w, http.StatusOK, api.EntitlementResponse{
		IsPremium:        ent.IsPremium,
		CurrentPeriodEnd: ent.CurrentPeriodEnd,
	})
}

func healthz(manager *entitlement.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// accessLog writes one zerolog line per request, tagged with chi's request id.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			reqLogger := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

			next.ServeHTTP(ww, r.WithContext(reqLogger.WithContext(r.Context())))

			event := reqLogger.Info()
			if ww.Status() >= http.StatusInternalServerError {
				event = reqLogger.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
