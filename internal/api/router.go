package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidahmann/agentgate/internal/auth"
)

// NewRouter mounts the gateway API. /healthz and /metrics skip
// authentication; everything under /v1 requires it.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	gatherer := h.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/tools", h.ListTools)
		r.Post("/tools/{name}/call", h.CallTool)

		r.Get("/approvals", h.ListApprovals)
		r.Get("/approvals/{id}", h.GetApproval)
		r.Post("/approvals/{id}/approve", h.Approve)
		r.Post("/approvals/{id}/reject", h.Reject)
		r.Post("/approvals/{id}/execute", h.Execute)

		r.Get("/audit", h.ListAudit)
		r.Get("/audit/verify", h.VerifyAudit)
		r.Get("/history", h.History)

		r.Get("/killswitch", h.KillSwitchStatus)
		r.Post("/killswitch", h.SetKillSwitch)

		r.Get("/policy", h.PolicyInfo)
		r.Post("/policy/reload", h.ReloadPolicy)
		r.Post("/policy/evaluate", h.EvaluatePolicy)
	})
	return r
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authn := h.Auth
		if authn == nil {
			authn = auth.DevTokenAuthenticator{}
		}
		caller, err := authn.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Reason: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}
