package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the public API routes.
func NewRouter(webhookHandler *WebhookHandler, notifyHandler *NotifyHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhooks/whatsapp/{provider_name}", webhookHandler.HandleIncoming)

	r.Route("/notify", func(r chi.Router) {
		r.Post("/send", notifyHandler.HandleSend)
		r.Post("/template", notifyHandler.HandleTemplate)
	})

	return r
}
