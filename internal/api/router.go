package api

import (
	"net/http"

	"github.com/davidahmann/roomkey/internal/metrics"
)

// NewRouter mounts the gateway routes. limiter and m may be nil.
func NewRouter(handler *Handler, limiter *RateLimiter, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	issue := limiter.Middleware(http.HandlerFunc(handler.IssueToken))
	mux.Handle("/v1/video-token", m.Middleware("/v1/video-token", issue))
	mux.Handle("/video-token", m.Middleware("/video-token", issue))
	mux.Handle("/v1/slack/interactions", m.Middleware("/v1/slack/interactions", http.HandlerFunc(handler.SlackInteractions)))
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", m.Handler())

	return withCORS(mux)
}
