// Package server wires HTTP handlers into a router for the chat relay.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-relay/internal/upload"
)

// NewRouter configures the relay's HTTP surface: the chat page, the WebSocket
// endpoint, health and metrics, and static serving of persisted uploads.
func NewRouter(h *Hub, uploadDir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", IndexHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.ServeWS)
	r.HandleFunc("/healthz", HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix(upload.URLPrefix).Handler(
		http.StripPrefix(upload.URLPrefix, http.FileServer(http.Dir(uploadDir))),
	).Methods(http.MethodGet)
	return r
}
