package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cameroncuttingedge/chess_relay/metrics"
	"github.com/cameroncuttingedge/chess_relay/registry"
	"github.com/cameroncuttingedge/chess_relay/websocket"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type RouterConfig struct {
	AllowedOrigins []string
	MetricsEnabled bool
	MetricsPath    string
}

// NewRouter mounts the websocket endpoint and the read-only HTTP routes.
func NewRouter(b *Broker, hub *websocket.Hub, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	r.Handle("/ws", hub.Handler(b)).Methods("GET")
	r.HandleFunc("/sessions/{sessionID}", b.getSessionHandler).Methods("GET")
	r.HandleFunc("/healthz", healthHandler).Methods("GET")
	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, metrics.Handler()).Methods("GET")
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
	)
	return handlers.CombinedLoggingHandler(log.Logger, cors(r))
}

func (b *Broker) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	info, err := b.registry.Snapshot(sessionID)
	if errors.Is(err, registry.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonData, err := json.Marshal(info)
	if err != nil {
		http.Error(w, "Failed to marshal session to JSON", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(jsonData)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}
