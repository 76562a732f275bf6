package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rust-community-pl/mqtt-consumer/internal/app"
)

// Handler serves the live display surface: an on-demand leaderboard and
// statistics export, plus a websocket stream pushed on every aggregate
// change.
type Handler struct {
	agg      *app.Aggregator
	upgrader websocket.Upgrader
}

func NewHandler(agg *app.Aggregator) *Handler {
	return &Handler{
		agg: agg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes mounts the display endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/leaderboard", h.serveLeaderboard)
	mux.HandleFunc("/statistics", h.serveStatistics)
	mux.HandleFunc("/ws", h.serveWS)
	return mux
}

func (h *Handler) serveLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, app.BuildLeaderboard(h.agg.Snapshot()))
}

func (h *Handler) serveStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.agg.Report())
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// serveWS upgrades the request and streams leaderboard snapshots until the
// client disconnects.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.agg.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		// Clients never send anything meaningful; the read loop only
		// detects disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case leaderboard, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "leaderboard", Payload: leaderboard}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
