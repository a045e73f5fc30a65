package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/quizward/quizward/internal/app"
	"github.com/quizward/quizward/internal/domain"
)

// FeedHandler streams leaderboard snapshots over a websocket, one message
// per change, for dashboards and overlays.
type FeedHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewFeedHandler(service *app.GameService) *FeedHandler {
	return &FeedHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string             `json:"type"`
	Payload domain.Leaderboard `json:"payload"`
}

// ServeFeed upgrades the request and forwards leaderboard updates until the
// client goes away.
func (h *FeedHandler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context())
	if err != nil {
		log.Printf("ws subscribe failed: %v", err)
		return
	}
	defer cancel()

	// Reads are discarded, but the read loop notices a dropped client.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "leaderboard", Payload: update}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-readerDone:
			return
		}
	}
}
