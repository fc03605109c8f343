package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"eduquiz-service/internal/app"
	"eduquiz-service/internal/domain"
)

// RankingWSHandler streams ranking snapshots for one category over a
// websocket as recomputes land.
type RankingWSHandler struct {
	ranking  *app.RankingService
	upgrader websocket.Upgrader
}

func NewRankingWSHandler(ranking *app.RankingService) *RankingWSHandler {
	return &RankingWSHandler{
		ranking: ranking,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type rankingMessage struct {
	Type    string            `json:"type"`
	Payload domain.RankedList `json:"payload"`
}

// ServeWS upgrades the request and forwards ranking snapshots until the
// client disconnects.
func (h *RankingWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	categoryID := r.URL.Query().Get("categoryId")
	if categoryID == "" {
		http.Error(w, "missing categoryId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	initial, err := h.ranking.GetRanking(r.Context(), categoryID, "")
	if err != nil {
		_ = conn.WriteJSON(errorResponse{Error: err.Error()})
		return
	}
	if err := conn.WriteJSON(rankingMessage{Type: "ranking", Payload: initial}); err != nil {
		return
	}

	updates, cancel := h.ranking.Feed().Subscribe(categoryID)
	defer cancel()

	// Drain inbound frames so pings and closes are processed; the reader
	// unblocks the writer loop on disconnect.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
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
			if err := conn.WriteJSON(rankingMessage{Type: "ranking", Payload: update}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-disconnected:
			return
		}
	}
}
