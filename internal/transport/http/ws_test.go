package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"eduquiz-service/internal/app"
	"eduquiz-service/internal/domain"
	"eduquiz-service/internal/infra/memory"
)

func TestRankingWebSocketStreamsRecomputes(t *testing.T) {
	catalog := memory.NewStaticCatalog(sampleQuizzes())
	store := memory.NewAttemptStore(catalog.CategoryOf)
	rankings := memory.NewRankingStore()
	reports := memory.NewReportStore()
	directory := memory.NewStaticDirectory(map[string]string{"u1": "Alice"})

	ranking := app.NewRankingService(store, rankings, directory)
	attempts := app.NewAttemptService(catalog, store, reports, ranking)
	wsHandler := NewRankingWSHandler(ranking)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/rankings", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/rankings?categoryId=cat-math"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The initial snapshot arrives before any completion.
	msg := readRanking(conn, t)
	if msg.Payload.CategoryID != "cat-math" || len(msg.Payload.Entries) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", msg.Payload)
	}

	ctx := context.Background()
	started, err := attempts.Start(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, pick := range []struct{ q, o string }{{"q1", "o2"}, {"q2", "t"}} {
		if _, err := attempts.SubmitAnswer(ctx, "u1", started.AttemptID, domain.AnswerSubmission{QuestionID: pick.q, OptionID: pick.o}); err != nil {
			t.Fatalf("submit %s: %v", pick.q, err)
		}
	}

	msg = readRanking(conn, t)
	if len(msg.Payload.Entries) != 1 {
		t.Fatalf("expected one ranked entry, got %+v", msg.Payload)
	}
	entry := msg.Payload.Entries[0]
	if entry.StudentName != "Alice" || entry.Rank != 1 || entry.TotalScore != 2 {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestRankingWebSocketRequiresCategory(t *testing.T) {
	catalog := memory.NewStaticCatalog(sampleQuizzes())
	store := memory.NewAttemptStore(catalog.CategoryOf)
	ranking := app.NewRankingService(store, memory.NewRankingStore(), memory.NewStaticDirectory(nil))

	req := httptest.NewRequest(http.MethodGet, "/ws/rankings", nil)
	rec := httptest.NewRecorder()
	NewRankingWSHandler(ranking).ServeWS(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without categoryId, got %d", rec.Code)
	}
}

func readRanking(conn *websocket.Conn, t *testing.T) rankingMessage {
	t.Helper()
	var msg rankingMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "ranking" {
		t.Fatalf("expected ranking message, got %s", msg.Type)
	}
	return msg
}
