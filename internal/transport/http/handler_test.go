package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rust-community-pl/mqtt-consumer/internal/app"
	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

func testAggregator(t *testing.T) *app.Aggregator {
	t.Helper()
	bank, err := domain.BuildBank([]domain.QuestionRecord{
		{
			ID:      "q1",
			Content: "Pick one",
			Answers: domain.AnswersRecord{
				Choices: map[int]string{0: "a", 1: "b"},
				Correct: domain.CorrectRecord{Index: 1, Text: "b"},
			},
		},
	})
	if err != nil {
		t.Fatalf("build bank: %v", err)
	}
	return app.NewAggregator(bank)
}

func TestLeaderboardEndpoint(t *testing.T) {
	agg := testAggregator(t)
	agg.Record(domain.Answer{DeviceID: "aa:aa:aa:aa:aa:aa", QuestionID: "q1", Choice: 1})

	server := httptest.NewServer(NewHandler(agg).Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/leaderboard")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	defer resp.Body.Close()

	var items []app.LeaderboardItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].DeviceID != "aa:aa:aa:aa:aa:aa" || items[0].TotalCorrectAnswers != 1 {
		t.Fatalf("unexpected leaderboard %+v", items)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	agg := testAggregator(t)
	agg.Record(domain.Answer{DeviceID: "aa:aa:aa:aa:aa:aa", QuestionID: "q1", Choice: 0})

	server := httptest.NewServer(NewHandler(agg).Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/statistics")
	if err != nil {
		t.Fatalf("get statistics: %v", err)
	}
	defer resp.Body.Close()

	var report map[string]app.DeviceReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	tallies, ok := report["aa:aa:aa:aa:aa:aa"]
	if !ok || tallies.TotalAnswers != 1 || tallies.TotalCorrectAnswers != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestWebSocketStreamsLeaderboard(t *testing.T) {
	agg := testAggregator(t)

	server := httptest.NewServer(NewHandler(agg).Routes())
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial (empty) snapshot first.
	if items := readLeaderboard(t, conn); len(items) != 0 {
		t.Fatalf("expected empty initial leaderboard, got %+v", items)
	}

	agg.Record(domain.Answer{DeviceID: "aa:aa:aa:aa:aa:aa", QuestionID: "q1", Choice: 1})

	items := readLeaderboard(t, conn)
	if len(items) != 1 || items[0].TotalCorrectAnswers != 1 {
		t.Fatalf("expected updated leaderboard, got %+v", items)
	}
}

func readLeaderboard(t *testing.T, conn *websocket.Conn) []app.LeaderboardItem {
	t.Helper()
	var msg struct {
		Type    string                `json:"type"`
		Payload []app.LeaderboardItem `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "leaderboard" {
		t.Fatalf("expected leaderboard message, got %s", msg.Type)
	}
	return msg.Payload
}
