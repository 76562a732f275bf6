package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rust-community-pl/mqtt-consumer/internal/app"
)

func TestPublishDeviceWritesHash(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	publisher := NewStatsPublisher(client, time.Minute)

	snapshot := app.DeviceSnapshot{
		DeviceID:            "aa:bb:cc:dd:ee:ff",
		TotalAnswers:        4,
		TotalCorrectAnswers: 3,
	}
	if err := publisher.PublishDevice(context.Background(), snapshot); err != nil {
		t.Fatalf("publish: %v", err)
	}

	key := "quiz:stats:aa:bb:cc:dd:ee:ff"
	if got := mr.HGet(key, "total_answers"); got != "4" {
		t.Fatalf("expected total_answers=4, got %q", got)
	}
	if got := mr.HGet(key, "total_correct_answers"); got != "3" {
		t.Fatalf("expected total_correct_answers=3, got %q", got)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected a TTL on the stats key, got %v", ttl)
	}
}

func TestPublishLeaderboardWritesJSON(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	publisher := NewStatsPublisher(client, 0)

	items := []app.LeaderboardItem{
		{DeviceID: "aa:bb:cc:dd:ee:ff", TotalAnswers: 2, TotalCorrectAnswers: 1},
	}
	if err := publisher.PublishLeaderboard(context.Background(), items); err != nil {
		t.Fatalf("publish: %v", err)
	}

	raw, err := mr.Get("quiz:leaderboard")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	var decoded []app.LeaderboardItem
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 1 || decoded[0].DeviceID != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("unexpected leaderboard %+v", decoded)
	}
}
