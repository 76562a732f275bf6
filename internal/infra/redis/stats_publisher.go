package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rust-community-pl/mqtt-consumer/internal/app"
)

// StatsPublisher mirrors the live aggregate into Redis for external display
// tooling. Layout:
//
//	HSET quiz:stats:{deviceID} total_answers N total_correct_answers M
//	SET  quiz:leaderboard {JSON array of ranked items}
type StatsPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatsPublisher(client *redis.Client, ttl time.Duration) *StatsPublisher {
	return &StatsPublisher{client: client, ttl: ttl}
}

func (p *StatsPublisher) PublishDevice(ctx context.Context, snapshot app.DeviceSnapshot) error {
	key := p.deviceKey(snapshot.DeviceID)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key,
		"total_answers", snapshot.TotalAnswers,
		"total_correct_answers", snapshot.TotalCorrectAnswers,
	)
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish device stats: %w", err)
	}
	return nil
}

// PublishLeaderboard writes the full ranked board in one key, replacing the
// previous snapshot.
func (p *StatsPublisher) PublishLeaderboard(ctx context.Context, items []app.LeaderboardItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	if err := p.client.Set(ctx, "quiz:leaderboard", data, p.ttl).Err(); err != nil {
		return fmt.Errorf("publish leaderboard: %w", err)
	}
	return nil
}

func (p *StatsPublisher) deviceKey(deviceID string) string {
	return "quiz:stats:" + deviceID
}
