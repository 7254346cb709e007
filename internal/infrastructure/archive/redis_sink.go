package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// transcriptTTL bounds how long an unconsumed transcript waits for the
// external persistence worker to pick it up.
const transcriptTTL = 7 * 24 * time.Hour

// RedisSink hands finished chat/caption lines to the external persistence
// pipeline through Redis lists, one list per meeting.
type RedisSink struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

func NewRedisSink(cfg RedisConfig, logger *zap.SugaredLogger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisSink{
		client: client,
		logger: logger.With("component", "redis_sink"),
	}, nil
}

func transcriptKey(id domain.MeetingID) string {
	return "telemeet:transcript:" + string(id)
}

func (s *RedisSink) Append(ctx context.Context, entry ports.TranscriptEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}

	key := transcriptKey(entry.Meeting)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

// MeetingEnded publishes the terminal notification consumed by the external
// persistence worker, which drains the transcript list afterwards.
func (s *RedisSink) MeetingEnded(ctx context.Context, id domain.MeetingID, endedAt time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"meeting_id": id,
		"ended_at":   endedAt,
	})
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, "telemeet:meeting-ended", payload).Err(); err != nil {
		return fmt.Errorf("publish meeting-ended: %w", err)
	}
	s.logger.Infow("meeting-ended published", "meeting_id", id)
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
