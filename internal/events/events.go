// Package events carries trade grading notifications to downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

// TypeTradeGraded is the event type emitted after every graded submission.
const TypeTradeGraded = "trade_graded"

// GradeEvent describes one graded submission. Path is hit, miss or
// anonymous.
type GradeEvent struct {
	Type        string            `json:"type"`
	GradeID     string            `json:"grade_id,omitempty"`
	ShareCode   string            `json:"share_code,omitempty"`
	Fingerprint model.Fingerprint `json:"fingerprint"`
	UserID      string            `json:"user_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Sport       string            `json:"sport"`
	Path        string            `json:"path"`
	Grade       model.Grade       `json:"grade"`
	Timestamp   time.Time         `json:"timestamp"`
}

// StreamPublisher publishes grade events to Redis streams
type StreamPublisher struct {
	redis  *redis.Client
	maxLen int64
}

// NewStreamPublisher creates a new stream publisher. maxLen caps each
// stream approximately; zero leaves streams unbounded.
func NewStreamPublisher(redisClient *redis.Client, maxLen int64) *StreamPublisher {
	return &StreamPublisher{
		redis:  redisClient,
		maxLen: maxLen,
	}
}

// StreamKey returns the stream a sport's grade events go to.
// Stream key format: trades.graded.{sport}
func StreamKey(sport string) string {
	return fmt.Sprintf("trades.graded.%s", model.NormalizeSport(sport))
}

// PublishGrade appends ev to its sport's stream.
func (p *StreamPublisher) PublishGrade(ctx context.Context, ev GradeEvent) error {
	streamKey := StreamKey(ev.Sport)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("error marshaling grade event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data":        string(data),
			"fingerprint": string(ev.Fingerprint),
			"path":        ev.Path,
			"status":      string(ev.Grade.Status),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("error publishing to stream %s: %w", streamKey, err)
	}
	return nil
}
