// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"booking_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamCalendarSync = "calendar:sync"

	deadLetterPrefix = "dlq:"
)

// streamMaxLen is the approximate XADD trim length.
const streamMaxLen = 10000

// RedisProducer implements out.MessageProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, now: time.Now}
}

// envelope is the stream payload; Type routes it inside the worker.
type envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// PublishCalendarSync publishes a push-triggered sync pass for one business.
func (p *RedisProducer) PublishCalendarSync(ctx context.Context, job *out.CalendarSyncJob) error {
	if job == nil || job.BusinessID == "" {
		return fmt.Errorf("calendar sync job requires a business id")
	}
	return p.publish(ctx, StreamCalendarSync, JobTypeCalendarSync, job)
}

// publish publishes a job to a stream using go-redis.
func (p *RedisProducer) publish(ctx context.Context, stream, jobType string, job interface{}) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	data, err := json.Marshal(&envelope{Type: jobType, Payload: payload, CreatedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}

// Job types carried in the envelope.
const (
	JobTypeCalendarSync = "calendar.sync"
)

// DecodeEnvelope splits a stream payload into its job type and raw job body.
func DecodeEnvelope(data []byte) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("invalid envelope: missing type")
	}
	return env.Type, env.Payload, nil
}

// Ensure RedisProducer implements out.MessageProducer
var _ out.MessageProducer = (*RedisProducer)(nil)
