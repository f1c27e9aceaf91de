// Package notify announces finished sync runs so readers of the store can
// refresh cached views.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ndewijer/brokerage-sync/internal/model"
)

// DefaultChannel is the pub/sub channel run events are published on.
const DefaultChannel = "brokersync:runs"

// Publisher announces a run that reached a terminal state.
type Publisher interface {
	Publish(ctx context.Context, run model.SyncRun) error
}

// RunEvent is the JSON payload published for each finished run.
type RunEvent struct {
	RunID       string           `json:"runId"`
	Status      model.SyncStatus `json:"status"`
	Counts      model.SyncCounts `json:"counts"`
	Error       *string          `json:"error,omitempty"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// NewRunEvent builds the event for run.
func NewRunEvent(run model.SyncRun) RunEvent {
	return RunEvent{
		RunID:       run.ID,
		Status:      run.Status,
		Counts:      run.Counts,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

// Nop discards every event. It is used when no Redis URL is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, model.SyncRun) error { return nil }

// RedisPublisher publishes run events on a Redis channel and records the
// latest event under "<channel>:latest".
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to the Redis server at redisURL
// (redis://[user:pass@]host:port/db).
func NewRedisPublisher(redisURL, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return NewRedisPublisherWithClient(redis.NewClient(opts), channel), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, run model.SyncRun) error {
	payload, err := json.Marshal(NewRunEvent(run))
	if err != nil {
		return fmt.Errorf("failed to encode run event: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.channel+":latest", payload, 0)
	pipe.Publish(ctx, p.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
