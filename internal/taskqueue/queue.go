// Package taskqueue drains the external at-least-once task queue into
// dispatcher calls. Transport is a Redis list; failed messages are
// re-queued with an attempt counter and dead-lettered past the cap.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultQueueName   = "agency:tasks"
	defaultBlockWait   = 5 * time.Second
	defaultMaxAttempts = 5
)

// Message is one queued task.
type Message struct {
	TenantID string         `json:"tenant_id"`
	TaskType string         `json:"task_type"`
	Params   map[string]any `json:"params,omitempty"`
	Attempts int            `json:"attempts"`
}

// Handler processes one message. A nil return acks; an error re-queues
// until the attempt cap, then dead-letters.
type Handler func(ctx context.Context, msg *Message) error

// Queue is a Redis-list task queue.
type Queue struct {
	rdb         *redis.Client
	name        string
	wait        time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// QueueConfig holds queue settings.
type QueueConfig struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	MaxAttempts int    `json:"max_attempts"`
}

// NewQueue connects to Redis and returns a ready queue.
func NewQueue(cfg QueueConfig, logger *zap.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = defaultQueueName
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Queue{
		rdb:         rdb,
		name:        name,
		wait:        defaultBlockWait,
		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

// Publish pushes a message onto the queue.
func (q *Queue) Publish(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Consume runs workerCount goroutines draining the queue through handler
// until ctx is canceled. Messages for different tenants and agents may
// be processed concurrently; per-actor serialization happens downstream.
func (q *Queue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}
				values, err := q.rdb.BRPop(ctx, q.wait, q.name).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if errors.Is(err, redis.Nil) {
						continue
					}
					errCh <- fmt.Errorf("pop task: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				q.process(ctx, []byte(values[1]), handler)
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// verdict is the fate decided for one handled message.
type verdict int

const (
	verdictAck verdict = iota
	verdictRetry
	verdictDead
)

// decide classifies one handler outcome independent of transport. A
// failure bumps the message's attempt counter; the message dead-letters
// once the counter reaches the cap.
func decide(msg *Message, handlerErr error, maxAttempts int) verdict {
	if handlerErr == nil {
		return verdictAck
	}
	msg.Attempts++
	if msg.Attempts >= maxAttempts {
		return verdictDead
	}
	return verdictRetry
}

// process runs one raw payload through handler and carries out the
// decided verdict against Redis. Undecodable payloads go straight to
// the dead-letter list.
func (q *Queue) process(ctx context.Context, raw []byte, handler Handler) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		q.logger.Warn("undecodable task, dead-lettering", zap.Error(err))
		q.deadLetter(ctx, raw)
		return
	}

	err := handler(ctx, &msg)
	switch decide(&msg, err, q.maxAttempts) {
	case verdictAck:
	case verdictDead:
		q.logger.Error("task exhausted retries, dead-lettering",
			zap.String("tenant", msg.TenantID),
			zap.String("task", msg.TaskType),
			zap.Int("attempts", msg.Attempts),
			zap.Error(err))
		data, _ := json.Marshal(&msg)
		q.deadLetter(ctx, data)
	case verdictRetry:
		q.logger.Warn("task failed, re-queueing",
			zap.String("tenant", msg.TenantID),
			zap.String("task", msg.TaskType),
			zap.Int("attempt", msg.Attempts),
			zap.Error(err))
		data, _ := json.Marshal(&msg)
		if pushErr := q.rdb.RPush(ctx, q.name, data).Err(); pushErr != nil {
			q.logger.Error("re-queue failed", zap.Error(pushErr))
		}
	}
}

func (q *Queue) deadLetter(ctx context.Context, raw []byte) {
	if err := q.rdb.LPush(ctx, q.name+":dead", raw).Err(); err != nil {
		q.logger.Error("dead-letter push failed", zap.Error(err))
	}
}

// Close shuts down the Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}
