// Package queue implements the job queues connecting the event poller,
// indexing worker, and classification worker. Jobs are JSON envelopes in a
// Redis list; failed jobs park in a per-queue sorted set scored by their next
// delivery time and are moved back when due.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is the envelope around a job payload.
type Message struct {
	ID       string          `json:"id"`
	Attempts int             `json:"attempts"`
	Body     json.RawMessage `json:"body"`
}

// Queue is one named Redis-backed queue.
type Queue struct {
	rdb    *redis.Client
	name   string
	logger *zap.Logger

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Options tune redelivery behavior.
type Options struct {
	MaxAttempts int           // bounded redeliveries; default 5
	BaseDelay   time.Duration // first retry delay; default 5s
	MaxDelay    time.Duration // backoff cap; default 5m
}

// New creates a queue named name on the given Redis client.
func New(rdb *redis.Client, name string, opts Options, logger *zap.Logger) *Queue {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = 5 * time.Second
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 5 * time.Minute
	}
	return &Queue{
		rdb:         rdb,
		name:        name,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
	}
}

func (q *Queue) readyKey() string   { return "queue:" + q.name }
func (q *Queue) delayedKey() string { return "queue:" + q.name + ":delayed" }

// Enqueue appends a job carrying the JSON encoding of body.
func (q *Queue) Enqueue(ctx context.Context, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Body: raw}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.readyKey(), data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", q.name, err)
	}
	return nil
}

// Len returns the number of ready jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.readyKey()).Result()
}

// Handler processes one decoded job body. Returning an error negatively acks
// the message for redelivery with exponential backoff.
type Handler func(ctx context.Context, msg *Message) error

// ErrDrop tells the consumer to discard the message without redelivery.
// Handlers wrap permanent failures (validation, not-found) in it.
var ErrDrop = errors.New("queue: drop message")

// Consume runs handler for each job until ctx is canceled. deadline bounds
// each job's processing time; concurrency workers run in parallel.
func (q *Queue) Consume(ctx context.Context, concurrency int, deadline time.Duration, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if deadline <= 0 {
		deadline = time.Minute
	}

	go q.moveDueLoop(ctx)

	for i := 0; i < concurrency; i++ {
		go q.worker(ctx, deadline, handler)
	}
}

func (q *Queue) worker(ctx context.Context, deadline time.Duration, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := q.rdb.BRPop(ctx, 2*time.Second, q.readyKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.logger.Warn("queue pop failed", zap.String("queue", q.name), zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.logger.Warn("discarding undecodable job", zap.String("queue", q.name), zap.Error(err))
			continue
		}

		jobCtx, cancel := context.WithTimeout(ctx, deadline)
		err = handler(jobCtx, &msg)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, ErrDrop):
			q.logger.Info("job dropped",
				zap.String("queue", q.name),
				zap.String("job_id", msg.ID),
				zap.Error(err),
			)
		default:
			q.nack(ctx, &msg, err)
		}
	}
}

// nack schedules the message for redelivery, or drops it once attempts are
// exhausted.
func (q *Queue) nack(ctx context.Context, msg *Message, cause error) {
	msg.Attempts++
	if msg.Attempts >= q.maxAttempts {
		q.logger.Error("job failed permanently",
			zap.String("queue", q.name),
			zap.String("job_id", msg.ID),
			zap.Int("attempts", msg.Attempts),
			zap.Error(cause),
		)
		return
	}

	delay := q.backoff(msg.Attempts)
	data, err := json.Marshal(msg)
	if err != nil {
		q.logger.Error("re-encode job", zap.String("job_id", msg.ID), zap.Error(err))
		return
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: due, Member: data}).Err(); err != nil {
		q.logger.Error("park delayed job", zap.String("job_id", msg.ID), zap.Error(err))
		return
	}
	q.logger.Warn("job redelivery scheduled",
		zap.String("queue", q.name),
		zap.String("job_id", msg.ID),
		zap.Int("attempt", msg.Attempts),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
}

func (q *Queue) backoff(attempt int) time.Duration {
	d := time.Duration(float64(q.baseDelay) * math.Pow(2, float64(attempt-1)))
	if d > q.maxDelay {
		d = q.maxDelay
	}
	// Full jitter up to 25% keeps redeliveries from clustering.
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

// moveDueLoop shifts due delayed jobs back onto the ready list once a second.
func (q *Queue) moveDueLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.MoveDue(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn("move due jobs", zap.String("queue", q.name), zap.Error(err))
			}
		}
	}
}

// MoveDue promotes all delayed jobs whose delivery time has passed.
func (q *Queue) MoveDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: now,
	}).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), m).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another consumer claimed it
		}
		if err := q.rdb.LPush(ctx, q.readyKey(), m).Err(); err != nil {
			return err
		}
	}
	return nil
}
