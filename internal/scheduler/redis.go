package scheduler

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	tasksKey    = "taplist:scheduler:due"
	payloadsKey = "taplist:scheduler:payloads"
)

type envelope struct {
	Payload  []byte `json:"payload"`
	Attempts int    `json:"attempts"`
}

// Redis is a durable one-shot timer. Tasks live in a sorted set scored by
// fire time with payloads in a hash, so scheduled work survives process
// restarts. The dispatcher claims due tasks via ZREM: whichever process wins
// the removal owns the dispatch.
type Redis struct {
	client  *redis.Client
	poll    time.Duration
	handler Handler
	logger  *zap.Logger
}

// NewRedis builds the scheduler around an existing client.
func NewRedis(client *redis.Client, poll time.Duration, logger *zap.Logger) *Redis {
	if poll <= 0 {
		poll = time.Second
	}
	return &Redis{client: client, poll: poll, logger: logger}
}

// Handle registers the dispatch handler. Must be called before Run.
func (r *Redis) Handle(h Handler) {
	r.handler = h
}

// Schedule stores the task; a later fire time for the same key replaces the
// earlier one.
func (r *Redis) Schedule(ctx context.Context, key string, when time.Time, payload []byte) error {
	env, err := json.Marshal(envelope{Payload: payload})
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, tasksKey, redis.Z{Score: float64(when.UnixMilli()), Member: key})
	pipe.HSet(ctx, payloadsKey, key, env)
	_, err = pipe.Exec(ctx)
	return err
}

// Run polls for due tasks until ctx is cancelled.
func (r *Redis) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.dispatchDue(ctx)
		}
	}
}

func (r *Redis) dispatchDue(ctx context.Context) {
	now := time.Now().UTC()
	keys, err := r.client.ZRangeByScore(ctx, tasksKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatScore(now),
		Count: 100,
	}).Result()
	if err != nil {
		r.logger.Warn("scheduler poll failed", zap.Error(err))
		return
	}

	for _, key := range keys {
		removed, err := r.client.ZRem(ctx, tasksKey, key).Result()
		if err != nil {
			r.logger.Warn("scheduler claim failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if removed == 0 {
			// Another process claimed it first.
			continue
		}
		r.dispatch(ctx, key)
	}
}

func (r *Redis) dispatch(ctx context.Context, key string) {
	raw, err := r.client.HGet(ctx, payloadsKey, key).Result()
	if err != nil && err != redis.Nil {
		r.logger.Warn("scheduler payload fetch failed", zap.String("key", key), zap.Error(err))
		return
	}
	var env envelope
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			r.logger.Warn("scheduler payload malformed", zap.String("key", key), zap.Error(err))
		}
	}

	if r.handler == nil {
		r.logger.Error("scheduler has no handler registered", zap.String("key", key))
		return
	}

	if err := r.handler(ctx, key, env.Payload); err != nil {
		env.Attempts++
		if env.Attempts >= MaxAttempts {
			r.logger.Error("scheduler task dropped after retries",
				zap.String("key", key),
				zap.Int("attempts", env.Attempts),
				zap.Error(err))
			r.client.HDel(ctx, payloadsKey, key)
			return
		}
		r.logger.Warn("scheduler task failed, redelivering",
			zap.String("key", key),
			zap.Int("attempts", env.Attempts),
			zap.Error(err))
		r.requeue(ctx, key, env)
		return
	}

	r.client.HDel(ctx, payloadsKey, key)
}

func (r *Redis) requeue(ctx context.Context, key string, env envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("scheduler requeue encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	when := time.Now().UTC().Add(RetryBackoff)
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, tasksKey, redis.Z{Score: float64(when.UnixMilli()), Member: key})
	pipe.HSet(ctx, payloadsKey, key, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("scheduler requeue failed", zap.String("key", key), zap.Error(err))
	}
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
