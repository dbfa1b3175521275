package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
)

const redisEventField = "event"

type RedisStreamOptions struct {
	Stream   string
	Group    string
	Consumer string
	// MinIdle is how long a delivery may stay unacknowledged before another
	// read claims it again.
	MinIdle time.Duration
	MaxLen  int64
	Batch   int64
}

// RedisStream is a feed over a Redis stream with a consumer group. Events are
// acknowledged only after the handler succeeds or fails permanently, so a
// crashed or failing consumer gets them back after MinIdle.
type RedisStream struct {
	client *redis.Client
	opts   RedisStreamOptions
	logger *slog.Logger
}

func NewRedisStream(client *redis.Client, opts RedisStreamOptions, logger *slog.Logger) *RedisStream {
	if opts.MinIdle <= 0 {
		opts.MinIdle = time.Minute
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = 100_000
	}
	if opts.Batch <= 0 {
		opts.Batch = 16
	}
	if opts.Consumer == "" {
		opts.Consumer = "worker"
	}
	return &RedisStream{client: client, opts: opts, logger: logger}
}

func (r *RedisStream) Publish(ctx context.Context, ev Event) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.opts.Stream,
		MaxLen: r.opts.MaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{redisEventField: string(data)},
	}).Err()
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, apperrors.CodeFeedUnavailable, "xadd", err)
	}
	return nil
}

func (r *RedisStream) Subscribe(ctx context.Context, h Handler) error {
	err := r.client.XGroupCreateMkStream(ctx, r.opts.Stream, r.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", r.opts.Group, err)
	}

	r.logger.Info("changefeed.redis.subscribed",
		"stream", r.opts.Stream,
		"group", r.opts.Group,
		"consumer", r.opts.Consumer,
	)

	for ctx.Err() == nil {
		claimed, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.opts.Stream,
			Group:    r.opts.Group,
			Consumer: r.opts.Consumer,
			MinIdle:  r.opts.MinIdle,
			Start:    "0-0",
			Count:    r.opts.Batch,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("changefeed.redis.autoclaim_failed", "error", err)
		}
		for _, msg := range claimed {
			r.handle(ctx, h, msg)
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.opts.Group,
			Consumer: r.opts.Consumer,
			Streams:  []string{r.opts.Stream, ">"},
			Count:    r.opts.Batch,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("changefeed.redis.read_failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				r.handle(ctx, h, msg)
			}
		}
	}
	return nil
}

func (r *RedisStream) handle(ctx context.Context, h Handler, msg redis.XMessage) {
	raw, ok := msg.Values[redisEventField].(string)
	if !ok {
		r.logger.Error("changefeed.redis.malformed", "message_id", msg.ID)
		r.ack(ctx, msg.ID)
		return
	}

	ev, err := decode([]byte(raw))
	if err != nil {
		r.logger.Error("changefeed.redis.malformed", "message_id", msg.ID, "error", err)
		r.ack(ctx, msg.ID)
		return
	}

	if err := h(ctx, ev); err != nil && !apperrors.IsPermanent(err) {
		r.logger.Warn("changefeed.redis.left_pending",
			"message_id", msg.ID,
			"event_id", ev.ID,
			"path", ev.Path,
			"error", err,
		)
		return
	}
	r.ack(ctx, msg.ID)
}

func (r *RedisStream) ack(ctx context.Context, id string) {
	if err := r.client.XAck(ctx, r.opts.Stream, r.opts.Group, id).Err(); err != nil {
		r.logger.Warn("changefeed.redis.ack_failed", "message_id", id, "error", err)
	}
}
