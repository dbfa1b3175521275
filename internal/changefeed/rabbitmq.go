package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
)

type RabbitMQOptions struct {
	Exchange string
	Queue    string
	Prefetch int
}

// RabbitMQ is a feed over a durable fanout exchange. Consumers ack after a
// successful or permanently failed handler run and requeue transient failures.
type RabbitMQ struct {
	conn   *amqp.Connection
	pubMu  sync.Mutex
	pubCh  *amqp.Channel
	opts   RabbitMQOptions
	logger *slog.Logger
}

func DialRabbitMQ(url string, opts RabbitMQOptions, logger *slog.Logger) (*RabbitMQ, error) {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 16
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Error("changefeed.rabbitmq.connect_failed", "error", err)
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(opts.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", opts.Exchange, err)
	}

	return &RabbitMQ{conn: conn, pubCh: ch, opts: opts, logger: logger}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, ev Event) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	err = r.pubCh.PublishWithContext(ctx, r.opts.Exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Body:         data,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, apperrors.CodeFeedUnavailable, "amqp publish", err)
	}
	return nil
}

func (r *RabbitMQ) Subscribe(ctx context.Context, h Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(r.opts.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", r.opts.Queue, err)
	}
	if err := ch.QueueBind(r.opts.Queue, "", r.opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", r.opts.Queue, err)
	}
	if err := ch.Qos(r.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(r.opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.opts.Queue, err)
	}

	r.logger.Info("changefeed.rabbitmq.subscribed", "exchange", r.opts.Exchange, "queue", r.opts.Queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			r.handle(ctx, h, d)
		}
	}
}

func (r *RabbitMQ) handle(ctx context.Context, h Handler, d amqp.Delivery) {
	ev, err := decode(d.Body)
	if err != nil {
		r.logger.Error("changefeed.rabbitmq.malformed", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := h(ctx, ev); err != nil && !apperrors.IsPermanent(err) {
		r.logger.Warn("changefeed.rabbitmq.requeued",
			"event_id", ev.ID,
			"path", ev.Path,
			"error", err,
		)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (r *RabbitMQ) Close() error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if err := r.pubCh.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return r.conn.Close()
}
