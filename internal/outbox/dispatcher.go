// Package outbox implements the transactional outbox dispatcher of
// §4.5: a single cooperative worker that claims PENDING rows written
// by the saga's CreateOrderStep (and the coupon pipeline) and
// publishes them to the external event log with at-least-once
// delivery. Grounded on
// other_examples/e49fee04_flowcatalyst...outbox-processor.go's poll +
// claim-batch + publish + retry/abandon state machine, adapted to the
// PENDING -> PUBLISHING -> PUBLISHED/ABANDONED/FAILED rules of §3/§4.5.
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/eventlog"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
)

// store is the subset of *repository.OutboxStore the dispatcher
// needs, narrowed so tests can substitute a fake.
type store interface {
	ClaimPending(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkPublished(ctx context.Context, messageID string) error
	MarkPendingRetry(ctx context.Context, messageID string, maxRetries int) error
	MarkFailed(ctx context.Context, messageID string) error
}

// publisher is the subset of *eventlog.Publisher the dispatcher needs.
type publisher interface {
	Publish(ctx context.Context, topic string, partitions int32, key, value []byte) error
}

// Dispatcher drains the outbox table on a poll loop, with an
// additional wake channel so CreateOrderStep's after-commit hook can
// nudge it without waiting a full poll interval.
type Dispatcher struct {
	store           store
	publisher       publisher
	topic           string
	topicPartitions int32
	pollInterval    time.Duration
	batchSize       int
	maxRetries      int
	wake            chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store store, publisher publisher, topic string, topicPartitions int32, pollInterval time.Duration, batchSize, maxRetries int) *Dispatcher {
	return &Dispatcher{
		store:           store,
		publisher:       publisher,
		topic:           topic,
		topicPartitions: topicPartitions,
		pollInterval:    pollInterval,
		batchSize:       batchSize,
		maxRetries:      maxRetries,
		wake:            make(chan struct{}, 1),
	}
}

// Wake signals the dispatcher to claim/publish immediately rather than
// waiting out the remainder of its poll interval. Safe to call from
// any goroutine; never blocks.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run drives the dispatcher loop until ctx is cancelled. It is meant
// to be launched as the single long-lived outbox task per process
// (§5 "The outbox dispatcher is a single long-lived task per process").
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox dispatcher shutting down")
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		case <-d.wake:
			d.drainOnce(ctx)
		}
	}
}

// drainOnce claims up to batchSize pending rows and attempts to
// publish each, resolving its terminal or retry state.
func (d *Dispatcher) drainOnce(ctx context.Context) {
	msgs, err := d.store.ClaimPending(ctx, d.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("outbox: claim pending failed")
		return
	}
	for _, msg := range msgs {
		key := msg.OrderID
		if key == "" {
			key = msg.MessageID
		}
		err := d.publisher.Publish(ctx, d.topic, d.topicPartitions, []byte(key), msg.Payload)
		if err != nil {
			if eventlog.IsPermanent(err) {
				if markErr := d.store.MarkFailed(ctx, msg.MessageID); markErr != nil {
					log.Error().Err(markErr).Str("message_id", msg.MessageID).Msg("outbox: failed to mark failed")
				}
				log.Error().Err(err).Str("message_id", msg.MessageID).Msg("outbox: publish failed permanently, not retrying")
				continue
			}
			if markErr := d.store.MarkPendingRetry(ctx, msg.MessageID, d.maxRetries); markErr != nil {
				log.Error().Err(markErr).Str("message_id", msg.MessageID).Msg("outbox: failed to mark retry")
			}
			log.Warn().Err(err).Str("message_id", msg.MessageID).Int("retry_count", msg.RetryCount+1).Msg("outbox: publish failed, retrying")
			continue
		}
		if markErr := d.store.MarkPublished(ctx, msg.MessageID); markErr != nil {
			log.Error().Err(markErr).Str("message_id", msg.MessageID).Msg("outbox: failed to mark published")
		}
	}
}
