package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/apperr"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/asyncstatus"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/eventlog"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
)

// partitionProducer is the subset of *eventlog.Publisher a worker
// needs to re-enqueue a retry onto its own partition.
type partitionProducer interface {
	Publish(ctx context.Context, topic string, partitions int32, key, value []byte) error
}

// Worker owns one partition of the coupon-request log (§4.6: "one
// worker goroutine per partition, manually assigned, no consumer-group
// rebalancing"). Every request a worker reads was hashed onto this
// partition by coupon_id, so it is the sole writer contending for
// those coupons' remaining_qty: the partition assignment itself is
// what serializes issuance into first-come-first-served order,
// without needing a distributed lock.
type Worker struct {
	issuer       *issuer
	client       *kgo.Client
	producer     partitionProducer
	status       *asyncstatus.Store
	topic        string
	partitions   int32
	partition    int32
	maxRetries   int
	workDeadline time.Duration
}

// NewWorker constructs a Worker bound to one partition's consumer
// client. It builds its own transactional core from the same store
// triplet NewPipeline uses, so a worker and the synchronous issue_sync
// path share identical issuance semantics (§4.6).
func NewWorker(pool *pgxpool.Pool, coupons *repository.CouponStore, userCoupons *repository.UserCouponStore, outbox *repository.OutboxStore, client *kgo.Client, producer partitionProducer, status *asyncstatus.Store, topic string, partitions, partition int32, maxRetries int, workDeadline time.Duration) *Worker {
	return &Worker{
		issuer:       &issuer{pool: pool, coupons: coupons, userCoupons: userCoupons, outbox: outbox},
		client:       client, producer: producer, status: status,
		topic: topic, partitions: partitions, partition: partition,
		maxRetries: maxRetries, workDeadline: workDeadline,
	}
}

// Run consumes records from this worker's partition until ctx is
// cancelled, processing them one at a time to preserve FCFS order
// within the partition (§4.6 step 3: "workers process their partition
// strictly in offset order").
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		fetches := w.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			log.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("coupon worker: fetch error")
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			w.processRecord(ctx, rec)
		})
	}
}

func (w *Worker) processRecord(ctx context.Context, rec *kgo.Record) {
	var req model.CouponRequest
	if err := json.Unmarshal(rec.Value, &req); err != nil {
		log.Error().Err(err).Msg("coupon worker: malformed request, dropping")
		return
	}

	workCtx, cancel := context.WithTimeout(ctx, w.workDeadline)
	defer cancel()

	view, err := w.issuer.issueOne(workCtx, req.UserID, req.CouponID)
	if err == nil {
		if statusErr := w.status.PutTerminal(ctx, req.RequestID, model.AsyncCompleted, view, ""); statusErr != nil {
			log.Error().Err(statusErr).Str("request_id", req.RequestID).Msg("coupon worker: failed to write terminal status")
		}
		return
	}

	if apperr.KindOf(err) == apperr.KindBusiness || apperr.KindOf(err) == apperr.KindNotFound || apperr.KindOf(err) == apperr.KindConflict {
		// Not retryable: the claim will never succeed, e.g. already
		// issued, out of stock, or the coupon itself doesn't exist.
		if statusErr := w.status.PutTerminal(ctx, req.RequestID, model.AsyncFailed, nil, err.Error()); statusErr != nil {
			log.Error().Err(statusErr).Str("request_id", req.RequestID).Msg("coupon worker: failed to write terminal status")
		}
		return
	}

	w.retryOrDLQ(ctx, req, err)
}

// retryOrDLQ re-enqueues req onto its own partition (preserving the
// per-coupon FCFS order it was originally assigned) after a transient
// failure, up to maxRetries, per §4.6 step 5. Once exhausted it is
// written to the dead-letter log and marked FAILED.
func (w *Worker) retryOrDLQ(ctx context.Context, req model.CouponRequest, cause error) {
	if req.RetryCount >= w.maxRetries {
		w.sendToDLQ(ctx, req, cause)
		if err := w.status.PutTerminal(ctx, req.RequestID, model.AsyncFailed, nil, "retries exhausted: "+cause.Error()); err != nil {
			log.Error().Err(err).Str("request_id", req.RequestID).Msg("coupon worker: failed to write terminal status")
		}
		return
	}

	req.RetryCount++
	if err := w.status.PutRetry(ctx, req.RequestID); err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("coupon worker: failed to write retry status")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("coupon worker: failed to marshal retry")
		return
	}
	if err := w.producer.Publish(ctx, w.topic, w.partitions, []byte(req.CouponID), payload); err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("coupon worker: failed to re-enqueue retry")
	}
}

func (w *Worker) sendToDLQ(ctx context.Context, req model.CouponRequest, cause error) {
	payload, err := json.Marshal(struct {
		model.CouponRequest
		Error string `json:"error"`
	}{req, cause.Error()})
	if err != nil {
		log.Error().Err(err).Msg("coupon worker: failed to marshal dlq record")
		return
	}
	if err := w.producer.Publish(ctx, w.topic+".dlq", w.partitions, []byte(req.CouponID), payload); err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("coupon worker: failed to publish to dlq")
	}
}

// NewPartitionClients builds one manually-assigned consumer client per
// partition of the coupon topic, ready to be handed one each to a
// Worker, per §4.6's fixed partition-to-worker assignment.
func NewPartitionClients(brokers []string, topic string, partitions int32) ([]*kgo.Client, error) {
	if partitions < 1 {
		return nil, errors.New("coupon: partitions must be >= 1")
	}
	clients := make([]*kgo.Client, partitions)
	for p := int32(0); p < partitions; p++ {
		c, err := eventlog.NewPartitionConsumerClient(brokers, topic, p)
		if err != nil {
			for _, built := range clients[:p] {
				built.Close()
			}
			return nil, err
		}
		clients[p] = c
	}
	return clients, nil
}
