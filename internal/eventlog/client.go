// Package eventlog wraps the Kafka-compatible broker (Redpanda) that
// backs both the external event log of §4.5/§6 and the partitioned
// coupon-request log of §4.6, grounded on the redpanda producer/
// consumer pair in fairyhunter13's sibling ai-cv-evaluator repo. The
// contract here is at-least-once delivery with consumer-side
// idempotency (§1 Non-goals: exactly-once is explicitly out of
// scope), so unlike that sibling repo this wrapper does not use
// franz-go's transactional producer — a plain producer plus a
// unique-constraint-backed idempotency table on the consumer side is
// sufficient and simpler.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// PermanentError wraps a Publish failure the broker itself rejected
// as malformed or otherwise never going to succeed on retry (e.g.
// MessageTooLarge, InvalidTopicException), as opposed to a transient
// one (broker unavailable, request timeout). Distinguishes the §4.5
// PUBLISHING -> FAILED transition (non-retryable) from ->
// PENDING/ABANDONED (retryable, retry budget exhausted).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "eventlog: permanent publish failure: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err (as returned by Publisher.Publish)
// represents a permanent, non-retryable failure.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// Publisher publishes key/value records to a topic.
type Publisher struct {
	client *kgo.Client
}

// NewPublisher constructs a Publisher against the given brokers. The
// manual partitioner lets callers route a record to Partition(key, n)
// explicitly, which is how the coupon queue guarantees one partition
// per coupon_id (see internal/coupon).
func NewPublisher(brokers []string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("eventlog: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
	)
	if err != nil {
		return nil, fmt.Errorf("eventlog: new client: %w", err)
	}
	return &Publisher{client: client}, nil
}

// Close releases the underlying client.
func (p *Publisher) Close() { p.client.Close() }

// Publish sends one record synchronously to topic, partitioned by
// Partition(key, partitions). partitions must match the topic's
// actual partition count.
func (p *Publisher) Publish(ctx context.Context, topic string, partitions int32, key, value []byte) error {
	rec := &kgo.Record{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Partition: Partition(string(key), partitions),
	}
	res := p.client.ProduceSync(ctx, rec)
	if err := res.FirstErr(); err != nil {
		wrapped := fmt.Errorf("eventlog: produce to %s: %w", topic, err)
		var kerrErr *kerr.Error
		if errors.As(err, &kerrErr) && !kerrErr.Retriable {
			return &PermanentError{Err: wrapped}
		}
		return wrapped
	}
	return nil
}

// Partition maps key deterministically onto [0, partitions) using
// FNV-1a, the same key always landing on the same partition — the
// property the coupon pipeline's FCFS-per-coupon guarantee depends on.
func Partition(key string, partitions int32) int32 {
	if partitions <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int32(h.Sum32() % uint32(partitions))
}

// NewPartitionConsumerClient builds a kgo.Client manually assigned to
// a single partition of topic, with no consumer-group rebalancing —
// the literal "one worker per partition" assignment §4.6 calls for.
func NewPartitionConsumerClient(brokers []string, topic string, partition int32) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("eventlog: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			topic: {partition: kgo.NewOffset().AtStart()},
		}),
		kgo.FetchMaxWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("eventlog: new partition consumer: %w", err)
	}
	return client, nil
}
