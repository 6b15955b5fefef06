// Package queue is a redis-streams work queue for email jobs. Consumers run
// in a group with at-least-once delivery; unacked entries are reclaimed
// after a visibility timeout and parked on a dead letter stream once the
// retry ceiling is hit.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/inboxly/mail-assistant/pkg/logger"
	"github.com/inboxly/mail-assistant/pkg/redis"
)

// Delivery is one received stream entry. Attempts counts prior deliveries
// of the same entry, so a first delivery carries 0.
type Delivery struct {
	ID        string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
	Attempts  int
}

// Handler processes one delivery. A nil return acks the entry; an error
// leaves it pending for reclaim.
type Handler func(ctx context.Context, d *Delivery) error

type Config struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

type Queue struct {
	adapter redis.RedisAdapter
	config  Config
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(adapter redis.RedisAdapter, config Config) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "default-group"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	// group may already exist after a restart
	_ = q.adapter.XGroupCreateMkStream(config.Name, config.ConsumerGroup, "0")

	return q, nil
}

// Publish appends raw bytes plus metadata to the stream.
func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	values := map[string]interface{}{
		"data":      string(data),
		"timestamp": time.Now().Unix(),
		"attempts":  0,
	}
	for k, v := range metadata {
		values["meta_"+k] = v
	}

	id, err := q.adapter.XAdd(q.config.Name, values)
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", q.config.Name, err)
	}

	if q.config.MaxLen > 0 {
		_ = q.adapter.XTrimApprox(q.config.Name, q.config.MaxLen)
	}
	return id, nil
}

// PublishJSON marshals v and publishes it.
func (q *Queue) PublishJSON(ctx context.Context, v interface{}, metadata map[string]string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return q.Publish(ctx, data, metadata)
}

// Consume starts the poll loop. Successful handler returns ack the entry;
// failures leave it pending until the visibility timeout reclaims it.
func (q *Queue) Consume(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	q.handler = handler
	q.wg.Add(1)
	go q.consumeLoop()
	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.readNew()
			q.reclaimStuck()
		}
	}
}

func (q *Queue) readNew() {
	messages, err := q.adapter.XReadGroup(
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.Name,
		">",
		q.config.BatchSize,
	)
	if err != nil {
		if err != redis.NilError {
			logger.Warn("queue read failed", "queue", q.config.Name, "error", err)
		}
		return
	}

	for _, streamMsg := range messages {
		q.dispatch(q.toDelivery(streamMsg))
	}
}

// reclaimStuck takes over entries another consumer read but never acked.
func (q *Queue) reclaimStuck() {
	pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup)
	if err != nil || pending == nil || pending.Count == 0 {
		return
	}

	pendingExt, err := q.adapter.XPendingExt(q.config.Name, q.config.ConsumerGroup, "-", "+", 100)
	if err != nil || len(pendingExt) == 0 {
		return
	}

	var ids []string
	retries := make(map[string]int64, len(pendingExt))
	for _, p := range pendingExt {
		if p.Idle >= q.config.VisibilityTimeout {
			ids = append(ids, p.ID)
			retries[p.ID] = p.RetryCount
		}
	}
	if len(ids) == 0 {
		return
	}

	messages, err := q.adapter.XClaim(
		q.config.Name,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.VisibilityTimeout,
		ids...,
	)
	if err != nil {
		return
	}

	for _, streamMsg := range messages {
		d := q.toDelivery(streamMsg)
		// redis counts deliveries starting at 1, so the pending retry count
		// is exactly the number of failed deliveries before this claim
		d.Attempts = int(retries[streamMsg.ID])
		q.dispatch(d)
	}
}

func (q *Queue) dispatch(d *Delivery) {
	if d.Attempts >= q.config.MaxRetries {
		q.park(d)
		_ = q.ack(d.ID)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	if err := q.handler(ctx, d); err != nil {
		// stays pending, reclaimed after the visibility timeout
		return
	}
	_ = q.ack(d.ID)
}

func (q *Queue) ack(id string) error {
	return q.adapter.XAck(q.config.Name, q.config.ConsumerGroup, id)
}

// park moves an exhausted delivery to the dead letter stream.
func (q *Queue) park(d *Delivery) {
	if !q.config.EnableDLQ {
		return
	}

	values := map[string]interface{}{
		"data":           string(d.Data),
		"original_id":    d.ID,
		"attempts":       d.Attempts,
		"failed_at":      time.Now().Unix(),
		"original_queue": q.config.Name,
	}
	for k, v := range d.Metadata {
		values["meta_"+k] = v
	}

	if _, err := q.adapter.XAdd(q.config.Name+":dlq", values); err != nil {
		logger.Error("failed to park delivery on dlq", "queue", q.config.Name, "id", d.ID, "error", err)
		return
	}
	logger.Warn("delivery moved to dlq", "queue", q.config.Name, "id", d.ID, "attempts", d.Attempts)
}

func (q *Queue) toDelivery(streamMsg redis.StreamMessage) *Delivery {
	d := &Delivery{
		ID:       streamMsg.ID,
		Metadata: make(map[string]string),
	}

	for k, v := range streamMsg.Values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "data":
			d.Data = []byte(raw)
		case "timestamp":
			if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
				d.Timestamp = time.Unix(unix, 0)
			}
		case "attempts":
			if n, err := strconv.Atoi(raw); err == nil {
				d.Attempts = n
			}
		default:
			if len(k) > 5 && k[:5] == "meta_" {
				d.Metadata[k[5:]] = raw
			}
		}
	}

	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	return d
}

type Stats struct {
	TotalEntries   int64
	PendingEntries int64
	ConsumerCount  int64
}

func (q *Queue) GetStats() (*Stats, error) {
	total, err := q.adapter.XLen(q.config.Name)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalEntries: total}
	if pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		stats.PendingEntries = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}
	return stats, nil
}

// Stop cancels the poll loop and waits for in-flight handlers.
func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue to stop")
	}
}
