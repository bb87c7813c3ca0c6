package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	tdbackend "github.com/quayside-run/durabletask/backend"
)

// queueItem is the payload carried through a redisWorkItemQueue. Both
// queues carry InstanceID and a retry count used to compute the next
// abandon delay; the activity queue also carries the serialized
// TaskScheduled event in Data.
type queueItem struct {
	InstanceID string `json:"instance_id"`
	Data       []byte `json:"data,omitempty"`
	RetryCount int32  `json:"retry_count"`
}

// redisWorkItemQueue is a two-list lease queue: items move from queueKey
// to processingKey on lease (via LMOVE) and are removed from processingKey
// on ack, or moved back to queueKey on abandon.
type redisWorkItemQueue struct {
	client        *redis.Client
	queueKey      string
	processingKey string
}

func newRedisWorkItemQueue(client *redis.Client, name string) *redisWorkItemQueue {
	return &redisWorkItemQueue{
		client:        client,
		queueKey:      name + ":queue",
		processingKey: name + ":processing",
	}
}

func (q *redisWorkItemQueue) push(ctx context.Context, item queueItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	return q.client.RPush(ctx, q.queueKey, b).Err()
}

// enqueue pushes instanceID onto the orchestration queue, to be re-examined
// (its full new-event backlog re-read from Postgres) once leased.
func (q *redisWorkItemQueue) enqueue(ctx context.Context, instanceID string) error {
	return q.push(ctx, queueItem{InstanceID: instanceID})
}

// enqueueActivity pushes a single scheduled-task event for instanceID onto
// the activity queue.
func (q *redisWorkItemQueue) enqueueActivity(ctx context.Context, instanceID string, data []byte) error {
	return q.push(ctx, queueItem{InstanceID: instanceID, Data: data})
}

// leasePayload moves the next queued item into the processing list and
// returns it along with an opaque lock token used later to ack or abandon
// it. Returns (nil, "", nil) when the queue is empty; leaseTimeout is
// accepted for forward compatibility with a future reaper that re-queues
// entries whose processing list residency has expired, but isn't enforced
// by this lease call itself.
func (q *redisWorkItemQueue) leasePayload(ctx context.Context, _ time.Duration) (*queueItem, string, error) {
	raw, err := q.client.LMove(ctx, q.queueKey, q.processingKey, "left", "right").Result()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to lease work item: %w", err)
	}

	var item queueItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal queue item: %w", err)
	}

	// The lock token is the item's own serialized form, so ack/abandon can
	// remove the exact processing-list entry with LRem.
	return &item, raw, nil
}

// ack removes the leased item (identified by token, its serialized form)
// from the processing list, matching RedisTaskStore.AckTask's
// scan-and-remove-first-occurrence pattern. A token that is no longer in
// the processing list means the lease was reclaimed out from under us.
func (q *redisWorkItemQueue) ack(ctx context.Context, _ string, token string) error {
	return q.releaseLease(ctx, token)
}

func (q *redisWorkItemQueue) ackItem(ctx context.Context, _ *queueItem, token string) error {
	return q.releaseLease(ctx, token)
}

func (q *redisWorkItemQueue) releaseLease(ctx context.Context, token string) error {
	removed, err := q.client.LRem(ctx, q.processingKey, 1, token).Result()
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	if removed == 0 {
		return tdbackend.ErrWorkItemLockLost
	}
	return nil
}

// abandonItem removes the leased item from the processing list and
// re-queues it (with its retry count bumped) after delay, so a crashed or
// erroring worker doesn't hold the item forever but also doesn't cause an
// immediate retry storm.
func (q *redisWorkItemQueue) abandonItem(ctx context.Context, item *queueItem, token string, delay time.Duration) error {
	if err := q.releaseLease(ctx, token); err != nil {
		return err
	}
	item.RetryCount++
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal re-queued item: %w", err)
	}
	requeue := func() { q.client.RPush(context.Background(), q.queueKey, b) }
	if delay <= 0 {
		requeue()
		return nil
	}
	time.AfterFunc(delay, requeue)
	return nil
}
