package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quayside-run/durabletask/api"
	tdbackend "github.com/quayside-run/durabletask/backend"
	"github.com/quayside-run/durabletask/internal/protos"
)

// timerEntry is one due-timer row stored in the Redis sorted set, scored
// by its fire time in Unix seconds.
type timerEntry struct {
	InstanceID string `json:"instance_id"`
	Data       []byte `json:"data"`
}

// timerSet schedules TimerFired events for future delivery using a Redis
// sorted set scored by fire time, polled by a background dispatcher
// goroutine.
type timerSet struct {
	client *redis.Client
	key    string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newTimerSet(client *redis.Client, key string) *timerSet {
	return &timerSet{client: client, key: key}
}

// schedule records fired (a TimerFired event) to be delivered to
// instanceID's orchestration queue once its FireAt timestamp has passed.
func (t *timerSet) schedule(ctx context.Context, instanceID api.InstanceID, fired *protos.HistoryEvent) error {
	if fired.TimerFired == nil {
		return fmt.Errorf("schedule called with a non-TimerFired event")
	}

	data, err := tdbackend.MarshalHistoryEvent(fired)
	if err != nil {
		return fmt.Errorf("failed to marshal timer event: %w", err)
	}
	entry, err := json.Marshal(timerEntry{InstanceID: string(instanceID), Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal timer entry: %w", err)
	}

	fireAt := float64(fired.TimerFired.FireAt.AsTime().Unix())
	return t.client.ZAdd(ctx, t.key, redis.Z{Score: fireAt, Member: entry}).Err()
}

// startDispatcher launches a background goroutine that polls for due
// timers once a second and delivers them through be.AddNewOrchestrationEvent.
func (t *timerSet) startDispatcher(ctx context.Context, be *Backend) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return fmt.Errorf("timer dispatcher already running")
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-dispatchCtx.Done():
				return
			case <-ticker.C:
				t.dispatchDue(dispatchCtx, be)
			}
		}
	}()
	return nil
}

func (t *timerSet) stopDispatcher() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *timerSet) dispatchDue(ctx context.Context, be *Backend) {
	now := float64(time.Now().Unix())
	members, err := t.client.ZRangeByScore(ctx, t.key, &redis.ZRangeBy{Min: "0", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		be.logger.Warnf("failed to query due timers: %v", err)
		return
	}

	for _, raw := range members {
		var entry timerEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			be.logger.Warnf("failed to unmarshal timer entry, dropping: %v", err)
			t.client.ZRem(ctx, t.key, raw)
			continue
		}

		event, err := tdbackend.UnmarshalHistoryEvent(entry.Data)
		if err != nil {
			be.logger.Warnf("failed to unmarshal timer event, dropping: %v", err)
			t.client.ZRem(ctx, t.key, raw)
			continue
		}

		if err := be.AddNewOrchestrationEvent(ctx, api.InstanceID(entry.InstanceID), event); err != nil {
			be.logger.Warnf("failed to deliver timer to %s, will retry next poll: %v", entry.InstanceID, err)
			continue
		}
		t.client.ZRem(ctx, t.key, raw)
	}
}
