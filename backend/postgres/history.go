package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/quayside-run/durabletask/api"
	tdbackend "github.com/quayside-run/durabletask/backend"
	"github.com/quayside-run/durabletask/internal/protos"
)

// getShardID distributes instances across shards with a simple
// multiply-by-31 string hash taken modulo shardCount.
func getShardID(instanceID api.InstanceID, shardCount int32) int32 {
	if shardCount <= 0 {
		shardCount = 16
	}
	var hash uint32
	for i := 0; i < len(instanceID); i++ {
		hash = 31*hash + uint32(instanceID[i])
	}
	return int32(hash % uint32(shardCount))
}

// applyIdReusePolicy decides, for an existing instance currently in
// status, whether CreateOrchestrationInstance may replace it under policy.
// A nil return means replacement is allowed (the caller must still wipe
// the prior instance's rows). A status outside policy.OperationStatus is
// always a duplicate, regardless of Action.
func applyIdReusePolicy(status protos.OrchestrationStatus, policy *protos.OrchestrationIdReusePolicy) error {
	allowed := false
	for _, s := range policy.OperationStatus {
		if s == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return api.ErrDuplicateInstance
	}
	switch policy.Action {
	case protos.CreateOrchestrationAction_IGNORE:
		return api.ErrIgnoreInstance
	case protos.CreateOrchestrationAction_TERMINATE:
		return nil
	default:
		return api.ErrDuplicateInstance
	}
}

// newlyAppendedEvents filters the state's appended events down to the ones
// not delivered in the work item itself. Delivered events already sit in
// orchestration_history as is_new rows (flipped to processed by the UPDATE
// in CompleteOrchestrationWorkItem); inserting them again would persist
// every input event twice per episode and double-replay it on every later
// episode. Events are matched by identity: applyWorkItem appends the
// delivered events into the state as the same pointers.
func newlyAppendedEvents(stateEvents, delivered []*protos.HistoryEvent) []*protos.HistoryEvent {
	seen := make(map[*protos.HistoryEvent]struct{}, len(delivered))
	for _, e := range delivered {
		seen[e] = struct{}{}
	}
	appended := make([]*protos.HistoryEvent, 0, len(stateEvents))
	for _, e := range stateEvents {
		if _, ok := seen[e]; ok {
			continue
		}
		appended = append(appended, e)
	}
	return appended
}

// CreateOrchestrationInstance persists event (an ExecutionStarted event)
// as the first history row for a new instance and enqueues the
// corresponding orchestration work item. When instanceID already exists,
// opts' OrchestrationIdReusePolicy decides whether to reject the call
// (api.ErrDuplicateInstance), no-op it (api.ErrIgnoreInstance), or replace
// it outright (Terminate): the existing instance's own sub-orchestrations
// are recursively terminated first, then its history and metadata rows are
// cleared, before the replacement instance is created.
func (b *Backend) CreateOrchestrationInstance(ctx context.Context, event *protos.HistoryEvent, opts ...tdbackend.OrchestrationIdReusePolicyOption) error {
	instanceID := api.InstanceID(event.ExecutionStarted.OrchestrationInstance.InstanceId)

	policy := &protos.OrchestrationIdReusePolicy{}
	for _, configure := range opts {
		if err := configure(policy); err != nil {
			return err
		}
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingStatus int16
	err = tx.QueryRow(ctx, `SELECT status FROM orchestration_state WHERE instance_id = $1 FOR UPDATE`, string(instanceID)).Scan(&existingStatus)
	switch {
	case err == nil:
		if reuseErr := applyIdReusePolicy(protos.OrchestrationStatus(existingStatus), policy); reuseErr != nil {
			return reuseErr
		}
		existingState, err := b.GetOrchestrationRuntimeState(ctx, &tdbackend.OrchestrationWorkItem{InstanceID: instanceID})
		if err != nil {
			return fmt.Errorf("failed to load existing instance before replacement: %w", err)
		}
		if err := tdbackend.TerminateSubOrchestrationInstances(ctx, b, existingState, &protos.ExecutionTerminatedEvent{Recurse: true}); err != nil {
			return fmt.Errorf("failed to terminate existing instance's children: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM orchestration_history WHERE instance_id = $1`, string(instanceID)); err != nil {
			return fmt.Errorf("failed to clear existing history: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM orchestration_state WHERE instance_id = $1`, string(instanceID)); err != nil {
			return fmt.Errorf("failed to clear existing state: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// No existing instance; proceed as a plain create.
	default:
		return fmt.Errorf("failed to check for an existing instance: %w", err)
	}

	shardID := getShardID(instanceID, b.cfg.ShardCount)

	_, err = tx.Exec(ctx, `
		INSERT INTO orchestration_state (instance_id, name, status, created_at, updated_at, db_version)
		VALUES ($1, $2, $3, $4, $4, 0)
	`, string(instanceID), event.ExecutionStarted.Name, int16(protos.OrchestrationStatus_ORCHESTRATION_STATUS_PENDING), event.Timestamp.AsTime())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return api.ErrDuplicateInstance
		}
		return fmt.Errorf("failed to insert orchestration state: %w", err)
	}

	data, err := tdbackend.MarshalHistoryEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal start event: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO orchestration_history (shard_id, instance_id, is_new, data)
		VALUES ($1, $2, true, $3)
	`, shardID, string(instanceID), data); err != nil {
		return fmt.Errorf("failed to insert start event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := b.orchestrationQueue.enqueue(ctx, string(instanceID)); err != nil {
		return fmt.Errorf("failed to enqueue orchestration work item: %w", err)
	}
	b.notifier.wake(ctx, instanceID)
	return nil
}

// AddNewOrchestrationEvent appends event as a new (not-yet-processed)
// history row for instanceID and re-enqueues the instance's orchestration
// work item, notifying any idle worker over NATS.
func (b *Backend) AddNewOrchestrationEvent(ctx context.Context, instanceID api.InstanceID, event *protos.HistoryEvent) error {
	shardID := getShardID(instanceID, b.cfg.ShardCount)
	data, err := tdbackend.MarshalHistoryEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := b.pool.Exec(ctx, `
		INSERT INTO orchestration_history (shard_id, instance_id, is_new, data)
		VALUES ($1, $2, true, $3)
	`, shardID, string(instanceID), data); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if err := b.orchestrationQueue.enqueue(ctx, string(instanceID)); err != nil {
		return fmt.Errorf("failed to enqueue orchestration work item: %w", err)
	}
	b.notifier.wake(ctx, instanceID)
	return nil
}

// GetOrchestrationWorkItem leases the next orchestration instance with
// pending new events, loading its queued (but not yet processed) events.
// Returns (nil, nil) when the queue is currently empty.
func (b *Backend) GetOrchestrationWorkItem(ctx context.Context) (*tdbackend.OrchestrationWorkItem, error) {
	item, lockToken, err := b.orchestrationQueue.leasePayload(ctx, b.cfg.LeaseTimeout)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	instanceID := item.InstanceID

	rows, err := b.pool.Query(ctx, `
		SELECT event_id, data FROM orchestration_history
		WHERE instance_id = $1 AND is_new = true
		ORDER BY event_id ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query new events: %w", err)
	}
	defer rows.Close()

	var newEvents []*protos.HistoryEvent
	var eventIDs []int64
	for rows.Next() {
		var eventID int64
		var data []byte
		if err := rows.Scan(&eventID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event, err := tdbackend.UnmarshalHistoryEvent(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %d: %w", eventID, err)
		}
		newEvents = append(newEvents, event)
		eventIDs = append(eventIDs, eventID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return &tdbackend.OrchestrationWorkItem{
		InstanceID: api.InstanceID(instanceID),
		NewEvents:  newEvents,
		LockedBy:   b.workerName,
		RetryCount: item.RetryCount,
		Properties: map[string]interface{}{"event_ids": eventIDs, "lock_token": lockToken, "queue_item": item},
	}, nil
}

// GetOrchestrationRuntimeState replays an instance's full stored history
// (events already marked processed, i.e. is_new = false) into a fresh
// OrchestrationRuntimeState. The work item's own NewEvents are layered on
// top by the caller (orchestratorProcessor.applyWorkItem), not by this
// method, matching orchestration.go's worker loop split between "load
// state" and "apply this batch".
func (b *Backend) GetOrchestrationRuntimeState(ctx context.Context, wi *tdbackend.OrchestrationWorkItem) (*tdbackend.OrchestrationRuntimeState, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT data FROM orchestration_history
		WHERE instance_id = $1 AND is_new = false
		ORDER BY event_id ASC
	`, string(wi.InstanceID))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []*protos.HistoryEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan history event: %w", err)
		}
		event, err := tdbackend.UnmarshalHistoryEvent(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal history event: %w", err)
		}
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return tdbackend.NewOrchestrationRuntimeState(wi.InstanceID, history, b.logger), nil
}

// GetOrchestrationMetadata projects an instance's current metadata for
// client consumption. Unlike GetOrchestrationRuntimeState it reads both
// processed and still-queued history rows, so a freshly created instance
// whose start event hasn't been through a work item yet is still found.
func (b *Backend) GetOrchestrationMetadata(ctx context.Context, instanceID api.InstanceID) (*api.OrchestrationMetadata, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT is_new, data FROM orchestration_history
		WHERE instance_id = $1
		ORDER BY event_id ASC
	`, string(instanceID))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	state := tdbackend.NewOrchestrationRuntimeState(instanceID, nil, b.logger)
	for rows.Next() {
		var isNew bool
		var data []byte
		if err := rows.Scan(&isNew, &data); err != nil {
			return nil, fmt.Errorf("failed to scan history event: %w", err)
		}
		event, err := tdbackend.UnmarshalHistoryEvent(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal history event: %w", err)
		}
		if isNew {
			_ = state.AddEvent(event)
		} else {
			_ = state.AddOldEvent(event)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	if len(state.OldEvents) == 0 && len(state.NewEvents) == 0 {
		return nil, api.ErrInstanceNotFound
	}

	name, _ := state.Name()
	createdAt, _ := state.CreatedTime()
	lastUpdatedAt, _ := state.LastUpdatedTime()
	input, _ := state.Input()
	output, _ := state.Output()
	failureDetails, _ := state.FailureDetails()

	var customStatus *wrapperspb.StringValue
	if state.CustomStatus != nil {
		customStatus = protos.Str(*state.CustomStatus)
	}

	return &api.OrchestrationMetadata{
		InstanceID:             instanceID,
		Name:                   name,
		RuntimeStatus:          state.RuntimeStatus(),
		CreatedAt:              createdAt,
		LastUpdatedAt:          lastUpdatedAt,
		SerializedInput:        protos.Str(input),
		SerializedOutput:       protos.Str(output),
		SerializedCustomStatus: customStatus,
		FailureDetails:         failureDetails,
	}, nil
}

// CompleteOrchestrationWorkItem persists the new events produced while
// processing wi (moving them from new to processed, and inserting any
// freshly-appended ones), fans pending messages out to their target
// instances, schedules pending timers, and releases the work item's lease.
func (b *Backend) CompleteOrchestrationWorkItem(ctx context.Context, wi *tdbackend.OrchestrationWorkItem) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if eventIDs, ok := wi.Properties["event_ids"].([]int64); ok && len(eventIDs) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE orchestration_history SET is_new = false
			WHERE instance_id = $1 AND event_id = ANY($2)
		`, string(wi.InstanceID), eventIDs); err != nil {
			return fmt.Errorf("failed to mark events processed: %w", err)
		}
	}

	shardID := getShardID(wi.InstanceID, b.cfg.ShardCount)
	for _, event := range newlyAppendedEvents(wi.State.NewEvents, wi.NewEvents) {
		data, err := tdbackend.MarshalHistoryEvent(event)
		if err != nil {
			return fmt.Errorf("failed to marshal new event: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO orchestration_history (shard_id, instance_id, is_new, data)
			VALUES ($1, $2, false, $3)
		`, shardID, string(wi.InstanceID), data); err != nil {
			return fmt.Errorf("failed to persist applied event: %w", err)
		}
	}

	status := int16(wi.State.RuntimeStatus())
	if _, err := tx.Exec(ctx, `
		UPDATE orchestration_state SET status = $1, updated_at = now(), db_version = db_version + 1
		WHERE instance_id = $2
	`, status, string(wi.InstanceID)); err != nil {
		return fmt.Errorf("failed to update orchestration status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, msg := range wi.State.PendingMessages() {
		if err := b.AddNewOrchestrationEvent(ctx, msg.TargetInstanceID, msg.HistoryEvent); err != nil {
			return fmt.Errorf("failed to route pending message to %s: %w", msg.TargetInstanceID, err)
		}
	}
	for _, timerEvent := range wi.State.PendingTimers() {
		if err := b.timers.schedule(ctx, wi.InstanceID, timerEvent); err != nil {
			return fmt.Errorf("failed to schedule timer: %w", err)
		}
	}
	for _, taskEvent := range wi.State.PendingTasks() {
		data, err := tdbackend.MarshalHistoryEvent(taskEvent)
		if err != nil {
			return fmt.Errorf("failed to marshal scheduled task: %w", err)
		}
		if err := b.activityQueue.enqueueActivity(ctx, string(wi.InstanceID), data); err != nil {
			return fmt.Errorf("failed to enqueue activity work item: %w", err)
		}
	}

	if lockToken, ok := wi.Properties["lock_token"].(string); ok {
		return b.orchestrationQueue.ack(ctx, string(wi.InstanceID), lockToken)
	}
	return nil
}

// AbandonOrchestrationWorkItem releases the work item's lease without
// marking its events processed, so another worker (or this one, after
// GetAbandonDelay) will retry it.
func (b *Backend) AbandonOrchestrationWorkItem(ctx context.Context, wi *tdbackend.OrchestrationWorkItem) error {
	lockToken, _ := wi.Properties["lock_token"].(string)
	item, _ := wi.Properties["queue_item"].(*queueItem)
	if item == nil {
		item = &queueItem{InstanceID: string(wi.InstanceID), RetryCount: wi.RetryCount}
	}
	return b.orchestrationQueue.abandonItem(ctx, item, lockToken, tdbackend.GetAbandonDelay(item.RetryCount))
}

// GetActivityWorkItem leases the next scheduled-task event awaiting
// execution.
func (b *Backend) GetActivityWorkItem(ctx context.Context) (*tdbackend.ActivityWorkItem, error) {
	payload, lockToken, err := b.activityQueue.leasePayload(ctx, b.cfg.LeaseTimeout)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	event, err := tdbackend.UnmarshalHistoryEvent(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity event: %w", err)
	}
	return &tdbackend.ActivityWorkItem{
		InstanceID: api.InstanceID(payload.InstanceID),
		NewEvent:   event,
		LockedBy:   b.workerName,
		Properties: map[string]interface{}{"lock_token": lockToken, "queue_item": payload},
	}, nil
}

// CompleteActivityWorkItem appends the activity's TaskCompleted/TaskFailed
// result event back onto the originating instance's history and releases
// the lease.
func (b *Backend) CompleteActivityWorkItem(ctx context.Context, wi *tdbackend.ActivityWorkItem) error {
	if wi.Result != nil {
		if err := b.AddNewOrchestrationEvent(ctx, wi.InstanceID, wi.Result); err != nil {
			return err
		}
	}
	lockToken, _ := wi.Properties["lock_token"].(string)
	item, _ := wi.Properties["queue_item"].(*queueItem)
	if item == nil {
		return nil
	}
	return b.activityQueue.ackItem(ctx, item, lockToken)
}

func (b *Backend) AbandonActivityWorkItem(ctx context.Context, wi *tdbackend.ActivityWorkItem) error {
	lockToken, _ := wi.Properties["lock_token"].(string)
	item, _ := wi.Properties["queue_item"].(*queueItem)
	if item == nil {
		return nil
	}
	return b.activityQueue.abandonItem(ctx, item, lockToken, tdbackend.GetAbandonDelay(item.RetryCount))
}

// PurgeOrchestrationState deletes instanceID's history and state rows.
// Recursive cascading across sub-orchestrations is handled by
// backend.PurgeOrchestrationState, which calls this for each instance in
// turn.
func (b *Backend) PurgeOrchestrationState(ctx context.Context, instanceID api.InstanceID) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM orchestration_history WHERE instance_id = $1`, string(instanceID)); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM orchestration_state WHERE instance_id = $1`, string(instanceID))
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrInstanceNotFound
	}
	return tx.Commit(ctx)
}
