// Package backend defines the pluggable persistence and execution
// contract for the durable-task runtime (the Backend interface), the
// event-sourced OrchestrationRuntimeState projection, and the generic
// TaskWorker loop that drives orchestrator and activity execution against
// it.
package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/protos"
)

// BackendError wraps a backend operation failure with one of a small set
// of well-known causes, so callers (notably the worker loop and
// TaskHubClient) can distinguish "not found" from "transient" without
// string matching.
type BackendError struct {
	Kind BackendErrorKind
	Err  error
}

type BackendErrorKind int

const (
	BackendErrorOther BackendErrorKind = iota
	BackendErrorTaskHubExists
	BackendErrorTaskHubNotFound
	BackendErrorNotInitialized
	BackendErrorWorkItemLockLost
	BackendErrorAlreadyStarted
)

func (e *BackendError) Error() string {
	switch e.Kind {
	case BackendErrorTaskHubExists:
		return "task hub already exists"
	case BackendErrorTaskHubNotFound:
		return "task hub not found"
	case BackendErrorNotInitialized:
		return "backend not initialized"
	case BackendErrorWorkItemLockLost:
		return "lock on work-item was lost"
	case BackendErrorAlreadyStarted:
		return "backend is already started"
	default:
		if e.Err != nil {
			return fmt.Sprintf("backend error: %v", e.Err)
		}
		return "backend error"
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

func NewBackendError(kind BackendErrorKind, err error) *BackendError {
	return &BackendError{Kind: kind, Err: err}
}

var (
	ErrTaskHubExists    = &BackendError{Kind: BackendErrorTaskHubExists}
	ErrTaskHubNotFound  = &BackendError{Kind: BackendErrorTaskHubNotFound}
	ErrNotInitialized   = &BackendError{Kind: BackendErrorNotInitialized}
	ErrWorkItemLockLost = &BackendError{Kind: BackendErrorWorkItemLockLost}
	ErrBackendAlreadyUp = &BackendError{Kind: BackendErrorAlreadyStarted}
)

// OrchestrationIdReusePolicyOption mutates a policy in place before a
// CreateOrchestrationInstance call applies it.
type OrchestrationIdReusePolicyOption func(policy *protos.OrchestrationIdReusePolicy) error

// WithOrchestrationIdReusePolicy builds an option that copies policy's
// fields onto the target, when policy is non-nil.
func WithOrchestrationIdReusePolicy(policy *protos.OrchestrationIdReusePolicy) OrchestrationIdReusePolicyOption {
	return func(target *protos.OrchestrationIdReusePolicy) error {
		if policy == nil {
			return nil
		}
		target.Action = policy.Action
		target.OperationStatus = policy.OperationStatus
		return nil
	}
}

// Backend is the storage and locking contract that the worker loop and
// TaskHubClient are built against. Concrete implementations (backend/postgres
// is this module's production implementation) own durable history storage,
// work-item leasing, and cross-instance wake-up notification.
type Backend interface {
	CreateTaskHub(ctx context.Context) error
	DeleteTaskHub(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	CreateOrchestrationInstance(ctx context.Context, event *protos.HistoryEvent, opts ...OrchestrationIdReusePolicyOption) error
	AddNewOrchestrationEvent(ctx context.Context, instanceID api.InstanceID, event *protos.HistoryEvent) error

	GetOrchestrationWorkItem(ctx context.Context) (*OrchestrationWorkItem, error)
	GetOrchestrationRuntimeState(ctx context.Context, wi *OrchestrationWorkItem) (*OrchestrationRuntimeState, error)
	GetOrchestrationMetadata(ctx context.Context, instanceID api.InstanceID) (*api.OrchestrationMetadata, error)
	CompleteOrchestrationWorkItem(ctx context.Context, wi *OrchestrationWorkItem) error
	AbandonOrchestrationWorkItem(ctx context.Context, wi *OrchestrationWorkItem) error

	GetActivityWorkItem(ctx context.Context) (*ActivityWorkItem, error)
	CompleteActivityWorkItem(ctx context.Context, wi *ActivityWorkItem) error
	AbandonActivityWorkItem(ctx context.Context, wi *ActivityWorkItem) error

	PurgeOrchestrationState(ctx context.Context, instanceID api.InstanceID) error
}

// MarshalHistoryEvent and UnmarshalHistoryEvent are the storage codec
// Backend implementations use to persist a HistoryEvent. internal/protos
// is a hand-bound stable-schema boundary rather than protoc-gen-go output,
// so events are serialized as JSON rather than through proto.Marshal.
func MarshalHistoryEvent(e *protos.HistoryEvent) ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalHistoryEvent(b []byte) (*protos.HistoryEvent, error) {
	var e protos.HistoryEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PurgeOrchestrationState recursively deletes instanceID's state and, when
// recursive is true, every sub-orchestration instance reachable from its
// history, returning the total number of instances deleted.
func PurgeOrchestrationState(ctx context.Context, be Backend, instanceID api.InstanceID, recursive bool) (int32, error) {
	var deletedCount int32
	if recursive {
		wi := &OrchestrationWorkItem{InstanceID: instanceID}
		state, err := be.GetOrchestrationRuntimeState(ctx, wi)
		if err != nil {
			return 0, err
		}
		if len(state.NewEvents) == 0 && len(state.OldEvents) == 0 {
			return 0, ErrTaskHubNotFound
		}
		if !state.IsCompleted() {
			return 0, ErrNotInitialized
		}

		for _, subInstanceID := range getSubOrchestrationInstances(state.OldEvents, state.NewEvents) {
			subCount, err := PurgeOrchestrationState(ctx, be, subInstanceID, recursive)
			if err != nil {
				return 0, err
			}
			deletedCount += subCount
		}
	}
	if err := be.PurgeOrchestrationState(ctx, instanceID); err != nil {
		return 0, err
	}
	return deletedCount + 1, nil
}

// TerminateSubOrchestrationInstances cascades a terminate to every
// sub-orchestration instance reachable from state's history, when et.Recurse
// is set.
func TerminateSubOrchestrationInstances(ctx context.Context, be Backend, state *OrchestrationRuntimeState, et *protos.ExecutionTerminatedEvent) error {
	if !et.Recurse {
		return nil
	}
	for _, subInstanceID := range getSubOrchestrationInstances(state.OldEvents, state.NewEvents) {
		event := &protos.HistoryEvent{
			EventId:             -1,
			ExecutionTerminated: &protos.ExecutionTerminatedEvent{Input: et.Input, Recurse: et.Recurse},
		}
		if err := be.AddNewOrchestrationEvent(ctx, subInstanceID, event); err != nil {
			return err
		}
	}
	return nil
}

func getSubOrchestrationInstances(oldEvents, newEvents []*protos.HistoryEvent) []api.InstanceID {
	seen := make(map[api.InstanceID]struct{})
	collect := func(events []*protos.HistoryEvent) {
		for _, e := range events {
			if created := e.SubOrchestrationInstanceCreated; created != nil {
				seen[api.InstanceID(created.InstanceId)] = struct{}{}
			}
		}
	}
	collect(oldEvents)
	collect(newEvents)

	instances := make([]api.InstanceID, 0, len(seen))
	for id := range seen {
		instances = append(instances, id)
	}
	return instances
}
