package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/helpers"
	"github.com/quayside-run/durabletask/internal/protos"
)

// fakeBackend is a minimal in-memory Backend used to exercise the
// purge/terminate tree-walk algorithms (backend.go) without a real store.
type fakeBackend struct {
	history map[api.InstanceID][]*protos.HistoryEvent
	deleted map[api.InstanceID]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history: make(map[api.InstanceID][]*protos.HistoryEvent),
		deleted: make(map[api.InstanceID]bool),
	}
}

func (f *fakeBackend) CreateTaskHub(ctx context.Context) error { return nil }
func (f *fakeBackend) DeleteTaskHub(ctx context.Context) error { return nil }
func (f *fakeBackend) Start(ctx context.Context) error         { return nil }
func (f *fakeBackend) Stop(ctx context.Context) error          { return nil }

func (f *fakeBackend) CreateOrchestrationInstance(ctx context.Context, event *protos.HistoryEvent, opts ...OrchestrationIdReusePolicyOption) error {
	id := api.InstanceID(event.ExecutionStarted.OrchestrationInstance.InstanceId)
	f.history[id] = append(f.history[id], event)
	return nil
}

func (f *fakeBackend) AddNewOrchestrationEvent(ctx context.Context, instanceID api.InstanceID, event *protos.HistoryEvent) error {
	f.history[instanceID] = append(f.history[instanceID], event)
	return nil
}

func (f *fakeBackend) GetOrchestrationWorkItem(ctx context.Context) (*OrchestrationWorkItem, error) {
	return nil, nil
}

func (f *fakeBackend) GetOrchestrationRuntimeState(ctx context.Context, wi *OrchestrationWorkItem) (*OrchestrationRuntimeState, error) {
	return NewOrchestrationRuntimeState(wi.InstanceID, f.history[wi.InstanceID], nil), nil
}

func (f *fakeBackend) GetOrchestrationMetadata(ctx context.Context, instanceID api.InstanceID) (*api.OrchestrationMetadata, error) {
	return nil, api.ErrInstanceNotFound
}

func (f *fakeBackend) CompleteOrchestrationWorkItem(ctx context.Context, wi *OrchestrationWorkItem) error {
	return nil
}

func (f *fakeBackend) AbandonOrchestrationWorkItem(ctx context.Context, wi *OrchestrationWorkItem) error {
	return nil
}

func (f *fakeBackend) GetActivityWorkItem(ctx context.Context) (*ActivityWorkItem, error) {
	return nil, nil
}
func (f *fakeBackend) CompleteActivityWorkItem(ctx context.Context, wi *ActivityWorkItem) error {
	return nil
}
func (f *fakeBackend) AbandonActivityWorkItem(ctx context.Context, wi *ActivityWorkItem) error {
	return nil
}

func (f *fakeBackend) PurgeOrchestrationState(ctx context.Context, instanceID api.InstanceID) error {
	if _, ok := f.history[instanceID]; !ok {
		return api.ErrInstanceNotFound
	}
	delete(f.history, instanceID)
	f.deleted[instanceID] = true
	return nil
}

func addStarted(f *fakeBackend, instanceID, name string, at time.Time) {
	e := helpers.NewExecutionStartedEvent(name, instanceID, nil, nil, nil, nil)
	e.Timestamp = timestamppb.New(at)
	f.history[api.InstanceID(instanceID)] = append(f.history[api.InstanceID(instanceID)], e)
}

func addCompleted(f *fakeBackend, instanceID string) {
	e := helpers.NewExecutionCompletedEvent(helpers.NotCorrelated, protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED, nil, nil)
	f.history[api.InstanceID(instanceID)] = append(f.history[api.InstanceID(instanceID)], e)
}

func addSubOrchestrationCreated(f *fakeBackend, parent, child string, taskID int32) {
	e := helpers.NewSubOrchestrationCreatedEvent(taskID, "Child", nil, nil, child, nil)
	f.history[api.InstanceID(parent)] = append(f.history[api.InstanceID(parent)], e)
}

func TestPurgeOrchestrationState_Recursive_UnknownInstance(t *testing.T) {
	f := newFakeBackend()
	_, err := PurgeOrchestrationState(context.Background(), f, "missing", true)
	require.ErrorIs(t, err, ErrTaskHubNotFound)
}

func TestPurgeOrchestrationState_Recursive_NotCompleted(t *testing.T) {
	f := newFakeBackend()
	addStarted(f, "running", "A", time.Unix(0, 0))
	_, err := PurgeOrchestrationState(context.Background(), f, "running", true)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestPurgeOrchestrationState_RecursesIntoChildren(t *testing.T) {
	f := newFakeBackend()
	addStarted(f, "parent", "P", time.Unix(0, 0))
	addSubOrchestrationCreated(f, "parent", "child-1", 1)
	addSubOrchestrationCreated(f, "parent", "child-2", 2)
	addCompleted(f, "parent")

	addStarted(f, "child-1", "C1", time.Unix(0, 0))
	addCompleted(f, "child-1")
	addStarted(f, "child-2", "C2", time.Unix(0, 0))
	addCompleted(f, "child-2")

	count, err := PurgeOrchestrationState(context.Background(), f, "parent", true)
	require.NoError(t, err)
	require.Equal(t, int32(3), count)
	require.True(t, f.deleted["parent"])
	require.True(t, f.deleted["child-1"])
	require.True(t, f.deleted["child-2"])
}

func TestPurgeOrchestrationState_NonRecursiveSkipsValidityChecks(t *testing.T) {
	f := newFakeBackend()
	addStarted(f, "solo", "S", time.Unix(0, 0))
	count, err := PurgeOrchestrationState(context.Background(), f, "solo", false)
	require.NoError(t, err)
	require.Equal(t, int32(1), count)
}

func TestTerminateSubOrchestrationInstances_Recurse(t *testing.T) {
	f := newFakeBackend()
	addStarted(f, "parent", "P", time.Unix(0, 0))
	addSubOrchestrationCreated(f, "parent", "child-1", 1)
	wi := &OrchestrationWorkItem{InstanceID: "parent"}
	state, err := f.GetOrchestrationRuntimeState(context.Background(), wi)
	require.NoError(t, err)

	et := &protos.ExecutionTerminatedEvent{Input: protos.Str("cascade"), Recurse: true}
	require.NoError(t, TerminateSubOrchestrationInstances(context.Background(), f, state, et))

	childEvents := f.history["child-1"]
	require.Len(t, childEvents, 1)
	require.NotNil(t, childEvents[0].ExecutionTerminated)
	require.True(t, childEvents[0].ExecutionTerminated.Recurse)
}

func TestTerminateSubOrchestrationInstances_NonRecurseNoOp(t *testing.T) {
	f := newFakeBackend()
	addStarted(f, "parent", "P", time.Unix(0, 0))
	addSubOrchestrationCreated(f, "parent", "child-1", 1)
	wi := &OrchestrationWorkItem{InstanceID: "parent"}
	state, err := f.GetOrchestrationRuntimeState(context.Background(), wi)
	require.NoError(t, err)

	et := &protos.ExecutionTerminatedEvent{Recurse: false}
	require.NoError(t, TerminateSubOrchestrationInstances(context.Background(), f, state, et))
	require.Empty(t, f.history["child-1"])
}

func TestMarshalUnmarshalHistoryEvent_RoundTrip(t *testing.T) {
	original := helpers.NewExecutionStartedEvent("A", "id", protos.Str("in"), nil, nil, nil)
	data, err := MarshalHistoryEvent(original)
	require.NoError(t, err)

	decoded, err := UnmarshalHistoryEvent(data)
	require.NoError(t, err)
	require.Equal(t, original.ExecutionStarted.Name, decoded.ExecutionStarted.Name)
}
