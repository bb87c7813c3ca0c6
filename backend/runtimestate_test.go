package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/helpers"
	"github.com/quayside-run/durabletask/internal/protos"
)

func startedEvent(name, instanceID string, at time.Time) *protos.HistoryEvent {
	e := helpers.NewExecutionStartedEvent(name, instanceID, nil, nil, nil, nil)
	e.Timestamp = timestamppb.New(at)
	return e
}

func TestNewOrchestrationRuntimeState_Empty(t *testing.T) {
	state := NewOrchestrationRuntimeState("empty-instance", nil, nil)
	require.True(t, state.IsValid())
	require.Equal(t, protos.OrchestrationStatus_ORCHESTRATION_STATUS_PENDING, state.RuntimeStatus())
	require.False(t, state.IsCompleted())
}

func TestOrchestrationCompletesWithOutput(t *testing.T) {
	t0 := time.Unix(1000, 0)
	history := []*protos.HistoryEvent{
		startedEvent("Hello", "instance-1", t0),
		helpers.NewExecutionCompletedEvent(helpers.NotCorrelated, protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED, protos.Str("world"), nil),
	}
	state := NewOrchestrationRuntimeState("instance-1", history, nil)

	require.Equal(t, protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED, state.RuntimeStatus())
	output, err := state.Output()
	require.NoError(t, err)
	require.Equal(t, "world", output)
	require.True(t, state.IsCompleted())
}

func TestApplyActions_ScheduleTaskAndCreateTimerBecomePending(t *testing.T) {
	state := NewOrchestrationRuntimeState("instance-2", []*protos.HistoryEvent{
		startedEvent("Loop", "instance-2", time.Unix(0, 0)),
	}, nil)

	fireAt := timestamppb.New(time.Unix(100, 0))
	actions := []*protos.OrchestratorAction{
		helpers.NewScheduleTaskAction(1, "A", protos.Str("x")),
		helpers.NewCreateTimerAction(2, fireAt),
	}

	continuedAsNew, err := state.ApplyActions(actions)
	require.NoError(t, err)
	require.False(t, continuedAsNew)

	require.Len(t, state.NewEvents, 2)
	require.NotNil(t, state.NewEvents[0].TaskScheduled)
	require.Equal(t, int32(1), state.NewEvents[0].EventId)
	require.NotNil(t, state.NewEvents[1].TimerCreated)
	require.Equal(t, int32(2), state.NewEvents[1].EventId)

	require.Len(t, state.PendingTasks(), 1)
	require.Len(t, state.PendingTimers(), 1)
	require.Equal(t, helpers.NotCorrelated, state.PendingTimers()[0].EventId)
	require.Equal(t, fireAt.AsTime(), state.PendingTimers()[0].TimerFired.FireAt.AsTime())
}

func TestApplyActions_ContinueAsNewResetsHistoryAndCarriesOverEvents(t *testing.T) {
	state := NewOrchestrationRuntimeState("loop-instance", []*protos.HistoryEvent{
		startedEvent("loop", "loop-instance", time.Unix(0, 0)),
	}, nil)
	_ = state.AddEvent(helpers.NewOrchestratorStartedEvent())
	_ = state.AddEvent(helpers.NewEventRaisedEvent("Go", nil))
	require.Len(t, state.NewEvents, 2)

	carryover := []*protos.HistoryEvent{helpers.NewEventRaisedEvent("X", nil)}
	action := helpers.NewCompleteOrchestrationAction(0, protos.OrchestrationStatus_ORCHESTRATION_STATUS_CONTINUED_AS_NEW, protos.Str(`{"n":2}`), carryover, nil)

	continuedAsNew, err := state.ApplyActions([]*protos.OrchestratorAction{action})
	require.NoError(t, err)
	require.True(t, continuedAsNew)

	require.Empty(t, state.OldEvents)
	require.True(t, state.ContinuedAsNew())
	require.Len(t, state.NewEvents, 2)
	require.NotNil(t, state.NewEvents[0].ExecutionStarted)
	require.Equal(t, "loop", state.NewEvents[0].ExecutionStarted.Name)
	input, err := state.Input()
	require.NoError(t, err)
	require.Equal(t, `{"n":2}`, input)
	require.NotNil(t, state.NewEvents[1].EventRaised)
	require.Equal(t, "X", state.NewEvents[1].EventRaised.Name)
}

// A batch with multiple actions where a continue-as-new CompleteOrchestration
// short-circuits the rest: later actions in the same batch never apply.
func TestApplyActions_ContinueAsNewShortCircuitsRemainingActions(t *testing.T) {
	state := NewOrchestrationRuntimeState("instance-sc", []*protos.HistoryEvent{
		startedEvent("loop", "instance-sc", time.Unix(0, 0)),
	}, nil)

	actions := []*protos.OrchestratorAction{
		helpers.NewCompleteOrchestrationAction(0, protos.OrchestrationStatus_ORCHESTRATION_STATUS_CONTINUED_AS_NEW, protos.Str("x"), nil, nil),
		helpers.NewScheduleTaskAction(99, "ShouldNeverRun", nil),
	}
	continuedAsNew, err := state.ApplyActions(actions)
	require.NoError(t, err)
	require.True(t, continuedAsNew)
	require.Empty(t, state.PendingTasks())
}

func TestApplyActions_SubOrchestrationWithoutExplicitIDGetsSynthesizedID(t *testing.T) {
	state := NewOrchestrationRuntimeState("P", []*protos.HistoryEvent{
		startedEvent("Parent", "P", time.Unix(0, 0)),
	}, nil)

	action := helpers.NewCreateSubOrchestrationAction(7, "Child", "", protos.Str("in"))
	_, err := state.ApplyActions([]*protos.OrchestratorAction{action})
	require.NoError(t, err)

	require.Len(t, state.PendingMessages(), 1)
	msg := state.PendingMessages()[0]
	require.Equal(t, api.InstanceID("P:0007"), msg.TargetInstanceID)
	require.NotNil(t, msg.HistoryEvent.ExecutionStarted)
	require.Equal(t, "Child", msg.HistoryEvent.ExecutionStarted.Name)
	require.Equal(t, "P:0007", msg.HistoryEvent.ExecutionStarted.OrchestrationInstance.InstanceId)

	require.Len(t, state.NewEvents, 1)
	created := state.NewEvents[0].SubOrchestrationInstanceCreated
	require.NotNil(t, created)
	require.Equal(t, "P:0007", created.InstanceId)
}

func TestApplyActions_SubOrchestrationExplicitInstanceID(t *testing.T) {
	state := NewOrchestrationRuntimeState("P", []*protos.HistoryEvent{
		startedEvent("Parent", "P", time.Unix(0, 0)),
	}, nil)
	action := helpers.NewCreateSubOrchestrationAction(1, "Child", "explicit-child", nil)
	_, err := state.ApplyActions([]*protos.OrchestratorAction{action})
	require.NoError(t, err)
	require.Equal(t, api.InstanceID("explicit-child"), state.PendingMessages()[0].TargetInstanceID)
}

func TestApplyActions_SubOrchestrationCompletionNotifiesParent(t *testing.T) {
	parentInfo := helpers.NewParentInfo(42, "Parent", "parent-id")
	childStart := helpers.NewExecutionStartedEvent("Child", "child-id", nil, parentInfo, nil, nil)
	state := NewOrchestrationRuntimeState("child-id", []*protos.HistoryEvent{childStart}, nil)

	action := helpers.NewCompleteOrchestrationAction(0, protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED, protos.Str("done"), nil, nil)
	_, err := state.ApplyActions([]*protos.OrchestratorAction{action})
	require.NoError(t, err)

	require.Len(t, state.PendingMessages(), 1)
	msg := state.PendingMessages()[0]
	require.Equal(t, api.InstanceID("parent-id"), msg.TargetInstanceID)
	require.NotNil(t, msg.HistoryEvent.SubOrchestrationInstanceCompleted)
	require.Equal(t, int32(42), msg.HistoryEvent.SubOrchestrationInstanceCompleted.TaskScheduledId)
}

func TestApplyActions_SendEvent(t *testing.T) {
	state := NewOrchestrationRuntimeState("instance-se", []*protos.HistoryEvent{
		startedEvent("Sender", "instance-se", time.Unix(0, 0)),
	}, nil)
	action := helpers.NewSendEventAction("target", "Ping", protos.Str("data"))
	_, err := state.ApplyActions([]*protos.OrchestratorAction{action})
	require.NoError(t, err)

	require.Len(t, state.NewEvents, 1)
	require.NotNil(t, state.NewEvents[0].EventSent)
	require.Len(t, state.PendingMessages(), 1)
	require.Equal(t, api.InstanceID("target"), state.PendingMessages()[0].TargetInstanceID)
}

func TestApplyActions_TerminateOrchestrationEnqueuesMessageOnly(t *testing.T) {
	state := NewOrchestrationRuntimeState("instance-term", []*protos.HistoryEvent{
		startedEvent("X", "instance-term", time.Unix(0, 0)),
	}, nil)
	action := helpers.NewTerminateOrchestrationAction(0, "other-instance", true, protos.Str("stop"))
	_, err := state.ApplyActions([]*protos.OrchestratorAction{action})
	require.NoError(t, err)

	require.Empty(t, state.NewEvents)
	require.Len(t, state.PendingMessages(), 1)
	msg := state.PendingMessages()[0]
	require.Equal(t, api.InstanceID("other-instance"), msg.TargetInstanceID)
	require.True(t, msg.HistoryEvent.ExecutionTerminated.Recurse)
}

func TestApplyActions_UnknownActionFails(t *testing.T) {
	state := NewOrchestrationRuntimeState("instance-unk", []*protos.HistoryEvent{
		startedEvent("X", "instance-unk", time.Unix(0, 0)),
	}, nil)
	_, err := state.ApplyActions([]*protos.OrchestratorAction{{Id: 1}})
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestAddEvent_DuplicateStartFails(t *testing.T) {
	state := NewOrchestrationRuntimeState("dup-start", nil, nil)
	require.NoError(t, state.AddEvent(startedEvent("A", "dup-start", time.Unix(0, 0))))
	err := state.AddEvent(startedEvent("A", "dup-start", time.Unix(1, 0)))
	require.ErrorIs(t, err, ErrDuplicateStart)
	require.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestAddEvent_DuplicateCompletedFails(t *testing.T) {
	state := NewOrchestrationRuntimeState("dup-complete", []*protos.HistoryEvent{
		startedEvent("A", "dup-complete", time.Unix(0, 0)),
	}, nil)
	require.NoError(t, state.AddEvent(helpers.NewExecutionCompletedEvent(helpers.NotCorrelated, protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED, nil, nil)))
	err := state.AddEvent(helpers.NewExecutionCompletedEvent(helpers.NotCorrelated, protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED, nil, nil))
	require.ErrorIs(t, err, ErrDuplicateCompleted)
}

// History with two start events happens when an old replica double-enqueues
// a start message; replay tolerates it, keeping the first and dropping the
// second, never failing construction even though AddEvent on its own would
// reject the duplicate.
func TestNewOrchestrationRuntimeState_ReplaySwallowsDuplicateStart(t *testing.T) {
	history := []*protos.HistoryEvent{
		startedEvent("First", "corrupt", time.Unix(0, 0)),
		startedEvent("Second", "corrupt", time.Unix(1, 0)),
	}
	state := NewOrchestrationRuntimeState("corrupt", history, nil)
	require.Equal(t, 1, len(state.OldEvents))
	name, err := state.Name()
	require.NoError(t, err)
	require.Equal(t, "First", name)
}

func TestSuspendResume_TogglesRuntimeStatus(t *testing.T) {
	state := NewOrchestrationRuntimeState("suspend-test", []*protos.HistoryEvent{
		startedEvent("A", "suspend-test", time.Unix(0, 0)),
	}, nil)
	require.Equal(t, protos.OrchestrationStatus_ORCHESTRATION_STATUS_RUNNING, state.RuntimeStatus())

	require.NoError(t, state.AddEvent(helpers.NewSuspendOrchestrationEvent(nil)))
	require.Equal(t, protos.OrchestrationStatus_ORCHESTRATION_STATUS_SUSPENDED, state.RuntimeStatus())

	require.NoError(t, state.AddEvent(helpers.NewResumeOrchestrationEvent(nil)))
	require.Equal(t, protos.OrchestrationStatus_ORCHESTRATION_STATUS_RUNNING, state.RuntimeStatus())
}

func TestIsValid(t *testing.T) {
	empty := NewOrchestrationRuntimeState("none", nil, nil)
	require.True(t, empty.IsValid())

	started := NewOrchestrationRuntimeState("ok", []*protos.HistoryEvent{startedEvent("A", "ok", time.Unix(0, 0))}, nil)
	require.True(t, started.IsValid())
}

func TestProjections_BeforeStartOrCompletion(t *testing.T) {
	state := NewOrchestrationRuntimeState("fresh", nil, nil)

	_, err := state.Name()
	require.ErrorIs(t, err, api.ErrNotStarted)

	_, err = state.Input()
	require.ErrorIs(t, err, api.ErrNotStarted)

	_, err = state.Output()
	require.ErrorIs(t, err, api.ErrNotCompleted)

	_, err = state.FailureDetails()
	require.ErrorIs(t, err, api.ErrNotCompleted)
}

func TestFailureDetails_NoFailuresWhenCompletedCleanly(t *testing.T) {
	state := NewOrchestrationRuntimeState("clean", []*protos.HistoryEvent{
		startedEvent("A", "clean", time.Unix(0, 0)),
		helpers.NewExecutionCompletedEvent(helpers.NotCorrelated, protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED, nil, nil),
	}, nil)
	_, err := state.FailureDetails()
	require.ErrorIs(t, err, api.ErrNoFailures)
}

func TestGetStartedTime_FallsBackToEpoch(t *testing.T) {
	state := NewOrchestrationRuntimeState("timeless", nil, nil)
	require.Equal(t, time.Unix(0, 0).UTC(), state.GetStartedTime())
}
