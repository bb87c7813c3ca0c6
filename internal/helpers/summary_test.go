package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quayside-run/durabletask/internal/protos"
)

func TestHistoryListSummary_Truncates(t *testing.T) {
	events := make([]*protos.HistoryEvent, 0, 12)
	for i := 0; i < 12; i++ {
		events = append(events, NewOrchestratorStartedEvent())
	}
	summary := HistoryListSummary(events)
	require.Contains(t, summary, "...")
	require.Len(t, events, 12)
}

func TestHistoryListSummary_NoTruncationUnderLimit(t *testing.T) {
	events := []*protos.HistoryEvent{NewOrchestratorStartedEvent(), NewEventRaisedEvent("go", nil)}
	summary := HistoryListSummary(events)
	require.NotContains(t, summary, "...")
	require.Contains(t, summary, "OrchestratorStarted")
	require.Contains(t, summary, "EventRaised")
}

func TestActionListSummary(t *testing.T) {
	actions := []*protos.OrchestratorAction{
		NewScheduleTaskAction(1, "DoWork", nil),
		NewCreateTimerAction(2, nil),
	}
	summary := ActionListSummary(actions)
	require.Contains(t, summary, "ScheduleTask")
	require.Contains(t, summary, "CreateTimer")
}

func TestGetTaskID_DirectEventID(t *testing.T) {
	evt := NewTaskScheduledEvent(7, "DoWork", nil, nil, nil)
	require.Equal(t, int32(7), GetTaskID(evt))
}

func TestGetTaskID_TaskCompletedFallback(t *testing.T) {
	evt := NewTaskCompletedEvent(7, nil)
	require.Equal(t, int32(7), GetTaskID(evt))
}

func TestGetTaskID_TaskFailedFallback(t *testing.T) {
	evt := NewTaskFailedEvent(9, NewTaskFailureDetails(errBoom{}))
	require.Equal(t, int32(9), GetTaskID(evt))
}

func TestGetTaskID_TimerFiredFallback(t *testing.T) {
	evt := NewTimerFiredEvent(3, nil)
	require.Equal(t, int32(3), GetTaskID(evt))
}

func TestGetTaskID_ExecutionStartedUsesDirectEventID(t *testing.T) {
	// ExecutionStarted's EventId is always stamped NotCorrelated (-1), so
	// the direct-EventId branch wins before the parent-instance fallback
	// is ever consulted.
	evt := NewExecutionStartedEvent("Sub", "sub-1", nil, NewParentInfo(5, "Parent", "parent-1"), nil, nil)
	require.Equal(t, NotCorrelated, GetTaskID(evt))
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
