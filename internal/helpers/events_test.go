package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quayside-run/durabletask/internal/protos"
)

func TestNewExecutionStartedEvent_AssignsExecutionID(t *testing.T) {
	evt := NewExecutionStartedEvent("MyOrchestrator", "instance-1", nil, nil, nil, nil)
	require.Equal(t, NotCorrelated, evt.EventId)
	require.NotNil(t, evt.ExecutionStarted)
	require.Equal(t, "instance-1", evt.ExecutionStarted.OrchestrationInstance.InstanceId)
	require.NotEmpty(t, protos.StrVal(evt.ExecutionStarted.OrchestrationInstance.ExecutionId))
}

func TestNewExecutionStartedEvent_FreshExecutionIDsDiffer(t *testing.T) {
	a := NewExecutionStartedEvent("O", "i", nil, nil, nil, nil)
	b := NewExecutionStartedEvent("O", "i", nil, nil, nil, nil)
	require.NotEqual(t,
		protos.StrVal(a.ExecutionStarted.OrchestrationInstance.ExecutionId),
		protos.StrVal(b.ExecutionStarted.OrchestrationInstance.ExecutionId),
	)
}

func TestNewExecutionTerminatedEvent_NonRecursive(t *testing.T) {
	evt := NewExecutionTerminatedEvent(protos.Str("done"))
	require.False(t, evt.ExecutionTerminated.Recurse)
	require.Equal(t, "done", protos.StrVal(evt.ExecutionTerminated.Input))
}

func TestNewExecutionTerminatedEventRecurse(t *testing.T) {
	evt := NewExecutionTerminatedEventRecurse(protos.Str("cascade"), true)
	require.True(t, evt.ExecutionTerminated.Recurse)
}

func TestNewTaskScheduledEvent_CarriesTaskIDAsEventID(t *testing.T) {
	evt := NewTaskScheduledEvent(42, "DoWork", nil, nil, nil)
	require.Equal(t, int32(42), evt.EventId)
	require.Equal(t, "DoWork", evt.TaskScheduled.Name)
}

func TestNewTimerCreatedEvent_CarriesIDAsEventID(t *testing.T) {
	evt := NewTimerCreatedEvent(9, nil)
	require.Equal(t, int32(9), evt.EventId)
}

func TestNewParentInfo(t *testing.T) {
	p := NewParentInfo(3, "Parent", "parent-instance")
	require.Equal(t, int32(3), p.TaskScheduledId)
	require.Equal(t, "Parent", protos.StrVal(p.Name))
	require.Equal(t, "parent-instance", p.OrchestrationInstance.InstanceId)
}
