// Package helpers holds the pure event/action constructors, trace-context
// parsing, and status/summary utilities shared by the backend and api
// packages.
package helpers

import (
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/quayside-run/durabletask/internal/protos"
)

// NotCorrelated is the event_id sentinel for events/actions that do not
// correlate to an outstanding task id.
const NotCorrelated int32 = -1

func stamp(ts *timestamppb.Timestamp) *timestamppb.Timestamp {
	if ts != nil {
		return ts
	}
	return timestamppb.New(DefaultClock.Now())
}

// NewExecutionStartedEvent builds the event that begins an orchestration
// execution. It assigns a fresh random v4 execution id on the embedded
// OrchestrationInstance.
func NewExecutionStartedEvent(
	name, instanceID string,
	input *wrapperspb.StringValue,
	parent *protos.ParentInstanceInfo,
	parentTraceContext *protos.TraceContext,
	scheduledStartTimestamp *timestamppb.Timestamp,
) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   NotCorrelated,
		Timestamp: stamp(nil),
		ExecutionStarted: &protos.ExecutionStartedEvent{
			Name:           name,
			ParentInstance: parent,
			Input:          input,
			OrchestrationInstance: &protos.OrchestrationInstance{
				InstanceId:  instanceID,
				ExecutionId: protos.Str(uuid.NewString()),
			},
			ParentTraceContext:      parentTraceContext,
			ScheduledStartTimestamp: scheduledStartTimestamp,
		},
	}
}

func NewExecutionCompletedEvent(
	eventID int32,
	status protos.OrchestrationStatus,
	result *wrapperspb.StringValue,
	failureDetails *protos.TaskFailureDetails,
) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   eventID,
		Timestamp: stamp(nil),
		ExecutionCompleted: &protos.ExecutionCompletedEvent{
			OrchestrationStatus: status,
			Result:              result,
			FailureDetails:      failureDetails,
		},
	}
}

func NewExecutionTerminatedEvent(reason *wrapperspb.StringValue) *protos.HistoryEvent {
	return NewExecutionTerminatedEventRecurse(reason, false)
}

// NewExecutionTerminatedEventRecurse is the full constructor; client.go
// calls it directly for every terminate, passing the recurse flag
// through, and the reason-only form above fixes recurse to false.
func NewExecutionTerminatedEventRecurse(reason *wrapperspb.StringValue, recurse bool) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   NotCorrelated,
		Timestamp: stamp(nil),
		ExecutionTerminated: &protos.ExecutionTerminatedEvent{
			Input:   reason,
			Recurse: recurse,
		},
	}
}

func NewOrchestratorStartedEvent() *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:            NotCorrelated,
		Timestamp:          stamp(nil),
		OrchestratorStarted: &protos.OrchestratorStartedEvent{},
	}
}

func NewEventRaisedEvent(name string, input *wrapperspb.StringValue) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   NotCorrelated,
		Timestamp: stamp(nil),
		EventRaised: &protos.EventRaisedEvent{
			Name:  name,
			Input: input,
		},
	}
}

// NewTaskScheduledEvent carries its correlating task id as EventId, unlike
// most other constructors.
func NewTaskScheduledEvent(taskID int32, name string, version, input *wrapperspb.StringValue, traceContext *protos.TraceContext) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   taskID,
		Timestamp: stamp(nil),
		TaskScheduled: &protos.TaskScheduledEvent{
			Name:               name,
			Version:            version,
			Input:              input,
			ParentTraceContext: traceContext,
		},
	}
}

func NewTaskCompletedEvent(taskID int32, result *wrapperspb.StringValue) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   NotCorrelated,
		Timestamp: stamp(nil),
		TaskCompleted: &protos.TaskCompletedEvent{
			TaskScheduledId: taskID,
			Result:          result,
		},
	}
}

func NewTaskFailedEvent(taskID int32, failureDetails *protos.TaskFailureDetails) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   NotCorrelated,
		Timestamp: stamp(nil),
		TaskFailed: &protos.TaskFailedEvent{
			TaskScheduledId: taskID,
			FailureDetails:  failureDetails,
		},
	}
}

// NewTimerCreatedEvent carries its correlating timer id as EventId.
func NewTimerCreatedEvent(eventID int32, fireAt *timestamppb.Timestamp) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   eventID,
		Timestamp: stamp(nil),
		TimerCreated: &protos.TimerCreatedEvent{
			FireAt: fireAt,
		},
	}
}

// NewTimerFiredEvent carries EventId=-1; the correlating timer id lives in
// TimerId instead.
func NewTimerFiredEvent(timerID int32, fireAt *timestamppb.Timestamp) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   NotCorrelated,
		Timestamp: stamp(nil),
		TimerFired: &protos.TimerFiredEvent{
			TimerId: timerID,
			FireAt:  fireAt,
		},
	}
}

// NewSubOrchestrationCreatedEvent carries its correlating task id as
// EventId.
func NewSubOrchestrationCreatedEvent(eventID int32, name string, version, input *wrapperspb.StringValue, instanceID string, parentTraceContext *protos.TraceContext) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   eventID,
		Timestamp: stamp(nil),
		SubOrchestrationInstanceCreated: &protos.SubOrchestrationInstanceCreatedEvent{
			Name:               name,
			Version:            version,
			Input:              input,
			InstanceId:         instanceID,
			ParentTraceContext: parentTraceContext,
		},
	}
}

func NewEventSentEvent(eventID int32, instanceID, name string, input *wrapperspb.StringValue) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:   eventID,
		Timestamp: stamp(nil),
		EventSent: &protos.EventSentEvent{
			InstanceId: instanceID,
			Name:       name,
			Input:      input,
		},
	}
}

func NewSuspendOrchestrationEvent(reason *wrapperspb.StringValue) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:            NotCorrelated,
		Timestamp:          stamp(nil),
		ExecutionSuspended: &protos.ExecutionSuspendedEvent{Input: reason},
	}
}

func NewResumeOrchestrationEvent(reason *wrapperspb.StringValue) *protos.HistoryEvent {
	return &protos.HistoryEvent{
		EventId:          NotCorrelated,
		Timestamp:        stamp(nil),
		ExecutionResumed: &protos.ExecutionResumedEvent{Input: reason},
	}
}

// NewParentInfo builds the ParentInstanceInfo carried on a sub-orchestration's
// start event, referencing the parent's task id, name, and instance id.
func NewParentInfo(taskID int32, name, instanceID string) *protos.ParentInstanceInfo {
	return &protos.ParentInstanceInfo{
		TaskScheduledId: taskID,
		Name:            protos.Str(name),
		OrchestrationInstance: &protos.OrchestrationInstance{
			InstanceId: instanceID,
		},
	}
}
