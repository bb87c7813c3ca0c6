package helpers

import (
	"fmt"
	"strings"

	"github.com/quayside-run/durabletask/internal/protos"
)

// GetHistoryEventTypeName returns the event's variant name for logging.
func GetHistoryEventTypeName(e *protos.HistoryEvent) string {
	switch {
	case e == nil:
		return "Unknown"
	case e.ExecutionStarted != nil:
		return "ExecutionStarted"
	case e.ExecutionCompleted != nil:
		return "ExecutionCompleted"
	case e.ExecutionTerminated != nil:
		return "ExecutionTerminated"
	case e.ExecutionSuspended != nil:
		return "ExecutionSuspended"
	case e.ExecutionResumed != nil:
		return "ExecutionResumed"
	case e.OrchestratorStarted != nil:
		return "OrchestratorStarted"
	case e.OrchestratorCompleted != nil:
		return "OrchestratorCompleted"
	case e.TaskScheduled != nil:
		return "TaskScheduled"
	case e.TaskCompleted != nil:
		return "TaskCompleted"
	case e.TaskFailed != nil:
		return "TaskFailed"
	case e.TimerCreated != nil:
		return "TimerCreated"
	case e.TimerFired != nil:
		return "TimerFired"
	case e.SubOrchestrationInstanceCreated != nil:
		return "SubOrchestrationInstanceCreated"
	case e.SubOrchestrationInstanceCompleted != nil:
		return "SubOrchestrationInstanceCompleted"
	case e.SubOrchestrationInstanceFailed != nil:
		return "SubOrchestrationInstanceFailed"
	case e.EventSent != nil:
		return "EventSent"
	case e.EventRaised != nil:
		return "EventRaised"
	case e.GenericEvent != nil:
		return "GenericEvent"
	case e.HistoryState != nil:
		return "HistoryState"
	case e.ContinueAsNew != nil:
		return "ContinueAsNew"
	default:
		return "Unknown"
	}
}

// GetActionTypeName returns the action's variant name for logging.
func GetActionTypeName(a *protos.OrchestratorAction) string {
	switch {
	case a == nil:
		return "Unknown"
	case a.ScheduleTask != nil:
		return "ScheduleTask"
	case a.CreateTimer != nil:
		return "CreateTimer"
	case a.CreateSubOrchestration != nil:
		return "CreateSubOrchestration"
	case a.SendEvent != nil:
		return "SendEvent"
	case a.CompleteOrchestration != nil:
		return "CompleteOrchestration"
	case a.TerminateOrchestration != nil:
		return "TerminateOrchestration"
	default:
		return "Unknown"
	}
}

// GetTaskID returns the task/timer id an event correlates to. Events whose
// EventId is set (anything but NotCorrelated) report it directly; events
// stamped NotCorrelated (-1) have it looked up inside the payload below.
// ExecutionStarted events always report their own EventId, so the
// parent-instance branch is kept but never reached.
func GetTaskID(e *protos.HistoryEvent) int32 {
	if e == nil {
		return NotCorrelated
	}
	if e.EventId != NotCorrelated || e.ExecutionStarted != nil {
		return e.EventId
	}
	switch {
	case e.TaskCompleted != nil:
		return e.TaskCompleted.TaskScheduledId
	case e.TaskFailed != nil:
		return e.TaskFailed.TaskScheduledId
	case e.SubOrchestrationInstanceCompleted != nil:
		return e.SubOrchestrationInstanceCompleted.TaskScheduledId
	case e.SubOrchestrationInstanceFailed != nil:
		return e.SubOrchestrationInstanceFailed.TaskScheduledId
	case e.TimerFired != nil:
		return e.TimerFired.TimerId
	case e.ExecutionStarted != nil && e.ExecutionStarted.ParentInstance != nil:
		return e.ExecutionStarted.ParentInstance.TaskScheduledId
	default:
		return e.EventId
	}
}

const summaryTruncateAt = 10

// HistoryListSummary renders a bounded, loggable summary of a history event
// list: up to 10 type names, then "..." if more remain.
func HistoryListSummary(events []*protos.HistoryEvent) string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, GetHistoryEventTypeName(e))
	}
	return truncatedSummary(names)
}

// ActionListSummary is HistoryListSummary's action-list counterpart.
func ActionListSummary(actions []*protos.OrchestratorAction) string {
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, GetActionTypeName(a))
	}
	return truncatedSummary(names)
}

func truncatedSummary(names []string) string {
	if len(names) <= summaryTruncateAt {
		return fmt.Sprintf("[%s]", strings.Join(names, ", "))
	}
	return fmt.Sprintf("[%s, ...]", strings.Join(names[:summaryTruncateAt], ", "))
}
