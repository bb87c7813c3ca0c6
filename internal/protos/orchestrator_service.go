// Package protos holds the message shapes exchanged with the orchestrator
// service. It binds to the orchestrator_service protobuf schema the way
// protoc-gen-go output would, without depending on a protoc toolchain run:
// the schema is a stable, externally-owned boundary.
//
// Optional string fields use google.protobuf.StringValue (wrapperspb),
// matching the wire schema (built with wrapperspb.String or Str below)
// rather than Go's *string.
package protos

import (
	"fmt"

	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// OrchestrationStatus mirrors the wire enum. Values and the
// "ORCHESTRATION_STATUS_" name prefix match the canonical schema so that
// helpers.ToRuntimeStatusString's prefix stripping is meaningful.
type OrchestrationStatus int32

const (
	OrchestrationStatus_ORCHESTRATION_STATUS_RUNNING          OrchestrationStatus = 0
	OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED        OrchestrationStatus = 1
	OrchestrationStatus_ORCHESTRATION_STATUS_CONTINUED_AS_NEW OrchestrationStatus = 2
	OrchestrationStatus_ORCHESTRATION_STATUS_FAILED           OrchestrationStatus = 3
	OrchestrationStatus_ORCHESTRATION_STATUS_CANCELED         OrchestrationStatus = 4
	OrchestrationStatus_ORCHESTRATION_STATUS_TERMINATED       OrchestrationStatus = 5
	OrchestrationStatus_ORCHESTRATION_STATUS_PENDING          OrchestrationStatus = 6
	OrchestrationStatus_ORCHESTRATION_STATUS_SUSPENDED        OrchestrationStatus = 7
)

var orchestrationStatusNames = map[OrchestrationStatus]string{
	OrchestrationStatus_ORCHESTRATION_STATUS_RUNNING:          "ORCHESTRATION_STATUS_RUNNING",
	OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED:        "ORCHESTRATION_STATUS_COMPLETED",
	OrchestrationStatus_ORCHESTRATION_STATUS_CONTINUED_AS_NEW: "ORCHESTRATION_STATUS_CONTINUED_AS_NEW",
	OrchestrationStatus_ORCHESTRATION_STATUS_FAILED:           "ORCHESTRATION_STATUS_FAILED",
	OrchestrationStatus_ORCHESTRATION_STATUS_CANCELED:         "ORCHESTRATION_STATUS_CANCELED",
	OrchestrationStatus_ORCHESTRATION_STATUS_TERMINATED:       "ORCHESTRATION_STATUS_TERMINATED",
	OrchestrationStatus_ORCHESTRATION_STATUS_PENDING:          "ORCHESTRATION_STATUS_PENDING",
	OrchestrationStatus_ORCHESTRATION_STATUS_SUSPENDED:        "ORCHESTRATION_STATUS_SUSPENDED",
}

var orchestrationStatusValues = func() map[string]OrchestrationStatus {
	m := make(map[string]OrchestrationStatus, len(orchestrationStatusNames))
	for v, n := range orchestrationStatusNames {
		m[n] = v
	}
	return m
}()

// String implements fmt.Stringer, returning the full wire enum name
// including the "ORCHESTRATION_STATUS_" prefix.
func (s OrchestrationStatus) String() string {
	if n, ok := orchestrationStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("ORCHESTRATION_STATUS_%d", int32(s))
}

// OrchestrationStatusFromName is the enum-level inverse of String, used by
// helpers.FromRuntimeStatusString. It reports false for unknown names
// rather than guessing.
func OrchestrationStatusFromName(name string) (OrchestrationStatus, bool) {
	s, ok := orchestrationStatusValues[name]
	return s, ok
}

// CreateOrchestrationAction is the id-reuse-policy action enum.
type CreateOrchestrationAction int32

const (
	CreateOrchestrationAction_ERROR     CreateOrchestrationAction = 0
	CreateOrchestrationAction_IGNORE    CreateOrchestrationAction = 1
	CreateOrchestrationAction_TERMINATE CreateOrchestrationAction = 2
)

// OrchestrationIdReusePolicy controls CreateInstanceRequest's behavior when
// an instance with the requested id already exists.
type OrchestrationIdReusePolicy struct {
	OperationStatus []OrchestrationStatus
	Action          CreateOrchestrationAction
}

// OrchestrationInstance identifies one execution of an orchestration.
type OrchestrationInstance struct {
	InstanceId  string
	ExecutionId *wrapperspb.StringValue
}

// ParentInstanceInfo is carried on a sub-orchestration's ExecutionStarted
// event, pointing back at the parent that scheduled it.
type ParentInstanceInfo struct {
	TaskScheduledId       int32
	Name                  *wrapperspb.StringValue
	Version               *wrapperspb.StringValue
	OrchestrationInstance *OrchestrationInstance
}

// TraceContext carries a W3C traceparent/tracestate pair, or the legacy
// (pre-W3C) trace id + span id pair.
type TraceContext struct {
	TraceParent string
	SpanID      *wrapperspb.StringValue
	TraceState  *wrapperspb.StringValue
}

// TaskFailureDetails captures a failed task/activity/orchestration's error.
type TaskFailureDetails struct {
	ErrorType      string
	ErrorMessage   string
	StackTrace     *wrapperspb.StringValue
	InnerFailure   *TaskFailureDetails
	IsNonRetriable bool
}

// HistoryEvent is a tagged union: exactly one of the per-kind event fields is
// set, matching a protobuf oneof. Getters follow protoc-gen-go's nil-safe
// convention so callers can write e.GetExecutionStarted() without a type
// switch.
type HistoryEvent struct {
	EventId   int32
	Timestamp *timestamppb.Timestamp

	ExecutionStarted                  *ExecutionStartedEvent
	ExecutionCompleted                *ExecutionCompletedEvent
	ExecutionTerminated               *ExecutionTerminatedEvent
	ExecutionSuspended                *ExecutionSuspendedEvent
	ExecutionResumed                  *ExecutionResumedEvent
	OrchestratorStarted               *OrchestratorStartedEvent
	OrchestratorCompleted             *OrchestratorCompletedEvent
	TaskScheduled                     *TaskScheduledEvent
	TaskCompleted                     *TaskCompletedEvent
	TaskFailed                        *TaskFailedEvent
	TimerCreated                      *TimerCreatedEvent
	TimerFired                        *TimerFiredEvent
	SubOrchestrationInstanceCreated   *SubOrchestrationInstanceCreatedEvent
	SubOrchestrationInstanceCompleted *SubOrchestrationInstanceCompletedEvent
	SubOrchestrationInstanceFailed    *SubOrchestrationInstanceFailedEvent
	EventSent                         *EventSentEvent
	EventRaised                       *EventRaisedEvent
	GenericEvent                      *GenericEventPayload
	HistoryState                      *HistoryStateEvent
	ContinueAsNew                     *ContinueAsNewEvent
}

type ExecutionStartedEvent struct {
	Name                    string
	ParentInstance          *ParentInstanceInfo
	Input                   *wrapperspb.StringValue
	OrchestrationInstance   *OrchestrationInstance
	ParentTraceContext      *TraceContext
	ScheduledStartTimestamp *timestamppb.Timestamp
}

type ExecutionCompletedEvent struct {
	OrchestrationStatus OrchestrationStatus
	Result              *wrapperspb.StringValue
	FailureDetails      *TaskFailureDetails
}

type ExecutionTerminatedEvent struct {
	Input   *wrapperspb.StringValue
	Recurse bool
}

type ExecutionSuspendedEvent struct {
	Input *wrapperspb.StringValue
}

type ExecutionResumedEvent struct {
	Input *wrapperspb.StringValue
}

type OrchestratorStartedEvent struct{}

type OrchestratorCompletedEvent struct{}

type TaskScheduledEvent struct {
	Name               string
	Version            *wrapperspb.StringValue
	Input              *wrapperspb.StringValue
	ParentTraceContext *TraceContext
}

type TaskCompletedEvent struct {
	TaskScheduledId int32
	Result          *wrapperspb.StringValue
}

type TaskFailedEvent struct {
	TaskScheduledId int32
	FailureDetails  *TaskFailureDetails
}

type TimerCreatedEvent struct {
	FireAt *timestamppb.Timestamp
}

type TimerFiredEvent struct {
	TimerId int32
	FireAt  *timestamppb.Timestamp
}

type SubOrchestrationInstanceCreatedEvent struct {
	Name               string
	Version            *wrapperspb.StringValue
	Input              *wrapperspb.StringValue
	InstanceId         string
	ParentTraceContext *TraceContext
}

type SubOrchestrationInstanceCompletedEvent struct {
	TaskScheduledId int32
	Result          *wrapperspb.StringValue
}

type SubOrchestrationInstanceFailedEvent struct {
	TaskScheduledId int32
	FailureDetails  *TaskFailureDetails
}

type EventSentEvent struct {
	InstanceId string
	Name       string
	Input      *wrapperspb.StringValue
}

type EventRaisedEvent struct {
	Name  string
	Input *wrapperspb.StringValue
}

type GenericEventPayload struct {
	Data string
}

type HistoryStateEvent struct {
	OrchestrationState *OrchestrationState
}

type ContinueAsNewEvent struct {
	Input *wrapperspb.StringValue
}

// OrchestratorAction is a tagged union produced by orchestration logic.
type OrchestratorAction struct {
	Id int32

	ScheduleTask           *ScheduleTaskAction
	CreateTimer            *CreateTimerAction
	CreateSubOrchestration *CreateSubOrchestrationAction
	SendEvent              *SendEventAction
	CompleteOrchestration  *CompleteOrchestrationAction
	TerminateOrchestration *TerminateOrchestrationAction
}

type ScheduleTaskAction struct {
	Name    string
	Version *wrapperspb.StringValue
	Input   *wrapperspb.StringValue
}

type CreateTimerAction struct {
	FireAt *timestamppb.Timestamp
}

type CreateSubOrchestrationAction struct {
	Name       string
	Version    *wrapperspb.StringValue
	Input      *wrapperspb.StringValue
	InstanceId string
}

type SendEventAction struct {
	Instance *OrchestrationInstance
	Name     string
	Data     *wrapperspb.StringValue
}

type CompleteOrchestrationAction struct {
	OrchestrationStatus OrchestrationStatus
	Result              *wrapperspb.StringValue
	Details             *wrapperspb.StringValue
	NewVersion          *wrapperspb.StringValue
	CarryoverEvents     []*HistoryEvent
	FailureDetails      *TaskFailureDetails
}

type TerminateOrchestrationAction struct {
	InstanceId string
	Recurse    bool
	Reason     *wrapperspb.StringValue
}

// OrchestrationState is the wire projection of an instance's metadata,
// returned by GetInstance.
type OrchestrationState struct {
	InstanceId           string
	Name                 string
	OrchestrationStatus  OrchestrationStatus
	CreatedTimestamp     *timestamppb.Timestamp
	LastUpdatedTimestamp *timestamppb.Timestamp
	Input                *wrapperspb.StringValue
	Output               *wrapperspb.StringValue
	CustomStatus         *wrapperspb.StringValue
	FailureDetails       *TaskFailureDetails
}

// --- RPC surface (CreateInstance, GetInstance, RaiseEvent, Terminate, PurgeInstances) ---

type CreateInstanceRequest struct {
	InstanceId                 string
	Name                       string
	Version                    *wrapperspb.StringValue
	Input                      *wrapperspb.StringValue
	ScheduledStartTimestamp    *timestamppb.Timestamp
	OrchestrationIdReusePolicy *OrchestrationIdReusePolicy
}

type CreateInstanceResponse struct {
	InstanceId string
}

type GetInstanceRequest struct {
	InstanceId          string
	GetInputsAndOutputs bool
}

type GetInstanceResponse struct {
	Exists             bool
	OrchestrationState *OrchestrationState
}

type RaiseEventRequest struct {
	InstanceId string
	Name       string
	Input      *wrapperspb.StringValue
}

type RaiseEventResponse struct{}

type TerminateRequest struct {
	InstanceId string
	Output     *wrapperspb.StringValue
	Recursive  *bool
}

type TerminateResponse struct{}

type PurgeInstancesRequest struct {
	InstanceId string
	Recursive  *bool
}

type PurgeInstancesResponse struct {
	DeletedInstanceCount int32
}

// --- nil-safe getters (protoc-gen-go convention) ---

func (e *HistoryEvent) GetEventId() int32 {
	if e == nil {
		return 0
	}
	return e.EventId
}

func (e *HistoryEvent) GetTimestamp() *timestamppb.Timestamp {
	if e == nil {
		return nil
	}
	return e.Timestamp
}

func (e *HistoryEvent) GetExecutionStarted() *ExecutionStartedEvent {
	if e == nil {
		return nil
	}
	return e.ExecutionStarted
}

func (e *HistoryEvent) GetExecutionCompleted() *ExecutionCompletedEvent {
	if e == nil {
		return nil
	}
	return e.ExecutionCompleted
}

func (e *HistoryEvent) GetExecutionTerminated() *ExecutionTerminatedEvent {
	if e == nil {
		return nil
	}
	return e.ExecutionTerminated
}

func (e *HistoryEvent) GetTaskScheduled() *TaskScheduledEvent {
	if e == nil {
		return nil
	}
	return e.TaskScheduled
}

func (e *HistoryEvent) GetTaskCompleted() *TaskCompletedEvent {
	if e == nil {
		return nil
	}
	return e.TaskCompleted
}

func (e *HistoryEvent) GetTaskFailed() *TaskFailedEvent {
	if e == nil {
		return nil
	}
	return e.TaskFailed
}

func (e *HistoryEvent) GetSubOrchestrationInstanceCreated() *SubOrchestrationInstanceCreatedEvent {
	if e == nil {
		return nil
	}
	return e.SubOrchestrationInstanceCreated
}

func (e *ExecutionStartedEvent) GetName() string {
	if e == nil {
		return ""
	}
	return e.Name
}

func (e *ExecutionCompletedEvent) GetOrchestrationStatus() OrchestrationStatus {
	if e == nil {
		return OrchestrationStatus_ORCHESTRATION_STATUS_RUNNING
	}
	return e.OrchestrationStatus
}

func (a *OrchestratorAction) GetId() int32 {
	if a == nil {
		return 0
	}
	return a.Id
}

// Str is a convenience constructor for optional wire strings, mirroring the
// wrapperspb.String helper.
func Str(s string) *wrapperspb.StringValue {
	return wrapperspb.String(s)
}

// StrVal reads an optional wire string, returning "" for nil (protoc-gen-go
// getter convention) rather than panicking.
func StrVal(s *wrapperspb.StringValue) string {
	if s == nil {
		return ""
	}
	return s.GetValue()
}
