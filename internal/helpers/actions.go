package helpers

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/quayside-run/durabletask/internal/protos"
)

func NewScheduleTaskAction(taskID int32, name string, input *wrapperspb.StringValue) *protos.OrchestratorAction {
	return &protos.OrchestratorAction{
		Id: taskID,
		ScheduleTask: &protos.ScheduleTaskAction{
			Name:  name,
			Input: input,
		},
	}
}

func NewCreateTimerAction(taskID int32, fireAt *timestamppb.Timestamp) *protos.OrchestratorAction {
	return &protos.OrchestratorAction{
		Id:          taskID,
		CreateTimer: &protos.CreateTimerAction{FireAt: fireAt},
	}
}

func NewSendEventAction(instanceID, name string, data *wrapperspb.StringValue) *protos.OrchestratorAction {
	return &protos.OrchestratorAction{
		Id: NotCorrelated,
		SendEvent: &protos.SendEventAction{
			Instance: &protos.OrchestrationInstance{InstanceId: instanceID},
			Name:     name,
			Data:     data,
		},
	}
}

func NewCreateSubOrchestrationAction(taskID int32, name, instanceID string, input *wrapperspb.StringValue) *protos.OrchestratorAction {
	return &protos.OrchestratorAction{
		Id: taskID,
		CreateSubOrchestration: &protos.CreateSubOrchestrationAction{
			Name:       name,
			Input:      input,
			InstanceId: instanceID,
		},
	}
}

func NewCompleteOrchestrationAction(
	taskID int32,
	status protos.OrchestrationStatus,
	result *wrapperspb.StringValue,
	carryoverEvents []*protos.HistoryEvent,
	failureDetails *protos.TaskFailureDetails,
) *protos.OrchestratorAction {
	return &protos.OrchestratorAction{
		Id: taskID,
		CompleteOrchestration: &protos.CompleteOrchestrationAction{
			OrchestrationStatus: status,
			Result:              result,
			CarryoverEvents:     carryoverEvents,
			FailureDetails:      failureDetails,
		},
	}
}

func NewTerminateOrchestrationAction(taskID int32, instanceID string, recurse bool, reason *wrapperspb.StringValue) *protos.OrchestratorAction {
	return &protos.OrchestratorAction{
		Id: taskID,
		TerminateOrchestration: &protos.TerminateOrchestrationAction{
			InstanceId: instanceID,
			Recurse:    recurse,
			Reason:     reason,
		},
	}
}

// NewTaskFailureDetails captures err's dynamic type name plus its display
// string.
func NewTaskFailureDetails(err error) *protos.TaskFailureDetails {
	return &protos.TaskFailureDetails{
		ErrorType:    typeName(err),
		ErrorMessage: err.Error(),
	}
}

func typeName(v interface{}) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Ptr {
		return fmt.Sprintf("*%s", t.Elem().String())
	}
	return t.String()
}
