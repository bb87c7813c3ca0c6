// Package api holds the client-facing orchestration identifiers, request
// option builders, and the OrchestrationMetadata projection returned by
// TaskHubClient, using the variadic functional-options style
// NewOrchestrationOptions is passed as to ScheduleNewOrchestration.
package api

import (
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/quayside-run/durabletask/internal/protos"
)

var (
	ErrInstanceNotFound  = errors.New("no such instance exists")
	ErrNotStarted        = errors.New("orchestration has not started")
	ErrNotCompleted      = errors.New("orchestration has not yet completed")
	ErrNoFailures        = errors.New("orchestration did not report failure details")
	ErrDuplicateInstance = errors.New("orchestration instance already exists")
	ErrIgnoreInstance    = errors.New("ignore creating orchestration instance")
)

// InstanceID identifies one orchestration instance across its (possibly
// many, via continue-as-new) executions.
type InstanceID string

// EmptyInstanceID is returned alongside an error when instance creation
// fails, so callers never have to nil-check a value type.
const EmptyInstanceID InstanceID = ""

// OrchestrationIdReusePolicy controls CreateInstance's behavior when an
// instance with the requested id already exists.
type OrchestrationIdReusePolicy = protos.OrchestrationIdReusePolicy

// NewOrchestrationOptions configures a CreateInstanceRequest built by
// ScheduleNewOrchestration. Each option mutates the request in place.
type NewOrchestrationOptions func(req *protos.CreateInstanceRequest) error

// WithInstanceID pins the new orchestration to a caller-chosen instance id
// instead of a generated uuid.
func WithInstanceID(id InstanceID) NewOrchestrationOptions {
	return func(req *protos.CreateInstanceRequest) error {
		req.InstanceId = string(id)
		return nil
	}
}

// WithInput JSON-marshals input and attaches it as the orchestration's
// input payload. A marshal failure is surfaced as an error instead of
// silently producing an empty payload.
func WithInput(input interface{}) NewOrchestrationOptions {
	return func(req *protos.CreateInstanceRequest) error {
		b, err := json.Marshal(input)
		if err != nil {
			return err
		}
		req.Input = protos.Str(string(b))
		return nil
	}
}

// WithRawInput attaches a pre-serialized input payload verbatim.
func WithRawInput(input string) NewOrchestrationOptions {
	return func(req *protos.CreateInstanceRequest) error {
		req.Input = protos.Str(input)
		return nil
	}
}

// WithStartTime delays the orchestration's start until t.
func WithStartTime(t time.Time) NewOrchestrationOptions {
	return func(req *protos.CreateInstanceRequest) error {
		req.ScheduledStartTimestamp = timestamppb.New(t)
		return nil
	}
}

// WithOrchestrationIdReusePolicy sets the policy applied when InstanceId
// collides with an existing instance.
func WithOrchestrationIdReusePolicy(policy *OrchestrationIdReusePolicy) NewOrchestrationOptions {
	return func(req *protos.CreateInstanceRequest) error {
		req.OrchestrationIdReusePolicy = policy
		return nil
	}
}

// FetchOrchestrationMetadataOptions configures a GetInstanceRequest.
type FetchOrchestrationMetadataOptions func(req *protos.GetInstanceRequest)

// WithFetchPayloads controls whether the fetched metadata includes the
// serialized input/output/custom-status payloads.
func WithFetchPayloads(fetch bool) FetchOrchestrationMetadataOptions {
	return func(req *protos.GetInstanceRequest) {
		req.GetInputsAndOutputs = fetch
	}
}

// RaiseEventOptions configures a RaiseEventRequest.
type RaiseEventOptions func(req *protos.RaiseEventRequest) error

// WithEventPayload JSON-marshals payload as the raised event's data.
func WithEventPayload(payload interface{}) RaiseEventOptions {
	return func(req *protos.RaiseEventRequest) error {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		req.Input = protos.Str(string(b))
		return nil
	}
}

// WithRawEventData attaches a pre-serialized event payload verbatim.
func WithRawEventData(payload string) RaiseEventOptions {
	return func(req *protos.RaiseEventRequest) error {
		req.Input = protos.Str(payload)
		return nil
	}
}

// TerminateOptions configures a TerminateRequest.
type TerminateOptions func(req *protos.TerminateRequest) error

func WithOutput(data interface{}) TerminateOptions {
	return func(req *protos.TerminateRequest) error {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		req.Output = protos.Str(string(b))
		return nil
	}
}

func WithRawOutput(data string) TerminateOptions {
	return func(req *protos.TerminateRequest) error {
		req.Output = protos.Str(data)
		return nil
	}
}

func WithRecursiveTerminate(recursive bool) TerminateOptions {
	return func(req *protos.TerminateRequest) error {
		req.Recursive = &recursive
		return nil
	}
}

// PurgeOptions configures a PurgeInstancesRequest.
type PurgeOptions func(req *protos.PurgeInstancesRequest)

func WithRecursivePurge(recursive bool) PurgeOptions {
	return func(req *protos.PurgeInstancesRequest) {
		req.Recursive = &recursive
	}
}

// OrchestrationMetadata is the client-facing snapshot of an instance's
// state, returned by FetchOrchestrationMetadata and the Wait* calls.
type OrchestrationMetadata struct {
	InstanceID             InstanceID
	Name                   string
	RuntimeStatus          protos.OrchestrationStatus
	CreatedAt              time.Time
	LastUpdatedAt          time.Time
	SerializedInput        *wrapperspb.StringValue
	SerializedOutput       *wrapperspb.StringValue
	SerializedCustomStatus *wrapperspb.StringValue
	FailureDetails         *protos.TaskFailureDetails
}

// IsRunning reports whether the instance has not yet reached a terminal
// status.
func (m *OrchestrationMetadata) IsRunning() bool {
	return !m.IsComplete()
}

// IsComplete reports whether the instance has reached a terminal status
// (completed, failed, terminated, or canceled).
func (m *OrchestrationMetadata) IsComplete() bool {
	switch m.RuntimeStatus {
	case protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED,
		protos.OrchestrationStatus_ORCHESTRATION_STATUS_FAILED,
		protos.OrchestrationStatus_ORCHESTRATION_STATUS_TERMINATED,
		protos.OrchestrationStatus_ORCHESTRATION_STATUS_CANCELED:
		return true
	default:
		return false
	}
}
