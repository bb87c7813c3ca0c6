package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/helpers"
	"github.com/quayside-run/durabletask/internal/protos"
)

// TaskHubClient is the caller-facing entry point for scheduling,
// inspecting, and controlling orchestration instances against a Backend.
type TaskHubClient interface {
	ScheduleNewOrchestration(ctx context.Context, orchestrator interface{}, opts ...api.NewOrchestrationOptions) (api.InstanceID, error)
	FetchOrchestrationMetadata(ctx context.Context, id api.InstanceID) (*api.OrchestrationMetadata, error)
	WaitForOrchestrationStart(ctx context.Context, id api.InstanceID) (*api.OrchestrationMetadata, error)
	WaitForOrchestrationCompletion(ctx context.Context, id api.InstanceID) (*api.OrchestrationMetadata, error)
	RaiseEvent(ctx context.Context, id api.InstanceID, eventName string, opts ...api.RaiseEventOptions) error
	TerminateOrchestration(ctx context.Context, id api.InstanceID, opts ...api.TerminateOptions) error
	PurgeOrchestrationState(ctx context.Context, id api.InstanceID, opts ...api.PurgeOptions) (int32, error)
}

type backendClient struct {
	be Backend
}

func NewTaskHubClient(be Backend) TaskHubClient {
	return &backendClient{be: be}
}

func (c *backendClient) ScheduleNewOrchestration(ctx context.Context, orchestrator interface{}, opts ...api.NewOrchestrationOptions) (api.InstanceID, error) {
	name := helpers.GetTaskFunctionName(orchestrator)
	req := &protos.CreateInstanceRequest{Name: name}
	for _, configure := range opts {
		if err := configure(req); err != nil {
			return api.EmptyInstanceID, fmt.Errorf("failed to apply orchestration option: %w", err)
		}
	}
	if req.InstanceId == "" {
		req.InstanceId = uuid.NewString()
	}

	e := helpers.NewExecutionStartedEvent(req.Name, req.InstanceId, req.Input, nil, nil, req.ScheduledStartTimestamp)
	var policyOpts []OrchestrationIdReusePolicyOption
	if req.OrchestrationIdReusePolicy != nil {
		policyOpts = append(policyOpts, WithOrchestrationIdReusePolicy(req.OrchestrationIdReusePolicy))
	}
	if err := c.be.CreateOrchestrationInstance(ctx, e, policyOpts...); err != nil {
		return api.EmptyInstanceID, fmt.Errorf("failed to start orchestration: %w", err)
	}
	return api.InstanceID(req.InstanceId), nil
}

// FetchOrchestrationMetadata fetches metadata for the specified
// orchestration from the configured task hub.
//
// api.ErrInstanceNotFound is returned when the specified orchestration
// doesn't exist.
func (c *backendClient) FetchOrchestrationMetadata(ctx context.Context, id api.InstanceID) (*api.OrchestrationMetadata, error) {
	metadata, err := c.be.GetOrchestrationMetadata(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orchestration metadata: %w", err)
	}
	return metadata, nil
}

// WaitForOrchestrationStart waits for an orchestration to start running
// and returns an OrchestrationMetadata snapshot of the started instance.
func (c *backendClient) WaitForOrchestrationStart(ctx context.Context, id api.InstanceID) (*api.OrchestrationMetadata, error) {
	return c.waitForOrchestrationCondition(ctx, id, func(metadata *api.OrchestrationMetadata) bool {
		return metadata.RuntimeStatus != protos.OrchestrationStatus_ORCHESTRATION_STATUS_PENDING
	})
}

// WaitForOrchestrationCompletion waits for an orchestration to complete
// and returns an OrchestrationMetadata snapshot of the completed instance.
func (c *backendClient) WaitForOrchestrationCompletion(ctx context.Context, id api.InstanceID) (*api.OrchestrationMetadata, error) {
	return c.waitForOrchestrationCondition(ctx, id, func(metadata *api.OrchestrationMetadata) bool {
		return metadata.IsComplete()
	})
}

func (c *backendClient) waitForOrchestrationCondition(ctx context.Context, id api.InstanceID, condition func(metadata *api.OrchestrationMetadata) bool) (*api.OrchestrationMetadata, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(1 * time.Second):
			metadata, err := c.FetchOrchestrationMetadata(ctx, id)
			if err != nil {
				return nil, err
			}
			if metadata != nil && condition(metadata) {
				return metadata, nil
			}
		}
	}
}

// RaiseEvent enqueues an externally-raised event for a running orchestration.
func (c *backendClient) RaiseEvent(ctx context.Context, id api.InstanceID, eventName string, opts ...api.RaiseEventOptions) error {
	req := &protos.RaiseEventRequest{InstanceId: string(id), Name: eventName}
	for _, configure := range opts {
		if err := configure(req); err != nil {
			return fmt.Errorf("failed to apply raise-event option: %w", err)
		}
	}
	e := helpers.NewEventRaisedEvent(req.Name, req.Input)
	if err := c.be.AddNewOrchestrationEvent(ctx, id, e); err != nil {
		return fmt.Errorf("failed to raise event: %w", err)
	}
	return nil
}

// TerminateOrchestration enqueues a message to terminate a running
// orchestration, causing it to stop receiving new events and go directly
// into the TERMINATED state. This operation is asynchronous: a worker
// must dequeue the termination event before the orchestration is actually
// terminated.
func (c *backendClient) TerminateOrchestration(ctx context.Context, id api.InstanceID, opts ...api.TerminateOptions) error {
	req := &protos.TerminateRequest{InstanceId: string(id)}
	for _, configure := range opts {
		if err := configure(req); err != nil {
			return fmt.Errorf("failed to apply terminate option: %w", err)
		}
	}
	recurse := req.Recursive != nil && *req.Recursive
	e := helpers.NewExecutionTerminatedEventRecurse(req.Output, recurse)
	if err := c.be.AddNewOrchestrationEvent(ctx, id, e); err != nil {
		return fmt.Errorf("failed to add terminate event: %w", err)
	}
	return nil
}

// PurgeOrchestrationState deletes instanceID's durable state, recursively
// including sub-orchestrations when api.WithRecursivePurge is set.
func (c *backendClient) PurgeOrchestrationState(ctx context.Context, id api.InstanceID, opts ...api.PurgeOptions) (int32, error) {
	req := &protos.PurgeInstancesRequest{InstanceId: string(id)}
	for _, configure := range opts {
		configure(req)
	}
	recurse := req.Recursive != nil && *req.Recursive
	return PurgeOrchestrationState(ctx, c.be, id, recurse)
}
