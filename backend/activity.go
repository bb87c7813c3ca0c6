package backend

import (
	"context"
	"fmt"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/protos"
)

// ActivityExecutor runs one scheduled activity and returns the
// TaskCompleted or TaskFailed history event to deliver back to the
// scheduling orchestration.
type ActivityExecutor interface {
	ExecuteActivity(ctx context.Context, iid api.InstanceID, e *protos.HistoryEvent) (*protos.HistoryEvent, error)
}

type activityProcessor struct {
	be       Backend
	executor ActivityExecutor
	logger   Logger
}

// NewActivityTaskWorker builds a TaskWorker that polls be for activity
// work items and drives them through executor.
func NewActivityTaskWorker(be Backend, executor ActivityExecutor, logger Logger, opts ...NewTaskWorkerOptions) TaskWorker {
	processor := &activityProcessor{be: be, executor: executor, logger: logger}
	return NewTaskWorker(be, processor, logger, opts...)
}

func (*activityProcessor) Name() string {
	return "activity-processor"
}

func (p *activityProcessor) FetchWorkItem(ctx context.Context) (WorkItem, error) {
	wi, err := p.be.GetActivityWorkItem(ctx)
	if err != nil {
		return nil, err
	}
	if wi == nil {
		return nil, nil
	}
	return wi, nil
}

func (p *activityProcessor) ProcessWorkItem(ctx context.Context, cwi WorkItem) error {
	awi := cwi.(*ActivityWorkItem)
	p.logger.Debugf("%v: processing activity work item", awi)

	if awi.NewEvent.GetTaskScheduled() == nil {
		return fmt.Errorf("activity work item %v doesn't carry a TaskScheduled event", awi)
	}

	result, err := p.executor.ExecuteActivity(ctx, awi.InstanceID, awi.NewEvent)
	if err != nil {
		return fmt.Errorf("error executing activity: %w", err)
	}
	awi.Result = result
	return nil
}

func (p *activityProcessor) CompleteWorkItem(ctx context.Context, wi WorkItem) error {
	awi := wi.(*ActivityWorkItem)
	if awi.Result == nil {
		return fmt.Errorf("can't complete activity work item %v with nil result", awi)
	}
	if awi.Result.GetTaskCompleted() == nil && awi.Result.GetTaskFailed() == nil {
		return fmt.Errorf("activity work item %v result must be TaskCompleted or TaskFailed", awi)
	}
	return p.be.CompleteActivityWorkItem(ctx, awi)
}

func (p *activityProcessor) AbandonWorkItem(ctx context.Context, wi WorkItem) error {
	awi := wi.(*ActivityWorkItem)
	return p.be.AbandonActivityWorkItem(ctx, awi)
}
