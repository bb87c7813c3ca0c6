package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/helpers"
	"github.com/quayside-run/durabletask/internal/protos"
)

// ExecutionResults is what an OrchestratorExecutor returns after replaying
// an instance's history: the actions the orchestrator took in response,
// plus any custom status it set.
type ExecutionResults struct {
	Response *OrchestratorResponse
}

type OrchestratorResponse struct {
	Actions      []*protos.OrchestratorAction
	CustomStatus *string
}

// OrchestratorExecutor runs user orchestration logic against an
// instance's full history, split into already-processed old events and
// the new events delivered by this work item.
type OrchestratorExecutor interface {
	ExecuteOrchestrator(
		ctx context.Context,
		iid api.InstanceID,
		oldEvents []*protos.HistoryEvent,
		newEvents []*protos.HistoryEvent,
	) (*ExecutionResults, error)
}

type orchestratorProcessor struct {
	be       Backend
	executor OrchestratorExecutor
	logger   Logger
}

// NewOrchestrationWorker builds a TaskWorker that polls be for
// orchestration work items and drives them through executor.
func NewOrchestrationWorker(be Backend, executor OrchestratorExecutor, logger Logger, opts ...NewTaskWorkerOptions) TaskWorker {
	processor := &orchestratorProcessor{be: be, executor: executor, logger: logger}
	return NewTaskWorker(be, processor, logger, opts...)
}

func (*orchestratorProcessor) Name() string {
	return "orchestration-processor"
}

func (p *orchestratorProcessor) FetchWorkItem(ctx context.Context) (WorkItem, error) {
	wi, err := p.be.GetOrchestrationWorkItem(ctx)
	if err != nil {
		return nil, err
	}
	if wi == nil {
		return nil, nil
	}
	return wi, nil
}

func (w *orchestratorProcessor) ProcessWorkItem(ctx context.Context, cwi WorkItem) error {
	wi := cwi.(*OrchestrationWorkItem)
	w.logger.Debugf("%v: received work item with %d new event(s): %v", wi.InstanceID, len(wi.NewEvents), helpers.HistoryListSummary(wi.NewEvents))

	// TODO: Caching. We could cache executors and runtime state keyed by
	// instance id to skip state loading entirely for busy instances.
	if wi.State == nil {
		state, err := w.be.GetOrchestrationRuntimeState(ctx, wi)
		if err != nil {
			return fmt.Errorf("failed to load orchestration state: %w", err)
		}
		wi.State = state
	}
	w.logger.Debugf("%v: got orchestration runtime state: %s", wi.InstanceID, getOrchestrationStateDescription(wi))

	if !w.applyWorkItem(wi) {
		return nil
	}

	const maxContinueAsNewCount = 20
	for continueAsNewCount := 0; ; continueAsNewCount++ {
		if continueAsNewCount > 0 {
			w.logger.Debugf("%v: continuing-as-new with %d event(s): %s", wi.InstanceID, len(wi.State.NewEvents), helpers.HistoryListSummary(wi.State.NewEvents))
		} else {
			w.logger.Debugf("%v: invoking orchestrator", wi.InstanceID)
		}

		results, err := w.executor.ExecuteOrchestrator(ctx, wi.InstanceID, wi.State.OldEvents, wi.State.NewEvents)
		if err != nil {
			return fmt.Errorf("error executing orchestrator: %w", err)
		}
		w.logger.Debugf("%v: orchestrator returned %d action(s): %s", wi.InstanceID, len(results.Response.Actions), helpers.ActionListSummary(results.Response.Actions))

		continuedAsNew, err := wi.State.ApplyActions(results.Response.Actions)
		if err != nil {
			return fmt.Errorf("failed to apply the execution result actions: %w", err)
		}
		wi.State.CustomStatus = results.Response.CustomStatus

		if continuedAsNew {
			w.logger.Debugf("%v: continued-as-new with %d new event(s).", wi.InstanceID, len(wi.State.NewEvents))
			if continueAsNewCount >= maxContinueAsNewCount {
				return fmt.Errorf("exceeded tight-loop continue-as-new limit of %d iterations", maxContinueAsNewCount)
			}
			continue
		}

		if wi.State.IsCompleted() {
			name, _ := wi.State.Name()
			w.logger.Infof("%v: '%s' completed with a %s status.", wi.InstanceID, name, helpers.ToRuntimeStatusString(wi.State.RuntimeStatus()))
		}
		break
	}
	return nil
}

func (p *orchestratorProcessor) CompleteWorkItem(ctx context.Context, wi WorkItem) error {
	owi := wi.(*OrchestrationWorkItem)
	return p.be.CompleteOrchestrationWorkItem(ctx, owi)
}

func (p *orchestratorProcessor) AbandonWorkItem(ctx context.Context, wi WorkItem) error {
	owi := wi.(*OrchestrationWorkItem)
	return p.be.AbandonOrchestrationWorkItem(ctx, owi)
}

func (w *orchestratorProcessor) applyWorkItem(wi *OrchestrationWorkItem) bool {
	if !wi.State.IsValid() {
		w.logger.Warnf("%v: orchestration state is invalid; dropping work item", wi.InstanceID)
		return false
	}
	if wi.State.IsCompleted() {
		w.logger.Warnf("%v: orchestration already completed; dropping work item", wi.InstanceID)
		return false
	}
	if len(wi.NewEvents) == 0 {
		w.logger.Warnf("%v: the work item had no events!", wi.InstanceID)
	}

	// OrchestratorStarted anchors the current time as reported by the
	// orchestration's own APIs; it's injected on every batch rather than
	// carried over the wire.
	_ = wi.State.AddEvent(helpers.NewOrchestratorStartedEvent())

	added := 0
	for _, e := range wi.NewEvents {
		if err := wi.State.AddEvent(e); err != nil {
			if errors.Is(err, ErrDuplicateEvent) {
				w.logger.Warnf("%v: dropping duplicate event: %v", wi.InstanceID, e)
			} else {
				w.logger.Warnf("%v: dropping event: %v, %v", wi.InstanceID, e, err)
			}
		} else {
			added++
		}

		if es := e.GetExecutionStarted(); es != nil {
			w.logger.Infof("%v: starting new '%s' instance.", wi.InstanceID, es.Name)
		}
	}

	if added == 0 {
		w.logger.Warnf("%v: all new events were dropped", wi.InstanceID)
		return false
	}
	return true
}

func getOrchestrationStateDescription(wi *OrchestrationWorkItem) string {
	name, err := wi.State.Name()
	if err != nil && len(wi.NewEvents) > 0 {
		name = wi.NewEvents[0].GetExecutionStarted().GetName()
	}
	if name == "" {
		name = "(unknown)"
	}

	ageStr := "(new)"
	if createdAt, err := wi.State.CreatedTime(); err == nil {
		if age := time.Since(createdAt); age > 0 {
			ageStr = age.Round(time.Second).String()
		}
	}
	status := helpers.ToRuntimeStatusString(wi.State.RuntimeStatus())
	return fmt.Sprintf("name=%s, status=%s, events=%d, age=%s", name, status, len(wi.State.OldEvents), ageStr)
}
