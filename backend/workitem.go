package backend

import (
	"fmt"
	"time"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/protos"
)

// WorkItem is the common interface satisfied by both OrchestrationWorkItem
// and ActivityWorkItem so the generic TaskWorker loop can fetch, process,
// complete, or abandon either kind without knowing which.
type WorkItem interface {
	fmt.Stringer
}

// OrchestrationWorkItem carries a batch of new history events for one
// orchestration instance, along with whatever runtime state the backend
// has already loaded for it (nil until the worker calls
// GetOrchestrationRuntimeState).
type OrchestrationWorkItem struct {
	InstanceID api.InstanceID
	NewEvents  []*protos.HistoryEvent
	LockedBy   string
	RetryCount int32
	State      *OrchestrationRuntimeState

	// Properties carries backend-specific bookkeeping (e.g. a Postgres
	// row version or a Redis processing-queue token) needed to complete
	// or abandon the work item later.
	Properties map[string]interface{}
}

func (wi *OrchestrationWorkItem) String() string {
	return fmt.Sprintf("%s [%d new event(s)]", wi.InstanceID, len(wi.NewEvents))
}

// ActivityWorkItem is one scheduled task awaiting execution.
type ActivityWorkItem struct {
	SequenceNumber int64
	InstanceID     api.InstanceID
	NewEvent       *protos.HistoryEvent
	Result         *protos.HistoryEvent
	LockedBy       string

	Properties map[string]interface{}
}

// String renders "{instance_id}/{task_name}#{task_id}".
func (wi *ActivityWorkItem) String() string {
	taskName := "?"
	taskID := int32(-1)
	if scheduled := wi.NewEvent.GetTaskScheduled(); scheduled != nil {
		taskName = scheduled.Name
		taskID = wi.NewEvent.GetEventId()
	}
	return fmt.Sprintf("%s/%s#%d", wi.InstanceID, taskName, taskID)
}

// GetAbandonDelay computes how long a work item should remain invisible
// after being abandoned, as a function of how many times it has already
// been retried. The schedule is piecewise: no delay at zero retries, then
// one second per retry up to 100 retries, then a flat 300 seconds.
func GetAbandonDelay(retryCount int32) time.Duration {
	switch {
	case retryCount <= 0:
		return 0
	case retryCount > 100:
		return 300 * time.Second
	default:
		return time.Duration(retryCount) * time.Second
	}
}
