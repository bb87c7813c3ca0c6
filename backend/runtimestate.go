package backend

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/helpers"
	"github.com/quayside-run/durabletask/internal/protos"
)

// ErrDuplicateEvent is the general duplicate-event condition: an event
// arrived a second time for an execution that already recorded one of the
// same kind. errors.Is(err, ErrDuplicateEvent) matches regardless of kind;
// errors.Is(err, ErrDuplicateStart) or ErrDuplicateCompleted narrows to
// which one happened.
var ErrDuplicateEvent = errors.New("duplicate event")

// ErrDuplicateStart is returned (wrapping ErrDuplicateEvent) by AddEvent
// when a second ExecutionStarted event arrives for an execution that
// already has one.
var ErrDuplicateStart = fmt.Errorf("duplicate orchestration start event: %w", ErrDuplicateEvent)

// ErrDuplicateCompleted is returned (wrapping ErrDuplicateEvent) by
// AddEvent when a second ExecutionCompleted event arrives for an
// execution that already has one.
var ErrDuplicateCompleted = fmt.Errorf("duplicate orchestration completed event: %w", ErrDuplicateEvent)

// ErrUnknownAction is returned by ApplyActions for an action with no
// recognized payload, aborting the rest of the batch.
var ErrUnknownAction = errors.New("unknown orchestrator action")

// OrchestratorMessage is a history event destined for another instance:
// a sub-orchestration's start event, an event sent to another instance, a
// child's completion or failure notice for its parent, or a terminate
// cascade. The backend delivers these to TargetInstanceID when the work
// item is completed (CompleteOrchestrationWorkItem).
type OrchestratorMessage struct {
	HistoryEvent     *protos.HistoryEvent
	TargetInstanceID api.InstanceID
}

// OrchestrationRuntimeState is the event-sourced projection of one
// orchestration execution: replaying OldEvents followed by NewEvents in
// order always reaches the same projected fields. It is the hard core of
// the whole runtime.
type OrchestrationRuntimeState struct {
	instanceID api.InstanceID
	logger     Logger

	NewEvents []*protos.HistoryEvent
	OldEvents []*protos.HistoryEvent

	pendingTasks    []*protos.HistoryEvent
	pendingTimers   []*protos.HistoryEvent
	pendingMessages []OrchestratorMessage

	startEvent     *protos.ExecutionStartedEvent
	completedEvent *protos.ExecutionCompletedEvent

	createdTime     time.Time
	lastUpdatedTime time.Time
	completedTime   time.Time

	continuedAsNew bool
	isSuspended    bool

	CustomStatus *string
}

// NewOrchestrationRuntimeState replays existingHistory as old events,
// building the projection from scratch. Replay errors (e.g. a corrupted
// duplicate start event baked into stored history) are logged and
// swallowed: the offending event is dropped and replay continues with the
// rest of the history. A nil logger is replaced with a no-op one.
func NewOrchestrationRuntimeState(instanceID api.InstanceID, existingHistory []*protos.HistoryEvent, logger Logger) *OrchestrationRuntimeState {
	if logger == nil {
		logger = nopLogger{}
	}
	state := &OrchestrationRuntimeState{
		instanceID: instanceID,
		logger:     logger,
		NewEvents:  make([]*protos.HistoryEvent, 0, 10),
		OldEvents:  make([]*protos.HistoryEvent, 0, len(existingHistory)),
	}
	for _, event := range existingHistory {
		if err := state.AddOldEvent(event); err != nil {
			logger.Warnf("%v: dropping corrupt history event during replay: %v", instanceID, err)
		}
	}
	return state
}

// AddEvent appends a freshly delivered event to NewEvents, updating the
// start/completed/suspended projections it carries. History loaded from
// storage goes through AddOldEvent instead, which appends to OldEvents
// (see NewOrchestrationRuntimeState above).
func (s *OrchestrationRuntimeState) AddEvent(event *protos.HistoryEvent) error {
	return s.addEvent(event, true)
}

// AddOldEvent appends event as history replayed from storage rather than
// a freshly delivered one.
func (s *OrchestrationRuntimeState) AddOldEvent(event *protos.HistoryEvent) error {
	return s.addEvent(event, false)
}

func (s *OrchestrationRuntimeState) addEvent(event *protos.HistoryEvent, isNew bool) error {
	switch {
	case event.ExecutionStarted != nil:
		if s.startEvent != nil {
			return ErrDuplicateStart
		}
		s.startEvent = event.ExecutionStarted
		s.createdTime = event.Timestamp.AsTime()
	case event.ExecutionCompleted != nil:
		if s.completedEvent != nil {
			return ErrDuplicateCompleted
		}
		s.completedEvent = event.ExecutionCompleted
		s.completedTime = event.Timestamp.AsTime()
	case event.ExecutionSuspended != nil:
		s.isSuspended = true
	case event.ExecutionResumed != nil:
		s.isSuspended = false
	}

	s.lastUpdatedTime = event.Timestamp.AsTime()

	if isNew {
		s.NewEvents = append(s.NewEvents, event)
	} else {
		s.OldEvents = append(s.OldEvents, event)
	}
	return nil
}

// IsValid reports whether the state is either untouched (no events at
// all, the not-yet-created case) or has a start event. A state with
// events but no start event means its history was corrupted before it
// reached this aggregate.
func (s *OrchestrationRuntimeState) IsValid() bool {
	return (len(s.OldEvents) == 0 && len(s.NewEvents) == 0) || s.startEvent != nil
}

// ApplyActions applies an orchestrator's returned actions to the state in
// order, appending the resulting history events and queuing any
// OrchestratorMessage destined for another instance. It reports whether
// the orchestration continued-as-new, in which case *s has already been
// replaced wholesale with the freshly restarted projection and the caller
// must re-invoke the orchestrator against it.
func (s *OrchestrationRuntimeState) ApplyActions(actions []*protos.OrchestratorAction) (bool, error) {
	for _, action := range actions {
		switch {
		case action.CompleteOrchestration != nil:
			continuedAsNew, err := s.applyCompleteOrchestration(action)
			if err != nil {
				return false, err
			}
			if continuedAsNew {
				return true, nil
			}
		case action.CreateTimer != nil:
			if err := s.applyCreateTimer(action); err != nil {
				return false, err
			}
		case action.ScheduleTask != nil:
			if err := s.applyScheduleTask(action); err != nil {
				return false, err
			}
		case action.CreateSubOrchestration != nil:
			if err := s.applyCreateSubOrchestration(action); err != nil {
				return false, err
			}
		case action.SendEvent != nil:
			if err := s.applySendEvent(action); err != nil {
				return false, err
			}
		case action.TerminateOrchestration != nil:
			s.applyTerminateOrchestration(action)
		default:
			return false, fmt.Errorf("%w: %v", ErrUnknownAction, action)
		}
	}
	return false, nil
}

func (s *OrchestrationRuntimeState) applyCompleteOrchestration(action *protos.OrchestratorAction) (bool, error) {
	completed := action.CompleteOrchestration
	if completed.OrchestrationStatus == protos.OrchestrationStatus_ORCHESTRATION_STATUS_CONTINUED_AS_NEW {
		newState := NewOrchestrationRuntimeState(s.instanceID, nil, s.logger)
		newState.continuedAsNew = true

		_ = newState.AddEvent(helpers.NewExecutionStartedEvent(
			s.startEvent.Name,
			string(s.instanceID),
			completed.Result,
			s.startEvent.ParentInstance,
			s.startEvent.ParentTraceContext,
			nil,
		))

		for _, event := range completed.CarryoverEvents {
			if err := newState.AddEvent(event); err != nil {
				return false, err
			}
		}

		*s = *newState
		return true, nil
	}

	if err := s.AddEvent(helpers.NewExecutionCompletedEvent(
		helpers.NotCorrelated,
		completed.OrchestrationStatus,
		completed.Result,
		completed.FailureDetails,
	)); err != nil {
		return false, err
	}

	if parent := s.startEvent.ParentInstance; parent != nil {
		s.pendingMessages = append(s.pendingMessages, OrchestratorMessage{
			HistoryEvent: &protos.HistoryEvent{
				EventId:   helpers.NotCorrelated,
				Timestamp: timestamppb.Now(),
				SubOrchestrationInstanceCompleted: &protos.SubOrchestrationInstanceCompletedEvent{
					TaskScheduledId: parent.TaskScheduledId,
					Result:          completed.Result,
				},
			},
			TargetInstanceID: api.InstanceID(parent.OrchestrationInstance.InstanceId),
		})
	}
	return false, nil
}

func (s *OrchestrationRuntimeState) applyCreateTimer(action *protos.OrchestratorAction) error {
	fireAt := action.CreateTimer.FireAt
	if err := s.AddEvent(helpers.NewTimerCreatedEvent(action.Id, fireAt)); err != nil {
		return err
	}
	s.pendingTimers = append(s.pendingTimers, helpers.NewTimerFiredEvent(action.Id, fireAt))
	return nil
}

func (s *OrchestrationRuntimeState) applyScheduleTask(action *protos.OrchestratorAction) error {
	schedule := action.ScheduleTask
	scheduled := helpers.NewTaskScheduledEvent(action.Id, schedule.Name, schedule.Version, schedule.Input, nil)
	if err := s.AddEvent(scheduled); err != nil {
		return err
	}
	s.pendingTasks = append(s.pendingTasks, scheduled)
	return nil
}

func (s *OrchestrationRuntimeState) applyCreateSubOrchestration(action *protos.OrchestratorAction) error {
	create := action.CreateSubOrchestration
	instanceID := create.InstanceId
	if instanceID == "" {
		instanceID = fmt.Sprintf("%s:%04x", s.instanceID, action.Id)
	}

	createdEvent := helpers.NewSubOrchestrationCreatedEvent(action.Id, create.Name, create.Version, create.Input, instanceID, nil)
	if err := s.AddEvent(createdEvent); err != nil {
		return err
	}

	startEvent := helpers.NewExecutionStartedEvent(
		create.Name,
		instanceID,
		create.Input,
		helpers.NewParentInfo(action.Id, s.startEvent.Name, string(s.instanceID)),
		nil,
		nil,
	)
	s.pendingMessages = append(s.pendingMessages, OrchestratorMessage{
		HistoryEvent:     startEvent,
		TargetInstanceID: api.InstanceID(instanceID),
	})
	return nil
}

func (s *OrchestrationRuntimeState) applySendEvent(action *protos.OrchestratorAction) error {
	send := action.SendEvent
	sentEvent := helpers.NewEventSentEvent(action.Id, send.Instance.InstanceId, send.Name, send.Data)
	if err := s.AddEvent(sentEvent); err != nil {
		return err
	}
	s.pendingMessages = append(s.pendingMessages, OrchestratorMessage{
		HistoryEvent:     sentEvent,
		TargetInstanceID: api.InstanceID(send.Instance.InstanceId),
	})
	return nil
}

func (s *OrchestrationRuntimeState) applyTerminateOrchestration(action *protos.OrchestratorAction) {
	terminate := action.TerminateOrchestration
	terminateEvent := helpers.NewExecutionTerminatedEventRecurse(terminate.Reason, terminate.Recurse)
	s.pendingMessages = append(s.pendingMessages, OrchestratorMessage{
		HistoryEvent:     terminateEvent,
		TargetInstanceID: api.InstanceID(terminate.InstanceId),
	})
}

func (s *OrchestrationRuntimeState) InstanceID() api.InstanceID { return s.instanceID }

func (s *OrchestrationRuntimeState) Name() (string, error) {
	if s.startEvent == nil {
		return "", api.ErrNotStarted
	}
	return s.startEvent.Name, nil
}

func (s *OrchestrationRuntimeState) Input() (string, error) {
	if s.startEvent == nil {
		return "", api.ErrNotStarted
	}
	return protos.StrVal(s.startEvent.Input), nil
}

func (s *OrchestrationRuntimeState) Output() (string, error) {
	if s.completedEvent == nil {
		return "", api.ErrNotCompleted
	}
	return protos.StrVal(s.completedEvent.Result), nil
}

func (s *OrchestrationRuntimeState) RuntimeStatus() protos.OrchestrationStatus {
	switch {
	case s.startEvent == nil:
		return protos.OrchestrationStatus_ORCHESTRATION_STATUS_PENDING
	case s.isSuspended:
		return protos.OrchestrationStatus_ORCHESTRATION_STATUS_SUSPENDED
	case s.completedEvent != nil:
		return s.completedEvent.OrchestrationStatus
	default:
		return protos.OrchestrationStatus_ORCHESTRATION_STATUS_RUNNING
	}
}

func (s *OrchestrationRuntimeState) CreatedTime() (time.Time, error) {
	if s.startEvent == nil {
		return time.Time{}, api.ErrNotStarted
	}
	return s.createdTime, nil
}

func (s *OrchestrationRuntimeState) LastUpdatedTime() (time.Time, error) {
	if s.startEvent == nil {
		return time.Time{}, api.ErrNotStarted
	}
	return s.lastUpdatedTime, nil
}

func (s *OrchestrationRuntimeState) CompletedTime() (time.Time, error) {
	if s.completedEvent == nil {
		return time.Time{}, api.ErrNotCompleted
	}
	return s.completedTime, nil
}

func (s *OrchestrationRuntimeState) IsCompleted() bool { return s.completedEvent != nil }

func (s *OrchestrationRuntimeState) FailureDetails() (*protos.TaskFailureDetails, error) {
	if s.completedEvent == nil {
		return nil, api.ErrNotCompleted
	}
	if s.completedEvent.FailureDetails == nil {
		return nil, api.ErrNoFailures
	}
	return s.completedEvent.FailureDetails, nil
}

func (s *OrchestrationRuntimeState) PendingTimers() []*protos.HistoryEvent { return s.pendingTimers }
func (s *OrchestrationRuntimeState) PendingTasks() []*protos.HistoryEvent  { return s.pendingTasks }
func (s *OrchestrationRuntimeState) PendingMessages() []OrchestratorMessage {
	return s.pendingMessages
}
func (s *OrchestrationRuntimeState) ContinuedAsNew() bool { return s.continuedAsNew }

// GetStartedTime returns the timestamp of the earliest recorded event,
// falling back to the Unix epoch for a state with no events yet.
func (s *OrchestrationRuntimeState) GetStartedTime() time.Time {
	if len(s.OldEvents) > 0 {
		return s.OldEvents[0].Timestamp.AsTime()
	}
	if len(s.NewEvents) > 0 {
		return s.NewEvents[0].Timestamp.AsTime()
	}
	return time.Unix(0, 0).UTC()
}

func (s *OrchestrationRuntimeState) String() string {
	return fmt.Sprintf("%q:%s", s.instanceID, helpers.ToRuntimeStatusString(s.RuntimeStatus()))
}
