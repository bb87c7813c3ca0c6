package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/internal/helpers"
	"github.com/quayside-run/durabletask/internal/protos"
)

// Completing a work item must not re-insert the delivered events: those
// rows are already in orchestration_history and are flipped to processed
// by an UPDATE. Only events the episode itself appended (the injected
// OrchestratorStarted, action results like TaskScheduled) get new rows.
func TestNewlyAppendedEvents_SkipsDeliveredEvents(t *testing.T) {
	delivered := []*protos.HistoryEvent{
		helpers.NewEventRaisedEvent("Go", nil),
		helpers.NewTaskCompletedEvent(1, protos.Str("out")),
	}
	appended := []*protos.HistoryEvent{
		helpers.NewOrchestratorStartedEvent(),
		helpers.NewTaskScheduledEvent(2, "Next", nil, nil, nil),
	}
	stateEvents := append([]*protos.HistoryEvent{appended[0]}, delivered[0], delivered[1], appended[1])

	got := newlyAppendedEvents(stateEvents, delivered)
	require.Equal(t, []*protos.HistoryEvent{appended[0], appended[1]}, got)
}

func TestNewlyAppendedEvents_NoDelivered(t *testing.T) {
	stateEvents := []*protos.HistoryEvent{helpers.NewOrchestratorStartedEvent()}
	require.Equal(t, stateEvents, newlyAppendedEvents(stateEvents, nil))
}

func TestNewlyAppendedEvents_AllDelivered(t *testing.T) {
	delivered := []*protos.HistoryEvent{helpers.NewEventRaisedEvent("Go", nil)}
	require.Empty(t, newlyAppendedEvents(delivered, delivered))
}

func TestApplyIdReusePolicy_StatusOutsidePolicyIsDuplicate(t *testing.T) {
	policy := &protos.OrchestrationIdReusePolicy{
		OperationStatus: []protos.OrchestrationStatus{protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED},
		Action:          protos.CreateOrchestrationAction_TERMINATE,
	}
	err := applyIdReusePolicy(protos.OrchestrationStatus_ORCHESTRATION_STATUS_RUNNING, policy)
	require.ErrorIs(t, err, api.ErrDuplicateInstance)
}

func TestApplyIdReusePolicy_Actions(t *testing.T) {
	completed := protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED
	cases := []struct {
		action protos.CreateOrchestrationAction
		want   error
	}{
		{protos.CreateOrchestrationAction_ERROR, api.ErrDuplicateInstance},
		{protos.CreateOrchestrationAction_IGNORE, api.ErrIgnoreInstance},
		{protos.CreateOrchestrationAction_TERMINATE, nil},
	}
	for _, tc := range cases {
		policy := &protos.OrchestrationIdReusePolicy{
			OperationStatus: []protos.OrchestrationStatus{completed},
			Action:          tc.action,
		}
		err := applyIdReusePolicy(completed, policy)
		if tc.want == nil {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, tc.want)
		}
	}
}

func TestGetShardID_StableAndInRange(t *testing.T) {
	const shards = int32(16)
	first := getShardID(api.InstanceID("instance-1"), shards)
	require.Equal(t, first, getShardID(api.InstanceID("instance-1"), shards))
	require.GreaterOrEqual(t, first, int32(0))
	require.Less(t, first, shards)
}

func TestGetShardID_NonPositiveShardCountDefaults(t *testing.T) {
	got := getShardID(api.InstanceID("x"), 0)
	require.GreaterOrEqual(t, got, int32(0))
	require.Less(t, got, int32(16))
}
