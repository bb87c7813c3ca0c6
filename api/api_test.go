package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quayside-run/durabletask/internal/protos"
)

func TestWithInput_MarshalsJSON(t *testing.T) {
	req := &protos.CreateInstanceRequest{}
	opt := WithInput(map[string]string{"key": "value"})
	require.NoError(t, opt(req))
	require.Equal(t, `{"key":"value"}`, protos.StrVal(req.Input))
}

func TestWithInput_MarshalError(t *testing.T) {
	req := &protos.CreateInstanceRequest{}
	opt := WithInput(make(chan int))
	require.Error(t, opt(req))
}

func TestWithInstanceID(t *testing.T) {
	req := &protos.CreateInstanceRequest{}
	require.NoError(t, WithInstanceID("my-instance")(req))
	require.Equal(t, "my-instance", req.InstanceId)
}

func TestWithStartTime(t *testing.T) {
	req := &protos.CreateInstanceRequest{}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, WithStartTime(start)(req))
	require.True(t, req.ScheduledStartTimestamp.AsTime().Equal(start))
}

func TestWithEventPayload(t *testing.T) {
	req := &protos.RaiseEventRequest{}
	require.NoError(t, WithEventPayload(map[string]string{"event": "data"})(req))
	require.Equal(t, `{"event":"data"}`, protos.StrVal(req.Input))
}

func TestWithRecursiveTerminate(t *testing.T) {
	req := &protos.TerminateRequest{}
	WithRecursiveTerminate(true)(req)
	require.NotNil(t, req.Recursive)
	require.True(t, *req.Recursive)
}

func TestOrchestrationMetadata_IsRunning(t *testing.T) {
	m := &OrchestrationMetadata{RuntimeStatus: protos.OrchestrationStatus_ORCHESTRATION_STATUS_RUNNING}
	require.True(t, m.IsRunning())
	require.False(t, m.IsComplete())
}

func TestOrchestrationMetadata_IsComplete(t *testing.T) {
	for _, status := range []protos.OrchestrationStatus{
		protos.OrchestrationStatus_ORCHESTRATION_STATUS_COMPLETED,
		protos.OrchestrationStatus_ORCHESTRATION_STATUS_FAILED,
		protos.OrchestrationStatus_ORCHESTRATION_STATUS_TERMINATED,
		protos.OrchestrationStatus_ORCHESTRATION_STATUS_CANCELED,
	} {
		m := &OrchestrationMetadata{RuntimeStatus: status}
		require.True(t, m.IsComplete())
		require.False(t, m.IsRunning())
	}
}
