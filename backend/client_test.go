package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quayside-run/durabletask/api"
)

func sampleOrchestrator() {}

func TestTaskHubClient_ScheduleNewOrchestration_GeneratesInstanceID(t *testing.T) {
	f := newFakeBackend()
	client := NewTaskHubClient(f)

	id, err := client.ScheduleNewOrchestration(context.Background(), sampleOrchestrator)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Contains(t, f.history, id)
	require.NotNil(t, f.history[id][0].ExecutionStarted)
	require.Equal(t, "sampleOrchestrator", f.history[id][0].ExecutionStarted.Name)
}

func TestTaskHubClient_ScheduleNewOrchestration_WithInstanceID(t *testing.T) {
	f := newFakeBackend()
	client := NewTaskHubClient(f)

	id, err := client.ScheduleNewOrchestration(context.Background(), sampleOrchestrator, api.WithInstanceID("pinned-id"))
	require.NoError(t, err)
	require.Equal(t, api.InstanceID("pinned-id"), id)
}

func TestTaskHubClient_RaiseEvent(t *testing.T) {
	f := newFakeBackend()
	client := NewTaskHubClient(f)

	require.NoError(t, client.RaiseEvent(context.Background(), "instance-1", "Go", api.WithRawEventData(`{"ok":true}`)))
	require.Len(t, f.history["instance-1"], 1)
	require.NotNil(t, f.history["instance-1"][0].EventRaised)
	require.Equal(t, "Go", f.history["instance-1"][0].EventRaised.Name)
}

func TestTaskHubClient_TerminateOrchestration(t *testing.T) {
	f := newFakeBackend()
	client := NewTaskHubClient(f)

	require.NoError(t, client.TerminateOrchestration(context.Background(), "instance-1", api.WithRecursiveTerminate(true)))
	require.Len(t, f.history["instance-1"], 1)
	require.True(t, f.history["instance-1"][0].ExecutionTerminated.Recurse)
}

func TestTaskHubClient_PurgeOrchestrationState(t *testing.T) {
	f := newFakeBackend()
	addStarted(f, "solo", "S", epoch)

	client := NewTaskHubClient(f)
	count, err := client.PurgeOrchestrationState(context.Background(), "solo")
	require.NoError(t, err)
	require.Equal(t, int32(1), count)
	require.True(t, f.deleted["solo"])
}

func TestTaskHubClient_FetchOrchestrationMetadata_NotFound(t *testing.T) {
	f := newFakeBackend()
	client := NewTaskHubClient(f)

	_, err := client.FetchOrchestrationMetadata(context.Background(), "missing")
	require.Error(t, err)
}
