package helpers

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var workerNameShape = regexp.MustCompile(`^[^,]+,[0-9]+,[0-9a-f-]{36}$`)

func TestGetDefaultWorkerName_Shape(t *testing.T) {
	name := GetDefaultWorkerName()
	require.Regexp(t, workerNameShape, name)
}

func TestGetDefaultWorkerName_Unique(t *testing.T) {
	require.NotEqual(t, GetDefaultWorkerName(), GetDefaultWorkerName())
}

func sampleOrchestrator() {}

func TestGetTaskFunctionName_StripsPackagePath(t *testing.T) {
	require.Equal(t, "sampleOrchestrator", GetTaskFunctionName(sampleOrchestrator))
}
