package helpers

import (
	"fmt"
	"strings"

	"github.com/quayside-run/durabletask/internal/protos"
)

const statusPrefix = "ORCHESTRATION_STATUS_"

// ToRuntimeStatusString strips the canonical "ORCHESTRATION_STATUS_" prefix
// from status's wire name, e.g. ORCHESTRATION_STATUS_COMPLETED -> COMPLETED.
func ToRuntimeStatusString(status protos.OrchestrationStatus) string {
	return strings.TrimPrefix(status.String(), statusPrefix)
}

// FromRuntimeStatusString is the inverse of ToRuntimeStatusString.
func FromRuntimeStatusString(status string) (protos.OrchestrationStatus, error) {
	s, ok := protos.OrchestrationStatusFromName(statusPrefix + status)
	if !ok {
		return 0, fmt.Errorf("unknown orchestration status %q", status)
	}
	return s, nil
}
