package helpers

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// GetTaskFunctionName derives a registration name from an orchestrator or
// activity function's own identity, stripping the package path off the
// runtime-reported symbol name: everything after the last "." is kept.
// Anonymous functions therefore yield names such as "func1", and method
// values names such as "Run-fm".
func GetTaskFunctionName(fn interface{}) string {
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// GetDefaultWorkerName returns a worker identity of the form
// "{hostname},{pid},{uuid}". Hostname falls back to "unknown" if it cannot
// be determined, since a worker still needs an identity to register leases
// under even when the host environment is unusual.
func GetDefaultWorkerName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s,%d,%s", hostname, os.Getpid(), uuid.NewString())
}
