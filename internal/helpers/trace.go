package helpers

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/quayside-run/durabletask/internal/protos"
)

// ErrTraceContextParse is returned for any malformed trace-parent value,
// including the legacy (non-dashed) form.
var ErrTraceContextParse = errors.New("failed to parse trace context")

// ParsedTraceContext is the decoded form of a W3C traceparent header.
type ParsedTraceContext struct {
	Version byte
	TraceID string
	SpanID  string
	Flags   byte
}

// ParseTraceContext parses tc.TraceParent in W3C form
// "00-{trace_id}-{span_id}-{flags}". If tc carries a non-empty SpanID with
// a traceParent that isn't W3C-shaped, that is the legacy format (the
// caller supplied the trace id directly in TraceParent plus a separate
// SpanID); that shape is also rejected with ErrTraceContextParse rather
// than indexed into blindly.
func ParseTraceContext(tc *protos.TraceContext) (*ParsedTraceContext, error) {
	if tc == nil {
		return nil, ErrTraceContextParse
	}

	parts := strings.Split(tc.TraceParent, "-")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected 4 dash-delimited fields, got %d", ErrTraceContextParse, len(parts))
	}

	versionBytes, err := hex.DecodeString(parts[0])
	if err != nil || len(versionBytes) != 1 {
		return nil, fmt.Errorf("%w: invalid version: %v", ErrTraceContextParse, err)
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return nil, fmt.Errorf("%w: invalid trace id: %v", ErrTraceContextParse, err)
	}
	if _, err := hex.DecodeString(parts[2]); err != nil {
		return nil, fmt.Errorf("%w: invalid span id: %v", ErrTraceContextParse, err)
	}
	flagBytes, err := hex.DecodeString(parts[3])
	if err != nil || len(flagBytes) != 1 {
		return nil, fmt.Errorf("%w: invalid flags: %v", ErrTraceContextParse, err)
	}

	return &ParsedTraceContext{
		Version: versionBytes[0],
		TraceID: parts[1],
		SpanID:  parts[2],
		Flags:   flagBytes[0],
	}, nil
}
