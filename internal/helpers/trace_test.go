package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quayside-run/durabletask/internal/protos"
)

func TestParseTraceContext_W3C(t *testing.T) {
	tc := &protos.TraceContext{
		TraceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	parsed, err := ParseTraceContext(tc)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), parsed.Version)
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", parsed.TraceID)
	require.Equal(t, "00f067aa0ba902b7", parsed.SpanID)
	require.Equal(t, byte(0x01), parsed.Flags)
}

func TestParseTraceContext_LegacyFormat_ReturnsError(t *testing.T) {
	// The legacy (pre-W3C) shape packs no dashes into traceparent at all,
	// so splitting on "-" yields a single element; this must come back as
	// an explicit error rather than an out-of-range index.
	tc := &protos.TraceContext{TraceParent: "4bf92f3577b34da6a3ce929d0e0e4736"}
	_, err := ParseTraceContext(tc)
	require.ErrorIs(t, err, ErrTraceContextParse)
}

func TestParseTraceContext_Nil(t *testing.T) {
	_, err := ParseTraceContext(nil)
	require.ErrorIs(t, err, ErrTraceContextParse)
}

func TestParseTraceContext_BadHex(t *testing.T) {
	tc := &protos.TraceContext{TraceParent: "00-zzzz-00f067aa0ba902b7-01"}
	_, err := ParseTraceContext(tc)
	require.ErrorIs(t, err, ErrTraceContextParse)
}
