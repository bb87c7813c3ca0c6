// Package grpcsvc is a thin gRPC facade over a backend.Backend, exposing
// the CreateInstance/GetInstance/RaiseEvent/Terminate/PurgeInstances RPC
// surface. It binds to internal/protos's hand-held
// message shapes rather than generated protoc-gen-go stubs, so the
// transport here speaks a JSON codec over google.golang.org/grpc's HTTP/2
// framing instead of the real wire encoding.
package grpcsvc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is registered as a grpc.CallContentSubtype/content-subtype so
// clients and servers built with this package exchange JSON-encoded
// internal/protos messages instead of requiring a protoc-generated
// proto.Message implementation.
const codecName = "durabletask-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
