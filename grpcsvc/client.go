package grpcsvc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/quayside-run/durabletask/internal/protos"
)

// Client is a minimal RPC client over a *grpc.ClientConn dialed against a
// Server registered with ServiceDesc. It exists alongside
// backend.TaskHubClient (the in-process client) as the boundary a remote
// caller would use instead; the option-builder and metadata-projection
// logic lives in the api package either way.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}, opts ...grpc.CallOption) error {
	fullMethod := "/" + serviceName + "/" + method
	opts = append(opts, grpc.CallContentSubtype(codecName))
	return c.conn.Invoke(ctx, fullMethod, req, resp, opts...)
}

func (c *Client) CreateInstance(ctx context.Context, req *protos.CreateInstanceRequest, opts ...grpc.CallOption) (*protos.CreateInstanceResponse, error) {
	resp := new(protos.CreateInstanceResponse)
	if err := c.invoke(ctx, "CreateInstance", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetInstance(ctx context.Context, req *protos.GetInstanceRequest, opts ...grpc.CallOption) (*protos.GetInstanceResponse, error) {
	resp := new(protos.GetInstanceResponse)
	if err := c.invoke(ctx, "GetInstance", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) RaiseEvent(ctx context.Context, req *protos.RaiseEventRequest, opts ...grpc.CallOption) (*protos.RaiseEventResponse, error) {
	resp := new(protos.RaiseEventResponse)
	if err := c.invoke(ctx, "RaiseEvent", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Terminate(ctx context.Context, req *protos.TerminateRequest, opts ...grpc.CallOption) (*protos.TerminateResponse, error) {
	resp := new(protos.TerminateResponse)
	if err := c.invoke(ctx, "Terminate", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) PurgeInstances(ctx context.Context, req *protos.PurgeInstancesRequest, opts ...grpc.CallOption) (*protos.PurgeInstancesResponse, error) {
	resp := new(protos.PurgeInstancesResponse)
	if err := c.invoke(ctx, "PurgeInstances", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}
