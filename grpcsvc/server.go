package grpcsvc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/quayside-run/durabletask/backend"
)

// Server wraps a *grpc.Server pre-registered with a Service.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer builds a Server listening on addr and serving be through
// Service.
func NewServer(addr string, be backend.Backend, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpcsvc: failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterOrchestratorServiceServer(grpcServer, NewService(be))

	return &Server{grpcServer: grpcServer, listener: lis}, nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks, accepting RPCs until Stop is called.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully drains in-flight RPCs, falling back to an immediate
// stop if ctx is canceled first.
func (s *Server) Stop(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	}
}
