package grpcsvc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/backend"
	"github.com/quayside-run/durabletask/internal/helpers"
	"github.com/quayside-run/durabletask/internal/protos"
)

// serviceName is the fully-qualified RPC service name carried in every
// method string a client dials against.
const serviceName = "orchestrator_service.OrchestratorService"

// Handler is the RPC surface a grpc.Server registered against ServiceDesc
// must implement. Service (below) is the shipped implementation, wired
// directly to a backend.Backend.
type Handler interface {
	CreateInstance(ctx context.Context, req *protos.CreateInstanceRequest) (*protos.CreateInstanceResponse, error)
	GetInstance(ctx context.Context, req *protos.GetInstanceRequest) (*protos.GetInstanceResponse, error)
	RaiseEvent(ctx context.Context, req *protos.RaiseEventRequest) (*protos.RaiseEventResponse, error)
	Terminate(ctx context.Context, req *protos.TerminateRequest) (*protos.TerminateResponse, error)
	PurgeInstances(ctx context.Context, req *protos.PurgeInstancesRequest) (*protos.PurgeInstancesResponse, error)
}

// ServiceDesc is the hand-held equivalent of the protoc-gen-go-grpc
// service descriptor generated from the orchestrator_service schema.
// Registering it with a *grpc.Server via RegisterOrchestratorServiceServer
// exposes the CreateInstance/GetInstance/RaiseEvent/Terminate/PurgeInstances
// RPC surface.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateInstance", Handler: createInstanceHandler},
		{MethodName: "GetInstance", Handler: getInstanceHandler},
		{MethodName: "RaiseEvent", Handler: raiseEventHandler},
		{MethodName: "Terminate", Handler: terminateHandler},
		{MethodName: "PurgeInstances", Handler: purgeInstancesHandler},
	},
	Metadata: "orchestrator_service.proto",
}

// RegisterOrchestratorServiceServer registers srv against s, mirroring the
// protoc-gen-go-grpc RegisterXxxServer convention.
func RegisterOrchestratorServiceServer(s grpc.ServiceRegistrar, srv Handler) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor, srv interface{}, method string, call func(Handler, context.Context, *Req) (*Resp, error)) (interface{}, error) {
	in := new(Req)
	if err := dec(in); err != nil {
		return nil, err
	}
	h, ok := srv.(Handler)
	if !ok {
		return nil, fmt.Errorf("grpcsvc: server does not implement Handler")
	}
	if interceptor == nil {
		return call(h, ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
	wrapped := func(ctx context.Context, req interface{}) (interface{}, error) {
		return call(h, ctx, req.(*Req))
	}
	return interceptor(ctx, in, info, wrapped)
}

func createInstanceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[protos.CreateInstanceRequest, protos.CreateInstanceResponse](ctx, dec, interceptor, srv, "CreateInstance", Handler.CreateInstance)
}

func getInstanceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[protos.GetInstanceRequest, protos.GetInstanceResponse](ctx, dec, interceptor, srv, "GetInstance", Handler.GetInstance)
}

func raiseEventHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[protos.RaiseEventRequest, protos.RaiseEventResponse](ctx, dec, interceptor, srv, "RaiseEvent", Handler.RaiseEvent)
}

func terminateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[protos.TerminateRequest, protos.TerminateResponse](ctx, dec, interceptor, srv, "Terminate", Handler.Terminate)
}

func purgeInstancesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[protos.PurgeInstancesRequest, protos.PurgeInstancesResponse](ctx, dec, interceptor, srv, "PurgeInstances", Handler.PurgeInstances)
}

// Service implements Handler directly against a backend.Backend, with no
// TaskHubClient in between: the RPC boundary is where requests turn into
// HistoryEvents and Backend calls, the same translation
// backend.backendClient does in-process for local callers.
type Service struct {
	be backend.Backend
}

// NewService builds a Service that serves RPCs against be.
func NewService(be backend.Backend) *Service {
	return &Service{be: be}
}

func (s *Service) CreateInstance(ctx context.Context, req *protos.CreateInstanceRequest) (*protos.CreateInstanceResponse, error) {
	instanceID := req.InstanceId
	if instanceID == "" {
		return nil, fmt.Errorf("grpcsvc: CreateInstance requires a non-empty instance id")
	}

	event := helpers.NewExecutionStartedEvent(req.Name, instanceID, req.Input, nil, nil, req.ScheduledStartTimestamp)

	var opts []backend.OrchestrationIdReusePolicyOption
	if req.OrchestrationIdReusePolicy != nil {
		opts = append(opts, backend.WithOrchestrationIdReusePolicy(req.OrchestrationIdReusePolicy))
	}
	if err := s.be.CreateOrchestrationInstance(ctx, event, opts...); err != nil {
		return nil, err
	}
	return &protos.CreateInstanceResponse{InstanceId: instanceID}, nil
}

func (s *Service) GetInstance(ctx context.Context, req *protos.GetInstanceRequest) (*protos.GetInstanceResponse, error) {
	metadata, err := s.be.GetOrchestrationMetadata(ctx, api.InstanceID(req.InstanceId))
	if err != nil {
		if errors.Is(err, api.ErrInstanceNotFound) {
			return &protos.GetInstanceResponse{Exists: false}, nil
		}
		return nil, err
	}

	state := &protos.OrchestrationState{
		InstanceId:          req.InstanceId,
		Name:                metadata.Name,
		OrchestrationStatus: metadata.RuntimeStatus,
		FailureDetails:      metadata.FailureDetails,
	}
	if req.GetInputsAndOutputs {
		state.Input = metadata.SerializedInput
		state.Output = metadata.SerializedOutput
		state.CustomStatus = metadata.SerializedCustomStatus
	}
	return &protos.GetInstanceResponse{Exists: true, OrchestrationState: state}, nil
}

func (s *Service) RaiseEvent(ctx context.Context, req *protos.RaiseEventRequest) (*protos.RaiseEventResponse, error) {
	event := helpers.NewEventRaisedEvent(req.Name, req.Input)
	if err := s.be.AddNewOrchestrationEvent(ctx, api.InstanceID(req.InstanceId), event); err != nil {
		return nil, err
	}
	return &protos.RaiseEventResponse{}, nil
}

func (s *Service) Terminate(ctx context.Context, req *protos.TerminateRequest) (*protos.TerminateResponse, error) {
	recurse := req.Recursive != nil && *req.Recursive
	event := helpers.NewExecutionTerminatedEventRecurse(req.Output, recurse)
	if err := s.be.AddNewOrchestrationEvent(ctx, api.InstanceID(req.InstanceId), event); err != nil {
		return nil, err
	}
	return &protos.TerminateResponse{}, nil
}

func (s *Service) PurgeInstances(ctx context.Context, req *protos.PurgeInstancesRequest) (*protos.PurgeInstancesResponse, error) {
	recurse := req.Recursive != nil && *req.Recursive
	count, err := backend.PurgeOrchestrationState(ctx, s.be, api.InstanceID(req.InstanceId), recurse)
	if err != nil {
		return nil, err
	}
	return &protos.PurgeInstancesResponse{DeletedInstanceCount: count}, nil
}
