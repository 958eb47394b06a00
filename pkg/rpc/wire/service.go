package wire

import (
	"context"

	"google.golang.org/grpc"
)

// FabricServer is implemented by pkg/rpc.Fabric and registered against
// grpc.Server via RegisterFabricServer — the hand-written stand-in for
// what protoc-gen-go-grpc would otherwise generate from a .proto file.
type FabricServer interface {
	Invoke(context.Context, *InvokeRequest) (*InvokeResponse, error)
	Forward(context.Context, *ForwardRequest) (*InvokeResponse, error)
	Cancel(context.Context, *CancelRequest) (*CancelResponse, error)
	ShardAssignment(context.Context, *ShardAssignmentRequest) (*ShardAssignmentResponse, error)
}

// ServiceName is the fully-qualified gRPC service name this fabric
// registers under.
const ServiceName = "fabrik.rpc.Fabric"

// FabricServiceDesc is the grpc.ServiceDesc a real .proto would generate;
// written by hand since this corpus's retrieval slice carries no
// protoc-generated api/proto package to regenerate from (see package doc).
var FabricServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FabricServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "Forward", Handler: forwardHandler},
		{MethodName: "Cancel", Handler: cancelHandler},
		{MethodName: "ShardAssignment", Handler: shardAssignmentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/rpc/wire/service.go",
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InvokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FabricServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Invoke"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FabricServer).Invoke(ctx, req.(*InvokeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func forwardHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ForwardRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FabricServer).Forward(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Forward"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FabricServer).Forward(ctx, req.(*ForwardRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FabricServer).Cancel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Cancel"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FabricServer).Cancel(ctx, req.(*CancelRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func shardAssignmentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ShardAssignmentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FabricServer).ShardAssignment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/ShardAssignment"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FabricServer).ShardAssignment(ctx, req.(*ShardAssignmentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterFabricServer registers srv against a grpc.Server, the
// hand-written equivalent of protoc-gen-go-grpc's RegisterXxxServer.
func RegisterFabricServer(s *grpc.Server, srv FabricServer) {
	s.RegisterService(&FabricServiceDesc, srv)
}

// FabricClient is the hand-written client stub a .proto would otherwise
// generate; pkg/rpc.PeerClient wraps one per peer connection.
type FabricClient struct {
	cc grpc.ClientConnInterface
}

func NewFabricClient(cc grpc.ClientConnInterface) *FabricClient {
	return &FabricClient{cc: cc}
}

func (c *FabricClient) Invoke(ctx context.Context, req *InvokeRequest, opts ...grpc.CallOption) (*InvokeResponse, error) {
	out := new(InvokeResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Invoke", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FabricClient) Forward(ctx context.Context, req *ForwardRequest, opts ...grpc.CallOption) (*InvokeResponse, error) {
	out := new(InvokeResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Forward", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FabricClient) Cancel(ctx context.Context, req *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	out := new(CancelResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Cancel", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FabricClient) ShardAssignment(ctx context.Context, req *ShardAssignmentRequest, opts ...grpc.CallOption) (*ShardAssignmentResponse, error) {
	out := new(ShardAssignmentResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/ShardAssignment", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
