package safetyrules

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the gRPC service the process topology speaks.
const ServiceName = "xdao.safetyrules.v1.SafetyRules"

const requestMethod = "/" + ServiceName + "/Request"

// SafetyRulesServer is the server API for the SafetyRules gRPC service.
//
// The payloads are encoded SafetyRulesInput/SafetyRulesOutput values carried
// in protobuf wrapper types, so no protoc/codegen step is needed.
type SafetyRulesServer interface {
	Request(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedSafetyRulesServer can be embedded to have forward compatible implementations.
type UnimplementedSafetyRulesServer struct{}

func (UnimplementedSafetyRulesServer) Request(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Request not implemented")
}

// RegisterSafetyRulesServer registers the SafetyRules service on a gRPC server.
func RegisterSafetyRulesServer(s grpc.ServiceRegistrar, srv SafetyRulesServer) {
	s.RegisterService(&SafetyRules_ServiceDesc, srv)
}

// SafetyRulesClient is the client API for the SafetyRules gRPC service.
type SafetyRulesClient interface {
	Request(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type safetyRulesClient struct{ cc grpc.ClientConnInterface }

func NewSafetyRulesClient(cc grpc.ClientConnInterface) SafetyRulesClient {
	return &safetyRulesClient{cc: cc}
}

func (c *safetyRulesClient) Request(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, requestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _SafetyRules_Request_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SafetyRulesServer).Request(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: requestMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SafetyRulesServer).Request(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// SafetyRules_ServiceDesc is the grpc.ServiceDesc for the SafetyRules service.
var SafetyRules_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SafetyRulesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Request", Handler: _SafetyRules_Request_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "safetyrules.proto",
}
