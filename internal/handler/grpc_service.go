package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// PlacementServiceName is the fully qualified gRPC service name.
const PlacementServiceName = "ojt.placements.v1.PlacementService"

// PlacementServiceServer is the server API for PlacementService. Messages
// are google.protobuf.Struct documents shaped like the HTTP JSON bodies.
type PlacementServiceServer interface {
	Approve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Archive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retrieve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCapacity(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(PlacementServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PlacementServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + PlacementServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PlacementServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// PlacementServiceDesc describes PlacementService for grpc.Server.
var PlacementServiceDesc = grpc.ServiceDesc{
	ServiceName: PlacementServiceName,
	HandlerType: (*PlacementServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Approve", Handler: unaryHandler("Approve", PlacementServiceServer.Approve)},
		{MethodName: "Reject", Handler: unaryHandler("Reject", PlacementServiceServer.Reject)},
		{MethodName: "Archive", Handler: unaryHandler("Archive", PlacementServiceServer.Archive)},
		{MethodName: "Retrieve", Handler: unaryHandler("Retrieve", PlacementServiceServer.Retrieve)},
		{MethodName: "GetCapacity", Handler: unaryHandler("GetCapacity", PlacementServiceServer.GetCapacity)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ojt/placements/v1/placements.proto",
}

// RegisterPlacementServiceServer registers srv on s.
func RegisterPlacementServiceServer(s grpc.ServiceRegistrar, srv PlacementServiceServer) {
	s.RegisterService(&PlacementServiceDesc, srv)
}

// PlacementClient calls PlacementService.
type PlacementClient struct {
	cc grpc.ClientConnInterface
}

func NewPlacementClient(cc grpc.ClientConnInterface) *PlacementClient {
	return &PlacementClient{cc: cc}
}

func (c *PlacementClient) invoke(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+PlacementServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PlacementClient) Approve(ctx context.Context, applicationID, notes string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Approve", map[string]any{"application_id": applicationID, "notes": notes}, opts...)
}

func (c *PlacementClient) Reject(ctx context.Context, applicationID, reason, notes string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Reject", map[string]any{"application_id": applicationID, "reason": reason, "notes": notes}, opts...)
}

func (c *PlacementClient) Archive(ctx context.Context, applicationID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Archive", map[string]any{"application_id": applicationID}, opts...)
}

func (c *PlacementClient) Retrieve(ctx context.Context, applicationID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Retrieve", map[string]any{"application_id": applicationID}, opts...)
}

func (c *PlacementClient) GetCapacity(ctx context.Context, companyID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetCapacity", map[string]any{"company_id": companyID}, opts...)
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return out, nil
}
