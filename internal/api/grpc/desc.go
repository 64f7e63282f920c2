package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func RegisterDeviceServiceServer(s grpc.ServiceRegistrar, srv DeviceServiceServer) {
	s.RegisterService(&DeviceServiceDesc, srv)
}

// unary adapts a typed method to the grpc.MethodDesc handler shape.
func unary[In any, Out any](method string, newIn func() *In, call func(DeviceServiceServer, context.Context, *In) (Out, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newIn()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DeviceServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DeviceServiceServer), ctx, req.(*In))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var DeviceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeviceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListDevices", func() *emptypb.Empty { return new(emptypb.Empty) }, DeviceServiceServer.ListDevices),
		unary("GetState", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, DeviceServiceServer.GetState),
		unary("ReadAttribute", func() *structpb.Struct { return new(structpb.Struct) }, DeviceServiceServer.ReadAttribute),
		unary("WriteAttribute", func() *structpb.Struct { return new(structpb.Struct) }, DeviceServiceServer.WriteAttribute),
		unary("RunCommand", func() *structpb.Struct { return new(structpb.Struct) }, DeviceServiceServer.RunCommand),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchAttributes",
			Handler:       watchAttributesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "opensimcore/v1/device.proto",
}

// DeviceServiceClient calls ServiceName over a client connection.
type DeviceServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDeviceServiceClient(cc grpc.ClientConnInterface) *DeviceServiceClient {
	return &DeviceServiceClient{cc: cc}
}

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Out, error) {
	out := new(Out)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeviceServiceClient) ListDevices(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, "ListDevices", &emptypb.Empty{}, opts...)
}

func (c *DeviceServiceClient) GetState(ctx context.Context, device string, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, "GetState", wrapperspb.String(device), opts...)
}

func (c *DeviceServiceClient) ReadAttribute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "ReadAttribute", in, opts...)
}

func (c *DeviceServiceClient) WriteAttribute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "WriteAttribute", in, opts...)
}

func (c *DeviceServiceClient) RunCommand(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	return invoke[structpb.Value](ctx, c.cc, "RunCommand", in, opts...)
}

func watchAttributesHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DeviceServiceServer).WatchAttributes(in, &watchAttributesServer{stream})
}

type watchAttributesServer struct {
	grpc.ServerStream
}

func (x *watchAttributesServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// WatchAttributesClient receives attribute change events.
type WatchAttributesClient struct {
	grpc.ClientStream
}

func (x *WatchAttributesClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// WatchAttributes subscribes to changes of device; an empty name watches
// every device.
func (c *DeviceServiceClient) WatchAttributes(ctx context.Context, device string, opts ...grpc.CallOption) (*WatchAttributesClient, error) {
	stream, err := c.cc.NewStream(ctx, &DeviceServiceDesc.Streams[0], "/"+ServiceName+"/WatchAttributes", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(device)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchAttributesClient{ClientStream: stream}, nil
}
