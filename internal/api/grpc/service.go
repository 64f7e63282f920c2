// Package grpcapi serves the simulated devices over gRPC. Messages are
// protobuf well-known types, so no generated code is needed.
package grpcapi

import (
	"context"
	"errors"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/auth"
	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/simdevice"
	"github.com/KevinKickass/OpenSimCore/internal/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "opensimcore.v1.DeviceService"

// DeviceServiceServer is the server API of ServiceName.
type DeviceServiceServer interface {
	ListDevices(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetState(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	ReadAttribute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WriteAttribute(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	RunCommand(context.Context, *structpb.Struct) (*structpb.Value, error)
	WatchAttributes(*wrapperspb.StringValue, DeviceService_WatchAttributesServer) error
}

// DeviceService_WatchAttributesServer is the server side of the
// WatchAttributes stream.
type DeviceService_WatchAttributesServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

// Service implements DeviceServiceServer on top of a host server.
type Service struct {
	host     *host.Server
	streamer *EventStreamer
	logger   *zap.Logger
}

// NewService serves srv. Events published to streamer reach
// WatchAttributes callers.
func NewService(srv *host.Server, streamer *EventStreamer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if streamer == nil {
		streamer = NewEventStreamer()
	}
	return &Service{host: srv, streamer: streamer, logger: logger}
}

func (s *Service) device(name string) (*host.Instance, error) {
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "device name is required")
	}
	inst, ok := s.host.Device(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "device %q not found", name)
	}
	return inst, nil
}

func (s *Service) ListDevices(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if err := requirePermission(ctx, auth.PermRead); err != nil {
		return nil, err
	}
	devices := s.host.Devices()
	items := make([]any, 0, len(devices))
	for _, d := range devices {
		items = append(items, map[string]any{
			"id":    d.ID.String(),
			"name":  d.Name,
			"class": d.Class,
			"state": d.State().String(),
		})
	}
	return structpb.NewList(items)
}

func (s *Service) GetState(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if err := requirePermission(ctx, auth.PermRead); err != nil {
		return nil, err
	}
	inst, err := s.device(in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(inst.State().String()), nil
}

// ReadAttribute expects {"device", "attribute"} and returns
// {"value", "timestamp", "quality"}.
func (s *Service) ReadAttribute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := requirePermission(ctx, auth.PermRead); err != nil {
		return nil, err
	}
	inst, err := s.device(field(in, "device"))
	if err != nil {
		return nil, err
	}
	r, err := inst.ReadAttribute(field(in, "attribute"))
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"value":     types.Plain(r.Value),
		"timestamp": r.Timestamp,
		"quality":   r.Quality.String(),
	})
}

// WriteAttribute expects {"device", "attribute", "value"}.
func (s *Service) WriteAttribute(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	inst, err := s.device(field(in, "device"))
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, changePermission(inst)); err != nil {
		return nil, err
	}
	attr := field(in, "attribute")
	if err := inst.WriteAttribute(attr, in.GetFields()["value"].AsInterface()); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("Attribute written",
		zap.String("device", inst.Name),
		zap.String("attribute", attr))
	return &emptypb.Empty{}, nil
}

// RunCommand expects {"device", "command", "argument"} and returns the
// command result.
func (s *Service) RunCommand(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	inst, err := s.device(field(in, "device"))
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, changePermission(inst)); err != nil {
		return nil, err
	}

	var arg any
	if v, ok := in.GetFields()["argument"]; ok {
		arg = v.AsInterface()
	}
	out, err := inst.RunCommand(ctx, field(in, "command"), arg)
	if err != nil {
		return nil, toStatus(err)
	}
	v, err := structpb.NewValue(types.Plain(out))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode result: %v", err)
	}
	return v, nil
}

// WatchAttributes streams attribute changes of one device, or of every
// device for an empty name, until the client goes away.
func (s *Service) WatchAttributes(in *wrapperspb.StringValue, stream DeviceService_WatchAttributesServer) error {
	if err := requirePermission(stream.Context(), auth.PermRead); err != nil {
		return err
	}
	device := in.GetValue()
	if device != "" {
		if _, err := s.device(device); err != nil {
			return err
		}
	}

	eventCh := s.streamer.Subscribe(device)
	defer s.streamer.Unsubscribe(device, eventCh)

	for {
		select {
		case ev, ok := <-eventCh:
			if !ok {
				return nil
			}
			msg, err := structpb.NewStruct(map[string]any{
				"device":    ev.Device,
				"attribute": ev.Attribute,
				"value":     types.Plain(ev.Value),
				"timestamp": ev.Timestamp,
				"quality":   ev.Quality.String(),
			})
			if err != nil {
				s.logger.Warn("Failed to encode event",
					zap.String("device", ev.Device),
					zap.String("attribute", ev.Attribute),
					zap.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}

		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func field(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func changePermission(inst *host.Instance) auth.Permission {
	if strings.HasSuffix(inst.Class, simdevice.ControlClassSuffix) {
		return auth.PermControl
	}
	return auth.PermOperate
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrModeViolation):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, types.ErrCommandFailed):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.InvalidArgument, err.Error())
	}
}

type permissionsKey struct{}

// requirePermission passes when no interceptor ran (auth disabled) or the
// caller's token grants p.
func requirePermission(ctx context.Context, p auth.Permission) error {
	perms, ok := ctx.Value(permissionsKey{}).([]auth.Permission)
	if !ok {
		return nil
	}
	for _, have := range perms {
		if have == p {
			return nil
		}
	}
	return status.Errorf(codes.PermissionDenied, "insufficient permissions: %s required", p)
}

// authenticate validates the bearer token in the "authorization" metadata
// and stores the granted permissions on the context.
func authenticate(ctx context.Context, j *auth.JWTHandler) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	token, found := strings.CutPrefix(values[0], "Bearer ")
	if !found {
		return nil, status.Error(codes.Unauthenticated, "invalid authorization format")
	}
	claims, err := j.ValidateToken(token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return context.WithValue(ctx, permissionsKey{}, auth.RolePermissions(claims.Role)), nil
}

func AuthInterceptor(j *auth.JWTHandler) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, j)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context { return s.ctx }

func StreamAuthInterceptor(j *auth.JWTHandler) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), j)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}

// NewServer builds a gRPC server with the device service registered. A
// nil jwt disables authentication.
func NewServer(svc DeviceServiceServer, j *auth.JWTHandler) *grpc.Server {
	var opts []grpc.ServerOption
	if j != nil {
		opts = append(opts,
			grpc.UnaryInterceptor(AuthInterceptor(j)),
			grpc.StreamInterceptor(StreamAuthInterceptor(j)))
	}
	s := grpc.NewServer(opts...)
	RegisterDeviceServiceServer(s, svc)
	return s
}
