package grpcserver

import (
	"context"
	"errors"
	"math"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"todoService/internal/auth"
	"todoService/internal/todo"
	"todoService/models"
	"todoService/repository"
)

// ServiceName is the fully qualified gRPC service name. Messages are protobuf
// well-known types, so clients need no generated stubs.
const ServiceName = "todo.v1.TodoService"

// Full method names.
const (
	MethodRegister   = "/" + ServiceName + "/Register"
	MethodLogin      = "/" + ServiceName + "/Login"
	MethodListItems  = "/" + ServiceName + "/ListItems"
	MethodCreateItem = "/" + ServiceName + "/CreateItem"
	MethodUpdateItem = "/" + ServiceName + "/UpdateItem"
	MethodDeleteItem = "/" + ServiceName + "/DeleteItem"
)

// todoServiceServer is the contract checked by grpc.RegisterService.
type todoServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListItems(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	CreateItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteItem(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// TodoServer implements todo.v1.TodoService on top of todo.Service.
type TodoServer struct {
	Svc    *todo.Service
	Logger logrus.FieldLogger
}

var _ todoServiceServer = (*TodoServer)(nil)

func (s *TodoServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	u, err := s.Svc.Register(ctx, stringField(req, "username"), stringField(req, "passwordHash"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodRegister, err)
	}
	return structpb.NewStruct(map[string]any{"id": u.ID, "username": u.Username})
}

func (s *TodoServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tok, err := s.Svc.Login(ctx, stringField(req, "username"), stringField(req, "passwordHash"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodLogin, err)
	}
	return structpb.NewStruct(map[string]any{"token": tok})
}

func (s *TodoServer) ListItems(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	items, err := s.Svc.ListItems(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, MethodListItems, err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(items))}
	for i := range items {
		st, err := itemToStruct(&items[i])
		if err != nil {
			return nil, s.toStatus(ctx, MethodListItems, err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(st))
	}
	return out, nil
}

func (s *TodoServer) CreateItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	it, err := s.Svc.CreateItem(ctx, stringField(req, "name"), req.GetFields()["completed"].GetBoolValue())
	if err != nil {
		return nil, s.toStatus(ctx, MethodCreateItem, err)
	}
	return itemToStruct(it)
}

// UpdateItem replaces name and completed of the item named by id.
func (s *TodoServer) UpdateItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idField(req)
	if err != nil {
		return nil, err
	}
	patch := models.Replacement(stringField(req, "name"), req.GetFields()["completed"].GetBoolValue())
	it, err := s.Svc.UpdateItem(ctx, id, patch)
	if err != nil {
		return nil, s.toStatus(ctx, MethodUpdateItem, err)
	}
	return itemToStruct(it)
}

func (s *TodoServer) DeleteItem(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	id, err := idField(req)
	if err != nil {
		return nil, err
	}
	if err := s.Svc.DeleteItem(ctx, id); err != nil {
		return nil, s.toStatus(ctx, MethodDeleteItem, err)
	}
	return &emptypb.Empty{}, nil
}

// toStatus maps service errors to gRPC status codes. Unknown errors are logged
// and returned as a generic Internal status.
func (s *TodoServer) toStatus(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, todo.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, repository.ErrNotFound):
		return status.Error(codes.NotFound, "item not found")
	case errors.Is(err, repository.ErrDuplicateUsername):
		return status.Error(codes.AlreadyExists, "User already exists")
	case errors.Is(err, todo.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger().WithField("method", method).WithError(err).Error("rpc failed")
	return status.Error(codes.Internal, "internal error")
}

func (s *TodoServer) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

func stringField(st *structpb.Struct, key string) string {
	return st.GetFields()[key].GetStringValue()
}

func idField(st *structpb.Struct) (int64, error) {
	v, ok := st.GetFields()["id"]
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "id is required")
	}
	n := v.GetNumberValue()
	if n <= 0 || n != math.Trunc(n) || n > math.MaxInt64 {
		return 0, status.Error(codes.InvalidArgument, "id must be a positive integer")
	}
	return int64(n), nil
}

func itemToStruct(it *models.Item) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":        it.ID,
		"name":      it.Name,
		"completed": it.Completed,
		"ownerId":   it.OwnerID,
	})
}

// unaryHandler adapts a typed call into a grpc.MethodHandler that honours the
// server's interceptor chain.
func unaryHandler(method string, newReq func() proto.Message, call func(todoServiceServer, context.Context, proto.Message) (any, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(todoServiceServer)
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(impl, ctx, req.(proto.Message))
		})
	}
}

func newStruct() proto.Message { return &structpb.Struct{} }
func newEmpty() proto.Message  { return &emptypb.Empty{} }

var todoServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*todoServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(MethodRegister, newStruct, func(s todoServiceServer, ctx context.Context, in proto.Message) (any, error) {
			return s.Register(ctx, in.(*structpb.Struct))
		})},
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, newStruct, func(s todoServiceServer, ctx context.Context, in proto.Message) (any, error) {
			return s.Login(ctx, in.(*structpb.Struct))
		})},
		{MethodName: "ListItems", Handler: unaryHandler(MethodListItems, newEmpty, func(s todoServiceServer, ctx context.Context, in proto.Message) (any, error) {
			return s.ListItems(ctx, in.(*emptypb.Empty))
		})},
		{MethodName: "CreateItem", Handler: unaryHandler(MethodCreateItem, newStruct, func(s todoServiceServer, ctx context.Context, in proto.Message) (any, error) {
			return s.CreateItem(ctx, in.(*structpb.Struct))
		})},
		{MethodName: "UpdateItem", Handler: unaryHandler(MethodUpdateItem, newStruct, func(s todoServiceServer, ctx context.Context, in proto.Message) (any, error) {
			return s.UpdateItem(ctx, in.(*structpb.Struct))
		})},
		{MethodName: "DeleteItem", Handler: unaryHandler(MethodDeleteItem, newStruct, func(s todoServiceServer, ctx context.Context, in proto.Message) (any, error) {
			return s.DeleteItem(ctx, in.(*structpb.Struct))
		})},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterTodoServiceServer registers srv on s.
func RegisterTodoServiceServer(s grpc.ServiceRegistrar, srv *TodoServer) {
	s.RegisterService(&todoServiceDesc, srv)
}
