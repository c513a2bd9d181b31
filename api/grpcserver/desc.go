package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "waiterboard.v1.WaiterBoard"

/*
The service is described by hand over the protobuf well-known types, so
there is no generated code to keep in sync. Payloads are structpb.Struct
documents carrying the same JSON shape the HTTP API serves.
*/

type WaiterBoardServer interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
	UpdateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteOrder(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ProductionBoard(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	PatientBoard(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSettings(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UpdateSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AuditLog(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
	LookupPatient(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WaiterBoardServer)(nil),
	Methods: []grpc.MethodDesc{
		method("CreateOrder", newStruct, WaiterBoardServer.CreateOrder),
		method("GetOrder", newInt64, WaiterBoardServer.GetOrder),
		method("UpdateOrder", newStruct, WaiterBoardServer.UpdateOrder),
		method("DeleteOrder", newStruct, WaiterBoardServer.DeleteOrder),
		method("ProductionBoard", newEmpty, WaiterBoardServer.ProductionBoard),
		method("PatientBoard", newEmpty, WaiterBoardServer.PatientBoard),
		method("GetSettings", newEmpty, WaiterBoardServer.GetSettings),
		method("UpdateSettings", newStruct, WaiterBoardServer.UpdateSettings),
		method("AuditLog", newInt32, WaiterBoardServer.AuditLog),
		method("LookupPatient", newString, WaiterBoardServer.LookupPatient),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "waiterboard/v1/waiterboard.proto",
}

func RegisterWaiterBoardServer(r grpc.ServiceRegistrar, srv WaiterBoardServer) {
	r.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func method[Req, Resp proto.Message](
	name string,
	newReq func() Req,
	call func(WaiterBoardServer, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(WaiterBoardServer), ctx, req.(Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newStruct() *structpb.Struct        { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty           { return &emptypb.Empty{} }
func newInt64() *wrapperspb.Int64Value   { return &wrapperspb.Int64Value{} }
func newInt32() *wrapperspb.Int32Value   { return &wrapperspb.Int32Value{} }
func newString() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
