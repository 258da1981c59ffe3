package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "paymentengine.v1.TransactionService"

// TransactionServiceServer is the server API. Requests and responses are
// google.protobuf.Struct documents carrying the same fields as the HTTP API.
type TransactionServiceServer interface {
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Initialize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refund(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Verify(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateReceipt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Summary(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TransactionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(TransactionServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(server, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransactionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodHandler("Create", TransactionServiceServer.Create),
		methodHandler("Get", TransactionServiceServer.Get),
		methodHandler("ListUser", TransactionServiceServer.ListUser),
		methodHandler("Initialize", TransactionServiceServer.Initialize),
		methodHandler("Retry", TransactionServiceServer.Retry),
		methodHandler("Refund", TransactionServiceServer.Refund),
		methodHandler("Verify", TransactionServiceServer.Verify),
		methodHandler("GenerateReceipt", TransactionServiceServer.GenerateReceipt),
		methodHandler("Summary", TransactionServiceServer.Summary),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "paymentengine/v1/transaction.proto",
}

func RegisterTransactionServiceServer(s grpc.ServiceRegistrar, srv TransactionServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
