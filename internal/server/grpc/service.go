package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "worldkeeper.service.WorldKeeperService"

	serviceName = "/" + ServiceName + "/"
)

func unaryHandler[Req any, Resp any](method string, call func(ctx context.Context, req *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + method}
		h := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, h)
	}
}

// serviceDescFor builds the service descriptor bound to one server
// instance. Method handlers close over the server, so the generic
// trampolines stay typed without generated code.
func serviceDescFor(s *GRPCServer) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Register", Handler: unaryHandler("Register", s.Register)},
			{MethodName: "Login", Handler: unaryHandler("Login", s.Login)},
			{MethodName: "UpdateRole", Handler: unaryHandler("UpdateRole", s.UpdateRole)},
			{MethodName: "DeleteUser", Handler: unaryHandler("DeleteUser", s.DeleteUser)},
			{MethodName: "ListUsers", Handler: unaryHandler("ListUsers", s.ListUsers)},
			{MethodName: "Provision", Handler: unaryHandler("Provision", s.Provision)},
			{MethodName: "Start", Handler: unaryHandler("Start", s.Start)},
			{MethodName: "Stop", Handler: unaryHandler("Stop", s.Stop)},
			{MethodName: "Deprovision", Handler: unaryHandler("Deprovision", s.Deprovision)},
			{MethodName: "GetInstance", Handler: unaryHandler("GetInstance", s.GetInstance)},
			{MethodName: "ListInstances", Handler: unaryHandler("ListInstances", s.ListInstances)},
			{MethodName: "ListRunning", Handler: unaryHandler("ListRunning", s.ListRunning)},
			{MethodName: "UploadSave", Handler: unaryHandler("UploadSave", s.UploadSave)},
			{MethodName: "DownloadSave", Handler: unaryHandler("DownloadSave", s.DownloadSave)},
			{MethodName: "ListSaves", Handler: unaryHandler("ListSaves", s.ListSaves)},
			{MethodName: "Ping", Handler: unaryHandler("Ping", s.Ping)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "worldkeeper",
	}
}
