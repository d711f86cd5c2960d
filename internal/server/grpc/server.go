// Package grpc exposes the control service over gRPC. Messages are plain
// structs carried by a JSON codec, so the wire contract lives in
// messages.go and service.go rather than in generated code; clients dial
// with the "json" content subtype.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/worldkeeper/internal/logging"
	"github.com/dmitrijs2005/worldkeeper/internal/server/auth"
	"github.com/dmitrijs2005/worldkeeper/internal/server/services"
)

type GRPCServer struct {
	address   string
	users     *services.UserService
	instances *services.InstanceService
	gate      *auth.Gate
	logger    logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, us *services.UserService, is *services.InstanceService, gate *auth.Gate) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		instances: is,
		gate:      gate,
	}, nil
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	// creates gRPC-server
	srv := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
	)

	// registers services
	srv.RegisterService(serviceDescFor(s), s)

	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthSrv)
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
