// Package server exposes the gRPC health service of the bot.
package server

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"max.ks1230/currency-rates/internal/logger"
)

// ServiceName is reported alongside the overall "" service.
const ServiceName = "currency-rates"

type HealthServer struct {
	health *health.Server
	server *grpc.Server
	lis    net.Listener
}

// NewHealthServer starts listening on port, 0 picks a free one. The service
// reports NOT_SERVING until SetServing is called.
func NewHealthServer(port int) (*HealthServer, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrap(err, "cannot create server")
	}

	rpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(rpcServer, healthServer)

	return &HealthServer{
		health: healthServer,
		server: rpcServer,
		lis:    lis,
	}, nil
}

func (s *HealthServer) Addr() net.Addr {
	return s.lis.Addr()
}

func (s *HealthServer) SetServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	logger.Info("health status is SERVING")
}

func (s *HealthServer) Serve() error {
	logger.Info("gRPC server listening", zap.Any("addr", s.lis.Addr()))
	err := s.server.Serve(s.lis)
	if err != nil {
		return errors.Wrap(err, "serve gRPC")
	}
	return nil
}

func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.server.GracefulStop()
	logger.Info("grpc server stopped")
}
