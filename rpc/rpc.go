package rpc

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RoomsService is the health service name that reflects the room engine.
const RoomsService = "quizserver.Rooms"

// Server 运维用的 gRPC 监听，目前只暴露标准健康检查
type Server struct {
	listener net.Listener
	address  string
	grpc     *grpc.Server
	health   *health.Server
	log      *zap.SugaredLogger
}

// NewServer listens on addr. Every service starts NOT_SERVING until MarkServing.
func NewServer(addr string, log *zap.SugaredLogger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: listener,
		address:  listener.Addr().String(),
		health:   health.NewServer(),
		log:      log,
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(RoomsService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s, nil
}

func (s *Server) Addr() string {
	return s.address
}

// Serve blocks until Stop.
func (s *Server) Serve() error {
	s.log.Infof("RPC server listening on %s", s.address)
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) MarkServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(RoomsService, healthpb.HealthCheckResponse_SERVING)
}

// Stop flips every service to NOT_SERVING, then drains in-flight calls.
func (s *Server) Stop() {
	s.log.Info("Stopping RPC server.")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	started := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Warnf("RPC %s failed after %v: %v", info.FullMethod, time.Since(started), err)
	} else {
		s.log.Debugf("RPC %s took %v", info.FullMethod, time.Since(started))
	}
	return resp, err
}
