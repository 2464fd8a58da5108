package grpc

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	health "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const ServiceName = "autojoin"

// Pinger reports whether a dependency the service needs is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	health.UnimplementedHealthServer

	srv   *grpc.Server
	store Pinger
}

func NewGrpc(store Pinger) *Server {
	server := &Server{
		srv:   grpc.NewServer(),
		store: store,
	}

	health.RegisterHealthServer(server.srv, server)

	reflection.Register(server.srv)

	return server
}

func (v *Server) Check(ctx context.Context, in *health.HealthCheckRequest) (*health.HealthCheckResponse, error) {
	switch in.GetService() {
	case "", ServiceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", in.GetService())
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := v.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check failed, meeting store unreachable")
		return &health.HealthCheckResponse{
			Status: health.HealthCheckResponse_NOT_SERVING,
		}, nil
	}

	return &health.HealthCheckResponse{
		Status: health.HealthCheckResponse_SERVING,
	}, nil
}

func (v *Server) Listen(bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	return v.srv.Serve(listener)
}

func (v *Server) Stop() {
	v.srv.GracefulStop()
}
