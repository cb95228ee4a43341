// Package server hosts the front desk's gRPC listener. Only the standard health service is exposed.
package server

import (
	"context"
	"log"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// New returns a gRPC server instrumented with the otelgrpc stats handler and the health service
// registered on it. The health server starts NOT_SERVING until a checker updates it.
func New() (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

// Serve listens on addr and serves s until ctx ends, then stops gracefully.
func Serve(ctx context.Context, addr string, s *grpc.Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("gRPC health server listening on %s", lis.Addr())
		errCh <- s.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		log.Println("shutting down gRPC server...")
		s.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
