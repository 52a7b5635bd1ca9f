package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"cambria.dev/dashboard/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthServer mirrors readiness onto the standard gRPC health service, both
// for the overall server ("") and for the named dashboard service.
type HealthServer struct {
	srv       *health.Server
	readiness readinessChecker
}

func NewHealthServer(r readinessChecker) *HealthServer {
	return &HealthServer{srv: health.NewServer(), readiness: r}
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Refresh runs the readiness check once and publishes the result.
func (h *HealthServer) Refresh(ctx context.Context) error {
	err := h.readiness.Check(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
	obs.SetReady(err == nil)
	return err
}

// Run refreshes every interval until ctx is done, then marks the service as shutting down.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		if err := h.Refresh(checkCtx); err != nil && ctx.Err() == nil {
			obs.Logger().Warn("readiness check failed", zap.Error(err))
		}
		cancel()
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
