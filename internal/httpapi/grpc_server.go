package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"meritlog.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthService publishes readiness over the standard gRPC health protocol, both for
// the whole server ("") and for the named service.
type HealthService struct {
	*health.Server
	readiness readinessChecker
}

// NewHealthService starts NOT_SERVING until the first probe succeeds.
func NewHealthService(r readinessChecker) *HealthService {
	hs := &HealthService{Server: health.NewServer(), readiness: r}
	hs.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Probe evaluates readiness once and updates the published status.
func (h *HealthService) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	obs.SetReady(true)
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Watch probes every interval until ctx ends, then marks the server as shutting down.
func (h *HealthService) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := h.Probe(ctx); err != nil {
			obs.Logger().Debug().Err(err).Msg("readiness probe failed")
		}
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-t.C:
		}
	}
}

func (h *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus("", status)
	h.SetServingStatus(serviceName, status)
}
