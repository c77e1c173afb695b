// Package health reports readiness over the standard gRPC health protocol.
package health

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall "" status.
const ServiceName = "territory.v1.Membership"

const checkTimeout = 2 * time.Second

// Pinger checks database connectivity (e.g. *sqlx.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the capability policy evaluates (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Reporter periodically checks dependencies and publishes the result on a grpc health server.
type Reporter struct {
	server *grpchealth.Server
	pinger Pinger
	policy PolicyChecker
	logger *zap.Logger
}

// NewReporter returns a Reporter. nil checks are skipped. The initial status is NOT_SERVING.
func NewReporter(pinger Pinger, policy PolicyChecker, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporter{server: grpchealth.NewServer(), pinger: pinger, policy: policy, logger: logger}
	r.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// Server returns the health server to register on a grpc.Server.
func (r *Reporter) Server() *grpchealth.Server {
	return r.server
}

// Check runs every dependency check once and publishes the resulting status.
func (r *Reporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if r.pinger != nil {
		if err := r.pinger.PingContext(ctx); err != nil {
			r.logger.Warn("health: database ping failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if r.policy != nil {
		if err := r.policy.HealthCheck(ctx); err != nil {
			r.logger.Warn("health: policy check failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	r.set(status)
	return status
}

// Run checks immediately and then every interval until ctx is done, when it marks the
// service NOT_SERVING for the rest of shutdown.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	r.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

func (r *Reporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
}

// NewGRPCServer returns a grpc.Server instrumented with OpenTelemetry and serving r.
func NewGRPCServer(r *Reporter) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, r.Server())
	return s
}
