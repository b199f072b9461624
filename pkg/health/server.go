// Package health exposes backend readiness over the standard gRPC health
// protocol.
package health

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Check struct {
	Name string
	// Required checks decide the overall ("") status. Optional ones are
	// reported under their own name only.
	Required bool
	Probe    func(ctx context.Context) error
}

type Server struct {
	log      *slog.Logger
	hs       *health.Server
	checks   []Check
	interval time.Duration
}

func NewServer(log *slog.Logger, checks ...Check) *Server {
	return &Server{
		log:      log,
		hs:       health.NewServer(),
		checks:   checks,
		interval: 10 * time.Second,
	}
}

// Probe runs every check once and publishes the results. It reports the
// overall status.
func (s *Server) Probe(ctx context.Context) bool {
	healthy := true
	for _, c := range s.checks {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Probe(pctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.Warn("health check failed", "check", c.Name, "err", err)
			if c.Required {
				healthy = false
			}
		}
		s.hs.SetServingStatus(c.Name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.hs.SetServingStatus("", overall)
	return healthy
}

// Run serves the health service on addr and re-probes until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, s.hs)

	s.Probe(ctx)
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				s.hs.Shutdown()
				gs.GracefulStop()
				return
			case <-t.C:
				s.Probe(ctx)
			}
		}
	}()

	s.log.Info("grpc health listening", "addr", addr)
	return gs.Serve(lis)
}
