// Package health exposes the daemon's readiness over the standard gRPC health
// checking protocol so supervisors and load balancers can probe it.
package health

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

var logf = monitoring.Prefixed("health")

// Probe reports whether a component can serve. A nil error means healthy.
type Probe func(ctx context.Context) error

// Server publishes one health service per probe, plus the overall status
// under the empty service name, which is SERVING only while every probe is.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	probes   map[string]Probe
	names    []string
	clock    timeutil.Clock
	interval time.Duration

	mu   sync.Mutex
	last map[string]healthpb.HealthCheckResponse_ServingStatus
}

// New creates a health server. interval is the probe period and defaults to
// five seconds.
func New(probes map[string]Probe, clock timeutil.Clock, interval time.Duration) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &Server{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		probes:   probes,
		names:    names,
		clock:    clock,
		interval: interval,
		last:     make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Refresh runs every probe once and publishes the results. Each probe gets
// at most one interval; a probe that overruns counts as failing.
func (s *Server) Refresh(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range s.names {
		status := healthpb.HealthCheckResponse_SERVING
		if err := s.runProbe(ctx, name); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
			s.logChange(name, status, err)
		} else {
			s.logChange(name, status, nil)
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)
}

func (s *Server) runProbe(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	return s.probes[name](ctx)
}

func (s *Server) logChange(name string, status healthpb.HealthCheckResponse_ServingStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, seen := s.last[name]
	s.last[name] = status
	if seen && prev == status {
		return
	}
	if err != nil {
		logf("%s is %s: %v", name, status, err)
		return
	}
	logf("%s is %s", name, status)
}

// Serve answers health checks on lis until ctx is done, refreshing the probes
// every interval. All services report NOT_SERVING before the server stops.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)

	errc := make(chan error, 1)
	go func() {
		logf("gRPC health listening on %s", lis.Addr())
		errc <- s.grpc.Serve(lis)
	}()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			<-errc
			return nil
		case err := <-errc:
			return fmt.Errorf("gRPC health server: %w", err)
		case <-ticker.C():
			s.Refresh(ctx)
		}
	}
}

// ListenAndServe listens on the TCP address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}
