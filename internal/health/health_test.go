package health

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// toggle is a probe whose result can be flipped by the test.
type toggle struct{ failing atomic.Bool }

func (t *toggle) probe(context.Context) error {
	if t.failing.Load() {
		return errors.New("down")
	}
	return nil
}

func check(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	engine, store := &toggle{}, &toggle{}
	s := New(map[string]Probe{"motion.Engine": engine.probe, "motion.Store": store.probe}, nil, 0)

	s.Refresh(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, s, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, s, "motion.Store"))

	store.failing.Store(true)
	s.Refresh(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, s, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, s, "motion.Engine"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, s, "motion.Store"))

	store.failing.Store(false)
	s.Refresh(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, s, ""))
}

func TestRefresh_NoProbes(t *testing.T) {
	t.Parallel()
	s := New(nil, nil, 0)
	s.Refresh(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, s, ""))
}

func TestRefresh_StalledProbeTimesOut(t *testing.T) {
	t.Parallel()
	stalled := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ok := &toggle{}
	s := New(map[string]Probe{"motion.Admission": ok.probe, "motion.Store": stalled}, nil, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Refresh(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Refresh blocked on a stalled probe")
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, s, "motion.Store"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, s, "motion.Admission"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, s, ""))
}

func TestServe(t *testing.T) {
	t.Parallel()
	engine := &toggle{}
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	s := New(map[string]Probe{"motion.Engine": engine.probe}, clock, time.Second)

	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "motion.Engine"})
	require.NoError(t, err)
	assert.True(t, proto.Equal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, resp), "got %v", resp)

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "motion.Unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	// The periodic refresh picks up a failing probe.
	engine.failing.Store(true)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
