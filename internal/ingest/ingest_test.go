package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/serialmux"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// collectSink records submitted frames.
type collectSink struct {
	mu     sync.Mutex
	frames []motion.Frame
	reject bool
}

func (s *collectSink) Submit(f motion.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return !s.reject
}

func (s *collectSink) Frames() []motion.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]motion.Frame(nil), s.frames...)
}

func (s *collectSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

const sampleFrame = `{"seq":12,"ts":1712345678.25,"keypoints":{"right_wrist":{"x":0.5,"y":0.25,"c":0.92},"left_ankle":{"x":0.4,"y":0.9,"c":0.2}}}`

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	t.Run("keypoints", func(t *testing.T) {
		f := DecodeFrame([]byte(sampleFrame))
		require.NoError(t, f.Err)
		assert.Equal(t, uint64(12), f.Seq)
		assert.Equal(t, map[motion.JointRole]motion.Keypoint{
			motion.RightWrist: {X: 0.5, Y: 0.25, Confidence: 0.92},
			motion.LeftAnkle:  {X: 0.4, Y: 0.9, Confidence: 0.2},
		}, f.Keypoints)
	})

	t.Run("estimator error", func(t *testing.T) {
		f := DecodeFrame([]byte(`{"seq":3,"keypoints":{},"error":"detector timeout"}`))
		require.Error(t, f.Err)
		assert.ErrorIs(t, f.Err, motion.ErrPoseEstimation)
		assert.Contains(t, f.Err.Error(), "detector timeout")
		assert.Equal(t, uint64(3), f.Seq)
	})

	t.Run("malformed", func(t *testing.T) {
		f := DecodeFrame([]byte(`{"seq":`))
		assert.ErrorIs(t, f.Err, motion.ErrPoseEstimation)
		assert.Contains(t, f.Err.Error(), "malformed frame")
	})

	t.Run("oversized", func(t *testing.T) {
		f := DecodeFrame(bytes.Repeat([]byte(" "), MaxFrameSize+1))
		assert.ErrorIs(t, f.Err, motion.ErrPoseEstimation)
		assert.Contains(t, f.Err.Error(), "exceeds")
	})
}

func TestDeliver_Counters(t *testing.T) {
	t.Parallel()
	sink := &collectSink{}
	c := &Counters{}

	ok, err := Deliver([]byte(sampleFrame), sink, c)
	assert.True(t, ok)
	assert.NoError(t, err)
	ok, err = Deliver([]byte("not json"), sink, c)
	assert.True(t, ok, "malformed input is still submitted")
	assert.ErrorContains(t, err, "malformed frame")
	_, err = Deliver([]byte(`{"error":"no person in view"}`), sink, c)
	assert.NoError(t, err, "a reported detector error is well-formed")
	sink.reject = true
	ok, _ = Deliver([]byte(sampleFrame), sink, c)
	assert.False(t, ok)

	assert.Equal(t, CounterStats{Received: 4, Malformed: 1, Rejected: 1}, c.Stats())
	assert.Equal(t, 4, sink.Len())
}

func TestRunSerial(t *testing.T) {
	t.Parallel()
	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	sink := &collectSink{}
	c := &Counters{}

	done := make(chan error, 1)
	go func() { done <- RunSerial(context.Background(), mux, sink, c) }()

	port.Feed("# posecam fw 2.3.1\n" + sampleFrame + "\nOK STREAM ON\ngarbage\n{\"seq\":13,\"keypoints\":{}}\n")

	require.Eventually(t, func() bool { return sink.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	port.FailReads(errors.New("device unplugged"))
	select {
	case err := <-done:
		assert.ErrorContains(t, err, "device unplugged")
	case <-time.After(2 * time.Second):
		t.Fatal("RunSerial did not return")
	}

	frames := sink.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, uint64(12), frames[0].Seq)
	assert.Equal(t, uint64(13), frames[1].Seq)
	assert.ErrorIs(t, frames[2].Err, motion.ErrCaptureUnavailable)
	assert.Equal(t, uint64(2), c.Stats().Received)
}

func TestRunSerial_Cancel(t *testing.T) {
	t.Parallel()
	sink := &collectSink{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- RunSerial(ctx, serialmux.NewDisabledSerialMux(), sink, nil) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunSerial did not return")
	}
	assert.Equal(t, 0, sink.Len(), "cancellation is not a capture failure")
}

func TestUDPListener_Serve(t *testing.T) {
	t.Parallel()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	sink := &collectSink{}
	c := &Counters{}
	l := NewUDPListener(UDPListenerConfig{Sink: sink, Counters: c})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, conn) }()

	client, err := net.DialUDP("udp", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte(sampleFrame))
	require.NoError(t, err)
	_, err = client.Write([]byte("{broken"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	frames := sink.Frames()
	assert.Equal(t, uint64(12), frames[0].Seq)
	assert.ErrorIs(t, frames[1].Err, motion.ErrPoseEstimation)
	assert.Equal(t, uint64(1), c.Stats().Malformed)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestUDPListener_StartBadAddress(t *testing.T) {
	t.Parallel()
	l := NewUDPListener(UDPListenerConfig{Address: "not-an-address:xyz", Sink: &collectSink{}})
	err := l.Start(context.Background())
	assert.ErrorContains(t, err, "failed to resolve UDP address")
}

// writeCapture builds an Ethernet/IPv4/UDP pcap with one packet per payload,
// spaced 100ms apart.
func writeCapture(t *testing.T, dstPorts []int, payloads []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, payload := range payloads {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 1, 20),
			DstIP:    net.IPv4(192, 168, 1, 10),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPorts[i])}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		sb := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(sb, opts, eth, ip, udp, gopacket.Payload(payload)))
		data := sb.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 100 * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return buf.Bytes()
}

func TestReplayPCAP(t *testing.T) {
	t.Parallel()
	data := writeCapture(t,
		[]int{7300, 7300, 9999, 7300},
		[]string{
			`{"seq":1,"keypoints":{}}`,
			`{"seq":2,"keypoints":{}}`,
			`{"seq":99,"keypoints":{}}`,
			`{oops`,
		})
	path := filepath.Join(t.TempDir(), "feed.pcap")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	sink := &collectSink{}
	stats, err := ReplayPCAP(context.Background(), path, ReplayOptions{Port: 7300}, sink)
	require.NoError(t, err)

	assert.Equal(t, ReplayStats{
		Packets:   4,
		Frames:    3,
		Skipped:   1,
		Malformed: 1,
		Duration:  300 * time.Millisecond,
	}, stats)
	frames := sink.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, uint64(1), frames[0].Seq)
	assert.Equal(t, uint64(2), frames[1].Seq)
	assert.ErrorIs(t, frames[2].Err, motion.ErrPoseEstimation)
}

func TestReplayPCAP_Realtime(t *testing.T) {
	t.Parallel()
	data := writeCapture(t, []int{7300, 7300}, []string{`{"seq":1}`, `{"seq":2}`})
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sink := &collectSink{}

	done := make(chan ReplayStats, 1)
	go func() {
		stats, err := replay(context.Background(), bytes.NewReader(data), ReplayOptions{Realtime: true, Speed: 2, Clock: clock}, sink)
		assert.NoError(t, err)
		done <- stats
	}()

	clock.BlockUntil(1)
	assert.Equal(t, 1, sink.Len(), "second frame waits for the capture gap")
	clock.Advance(49 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("replay finished before the scaled gap elapsed")
	case <-time.After(20 * time.Millisecond):
	}
	clock.Advance(time.Millisecond)

	select {
	case stats := <-done:
		assert.Equal(t, 2, stats.Frames)
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}
}

func TestReplayPCAP_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReplayPCAP(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"), ReplayOptions{}, &collectSink{})
	assert.ErrorContains(t, err, "failed to open PCAP file")

	_, err = replay(context.Background(), bytes.NewReader([]byte("not a capture")), ReplayOptions{}, &collectSink{})
	assert.ErrorContains(t, err, "failed to read PCAP header")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := writeCapture(t, []int{7300}, []string{`{"seq":1}`})
	_, err = replay(ctx, bytes.NewReader(data), ReplayOptions{}, &collectSink{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayPCAP_TruncatedTail(t *testing.T) {
	t.Parallel()
	data := writeCapture(t, []int{7300, 7300}, []string{`{"seq":1}`, `{"seq":2}`})
	sink := &collectSink{}

	stats, err := replay(context.Background(), io.LimitReader(bytes.NewReader(data), int64(len(data)-5)), ReplayOptions{}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Frames, fmt.Sprintf("stats: %+v", stats))
}
