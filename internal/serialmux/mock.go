package serialmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// SyntheticPort is a serial port that emits generated keypoint frames. It
// backs the -dev mode of motiond so the whole pipeline can run without a
// coprocessor attached. Commands written to it are recorded and ignored.
type SyntheticPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	cancel  context.CancelFunc
}

// NewSyntheticPort starts generating frames at rate Hz. The wrists oscillate
// with tremorAmp (normalised image units) and the ankles alternate as if
// walking.
func NewSyntheticPort(rate int, tremorAmp float64) *SyntheticPort {
	if rate <= 0 {
		rate = 30
	}
	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	p := &SyntheticPort{r: r, w: w, cancel: cancel}
	go p.generate(ctx, time.Second/time.Duration(rate), tremorAmp)
	return p
}

func (p *SyntheticPort) generate(ctx context.Context, period time.Duration, amp float64) {
	defer p.w.Close()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		seq++
		if _, err := io.WriteString(p.w, SyntheticFrameLine(seq, amp)); err != nil {
			return
		}
	}
}

// SyntheticFrameLine renders frame seq of the synthetic feed as a JSON line.
func SyntheticFrameLine(seq uint64, amp float64) string {
	phase := float64(seq) * 0.9
	sway := amp * math.Sin(phase)
	gait := 0.04 * math.Sin(float64(seq)*2*math.Pi/30)
	return fmt.Sprintf(`{"seq":%d,"keypoints":{`+
		`"right_wrist":{"x":%.5f,"y":%.5f,"c":0.92},`+
		`"left_wrist":{"x":%.5f,"y":%.5f,"c":0.90},`+
		`"right_ankle":{"x":0.55000,"y":%.5f,"c":0.85},`+
		`"left_ankle":{"x":0.45000,"y":%.5f,"c":0.86}}}`+"\n",
		seq,
		0.62+sway, 0.48+sway/2,
		0.38-sway/2, 0.48+sway,
		0.90+gait, 0.90-gait,
	)
}

func (p *SyntheticPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *SyntheticPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written.Write(b)
	return len(b), nil
}

// Written returns every command written so far.
func (p *SyntheticPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func (p *SyntheticPort) Close() error {
	p.cancel()
	return p.r.Close()
}

// NewSyntheticSerialMux wraps a SyntheticPort in a SerialMux.
func NewSyntheticSerialMux(rate int, tremorAmp float64) *SerialMux[*SyntheticPort] {
	return NewSerialMux(NewSyntheticPort(rate, tremorAmp))
}

// TestableSerialPort is an in-memory port with scripted reads and injectable
// failures.
type TestableSerialPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	readErr  error

	// WriteError is returned by the next Write call if set.
	WriteError error
	// ShortWrite makes Write report one byte less than it was given.
	ShortWrite bool
	closed     bool
}

func NewTestableSerialPort() *TestableSerialPort {
	t := &TestableSerialPort{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Read blocks until data is available, a read error is injected or the port
// is closed.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.readBuf.Len() == 0 && t.readErr == nil && !t.closed {
		t.cond.Wait()
	}
	if t.readBuf.Len() > 0 {
		return t.readBuf.Read(p)
	}
	if t.readErr != nil {
		return 0, t.readErr
	}
	return 0, io.EOF
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	t.writeBuf.Write(p)
	if t.ShortWrite {
		return len(p) - 1, nil
	}
	return len(p), nil
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cond.Broadcast()
	return nil
}

// Feed appends data to be returned by subsequent reads.
func (t *TestableSerialPort) Feed(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuf.WriteString(data)
	t.cond.Broadcast()
}

// FailReads makes reads return err once buffered data is drained.
func (t *TestableSerialPort) FailReads(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErr = err
	t.cond.Broadcast()
}

// Written returns all data written to the port.
func (t *TestableSerialPort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeBuf.String()
}

// Closed reports whether Close was called.
func (t *TestableSerialPort) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
