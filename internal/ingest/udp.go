package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// UDPListener receives one encoded frame per datagram.
type UDPListener struct {
	address  string
	rcvBuf   int
	sink     Sink
	counters *Counters
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address  string // host:port, e.g. ":7300"
	RcvBuf   int    // socket receive buffer in bytes; zero keeps the OS default
	Sink     Sink
	Counters *Counters
}

func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	return &UDPListener{
		address:  cfg.Address,
		rcvBuf:   cfg.RcvBuf,
		sink:     cfg.Sink,
		counters: cfg.Counters,
	}
}

// Start listens on the configured address and serves until ctx is done.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			logf("failed to set UDP receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	logf("UDP listener started on %s", conn.LocalAddr())
	return l.Serve(ctx, conn)
}

// Serve reads datagrams from conn until ctx is done. conn is not closed.
func (l *UDPListener) Serve(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, MaxFrameSize+1)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Short deadlines keep the loop responsive to cancellation.
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logf("UDP read error from %v: %v", from, err)
			continue
		}
		if n == 0 {
			continue
		}
		// Copy out of the shared buffer: decoded keypoints must not alias it.
		data := append([]byte(nil), buf[:n]...)
		Deliver(data, l.sink, l.counters)
	}
}
