package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/motion.report/internal/timeutil"
)

// ReplayOptions controls ReplayPCAP.
type ReplayOptions struct {
	// Port selects UDP datagrams by destination port. Zero accepts all.
	Port int
	// Realtime paces delivery by the capture timestamps.
	Realtime bool
	// Speed scales realtime pacing; 2 replays twice as fast. Zero means 1.
	Speed float64
	Clock timeutil.Clock
}

// ReplayStats summarises a replay.
type ReplayStats struct {
	Packets   int
	Frames    int
	Skipped   int
	Malformed int
	Duration  time.Duration // capture time spanned by the delivered frames
}

// ReplayPCAP reads a classic pcap capture of the UDP feed and submits each
// matching datagram as a frame. It returns when the file is exhausted or ctx
// is done.
func ReplayPCAP(ctx context.Context, path string, opts ReplayOptions, sink Sink) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return replay(ctx, f, opts, sink)
}

func replay(ctx context.Context, r io.Reader, opts ReplayOptions, sink Sink) (ReplayStats, error) {
	var stats ReplayStats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("failed to read PCAP header: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.NoCopy = true

	var first, prev time.Time
	counters := &Counters{}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Truncated trailing records are common in captures cut short.
			logf("PCAP read stopped after %d packets: %v", stats.Packets, err)
			break
		}
		stats.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 || (opts.Port != 0 && int(udp.DstPort) != opts.Port) {
			stats.Skipped++
			continue
		}

		ts := packet.Metadata().Timestamp
		if first.IsZero() {
			first = ts
		}
		if opts.Realtime && !prev.IsZero() {
			if gap := time.Duration(float64(ts.Sub(prev)) / speed); gap > 0 {
				select {
				case <-clock.After(gap):
				case <-ctx.Done():
					return stats, ctx.Err()
				}
			}
		}
		prev = ts

		Deliver(udp.Payload, sink, counters)
		stats.Frames++
		stats.Duration = ts.Sub(first)
	}

	stats.Malformed = int(counters.Stats().Malformed)
	logf("PCAP replay complete: %d packets, %d frames, %d skipped, %d malformed",
		stats.Packets, stats.Frames, stats.Skipped, stats.Malformed)
	return stats, nil
}
