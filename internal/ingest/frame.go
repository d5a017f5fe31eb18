// Package ingest turns keypoint feeds (serial lines, UDP datagrams, pcap
// captures and HTTP bodies) into motion frames and hands them to a Sink.
//
// Every feed carries the same JSON object per frame:
//
//	{"seq": 12, "ts": 1712345678.25,
//	 "keypoints": {"right_wrist": {"x": 0.5, "y": 0.5, "c": 0.92}},
//	 "error": "detector timeout"}
//
// A non-empty "error" marks a pose estimation failure. Input that does not
// parse is reported the same way so the session records it.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/motion.report/internal/motion"
)

// MaxFrameSize bounds a single encoded frame.
const MaxFrameSize = 64 * 1024

// Sink accepts decoded frames. *admission.Mailbox implements it.
type Sink interface {
	Submit(f motion.Frame) bool
}

type wireFrame struct {
	Seq       uint64                              `json:"seq"`
	TS        float64                             `json:"ts,omitempty"`
	Keypoints map[motion.JointRole]motion.Keypoint `json:"keypoints"`
	Error     string                              `json:"error,omitempty"`
}

// DecodeFrame parses one encoded frame. It never fails: malformed input
// yields a frame carrying a pose estimation error.
func DecodeFrame(data []byte) motion.Frame {
	f, err := decodeFrame(data)
	if err != nil {
		return motion.Frame{Err: motion.PoseError(err)}
	}
	return f
}

func decodeFrame(data []byte) (motion.Frame, error) {
	if len(data) > MaxFrameSize {
		return motion.Frame{}, fmt.Errorf("frame of %d bytes exceeds %d", len(data), MaxFrameSize)
	}
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return motion.Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	f := motion.Frame{Seq: w.Seq, Keypoints: w.Keypoints}
	if w.Error != "" {
		f.Err = motion.PoseError(errors.New(w.Error))
	}
	return f, nil
}

// Counters tracks what a feed has delivered.
type Counters struct {
	received  atomic.Uint64
	malformed atomic.Uint64
	rejected  atomic.Uint64
}

// CounterStats is a snapshot of Counters.
type CounterStats struct {
	Received  uint64 `json:"received"`
	Malformed uint64 `json:"malformed"`
	Rejected  uint64 `json:"rejected"`
}

func (c *Counters) Stats() CounterStats {
	return CounterStats{
		Received:  c.received.Load(),
		Malformed: c.malformed.Load(),
		Rejected:  c.rejected.Load(),
	}
}

// Deliver decodes data and submits the frame to sink. c may be nil. A decode
// failure is still submitted as a pose estimation error and is also returned
// so request-scoped callers can report it. submitted is false when the sink
// refused the frame.
func Deliver(data []byte, sink Sink, c *Counters) (submitted bool, err error) {
	f, err := decodeFrame(data)
	if err != nil {
		f = motion.Frame{Err: motion.PoseError(err)}
	}
	if c != nil {
		c.received.Add(1)
		if err != nil {
			c.malformed.Add(1)
		}
	}
	submitted = sink.Submit(f)
	if !submitted && c != nil {
		c.rejected.Add(1)
	}
	return submitted, err
}
