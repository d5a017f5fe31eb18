package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/serialmux"
)

var logf = monitoring.Prefixed("ingest")

// RunSerial monitors mux and submits every frame line it produces. Status
// lines from the device are logged and otherwise ignored.
//
// If the port fails or reaches EOF, a CaptureUnavailable frame is submitted
// so the session records the outage, and the cause is returned.
func RunSerial(ctx context.Context, mux serialmux.SerialMuxInterface, sink Sink, c *Counters) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	monErr := make(chan error, 1)
	go func() { monErr <- mux.Monitor(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-monErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == nil {
				err = io.EOF
			}
			return reportCaptureLoss(sink, fmt.Errorf("serial feed: %w", err))

		case line, ok := <-lines:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return reportCaptureLoss(sink, errors.New("serial feed closed"))
			}
			switch serialmux.ClassifyLine(line) {
			case serialmux.LineTypeFrame:
				Deliver([]byte(line), sink, c)
			case serialmux.LineTypeStatus:
				logf("device: %s", line)
			default:
				logf("ignoring unrecognised line: %q", line)
			}
		}
	}
}

func reportCaptureLoss(sink Sink, cause error) error {
	logf("capture unavailable: %v", cause)
	sink.Submit(motion.Frame{Err: motion.CaptureError(cause)})
	return cause
}
