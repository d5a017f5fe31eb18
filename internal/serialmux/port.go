package serialmux

import "io"

// SerialPorter is the minimal port surface SerialMux needs. go.bug.st/serial
// ports satisfy it, as do the in-memory ports used in tests and dev mode.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
