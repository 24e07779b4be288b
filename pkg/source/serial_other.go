//go:build !linux

package source

import (
	"fmt"

	"github.com/tracescope/tracescope/pkg/tracedecode"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// SerialSource is unsupported outside Linux: raw-mode termios control in
// this package uses Linux-specific ioctl numbers (TCGETS/TCSETS, TIOCINQ).
type SerialSource struct {
	noopResetTarget
}

// OpenSerialSource always fails on this platform.
func OpenSerialSource(device string, _ int, _ tracedecode.Decoder) (*SerialSource, error) {
	return nil, tracerr.SourceError(fmt.Sprintf("open serial device %s", device),
		fmt.Errorf("serial sources are not implemented on this platform"))
}

// Next implements Source.
func (s *SerialSource) Next() (tracemodel.TimestampedTracePackets, error) {
	return tracemodel.TimestampedTracePackets{}, fmt.Errorf("serial sources are not implemented on this platform")
}

// AvailBuffer implements Source.
func (s *SerialSource) AvailBuffer() BufferStatus {
	return UnknownBuffer()
}

// Describe implements Source.
func (s *SerialSource) Describe() string {
	return "serial(unsupported)"
}

// Close implements Source.
func (s *SerialSource) Close() error {
	return nil
}
