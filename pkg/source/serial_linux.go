//go:build linux

package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tracescope/tracescope/pkg/tracedecode"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// serialReadChunk is the read size used to feed bytes off the wire to a Decoder.
const serialReadChunk = 4096

// SerialSource reads raw instrumentation bytes off a USB-serial or UART
// device (typically a probe's SWO-over-UART bridge) and decodes them with
// an injected Decoder. The device is switched to raw mode — no echo, no
// canonicalization, no signal generation — the way a byte-oriented trace
// stream needs to be read, matching the corpus convention for direct
// POSIX tty control via golang.org/x/sys/unix rather than a higher-level
// serial-port package.
type SerialSource struct {
	noopResetTarget

	device  string
	file    *os.File
	decoder tracedecode.Decoder
}

// baudRate enumerates the termios speed constant an instrumentation UART
// is configured for.
var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

// OpenSerialSource opens device, switches it to raw mode at baud, and
// pairs it with decoder.
func OpenSerialSource(device string, baud int, decoder tracedecode.Decoder) (*SerialSource, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, tracerr.SourceError(fmt.Sprintf("open serial device %s", device),
			fmt.Errorf("unsupported baud rate %d", baud))
	}

	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, tracerr.SourceError(fmt.Sprintf("open serial device %s", device), err)
	}

	if err := setRawMode(int(f.Fd()), speed); err != nil {
		f.Close()

		return nil, tracerr.SourceError(fmt.Sprintf("configure raw mode on %s", device), err)
	}

	return &SerialSource{device: device, file: f, decoder: decoder}, nil
}

// setRawMode disables echo, canonical processing, and signal generation,
// and applies the requested baud rate, via TCGETS/TCSETS.
func setRawMode(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	t.Ispeed = speed
	t.Ospeed = speed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}

	return nil
}

// Next implements Source.
func (s *SerialSource) Next() (tracemodel.TimestampedTracePackets, error) {
	for {
		if group, ok := s.decoder.PullWithTimestamp(); ok {
			return *group, nil
		}

		buf := make([]byte, serialReadChunk)

		n, err := s.file.Read(buf)
		if n > 0 {
			s.decoder.Push(buf[:n])
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}

			return tracemodel.TimestampedTracePackets{}, tracerr.SourceError(fmt.Sprintf("read serial device %s", s.device), err)
		}
	}
}

// AvailBuffer implements Source, reporting the kernel's input-queue depth
// via TIOCINQ against an assumed 4096-byte receive buffer: ClassifyBuffer
// reports a warning once fewer than a quarter of it is free, that is,
// once more than 3072 bytes are queued.
func (s *SerialSource) AvailBuffer() BufferStatus {
	const assumedCapacity = 4096

	n, err := unix.IoctlGetInt(int(s.file.Fd()), unix.TIOCINQ)
	if err != nil {
		return UnknownBuffer()
	}

	return ClassifyBuffer(assumedCapacity-n, assumedCapacity)
}

// Describe implements Source.
func (s *SerialSource) Describe() string {
	return fmt.Sprintf("serial(%s)", s.device)
}

// Close implements Source.
func (s *SerialSource) Close() error {
	return s.file.Close()
}
