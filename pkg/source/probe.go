package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/tracescope/tracescope/pkg/tracedecode"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// DebugProbe is the minimal collaborator contract a live hardware probe
// driver must satisfy. The actual probe protocol (e.g. CMSIS-DAP, ST-Link,
// J-Link) is out of scope; callers inject whatever driver they have, or a
// stub in tests.
type DebugProbe interface {
	// Reset asserts the target's reset line. If halt is true, the core is
	// halted immediately out of reset rather than released to run.
	Reset(halt bool) error

	// ConfigureSWO enables the SWO trace pin at baud, deriving it from a
	// coreClockHz reference.
	ConfigureSWO(coreClockHz, baud uint32) error

	// Read reads available trace bytes into buf, returning the count read.
	Read(buf []byte) (int, error)

	// Close releases the probe connection.
	Close() error
}

// probeReadChunk is the read size used to feed probe bytes to a Decoder.
const probeReadChunk = 4096

// ProbeSource reads trace bytes live off an attached debug probe and
// decodes them with an injected Decoder.
type ProbeSource struct {
	probe   DebugProbe
	decoder tracedecode.Decoder
	name    string
}

// NewProbeSource pairs probe with decoder. name identifies the probe in
// diagnostics (e.g. its serial number).
func NewProbeSource(name string, probe DebugProbe, decoder tracedecode.Decoder) *ProbeSource {
	return &ProbeSource{name: name, probe: probe, decoder: decoder}
}

// ResetTarget implements Source by forwarding to the probe.
func (s *ProbeSource) ResetTarget(halt bool) error {
	if err := s.probe.Reset(halt); err != nil {
		return tracerr.SourceError(fmt.Sprintf("reset target via probe %s", s.name), err)
	}

	return nil
}

// Next implements Source.
func (s *ProbeSource) Next() (tracemodel.TimestampedTracePackets, error) {
	for {
		if group, ok := s.decoder.PullWithTimestamp(); ok {
			return *group, nil
		}

		buf := make([]byte, probeReadChunk)

		n, err := s.probe.Read(buf)
		if n > 0 {
			s.decoder.Push(buf[:n])
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return tracemodel.TimestampedTracePackets{}, io.EOF
			}

			return tracemodel.TimestampedTracePackets{}, tracerr.SourceError(fmt.Sprintf("read probe %s", s.name), err)
		}
	}
}

// AvailBuffer implements Source. The probe's host-side buffer depth is not
// observable through the DebugProbe contract.
func (s *ProbeSource) AvailBuffer() BufferStatus {
	return UnknownBuffer()
}

// Describe implements Source.
func (s *ProbeSource) Describe() string {
	return fmt.Sprintf("probe(%s)", s.name)
}

// Close implements Source.
func (s *ProbeSource) Close() error {
	return s.probe.Close()
}
