// Package source implements the Source contract: a producer of decoded,
// timestamped packet groups, replayed from a trace file or decoded live
// from a byte stream (raw file, serial device, or debug probe).
package source

import "github.com/tracescope/tracescope/pkg/tracemodel"

// BufferStatusKind discriminates the BufferStatus sum type.
type BufferStatusKind int

// The recognized buffer-status variants.
const (
	StatusAvail BufferStatusKind = iota
	StatusAvailWarn
	StatusUnknown
	StatusNotApplicable
)

// BufferStatus reports how much headroom remains in a source's read
// buffer, so the orchestrator can warn before data is dropped.
type BufferStatus struct {
	Kind  BufferStatusKind
	Avail int
	Total int
}

// Avail reports n bytes available with no warning threshold crossed.
func Avail(n int) BufferStatus { return BufferStatus{Kind: StatusAvail, Avail: n} }

// AvailWarn reports n of total bytes available, with less than a quarter
// of total remaining.
func AvailWarn(n, total int) BufferStatus {
	return BufferStatus{Kind: StatusAvailWarn, Avail: n, Total: total}
}

// UnknownBuffer reports that availability could not be determined.
func UnknownBuffer() BufferStatus { return BufferStatus{Kind: StatusUnknown} }

// NotApplicable reports that the source has no bounded buffer (e.g. replay
// from a file).
func NotApplicable() BufferStatus { return BufferStatus{Kind: StatusNotApplicable} }

// warnThresholdFraction is the "<1/4 remains" cutoff between Avail and
// AvailWarn.
const warnThresholdFraction = 4

// ClassifyBuffer builds the Avail/AvailWarn variant for n of total bytes
// available, applying the warn-below-one-quarter rule.
func ClassifyBuffer(n, total int) BufferStatus {
	if total > 0 && n*warnThresholdFraction < total {
		return AvailWarn(n, total)
	}

	return Avail(n)
}

// Source is a finite or infinite iterator of decoded, timestamped packet
// groups.
type Source interface {
	// Next returns the next packet group, or io.EOF on exhaustion.
	Next() (tracemodel.TimestampedTracePackets, error)

	// ResetTarget asserts reset on the target device. Default no-op for
	// variants with no reset line.
	ResetTarget(halt bool) error

	// AvailBuffer reports read-buffer headroom.
	AvailBuffer() BufferStatus

	// Describe returns a human-readable identifier for diagnostics.
	Describe() string

	// Close releases the source's resources.
	Close() error
}

// noopResetTarget is embedded by variants with no reset line of their own.
type noopResetTarget struct{}

func (noopResetTarget) ResetTarget(bool) error { return nil }
