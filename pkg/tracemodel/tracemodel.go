// Package tracemodel defines the wire and in-memory data model shared by
// every stage of the trace pipeline: task identities, the hardware/software
// task maps produced once at startup, the packet and event sum types, and
// the metadata record that seeds a replay session.
package tracemodel

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"strings"
)

// ErrEmptyTaskIdentity is returned when a TaskIdentity would have zero segments.
var ErrEmptyTaskIdentity = errors.New("tracemodel: task identity has no segments")

// ErrEmptySegment is returned when a TaskIdentity segment is the empty string.
var ErrEmptySegment = errors.New("tracemodel: task identity segment is empty")

// TaskIdentity is a non-empty ordered sequence of identifier segments,
// e.g. ["app", "blink"], rendered by joining with "::". Immutable after
// construction.
type TaskIdentity struct {
	segments []string
}

// NewTaskIdentity builds a TaskIdentity from one or more non-empty segments.
func NewTaskIdentity(segments ...string) (TaskIdentity, error) {
	if len(segments) == 0 {
		return TaskIdentity{}, ErrEmptyTaskIdentity
	}

	for _, s := range segments {
		if s == "" {
			return TaskIdentity{}, ErrEmptySegment
		}
	}

	cloned := make([]string, len(segments))
	copy(cloned, segments)

	return TaskIdentity{segments: cloned}, nil
}

// Segments returns a copy of the identity's path segments.
func (t TaskIdentity) Segments() []string {
	cloned := make([]string, len(t.segments))
	copy(cloned, t.segments)

	return cloned
}

// String renders the identity by joining its segments with "::".
func (t TaskIdentity) String() string {
	return strings.Join(t.segments, "::")
}

// IsZero reports whether t is the zero value (no segments, never constructed).
func (t TaskIdentity) IsZero() bool {
	return len(t.segments) == 0
}

// GobEncode implements gob.GobEncoder. TaskIdentity's only field is
// unexported, so it must serialize itself explicitly or gob would encode
// it as an empty struct and silently drop the segments.
func (t TaskIdentity) GobEncode() ([]byte, error) {
	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(t.segments); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (t *TaskIdentity) GobDecode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&t.segments)
}

// MarshalJSON implements json.Marshaler, encoding the identity as its
// segment list (the same reason GobEncode exists: the field is unexported).
func (t TaskIdentity) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.segments)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TaskIdentity) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &t.segments)
}

// CoreException enumerates the fixed architectural exceptions of the
// target's exception table.
type CoreException int

// The recognized core exceptions, matching the fixed table in spec §4.4.
const (
	NMI CoreException = iota
	HardFault
	MemManage
	BusFault
	UsageFault
	SVCall
	DebugMonitor
	PendSV
	SysTick
	NonMaskableInt
	SecureFault
)

var coreExceptionNames = map[CoreException]string{
	NMI:            "NMI",
	HardFault:      "HardFault",
	MemManage:      "MemManage",
	BusFault:       "BusFault",
	UsageFault:     "UsageFault",
	SVCall:         "SVCall",
	DebugMonitor:   "DebugMonitor",
	PendSV:         "PendSV",
	SysTick:        "SysTick",
	NonMaskableInt: "NonMaskableInt",
	SecureFault:    "SecureFault",
}

// String returns the exception's canonical name.
func (c CoreException) String() string {
	if name, ok := coreExceptionNames[c]; ok {
		return name
	}

	return "UnknownException"
}

// CoreExceptionByName looks up a CoreException by its canonical name,
// as it would appear in a `#[task(binds = X)]` declaration.
func CoreExceptionByName(name string) (CoreException, bool) {
	for exc, n := range coreExceptionNames {
		if n == name {
			return exc, true
		}
	}

	return 0, false
}

// InterruptSourceKind discriminates the two InterruptSource variants.
type InterruptSourceKind int

const (
	// SourceCoreException identifies an architectural exception.
	SourceCoreException InterruptSourceKind = iota
	// SourceDeviceInterrupt identifies a device-specific interrupt number.
	SourceDeviceInterrupt
)

// InterruptSource is the sum type `CoreException{…} | DeviceInterrupt{number}`
// used as the key space for the hardware task map. It is comparable and may
// be used directly as a map key or set element.
type InterruptSource struct {
	Kind   InterruptSourceKind
	Core   CoreException
	Device uint16
}

// CoreExceptionSource builds an InterruptSource wrapping a core exception.
func CoreExceptionSource(c CoreException) InterruptSource {
	return InterruptSource{Kind: SourceCoreException, Core: c}
}

// DeviceInterruptSource builds an InterruptSource wrapping a device interrupt number.
func DeviceInterruptSource(n uint16) InterruptSource {
	return InterruptSource{Kind: SourceDeviceInterrupt, Device: n}
}

// String renders the source for diagnostics.
func (s InterruptSource) String() string {
	if s.Kind == SourceCoreException {
		return s.Core.String()
	}

	return "DeviceInterrupt(" + itoa(uint64(s.Device)) + ")"
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte

	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	return string(buf[i:])
}

// TaskAction distinguishes an ExceptionTrace/DataTraceValue entry, exit, or
// (exception-only) return event.
type TaskAction int

// The recognized task actions.
const (
	ActionEntered TaskAction = iota
	ActionExited
	ActionReturned
)

func (a TaskAction) String() string {
	switch a {
	case ActionEntered:
		return "Entered"
	case ActionExited:
		return "Exited"
	case ActionReturned:
		return "Returned"
	default:
		return "Unknown"
	}
}

// HardwareTaskMap maps an InterruptSource to the task it identifies.
// Populated once at startup by symbol recovery; read-only thereafter.
type HardwareTaskMap map[InterruptSource]TaskIdentity

// SoftwareTaskMap records dispatcher sources to exclude from hardware
// lookups, the fixed comparator→action map, and the numeric task-ID→name
// map assigned by walking the application source. Populated once at
// startup; read-only thereafter.
type SoftwareTaskMap struct {
	Dispatchers map[InterruptSource]struct{}
	Comparators map[uint8]TaskAction
	Tasks       map[uint8]TaskIdentity
}

// NewSoftwareTaskMap returns an empty, ready-to-populate SoftwareTaskMap.
func NewSoftwareTaskMap() SoftwareTaskMap {
	return SoftwareTaskMap{
		Dispatchers: make(map[InterruptSource]struct{}),
		Comparators: make(map[uint8]TaskAction),
		Tasks:       make(map[uint8]TaskIdentity),
	}
}

// IsDispatcher reports whether source is a registered software-task dispatcher.
func (m SoftwareTaskMap) IsDispatcher(source InterruptSource) bool {
	_, ok := m.Dispatchers[source]

	return ok
}
