package sink

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// SocketSink forwards one newline-delimited JSON EventChunk per Drain
// over a connected socket (typically a Unix domain socket to a
// subprocess analyzer). json.Encoder.Encode already terminates each
// value with "\n", which is exactly the framing streaming consumers need.
type SocketSink struct {
	name string
	conn net.Conn
	enc  *json.Encoder
}

// NewSocketSink wraps conn, describing itself as name in diagnostics.
func NewSocketSink(name string, conn net.Conn) *SocketSink {
	return &SocketSink{name: name, conn: conn, enc: json.NewEncoder(conn)}
}

// DrainMetadata implements Sink. SocketSink forwards only live enriched
// events; there is no persisted header record to write.
func (s *SocketSink) DrainMetadata(tracemodel.TraceMetadata) error {
	return nil
}

// Drain implements Sink.
func (s *SocketSink) Drain(_ tracemodel.TimestampedTracePackets, enriched tracemodel.EventChunk) error {
	if err := s.enc.Encode(enriched); err != nil {
		return tracerr.SinkError(fmt.Sprintf("write event chunk to %s", s.name), err)
	}

	return nil
}

// Describe implements Sink.
func (s *SocketSink) Describe() string {
	return fmt.Sprintf("socket(%s)", s.name)
}

// Close implements Sink.
func (s *SocketSink) Close() error {
	return s.conn.Close()
}
