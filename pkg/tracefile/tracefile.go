// Package tracefile implements the on-disk trace record stream: a
// TraceMetadata header followed by any number of TimestampedTracePackets
// records, each framed with a length prefix so a persist.Codec can encode
// and decode one self-contained record at a time, the way the codefang
// persister's Codec abstraction serializes state, generalized here from a
// one-shot Save/Load call into a repeated, append-only stream.
package tracefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tracescope/tracescope/pkg/persist"
	"github.com/tracescope/tracescope/pkg/tracemodel"
)

// lengthPrefixSize is the width, in bytes, of each record's length prefix.
const lengthPrefixSize = 4

// Writer appends framed records to a trace file: one TraceMetadata header
// followed by any number of TimestampedTracePackets records.
type Writer struct {
	file      *os.File
	codec     persist.Codec
	wroteMeta bool
}

// Create opens path for writing, truncating any existing content.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path) //nolint:gosec // path is operator-controlled, not user input from a request
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}

	return &Writer{file: f, codec: persist.NewGobCodec()}, nil
}

// WriteMetadata writes the file's header record. Must be called exactly
// once, before any WritePackets call.
func (w *Writer) WriteMetadata(meta tracemodel.TraceMetadata) error {
	if w.wroteMeta {
		return fmt.Errorf("tracefile: metadata already written")
	}

	if err := writeFrame(w.file, w.codec, &meta); err != nil {
		return fmt.Errorf("encode trace metadata: %w", err)
	}

	w.wroteMeta = true

	return nil
}

// WritePackets appends one raw packet-group record.
func (w *Writer) WritePackets(packets tracemodel.TimestampedTracePackets) error {
	if !w.wroteMeta {
		return fmt.Errorf("tracefile: metadata must be written before packets")
	}

	if err := writeFrame(w.file, w.codec, &packets); err != nil {
		return fmt.Errorf("encode trace packets: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Reader streams records back out of a trace file written by Writer.
type Reader struct {
	file  *os.File
	codec persist.Codec
}

// Open opens path for replay.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	return &Reader{file: f, codec: persist.NewGobCodec()}, nil
}

// ReadMetadata reads the file's header record. Must be called exactly
// once, before any ReadPackets call.
func (r *Reader) ReadMetadata() (tracemodel.TraceMetadata, error) {
	var meta tracemodel.TraceMetadata

	if err := readFrame(r.file, r.codec, &meta); err != nil {
		return meta, fmt.Errorf("decode trace metadata: %w", err)
	}

	return meta, nil
}

// ReadPackets reads the next packet-group record, returning io.EOF when
// the file is exhausted.
func (r *Reader) ReadPackets() (tracemodel.TimestampedTracePackets, error) {
	var packets tracemodel.TimestampedTracePackets

	err := readFrame(r.file, r.codec, &packets)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return packets, io.EOF
		}

		return packets, fmt.Errorf("decode trace packets: %w", err)
	}

	return packets, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// writeFrame encodes state with codec into a buffer, then appends it to w
// as a length-prefixed record so readFrame can hand the decoder exactly
// one record's bytes regardless of the codec's own buffering.
func writeFrame(w io.Writer, codec persist.Codec, state any) error {
	var buf bytes.Buffer

	if err := codec.Encode(&buf, state); err != nil {
		return err
	}

	var prefix [lengthPrefixSize]byte

	binary.BigEndian.PutUint32(prefix[:], uint32(buf.Len())) //nolint:gosec // trace records fit in 4 GiB

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write record length: %w", err)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	return nil
}

// readFrame reads one writeFrame record from r and decodes it with codec.
// Returns io.EOF exactly when r is exhausted at a record boundary.
func readFrame(r io.Reader, codec persist.Codec, state any) error {
	var prefix [lengthPrefixSize]byte

	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}

		return fmt.Errorf("read record length: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])

	record := make([]byte, length)
	if _, err := io.ReadFull(r, record); err != nil {
		return fmt.Errorf("read record: %w", err)
	}

	return codec.Decode(bytes.NewReader(record), state)
}
