// Package orchestrate runs the core pipeline loop: a producer goroutine
// pulls decoded packet groups off a Source, the goroutine that called Run
// consumes them, enriching each group against the fixed task maps and
// fanning it out to every Sink,
// and a ticker periodically logs cumulative throughput. The shape —
// buffered channel producer, select-based consumer, sticky broken-sink
// bookkeeping — is grounded on pkg/framework's CommitStreamer/RunStreaming
// pair, generalized from commit batches to trace packet groups.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tracescope/tracescope/pkg/enrich"
	"github.com/tracescope/tracescope/pkg/observability"
	"github.com/tracescope/tracescope/pkg/sink"
	"github.com/tracescope/tracescope/pkg/source"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// channelDepth is the producer→consumer buffer, matching the small
// lookahead CommitStreamer defaults to.
const channelDepth = 8

// defaultTickInterval is the cadence of the cumulative-throughput log line.
const defaultTickInterval = 100 * time.Millisecond

// ErrAllSinksBroken is returned when every sink has failed and the pipeline
// has nothing left to drain into.
var ErrAllSinksBroken = errors.New("orchestrate: all sinks broken")

// Options configures a single pipeline run.
type Options struct {
	Action      string // "trace" or "replay", used as the log line's verb.
	ProgramName string
	Source      source.Source
	Sinks       []sink.Sink
	Maps        enrich.Maps

	ResetWallTime time.Time
	TPIUFreq      uint32
	Comment       string

	Logger       *slog.Logger
	Metrics      *observability.PipelineMetrics
	TickInterval time.Duration
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (o Options) tickInterval() time.Duration {
	if o.TickInterval > 0 {
		return o.TickInterval
	}

	return defaultTickInterval
}

// sinkState tracks one sink's sticky broken flag. Once broken, a sink is
// excluded from every subsequent Drain; it is never retried.
type sinkState struct {
	sink.Sink

	broken bool
}

// stats accumulates cumulative pipeline counters across the run, for the
// periodic log line.
type stats struct {
	packets     int64
	malformed   int64
	nonMappable int64
	started     time.Time
}

func (s stats) packetsPerSecond() float64 {
	elapsed := time.Since(s.started).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return float64(s.packets) / elapsed
}

// Run drives the pipeline until the source is exhausted, the context is
// canceled, or every sink breaks. It returns ErrAllSinksBroken in the last
// case and nil on a clean source exhaustion (io.EOF from the Source).
func Run(ctx context.Context, opts Options) error {
	logger := opts.logger()

	states := make([]*sinkState, 0, len(opts.Sinks))
	for _, s := range opts.Sinks {
		states = append(states, &sinkState{Sink: s})
	}

	meta := tracemodel.TraceMetadata{
		ProgramName:   opts.ProgramName,
		Hardware:      opts.Maps.Hardware,
		Software:      opts.Maps.Software,
		ResetWallTime: opts.ResetWallTime,
		TPIUFreq:      opts.TPIUFreq,
		Comment:       opts.Comment,
	}

	for _, st := range states {
		if err := st.DrainMetadata(meta); err != nil {
			logger.WarnContext(ctx, "sink rejected metadata, marking broken", "sink", st.Describe(), "error", err)
			st.broken = true
		}
	}

	groups := make(chan tracemodel.TimestampedTracePackets, channelDepth)
	producerErr := make(chan error, 1)

	go produce(ctx, opts.Source, groups, producerErr, logger)

	return consume(ctx, opts, states, groups, producerErr, logger)
}

// produce pulls groups off src until it is exhausted, the context is
// canceled, or a non-EOF error occurs, publishing each group onto out.
func produce(ctx context.Context, src source.Source, out chan<- tracemodel.TimestampedTracePackets, errCh chan<- error, logger *slog.Logger) {
	defer close(out)

	for {
		if status := src.AvailBuffer(); status.Kind == source.StatusAvailWarn {
			logger.WarnContext(ctx, "source buffer nearly full",
				"source", src.Describe(), "avail", status.Avail, "total", status.Total)
		}

		group, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}

			errCh <- err

			return
		}

		select {
		case out <- group:
		case <-ctx.Done():
			return
		}
	}
}

// consume is the pipeline's main loop: enrich each group, fan it out to
// every live sink, and periodically log cumulative throughput.
func consume(
	ctx context.Context,
	opts Options,
	states []*sinkState,
	groups <-chan tracemodel.TimestampedTracePackets,
	producerErr <-chan error,
	logger *slog.Logger,
) error {
	st := stats{started: time.Now()}

	ticker := time.NewTicker(opts.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case group, ok := <-groups:
			if !ok {
				logTick(ctx, logger, opts, st, states)

				return nil
			}

			enriched := enrich.Enrich(group, opts.Maps, opts.ResetWallTime, opts.TPIUFreq)

			st.packets += int64(len(group.Packets))
			st.malformed += int64(len(group.Malformed))
			st.nonMappable += countNonMappable(enriched)

			if opts.Metrics != nil {
				opts.Metrics.RecordChunk(ctx, int64(len(group.Packets)), int64(len(group.Malformed)), countNonMappable(enriched))
			}

			if err := fanOut(ctx, opts, states, group, enriched, logger); err != nil {
				return err
			}

		case err := <-producerErr:
			return tracerr.SourceError("read from source", err)

		case <-ticker.C:
			logTick(ctx, logger, opts, st, states)

		case <-ctx.Done():
			return nil
		}
	}
}

// fanOut drains one group into every live sink, marking sinks broken on
// error and failing the run once none remain.
func fanOut(
	ctx context.Context,
	opts Options,
	states []*sinkState,
	raw tracemodel.TimestampedTracePackets,
	enriched tracemodel.EventChunk,
	logger *slog.Logger,
) error {
	operational := 0

	for _, st := range states {
		if st.broken {
			continue
		}

		if err := st.Drain(raw, enriched); err != nil {
			logger.WarnContext(ctx, "sink failed, marking broken", "sink", st.Describe(), "error", err)

			st.broken = true

			if opts.Metrics != nil {
				opts.Metrics.SetSinksOperational(ctx, -1, st.Describe())
			}

			continue
		}

		operational++
	}

	if operational == 0 && len(states) > 0 {
		return tracerr.SinkError("fan out to sinks", ErrAllSinksBroken)
	}

	return nil
}

func countNonMappable(chunk tracemodel.EventChunk) int64 {
	var n int64

	for _, e := range chunk.Events {
		if e.Kind == tracemodel.EventUnmappable {
			n++
		}
	}

	return n
}

// logTick writes the periodic cumulative-throughput line: `<action>:
// <program>: N packets in T (~R packets/s; M malformed, U non-mappable);
// k/n sinks operational`.
func logTick(ctx context.Context, logger *slog.Logger, opts Options, st stats, states []*sinkState) {
	operational := 0

	for _, s := range states {
		if !s.broken {
			operational++
		}
	}

	logger.InfoContext(ctx, fmt.Sprintf(
		"%s: %s: %s packets in %s (~%s packets/s; %s malformed, %s non-mappable); %d/%d sinks operational",
		opts.Action, opts.ProgramName, humanize.Comma(st.packets), time.Since(st.started).Round(time.Millisecond),
		humanize.Comma(int64(st.packetsPerSecond())), humanize.Comma(st.malformed), humanize.Comma(st.nonMappable),
		operational, len(states),
	))
}
