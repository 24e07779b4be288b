package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tracescope/tracescope/pkg/buildwrap"
	"github.com/tracescope/tracescope/pkg/enrich"
	"github.com/tracescope/tracescope/pkg/observability"
	"github.com/tracescope/tracescope/pkg/orchestrate"
	"github.com/tracescope/tracescope/pkg/sink"
	"github.com/tracescope/tracescope/pkg/source"
	"github.com/tracescope/tracescope/pkg/tracedecode"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// replayOptions holds replay's flags, mirroring ReplayOptions in
// original_source's cargo-rtic-scope/src/main.rs.
type replayOptions struct {
	path       string
	list       bool
	traceDir   string
	traceFile  string
	rawFile    string
	comment    string
	frontends  []string
	debugTrace bool

	manifest manifestOverrides
}

// NewReplayCommand builds the replay subcommand, supporting the four modes
// the original tool did: listing recorded traces, replaying one by
// trace-dir index, replaying an explicit --trace-file, and replaying a
// --raw-file with freshly recovered task maps.
func NewReplayCommand() *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay [index]",
		Short: "List or replay a previously recorded trace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var index string
			if len(args) > 0 {
				index = args[0]
			}

			return runReplay(cmd, opts, index)
		},
	}

	cmd.Flags().BoolVarP(&opts.list, "list", "l", false, "List recorded trace files instead of replaying one")
	cmd.Flags().StringVar(&opts.traceDir, "trace-dir", "", "Directory recorded trace files are read from (default: <target>/tracescope-traces)")
	cmd.Flags().StringVar(&opts.traceFile, "trace-file", "", "Replay this specific recorded trace file")
	cmd.Flags().StringVar(&opts.rawFile, "raw-file", "", "Replay this raw ITM byte stream, recovering task maps from --path")
	cmd.Flags().StringVarP(&opts.comment, "comment", "c", "", "Comment recorded against a --raw-file replay")
	cmd.Flags().StringArrayVar(&opts.frontends, "frontend", nil, "Consumer program (with args) to forward the replayed stream to; may repeat")
	cmd.Flags().BoolVar(&opts.debugTrace, "debug-trace", false, "Enable 100% trace sampling for debugging")
	cmd.Flags().StringVar(&opts.path, "path", ".", "Path to the traced application's package, for --raw-file map recovery")

	cmd.Flags().StringVar(&opts.manifest.pacName, "pac-name", "", "Name of the PAC used in the traced application")
	cmd.Flags().StringVar(&opts.manifest.pacVersion, "pac-version", "", "Version of the PAC used in the traced application")
	cmd.Flags().StringSliceVar(&opts.manifest.pacFeatures, "pac-features", nil, "Features of the PAC used in the traced application")
	cmd.Flags().StringVar(&opts.manifest.interruptPath, "pac-interrupt-path", "", "Path to the PAC's Interrupt enum")
	cmd.Flags().Uint32Var(&opts.manifest.tpiuFreq, "tpiu-freq", 0, "Speed in Hz of the TPIU trace clock")
	cmd.Flags().Uint32Var(&opts.manifest.tpiuBaud, "tpiu-baud", 0, "Baud rate of the TPIU trace output")
	cmd.Flags().UintVar(&opts.manifest.dwtEnterID, "dwt-enter-id", 0, "DWT comparator ID marking software task entry")
	cmd.Flags().UintVar(&opts.manifest.dwtExitID, "dwt-exit-id", 0, "DWT comparator ID marking software task exit")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *replayOptions, index string) error {
	if opts.list {
		return listTraceFiles(cmd, opts)
	}

	providers, err := initObservability(opts.debugTrace)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	ctx := cmd.Context()

	defer func() {
		if shutdownErr := providers.Shutdown(ctx); shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	frontendSinks, cleanupFrontends, err := spawnFrontends(ctx, opts.frontends, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	defer cleanupFrontends()

	metrics, err := observability.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create pipeline metrics: %w", err)
	}

	switch {
	case opts.rawFile != "":
		return replayRawFile(ctx, cmd, opts, providers, metrics, frontendSinks)
	case opts.traceFile != "":
		return replayRecordedFile(ctx, opts.traceFile, providers, metrics, frontendSinks)
	case index != "":
		wrapper := buildwrap.NewWrapper(cmd.ErrOrStderr())

		dir, err := traceDirForListing(ctx, wrapper, opts)
		if err != nil {
			return err
		}

		path, err := traceFileByIndex(dir, index)
		if err != nil {
			return err
		}

		return replayRecordedFile(ctx, path, providers, metrics, frontendSinks)
	default:
		return tracerr.RecoveryError("replay requires one of --list, --trace-file, --raw-file, or a numeric index", nil)
	}
}

// listTraceFiles implements --list: enumerate the trace directory's
// recorded files, printing each one's index, path, and comment, the way
// find_trace_files' consumers did.
func listTraceFiles(cmd *cobra.Command, opts *replayOptions) error {
	wrapper := buildwrap.NewWrapper(cmd.ErrOrStderr())

	dir, err := traceDirForListing(cmd.Context(), wrapper, opts)
	if err != nil {
		return err
	}

	paths, err := findTraceFiles(dir)
	if err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(cmd.OutOrStdout())
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "Path", "Program", "Hardware", "Software", "Comment"})

	for i, path := range paths {
		src, err := source.OpenFileSource(path)
		if err != nil {
			tbl.AppendRow(table.Row{i, path, "", "", "", fmt.Sprintf("unreadable: %v", err)})

			continue
		}

		meta := src.Metadata()
		_ = src.Close()

		tbl.AppendRow(table.Row{i, path, meta.ProgramName, meta.HardwareTaskCount(), meta.SoftwareTaskCount(), meta.Comment})
	}

	tbl.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d trace(s)", len(paths))})
	tbl.Render()

	return nil
}

func traceDirForListing(ctx context.Context, wrapper *buildwrap.Wrapper, opts *replayOptions) (string, error) {
	if opts.traceDir != "" {
		return opts.traceDir, nil
	}

	meta, err := wrapper.Metadata(ctx, opts.path)
	if err != nil {
		return "", err
	}

	return resolveTraceDir("", meta.TargetDirectory), nil
}

// traceFileByIndex resolves a positional numeric index into a sorted
// listing of dir's trace files.
func traceFileByIndex(dir, index string) (string, error) {
	n, err := strconv.Atoi(index)
	if err != nil {
		return "", tracerr.RecoveryError(fmt.Sprintf("invalid trace index %q", index), err)
	}

	paths, err := findTraceFiles(dir)
	if err != nil {
		return "", err
	}

	if n < 0 || n >= len(paths) {
		return "", tracerr.RecoveryError(fmt.Sprintf("trace index %d out of range (%d files in %s)", n, len(paths), dir), nil)
	}

	return paths[n], nil
}

// replayRecordedFile opens a previously recorded .trace file and replays
// it through the task maps and comment embedded in its own header, the way
// original_source's replay() does for --trace-file and index-based replay.
func replayRecordedFile(
	ctx context.Context, path string, providers observability.Providers,
	metrics *observability.PipelineMetrics, frontendSinks []sink.Sink,
) error {
	src, err := source.OpenFileSource(path)
	if err != nil {
		return err
	}

	defer src.Close()

	meta := src.Metadata()

	return orchestrate.Run(ctx, orchestrate.Options{
		Action:        "replay",
		ProgramName:   meta.ProgramName,
		Source:        src,
		Sinks:         frontendSinks,
		Maps:          enrich.Maps{Hardware: meta.Hardware, Software: meta.Software},
		ResetWallTime: meta.ResetWallTime,
		TPIUFreq:      meta.TPIUFreq,
		Comment:       meta.Comment,
		Logger:        providers.Logger,
		Metrics:       metrics,
	})
}

// replayRawFile implements --raw-file: recover fresh task maps from --path
// the way trace() does, then decode the raw ITM byte stream against them.
func replayRawFile(
	ctx context.Context, cmd *cobra.Command, opts *replayOptions, providers observability.Providers,
	metrics *observability.PipelineMetrics, frontendSinks []sink.Sink,
) error {
	wrapper := buildwrap.NewWrapper(cmd.ErrOrStderr())

	recovered, manifest, err := recoverMaps(ctx, wrapper, opts.path, opts.manifest)
	if err != nil {
		return err
	}

	decoder := tracedecode.NewITMDecoder()

	src, err := source.OpenRawFileSource(opts.rawFile, decoder)
	if err != nil {
		return err
	}

	defer src.Close()

	return orchestrate.Run(ctx, orchestrate.Options{
		Action:        "replay",
		ProgramName:   recovered.artifact.TargetName,
		Source:        src,
		Sinks:         frontendSinks,
		Maps:          enrich.Maps{Hardware: recovered.hardware, Software: recovered.software},
		ResetWallTime: time.Now(),
		TPIUFreq:      manifest.TPIUFreq,
		Comment:       opts.comment,
		Logger:        providers.Logger,
		Metrics:       metrics,
	})
}
