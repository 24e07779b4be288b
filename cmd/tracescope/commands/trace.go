package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracescope/tracescope/pkg/buildwrap"
	"github.com/tracescope/tracescope/pkg/config"
	"github.com/tracescope/tracescope/pkg/enrich"
	"github.com/tracescope/tracescope/pkg/observability"
	"github.com/tracescope/tracescope/pkg/orchestrate"
	"github.com/tracescope/tracescope/pkg/sink"
	"github.com/tracescope/tracescope/pkg/source"
	"github.com/tracescope/tracescope/pkg/tracedecode"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// traceOptions holds trace's flags, mirroring TraceOptions in
// original_source's cargo-rtic-scope/src/main.rs.
type traceOptions struct {
	path        string
	serial      string
	baud        int
	traceDir    string
	comment     string
	resolveOnly bool
	clearTraces bool
	frontends   []string
	debugTrace  bool

	manifest manifestOverrides
}

// NewTraceCommand builds, recovers the task maps, opens the configured
// source, and streams enriched events to the file sink and any spawned
// frontends, per spec §6's "build, flash (external), open source,
// enrich, record, forward".
func NewTraceCommand() *cobra.Command {
	opts := &traceOptions{}

	cmd := &cobra.Command{
		Use:   "trace [path]",
		Short: "Recover task maps, trace a target, and record the stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.path = args[0]
			}

			return runTrace(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.serial, "serial", "", "Serial device to read the trace stream from, instead of a debug probe")
	cmd.Flags().IntVar(&opts.baud, "baud", 115200, "Baud rate for --serial")
	cmd.Flags().StringVar(&opts.traceDir, "trace-dir", "", "Output directory for recorded trace files (default: <target>/tracescope-traces)")
	cmd.Flags().StringVarP(&opts.comment, "comment", "c", "", "Arbitrary comment describing the trace")
	cmd.Flags().BoolVar(&opts.resolveOnly, "resolve-only", false, "Only resolve the translation maps; do not open a source or record")
	cmd.Flags().BoolVar(&opts.clearTraces, "clear-traces", false, "Remove previous trace files from --trace-dir first")
	cmd.Flags().StringArrayVar(&opts.frontends, "frontend", nil, "Consumer program (with args) to spawn and forward the enriched stream to; may repeat")
	cmd.Flags().BoolVar(&opts.debugTrace, "debug-trace", false, "Enable 100% trace sampling for debugging")

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

func runTrace(cmd *cobra.Command, opts *traceOptions) error {
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

	workDir := opts.path
	if workDir == "" {
		workDir = "."
	}

	wrapper := buildwrap.NewWrapper(cmd.ErrOrStderr())

	recovered, manifest, err := recoverMaps(ctx, wrapper, workDir, opts.manifest)
	if err != nil {
		return err
	}

	providers.Logger.InfoContext(ctx, "recovered task maps",
		"program", recovered.artifact.TargetName,
		"hardware_tasks", len(recovered.hardware),
		"software_tasks", len(recovered.software.Tasks))

	if opts.resolveOnly {
		fmt.Fprintf(cmd.OutOrStdout(), "hardware tasks: %d\nsoftware tasks: %d\n",
			len(recovered.hardware), len(recovered.software.Tasks))

		return nil
	}

	meta, err := wrapper.Metadata(ctx, workDir)
	if err != nil {
		return err
	}

	traceDir := resolveTraceDir(opts.traceDir, meta.TargetDirectory)

	if opts.clearTraces {
		if err := clearTraceDir(traceDir); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(traceDir, 0o755); err != nil { //nolint:gosec // trace directory is not privileged
		return tracerr.IOError(fmt.Sprintf("create trace directory %s", traceDir), err)
	}

	resetWallTime := time.Now()

	fileSink, err := sink.NewFileSink(ctx, traceDir, workDir, recovered.artifact.TargetName, resetWallTime)
	if err != nil {
		return err
	}

	sinks := []sink.Sink{fileSink}

	frontendSinks, cleanupFrontends, err := spawnFrontends(ctx, opts.frontends, cmd.ErrOrStderr())
	if err != nil {
		_ = fileSink.Close()

		return err
	}

	defer cleanupFrontends()

	sinks = append(sinks, frontendSinks...)

	traceSource, closeSource, err := openTraceSource(opts, manifest)
	if err != nil {
		_ = fileSink.Close()

		return err
	}

	defer closeSource()

	if err := traceSource.ResetTarget(false); err != nil {
		return tracerr.SourceError("reset target after recording started", err)
	}

	metrics, err := observability.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create pipeline metrics: %w", err)
	}

	return orchestrate.Run(ctx, orchestrate.Options{
		Action:        "trace",
		ProgramName:   recovered.artifact.TargetName,
		Source:        traceSource,
		Sinks:         sinks,
		Maps:          enrich.Maps{Hardware: recovered.hardware, Software: recovered.software},
		ResetWallTime: resetWallTime,
		TPIUFreq:      manifest.TPIUFreq,
		Comment:       opts.comment,
		Logger:        providers.Logger,
		Metrics:       metrics,
	})
}

// errNoProbeDriver is returned when trace is invoked without --serial: no
// debug-probe driver (SWO/ITM register access over CMSIS-DAP or similar) is
// wired into this build, since the probe's device configuration is an
// external collaborator this module does not implement.
var errNoProbeDriver = errors.New("no debug probe driver is available in this build; pass --serial to use a serial source instead")

// openTraceSource opens --serial if given; otherwise reports that no
// debug-probe driver is wired into this build (spec §1 treats the probe's
// device configuration as an external collaborator this module does not
// implement).
func openTraceSource(opts *traceOptions, manifest *config.Manifest) (source.Source, func(), error) {
	if opts.serial == "" {
		return nil, func() {}, tracerr.SourceError("open trace source", errNoProbeDriver)
	}

	decoder := tracedecode.NewITMDecoder()

	baud := opts.baud
	if baud == 0 {
		baud = int(manifest.TPIUBaud)
	}

	src, err := source.OpenSerialSource(opts.serial, baud, decoder)
	if err != nil {
		return nil, func() {}, err
	}

	return src, func() { _ = src.Close() }, nil
}
