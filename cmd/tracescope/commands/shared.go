// Package commands implements CLI command handlers for tracescope.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tracescope/tracescope/internal/frontend"
	"github.com/tracescope/tracescope/pkg/astextract"
	"github.com/tracescope/tracescope/pkg/buildwrap"
	"github.com/tracescope/tracescope/pkg/config"
	"github.com/tracescope/tracescope/pkg/observability"
	"github.com/tracescope/tracescope/pkg/sink"
	"github.com/tracescope/tracescope/pkg/symresolve"
	"github.com/tracescope/tracescope/pkg/taskmap"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
	"github.com/tracescope/tracescope/pkg/version"
)

// defaultTraceDirName is the subdirectory of the target application's
// build cache where recorded traces are written by default, mirroring
// original_source's "rtic-traces" convention under the cargo target dir.
const defaultTraceDirName = "tracescope-traces"

// traceFileExt is the suffix find_trace_files-style listing filters on.
const traceFileExt = ".trace"

// recoveredMaps is the outcome of build + AST extraction + symbol
// resolution: the immutable task maps plus the binary that was built,
// needed by the caller to continue into flashing/tracing.
type recoveredMaps struct {
	artifact *buildwrap.Artifact
	hardware tracemodel.HardwareTaskMap
	software tracemodel.SoftwareTaskMap
}

// manifestOverrides are the pac-* / tpiu-* flags shared by trace and the
// raw-file replay path, mirroring ManifestOptions in original_source's
// cargo-rtic-scope/src/main.rs.
type manifestOverrides struct {
	pacName       string
	pacVersion    string
	pacFeatures   []string
	interruptPath string
	tpiuFreq      uint32
	tpiuBaud      uint32
	dwtEnterID    uint
	dwtExitID     uint
}

func (m manifestOverrides) toOverrides() config.Overrides {
	ov := config.Overrides{PacFeatures: m.pacFeatures}

	if m.interruptPath != "" {
		ov.InterruptPath = &m.interruptPath
	}

	if m.tpiuFreq != 0 {
		ov.TPIUFreq = &m.tpiuFreq
	}

	if m.tpiuBaud != 0 {
		ov.TPIUBaud = &m.tpiuBaud
	}

	if m.dwtEnterID != 0 {
		ov.DWTEnterID = &m.dwtEnterID
	}

	if m.dwtExitID != 0 {
		ov.DWTExitID = &m.dwtExitID
	}

	return ov
}

// recoverMaps drives build, cargo metadata, AST extraction, and symbol
// resolution to produce the immutable task maps for the package at
// workDir, the way original_source's trace()/manifest::ManifestProperties
// combination does.
func recoverMaps(
	ctx context.Context, wrapper *buildwrap.Wrapper, workDir string, ov manifestOverrides,
) (*recoveredMaps, *config.Manifest, error) {
	meta, err := wrapper.Metadata(ctx, workDir)
	if err != nil {
		return nil, nil, err
	}

	artifact, err := wrapper.Build(ctx, buildwrap.Options{WorkDir: workDir, TargetDir: meta.TargetDirectory, Kind: buildwrap.KindBin})
	if err != nil {
		return nil, nil, err
	}

	manifestPath, ok := meta.PackageManifest(artifact.TargetName)
	if !ok {
		manifestPath = filepath.Join(workDir, "Cargo.toml")
	}

	manifest, err := config.LoadManifest(manifestPath, ov.toOverrides())
	if err != nil {
		return nil, nil, err
	}

	decl, err := astextract.ExtractFile(artifact.SourcePath)
	if err != nil {
		return nil, nil, err
	}

	bindings, err := taskmap.WalkBindings(decl)
	if err != nil {
		return nil, nil, err
	}

	traced, err := taskmap.WalkTraced(decl)
	if err != nil {
		return nil, nil, err
	}

	dispatchers := astextract.ParseDispatchers(decl.Arguments)

	resolver := symresolve.NewResolver(wrapper)
	req := symresolve.Request{
		TargetDir:     meta.TargetDirectory,
		PACName:       manifest.PacName,
		PACVersion:    manifest.PacVersion,
		PACFeatures:   manifest.PacFeatures,
		InterruptPath: manifest.InterruptPath,
	}

	hardware, software, err := taskmap.Build(
		ctx, resolver, req, bindings, dispatchers, traced,
		uint8(manifest.DWTEnterID), uint8(manifest.DWTExitID), //nolint:gosec // comparator IDs are single bytes by construction
	)
	if err != nil {
		return nil, nil, err
	}

	return &recoveredMaps{artifact: artifact, hardware: hardware, software: software}, manifest, nil
}

// spawnFrontends spawns one Consumer per frontend command line (as
// produced by splitFrontend), returning their sinks and a cleanup
// closing every spawned process.
func spawnFrontends(ctx context.Context, frontends []string, diagnostics io.Writer) ([]sink.Sink, func(), error) {
	var (
		sinks     []sink.Sink
		consumers []*frontend.Consumer
	)

	cleanup := func() {
		for _, c := range consumers {
			_ = c.Close()
		}
	}

	for i, spec := range frontends {
		command, args := splitFrontend(spec)

		name := fmt.Sprintf("frontend-%d-%s", i, filepath.Base(command))

		consumer, err := frontend.Spawn(ctx, name, command, args, diagnostics)
		if err != nil {
			cleanup()

			return nil, func() {}, err
		}

		consumers = append(consumers, consumer)
		sinks = append(sinks, consumer.Sink())
	}

	return sinks, cleanup, nil
}

// splitFrontend splits a "--frontend" value's command and arguments on
// whitespace, the way original_source's frontend resolution tries a
// program name in turn.
func splitFrontend(spec string) (string, []string) {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return spec, nil
	}

	return fields[0], fields[1:]
}

// initObservability builds a Config the way the teacher's run command
// does: defaults plus env-sourced OTLP settings plus the binary version.
func initObservability(debugTrace bool) (observability.Providers, error) {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version.Version
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	cfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	cfg.DebugTrace = debugTrace

	return observability.Init(cfg)
}

// resolveTraceDir returns dir if non-empty, else targetDir/tracescope-traces.
func resolveTraceDir(dir, targetDir string) string {
	if dir != "" {
		return dir
	}

	return filepath.Join(targetDir, defaultTraceDirName)
}

// clearTraceDir removes every existing *.trace file from dir, matching
// --clear-traces' original_source semantics of pruning before a new
// recording begins. A missing directory is not an error.
func clearTraceDir(dir string) error {
	paths, err := findTraceFiles(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return err
	}

	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			return tracerr.IOError(fmt.Sprintf("remove trace file %s", path), err)
		}
	}

	return nil
}

// findTraceFiles lists dir's *.trace files in deterministic (sorted)
// order, mirroring find_trace_files' directory scan.
func findTraceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, tracerr.IOError(fmt.Sprintf("read trace directory %s", dir), err)
	}

	var paths []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), traceFileExt) {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(paths)

	return paths, nil
}
