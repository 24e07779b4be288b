// Package symresolve converts source-level interrupt names (e.g. "TIM2")
// into the numeric IRQ codes a target's peripheral-access crate assigns
// them at runtime. It materializes a throwaway cdylib that depends on
// that crate, builds it for the host, and calls into it — the same
// "reach for cgo when nothing pure-Go fits" posture the teacher repo
// takes in pkg/uast/cgo_helpers.go, generalized from reading tree-sitter's
// C struct layout to dynamically loading an arbitrary freshly built
// shared object.
package symresolve

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/tracescope/tracescope/pkg/buildwrap"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

//go:embed skeleton/Adhoc.toml.tmpl skeleton/src/lib.rs.tmpl
var skeletonFS embed.FS

// DeviceInterruptsOffset is added to every resolved IRQ number before it
// is stored as a DeviceInterrupt, per the ARMv7-M exception-table base.
const DeviceInterruptsOffset = 16

// symbolPrefix namespaces the generated extern functions so they cannot
// collide with the peripheral-access crate's own exported symbols.
const symbolPrefix = "tracescope_irq_"

// Request describes one batch of interrupt names to resolve against a
// single peripheral-access crate.
type Request struct {
	// TargetDir is the cargo target directory; the throwaway crate is
	// extracted to TargetDir/<PACName>-libadhoc.
	TargetDir string

	PACName       string
	PACVersion    string
	PACFeatures   []string
	InterruptPath string

	// Names are the source-level interrupt identifiers to resolve,
	// e.g. ["TIM2", "USART1"].
	Names []string
}

// Resolver builds and loads the throwaway resolution library.
type Resolver struct {
	build *buildwrap.Wrapper
}

// NewResolver returns a Resolver that drives build for its host builds.
func NewResolver(build *buildwrap.Wrapper) *Resolver {
	return &Resolver{build: build}
}

// Resolve returns each requested name's DeviceInterrupt source.
func (r *Resolver) Resolve(ctx context.Context, req Request) (map[string]tracemodel.InterruptSource, error) {
	libDir := filepath.Join(req.TargetDir, req.PACName+"-libadhoc")

	if err := extractSkeleton(libDir); err != nil {
		return nil, tracerr.Wrap(tracerr.Recovery, "extract symbol-resolution skeleton", err)
	}

	manifestPath, err := renderManifest(libDir, req)
	if err != nil {
		return nil, tracerr.Wrap(tracerr.Recovery, "render adhoc manifest", err)
	}

	if err := renderSource(libDir, req); err != nil {
		return nil, tracerr.Wrap(tracerr.Recovery, "render adhoc source stub", err)
	}

	artifact, err := r.build.Build(ctx, buildwrap.Options{
		WorkDir:      libDir,
		ManifestPath: manifestPath,
		TargetDir:    req.TargetDir,
		Kind:         buildwrap.KindCdylib,
	})
	if err != nil {
		return nil, tracerr.Wrap(tracerr.Recovery, "build symbol-resolution library", err)
	}

	return r.loadAndResolve(artifact, req.Names)
}

func (r *Resolver) loadAndResolve(artifact *buildwrap.Artifact, names []string) (map[string]tracemodel.InterruptSource, error) {
	libPath := artifact.ExecutablePath
	if libPath == "" && len(artifact.OutputFilenames) > 0 {
		libPath = artifact.OutputFilenames[0]
	}

	lib, err := openLibrary(libPath)
	if err != nil {
		return nil, tracerr.Wrap(tracerr.Recovery, fmt.Sprintf("load %s", libPath), err)
	}

	defer lib.Close()

	resolved := make(map[string]tracemodel.InterruptSource, len(names))

	for _, name := range names {
		number, err := lib.CallUint16(symbolPrefix + name)
		if err != nil {
			return nil, tracerr.Wrap(tracerr.Recovery, fmt.Sprintf("look up symbol for %s", name), err)
		}

		resolved[name] = tracemodel.DeviceInterruptSource(number + DeviceInterruptsOffset)
	}

	return resolved, nil
}

func extractSkeleton(destDir string) error {
	return fs.WalkDir(skeletonFS, "skeleton", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel("skeleton", path)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if rel == "." {
				return nil
			}

			return os.MkdirAll(filepath.Join(destDir, rel), 0o755) //nolint:gosec // throwaway build dir
		}

		content, readErr := skeletonFS.ReadFile(path)
		if readErr != nil {
			return readErr
		}

		dest := filepath.Join(destDir, rel)
		if mkdirErr := os.MkdirAll(filepath.Dir(dest), 0o755); mkdirErr != nil { //nolint:gosec
			return mkdirErr
		}

		return os.WriteFile(dest, content, 0o644) //nolint:gosec // throwaway build dir
	})
}

type manifestData struct {
	PACName     string
	PACVersion  string
	PACFeatures []string
	FeatureList string
}

func renderManifest(libDir string, req Request) (string, error) {
	tmpl, err := template.ParseFS(skeletonFS, "skeleton/Adhoc.toml.tmpl")
	if err != nil {
		return "", err
	}

	features := make([]string, len(req.PACFeatures))

	for i, f := range req.PACFeatures {
		features[i] = fmt.Sprintf("%q", f)
	}

	sort.Strings(features)

	var buf bytes.Buffer

	if err := tmpl.Execute(&buf, manifestData{
		PACName:     req.PACName,
		PACVersion:  req.PACVersion,
		PACFeatures: req.PACFeatures,
		FeatureList: strings.Join(features, ", "),
	}); err != nil {
		return "", err
	}

	dest := filepath.Join(libDir, "Adhoc.toml")

	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil { //nolint:gosec // throwaway build dir
		return "", err
	}

	return dest, nil
}

type sourceData struct {
	InterruptPath string
	Names         []string
	Prefix        string
}

func renderSource(libDir string, req Request) error {
	tmpl, err := template.ParseFS(skeletonFS, "skeleton/src/lib.rs.tmpl")
	if err != nil {
		return err
	}

	var buf bytes.Buffer

	if err := tmpl.Execute(&buf, sourceData{
		InterruptPath: req.InterruptPath,
		Names:         req.Names,
		Prefix:        symbolPrefix,
	}); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(libDir, "src", "lib.rs"), buf.Bytes(), 0o644) //nolint:gosec // throwaway build dir
}
