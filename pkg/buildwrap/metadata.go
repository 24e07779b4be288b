package buildwrap

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"

	"github.com/tracescope/tracescope/pkg/tracerr"
)

// Package describes one workspace member as reported by cargo metadata.
type Package struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	ManifestPath string `json:"manifest_path"`
}

// Metadata is the subset of `cargo metadata --format-version=1` the
// wrapper needs: where build artifacts land, and which manifest belongs
// to which package.
type Metadata struct {
	TargetDirectory string    `json:"target_directory"`
	WorkspaceRoot   string    `json:"workspace_root"`
	Packages        []Package `json:"packages"`
}

// Metadata runs `cargo metadata --format-version=1` in workDir and
// decodes its single-line JSON document.
func (w *Wrapper) Metadata(ctx context.Context, workDir string) (*Metadata, error) {
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, tracerr.BuildError("canonicalize work directory", err)
	}

	cmd := exec.CommandContext(ctx, "cargo", "metadata", "--format-version=1")
	cmd.Dir = absWorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, tracerr.BuildError("attach stdout pipe", err)
	}

	cmd.Stderr = w.Diagnostics

	var meta Metadata

	decodeErrCh := make(chan error, 1)

	go func() {
		decodeErrCh <- json.NewDecoder(stdout).Decode(&meta)
	}()

	if err := cmd.Start(); err != nil {
		return nil, tracerr.BuildError("spawn cargo metadata", err)
	}

	decodeErr := <-decodeErrCh
	waitErr := cmd.Wait()

	if waitErr != nil {
		return nil, tracerr.BuildError("cargo metadata failed", waitErr)
	}

	if decodeErr != nil {
		return nil, tracerr.BuildError("decode cargo metadata", decodeErr)
	}

	return &meta, nil
}

// PackageManifest returns the manifest path of the package named name.
func (m *Metadata) PackageManifest(name string) (string, bool) {
	for _, pkg := range m.Packages {
		if pkg.Name == name {
			return pkg.ManifestPath, true
		}
	}

	return "", false
}
