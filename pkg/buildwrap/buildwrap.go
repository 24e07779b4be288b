// Package buildwrap drives cargo as a subprocess, parsing its
// machine-readable JSON message stream the way a worker-process
// supervisor parses a child's framed stdout: lines are scanned on the
// calling goroutine, diagnostics forwarded verbatim, artifacts of the
// requested kind collected as they arrive and counted at the end.
package buildwrap

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"github.com/tracescope/tracescope/pkg/tracerr"
)

// ArtifactKind selects which cargo build-target kind the wrapper expects
// to find exactly one of.
type ArtifactKind string

// The recognized artifact kinds.
const (
	KindBin    ArtifactKind = "bin"
	KindCdylib ArtifactKind = "cdylib"
)

// Artifact is the single build product the wrapper resolves per invocation.
type Artifact struct {
	TargetName      string
	SourcePath      string
	ExecutablePath  string
	Kind            ArtifactKind
	OutputFilenames []string
}

// Options configures one Build invocation.
type Options struct {
	// WorkDir is the subprocess's current directory.
	WorkDir string

	// ManifestPath, when set, is passed explicitly as --manifest-path.
	// Required when Kind is KindCdylib so the auxiliary library's build
	// does not inherit a local toolchain-configuration file from the
	// target application's tree (spec §4.1).
	ManifestPath string

	// TargetDir, when set, is passed as --target-dir so repeated builds
	// reuse one canonicalized target directory.
	TargetDir string

	// Kind is the artifact kind being requested.
	Kind ArtifactKind

	// Flags are additional opaque build flags appended verbatim.
	Flags []string
}

// Wrapper drives cargo build/metadata subprocesses.
type Wrapper struct {
	// Diagnostics receives rendered compiler diagnostics and raw stderr,
	// forwarded verbatim as they arrive.
	Diagnostics io.Writer
}

// NewWrapper returns a Wrapper that forwards diagnostics to diagnostics.
func NewWrapper(diagnostics io.Writer) *Wrapper {
	return &Wrapper{Diagnostics: diagnostics}
}

// cargoMessage is the subset of cargo's --message-format=json schema the
// wrapper interprets. Unrecognized reasons are ignored.
type cargoMessage struct {
	Reason   string `json:"reason"`
	Target   struct {
		Name    string   `json:"name"`
		Kind    []string `json:"kind"`
		SrcPath string   `json:"src_path"`
	} `json:"target"`
	Filenames  []string `json:"filenames"`
	Executable *string  `json:"executable"`
	Message    struct {
		Rendered string `json:"rendered"`
	} `json:"message"`
}

// Build canonicalizes opts.WorkDir, runs `cargo build
// --message-format=json-diagnostic-rendered-ansi`, and returns the single
// artifact of the requested kind. Zero or more than one such artifact is
// an error.
func (w *Wrapper) Build(ctx context.Context, opts Options) (*Artifact, error) {
	absWorkDir, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return nil, tracerr.BuildError("canonicalize work directory", err)
	}

	args := []string{"build", "--message-format=json-diagnostic-rendered-ansi"}

	if opts.ManifestPath != "" {
		args = append(args, "--manifest-path", opts.ManifestPath)
	}

	if opts.TargetDir != "" {
		args = append(args, "--target-dir", opts.TargetDir)
	}

	args = append(args, opts.Flags...)

	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = absWorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, tracerr.BuildError("attach stdout pipe", err)
	}

	cmd.Stderr = w.Diagnostics

	if startErr := cmd.Start(); startErr != nil {
		return nil, tracerr.BuildError("spawn cargo build", startErr)
	}

	artifacts, readErr := w.consumeMessages(stdout, opts.Kind)

	waitErr := cmd.Wait()

	if readErr != nil {
		return nil, tracerr.BuildError("read cargo build output", readErr)
	}

	if waitErr != nil {
		return nil, tracerr.BuildError(
			fmt.Sprintf("cargo build failed (flags %v)", opts.Flags), waitErr)
	}

	switch len(artifacts) {
	case 0:
		return nil, tracerr.BuildError(
			fmt.Sprintf("no %s artifact produced (flags %v)", opts.Kind, opts.Flags), nil)
	case 1:
		return &artifacts[0], nil
	default:
		return nil, tracerr.BuildError(
			fmt.Sprintf("multiple %s artifacts produced (flags %v)", opts.Kind, opts.Flags), nil)
	}
}

func (w *Wrapper) consumeMessages(stdout io.Reader, kind ArtifactKind) ([]Artifact, error) {
	var artifacts []Artifact

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg cargoMessage

		if err := json.Unmarshal(line, &msg); err != nil {
			continue // non-JSON line; cargo occasionally emits plain progress text
		}

		switch msg.Reason {
		case "compiler-message":
			if msg.Message.Rendered != "" {
				fmt.Fprint(w.Diagnostics, msg.Message.Rendered)
			}
		case "compiler-artifact":
			if !hasKind(msg.Target.Kind, string(kind)) {
				continue
			}

			artifacts = append(artifacts, Artifact{
				TargetName:      msg.Target.Name,
				SourcePath:      msg.Target.SrcPath,
				ExecutablePath:  derefOr(msg.Executable, ""),
				Kind:            kind,
				OutputFilenames: msg.Filenames,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return artifacts, nil
}

func hasKind(kinds []string, want string) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}

	return false
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}

	return *s
}
