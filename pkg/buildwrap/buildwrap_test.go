package buildwrap_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracescope/tracescope/pkg/buildwrap"
)

// fakeCargo installs a shell script named "cargo" on PATH that prints
// script to stdout and exits 0, standing in for the real cargo binary.
func fakeCargo(t *testing.T, script string) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake cargo script is a POSIX shell script")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "cargo")

	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755)) //nolint:gosec

	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestBuild_ReturnsSingleMatchingArtifact(t *testing.T) {
	fakeCargo(t, `cat <<'EOF'
{"reason":"compiler-message","message":{"rendered":"warning: unused import\n"}}
{"reason":"compiler-artifact","target":{"name":"other","kind":["lib"]},"filenames":["/tmp/other"]}
{"reason":"compiler-artifact","target":{"name":"blink","kind":["bin"]},"executable":"/tmp/blink","filenames":["/tmp/blink"]}
{"reason":"build-finished","success":true}
EOF`)

	var diagnostics bytes.Buffer

	w := buildwrap.NewWrapper(&diagnostics)

	artifact, err := w.Build(context.Background(), buildwrap.Options{
		WorkDir: t.TempDir(),
		Kind:    buildwrap.KindBin,
	})

	require.NoError(t, err)
	assert.Equal(t, "blink", artifact.TargetName)
	assert.Equal(t, "/tmp/blink", artifact.ExecutablePath)
	assert.Contains(t, diagnostics.String(), "unused import")
}

func TestBuild_NoSuitableArtifact(t *testing.T) {
	fakeCargo(t, `cat <<'EOF'
{"reason":"compiler-artifact","target":{"name":"other","kind":["lib"]},"filenames":["/tmp/other"]}
EOF`)

	w := buildwrap.NewWrapper(&bytes.Buffer{})

	_, err := w.Build(context.Background(), buildwrap.Options{
		WorkDir: t.TempDir(),
		Kind:    buildwrap.KindBin,
	})

	require.Error(t, err)
}

func TestBuild_MultipleSuitableArtifacts(t *testing.T) {
	fakeCargo(t, `cat <<'EOF'
{"reason":"compiler-artifact","target":{"name":"a","kind":["bin"]},"executable":"/tmp/a","filenames":["/tmp/a"]}
{"reason":"compiler-artifact","target":{"name":"b","kind":["bin"]},"executable":"/tmp/b","filenames":["/tmp/b"]}
EOF`)

	w := buildwrap.NewWrapper(&bytes.Buffer{})

	_, err := w.Build(context.Background(), buildwrap.Options{
		WorkDir: t.TempDir(),
		Kind:    buildwrap.KindBin,
	})

	require.Error(t, err)
}

func TestBuild_SubprocessFailure(t *testing.T) {
	fakeCargo(t, `echo '{"reason":"compiler-message","message":{"rendered":"error: oops\n"}}'
exit 1`)

	var diagnostics bytes.Buffer

	w := buildwrap.NewWrapper(&diagnostics)

	_, err := w.Build(context.Background(), buildwrap.Options{
		WorkDir: t.TempDir(),
		Kind:    buildwrap.KindBin,
	})

	require.Error(t, err)
	assert.Contains(t, diagnostics.String(), "oops")
}

func TestMetadata_ParsesTargetDirectoryAndPackages(t *testing.T) {
	fakeCargo(t, `cat <<'EOF'
{"target_directory":"/tmp/blink/target","workspace_root":"/tmp/blink","packages":[{"name":"blink","version":"0.1.0","manifest_path":"/tmp/blink/Cargo.toml"}]}
EOF`)

	w := buildwrap.NewWrapper(&bytes.Buffer{})

	meta, err := w.Metadata(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/blink/target", meta.TargetDirectory)

	manifest, ok := meta.PackageManifest("blink")
	require.True(t, ok)
	assert.Equal(t, "/tmp/blink/Cargo.toml", manifest)

	_, ok = meta.PackageManifest("missing")
	assert.False(t, ok)
}
