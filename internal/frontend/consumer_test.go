package frontend

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHandshake_TrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	path, err := readHandshake(strings.NewReader("/tmp/tracescope-analyzer-1234.sock\n"), "analyzer")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tracescope-analyzer-1234.sock", path)
}

func TestReadHandshake_RejectsEmptyLine(t *testing.T) {
	t.Parallel()

	_, err := readHandshake(strings.NewReader("\n"), "analyzer")
	assert.Error(t, err)
}

func TestReadHandshake_RejectsClosedStdout(t *testing.T) {
	t.Parallel()

	_, err := readHandshake(strings.NewReader(""), "analyzer")
	assert.Error(t, err)
}

func TestFanDiagnostics_PrefixesEachLineWithName(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	fanDiagnostics("analyzer", strings.NewReader("starting up\nlistening on socket\n"), &out)

	assert.Equal(t, "analyzer: starting up\nanalyzer: listening on socket\n", out.String())
}
