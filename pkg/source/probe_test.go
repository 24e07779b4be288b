package source_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracescope/tracescope/pkg/source"
)

type fakeProbe struct {
	resetHalt *bool
	chunks    [][]byte
	closed    bool
}

func (p *fakeProbe) Reset(halt bool) error {
	p.resetHalt = &halt

	return nil
}

func (p *fakeProbe) ConfigureSWO(uint32, uint32) error { return nil }

func (p *fakeProbe) Read(buf []byte) (int, error) {
	if len(p.chunks) == 0 {
		return 0, io.EOF
	}

	n := copy(buf, p.chunks[0])
	p.chunks = p.chunks[1:]

	return n, nil
}

func (p *fakeProbe) Close() error {
	p.closed = true

	return nil
}

func TestProbeSource_ReadsUntilEOF(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{chunks: [][]byte{[]byte("abc"), []byte("de")}}
	s := source.NewProbeSource("probe-0", probe, &fakeDecoder{threshold: 4})

	group, err := s.Next()
	require.NoError(t, err)
	assert.NotEmpty(t, group.Packets)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.ResetTarget(true))
	require.NotNil(t, probe.resetHalt)
	assert.True(t, *probe.resetHalt)

	assert.Equal(t, source.StatusUnknown, s.AvailBuffer().Kind)
	assert.Equal(t, "probe(probe-0)", s.Describe())

	require.NoError(t, s.Close())
	assert.True(t, probe.closed)
}

type failingProbe struct{}

func (failingProbe) Reset(bool) error                { return errors.New("no probe attached") }
func (failingProbe) ConfigureSWO(uint32, uint32) error { return nil }
func (failingProbe) Read([]byte) (int, error)          { return 0, errors.New("read failed") }
func (failingProbe) Close() error                      { return nil }

func TestProbeSource_WrapsResetAndReadErrors(t *testing.T) {
	t.Parallel()

	s := source.NewProbeSource("probe-1", failingProbe{}, &fakeDecoder{threshold: 1})

	assert.Error(t, s.ResetTarget(false))

	_, err := s.Next()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
