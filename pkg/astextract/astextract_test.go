package astextract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracescope/tracescope/pkg/astextract"
)

const blinkSource = `
#![no_std]
#![no_main]

#[app(device = pac, dispatchers = [SPI1])]
mod app {
    #[shared]
    struct Shared {}

    #[local]
    struct Local {}

    #[init]
    fn init(_cx: init::Context) -> (Shared, Local) {
        (Shared {}, Local {})
    }

    #[task(binds = TIM2)]
    #[trace]
    fn tick(_cx: tick::Context) {}
}
`

func TestExtract_FindsAppDeclaration(t *testing.T) {
	t.Parallel()

	decl, err := astextract.Extract([]byte(blinkSource))
	require.NoError(t, err)

	assert.Contains(t, decl.Arguments, "device = pac")
	assert.Contains(t, decl.Arguments, "dispatchers = [SPI1]")
	assert.Equal(t, "app", decl.ModuleName)

	body := string(decl.BodySource[decl.BodyStart:decl.BodyEnd])
	assert.Contains(t, body, "#[task(binds = TIM2)]")
	assert.Contains(t, body, "fn tick")
}

func TestExtract_RejectsMissingDeclaration(t *testing.T) {
	t.Parallel()

	_, err := astextract.Extract([]byte(`fn main() {}`))
	require.ErrorIs(t, err, astextract.ErrArgumentsMissing)
}

func TestParseDispatchers_ExtractsNames(t *testing.T) {
	t.Parallel()

	names := astextract.ParseDispatchers("device = pac, dispatchers = [SPI1, SPI2]")
	assert.Equal(t, []string{"SPI1", "SPI2"}, names)
}

func TestParseDispatchers_NoneDeclared(t *testing.T) {
	t.Parallel()

	names := astextract.ParseDispatchers("device = pac")
	assert.Nil(t, names)
}

func TestExtract_RejectsAlternateSpelling(t *testing.T) {
	t.Parallel()

	_, err := astextract.Extract([]byte(`
#[rtic::app(device = pac)]
mod app {}
`))
	require.ErrorIs(t, err, astextract.ErrArgumentsMissing)
}
