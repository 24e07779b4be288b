package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracescope/tracescope/pkg/config"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "Cargo.toml")

	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

const validManifest = `
[package]
name = "blink"

[package.metadata.tracescope]
pac_name = "stm32f4"
pac_version = "0.19"
pac_features = ["stm32f405"]
interrupt_path = "stm32f4::stm32f405::Interrupt"
tpiu_freq = 16000000
tpiu_baud = 115200
dwt_enter_id = 1
dwt_exit_id = 2
`

func TestLoadManifest_PackageTable(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, validManifest)

	m, err := config.LoadManifest(path, config.Overrides{})

	require.NoError(t, err)
	assert.Equal(t, "stm32f4", m.PacName)
	assert.Equal(t, []string{"stm32f405"}, m.PacFeatures)
	assert.Equal(t, uint32(16000000), m.TPIUFreq)
	assert.Equal(t, uint(1), m.DWTEnterID)
	assert.Equal(t, uint(2), m.DWTExitID)
}

func TestLoadManifest_PackageWinsOverWorkspace(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, `
[workspace.metadata.tracescope]
pac_name = "workspace-pac"
pac_features = ["workspace-feat"]
interrupt_path = "workspace::Interrupt"
tpiu_freq = 8000000
dwt_enter_id = 1
dwt_exit_id = 2

[package.metadata.tracescope]
pac_name = "package-pac"
pac_features = ["package-feat"]
`)

	m, err := config.LoadManifest(path, config.Overrides{})

	require.NoError(t, err)
	assert.Equal(t, "package-pac", m.PacName, "package table wins over workspace per field")
	assert.Equal(t, "workspace::Interrupt", m.InterruptPath, "workspace fills fields package doesn't set")
	assert.ElementsMatch(t, []string{"package-feat", "workspace-feat"}, m.PacFeatures, "features union, not replace")
}

func TestLoadManifest_OverridesWinOverBothTables(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, validManifest)

	overriddenFreq := uint32(24000000)

	m, err := config.LoadManifest(path, config.Overrides{TPIUFreq: &overriddenFreq})

	require.NoError(t, err)
	assert.Equal(t, overriddenFreq, m.TPIUFreq)
}

func TestLoadManifest_MissingRequiredField(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, `
[package.metadata.tracescope]
pac_version = "0.19"
`)

	_, err := config.LoadManifest(path, config.Overrides{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pac_name")
}

func TestLoadManifest_DWTIDsMustDiffer(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, `
[package.metadata.tracescope]
pac_name = "stm32f4"
interrupt_path = "stm32f4::stm32f405::Interrupt"
tpiu_freq = 16000000
dwt_enter_id = 1
dwt_exit_id = 1
`)

	_, err := config.LoadManifest(path, config.Overrides{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dwt_enter_id")
}

func TestLoadManifest_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadManifest(filepath.Join(t.TempDir(), "nonexistent.toml"), config.Overrides{})

	require.Error(t, err)
}
