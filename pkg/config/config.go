// Package config loads the tracing configuration from a target
// application's Cargo.toml manifest, following the same viper-based
// pattern the rest of the toolchain uses for structured configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tracescope/tracescope/pkg/tracerr"
)

// manifestSection is the metadata table name both package and workspace
// tables nest the tool's configuration under.
const manifestSection = "tracescope"

// Manifest holds the tracing configuration recognized in a target
// application's [package.metadata.tracescope] / [workspace.metadata.tracescope]
// tables, per spec §6.
type Manifest struct {
	PacName       string   `mapstructure:"pac_name"`
	PacVersion    string   `mapstructure:"pac_version"`
	PacFeatures   []string `mapstructure:"pac_features"`
	InterruptPath string   `mapstructure:"interrupt_path"`
	TPIUFreq      uint32   `mapstructure:"tpiu_freq"`
	TPIUBaud      uint32   `mapstructure:"tpiu_baud"`
	DWTEnterID    uint     `mapstructure:"dwt_enter_id"`
	DWTExitID     uint     `mapstructure:"dwt_exit_id"`
}

// Overrides carries command-line flag values that take precedence over
// both manifest tables. A nil field means "not set on the command line".
type Overrides struct {
	PacFeatures   []string
	InterruptPath *string
	TPIUFreq      *uint32
	TPIUBaud      *uint32
	DWTEnterID    *uint
	DWTExitID     *uint
}

// LoadManifest reads manifestPath as a Cargo.toml, merges the
// [package.metadata.tracescope] table over [workspace.metadata.tracescope]
// (package wins per spec's documented "package wins" resolution of the
// precedence Open Question), unions pac_features from both tables (the
// other Open Question, resolved as union rather than replace — see
// DESIGN.md), applies overrides, and validates required fields.
func LoadManifest(manifestPath string, overrides Overrides) (*Manifest, error) {
	viperCfg := viper.New()
	viperCfg.SetConfigFile(manifestPath)
	viperCfg.SetConfigType("toml")

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		return nil, tracerr.IOError("read manifest", readErr,
			fmt.Sprintf("check that %s exists and is valid TOML", manifestPath))
	}

	workspace := unmarshalSection(viperCfg, "workspace.metadata."+manifestSection)
	pkg := unmarshalSection(viperCfg, "package.metadata."+manifestSection)

	merged := mergePackageOverWorkspace(pkg, workspace)

	applyOverrides(&merged, overrides)

	validateErr := validateManifest(&merged)
	if validateErr != nil {
		return nil, validateErr
	}

	return &merged, nil
}

func unmarshalSection(viperCfg *viper.Viper, path string) Manifest {
	var m Manifest

	sub := viperCfg.Sub(path)
	if sub == nil {
		return m
	}

	_ = sub.Unmarshal(&m)

	return m
}

// mergePackageOverWorkspace combines two manifest readings: for each
// scalar field, pkg's value wins when set, else workspace's; pac_features
// is the union of both lists, deduplicated, package order first.
func mergePackageOverWorkspace(pkg, workspace Manifest) Manifest {
	merged := workspace

	if pkg.PacName != "" {
		merged.PacName = pkg.PacName
	}

	if pkg.PacVersion != "" {
		merged.PacVersion = pkg.PacVersion
	}

	if pkg.InterruptPath != "" {
		merged.InterruptPath = pkg.InterruptPath
	}

	if pkg.TPIUFreq != 0 {
		merged.TPIUFreq = pkg.TPIUFreq
	}

	if pkg.TPIUBaud != 0 {
		merged.TPIUBaud = pkg.TPIUBaud
	}

	if pkg.DWTEnterID != 0 {
		merged.DWTEnterID = pkg.DWTEnterID
	}

	if pkg.DWTExitID != 0 {
		merged.DWTExitID = pkg.DWTExitID
	}

	merged.PacFeatures = unionFeatures(pkg.PacFeatures, workspace.PacFeatures)

	return merged
}

func unionFeatures(primary, secondary []string) []string {
	seen := make(map[string]bool, len(primary)+len(secondary))

	union := make([]string, 0, len(primary)+len(secondary))

	for _, list := range [][]string{primary, secondary} {
		for _, feature := range list {
			if seen[feature] {
				continue
			}

			seen[feature] = true

			union = append(union, feature)
		}
	}

	return union
}

func applyOverrides(m *Manifest, overrides Overrides) {
	if len(overrides.PacFeatures) > 0 {
		m.PacFeatures = unionFeatures(overrides.PacFeatures, m.PacFeatures)
	}

	if overrides.InterruptPath != nil {
		m.InterruptPath = *overrides.InterruptPath
	}

	if overrides.TPIUFreq != nil {
		m.TPIUFreq = *overrides.TPIUFreq
	}

	if overrides.TPIUBaud != nil {
		m.TPIUBaud = *overrides.TPIUBaud
	}

	if overrides.DWTEnterID != nil {
		m.DWTEnterID = *overrides.DWTEnterID
	}

	if overrides.DWTExitID != nil {
		m.DWTExitID = *overrides.DWTExitID
	}
}

func validateManifest(m *Manifest) error {
	if m.PacName == "" {
		return tracerr.ManifestError("missing pac_name",
			"set pac_name under [package.metadata.tracescope] or [workspace.metadata.tracescope]")
	}

	if m.InterruptPath == "" {
		return tracerr.ManifestError("missing interrupt_path",
			"set interrupt_path to the peripheral crate's interrupt enum, e.g. \"stm32f4::stm32f405::Interrupt\"")
	}

	if m.TPIUFreq == 0 {
		return tracerr.ManifestError("missing or zero tpiu_freq",
			"set tpiu_freq to the TPIU trace clock frequency in Hz")
	}

	if m.DWTEnterID == m.DWTExitID {
		return tracerr.ManifestError("dwt_enter_id and dwt_exit_id must differ",
			fmt.Sprintf("both are currently %d", m.DWTEnterID))
	}

	return nil
}
