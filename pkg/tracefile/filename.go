package tracefile

import (
	"context"
	"fmt"
	"time"

	"github.com/tracescope/tracescope/pkg/gitlib"
)

// isoLocalLayout matches spec §4.7/§6's "ISO-8601 local date-time" filename
// component. Colons are replaced with dashes so the name is filesystem-safe
// on every target OS.
const isoLocalLayout = "2006-01-02T15-04-05"

// FileName builds the trace file name for program, following the pattern
// "<program>-g<short_commit>[-dirty]-<ISO8601_local>.trace".
func FileName(program, shortCommit string, dirty bool, when time.Time) string {
	dirtyMarker := ""
	if dirty {
		dirtyMarker = "-dirty"
	}

	return fmt.Sprintf("%s-g%s%s-%s.trace", program, shortCommit, dirtyMarker, when.Format(isoLocalLayout))
}

// GitDescribe opens workDir's repository via libgit2 (pkg/gitlib), the
// same way pkg/buildwrap shells out to cargo for build metadata, to
// recover the abbreviated revision and dirty status for use in FileName.
// Returns ("unknown", false, nil) outside a git checkout rather than
// failing the whole trace session over a cosmetic filename component.
func GitDescribe(_ context.Context, workDir string) (shortCommit string, dirty bool, err error) {
	repo, openErr := gitlib.OpenRepository(workDir)
	if openErr != nil {
		return "unknown", false, nil //nolint:nilerr // not in a git checkout is not fatal to tracing
	}
	defer repo.Free()

	hex, headErr := repo.HeadHex()
	if headErr != nil {
		return "unknown", false, nil //nolint:nilerr // unborn HEAD is not fatal to tracing
	}

	short := hex[:gitlib.ShortHashSize]

	isDirty, dirtyErr := repo.Dirty()
	if dirtyErr != nil {
		return short, false, fmt.Errorf("check worktree status: %w", dirtyErr)
	}

	return short, isDirty, nil
}
