// Package tracerr implements the pipeline's error taxonomy: seven
// categories, each wrapping a cause and carrying zero or more remediation
// hints, plus a renderer that writes the single-line header, the indented
// cause chain, and the hint lines a fatal error presents to the user.
package tracerr

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Category discriminates the seven error kinds from spec §7.
type Category int

// The recognized categories.
const (
	Manifest Category = iota
	Build
	Recovery
	Source
	Sink
	IO
	Other
)

func (c Category) String() string {
	switch c {
	case Manifest:
		return "manifest error"
	case Build:
		return "build error"
	case Recovery:
		return "recovery error"
	case Source:
		return "source error"
	case Sink:
		return "sink error"
	case IO:
		return "I/O error"
	default:
		return "error"
	}
}

// Error is a categorized, hinted, wrapped error. It implements Unwrap so
// errors.Is/errors.As walk through it to the underlying cause.
type Error struct {
	Category Category
	Message  string
	Cause    error
	Hints    []string
}

// New builds an Error with no wrapped cause.
func New(category Category, message string, hints ...string) *Error {
	return &Error{Category: category, Message: message, Hints: hints}
}

// Wrap builds an Error wrapping cause.
func Wrap(category Category, message string, cause error, hints ...string) *Error {
	return &Error{Category: category, Message: message, Cause: cause, Hints: hints}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithHint returns a copy of e with hint appended.
func (e *Error) WithHint(hint string) *Error {
	cloned := *e
	cloned.Hints = append(append([]string{}, e.Hints...), hint)

	return &cloned
}

// Manifest-category constructors.
func ManifestError(message string, hints ...string) *Error { return New(Manifest, message, hints...) }

// BuildError constructs a Build-category error.
func BuildError(message string, cause error, hints ...string) *Error {
	return Wrap(Build, message, cause, hints...)
}

// RecoveryError constructs a Recovery-category error.
func RecoveryError(message string, cause error, hints ...string) *Error {
	return Wrap(Recovery, message, cause, hints...)
}

// SourceError constructs a Source-category error.
func SourceError(message string, cause error, hints ...string) *Error {
	return Wrap(Source, message, cause, hints...)
}

// SinkError constructs a Sink-category error.
func SinkError(message string, cause error, hints ...string) *Error {
	return Wrap(Sink, message, cause, hints...)
}

// IOError constructs an IO-category error.
func IOError(message string, cause error, hints ...string) *Error {
	return Wrap(IO, message, cause, hints...)
}

// Render writes a single-line error header, the indented cause chain
// (following errors.Unwrap), and zero or more hint lines to w. This is the
// format every fatal startup error and pipeline-ending condition is
// rendered with before the process exits non-zero. The header is bold red,
// the cause chain plain, and hints cyan, the same palette validate's
// report uses for fatal/hint output — but only when w is an actual
// terminal, matching --color/--no-color's intent without needing the
// flag pair, since callers here pass os.Stderr or a plain bytes.Buffer,
// never an explicit override.
func Render(w io.Writer, err error) {
	if err == nil {
		return
	}

	var header string

	var tracedErr *Error
	if errors.As(err, &tracedErr) {
		header = fmt.Sprintf("%s: %s", tracedErr.Category, tracedErr.Message)
	} else {
		header = err.Error()
	}

	headerColor := color.New(color.FgRed, color.Bold)
	hintColor := color.New(color.FgCyan)

	if !isTerminal(w) {
		headerColor.DisableColor()
		hintColor.DisableColor()
	}

	headerColor.Fprintln(w, header)

	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintf(w, "  caused by: %v\n", cause)
	}

	if tracedErr != nil {
		for _, hint := range tracedErr.Hints {
			hintColor.Fprintf(w, "  hint: %s\n", hint)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && isatty.IsTerminal(f.Fd())
}
