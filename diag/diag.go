// Package diag carries preprocessor diagnostics from the components that
// detect them to whatever sink the host installs. Components return
// *Error values; the directive dispatcher reports them through a Reporter,
// which applies the warning mask and keeps counts for the run result.
package diag

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/token"
)

// Severity orders diagnostics from advisory to run-ending.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// WarnClass selects a family of soft warnings. Classes combine into a mask.
type WarnClass uint32

const (
	// WarnRedefine reports an incompatible macro redefinition.
	WarnRedefine WarnClass = 1 << iota
	// WarnTrailing reports extra tokens after a directive.
	WarnTrailing
	// WarnLimits reports macro counts or nesting approaching a limit.
	WarnLimits
	// WarnPaste reports several '##' operators in one replacement list.
	WarnPaste
	// WarnSkipped reports malformed directives inside skipped blocks.
	WarnSkipped
	// WarnDirective reports directives raised by #warning.
	WarnDirective

	WarnNone    WarnClass = 0
	WarnAll               = WarnRedefine | WarnTrailing | WarnLimits | WarnPaste | WarnSkipped | WarnDirective
	WarnDefault           = WarnRedefine | WarnTrailing | WarnLimits | WarnDirective
)

var warnNames = []struct {
	name  string
	class WarnClass
}{
	{"redefine", WarnRedefine},
	{"trailing", WarnTrailing},
	{"limits", WarnLimits},
	{"paste", WarnPaste},
	{"skipped", WarnSkipped},
	{"directive", WarnDirective},
}

func (c WarnClass) String() string {
	if c == WarnNone {
		return "none"
	}
	var names []string
	for _, w := range warnNames {
		if c&w.class != 0 {
			names = append(names, w.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("warn(%#x)", uint32(c))
	}
	return strings.Join(names, "|")
}

// ParseWarnings turns warning names into a mask. "all" and "none" are
// accepted, and a "no-" prefix clears a class from what was set so far.
func ParseWarnings(names []string) (WarnClass, error) {
	mask := WarnNone
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "all":
			mask = WarnAll
			continue
		case "none":
			mask = WarnNone
			continue
		case "default":
			mask |= WarnDefault
			continue
		}
		clear := false
		if strings.HasPrefix(name, "no-") {
			clear = true
			name = name[3:]
		}
		found := false
		for _, w := range warnNames {
			if w.name == name {
				if clear {
					mask &^= w.class
				} else {
					mask |= w.class
				}
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown warning class %q", raw)
		}
	}
	return mask, nil
}

// Diagnostic is one reported message.
type Diagnostic struct {
	Pos      token.Position
	Severity Severity
	Class    WarnClass // set for warnings only
	Msg      string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Pos.Filename != "" || d.Pos.Line > 0 {
		b.WriteString(formatPos(d.Pos))
		b.WriteString(": ")
	}
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	b.WriteString(d.Msg)
	return b.String()
}

func formatPos(pos token.Position) string {
	name := pos.Filename
	if name == "" {
		name = "<input>"
	}
	if pos.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", name, pos.Line, pos.Column)
	}
	return fmt.Sprintf("%s:%d", name, pos.Line)
}

// Error is a recoverable, positioned error. The directive that produced it
// is abandoned and processing resumes at the next line.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string {
	return formatPos(e.Pos) + ": " + e.Msg
}

// Errorf builds an *Error at pos.
func Errorf(pos token.Position, format string, args ...any) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// ErrAborted is matched by every fatal error.
var ErrAborted = errors.New("preprocessing aborted")

// FatalError ends the whole run. It travels back through every caller
// unchanged.
type FatalError struct {
	Pos token.Position
	Msg string

	reported bool
}

func (e *FatalError) Error() string {
	return formatPos(e.Pos) + ": fatal: " + e.Msg
}

func (e *FatalError) Unwrap() error { return ErrAborted }

// IsFatal reports whether err (or anything it wraps) ends the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAborted)
}
