package diag

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"modernc.org/token"
)

// Sink receives every diagnostic that passes the warning mask.
type Sink interface {
	Report(d Diagnostic)
}

// Reporter filters warnings by mask and counts what it forwards.
type Reporter struct {
	Sink Sink
	Mask WarnClass

	errors   int
	warnings int
}

// NewReporter returns a Reporter writing to sink. A nil sink discards.
func NewReporter(sink Sink, mask WarnClass) *Reporter {
	if sink == nil {
		sink = Discard
	}
	return &Reporter{Sink: sink, Mask: mask}
}

// Errorf reports a recoverable error.
func (r *Reporter) Errorf(pos token.Position, format string, args ...any) {
	r.errors++
	r.Sink.Report(Diagnostic{Pos: pos, Severity: SeverityError, Msg: fmt.Sprintf(format, args...)})
}

// Warnf reports a warning of the given class if the mask enables it.
func (r *Reporter) Warnf(class WarnClass, pos token.Position, format string, args ...any) {
	if !r.Enabled(class) {
		return
	}
	r.warnings++
	r.Sink.Report(Diagnostic{Pos: pos, Severity: SeverityWarning, Class: class, Msg: fmt.Sprintf(format, args...)})
}

// Fatalf reports a fatal diagnostic and returns the error that must be
// propagated to the run boundary.
func (r *Reporter) Fatalf(pos token.Position, format string, args ...any) error {
	err := &FatalError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
	r.Fatal(err)
	return err
}

// Fatal reports an already built fatal error. An error is reported once
// however many callers it passes through.
func (r *Reporter) Fatal(err *FatalError) {
	if err.reported {
		return
	}
	err.reported = true
	r.errors++
	r.Sink.Report(Diagnostic{Pos: err.Pos, Severity: SeverityFatal, Msg: err.Msg})
}

// Report routes err to the matching severity. *Error values keep their
// position; anything else is reported at pos. Fatal errors are returned so
// callers can keep propagating them; every other error is consumed.
func (r *Reporter) Report(pos token.Position, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		r.Fatal(fe)
		return err
	}
	var de *Error
	if errors.As(err, &de) {
		r.Errorf(de.Pos, "%s", de.Msg)
		return nil
	}
	r.Errorf(pos, "%s", err.Error())
	return nil
}

// Enabled reports whether warnings of class are forwarded.
func (r *Reporter) Enabled(class WarnClass) bool {
	return r.Mask&class != 0
}

// Errors returns the number of errors reported so far, fatal included.
func (r *Reporter) Errors() int { return r.errors }

// Warnings returns the number of warnings forwarded so far.
func (r *Reporter) Warnings() int { return r.warnings }

type discard struct{}

func (discard) Report(Diagnostic) {}

// Discard drops every diagnostic.
var Discard Sink = discard{}

// Collector keeps diagnostics in memory.
type Collector struct {
	mu    sync.Mutex
	Diags []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.Diags = append(c.Diags, d)
	c.mu.Unlock()
}

// Count returns how many collected diagnostics have severity s.
func (c *Collector) Count(s Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.Diags {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// Messages returns the collected messages in report order.
func (c *Collector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]string, len(c.Diags))
	for i, d := range c.Diags {
		msgs[i] = d.Msg
	}
	return msgs
}

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
)

// WriterSink prints one line per diagnostic, compiler style.
type WriterSink struct {
	W     io.Writer
	Color bool
}

func (s *WriterSink) Report(d Diagnostic) {
	if !s.Color {
		fmt.Fprintln(s.W, d.String())
		return
	}
	color := ansiYellow
	if d.Severity != SeverityWarning {
		color = ansiRed
	}
	fmt.Fprintf(s.W, "%s%s:%s %s%s:%s %s\n", ansiBold, formatPos(d.Pos), ansiReset, color, d.Severity, ansiReset, d.Msg)
}

// LogSink forwards diagnostics to a logrus logger as structured entries.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (s *LogSink) Report(d Diagnostic) {
	fields := logrus.Fields{
		"file":   d.Pos.Filename,
		"line":   d.Pos.Line,
		"column": d.Pos.Column,
	}
	if d.Class != WarnNone {
		fields["class"] = d.Class.String()
	}
	entry := s.Logger.WithFields(fields)
	switch d.Severity {
	case SeverityWarning:
		entry.Warn(d.Msg)
	case SeverityError:
		entry.Error(d.Msg)
	default:
		entry.WithField("fatal", true).Error(d.Msg)
	}
}

// Multi fans a diagnostic out to several sinks.
type Multi []Sink

func (m Multi) Report(d Diagnostic) {
	for _, s := range m {
		s.Report(d)
	}
}
