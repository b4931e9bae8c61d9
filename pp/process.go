package pp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"modernc.org/token"

	"github.com/rubiojr/rpp/diag"
)

// maxBlankGap is the largest run of dropped lines that is bridged with
// empty lines instead of a #line marker.
const maxBlankGap = 8

// Result summarizes a run.
type Result struct {
	Errors   int
	Warnings int
	// Aborted is set when a fatal diagnostic stopped the run.
	Aborted bool
}

// Run processes src as the top-level file name, writing the compiled lines
// to w. Diagnostics go to the context's reporter; the returned error is
// only set for output failures.
func (c *Context) Run(name string, src []byte, w io.Writer) (*Result, error) {
	c.Cond.Reset()
	c.files = c.files[:0]
	c.resync = false
	errs, warns := c.Diag.Errors(), c.Diag.Warnings()
	err := c.Process(name, src, w)
	res := &Result{
		Errors:   c.Diag.Errors() - errs,
		Warnings: c.Diag.Warnings() - warns,
		Aborted:  diag.IsFatal(err),
	}
	if res.Aborted {
		err = nil
	}
	return res, err
}

// Process runs every line of src through the context. Directive lines are
// dispatched, compiled lines are copied to w and skipped lines are dropped.
// Without line markers every dropped line becomes an empty line so output
// lines keep their numbers. Process returns fatal errors and write errors;
// everything else is reported.
func (c *Context) Process(name string, src []byte, w io.Writer) error {
	c.nextFile++
	id := c.nextFile
	bw := bufio.NewWriter(w)
	ft := &fileTracker{name: name}

	prevOut, prevLines := c.out, c.Lines
	c.files = append(c.files, fileState{id: id, name: name})
	c.out, c.Lines = bw, ft
	defer func() {
		c.files = c.files[:len(c.files)-1]
		c.out, c.Lines = prevOut, prevLines
	}()

	markers := c.Config.LineMarkers
	// Position the output is at, for deciding when a marker is due.
	outFile, outLine := "", 0
	lr := &lineReader{src: src}
	for {
		ln, ok := lr.next()
		if !ok {
			break
		}
		ft.current, ft.next = ln.line, ln.line+ln.count

		if ln.directive {
			// The placeholder goes first so included text follows it.
			if !markers {
				blank(bw, ln)
			}
			pos := token.Position{Filename: ft.name, Offset: ln.offset, Line: ft.Line(), Column: 1}
			err := c.Directive(pos, ln.text)
			if c.TakeResync() {
				outFile = ""
			}
			if err != nil {
				bw.Flush()
				return err
			}
			continue
		}
		if !c.Compiling() {
			if !markers {
				blank(bw, ln)
			}
			continue
		}
		if markers {
			gap := ft.Line() - outLine
			switch {
			case outFile == ft.name && gap == 0:
			case outFile == ft.name && gap > 0 && gap <= maxBlankGap:
				for range gap {
					bw.WriteByte('\n')
				}
			default:
				fmt.Fprintf(bw, "#line %d %q\n", ft.Line(), ft.name)
			}
		}
		bw.WriteString(ln.raw)
		if ln.nl {
			bw.WriteByte('\n')
		}
		outFile, outLine = ft.name, ft.Line()+ln.count
	}

	compiling := c.Compiling()
	for _, f := range c.Cond.Unterminated(id) {
		c.Diag.Errorf(f.IfPos, "unterminated conditional directive")
	}
	if c.Compiling() != compiling {
		c.resync = true
	}
	return bw.Flush()
}

func blank(w *bufio.Writer, ln logicalLine) {
	n := ln.count
	if !ln.nl {
		n--
	}
	for range n {
		w.WriteByte('\n')
	}
}

// isDirective reports whether the first non-blank character is '#'.
func isDirective(s string) bool {
	s = strings.TrimLeft(s, " \t\f\v")
	return strings.HasPrefix(s, "#")
}

// fileTracker maps physical line numbers to the numbers set by #line.
type fileTracker struct {
	name    string
	current int // first physical line of the logical line being handled
	next    int // physical line after it
	delta   int
}

func (t *fileTracker) Line() int { return t.current + t.delta }

func (t *fileTracker) SetLine(line int, file string) {
	t.delta = line - t.next
	if file != "" {
		t.name = file
	}
}

type logicalLine struct {
	text   string // backslash-newlines removed
	raw    string // source text without the final newline
	line   int    // first physical line, 1-based
	count  int    // physical lines spanned
	offset    int
	nl        bool // ends with a newline
	directive bool
}

type lineReader struct {
	src  []byte
	off  int
	line int
	// inComment is set while a block comment opened on an earlier line is
	// still open.
	inComment bool
}

func (lr *lineReader) physical() (string, bool, bool) {
	if lr.off >= len(lr.src) {
		return "", false, false
	}
	rest := lr.src[lr.off:]
	i := bytes.IndexByte(rest, '\n')
	lr.line++
	if i < 0 {
		lr.off = len(lr.src)
		return string(rest), false, true
	}
	lr.off += i + 1
	return string(rest[:i]), true, true
}

// next returns the following logical line. Lines ending in a backslash
// continue on the next physical line, and a directive keeps going while a
// block comment is open. A line that starts inside a block comment is never
// a directive.
func (lr *lineReader) next() (logicalLine, bool) {
	start := lr.off
	s, nl, ok := lr.physical()
	if !ok {
		return logicalLine{}, false
	}
	ln := logicalLine{line: lr.line, offset: start, count: 1}
	startInComment := lr.inComment
	directive := !startInComment && isDirective(s)
	var b strings.Builder
	for {
		s = strings.TrimSuffix(s, "\r")
		if lineContinues(s) {
			b.WriteString(s[:len(s)-1])
		} else {
			b.WriteString(s)
			if !directive || !openComment(b.String(), false) {
				break
			}
			b.WriteByte('\n')
		}
		if !nl {
			break
		}
		var more bool
		if s, nl, more = lr.physical(); !more {
			break
		}
		ln.count++
	}
	end := lr.off
	if nl {
		end--
	}
	ln.text = b.String()
	ln.raw = string(lr.src[start:end])
	ln.nl = nl
	ln.directive = directive
	lr.inComment = openComment(ln.text, startInComment)
	return ln, true
}

func lineContinues(s string) bool {
	return strings.HasSuffix(s, "\\")
}

// openComment reports whether s ends inside a block comment, given
// whether it starts inside one.
func openComment(s string, in bool) bool {
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case in:
			if ch == '*' && i+1 < len(s) && s[i+1] == '/' {
				in = false
				i++
			}
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			return false
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			in = true
			i++
		}
	}
	return in
}
