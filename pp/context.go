// Package pp is the directive engine of the preprocessor. A Context owns
// the conditional stack, the macro table and the configuration of one run;
// Directive handles one '#' line and Process drives a whole file through
// it.
//
// A Context is not safe for concurrent use. Run independent jobs on
// independent contexts.
package pp

import (
	"fmt"
	"io"

	"modernc.org/token"

	"github.com/rubiojr/rpp/cond"
	"github.com/rubiojr/rpp/config"
	"github.com/rubiojr/rpp/diag"
	"github.com/rubiojr/rpp/macro"
	"github.com/rubiojr/rpp/scanner"
)

// Evaluator computes the value of a #if or #elif expression. The tokens
// have "defined" and object-like macros already replaced.
type Evaluator interface {
	Evaluate(toks []scanner.Token) (int64, error)
}

// LineTracker follows the presented line number of the file being
// processed.
type LineTracker interface {
	// Line returns the presented number of the current line.
	Line() int
	// SetLine makes the next source line carry number line, and renames the
	// file when file is not empty.
	SetLine(line int, file string)
}

// Directive is a line handed to a Handler: include, line, pragma, error,
// warning, vendor and unknown directives.
type Directive struct {
	Keyword Keyword
	// Name is the directive name as written; empty for the legacy
	// "# 123" line form.
	Name string
	Pos  token.Position
	// Args is positioned after the name. The handler owns the rest of
	// the line.
	Args *scanner.Scanner
}

// Handler executes the directives that are outside the core.
type Handler interface {
	Handle(c *Context, d *Directive) error
}

type fileState struct {
	id   int
	name string
}

// Context is the state of one preprocessing run.
type Context struct {
	Config  *config.Config
	Table   *macro.Table
	Cond    *cond.Stack
	Diag    *diag.Reporter
	Eval    Evaluator
	Handler Handler
	Lines   LineTracker

	parser      macro.Parser
	files       []fileState
	nextFile    int
	out         io.Writer
	resync      bool
	depthWarned bool
}

// Predefined macros installed by New.
const (
	MacroFile   = "__FILE__"
	MacroLine   = "__LINE__"
	MacroRPP    = "__RPP__"
	MacroRPPExt = "__RPP_EXTENSIONS__"
	commandLine = "<command-line>"
	builtinFile = "<builtin>"
)

// New builds a context from cfg, reporting into sink. Command-line
// definitions are applied; an invalid one is returned as an error.
func New(cfg *config.Config, sink diag.Sink) (*Context, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Context{
		Config:  cfg,
		Table:   macro.NewTable(cfg.MaxMacros),
		Cond:    cond.New(cfg.MaxDepth),
		Diag:    diag.NewReporter(sink, cfg.Warnings),
		Eval:    ExprEvaluator{},
		Handler: &Builtins{},
	}
	c.Table.Strict = cfg.Strict
	c.Table.LimitExceeded = func(count, limit int) {
		c.Diag.Warnf(diag.WarnLimits, c.position(), "%d macros defined, more than the configured limit of %d", count, limit)
	}
	c.parser = macro.Parser{
		Strict:    cfg.Strict,
		MaxParams: cfg.MaxParams,
		Warn: func(class diag.WarnClass, pos token.Position, msg string) {
			c.Diag.Warnf(class, pos, "%s", msg)
		},
	}
	if err := c.predefine(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Context) predefine() error {
	pos := token.Position{Filename: builtinFile}
	c.Table.DefinePrivileged(&macro.Definition{Name: MacroFile, DefinedAt: pos, Kind: macro.Protected})
	c.Table.DefinePrivileged(&macro.Definition{Name: MacroLine, DefinedAt: pos, Kind: macro.Protected})
	if _, err := c.DefineKind(MacroRPP+" 1", macro.Predefined); err != nil {
		return err
	}
	if _, err := c.DefineKind(MacroRPPExt+" 1", macro.Extension); err != nil {
		return err
	}
	for _, d := range c.Config.Defines {
		head, body, err := config.ParseDefine(d)
		if err != nil {
			return err
		}
		if _, err := c.Define(head + " " + body); err != nil {
			return fmt.Errorf("-D%s: %w", d, err)
		}
	}
	for _, name := range c.Config.Undefines {
		c.Table.UndefinePrivileged(name)
	}
	return nil
}

// DefineKind parses src as the text after "#define" and installs it with
// the given kind through the privileged path.
func (c *Context) DefineKind(src string, kind macro.Kind) (*macro.Definition, error) {
	sc, err := scanner.Scan(token.Position{Filename: commandLine, Line: 1, Column: 1}, src)
	if err != nil {
		return nil, err
	}
	def, err := c.parser.Parse(sc)
	if err != nil {
		return nil, err
	}
	def.Kind = kind
	return c.Table.DefinePrivileged(def), nil
}

// Define parses src as the text after "#define" and installs it as a user
// macro, with the same rules as the directive.
func (c *Context) Define(src string) (*macro.Definition, error) {
	sc, err := scanner.Scan(token.Position{Filename: commandLine, Line: 1, Column: 1}, src)
	if err != nil {
		return nil, err
	}
	def, err := c.parser.Parse(sc)
	if err != nil {
		return nil, err
	}
	return c.parser.Define(c.Table, def)
}

// Compiling reports whether lines at the current position are compiled.
func (c *Context) Compiling() bool { return c.Cond.Compiling() }

// TakeResync reports whether the compiling state changed since the last
// call, and clears the signal.
func (c *Context) TakeResync() bool {
	r := c.resync
	c.resync = false
	return r
}

// File returns the name of the file being processed, or "".
func (c *Context) File() string {
	if len(c.files) == 0 {
		return ""
	}
	return c.files[len(c.files)-1].name
}

// Output returns the writer the current file is processed into.
func (c *Context) Output() io.Writer { return c.out }

// IncludeDepth returns the number of files currently open.
func (c *Context) IncludeDepth() int { return len(c.files) }

func (c *Context) fileID() int {
	if len(c.files) == 0 {
		return 0
	}
	return c.files[len(c.files)-1].id
}

func (c *Context) position() token.Position {
	pos := token.Position{Filename: c.File()}
	if c.Lines != nil {
		pos.Line = c.Lines.Line()
	}
	return pos
}

// Close releases every macro definition. The context must not be used
// afterwards.
func (c *Context) Close() {
	c.Table.Clear()
	c.Cond.Reset()
	c.files = nil
}
