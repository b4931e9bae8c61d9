package pp

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rubiojr/rpp/diag"
	"github.com/rubiojr/rpp/scanner"
)

// Includer locates and loads the file named by an #include directive.
type Includer interface {
	// Resolve finds name as included from the file from. system is set for
	// the <name> form. It returns the path of the file and its contents.
	Resolve(name, from string, system bool) (string, []byte, error)
}

// OSIncluder searches the file system: the directory of the including file
// first (quoted form only), then Dirs in order.
type OSIncluder struct {
	Dirs []string
}

var errNotFound = errors.New("no such file in the include path")

func (o OSIncluder) Resolve(name, from string, system bool) (string, []byte, error) {
	if filepath.IsAbs(name) {
		return readInclude(name)
	}
	var cands []string
	if !system && from != "" && !strings.HasPrefix(from, "<") {
		cands = append(cands, filepath.Join(filepath.Dir(from), name))
	}
	for _, dir := range o.Dirs {
		cands = append(cands, filepath.Join(dir, name))
	}
	for _, cand := range cands {
		st, err := os.Stat(cand)
		if err != nil || st.IsDir() {
			continue
		}
		return readInclude(cand)
	}
	return "", nil, errNotFound
}

func readInclude(path string) (string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	return filepath.Clean(path), data, nil
}

// Builtins runs the directives outside the core: include, line, pragma,
// error, warning and the configured vendor directives.
type Builtins struct {
	// Includer loads included files. Nil means an OSIncluder over
	// Config.IncludeDirs.
	Includer Includer
}

func (b *Builtins) Handle(c *Context, d *Directive) error {
	switch d.Keyword {
	case KwInclude:
		return b.include(c, d)
	case KwLine:
		return b.line(c, d)
	case KwPragma:
		return nil
	case KwError:
		return diag.Errorf(d.Pos, "#error %s", scanner.Text(d.Args.Rest()))
	case KwWarning:
		c.Diag.Warnf(diag.WarnDirective, d.Pos, "#warning %s", scanner.Text(d.Args.Rest()))
		return nil
	}
	if c.Config.IsVendorDirective(d.Name) {
		return nil
	}
	return diag.Errorf(d.Pos, "invalid preprocessing directive #%s", d.Name)
}

func (b *Builtins) include(c *Context, d *Directive) error {
	name, system, err := includeName(d)
	if err != nil {
		return err
	}
	if c.IncludeDepth() >= c.Config.MaxIncludeDepth {
		return diag.Errorf(d.Pos, "#include nested too deeply (limit %d)", c.Config.MaxIncludeDepth)
	}
	inc := b.Includer
	if inc == nil {
		inc = OSIncluder{Dirs: c.Config.IncludeDirs}
	}
	path, data, err := inc.Resolve(name, c.File(), system)
	if err != nil {
		return diag.Errorf(d.Pos, "%s: %v", name, err)
	}
	err = c.Process(path, data, c.Output())
	c.resync = true
	return err
}

// includeName extracts the file name of "name" or <name>.
func includeName(d *Directive) (string, bool, error) {
	toks := d.Args.Rest()
	if len(toks) == 0 {
		return "", false, diag.Errorf(d.Pos, "#include expects \"FILENAME\" or <FILENAME>")
	}
	first := toks[0]
	switch {
	case first.Kind == scanner.String:
		if len(toks) > 1 {
			return "", false, diag.Errorf(toks[1].Pos, "extra tokens at end of #include directive")
		}
		return first.Text[1 : len(first.Text)-1], false, nil
	case first.Kind == scanner.Punct && first.Text == "<":
		var b strings.Builder
		for i, t := range toks[1:] {
			if t.Kind == scanner.Punct && t.Text == ">" {
				if i+2 < len(toks) {
					return "", false, diag.Errorf(toks[i+2].Pos, "extra tokens at end of #include directive")
				}
				if b.Len() == 0 {
					return "", false, diag.Errorf(first.Pos, "empty filename in #include")
				}
				return b.String(), true, nil
			}
			b.WriteString(t.Text)
		}
		return "", false, diag.Errorf(first.Pos, "missing terminating > character")
	}
	return "", false, diag.Errorf(first.Pos, "#include expects \"FILENAME\" or <FILENAME>")
}

// line handles "#line N "file"" and the legacy "# N "file" flags" form.
func (b *Builtins) line(c *Context, d *Directive) error {
	num := d.Args.NextNonSpace()
	if num.Kind != scanner.Number {
		return diag.Errorf(num.Pos, "\"%s\" after #line is not a positive integer", num)
	}
	n, err := strconv.ParseUint(num.Text, 10, 31)
	if err != nil || (n == 0 && d.Name != "") {
		return diag.Errorf(num.Pos, "\"%s\" after #line is not a positive integer", num.Text)
	}
	file := ""
	if t := d.Args.NextNonSpace(); t.Kind == scanner.String {
		file = t.Text[1 : len(t.Text)-1]
	} else if t.Kind != scanner.EOL {
		return diag.Errorf(t.Pos, "invalid filename \"%s\" in #line", t.Text)
	}
	if d.Name == "" {
		// The legacy form carries flags after the file name.
		if !d.Args.AtEOL() {
			rest := d.Args.Rest()
			c.Diag.Warnf(diag.WarnTrailing, rest[0].Pos, "extra tokens at end of #line directive")
		}
	} else {
		c.checkTrailing(d.Args, KwLine)
	}
	if c.Lines == nil {
		return diag.Errorf(d.Pos, "#line used outside of a file")
	}
	c.Lines.SetLine(int(n), file)
	return nil
}
