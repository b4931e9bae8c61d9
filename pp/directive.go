package pp

import (
	"modernc.org/token"

	"github.com/rubiojr/rpp/diag"
	"github.com/rubiojr/rpp/macro"
	"github.com/rubiojr/rpp/scanner"
)

// Directive processes one logical line whose first non-blank character is
// '#'. pos is the position of the start of line. Recoverable problems are
// reported through c.Diag and the line is dropped; the only error returned
// is a fatal one, which must end the run.
func (c *Context) Directive(pos token.Position, line string) error {
	sc, err := scanner.Scan(pos, line)
	if err != nil {
		c.Diag.Errorf(pos, "%v", err)
		return nil
	}
	if hash := sc.NextNonSpace(); !hash.Is(scanner.OpHash) {
		c.Diag.Errorf(hash.Pos, "expected '#' at start of directive")
		return nil
	}

	kwTok := sc.NextNonSpace()
	if kwTok.Kind == scanner.EOL {
		// Null directive.
		return nil
	}
	compiling := c.Cond.Compiling()

	if kwTok.Kind != scanner.Ident {
		switch {
		case kwTok.Kind == scanner.Number && compiling:
			// Old-style "# 123 "file"" line marker.
			sc.PushBack()
			return c.Diag.Report(kwTok.Pos, c.external(&Directive{Keyword: KwLine, Pos: kwTok.Pos, Args: sc}))
		case kwTok.Kind == scanner.Number:
			return nil
		case !compiling:
			c.Diag.Warnf(diag.WarnSkipped, kwTok.Pos, "invalid preprocessing directive in skipped block")
			return nil
		default:
			c.Diag.Errorf(kwTok.Pos, "invalid preprocessing directive #%s", kwTok.Text)
			return nil
		}
	}

	kw := Classify(kwTok.Text)
	if !compiling && !kw.Conditional() {
		return nil
	}

	err = c.dispatch(kw, kwTok, sc)
	if c.Cond.Compiling() != compiling {
		c.resync = true
	}
	return c.Diag.Report(kwTok.Pos, err)
}

func (c *Context) dispatch(kw Keyword, kwTok scanner.Token, sc *scanner.Scanner) error {
	pos := kwTok.Pos
	switch kw {
	case KwIf:
		toks := sc.Rest()
		err := c.Cond.Enter(pos, c.fileID(), func() bool { return c.test(pos, "if", toks) })
		c.checkDepth(pos)
		return err
	case KwIfdef, KwIfndef:
		return c.doIfdef(kw, pos, sc)
	case KwElif:
		toks := sc.Rest()
		return c.Cond.Elif(pos, c.fileID(), func() bool { return c.test(pos, "elif", toks) })
	case KwElse:
		before := c.Cond.Compiling()
		if err := c.Cond.Else(pos, c.fileID()); err != nil {
			return err
		}
		if before || c.Cond.Compiling() {
			c.checkTrailing(sc, kw)
		}
		return nil
	case KwEndif:
		before := c.Cond.Compiling()
		if err := c.Cond.Endif(pos, c.fileID()); err != nil {
			return err
		}
		if before || c.Cond.Compiling() {
			c.checkTrailing(sc, kw)
		}
		return nil
	case KwDefine:
		def, err := c.parser.Parse(sc)
		if err != nil {
			return err
		}
		_, err = c.parser.Define(c.Table, def)
		return err
	case KwUndef:
		return c.doUndef(sc)
	default:
		return c.external(&Directive{Keyword: kw, Name: kwTok.Text, Pos: pos, Args: sc})
	}
}

func (c *Context) doIfdef(kw Keyword, pos token.Position, sc *scanner.Scanner) error {
	nameTok := sc.NextNonSpace()
	err := c.Cond.Enter(pos, c.fileID(), func() bool {
		if err := macro.CheckName(nameTok, kw.String()); err != nil {
			c.Diag.Report(pos, err)
			return false
		}
		c.checkTrailing(sc, kw)
		return c.Table.Defined(nameTok.Text) == (kw == KwIfdef)
	})
	c.checkDepth(pos)
	return err
}

func (c *Context) doUndef(sc *scanner.Scanner) error {
	nameTok := sc.NextNonSpace()
	if err := macro.CheckName(nameTok, "undef"); err != nil {
		return err
	}
	if d := c.Table.Lookup(nameTok.Text); d != nil && d.Kind == macro.Protected {
		return diag.Errorf(nameTok.Pos, "cannot undefine protected macro \"%s\"", nameTok.Text)
	}
	c.Table.Undefine(nameTok.Text)
	c.checkTrailing(sc, KwUndef)
	return nil
}

func (c *Context) external(d *Directive) error {
	if c.Handler == nil {
		return diag.Errorf(d.Pos, "#%s is not supported", d.Name)
	}
	return c.Handler.Handle(c, d)
}

// checkTrailing reports tokens left after a directive that takes no more
// operands: a warning normally, an error in strict mode.
func (c *Context) checkTrailing(sc *scanner.Scanner, kw Keyword) {
	if sc.AtEOL() {
		return
	}
	rest := sc.Rest()
	if c.Config.Strict {
		c.Diag.Errorf(rest[0].Pos, "extra tokens at end of #%s directive", kw)
		return
	}
	c.Diag.Warnf(diag.WarnTrailing, rest[0].Pos, "extra tokens at end of #%s directive", kw)
}

// checkDepth warns once per run when nesting passes three quarters of the
// limit.
func (c *Context) checkDepth(pos token.Position) {
	limit := c.Cond.Max()
	if c.depthWarned || c.Cond.Depth()*4 <= limit*3 {
		return
	}
	c.depthWarned = true
	c.Diag.Warnf(diag.WarnLimits, pos, "#if nesting depth %d is close to the limit of %d", c.Cond.Depth(), limit)
}
