package macro

import (
	"fmt"

	"modernc.org/token"

	"github.com/rubiojr/rpp/diag"
	"github.com/rubiojr/rpp/scanner"
)

// Parser builds definitions from the tokens that follow "#define".
type Parser struct {
	Strict    bool
	MaxParams int
	// Warn receives soft findings. It may be nil.
	Warn func(class diag.WarnClass, pos token.Position, msg string)
}

func (p *Parser) warn(class diag.WarnClass, pos token.Position, format string, args ...any) {
	if p.Warn != nil {
		p.Warn(class, pos, fmt.Sprintf(format, args...))
	}
}

// CheckName rejects tokens that cannot name a macro in #directive.
func CheckName(tok scanner.Token, directive string) error {
	switch {
	case tok.Kind == scanner.EOL:
		return diag.Errorf(tok.Pos, "no macro name given in #%s directive", directive)
	case tok.Kind != scanner.Ident:
		return diag.Errorf(tok.Pos, "macro names must be identifiers")
	case tok.Text == "defined":
		return diag.Errorf(tok.Pos, "\"defined\" cannot be used as a macro name")
	case tok.Text == VariadicName:
		return diag.Errorf(tok.Pos, "%s can only appear in the expansion of a variadic macro", VariadicName)
	}
	return nil
}

// Parse reads a macro name, an optional parameter list and the
// replacement list from sc, which must be positioned after the "define"
// keyword.
func (p *Parser) Parse(sc *scanner.Scanner) (*Definition, error) {
	nameTok := sc.NextNonSpace()
	if err := CheckName(nameTok, "define"); err != nil {
		return nil, err
	}
	def := &Definition{Name: nameTok.Text, DefinedAt: nameTok.Pos, Kind: User}

	// Only a '(' touching the name opens a parameter list.
	next := sc.Next()
	switch {
	case next.Is(scanner.OpLParen):
		def.FunctionLike = true
		if err := p.parseParameters(sc, def); err != nil {
			return nil, err
		}
	case next.Kind == scanner.Space || next.Kind == scanner.EOL:
		sc.PushBack()
	default:
		if p.Strict {
			return nil, diag.Errorf(next.Pos, "missing whitespace after the macro name")
		}
		sc.PushBack()
	}

	repl, err := p.parseReplacement(sc, def)
	if err != nil {
		return nil, err
	}
	def.Replacement = repl
	return def, nil
}

func (p *Parser) parseParameters(sc *scanner.Scanner, def *Definition) error {
	seen := make(map[string]bool)
	for first := true; ; first = false {
		tok := sc.NextNonSpace()
		switch {
		case tok.Is(scanner.OpRParen) && first:
			return nil
		case tok.Is(scanner.OpEllipsis):
			def.Variadic = true
			def.Params = append(def.Params, VariadicName)
			if closing := sc.NextNonSpace(); !closing.Is(scanner.OpRParen) {
				return diag.Errorf(closing.Pos, "missing ')' after \"...\" in macro parameter list")
			}
			return nil
		case tok.Kind == scanner.Ident:
		case tok.Kind == scanner.EOL:
			return diag.Errorf(tok.Pos, "missing ')' in macro parameter list")
		default:
			return diag.Errorf(tok.Pos, "expected parameter name, found \"%s\"", tok.Text)
		}

		if tok.Text == VariadicName {
			return diag.Errorf(tok.Pos, "%s can not be used as a parameter name", VariadicName)
		}
		if seen[tok.Text] {
			return diag.Errorf(tok.Pos, "duplicate macro parameter \"%s\"", tok.Text)
		}
		if len(def.Params) >= p.maxParams() {
			return diag.Errorf(tok.Pos, "too many parameters in macro \"%s\" (limit %d)", def.Name, p.maxParams())
		}
		seen[tok.Text] = true
		def.Params = append(def.Params, tok.Text)

		sep := sc.NextNonSpace()
		if sep.Is(scanner.OpEllipsis) {
			if p.Strict {
				return diag.Errorf(sep.Pos, "named variadic parameter \"%s\" is not allowed in strict mode", tok.Text)
			}
			def.Variadic = true
			sep = sc.NextNonSpace()
			if !sep.Is(scanner.OpRParen) {
				return diag.Errorf(sep.Pos, "missing ')' after \"...\" in macro parameter list")
			}
			return nil
		}
		switch {
		case sep.Is(scanner.OpComma):
		case sep.Is(scanner.OpRParen):
			return nil
		case sep.Kind == scanner.EOL:
			return diag.Errorf(sep.Pos, "missing ')' in macro parameter list")
		default:
			return diag.Errorf(sep.Pos, "expected ',' or ')', found \"%s\"", sep.Text)
		}
	}
}

func (p *Parser) maxParams() int {
	if p.MaxParams <= 0 {
		return 127
	}
	return p.MaxParams
}

func (p *Parser) parseReplacement(sc *scanner.Scanner, def *Definition) (Replacement, error) {
	var (
		out          Replacement
		pendingSpace bool
		pastes       int
		lastPaste    token.Position
	)
	last := func() ItemKind {
		if len(out) == 0 {
			return 0
		}
		return out[len(out)-1].Kind
	}

	for {
		tok := sc.Next()
		if tok.Kind == scanner.EOL {
			break
		}
		if tok.Kind == scanner.Space {
			pendingSpace = len(out) > 0
			continue
		}
		if tok.Is(scanner.OpPaste) {
			switch last() {
			case 0:
				return nil, diag.Errorf(tok.Pos, "'##' cannot appear at either end of a macro expansion")
			case ItemPaste:
				return nil, diag.Errorf(tok.Pos, "'##' cannot follow another '##'")
			}
			out = append(out, Paste())
			pendingSpace = false
			pastes++
			lastPaste = tok.Pos
			continue
		}
		if pendingSpace && last() != ItemPaste {
			out = append(out, Space())
		}
		pendingSpace = false

		switch {
		case tok.Is(scanner.OpHash) && def.FunctionLike:
			operand := sc.NextNonSpace()
			idx := 0
			if operand.Kind == scanner.Ident {
				idx = def.IsFormal(operand.Text)
			}
			if idx == 0 {
				return nil, diag.Errorf(tok.Pos, "'#' is not followed by a macro parameter")
			}
			out = append(out, Stringize(idx))
		case tok.Kind == scanner.Ident:
			if idx := def.IsFormal(tok.Text); idx > 0 {
				out = append(out, Param(idx))
				continue
			}
			switch tok.Text {
			case VariadicName:
				return nil, diag.Errorf(tok.Pos, "%s can only appear in the expansion of a variadic macro", VariadicName)
			case def.Name:
				out = append(out, SelfRef(tok.Text))
			default:
				out = append(out, Literal(tok.Text))
			}
		default:
			out = append(out, Literal(tok.Text))
		}
	}

	if last() == ItemPaste {
		return nil, diag.Errorf(lastPaste, "'##' cannot appear at either end of a macro expansion")
	}
	if pastes > 1 {
		p.warn(diag.WarnPaste, def.DefinedAt, "macro \"%s\" uses '##' %d times; the order of evaluation is unspecified", def.Name, pastes)
	}
	return out, nil
}

// Define installs def into t. An identical existing definition is kept and
// returned as is; a different one is reported through Warn and replaced.
func (p *Parser) Define(t *Table, def *Definition) (*Definition, error) {
	slot := t.FindSlot(def.Name)
	if cur := t.At(slot); cur != nil && t.visible(cur) {
		if cur.Kind == Protected {
			return nil, diag.Errorf(def.DefinedAt, "cannot redefine protected macro \"%s\"", def.Name)
		}
		if cur.SameAs(def) {
			return cur, nil
		}
		p.warn(diag.WarnRedefine, def.DefinedAt, "\"%s\" redefined (previous definition at %s)", def.Name, position(cur.DefinedAt))
	}
	installed, err := t.Install(def, slot)
	if err != nil {
		return nil, diag.Errorf(def.DefinedAt, "cannot redefine protected macro \"%s\"", def.Name)
	}
	return installed, nil
}

func position(pos token.Position) string {
	if pos.Filename == "" && pos.Line == 0 {
		return "<builtin>"
	}
	name := pos.Filename
	if name == "" {
		name = "<input>"
	}
	return fmt.Sprintf("%s:%d", name, pos.Line)
}
