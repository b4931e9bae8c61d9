// Package scanner splits one logical preprocessor line into typed tokens.
// It wraps a participle lexer and adds the push-back and whitespace
// handling the directive parsers need: whitespace and comments survive as
// Space tokens because "F(" and "F (" mean different things to #define.
package scanner

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"modernc.org/token"
)

// Kind classifies a token.
type Kind uint8

const (
	EOL Kind = iota // end of the logical line; returned forever once reached
	Ident
	Number
	String
	Char
	Punct
	Space // whitespace and comments
	Other // any byte no other rule accepts
)

func (k Kind) String() string {
	switch k {
	case EOL:
		return "end of line"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case Char:
		return "character constant"
	case Punct:
		return "punctuator"
	case Space:
		return "whitespace"
	case Other:
		return "stray character"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Op identifies the punctuators the directive engine cares about.
type Op uint8

const (
	OpNone Op = iota
	OpHash
	OpPaste
	OpEllipsis
	OpLParen
	OpRParen
	OpComma
	OpOther
)

// Token is one lexeme with its position in the source file.
type Token struct {
	Kind Kind
	Op   Op
	Text string
	Pos  token.Position
}

func (t Token) String() string {
	if t.Kind == EOL {
		return "end of line"
	}
	return t.Text
}

// Is reports whether t is the punctuator op.
func (t Token) Is(op Op) bool { return t.Kind == Punct && t.Op == op }

var lineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*|/\*([^*]|\*+[^*/])*\*+/`},
	{Name: "Space", Pattern: `[ \t\f\v\r\n]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Number", Pattern: `\.?[0-9]([eEpP][+-]|[0-9a-zA-Z_.])*`},
	{Name: "String", Pattern: `"(\\.|[^"\\\n])*"`},
	{Name: "Char", Pattern: `'(\\.|[^'\\\n])*'`},
	{Name: "Punct", Pattern: `\.\.\.|##|<<=|>>=|->|\+\+|--|<<|>>|<=|>=|==|!=|&&|\|\||[-+*/%&|^=!<>~?:;,.()\[\]{}#]`},
	{Name: "Other", Pattern: `.`},
})

var kindOf = func() map[lexer.TokenType]Kind {
	syms := lineLexer.Symbols()
	return map[lexer.TokenType]Kind{
		syms["Comment"]: Space,
		syms["Space"]:   Space,
		syms["Ident"]:   Ident,
		syms["Number"]:  Number,
		syms["String"]:  String,
		syms["Char"]:    Char,
		syms["Punct"]:   Punct,
		syms["Other"]:   Other,
	}
}()

func opOf(text string) Op {
	switch text {
	case "#":
		return OpHash
	case "##":
		return OpPaste
	case "...":
		return OpEllipsis
	case "(":
		return OpLParen
	case ")":
		return OpRParen
	case ",":
		return OpComma
	}
	return OpOther
}

// Scanner hands out the tokens of one logical line.
type Scanner struct {
	toks []Token
	pos  int
	eol  Token
}

// Scan tokenizes text, which starts at start in its file. Backslash-newline
// continuations must already be removed.
func Scan(start token.Position, text string) (*Scanner, error) {
	lex, err := lineLexer.LexString(start.Filename, text)
	if err != nil {
		return nil, fmt.Errorf("tokenizing %q: %w", text, err)
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, fmt.Errorf("tokenizing %q: %w", text, err)
	}
	s := &Scanner{}
	for _, rt := range raw {
		if rt.EOF() {
			break
		}
		tok := Token{Kind: kindOf[rt.Type], Text: rt.Value, Pos: translate(start, rt.Pos)}
		if tok.Kind == Punct {
			tok.Op = opOf(tok.Text)
		}
		// Adjacent comment and whitespace tokens collapse into one.
		if tok.Kind == Space && len(s.toks) > 0 && s.toks[len(s.toks)-1].Kind == Space {
			s.toks[len(s.toks)-1].Text += tok.Text
			continue
		}
		s.toks = append(s.toks, tok)
	}
	end := start
	end.Offset += len(text)
	if nl := strings.LastIndexByte(text, '\n'); nl >= 0 {
		end.Line += strings.Count(text, "\n")
		end.Column = len(text) - nl
	} else if end.Column > 0 {
		end.Column += len(text)
	}
	s.eol = Token{Kind: EOL, Pos: end}
	return s, nil
}

func translate(start token.Position, p lexer.Position) token.Position {
	pos := token.Position{
		Filename: start.Filename,
		Offset:   start.Offset + p.Offset,
		Line:     start.Line + p.Line - 1,
		Column:   p.Column,
	}
	if p.Line == 1 && start.Column > 0 {
		pos.Column = start.Column + p.Column - 1
	}
	return pos
}

// Next returns the next token, whitespace included.
func (s *Scanner) Next() Token {
	if s.pos >= len(s.toks) {
		s.pos = len(s.toks) + 1
		return s.eol
	}
	t := s.toks[s.pos]
	s.pos++
	return t
}

// NextNonSpace skips whitespace and returns the following token.
func (s *Scanner) NextNonSpace() Token {
	for {
		t := s.Next()
		if t.Kind != Space {
			return t
		}
	}
}

// PushBack un-reads the last token returned. Only one level is guaranteed.
func (s *Scanner) PushBack() {
	if s.pos > len(s.toks) {
		s.pos = len(s.toks)
		return
	}
	if s.pos > 0 {
		s.pos--
	}
}

// Peek returns the next token without consuming it.
func (s *Scanner) Peek() Token {
	if s.pos >= len(s.toks) {
		return s.eol
	}
	return s.toks[s.pos]
}

// SkipSpace consumes whitespace.
func (s *Scanner) SkipSpace() {
	for s.pos < len(s.toks) && s.toks[s.pos].Kind == Space {
		s.pos++
	}
}

// AtEOL reports whether only whitespace remains.
func (s *Scanner) AtEOL() bool {
	for i := s.pos; i < len(s.toks); i++ {
		if s.toks[i].Kind != Space {
			return false
		}
	}
	return true
}

// Rest consumes and returns every remaining token except leading and
// trailing whitespace.
func (s *Scanner) Rest() []Token {
	s.SkipSpace()
	if s.pos >= len(s.toks) {
		s.pos = len(s.toks)
		return nil
	}
	rest := s.toks[s.pos:]
	s.pos = len(s.toks)
	for len(rest) > 0 && rest[len(rest)-1].Kind == Space {
		rest = rest[:len(rest)-1]
	}
	return rest
}

// Text joins tokens back into source text, whitespace runs becoming one
// blank.
func Text(toks []Token) string {
	var b strings.Builder
	for _, t := range toks {
		if t.Kind == Space {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

// IsIdentStart reports whether b may begin an identifier.
func IsIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// IsIdentPart reports whether b may continue an identifier.
func IsIdentPart(b byte) bool {
	return IsIdentStart(b) || (b >= '0' && b <= '9')
}
