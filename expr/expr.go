// Package expr evaluates the integer constant expressions of #if and
// #elif. Identifiers and "defined" must already be replaced by numbers;
// the grammar only knows numbers, character constants and C operators.
package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F]+[uUlL]*|[0-9]+[uUlL]*`},
	{Name: "Char", Pattern: `'(\\.|[^'\\])+'`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Op", Pattern: `\|\||&&|==|!=|<=|>=|<<|>>|[-+*/%&|^!~<>?:()]`},
})

// Expr is a full conditional expression.
type Expr struct {
	Test *LogicalOr `parser:"@@"`
	Then *Expr      `parser:"( '?' @@"`
	Else *Expr      `parser:"  ':' @@ )?"`
}

type LogicalOr struct {
	Left  *LogicalAnd   `parser:"@@"`
	Right []*LogicalAnd `parser:"( '||' @@ )*"`
}

type LogicalAnd struct {
	Left  *BitOr   `parser:"@@"`
	Right []*BitOr `parser:"( '&&' @@ )*"`
}

type BitOr struct {
	Left  *BitXor   `parser:"@@"`
	Right []*BitXor `parser:"( '|' @@ )*"`
}

type BitXor struct {
	Left  *BitAnd   `parser:"@@"`
	Right []*BitAnd `parser:"( '^' @@ )*"`
}

type BitAnd struct {
	Left  *Equality   `parser:"@@"`
	Right []*Equality `parser:"( '&' @@ )*"`
}

type Equality struct {
	Left *Relational   `parser:"@@"`
	Ops  []*EqualityOp `parser:"@@*"`
}

type EqualityOp struct {
	Op    string      `parser:"@( '==' | '!=' )"`
	Right *Relational `parser:"@@"`
}

type Relational struct {
	Left *Shift          `parser:"@@"`
	Ops  []*RelationalOp `parser:"@@*"`
}

type RelationalOp struct {
	Op    string `parser:"@( '<=' | '>=' | '<' | '>' )"`
	Right *Shift `parser:"@@"`
}

type Shift struct {
	Left *Additive  `parser:"@@"`
	Ops  []*ShiftOp `parser:"@@*"`
}

type ShiftOp struct {
	Op    string    `parser:"@( '<<' | '>>' )"`
	Right *Additive `parser:"@@"`
}

type Additive struct {
	Left *Multiplicative `parser:"@@"`
	Ops  []*AdditiveOp   `parser:"@@*"`
}

type AdditiveOp struct {
	Op    string          `parser:"@( '+' | '-' )"`
	Right *Multiplicative `parser:"@@"`
}

type Multiplicative struct {
	Left *Unary              `parser:"@@"`
	Ops  []*MultiplicativeOp `parser:"@@*"`
}

type MultiplicativeOp struct {
	Op    string `parser:"@( '*' | '/' | '%' )"`
	Right *Unary `parser:"@@"`
}

type Unary struct {
	Op      string   `parser:"  ( @( '-' | '+' | '!' | '~' )"`
	Operand *Unary   `parser:"    @@ )"`
	Primary *Primary `parser:"| @@"`
}

type Primary struct {
	Number *string `parser:"  @Number"`
	Char   *string `parser:"| @Char"`
	Ident  *string `parser:"| @Ident"`
	Sub    *Expr   `parser:"| '(' @@ ')'"`
}

var parser = participle.MustBuild[Expr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// ErrDivByZero is returned for a division or remainder by zero on an
// evaluated branch.
var ErrDivByZero = errors.New("division by zero in preprocessor expression")

// Parse parses src into an expression tree.
func Parse(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.New("#if with no expression")
	}
	e, err := parser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("invalid preprocessor expression: %w", err)
	}
	return e, nil
}

// Eval parses and evaluates src. The result is the bit pattern of the
// value; an unsigned result above the int64 range comes back negative.
func Eval(src string) (int64, error) {
	e, err := Parse(src)
	if err != nil {
		return 0, err
	}
	return e.Eval()
}

// value is an intmax_t, or a uintmax_t bit pattern when unsigned is set.
type value struct {
	n        int64
	unsigned bool
}

func truth(b bool) value {
	if b {
		return value{n: 1}
	}
	return value{}
}

// binary applies op with the usual arithmetic conversions: the result is
// unsigned when either operand is. Shifts take the type of the left
// operand; comparisons yield a signed 0 or 1.
func binary(op string, a, b value) (value, error) {
	u := a.unsigned || b.unsigned
	x, y := uint64(a.n), uint64(b.n)
	switch op {
	case "*":
		return value{a.n * b.n, u}, nil
	case "/", "%":
		if b.n == 0 {
			return value{}, ErrDivByZero
		}
		switch {
		case u && op == "/":
			return value{int64(x / y), true}, nil
		case u:
			return value{int64(x % y), true}, nil
		case op == "/":
			return value{n: a.n / b.n}, nil
		}
		return value{n: a.n % b.n}, nil
	case "+":
		return value{a.n + b.n, u}, nil
	case "-":
		return value{a.n - b.n, u}, nil
	case "<<", ">>":
		s := uint(b.n) & 63
		switch {
		case op == "<<":
			return value{a.n << s, a.unsigned}, nil
		case a.unsigned:
			return value{int64(x >> s), true}, nil
		}
		return value{n: a.n >> s}, nil
	case "<":
		return truth(u && x < y || !u && a.n < b.n), nil
	case ">":
		return truth(u && x > y || !u && a.n > b.n), nil
	case "<=":
		return truth(u && x <= y || !u && a.n <= b.n), nil
	case ">=":
		return truth(u && x >= y || !u && a.n >= b.n), nil
	case "==":
		return truth(a.n == b.n), nil
	case "!=":
		return truth(a.n != b.n), nil
	case "&":
		return value{a.n & b.n, u}, nil
	case "|":
		return value{a.n | b.n, u}, nil
	case "^":
		return value{a.n ^ b.n, u}, nil
	}
	return value{}, fmt.Errorf("unknown operator %q", op)
}

// Eval computes the value of e. Unevaluated operands of &&, || and ?: are
// never visited, so a division by zero there is not an error.
func (e *Expr) Eval() (int64, error) {
	v, err := e.eval()
	return v.n, err
}

func (e *Expr) eval() (value, error) {
	v, err := e.Test.eval()
	if err != nil || e.Then == nil {
		return v, err
	}
	if v.n != 0 {
		return e.Then.eval()
	}
	return e.Else.eval()
}

func (n *LogicalOr) eval() (value, error) {
	v, err := n.Left.eval()
	if err != nil {
		return value{}, err
	}
	for _, r := range n.Right {
		if v.n != 0 {
			return truth(true), nil
		}
		if v, err = r.eval(); err != nil {
			return value{}, err
		}
	}
	if len(n.Right) > 0 {
		return truth(v.n != 0), nil
	}
	return v, nil
}

func (n *LogicalAnd) eval() (value, error) {
	v, err := n.Left.eval()
	if err != nil {
		return value{}, err
	}
	for _, r := range n.Right {
		if v.n == 0 {
			return truth(false), nil
		}
		if v, err = r.eval(); err != nil {
			return value{}, err
		}
	}
	if len(n.Right) > 0 {
		return truth(v.n != 0), nil
	}
	return v, nil
}

func (n *BitOr) eval() (value, error) {
	v, err := n.Left.eval()
	for _, r := range n.Right {
		if err != nil {
			break
		}
		var w value
		if w, err = r.eval(); err == nil {
			v, err = binary("|", v, w)
		}
	}
	return v, err
}

func (n *BitXor) eval() (value, error) {
	v, err := n.Left.eval()
	for _, r := range n.Right {
		if err != nil {
			break
		}
		var w value
		if w, err = r.eval(); err == nil {
			v, err = binary("^", v, w)
		}
	}
	return v, err
}

func (n *BitAnd) eval() (value, error) {
	v, err := n.Left.eval()
	for _, r := range n.Right {
		if err != nil {
			break
		}
		var w value
		if w, err = r.eval(); err == nil {
			v, err = binary("&", v, w)
		}
	}
	return v, err
}

func (n *Equality) eval() (value, error) {
	v, err := n.Left.eval()
	for _, op := range n.Ops {
		if err != nil {
			break
		}
		var w value
		if w, err = op.Right.eval(); err == nil {
			v, err = binary(op.Op, v, w)
		}
	}
	return v, err
}

func (n *Relational) eval() (value, error) {
	v, err := n.Left.eval()
	for _, op := range n.Ops {
		if err != nil {
			break
		}
		var w value
		if w, err = op.Right.eval(); err == nil {
			v, err = binary(op.Op, v, w)
		}
	}
	return v, err
}

func (n *Shift) eval() (value, error) {
	v, err := n.Left.eval()
	for _, op := range n.Ops {
		if err != nil {
			break
		}
		var w value
		if w, err = op.Right.eval(); err == nil {
			v, err = binary(op.Op, v, w)
		}
	}
	return v, err
}

func (n *Additive) eval() (value, error) {
	v, err := n.Left.eval()
	for _, op := range n.Ops {
		if err != nil {
			break
		}
		var w value
		if w, err = op.Right.eval(); err == nil {
			v, err = binary(op.Op, v, w)
		}
	}
	return v, err
}

func (n *Multiplicative) eval() (value, error) {
	v, err := n.Left.eval()
	for _, op := range n.Ops {
		if err != nil {
			break
		}
		var w value
		if w, err = op.Right.eval(); err == nil {
			v, err = binary(op.Op, v, w)
		}
	}
	return v, err
}

func (n *Unary) eval() (value, error) {
	if n.Primary != nil {
		return n.Primary.eval()
	}
	v, err := n.Operand.eval()
	if err != nil {
		return value{}, err
	}
	switch n.Op {
	case "-":
		return value{-v.n, v.unsigned}, nil
	case "!":
		return truth(v.n == 0), nil
	case "~":
		return value{^v.n, v.unsigned}, nil
	}
	return v, nil
}

func (n *Primary) eval() (value, error) {
	switch {
	case n.Number != nil:
		return parseNumber(*n.Number)
	case n.Char != nil:
		c, err := parseChar(*n.Char)
		return value{n: c}, err
	case n.Ident != nil:
		// Identifiers left after macro replacement are zero.
		return value{}, nil
	case n.Sub != nil:
		return n.Sub.eval()
	}
	return value{}, errors.New("empty operand")
}

// parseNumber decodes an integer constant. A 'u' suffix, or a value too
// large for intmax_t, makes it unsigned.
func parseNumber(lit string) (value, error) {
	s := strings.TrimRight(lit, "uUlL")
	unsigned := strings.ContainsAny(lit[len(s):], "uU")
	var (
		u   uint64
		err error
	)
	switch {
	case len(s) > 2 && (s[1] == 'x' || s[1] == 'X'):
		u, err = strconv.ParseUint(s[2:], 16, 64)
	case len(s) > 1 && s[0] == '0':
		u, err = strconv.ParseUint(s[1:], 8, 64)
	default:
		u, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return value{}, fmt.Errorf("invalid integer constant %q", s)
	}
	return value{int64(u), unsigned || u > math.MaxInt64}, nil
}

func parseChar(s string) (int64, error) {
	body := s[1 : len(s)-1]
	if body[0] != '\\' {
		return int64(body[0]), nil
	}
	if len(body) < 2 {
		return 0, fmt.Errorf("invalid character constant %s", s)
	}
	switch c := body[1]; c {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case 'a':
		return 7, nil
	case 'b':
		return 8, nil
	case 'f':
		return 12, nil
	case 'v':
		return 11, nil
	case 'x':
		v, err := strconv.ParseUint(body[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid character constant %s", s)
		}
		return int64(v), nil
	case '0', '1', '2', '3', '4', '5', '6', '7':
		v, err := strconv.ParseUint(body[1:], 8, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid character constant %s", s)
		}
		return int64(v), nil
	default:
		return int64(c), nil
	}
}
