package macro

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/token"

	"github.com/rubiojr/rpp/diag"
	"github.com/rubiojr/rpp/scanner"
)

type warning struct {
	class diag.WarnClass
	msg   string
}

func newParser(strict bool) (*Parser, *[]warning) {
	var warns []warning
	p := &Parser{
		Strict:    strict,
		MaxParams: 8,
		Warn: func(class diag.WarnClass, pos token.Position, msg string) {
			warns = append(warns, warning{class, msg})
		},
	}
	return p, &warns
}

func parse(t *testing.T, p *Parser, src string) (*Definition, error) {
	t.Helper()
	sc, err := scanner.Scan(token.Position{Filename: "t.c", Line: 1, Column: 8}, src)
	require.NoError(t, err)
	return p.Parse(sc)
}

func TestParse_Replacement(t *testing.T) {
	tests := []struct {
		src    string
		params []string
		want   Replacement
	}{
		{
			src:    "ADD(a,b) ((a)+(b))",
			params: []string{"a", "b"},
			want: Replacement{
				Literal("("), Literal("("), Param(1), Literal(")"), Literal("+"),
				Literal("("), Param(2), Literal(")"), Literal(")"),
			},
		},
		{
			src:  "EMPTY",
			want: nil,
		},
		{
			src:  "SPACES   a    b   ",
			want: Replacement{Literal("a"), Space(), Literal("b")},
		},
		{
			src:  "X X + 1",
			want: Replacement{SelfRef("X"), Space(), Literal("+"), Space(), Literal("1")},
		},
		{
			src:    "STR(x) #x",
			params: []string{"x"},
			want:   Replacement{Stringize(1)},
		},
		{
			src:    "STR2(x) # x and x",
			params: []string{"x"},
			want:   Replacement{Stringize(1), Space(), Literal("and"), Space(), Param(1)},
		},
		{
			src:  "HASH #x",
			want: Replacement{Literal("#"), Literal("x")},
		},
		{
			src:    "CAT(a,b) a ## b",
			params: []string{"a", "b"},
			want:   Replacement{Param(1), Paste(), Param(2)},
		},
		{
			src:    "LOG(fmt, ...) printf(fmt, __VA_ARGS__)",
			params: []string{"fmt", VariadicName},
			want: Replacement{
				Literal("printf"), Literal("("), Param(1), Literal(","), Space(), Param(2), Literal(")"),
			},
		},
		{
			src:    "NAMED(args...) f(args)",
			params: []string{"args"},
			want:   Replacement{Literal("f"), Literal("("), Param(1), Literal(")")},
		},
		{
			src:  "C /* c */ a /* d */",
			want: Replacement{Literal("a")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, warns := newParser(false)
			d, err := parse(t, p, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.params, d.Params)
			if diff := cmp.Diff(tt.want, d.Replacement); diff != "" {
				t.Errorf("replacement mismatch (-want +got):\n%s", diff)
			}
			assert.Empty(t, *warns)
		})
	}
}

func TestParse_FunctionLikeShape(t *testing.T) {
	p, _ := newParser(false)

	d, err := parse(t, p, "F() 1")
	require.NoError(t, err)
	assert.True(t, d.FunctionLike)
	assert.Zero(t, d.ParamCount())
	assert.Equal(t, "()", d.Signature())

	d, err = parse(t, p, "G (x) x")
	require.NoError(t, err)
	assert.False(t, d.FunctionLike, "a space before '(' makes an object-like macro")
	assert.Equal(t, "(x) x", d.Replacement.Source(nil))

	d, err = parse(t, p, "V(a, ...) a __VA_ARGS__")
	require.NoError(t, err)
	assert.True(t, d.Variadic)
	assert.Equal(t, "V(a,...) a __VA_ARGS__", d.Source())

	d, err = parse(t, p, "N(rest...) rest")
	require.NoError(t, err)
	assert.True(t, d.Variadic)
	assert.Equal(t, "N(rest...) rest", d.Source())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		strict bool
		want   string
	}{
		{"no name", "", false, "no macro name given in #define directive"},
		{"numeric name", "3 x", false, "macro names must be identifiers"},
		{"defined", "defined 1", false, `"defined" cannot be used as a macro name`},
		{"va args name", "__VA_ARGS__ 1", false, "__VA_ARGS__ can only appear in the expansion of a variadic macro"},
		{"va args param", "F(__VA_ARGS__) 1", false, "__VA_ARGS__ can not be used as a parameter name"},
		{"va args body", "F(x) x __VA_ARGS__", false, "__VA_ARGS__ can only appear in the expansion of a variadic macro"},
		{"va args object body", "O __VA_ARGS__", false, "__VA_ARGS__ can only appear"},
		{"duplicate param", "F(a, a) a", false, `duplicate macro parameter "a"`},
		{"too many params", "F(a,b,c,d,e,f,g,h,i) 0", false, `too many parameters in macro "F" (limit 8)`},
		{"unclosed params", "F(a", false, "missing ')' in macro parameter list"},
		{"bad separator", "F(a b) a", false, `expected ',' or ')', found "b"`},
		{"bad param", "F(1) 1", false, `expected parameter name, found "1"`},
		{"ellipsis not last", "F(..., a) 1", false, `missing ')' after "..."`},
		{"stringize non-param", "S(x) #y", false, "'#' is not followed by a macro parameter"},
		{"stringize at end", "S(x) x #", false, "'#' is not followed by a macro parameter"},
		{"paste first", "P ## x", false, "'##' cannot appear at either end of a macro expansion"},
		{"paste last", "P x ##", false, "'##' cannot appear at either end of a macro expansion"},
		{"paste twice", "P x ## ## y", false, "'##' cannot follow another '##'"},
		{"strict named variadic", "F(a...) a", true, "not allowed in strict mode"},
		{"strict missing space", "X+1", true, "missing whitespace after the macro name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newParser(tt.strict)
			_, err := parse(t, p, tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			var de *diag.Error
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestParse_NonStrictMissingSpace(t *testing.T) {
	p, _ := newParser(false)
	d, err := parse(t, p, "X+1")
	require.NoError(t, err)
	assert.Equal(t, Replacement{Literal("+"), Literal("1")}, d.Replacement)
}

func TestParse_PasteWarning(t *testing.T) {
	p, warns := newParser(false)
	_, err := parse(t, p, "J(a,b,c) a ## b ## c")
	require.NoError(t, err)
	require.Len(t, *warns, 1)
	assert.Equal(t, diag.WarnPaste, (*warns)[0].class)
}

func TestDefine_IdenticalRedefinition(t *testing.T) {
	p, warns := newParser(false)
	tb := NewTable(0)

	first, err := parse(t, p, "ADD(a,b) ((a)+(b))")
	require.NoError(t, err)
	installed, err := p.Define(tb, first)
	require.NoError(t, err)

	// Whitespace runs and comments compare equal.
	again, err := parse(t, p, "ADD(a,b)   ((a)+(b)) /* same */")
	require.NoError(t, err)
	got, err := p.Define(tb, again)
	require.NoError(t, err)

	assert.Same(t, installed, got)
	assert.Empty(t, *warns)
	assert.Equal(t, 1, tb.Len())
}

func TestDefine_DivergentRedefinition(t *testing.T) {
	tests := []struct{ first, second string }{
		{"X 1", "X 2"},
		{"X a b", "X ab"},
		{"F(a) a", "F(b) b"},
		{"F(a) a", "F a"},
		{"F(a, ...) a", "F(a) a"},
	}
	for _, tt := range tests {
		t.Run(tt.first+" vs "+tt.second, func(t *testing.T) {
			p, warns := newParser(false)
			tb := NewTable(0)

			d1, err := parse(t, p, tt.first)
			require.NoError(t, err)
			_, err = p.Define(tb, d1)
			require.NoError(t, err)

			d2, err := parse(t, p, tt.second)
			require.NoError(t, err)
			got, err := p.Define(tb, d2)
			require.NoError(t, err)

			assert.Same(t, d2, got)
			assert.Same(t, d2, tb.Lookup(d2.Name))
			require.Len(t, *warns, 1)
			assert.Equal(t, diag.WarnRedefine, (*warns)[0].class)
			assert.Contains(t, (*warns)[0].msg, "redefined (previous definition at t.c:1)")
		})
	}
}

func TestDefine_Protected(t *testing.T) {
	p, _ := newParser(false)
	tb := NewTable(0)
	tb.DefinePrivileged(&Definition{Name: "__FILE__", Kind: Protected})

	d, err := parse(t, p, "__FILE__ x")
	require.NoError(t, err)
	_, err = p.Define(tb, d)
	assert.ErrorContains(t, err, "cannot redefine protected macro")
}

func TestDefinition_SameAs(t *testing.T) {
	a := &Definition{Name: "F", FunctionLike: true, Params: []string{"x"}, Replacement: Replacement{Param(1)}}
	b := &Definition{Name: "F", FunctionLike: true, Params: []string{"x"}, Replacement: Replacement{Param(1)}}
	assert.True(t, a.SameAs(b))

	b.Replacement = Replacement{Stringize(1)}
	assert.False(t, a.SameAs(b))
}
