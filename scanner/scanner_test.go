package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/token"
)

func scan(t *testing.T, text string) *Scanner {
	t.Helper()
	sc, err := Scan(token.Position{Filename: "t.c", Line: 1, Column: 1}, text)
	require.NoError(t, err)
	return sc
}

func kinds(sc *Scanner) []Kind {
	var ks []Kind
	for {
		tok := sc.Next()
		if tok.Kind == EOL {
			return ks
		}
		ks = append(ks, tok.Kind)
	}
}

func TestScan_Kinds(t *testing.T) {
	sc := scan(t, `#define F(x, ...) "s" 'c' 0x1fUL 1.5e+3 ## @`)
	assert.Equal(t, []Kind{
		Punct, Ident, Space, Ident, Punct, Ident, Punct, Space, Punct, Punct,
		Space, String, Space, Char, Space, Number, Space, Number, Space, Punct, Space, Other,
	}, kinds(sc))
}

func TestScan_Ops(t *testing.T) {
	sc := scan(t, "# ## ... ( ) , +")
	var ops []Op
	for tok := sc.NextNonSpace(); tok.Kind != EOL; tok = sc.NextNonSpace() {
		ops = append(ops, tok.Op)
	}
	assert.Equal(t, []Op{OpHash, OpPaste, OpEllipsis, OpLParen, OpRParen, OpComma, OpOther}, ops)
}

func TestScan_CommentsCollapse(t *testing.T) {
	sc := scan(t, "a /* one */ // two")
	assert.Equal(t, "a", sc.Next().Text)
	sp := sc.Next()
	assert.Equal(t, Space, sp.Kind)
	assert.Equal(t, " /* one */ // two", sp.Text)
	assert.Equal(t, EOL, sc.Next().Kind)
}

func TestScan_AdjacentParen(t *testing.T) {
	fn := scan(t, "F(x)")
	fn.Next()
	assert.True(t, fn.Next().Is(OpLParen))

	obj := scan(t, "F (x)")
	obj.Next()
	assert.Equal(t, Space, obj.Next().Kind)
}

func TestScan_Positions(t *testing.T) {
	sc, err := Scan(token.Position{Filename: "p.h", Offset: 100, Line: 7, Column: 1}, "#  undef  X")
	require.NoError(t, err)
	sc.NextNonSpace()
	kw := sc.NextNonSpace()
	assert.Equal(t, "undef", kw.Text)
	assert.Equal(t, 7, kw.Pos.Line)
	assert.Equal(t, 4, kw.Pos.Column)
	assert.Equal(t, 103, kw.Pos.Offset)
	assert.Equal(t, "p.h", kw.Pos.Filename)

	x := sc.NextNonSpace()
	assert.Equal(t, 11, x.Pos.Column)
	assert.Equal(t, 12, sc.Next().Pos.Column)
}

func TestScanner_PushBackAndPeek(t *testing.T) {
	sc := scan(t, "a b")
	a := sc.Next()
	sc.PushBack()
	assert.Equal(t, a, sc.Next())
	assert.Equal(t, Space, sc.Peek().Kind)
	assert.Equal(t, "b", sc.NextNonSpace().Text)

	// Pushing back the end of line makes it come back again.
	assert.Equal(t, EOL, sc.Next().Kind)
	sc.PushBack()
	assert.Equal(t, EOL, sc.Next().Kind)
	assert.Equal(t, EOL, sc.Next().Kind)
}

func TestScanner_RestAndAtEOL(t *testing.T) {
	sc := scan(t, "x   a  +  b   ")
	sc.Next()
	assert.False(t, sc.AtEOL())
	rest := sc.Rest()
	assert.Equal(t, "a + b", Text(rest))
	assert.True(t, sc.AtEOL())
	assert.Nil(t, sc.Rest())

	blank := scan(t, "   ")
	assert.True(t, blank.AtEOL())
}

func TestIsIdent(t *testing.T) {
	assert.True(t, IsIdentStart('_'))
	assert.False(t, IsIdentStart('1'))
	assert.True(t, IsIdentPart('1'))
	assert.False(t, IsIdentPart('-'))
}
