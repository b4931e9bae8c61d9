package pp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	for k := KwNone + 1; k < numKeywords; k++ {
		assert.Equal(t, k, Classify(k.String()), k.String())
	}
	for _, name := range []string{"", "defin", "defines", "Define", "elseif", "import", "x"} {
		assert.Equal(t, KwNone, Classify(name), name)
	}
}

func TestKeywordHash_Unique(t *testing.T) {
	seen := map[uint8]Keyword{}
	for k := KwNone + 1; k < numKeywords; k++ {
		h := keywordHash(k.String())
		prev, dup := seen[h]
		assert.False(t, dup, "%s collides with %s", k, prev)
		seen[h] = k
	}
}

func TestKeyword_Conditional(t *testing.T) {
	var cond []Keyword
	for k := KwNone + 1; k < numKeywords; k++ {
		if k.Conditional() {
			cond = append(cond, k)
		}
	}
	assert.Equal(t, []Keyword{KwIf, KwIfdef, KwIfndef, KwElif, KwElse, KwEndif}, cond)
}
