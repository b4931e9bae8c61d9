package pp

import "fmt"

// Keyword identifies a directive.
type Keyword uint8

const (
	KwNone Keyword = iota
	KwDefine
	KwUndef
	KwIf
	KwIfdef
	KwIfndef
	KwElif
	KwElse
	KwEndif
	KwInclude
	KwLine
	KwPragma
	KwError
	KwWarning
	KwVersion
	KwExtension
	numKeywords
)

var keywordNames = [numKeywords]string{
	KwDefine:    "define",
	KwUndef:     "undef",
	KwIf:        "if",
	KwIfdef:     "ifdef",
	KwIfndef:    "ifndef",
	KwElif:      "elif",
	KwElse:      "else",
	KwEndif:     "endif",
	KwInclude:   "include",
	KwLine:      "line",
	KwPragma:    "pragma",
	KwError:     "error",
	KwWarning:   "warning",
	KwVersion:   "version",
	KwExtension: "extension",
}

func (k Keyword) String() string {
	if k > KwNone && k < numKeywords {
		return keywordNames[k]
	}
	return fmt.Sprintf("keyword(%d)", int(k))
}

// Conditional reports whether k is one of the six directives processed
// inside skipped blocks.
func (k Keyword) Conditional() bool {
	switch k {
	case KwIf, KwIfdef, KwIfndef, KwElif, KwElse, KwEndif:
		return true
	}
	return false
}

// keywordHash mixes the length with the first and middle bytes. It is
// collision free over the keyword set, which init verifies.
func keywordHash(s string) uint8 {
	return uint8((len(s) << 4) ^ int(s[0]) ^ 7*int(s[len(s)/2]))
}

var keywordByHash [256]Keyword

func init() {
	for k := KwNone + 1; k < numKeywords; k++ {
		h := keywordHash(keywordNames[k])
		if prev := keywordByHash[h]; prev != KwNone {
			panic(fmt.Sprintf("pp: directive keywords %q and %q share hash %d", prev, k, h))
		}
		keywordByHash[h] = k
	}
}

// Classify maps a directive name to its keyword, or KwNone. The hash picks
// the only candidate; the string comparison rules out collisions with
// unknown names.
func Classify(name string) Keyword {
	if name == "" {
		return KwNone
	}
	k := keywordByHash[keywordHash(name)]
	if k == KwNone || keywordNames[k] != name {
		return KwNone
	}
	return k
}
