// Package macro defines installed macros, the symbol table that holds them
// and the parser that builds them from #define lines.
//
// A replacement list is stored as a sequence of Items rather than as text
// with embedded marker bytes. The expansion engine walks the items:
//
//	Literal   copy Text
//	Space     copy one blank
//	Param     substitute argument Index (1-based), fully expanded
//	Stringize substitute argument Index (1-based) as a string literal
//	Paste     glue the tokens on either side into one token
//	SelfRef   copy Text and never expand it again
package macro

import (
	"fmt"
	"strconv"
	"strings"

	"modernc.org/token"
)

// ItemKind tags one element of a replacement list.
type ItemKind uint8

const (
	ItemLiteral ItemKind = iota + 1
	ItemSpace
	ItemParam
	ItemStringize
	ItemPaste
	ItemSelfRef
)

func (k ItemKind) String() string {
	switch k {
	case ItemLiteral:
		return "Literal"
	case ItemSpace:
		return "Space"
	case ItemParam:
		return "Param"
	case ItemStringize:
		return "Stringize"
	case ItemPaste:
		return "Paste"
	case ItemSelfRef:
		return "SelfRef"
	}
	return fmt.Sprintf("ItemKind(%d)", int(k))
}

// Item is one element of a replacement list.
type Item struct {
	Kind  ItemKind
	Text  string // Literal and SelfRef
	Index int    // Param and Stringize, 1-based
}

func Literal(text string) Item { return Item{Kind: ItemLiteral, Text: text} }
func SelfRef(text string) Item { return Item{Kind: ItemSelfRef, Text: text} }
func Param(index int) Item     { return Item{Kind: ItemParam, Index: index} }
func Stringize(index int) Item { return Item{Kind: ItemStringize, Index: index} }
func Space() Item              { return Item{Kind: ItemSpace} }
func Paste() Item              { return Item{Kind: ItemPaste} }

func (it Item) String() string {
	switch it.Kind {
	case ItemLiteral:
		return strconv.Quote(it.Text)
	case ItemSpace:
		return "Space"
	case ItemParam:
		return fmt.Sprintf("Param(%d)", it.Index)
	case ItemStringize:
		return fmt.Sprintf("Stringize(%d)", it.Index)
	case ItemPaste:
		return "Paste"
	case ItemSelfRef:
		return fmt.Sprintf("SelfRef(%s)", it.Text)
	}
	return it.Kind.String()
}

// Replacement is an encoded macro body.
type Replacement []Item

// Equal reports whether two replacement lists are identical.
func (r Replacement) Equal(o Replacement) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i] != o[i] {
			return false
		}
	}
	return true
}

// Source renders r back to #define syntax using params for the names of
// formal parameters.
func (r Replacement) Source(params []string) string {
	name := func(i int) string {
		if i >= 1 && i <= len(params) {
			return params[i-1]
		}
		return "$" + strconv.Itoa(i)
	}
	var b strings.Builder
	for _, it := range r {
		switch it.Kind {
		case ItemLiteral, ItemSelfRef:
			b.WriteString(it.Text)
		case ItemSpace:
			b.WriteByte(' ')
		case ItemParam:
			b.WriteString(name(it.Index))
		case ItemStringize:
			b.WriteString("#" + name(it.Index))
		case ItemPaste:
			b.WriteString(" ## ")
		}
	}
	return b.String()
}

// Kind distinguishes user macros from the ones the preprocessor installs
// itself.
type Kind uint8

const (
	// User macros come from #define or -D.
	User Kind = iota
	// Predefined macros may be redefined or undefined by directives.
	Predefined
	// Protected macros change only through the privileged API.
	Protected
	// Extension macros are vendor predefinitions hidden in strict mode.
	Extension
)

func (k Kind) String() string {
	switch k {
	case User:
		return "user"
	case Predefined:
		return "predefined"
	case Protected:
		return "protected"
	case Extension:
		return "extension"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// VariadicName is the formal parameter name of an anonymous '...'.
const VariadicName = "__VA_ARGS__"

// Definition is one installed macro. FunctionLike separates "#define F()"
// from "#define F", both of which have no parameters.
type Definition struct {
	Name         string
	FunctionLike bool
	Variadic     bool
	Params       []string
	Replacement  Replacement
	DefinedAt    token.Position
	Kind         Kind
}

// ParamCount returns the number of formals, the variadic one included.
func (d *Definition) ParamCount() int { return len(d.Params) }

// Signature is the canonical parameter string compared on redefinition.
// Object-like macros have an empty signature; function-like ones always
// carry parentheses.
func (d *Definition) Signature() string {
	if !d.FunctionLike {
		return ""
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range d.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		if d.Variadic && i == len(d.Params)-1 && p == VariadicName {
			b.WriteString("...")
			continue
		}
		b.WriteString(p)
		if d.Variadic && i == len(d.Params)-1 {
			b.WriteString("...")
		}
	}
	b.WriteByte(')')
	return b.String()
}

// SameAs reports whether o would be an identical redefinition of d.
func (d *Definition) SameAs(o *Definition) bool {
	return d.Name == o.Name &&
		d.FunctionLike == o.FunctionLike &&
		d.Variadic == o.Variadic &&
		d.Signature() == o.Signature() &&
		d.Replacement.Equal(o.Replacement)
}

// Source renders the definition as the text following "#define ".
func (d *Definition) Source() string {
	body := d.Replacement.Source(d.Params)
	if body == "" {
		return d.Name + d.Signature()
	}
	return d.Name + d.Signature() + " " + body
}

// IsFormal returns the 1-based index of name among the formals, or 0.
func (d *Definition) IsFormal(name string) int {
	for i, p := range d.Params {
		if p == name {
			return i + 1
		}
	}
	return 0
}
