package pp

import (
	"strconv"

	"modernc.org/token"

	"github.com/rubiojr/rpp/diag"
	"github.com/rubiojr/rpp/expr"
	"github.com/rubiojr/rpp/macro"
	"github.com/rubiojr/rpp/scanner"
)

// maxResolveDepth bounds object-like macro replacement inside #if.
const maxResolveDepth = 64

// ExprEvaluator evaluates conditions with the expr package.
type ExprEvaluator struct{}

func (ExprEvaluator) Evaluate(toks []scanner.Token) (int64, error) {
	return expr.Eval(scanner.Text(toks))
}

// test evaluates the condition of #if or #elif. A broken condition is
// reported and counts as false.
func (c *Context) test(pos token.Position, directive string, toks []scanner.Token) bool {
	if len(toks) == 0 {
		c.Diag.Errorf(pos, "#%s with no expression", directive)
		return false
	}
	resolved, err := c.resolve(toks, nil, 0)
	if err != nil {
		c.Diag.Report(pos, err)
		return false
	}
	v, err := c.Eval.Evaluate(resolved)
	if err != nil {
		c.Diag.Errorf(pos, "#%s: %v", directive, err)
		return false
	}
	return v != 0
}

func number(v int64, pos token.Position) scanner.Token {
	return scanner.Token{Kind: scanner.Number, Text: strconv.FormatInt(v, 10), Pos: pos}
}

func space(pos token.Position) scanner.Token {
	return scanner.Token{Kind: scanner.Space, Text: " ", Pos: pos}
}

// resolve replaces "defined NAME", "defined(NAME)" and object-like macro
// names. Macros in active are being replaced already and stay as
// identifiers, which evaluate to zero.
func (c *Context) resolve(toks []scanner.Token, active map[string]bool, depth int) ([]scanner.Token, error) {
	if depth > maxResolveDepth {
		return nil, diag.Errorf(toks[0].Pos, "macro replacement in #if nested too deeply")
	}
	out := make([]scanner.Token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Kind != scanner.Ident {
			out = append(out, t)
			continue
		}
		if t.Text == "defined" {
			name, next, err := definedOperand(toks, i+1)
			if err != nil {
				return nil, err
			}
			out = append(out, number(b2i(c.Table.Defined(name)), t.Pos))
			i = next - 1
			continue
		}
		d := c.Table.Lookup(t.Text)
		if d == nil || active[t.Text] {
			out = append(out, t)
			continue
		}
		if d.FunctionLike {
			return nil, diag.Errorf(t.Pos, "function-like macro \"%s\" cannot be used in #if", t.Text)
		}
		body, err := c.bodyTokens(d, t.Pos)
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			continue
		}
		inner := make(map[string]bool, len(active)+1)
		for k := range active {
			inner[k] = true
		}
		inner[d.Name] = true
		body, err = c.resolve(body, inner, depth+1)
		if err != nil {
			return nil, err
		}
		// Keep the body from gluing onto its neighbours.
		out = append(out, space(t.Pos))
		out = append(out, body...)
		out = append(out, space(t.Pos))
	}
	return out, nil
}

// definedOperand reads the operand of "defined" starting at toks[i] and
// returns the name and the index after the operand.
func definedOperand(toks []scanner.Token, i int) (string, int, error) {
	skip := func(i int) int {
		for i < len(toks) && toks[i].Kind == scanner.Space {
			i++
		}
		return i
	}
	i = skip(i)
	if i < len(toks) && toks[i].Kind == scanner.Ident {
		return toks[i].Text, i + 1, nil
	}
	if i < len(toks) && toks[i].Is(scanner.OpLParen) {
		j := skip(i + 1)
		if j < len(toks) && toks[j].Kind == scanner.Ident {
			k := skip(j + 1)
			if k < len(toks) && toks[k].Is(scanner.OpRParen) {
				return toks[j].Text, k + 1, nil
			}
			return "", 0, diag.Errorf(toks[j].Pos, "missing ')' after \"defined\"")
		}
	}
	pos := toks[len(toks)-1].Pos
	if i < len(toks) {
		pos = toks[i].Pos
	}
	return "", 0, diag.Errorf(pos, "operator \"defined\" requires an identifier")
}

// bodyTokens re-scans the replacement list of an object-like macro.
func (c *Context) bodyTokens(d *macro.Definition, at token.Position) ([]scanner.Token, error) {
	src := d.Replacement.Source(nil)
	if src == "" {
		return nil, nil
	}
	sc, err := scanner.Scan(at, src)
	if err != nil {
		return nil, err
	}
	toks := sc.Rest()
	// Positions point at the use, not at the definition.
	for i := range toks {
		toks[i].Pos = at
	}
	return toks, nil
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
