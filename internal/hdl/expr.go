package hdl

import (
	"strconv"
	"strings"
)

// Expr is an evaluable expression tree. Continuous assignments, slice/concat
// RHS expressions, statement RHS expressions, case labels, and instantiation
// port connections are all parsed once into an Expr, then interpreted
// against a SignalEnvironment (see eval.go) — replacing the textual
// substitute-and-host-eval approach of a dynamic reference implementation.
type Expr interface {
	isExpr()
}

// IntLit is a literal integer, optionally sized (Width > 0) as produced by
// `W'bBITS` / `W'hHEX` / `W'dDEC` syntax. Width == 0 means "unsized" (a bare
// decimal constant); NaturalWidth counts an unsized literal as 32 bits.
type IntLit struct {
	Value int64
	Width int
}

// NameExpr references a whole signal (or a bit alias `name[i]` captured
// verbatim, which the environment resolves directly).
type NameExpr struct {
	Name string
}

// IndexExpr is `Name[High]` (bit-select or memory read, when Low == nil) or
// `Name[High:Low]` (a slice, when Low != nil). The parser accepts any
// expression for High and Low; NaturalWidth only knows a slice's width when
// both bounds are *IntLit, and otherwise counts it as 1 bit.
type IndexExpr struct {
	Name string
	High Expr
	Low  Expr
}

// ConcatExpr is `{e1, e2, ...}`, packed MSB-first.
type ConcatExpr struct {
	Parts []Expr
}

// ReplExpr is `N{e}`: N copies of e packed by e's natural width.
type ReplExpr struct {
	Count int
	Elem  Expr
}

// TernaryExpr is `cond ? then : else`.
type TernaryExpr struct {
	Cond, Then, Else Expr
}

// UnaryExpr is a prefix operator: "~", "!", "-".
type UnaryExpr struct {
	Op string
	X  Expr
}

// BinaryExpr is an infix operator.
type BinaryExpr struct {
	Op   string
	L, R Expr
}

func (*IntLit) isExpr()     {}
func (*NameExpr) isExpr()   {}
func (*IndexExpr) isExpr()  {}
func (*ConcatExpr) isExpr() {}
func (*ReplExpr) isExpr()   {}
func (*TernaryExpr) isExpr() {}
func (*UnaryExpr) isExpr()  {}
func (*BinaryExpr) isExpr() {}

// ===========================================================================
// Tokenizer
// ===========================================================================

type tokKind uint8

const (
	tEOF tokKind = iota
	tIdent
	tNumber
	tSized
	tPunct
)

type token struct {
	kind tokKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token

	i := 0
	n := len(s)

	multi := []string{"&&", "||", "==", "!=", "<=", ">=", "<<", ">>"}

	for i < n {
		c := s[i]

		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < n && (isIdentByte(s[i]) || s[i] == '\'') {
				i++
			}

			word := s[start:i]
			if strings.ContainsRune(word, '\'') {
				toks = append(toks, token{tSized, word})
			} else {
				toks = append(toks, token{tNumber, word})
			}
		case isIdentStart(c):
			start := i
			for i < n && isIdentByte(s[i]) {
				i++
			}

			toks = append(toks, token{tIdent, s[start:i]})
		case strings.ContainsRune("()[]{},:?", rune(c)):
			toks = append(toks, token{tPunct, string(c)})
			i++
		default:
			matched := ""

			for _, m := range multi {
				if strings.HasPrefix(s[i:], m) {
					matched = m
					break
				}
			}

			if matched != "" {
				toks = append(toks, token{tPunct, matched})
				i += len(matched)
			} else if strings.ContainsRune("&|^~!+-*/%<>=", rune(c)) {
				toks = append(toks, token{tPunct, string(c)})
				i++
			} else {
				return nil, newErr(BadExpression, s, "unexpected character %q", string(c))
			}
		}
	}

	toks = append(toks, token{tEOF, ""})

	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ===========================================================================
// Recursive-descent / precedence-climbing parser
// ===========================================================================

type exprParser struct {
	toks []token
	pos  int
	src  string
}

// ParseExpr parses a single expression string into an Expr tree.
func ParseExpr(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, newErr(BadExpression, s, "empty expression")
	}

	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}

	p := &exprParser{toks: toks, src: s}

	e, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if p.cur().kind != tEOF {
		return nil, newErr(BadExpression, s, "unexpected trailing input %q", p.cur().text)
	}

	return e, nil
}

func (p *exprParser) cur() token  { return p.toks[p.pos] }
func (p *exprParser) advance()    { p.pos++ }

func (p *exprParser) expectPunct(text string) error {
	if p.cur().kind != tPunct || p.cur().text != text {
		return newErr(BadExpression, p.src, "expected %q", text)
	}

	p.advance()

	return nil
}

func (p *exprParser) parseTernary() (Expr, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}

	if p.cur().kind == tPunct && p.cur().text == "?" {
		p.advance()

		then, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}

		els, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		return &TernaryExpr{Cond: cond, Then: then, Else: els}, nil
	}

	return cond, nil
}

// Binary operator precedence levels, lowest to highest.
var precLevels = [][]string{
	{"||"},
	{"&&"},
	{"|"},
	{"^"},
	{"&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *exprParser) parseBinary(level int) (Expr, error) {
	if level >= len(precLevels) {
		return p.parseUnary()
	}

	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}

	for p.cur().kind == tPunct && containsOp(precLevels[level], p.cur().text) {
		op := p.cur().text
		p.advance()

		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}

		left = &BinaryExpr{Op: op, L: left, R: right}
	}

	return left, nil
}

func containsOp(ops []string, s string) bool {
	for _, o := range ops {
		if o == s {
			return true
		}
	}

	return false
}

func (p *exprParser) parseUnary() (Expr, error) {
	if p.cur().kind == tPunct && (p.cur().text == "~" || p.cur().text == "!" || p.cur().text == "-") {
		op := p.cur().text
		p.advance()

		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &UnaryExpr{Op: op, X: x}, nil
	}

	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (Expr, error) {
	tok := p.cur()

	switch {
	case tok.kind == tPunct && tok.text == "(":
		p.advance()

		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}

		return e, nil
	case tok.kind == tPunct && tok.text == "{":
		return p.parseConcat()
	case tok.kind == tSized:
		p.advance()

		return parseSizedLiteral(tok.text)
	case tok.kind == tNumber:
		p.advance()

		v, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, newErr(BadExpression, tok.text, "malformed number")
		}

		return &IntLit{Value: v, Width: 0}, nil
	case tok.kind == tIdent:
		return p.parseIdentOrReplication()
	default:
		return nil, newErr(BadExpression, p.src, "unexpected token %q", tok.text)
	}
}

// parseIdentOrReplication parses an identifier, optionally followed by a
// bit-select `[e]` or a slice `[e:e]`. Replication `N{...}` is not handled
// here: it is recognized inside parseConcat.
func (p *exprParser) parseIdentOrReplication() (Expr, error) {
	name := p.cur().text
	p.advance()

	if p.cur().kind != tPunct || p.cur().text != "[" {
		return &NameExpr{Name: name}, nil
	}

	p.advance()

	high, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if p.cur().kind == tPunct && p.cur().text == ":" {
		p.advance()

		low, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}

		return &IndexExpr{Name: name, High: high, Low: low}, nil
	}

	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}

	return &IndexExpr{Name: name, High: high, Low: nil}, nil
}

func (p *exprParser) parseConcat() (Expr, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}

	var parts []Expr

	for {
		// Replication: NUMBER '{' expr '}'
		if p.cur().kind == tNumber {
			save := p.pos
			countText := p.cur().text
			p.advance()

			if p.cur().kind == tPunct && p.cur().text == "{" {
				count, err := strconv.Atoi(countText)
				if err != nil {
					return nil, newErr(BadExpression, countText, "malformed replication count")
				}

				p.advance()

				elem, err := p.parseTernary()
				if err != nil {
					return nil, err
				}

				if err := p.expectPunct("}"); err != nil {
					return nil, err
				}

				parts = append(parts, &ReplExpr{Count: count, Elem: elem})

				if p.cur().kind == tPunct && p.cur().text == "," {
					p.advance()
					continue
				}

				break
			}

			p.pos = save
		}

		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		parts = append(parts, e)

		if p.cur().kind == tPunct && p.cur().text == "," {
			p.advance()
			continue
		}

		break
	}

	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}

	return &ConcatExpr{Parts: parts}, nil
}

// parseSizedLiteral handles `W'bBITS`, `W'hHEX`, `W'dDEC` (case-insensitive,
// `_` permitted as a digit-group separator, `x`/`z` read as 0).
func parseSizedLiteral(text string) (Expr, error) {
	q := strings.IndexByte(text, '\'')
	if q < 0 {
		return nil, newErr(BadExpression, text, "malformed sized literal")
	}

	widthPart := text[:q]

	rest := text[q+1:]
	if rest == "" {
		return nil, newErr(BadExpression, text, "malformed sized literal")
	}

	base := rest[0]
	digits := strings.ReplaceAll(rest[1:], "_", "")
	digits = strings.NewReplacer("x", "0", "X", "0", "z", "0", "Z", "0").Replace(digits)

	width := 0

	if widthPart != "" {
		w, err := strconv.Atoi(widthPart)
		if err != nil {
			return nil, newErr(BadExpression, text, "malformed literal width")
		}

		width = w
	}

	var (
		v   int64
		err error
	)

	switch base {
	case 'b', 'B':
		v, err = strconv.ParseInt(digits, 2, 64)
	case 'h', 'H':
		v, err = strconv.ParseInt(digits, 16, 64)
	case 'd', 'D':
		v, err = strconv.ParseInt(digits, 10, 64)
	case 'o', 'O':
		v, err = strconv.ParseInt(digits, 8, 64)
	default:
		return nil, newErr(BadExpression, text, "unknown literal base %q", string(base))
	}

	if err != nil {
		return nil, newErr(BadExpression, text, "malformed literal digits %q", digits)
	}

	if width > 0 {
		v = maskTo(v, width)
	}

	return &IntLit{Value: v, Width: width}, nil
}

func maskTo(v int64, width int) int64 {
	if width <= 0 || width >= 64 {
		return v
	}

	return v & ((int64(1) << uint(width)) - 1)
}
