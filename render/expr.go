//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package render

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// The expression language deliberately executes no code: attribute and index
// access, literals, comparisons and boolean logic only.

// UndefinedError marks lookups that permissive rendering turns into an
// empty string. Strict rendering surfaces it to the caller.
type UndefinedError struct {
	What string
}

// Error implements the error interface.
func (e *UndefinedError) Error() string {
	return e.What + " is undefined"
}

// Eval evaluates a single expression against the context. Undefined names
// and attributes return an *UndefinedError.
func Eval(expr string, ctx Context) (any, error) {
	p := &parser{src: expr}
	p.next()
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected %q", p.tok.text)
	}
	return node.eval(ctx)
}

// Truthy reports whether a value counts as true in boolean contexts:
// nil, false, zero, empty strings and empty containers are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

// --- AST ---

type exprNode interface {
	eval(ctx Context) (any, error)
}

type literalNode struct {
	value any
}

func (n *literalNode) eval(Context) (any, error) { return n.value, nil }

type identNode struct {
	name string
}

func (n *identNode) eval(ctx Context) (any, error) {
	if v, ok := ctx[n.name]; ok {
		return v, nil
	}
	return nil, &UndefinedError{What: fmt.Sprintf("%q", n.name)}
}

type attrNode struct {
	target exprNode
	name   string
}

func (n *attrNode) eval(ctx Context) (any, error) {
	target, err := n.target.eval(ctx)
	if err != nil {
		return nil, err
	}
	return lookupKey(target, n.name)
}

type indexNode struct {
	target exprNode
	index  exprNode
}

func (n *indexNode) eval(ctx Context) (any, error) {
	target, err := n.target.eval(ctx)
	if err != nil {
		return nil, err
	}
	index, err := n.index.eval(ctx)
	if err != nil {
		return nil, err
	}
	switch key := index.(type) {
	case string:
		return lookupKey(target, key)
	default:
		f, ok := toFloat(index)
		if !ok {
			return nil, fmt.Errorf("index must be an integer or string, got %T", index)
		}
		return lookupIndex(target, int(f))
	}
}

type unaryNode struct {
	op      tokenKind
	operand exprNode
}

func (n *unaryNode) eval(ctx Context) (any, error) {
	v, err := n.operand.eval(ctx)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case tokenNot:
		return !Truthy(v), nil
	case tokenMinus:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return -f, nil
	}
	return nil, fmt.Errorf("unsupported unary operator")
}

type compareNode struct {
	op          tokenKind
	left, right exprNode
}

func (n *compareNode) eval(ctx Context) (any, error) {
	left, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case tokenEq:
		return looseEqual(left, right), nil
	case tokenNe:
		return !looseEqual(left, right), nil
	}

	// Ordered comparisons work on number pairs and string pairs.
	if lf, ok := toFloat(left); ok {
		rf, ok := toFloat(right)
		if !ok {
			return nil, fmt.Errorf("cannot compare number with %T", right)
		}
		return compareOrdered(n.op, lf < rf, lf == rf), nil
	}
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return nil, fmt.Errorf("cannot compare string with %T", right)
		}
		return compareOrdered(n.op, ls < rs, ls == rs), nil
	}
	return nil, fmt.Errorf("cannot order %T values", left)
}

func compareOrdered(op tokenKind, less, equal bool) bool {
	switch op {
	case tokenLt:
		return less
	case tokenLe:
		return less || equal
	case tokenGt:
		return !less && !equal
	case tokenGe:
		return !less
	}
	return false
}

type logicalNode struct {
	op          tokenKind
	left, right exprNode
}

// eval short-circuits and yields the deciding operand value, so
// {{ name || "anonymous" }} works as a default.
func (n *logicalNode) eval(ctx Context) (any, error) {
	left, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case tokenAnd:
		if !Truthy(left) {
			return left, nil
		}
	case tokenOr:
		if Truthy(left) {
			return left, nil
		}
	}
	return n.right.eval(ctx)
}

// --- value helpers ---

// lookupKey resolves map access for both attribute and ["key"] syntax.
func lookupKey(target any, key string) (any, error) {
	switch t := target.(type) {
	case map[string]any:
		if v, ok := t[key]; ok {
			return v, nil
		}
		return nil, &UndefinedError{What: fmt.Sprintf("key %q", key)}
	case Context:
		if v, ok := t[key]; ok {
			return v, nil
		}
		return nil, &UndefinedError{What: fmt.Sprintf("key %q", key)}
	case nil:
		return nil, &UndefinedError{What: fmt.Sprintf("key %q", key)}
	}

	// Other string-keyed map kinds resolve through reflection.
	rv := reflect.ValueOf(target)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		v := rv.MapIndex(reflect.ValueOf(key))
		if v.IsValid() {
			return v.Interface(), nil
		}
		return nil, &UndefinedError{What: fmt.Sprintf("key %q", key)}
	}
	return nil, fmt.Errorf("cannot access %q on %T", key, target)
}

// lookupIndex resolves [int] access on lists. Negative indexes count from
// the end.
func lookupIndex(target any, i int) (any, error) {
	var list []any
	switch t := target.(type) {
	case []any:
		list = t
	case nil:
		return nil, &UndefinedError{What: fmt.Sprintf("index %d", i)}
	default:
		rv := reflect.ValueOf(target)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("cannot index %T", target)
		}
		if i < 0 {
			i += rv.Len()
		}
		if i < 0 || i >= rv.Len() {
			return nil, &UndefinedError{What: fmt.Sprintf("index %d", i)}
		}
		return rv.Index(i).Interface(), nil
	}
	if i < 0 {
		i += len(list)
	}
	if i < 0 || i >= len(list) {
		return nil, &UndefinedError{What: fmt.Sprintf("index %d", i)}
	}
	return list[i], nil
}

// looseEqual compares values with numeric unification, so 3 == 3.0.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// toFloat unifies the numeric kinds that appear after JSON decoding and in
// native settings maps.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

// --- lexer ---

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenTrue
	tokenFalse
	tokenNull
	tokenDot
	tokenLBracket
	tokenRBracket
	tokenLParen
	tokenRParen
	tokenEq
	tokenNe
	tokenLt
	tokenLe
	tokenGt
	tokenGe
	tokenAnd
	tokenOr
	tokenNot
	tokenMinus
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

type parser struct {
	src string
	pos int
	tok token
	err error
}

// next advances to the following token. Lexing errors are sticky in p.err.
func (p *parser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokenEOF}
		return
	}

	c := p.src[p.pos]
	switch {
	case c == '.':
		p.pos++
		p.tok = token{kind: tokenDot, text: "."}
	case c == '[':
		p.pos++
		p.tok = token{kind: tokenLBracket, text: "["}
	case c == ']':
		p.pos++
		p.tok = token{kind: tokenRBracket, text: "]"}
	case c == '(':
		p.pos++
		p.tok = token{kind: tokenLParen, text: "("}
	case c == ')':
		p.pos++
		p.tok = token{kind: tokenRParen, text: ")"}
	case c == '-':
		p.pos++
		p.tok = token{kind: tokenMinus, text: "-"}
	case c == '!':
		if p.peekAt(1) == '=' {
			p.pos += 2
			p.tok = token{kind: tokenNe, text: "!="}
		} else {
			p.pos++
			p.tok = token{kind: tokenNot, text: "!"}
		}
	case c == '=':
		if p.peekAt(1) == '=' {
			p.pos += 2
			p.tok = token{kind: tokenEq, text: "=="}
		} else {
			p.fail("unexpected character '='")
		}
	case c == '<':
		if p.peekAt(1) == '=' {
			p.pos += 2
			p.tok = token{kind: tokenLe, text: "<="}
		} else {
			p.pos++
			p.tok = token{kind: tokenLt, text: "<"}
		}
	case c == '>':
		if p.peekAt(1) == '=' {
			p.pos += 2
			p.tok = token{kind: tokenGe, text: ">="}
		} else {
			p.pos++
			p.tok = token{kind: tokenGt, text: ">"}
		}
	case c == '&':
		if p.peekAt(1) == '&' {
			p.pos += 2
			p.tok = token{kind: tokenAnd, text: "&&"}
		} else {
			p.fail("unexpected character '&'")
		}
	case c == '|':
		if p.peekAt(1) == '|' {
			p.pos += 2
			p.tok = token{kind: tokenOr, text: "||"}
		} else {
			p.fail("unexpected character '|'")
		}
	case c == '"' || c == '\'':
		p.lexString(c)
	case c >= '0' && c <= '9':
		p.lexNumber()
	case isIdentStart(c):
		p.lexIdent()
	default:
		p.fail(fmt.Sprintf("unexpected character %q", string(c)))
	}
}

func (p *parser) peekAt(offset int) byte {
	if p.pos+offset < len(p.src) {
		return p.src[p.pos+offset]
	}
	return 0
}

func (p *parser) fail(msg string) {
	if p.err == nil {
		p.err = fmt.Errorf("%s", msg)
	}
	p.tok = token{kind: tokenEOF}
	p.pos = len(p.src)
}

func (p *parser) lexString(quote byte) {
	p.pos++ // consume opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '\\' && p.pos+1 < len(p.src) {
			next := p.src[p.pos+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(next)
			}
			p.pos += 2
			continue
		}
		if c == quote {
			p.pos++
			p.tok = token{kind: tokenString, text: b.String()}
			return
		}
		b.WriteByte(c)
		p.pos++
	}
	p.fail("unterminated string literal")
}

func (p *parser) lexNumber() {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos < len(p.src) && p.src[p.pos] == '.' && p.pos+1 < len(p.src) &&
		p.src[p.pos+1] >= '0' && p.src[p.pos+1] <= '9' {
		p.pos++
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
	}
	text := p.src[start:p.pos]
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.fail("invalid number " + text)
		return
	}
	p.tok = token{kind: tokenNumber, text: text, num: num}
}

func (p *parser) lexIdent() {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	text := p.src[start:p.pos]
	switch text {
	case "true":
		p.tok = token{kind: tokenTrue, text: text}
	case "false":
		p.tok = token{kind: tokenFalse, text: text}
	case "null":
		p.tok = token{kind: tokenNull, text: text}
	default:
		p.tok = token{kind: tokenIdent, text: text}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// --- parser ---

// Grammar, loosest to tightest binding:
//
//	expr       = andExpr { "||" andExpr }
//	andExpr    = notExpr { "&&" notExpr }
//	notExpr    = "!" notExpr | comparison
//	comparison = unary [ ("=="|"!="|"<"|"<="|">"|">=") unary ]
//	unary      = "-" unary | postfix
//	postfix    = primary { "." ident | "[" expr "]" }
//	primary    = literal | ident | "(" expr ")"
func (p *parser) parseExpr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: tokenOr, left: left, right: right}
	}
	return left, p.err
}

func (p *parser) parseAnd() (exprNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: tokenAnd, left: left, right: right}
	}
	return left, p.err
}

func (p *parser) parseNot() (exprNode, error) {
	if p.tok.kind == tokenNot {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: tokenNot, operand: operand}, p.err
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	switch p.tok.kind {
	case tokenEq, tokenNe, tokenLt, tokenLe, tokenGt, tokenGe:
		op := p.tok.kind
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &compareNode{op: op, left: left, right: right}, p.err
	}
	return left, p.err
}

func (p *parser) parseUnary() (exprNode, error) {
	if p.tok.kind == tokenMinus {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: tokenMinus, operand: operand}, p.err
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (exprNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.tok.kind {
		case tokenDot:
			p.next()
			if p.tok.kind != tokenIdent {
				return nil, fmt.Errorf("expected attribute name after '.'")
			}
			node = &attrNode{target: node, name: p.tok.text}
			p.next()
		case tokenLBracket:
			p.next()
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.tok.kind != tokenRBracket {
				return nil, fmt.Errorf("expected ']'")
			}
			p.next()
			node = &indexNode{target: node, index: index}
		default:
			return node, p.err
		}
	}
}

func (p *parser) parsePrimary() (exprNode, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch p.tok.kind {
	case tokenNumber:
		n := &literalNode{value: p.tok.num}
		p.next()
		return n, p.err
	case tokenString:
		n := &literalNode{value: p.tok.text}
		p.next()
		return n, p.err
	case tokenTrue:
		p.next()
		return &literalNode{value: true}, p.err
	case tokenFalse:
		p.next()
		return &literalNode{value: false}, p.err
	case tokenNull:
		p.next()
		return &literalNode{value: nil}, p.err
	case tokenIdent:
		n := &identNode{name: p.tok.text}
		p.next()
		return n, p.err
	case tokenLParen:
		p.next()
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokenRParen {
			return nil, fmt.Errorf("expected ')'")
		}
		p.next()
		return node, p.err
	case tokenEOF:
		if p.err != nil {
			return nil, p.err
		}
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q", p.tok.text)
	}
}
