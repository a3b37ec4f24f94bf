package sandbox

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// This file implements a deliberately narrow expression compiler from a
// subset of arithmetic/comparison JavaScript-like syntax to raw WebAssembly
// binary module bytes, consumed by the Wasm backend in wasm.go.
//
// Scope, by design: semicolon-separated statements, each either a bare
// expression or a `name = expr` assignment; operators + - * / < > <= >= ==
// !=; parenthesized sub-expressions; numeric literals and identifiers. This
// is NOT a JavaScript compiler — declarations (let/const/function), control
// flow, strings, and calls are out of scope. In hybrid mode with intelligent
// routing, router.go sends code showing the JavaScript markers looksLikeJS
// checks for to the process backend; any other unsupported syntax that
// reaches this compiler fails to compile, and the Wasm backend reports it as
// an Error result.

type tokKind int

const (
	tokNum tokKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokAssign
	tokSemi
	tokEOF
)

type token struct {
	kind tokKind
	text string
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ';':
			toks = append(toks, token{tokSemi, ";"})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '%':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '<' || c == '>' || c == '=' || c == '!':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{tokOp, src[i : i+2]})
				i += 2
			} else if c == '=' {
				toks = append(toks, token{tokAssign, "="})
				i++
			} else {
				toks = append(toks, token{tokOp, string(c)})
				i++
			}
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < n && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNum, src[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("wasm compiler: unsupported character %q", c)
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// node is the expression AST.
type node interface{ isNode() }

type numLit struct{ v float64 }
type varRef struct{ name string }
type binOp struct {
	op   string
	l, r node
}

func (numLit) isNode() {}
func (varRef) isNode() {}
func (binOp) isNode()  {}

// stmt is `name = expr` when assign is non-empty, otherwise a bare
// expression whose value is only kept if it is the program's last
// statement.
type stmt struct {
	assign string
	expr   node
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func parseProgram(src string) ([]stmt, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var stmts []stmt
	for p.peek().kind != tokEOF {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.peek().kind == tokSemi {
			p.next()
		}
	}
	return stmts, nil
}

func (p *parser) parseStmt() (stmt, error) {
	if p.peek().kind == tokIdent && p.pos+1 < len(p.toks) && p.toks[p.pos+1].kind == tokAssign {
		name := p.next().text
		p.next() // consume '='
		expr, err := p.parseComparison()
		if err != nil {
			return stmt{}, err
		}
		return stmt{assign: name, expr: expr}, nil
	}
	expr, err := p.parseComparison()
	if err != nil {
		return stmt{}, err
	}
	return stmt{expr: expr}, nil
}

func (p *parser) parseComparison() (node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && isComparisonOp(p.peek().text) {
		op := p.next().text
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		l = binOp{op: op, l: l, r: r}
	}
	return l, nil
}

func isComparisonOp(op string) bool {
	switch op {
	case "<", ">", "<=", ">=", "==", "!=":
		return true
	}
	return false
}

func (p *parser) parseAdditive() (node, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = binOp{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseTerm() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/" || p.peek().text == "%") {
		op := p.next().text
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = binOp{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokOp && p.peek().text == "-" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binOp{op: "-", l: numLit{0}, r: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNum:
		p.next()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("wasm compiler: invalid number %q", t.text)
		}
		return numLit{v}, nil
	case tokIdent:
		p.next()
		return varRef{t.text}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("wasm compiler: expected ')'")
		}
		p.next()
		return inner, nil
	}
	return nil, fmt.Errorf("wasm compiler: unexpected token %q", t.text)
}

// --- wasm binary encoding ---

type wasmEncoder struct {
	locals   map[string]uint32
	localSeq uint32
	code     []byte
}

func appendULEB128(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

func (e *wasmEncoder) localIndex(name string) uint32 {
	if idx, ok := e.locals[name]; ok {
		return idx
	}
	idx := e.localSeq
	e.locals[name] = idx
	e.localSeq++
	return idx
}

func (e *wasmEncoder) emitNode(n node) error {
	switch v := n.(type) {
	case numLit:
		bits := math.Float64bits(v.v)
		var raw [8]byte
		for i := 0; i < 8; i++ {
			raw[i] = byte(bits >> (8 * i))
		}
		e.code = append(e.code, 0x44) // f64.const
		e.code = append(e.code, raw[:]...)
		return nil
	case varRef:
		idx := e.localIndex(v.name)
		e.code = append(e.code, 0x20) // local.get
		e.code = appendULEB128(e.code, idx)
		return nil
	case binOp:
		if err := e.emitNode(v.l); err != nil {
			return err
		}
		if err := e.emitNode(v.r); err != nil {
			return err
		}
		switch v.op {
		case "+":
			e.code = append(e.code, 0xA0)
		case "-":
			e.code = append(e.code, 0xA1)
		case "*":
			e.code = append(e.code, 0xA2)
		case "/":
			e.code = append(e.code, 0xA3)
		case "%":
			return fmt.Errorf("wasm compiler: modulo is not supported in this subset")
		case "<":
			e.code = append(e.code, 0x63, 0xB7) // f64.lt, f64.convert_i32_s
		case ">":
			e.code = append(e.code, 0x64, 0xB7)
		case "<=":
			e.code = append(e.code, 0x65, 0xB7)
		case ">=":
			e.code = append(e.code, 0x66, 0xB7)
		case "==":
			e.code = append(e.code, 0x61, 0xB7)
		case "!=":
			e.code = append(e.code, 0x62, 0xB7)
		default:
			return fmt.Errorf("wasm compiler: unsupported operator %q", v.op)
		}
		return nil
	default:
		return fmt.Errorf("wasm compiler: unknown node type %T", n)
	}
}

// compileToWasm lowers a parsed program into a single-function wasm module
// exported as "run", taking no parameters and returning one f64: the value
// of the last statement (its assigned variable's value if it was an
// assignment, or its bare expression value otherwise). All variables become
// locals, implicitly declared as f64 zero-initialized on first reference.
func compileToWasm(stmts []stmt) ([]byte, error) {
	enc := &wasmEncoder{locals: make(map[string]uint32)}

	if len(stmts) == 0 {
		if err := enc.emitNode(numLit{0}); err != nil {
			return nil, err
		}
	}

	for i, s := range stmts {
		last := i == len(stmts)-1
		if err := enc.emitNode(s.expr); err != nil {
			return nil, err
		}
		if s.assign != "" {
			idx := enc.localIndex(s.assign)
			if last {
				enc.code = append(enc.code, 0x22) // local.tee keeps value on stack
				enc.code = appendULEB128(enc.code, idx)
			} else {
				enc.code = append(enc.code, 0x21) // local.set drops it
				enc.code = appendULEB128(enc.code, idx)
			}
		} else if !last {
			enc.code = append(enc.code, 0x1A) // drop
		}
	}
	enc.code = append(enc.code, 0x0B) // end

	return assembleModule(enc), nil
}

func assembleModule(enc *wasmEncoder) []byte {
	var m []byte
	m = append(m, 0x00, 0x61, 0x73, 0x6D) // magic "\0asm"
	m = append(m, 0x01, 0x00, 0x00, 0x00) // version 1

	// Type section: one functype () -> (f64)
	var typeBody []byte
	typeBody = appendULEB128(typeBody, 1) // 1 type
	typeBody = append(typeBody, 0x60)     // func tag
	typeBody = appendULEB128(typeBody, 0) // 0 params
	typeBody = appendULEB128(typeBody, 1) // 1 result
	typeBody = append(typeBody, 0x7C)     // f64
	m = appendSection(m, 0x01, typeBody)

	// Function section: 1 function, type index 0
	var funcBody []byte
	funcBody = appendULEB128(funcBody, 1)
	funcBody = appendULEB128(funcBody, 0)
	m = appendSection(m, 0x03, funcBody)

	// Export section: export function 0 as "run"
	var exportBody []byte
	exportBody = appendULEB128(exportBody, 1)
	name := "run"
	exportBody = appendULEB128(exportBody, uint32(len(name)))
	exportBody = append(exportBody, name...)
	exportBody = append(exportBody, 0x00) // func export kind
	exportBody = appendULEB128(exportBody, 0)
	m = appendSection(m, 0x07, exportBody)

	// Code section: one function body
	var fn []byte
	if enc.localSeq > 0 {
		fn = appendULEB128(fn, 1) // 1 local-decl group
		fn = appendULEB128(fn, enc.localSeq)
		fn = append(fn, 0x7C) // f64
	} else {
		fn = appendULEB128(fn, 0)
	}
	fn = append(fn, enc.code...)

	var codeBody []byte
	codeBody = appendULEB128(codeBody, 1) // 1 function body
	codeBody = appendULEB128(codeBody, uint32(len(fn)))
	codeBody = append(codeBody, fn...)
	m = appendSection(m, 0x0A, codeBody)

	return m
}

func appendSection(m []byte, id byte, body []byte) []byte {
	m = append(m, id)
	m = appendULEB128(m, uint32(len(body)))
	return append(m, body...)
}

// isWasmBinary reports whether code already carries the wasm magic header,
// in which case it is run as-is instead of being compiled.
func isWasmBinary(code []byte) bool {
	return len(code) >= 4 && code[0] == 0x00 && code[1] == 0x61 && code[2] == 0x73 && code[3] == 0x6D
}

// looksLikeJS reports whether source shows tokens the compiled subset does
// not support — declarations, console output, arrow functions, imports —
// signaling that it belongs on the process backend instead.
func looksLikeJS(src string) bool {
	markers := []string{"function", "const ", "let ", "console.", "=>", "import ", "require("}
	for _, m := range markers {
		if strings.Contains(src, m) {
			return true
		}
	}
	return false
}
