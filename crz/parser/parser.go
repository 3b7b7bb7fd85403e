// Package parser builds the syntax tree for CRZ64I source text.
//
// The grammar accepts attributed functions, instruction statements, local
// declarations, labels, returns, and two high-level forms that never
// survive parsing: `for v in a..b [step s] { ... }` and
// `if cond { ... } else { ... }` are desugared here into nested Blocks of
// labels and branches, so every later stage operates on a uniform
// instruction-level model.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/crz/lexer"
)

// SyntaxError reports the first unparseable token. Parsing stops there;
// syntax faults are unrecoverable for the compilation unit.
type SyntaxError struct {
	Loc diag.Loc
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v: %s", e.Loc, e.Msg)
}

// Diagnostic converts the error into an error-severity diagnostic.
func (e *SyntaxError) Diagnostic() diag.Diagnostic {
	return diag.Errorf(e.Loc, "%s", e.Msg)
}

// Parse builds a Program from source text, or fails with a *SyntaxError
// carrying the location of the first unparseable token.
func Parse(src string) (prog *ast.Program, err error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*SyntaxError); ok {
				prog, err = nil, se
				return
			}
			panic(r)
		}
	}()
	return p.parseProgram(), nil
}

func tokenize(src string) ([]lexer.Token, error) {
	l := lexer.NewLexer(strings.NewReader(src))
	var ret []lexer.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, &SyntaxError{Loc: diag.Loc{Line: 1, Column: 1}, Msg: err.Error()}
		}
		if tok.Type() == lexer.Illegal {
			return nil, &SyntaxError{
				Loc: lexer.LocOf(src, tok.Span().Begin),
				Msg: fmt.Sprintf("unexpected character %s", tok),
			}
		}
		ret = append(ret, tok)
		if tok.IsEOF() {
			return ret, nil
		}
	}
}

type parser struct {
	src    string
	toks   []lexer.Token
	pos    int
	nextID int
}

func (p *parser) peek() lexer.Token {
	return p.toks[p.pos]
}

func (p *parser) peek2() lexer.Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() lexer.Token {
	tok := p.toks[p.pos]
	if !tok.IsEOF() {
		p.pos++
	}
	return tok
}

func (p *parser) locOf(tok lexer.Token) diag.Loc {
	return lexer.LocOf(p.src, tok.Span().Begin)
}

func (p *parser) failf(tok lexer.Token, format string, args ...any) {
	panic(&SyntaxError{Loc: p.locOf(tok), Msg: fmt.Sprintf(format, args...)})
}

// expect consumes a token of the given type or fails.
func (p *parser) expect(ty lexer.TokenType, what string) lexer.Token {
	tok := p.next()
	if tok.Type() != ty {
		p.failf(tok, "expected %s, got %s", what, tok)
	}
	return tok
}

func (p *parser) expectKeyword(kw string) lexer.Token {
	tok := p.next()
	if !tok.Is(lexer.Keyword, kw) {
		p.failf(tok, "expected %q, got %s", kw, tok)
	}
	return tok
}

// gensym returns a fresh name for desugared labels and temporaries.
func (p *parser) gensym(prefix string) string {
	p.nextID++
	return fmt.Sprintf("__%s%d", prefix, p.nextID)
}

func (p *parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.peek().IsEOF() {
		attrs := p.parseAttrs()
		if p.peek().Is(lexer.Keyword, "fn") {
			prog.Decls = append(prog.Decls, p.parseFunction(attrs))
		} else {
			prog.Decls = append(prog.Decls, p.parseStatement(attrs))
		}
	}
	return prog
}

// parseAttrs consumes a run of #[...] tokens. Unknown attribute names are
// accepted here and validated by the semantic analyzer.
func (p *parser) parseAttrs() ast.AttrSet {
	var ret ast.AttrSet
	for p.peek().Type() == lexer.Attr {
		tok := p.next()
		body := strings.TrimSuffix(strings.TrimPrefix(tok.Text(), "#["), "]")
		a := ast.Attr{Loc: p.locOf(tok)}
		if name, value, ok := strings.Cut(body, "="); ok {
			a.Name = strings.TrimSpace(name)
			a.Value = strings.Trim(strings.TrimSpace(value), `"`)
			a.HasValue = true
		} else {
			a.Name = strings.TrimSpace(body)
		}
		if a.Name == "" {
			p.failf(tok, "empty attribute")
		}
		ret = append(ret, a)
	}
	return ret
}

func (p *parser) parseFunction(attrs ast.AttrSet) *ast.Function {
	fnTok := p.expectKeyword("fn")
	name := p.expect(lexer.Ident, "function name")
	p.expect(lexer.LParen, "(")
	var params []ast.Param
	if p.peek().Type() != lexer.RParen {
		params = append(params, p.parseParam())
		for p.peek().Type() == lexer.Comma {
			p.next()
			params = append(params, p.parseParam())
		}
	}
	p.expect(lexer.RParen, ")")
	fn := &ast.Function{
		Name:   name.Text(),
		Params: params,
		Attrs:  attrs,
		Loc:    p.locOf(fnTok),
	}
	if p.peek().Type() == lexer.Arrow {
		p.next()
		fn.RetType = p.parseType().Name
	}
	fn.Body = p.parseBlock()
	return fn
}

func (p *parser) parseParam() ast.Param {
	name := p.expect(lexer.Ident, "parameter name")
	p.expect(lexer.Colon, ":")
	return ast.Param{Name: name.Text(), Type: p.parseType()}
}

func (p *parser) parseType() ast.Type {
	name := p.expect(lexer.Ident, "type name")
	if name.Text() == "vec" && p.peek().Type() == lexer.Lt {
		p.next()
		lanes := p.parseIntLit()
		p.expect(lexer.Comma, ",")
		elem := p.expect(lexer.Ident, "element type")
		p.expect(lexer.Gt, ">")
		return ast.Type{Name: "vec", Lanes: int(lanes), Elem: elem.Text()}
	}
	return ast.Type{Name: name.Text()}
}

func (p *parser) parseIntLit() int64 {
	tok := p.expect(lexer.Number, "integer literal")
	v, err := parseInt(tok.Text())
	if err != nil {
		p.failf(tok, "bad integer literal %s", tok)
	}
	return v
}

func (p *parser) parseBlock() *ast.Block {
	p.expect(lexer.LBrace, "{")
	blk := &ast.Block{}
	for p.peek().Type() != lexer.RBrace {
		if p.peek().IsEOF() {
			p.failf(p.peek(), "unterminated block")
		}
		attrs := p.parseAttrs()
		blk.Stmts = append(blk.Stmts, p.parseStatement(attrs))
	}
	p.next()
	return blk
}

func (p *parser) parseStatement(attrs ast.AttrSet) ast.Stmt {
	tok := p.peek()
	// only instructions carry statement-level attributes; attaching one
	// to a let/return/if/for or a label would be silently lost
	if len(attrs) > 0 && !(tok.Type() == lexer.Ident && p.peek2().Type() != lexer.Colon) {
		p.failf(tok, "attributes may only precede an instruction, found %s", tok)
	}
	switch {
	case tok.Is(lexer.Keyword, "let"):
		return p.parseLet()
	case tok.Is(lexer.Keyword, "return"):
		return p.parseReturn()
	case tok.Is(lexer.Keyword, "if"):
		return p.parseIf()
	case tok.Is(lexer.Keyword, "for"):
		return p.parseFor()
	case tok.Type() == lexer.Ident && p.peek2().Type() == lexer.Colon:
		name := p.next()
		p.next()
		return &ast.LabelDef{Name: name.Text(), Loc: p.locOf(name)}
	case tok.Type() == lexer.Ident:
		return p.parseInstruction(attrs)
	default:
		p.failf(tok, "unexpected token %s", tok)
		return nil
	}
}

func (p *parser) parseLet() *ast.LocalDecl {
	letTok := p.expectKeyword("let")
	name := p.expect(lexer.Ident, "binding name")
	d := &ast.LocalDecl{Name: name.Text(), Loc: p.locOf(letTok)}
	if p.peek().Type() == lexer.Colon {
		p.next()
		d.Type = p.parseType()
	}
	p.expect(lexer.Assign, "=")
	d.Value = p.parseExpr()
	p.expect(lexer.Semi, ";")
	return d
}

func (p *parser) parseReturn() *ast.Return {
	retTok := p.expectKeyword("return")
	r := &ast.Return{Loc: p.locOf(retTok)}
	if p.peek().Type() != lexer.Semi {
		r.Value = p.parseExpr()
	}
	p.expect(lexer.Semi, ";")
	return r
}

func (p *parser) parseInstruction(attrs ast.AttrSet) *ast.Instr {
	name := p.expect(lexer.Ident, "mnemonic")
	in := &ast.Instr{
		Mnemonic: strings.ToUpper(name.Text()),
		Attrs:    attrs,
		Loc:      p.locOf(name),
	}
	if p.peek().Type() != lexer.Semi {
		in.Operands = append(in.Operands, p.parseOperand())
		for p.peek().Type() == lexer.Comma {
			p.next()
			in.Operands = append(in.Operands, p.parseOperand())
		}
	}
	p.expect(lexer.Semi, ";")
	return in
}

// parseOperand classifies an operand from its lexical shape: R<n> is a
// general register, V<n> a vector register, literals are immediates,
// [expr] is a memory reference, and any other identifier is a symbol to
// be resolved at codegen.
func (p *parser) parseOperand() ast.Operand {
	tok := p.peek()
	switch tok.Type() {
	case lexer.Ident:
		p.next()
		loc := p.locOf(tok)
		switch {
		case IsRegName(tok.Text()):
			return ast.Operand{Kind: ast.OpdReg, Text: tok.Text(), Loc: loc}
		case IsVRegName(tok.Text()):
			return ast.Operand{Kind: ast.OpdVReg, Text: tok.Text(), Loc: loc}
		default:
			return ast.Sym(tok.Text(), loc)
		}
	case lexer.Number:
		p.next()
		v, err := parseInt(tok.Text())
		if err != nil {
			p.failf(tok, "bad integer literal %s", tok)
		}
		return ast.Imm(v, p.locOf(tok))
	case lexer.String:
		p.next()
		return ast.Str(unquote(tok.Text()), p.locOf(tok))
	case lexer.LBracket:
		p.next()
		addr := p.parseExpr()
		p.expect(lexer.RBracket, "]")
		return ast.Operand{Kind: ast.OpdMem, Mem: &ast.MemRef{Addr: addr}, Loc: p.locOf(tok)}
	default:
		p.failf(tok, "unexpected operand %s", tok)
		return ast.Operand{}
	}
}

// --- desugaring ---

// parseFor lowers `for v in a..b [step s] { body }` into an explicit
// loop-counter Block: init, head label, exit branch, body, increment,
// back-branch, end label.
func (p *parser) parseFor() *ast.Block {
	forTok := p.expectKeyword("for")
	loc := p.locOf(forTok)
	v := p.expect(lexer.Ident, "loop variable")
	p.expectKeyword("in")
	start := p.parseExpr()
	p.expect(lexer.DotDot, "..")
	end := p.parseExpr()
	var step ast.Expr = &ast.NumLit{Value: 1, Loc: loc}
	if p.peek().Is(lexer.Keyword, "step") {
		p.next()
		step = p.parseExpr()
	}
	body := p.parseBlock()

	head := p.gensym("for")
	done := p.gensym("endfor")
	blk := &ast.Block{}
	blk.Stmts = append(blk.Stmts,
		&ast.LocalDecl{Name: v.Text(), Value: start, Loc: p.locOf(v)},
	)
	endOpd := p.operandFor(blk, end, loc)
	stepOpd := p.operandFor(blk, step, loc)
	blk.Stmts = append(blk.Stmts,
		&ast.LabelDef{Name: head, Loc: loc},
		&ast.Instr{
			Mnemonic: "BR_IF",
			Operands: []ast.Operand{
				ast.Str("ge", loc),
				ast.Sym(v.Text(), loc),
				endOpd,
				ast.Sym(done, loc),
			},
			Loc: loc,
		},
		body,
		&ast.Instr{
			Mnemonic: "ADD",
			Operands: []ast.Operand{
				ast.Sym(v.Text(), loc),
				ast.Sym(v.Text(), loc),
				stepOpd,
			},
			Loc: loc,
		},
		&ast.Instr{
			Mnemonic: "JMP",
			Operands: []ast.Operand{ast.Sym(head, loc)},
			Loc:      loc,
		},
		&ast.LabelDef{Name: done, Loc: loc},
	)
	return blk
}

// parseIf lowers `if cond { then } else { els }` into a Block that
// branches over the then-arm when the negated condition holds.
func (p *parser) parseIf() *ast.Block {
	ifTok := p.expectKeyword("if")
	loc := p.locOf(ifTok)
	cond := p.parseExpr()
	then := p.parseBlock()
	var els *ast.Block
	if p.peek().Is(lexer.Keyword, "else") {
		p.next()
		els = p.parseBlock()
	}

	end := p.gensym("endif")
	target := end
	if els != nil {
		target = p.gensym("else")
	}
	blk := &ast.Block{}
	br := p.branchUnless(blk, cond, target, loc)
	blk.Stmts = append(blk.Stmts, br, then)
	if els != nil {
		blk.Stmts = append(blk.Stmts,
			&ast.Instr{Mnemonic: "JMP", Operands: []ast.Operand{ast.Sym(end, loc)}, Loc: loc},
			&ast.LabelDef{Name: target, Loc: loc},
			els,
		)
	}
	blk.Stmts = append(blk.Stmts, &ast.LabelDef{Name: end, Loc: loc})
	return blk
}

// branchUnless builds the BR_IF that skips a then-arm: it branches to
// target when cond is false.
func (p *parser) branchUnless(blk *ast.Block, cond ast.Expr, target string, loc diag.Loc) *ast.Instr {
	var cc string
	var l, r ast.Expr
	if be, ok := cond.(*ast.BinExpr); ok && negateCond[be.Op] != "" {
		cc, l, r = negateCond[be.Op], be.L, be.R
	} else {
		// a bare expression is true when nonzero
		cc, l, r = "eq", cond, &ast.NumLit{Value: 0, Loc: loc}
	}
	return &ast.Instr{
		Mnemonic: "BR_IF",
		Operands: []ast.Operand{
			ast.Str(cc, loc),
			p.operandFor(blk, l, loc),
			p.operandFor(blk, r, loc),
			ast.Sym(target, loc),
		},
		Loc: loc,
	}
}

var negateCond = map[string]string{
	"==": "ne",
	"!=": "eq",
	"<":  "ge",
	"<=": "gt",
	">":  "le",
	">=": "lt",
}

// operandFor converts an expression into an operand, hoisting anything
// that is not already operand-shaped into a fresh binding appended to blk.
func (p *parser) operandFor(blk *ast.Block, e ast.Expr, loc diag.Loc) ast.Operand {
	switch e := e.(type) {
	case *ast.NumLit:
		return ast.Imm(e.Value, e.Loc)
	case *ast.Ident:
		switch {
		case IsRegName(e.Name):
			return ast.Operand{Kind: ast.OpdReg, Text: e.Name, Loc: e.Loc}
		case IsVRegName(e.Name):
			return ast.Operand{Kind: ast.OpdVReg, Text: e.Name, Loc: e.Loc}
		default:
			return ast.Sym(e.Name, e.Loc)
		}
	default:
		tmp := p.gensym("t")
		blk.Stmts = append(blk.Stmts, &ast.LocalDecl{Name: tmp, Value: e, Loc: loc})
		return ast.Sym(tmp, loc)
	}
}

// --- expressions ---

func (p *parser) parseExpr() ast.Expr {
	return p.parseComparison()
}

func (p *parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	if op, ok := cmpOps[p.peek().Type()]; ok {
		tok := p.next()
		right := p.parseAdditive()
		return &ast.BinExpr{Op: op, L: left, R: right, Loc: p.locOf(tok)}
	}
	return left
}

var cmpOps = map[lexer.TokenType]string{
	lexer.EqEq:  "==",
	lexer.NotEq: "!=",
	lexer.Lt:    "<",
	lexer.LtEq:  "<=",
	lexer.Gt:    ">",
	lexer.GtEq:  ">=",
}

func (p *parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for {
		var op string
		switch p.peek().Type() {
		case lexer.Plus:
			op = "+"
		case lexer.Minus:
			op = "-"
		default:
			return left
		}
		tok := p.next()
		right := p.parseMultiplicative()
		left = &ast.BinExpr{Op: op, L: left, R: right, Loc: p.locOf(tok)}
	}
}

func (p *parser) parseMultiplicative() ast.Expr {
	left := p.parsePrimary()
	for {
		var op string
		switch p.peek().Type() {
		case lexer.Star:
			op = "*"
		case lexer.Slash:
			op = "/"
		case lexer.Percent:
			op = "%"
		default:
			return left
		}
		tok := p.next()
		right := p.parsePrimary()
		left = &ast.BinExpr{Op: op, L: left, R: right, Loc: p.locOf(tok)}
	}
}

func (p *parser) parsePrimary() ast.Expr {
	tok := p.peek()
	switch tok.Type() {
	case lexer.Ident:
		p.next()
		return &ast.Ident{Name: tok.Text(), Loc: p.locOf(tok)}
	case lexer.Number:
		p.next()
		v, err := parseInt(tok.Text())
		if err != nil {
			p.failf(tok, "bad integer literal %s", tok)
		}
		return &ast.NumLit{Value: v, Loc: p.locOf(tok)}
	case lexer.String:
		p.next()
		return &ast.StrLit{Value: unquote(tok.Text()), Loc: p.locOf(tok)}
	case lexer.LParen:
		p.next()
		e := p.parseExpr()
		p.expect(lexer.RParen, ")")
		return e
	case lexer.LBracket:
		p.next()
		addr := p.parseExpr()
		p.expect(lexer.RBracket, "]")
		return &ast.MemExpr{Addr: addr, Loc: p.locOf(tok)}
	default:
		p.failf(tok, "unexpected token in expression: %s", tok)
		return nil
	}
}

// IsRegName reports whether name is a general register R0..R31.
func IsRegName(name string) bool {
	_, ok := ast.RegIndex(name)
	return ok
}

// IsVRegName reports whether name is a vector register V0..V15.
func IsVRegName(name string) bool {
	_, ok := ast.VRegIndex(name)
	return ok
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 0, 64)
}

func unquote(s string) string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
	replacer := strings.NewReplacer(
		`\"`, `"`,
		`\\`, `\`,
		`\n`, "\n",
		`\t`, "\t",
	)
	return replacer.Replace(s)
}
