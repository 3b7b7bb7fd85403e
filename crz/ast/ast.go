// Package ast defines the syntax tree produced by the parser and consumed
// by the semantic analyzer, the reversibility analyzer, the pass pipeline,
// and the code generator.
//
// High-level constructs (for-ranges, if/else) never appear here: the
// parser desugars them into nested Blocks of labels and branches, so every
// later stage sees a uniform instruction-level program.
package ast

import (
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

// Program is an ordered sequence of top-level declarations: functions and
// file-scope statements.
type Program struct {
	Decls []Decl
}

// Funcs returns the function declarations in order.
func (p *Program) Funcs() []*Function {
	var ret []*Function
	for _, d := range p.Decls {
		if fn, ok := d.(*Function); ok {
			ret = append(ret, fn)
		}
	}
	return ret
}

// TopStmts returns the file-scope statements in order.
func (p *Program) TopStmts() []Stmt {
	var ret []Stmt
	for _, d := range p.Decls {
		if s, ok := d.(Stmt); ok {
			ret = append(ret, s)
		}
	}
	return ret
}

type Decl interface {
	decl()
}

// Attr is one #[name] or #[name=value] annotation. Value is the raw
// literal text; flag-only attributes have HasValue == false. Unknown
// names are carried through untouched and validated late.
type Attr struct {
	Name     string
	Value    string
	HasValue bool
	Loc      diag.Loc
}

// AttrSet is the ordered attribute list attached to a declaration or
// statement.
type AttrSet []Attr

// Get returns the value of the named attribute.
func (as AttrSet) Get(name string) (Attr, bool) {
	for _, a := range as {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// Has reports whether the named attribute is present.
func (as AttrSet) Has(name string) bool {
	_, ok := as.Get(name)
	return ok
}

type Function struct {
	Name    string
	Params  []Param
	RetType string
	Attrs   AttrSet
	Body    *Block
	Loc     diag.Loc
}

func (*Function) decl() {}

type Param struct {
	Name string
	Type Type
}

// Type is a parameter or local type. Scalars have Lanes == 0.
type Type struct {
	Name  string
	Lanes int
	Elem  string
}

func (t Type) IsVector() bool { return t.Lanes > 0 }

// Block is an ordered statement sequence. Blocks nest: the parser emits
// a nested Block for each desugared loop or conditional, and the
// reversibility analyzer threads its working set through them by value.
type Block struct {
	Stmts []Stmt
}

func (*Block) decl() {}
func (*Block) stmt() {}

type Stmt interface {
	Decl
	stmt()
}

// Instr is a single machine instruction statement. Cost is nil until the
// energy-annotation pass attaches a calibrated override.
type Instr struct {
	Mnemonic string
	Operands []Operand
	Attrs    AttrSet
	Loc      diag.Loc
	Cost     *isa.CostOverride
}

func (*Instr) decl() {}
func (*Instr) stmt() {}

// LocalDecl introduces a named binding initialized from an expression.
// Codegen assigns it a register slot.
type LocalDecl struct {
	Name  string
	Type  Type
	Value Expr
	Loc   diag.Loc
}

func (*LocalDecl) decl() {}
func (*LocalDecl) stmt() {}

type Return struct {
	Value Expr // nil for a bare return
	Loc   diag.Loc
}

func (*Return) decl() {}
func (*Return) stmt() {}

type LabelDef struct {
	Name string
	Loc  diag.Loc
}

func (*LabelDef) decl() {}
func (*LabelDef) stmt() {}

// OperandKind classifies an operand from its lexical shape.
type OperandKind uint8

const (
	// OpdReg is a general register, R0..R31.
	OpdReg OperandKind = iota
	// OpdVReg is a vector register, V0..V15.
	OpdVReg
	// OpdImm is an integer literal.
	OpdImm
	// OpdStr is a string literal.
	OpdStr
	// OpdMem is a bracketed memory reference.
	OpdMem
	// OpdSym is a bare identifier: a label target or a named binding,
	// resolved at codegen.
	OpdSym
)

type Operand struct {
	Kind OperandKind
	Text string // register name, symbol, string value, or condition code
	Num  int64  // value for OpdImm
	Mem  *MemRef
	Loc  diag.Loc
}

// MemRef is a bracketed address expression.
type MemRef struct {
	Addr Expr
}

// Reg constructs a general-register operand.
func Reg(name string, loc diag.Loc) Operand {
	return Operand{Kind: OpdReg, Text: name, Loc: loc}
}

// Imm constructs an integer-immediate operand.
func Imm(v int64, loc diag.Loc) Operand {
	return Operand{Kind: OpdImm, Num: v, Loc: loc}
}

// Sym constructs a symbol operand.
func Sym(name string, loc diag.Loc) Operand {
	return Operand{Kind: OpdSym, Text: name, Loc: loc}
}

// Str constructs a string operand.
func Str(s string, loc diag.Loc) Operand {
	return Operand{Kind: OpdStr, Text: s, Loc: loc}
}

// RegIndex parses a general register name R0..R31.
func RegIndex(name string) (uint8, bool) {
	n, ok := regNum(name, 'R')
	if !ok || n >= 32 {
		return 0, false
	}
	return uint8(n), true
}

// VRegIndex parses a vector register name V0..V15.
func VRegIndex(name string) (uint8, bool) {
	n, ok := regNum(name, 'V')
	if !ok || n >= 16 {
		return 0, false
	}
	return uint8(n), true
}

func regNum(name string, prefix byte) (int, bool) {
	if len(name) < 2 || name[0] != prefix {
		return 0, false
	}
	n := 0
	for i := 1; i < len(name); i++ {
		c := name[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 255 {
			return 0, false
		}
	}
	return n, true
}

type Expr interface {
	expr()
}

type Ident struct {
	Name string
	Loc  diag.Loc
}

type NumLit struct {
	Value int64
	Loc   diag.Loc
}

type StrLit struct {
	Value string
	Loc   diag.Loc
}

// BinExpr is a binary arithmetic or comparison expression.
type BinExpr struct {
	Op   string // + - * / % == != < <= > >=
	L, R Expr
	Loc  diag.Loc
}

// MemExpr reads a memory cell inside an expression.
type MemExpr struct {
	Addr Expr
	Loc  diag.Loc
}

func (*Ident) expr()   {}
func (*NumLit) expr()  {}
func (*StrLit) expr()  {}
func (*BinExpr) expr() {}
func (*MemExpr) expr() {}
