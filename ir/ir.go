// Package ir defines the flat, execution-complete instruction stream
// produced by codegen. Records carry resolved operands, the originating
// source location, and any calibrated cost override; the simulator reads
// the stream without mutating it and performs no further symbol
// resolution.
package ir

import (
	"fmt"
	"strings"

	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

// Kind tags a resolved operand.
type Kind uint8

const (
	// KReg is a general register index, 0..31.
	KReg Kind = iota
	// KVReg is a vector register index, 0..15.
	KVReg
	// KImm is an integer immediate.
	KImm
	// KStr is a string immediate (hint values, profiling tags).
	KStr
	// KMem is a resolved memory reference.
	KMem
	// KTarget is an absolute record index within the program.
	KTarget
	// KCond is a branch condition code.
	KCond
)

// Cond is a BR_IF comparison.
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
)

var condNames = map[string]Cond{
	"eq": CondEQ, "ne": CondNE,
	"lt": CondLT, "le": CondLE,
	"gt": CondGT, "ge": CondGE,
}

// ParseCond resolves a condition-code name.
func ParseCond(s string) (Cond, bool) {
	c, ok := condNames[strings.ToLower(s)]
	return c, ok
}

func (c Cond) String() string {
	for name, c2 := range condNames {
		if c == c2 {
			return name
		}
	}
	return "invalid"
}

// Holds reports whether `a c b` is true.
func (c Cond) Holds(a, b int64) bool {
	switch c {
	case CondEQ:
		return a == b
	case CondNE:
		return a != b
	case CondLT:
		return a < b
	case CondLE:
		return a <= b
	case CondGT:
		return a > b
	case CondGE:
		return a >= b
	default:
		return false
	}
}

// Mem is a resolved address expression: base register plus displacement,
// or an absolute address when HasBase is false.
type Mem struct {
	HasBase bool  `json:"hasBase,omitempty"`
	Base    uint8 `json:"base,omitempty"`
	Off     int64 `json:"off"`
}

// Operand is one resolved operand of a Record.
type Operand struct {
	Kind Kind   `json:"kind"`
	Reg  uint8  `json:"reg,omitempty"`
	Imm  int64  `json:"imm,omitempty"`
	Str  string `json:"str,omitempty"`
	Cond Cond   `json:"cond,omitempty"`
	Mem  Mem    `json:"mem,omitempty"`
}

func Reg(i uint8) Operand     { return Operand{Kind: KReg, Reg: i} }
func VReg(i uint8) Operand    { return Operand{Kind: KVReg, Reg: i} }
func Imm(v int64) Operand     { return Operand{Kind: KImm, Imm: v} }
func Str(s string) Operand    { return Operand{Kind: KStr, Str: s} }
func Target(i int) Operand    { return Operand{Kind: KTarget, Imm: int64(i)} }
func CondOp(c Cond) Operand   { return Operand{Kind: KCond, Cond: c} }
func MemAbs(a int64) Operand  { return Operand{Kind: KMem, Mem: Mem{Off: a}} }
func MemBase(b uint8, off int64) Operand {
	return Operand{Kind: KMem, Mem: Mem{HasBase: true, Base: b, Off: off}}
}

func (o Operand) String() string {
	switch o.Kind {
	case KReg:
		return fmt.Sprintf("R%d", o.Reg)
	case KVReg:
		return fmt.Sprintf("V%d", o.Reg)
	case KImm:
		return fmt.Sprintf("%d", o.Imm)
	case KStr:
		return fmt.Sprintf("%q", o.Str)
	case KMem:
		if o.Mem.HasBase {
			return fmt.Sprintf("[R%d%+d]", o.Mem.Base, o.Mem.Off)
		}
		return fmt.Sprintf("[%d]", o.Mem.Off)
	case KTarget:
		return fmt.Sprintf("@%d", o.Imm)
	case KCond:
		return o.Cond.String()
	default:
		return "?"
	}
}

// Record is one executable instruction.
type Record struct {
	Op   isa.Op    `json:"op"`
	Args []Operand `json:"args"`
	Loc  diag.Loc  `json:"loc"`
	// Cost supersedes the registry defaults when the energy-annotation
	// pass has attached calibrated values.
	Cost *isa.CostOverride `json:"cost,omitempty"`
}

func (r Record) String() string {
	parts := make([]string, len(r.Args))
	for i, a := range r.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%v %s", r.Op, strings.Join(parts, ", "))
}

// Program is the lowered artifact: a flat record list, the entry index,
// and the entry index of every compiled function for CALL dispatch.
type Program struct {
	Records []Record       `json:"records"`
	Entry   int            `json:"entry"`
	Funcs   map[string]int `json:"funcs,omitempty"`
	// Hints carries the entry function's attribute hints (power,
	// thermal_hint). The simulator seeds its hint map from them at run
	// start; explicit hint instructions overwrite them, last write wins.
	Hints map[string]string `json:"hints,omitempty"`
}
