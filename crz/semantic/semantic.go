// Package semantic validates a parsed program against the instruction
// registry and the known attribute vocabulary. All issues across the
// whole program are collected before reporting; an error-severity issue
// in one function never stops analysis of its siblings.
package semantic

import (
	"strconv"

	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

// Attribute names with defined semantics. Anything else is carried
// through as opaque metadata and flagged with a warning.
const (
	AttrReversible  = "reversible"
	AttrRealtime    = "realtime"
	AttrPower       = "power"
	AttrThermalHint = "thermal_hint"
)

var powerModes = map[string]struct{}{
	"low":  {},
	"med":  {},
	"high": {},
}

// Analyze checks prog and returns the collected diagnostics. Compilation
// may proceed iff the returned list has no error-severity entries.
func Analyze(prog *ast.Program) diag.List {
	var ds diag.List
	for _, d := range prog.Decls {
		switch d := d.(type) {
		case *ast.Function:
			checkFunction(d, &ds)
		case ast.Stmt:
			checkStmt(d, false, &ds)
		}
	}
	return ds
}

func checkFunction(fn *ast.Function, ds *diag.List) {
	checkAttrs(fn.Attrs, ds)
	realtime := fn.Attrs.Has(AttrRealtime)
	checkBlock(fn.Body, realtime, ds)
}

func checkBlock(blk *ast.Block, realtime bool, ds *diag.List) {
	for _, s := range blk.Stmts {
		checkStmt(s, realtime, ds)
	}
}

func checkStmt(s ast.Stmt, realtime bool, ds *diag.List) {
	switch s := s.(type) {
	case *ast.Instr:
		checkInstr(s, realtime, ds)
	case *ast.Block:
		checkBlock(s, realtime, ds)
	}
}

func checkInstr(in *ast.Instr, realtime bool, ds *diag.List) {
	checkAttrs(in.Attrs, ds)
	op, ok := isa.Lookup(in.Mnemonic)
	if !ok {
		ds.Add(diag.Errorf(in.Loc, "unknown mnemonic %q", in.Mnemonic))
		return
	}
	info := op.Info()
	// Arity mismatches are warnings, not errors: fused forms and
	// extension opcodes legitimately vary their operand counts.
	if got := len(in.Operands); got != info.Operands {
		ds.Add(diag.Warnf(in.Loc, "%s expects %d operands, got %d", info.Name, info.Operands, got))
	}
	if realtime && info.Unbounded {
		ds.Add(diag.Warnf(in.Loc, "%s has no static latency bound inside a #[realtime] function", info.Name))
	}
}

func checkAttrs(as ast.AttrSet, ds *diag.List) {
	for _, a := range as {
		switch a.Name {
		case AttrReversible, AttrRealtime:
			if a.HasValue {
				ds.Add(diag.Errorf(a.Loc, "attribute %q takes no value", a.Name))
			}
		case AttrPower:
			if !a.HasValue {
				ds.Add(diag.Errorf(a.Loc, "attribute %q requires a value", a.Name))
				continue
			}
			if _, ok := powerModes[a.Value]; ok {
				continue
			}
			if _, err := strconv.ParseInt(a.Value, 10, 64); err != nil {
				ds.Add(diag.Errorf(a.Loc, "bad power mode %q: want low, med, high, or an integer", a.Value))
			}
		case AttrThermalHint:
			n, err := strconv.ParseInt(a.Value, 10, 64)
			if !a.HasValue || err != nil || n < 0 {
				ds.Add(diag.Errorf(a.Loc, "attribute %q requires a non-negative integer", a.Name))
			}
		default:
			ds.Add(diag.Warnf(a.Loc, "unknown attribute %q", a.Name))
		}
	}
}
