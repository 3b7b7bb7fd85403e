package passes

import (
	"fmt"

	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
	"github.com/HamidrezaReyhani/CRZ64I/crz/dataflow"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/crz/semantic"
)

// runReversibleEmulation instruments #[reversible] functions that still
// contain uncertified destructive writes: each such write is wrapped in
// an explicit SAVE_DELTA / RESTORE_DELTA pair on the delta register.
// Writes the analyzer already certified are left alone, so the pass is
// idempotent on safe code. The analyzer detects; this pass enforces.
func runReversibleEmulation(prog *ast.Program, o *ReversibleOptions, ds *diag.List) {
	tmp := o.TempReg
	for _, fn := range prog.Funcs() {
		if !fn.Attrs.Has(semantic.AttrReversible) {
			continue
		}
		vs := dataflow.Check(fn)
		if len(vs) == 0 {
			continue
		}
		targets := map[*ast.Instr][]string{}
		for _, v := range vs {
			targets[v.Instr] = append(targets[v.Instr], v.Target)
			ds.Add(diag.Warnf(v.Loc, "instrumenting uncertified write to %s in %s", v.Target, fn.Name))
		}
		instrument(fn.Body, targets, tmp)
	}
}

func instrument(blk *ast.Block, targets map[*ast.Instr][]string, tmp int) {
	var out []ast.Stmt
	for _, s := range blk.Stmts {
		if nested, ok := s.(*ast.Block); ok {
			instrument(nested, targets, tmp)
			out = append(out, s)
			continue
		}
		in, ok := s.(*ast.Instr)
		if !ok {
			out = append(out, s)
			continue
		}
		names, ok := targets[in]
		if !ok {
			out = append(out, s)
			continue
		}
		// one delta register per wrapped target: a multi-destination
		// write takes descending registers below the configured one
		for i, name := range names {
			out = append(out, &ast.Instr{
				Mnemonic: "SAVE_DELTA",
				Operands: []ast.Operand{deltaReg(tmp, i, in.Loc), regOrSym(name, in.Loc)},
				Loc:      in.Loc,
			})
		}
		out = append(out, in)
		for i := len(names) - 1; i >= 0; i-- {
			out = append(out, &ast.Instr{
				Mnemonic: "RESTORE_DELTA",
				Operands: []ast.Operand{regOrSym(names[i], in.Loc), deltaReg(tmp, i, in.Loc)},
				Loc:      in.Loc,
			})
		}
	}
	blk.Stmts = out
}

func deltaReg(base int, i int, loc diag.Loc) ast.Operand {
	return ast.Reg(fmt.Sprintf("R%d", base-i), loc)
}

func regOrSym(name string, loc diag.Loc) ast.Operand {
	if _, ok := ast.RegIndex(name); ok {
		return ast.Reg(name, loc)
	}
	if _, ok := ast.VRegIndex(name); ok {
		return ast.Operand{Kind: ast.OpdVReg, Text: name, Loc: loc}
	}
	return ast.Sym(name, loc)
}
