package passes

import (
	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
)

// runFusion scans adjacent-instruction windows inside every block for
// fusible patterns. A fused instruction must carry every destination the
// unfused sequence would have written; the interpreter then reproduces
// the pre-fusion state transition bit for bit.
func runFusion(prog *ast.Program, o *FusionOptions, ds *diag.List) {
	eachBlock(prog, func(blk *ast.Block) {
		blk.Stmts = fuseStmts(blk.Stmts, o, ds)
	})
}

func fuseStmts(stmts []ast.Stmt, o *FusionOptions, ds *diag.List) []ast.Stmt {
	var out []ast.Stmt
	for i := 0; i < len(stmts); i++ {
		a, ok := stmts[i].(*ast.Instr)
		if !ok || i+1 >= len(stmts) {
			out = append(out, stmts[i])
			continue
		}
		b, ok := stmts[i+1].(*ast.Instr)
		if !ok {
			out = append(out, stmts[i])
			continue
		}
		if fused := fusePair(a, b, o, ds); fused != nil {
			out = append(out, fused)
			i++
			continue
		}
		out = append(out, stmts[i])
	}
	return out
}

// fusePair fuses two adjacent instructions when they match a known
// pattern. A fused record reads all of its sources before writing, so a
// pair whose second source or store address aliases the first write must
// stay unfused: the fused form would see the pre-write value.
func fusePair(a, b *ast.Instr, o *FusionOptions, ds *diag.List) *ast.Instr {
	switch {
	// LOAD A, [m] ; ADD B, A, x  =>  FUSED_LOAD_ADD A, B, [m], x
	case a.Mnemonic == "LOAD" && b.Mnemonic == "ADD" &&
		len(a.Operands) == 2 && len(b.Operands) == 3 &&
		a.Operands[1].Kind == ast.OpdMem &&
		isRegLike(a.Operands[0]) && isRegLike(b.Operands[1]) &&
		a.Operands[0].Text == b.Operands[1].Text &&
		!aliases(b.Operands[2], a.Operands[0].Text):
		if o.EmitLegacyLoadAdd {
			ds.Add(diag.Warnf(a.Loc, "emitting lossy FUSED_LOAD_ADD_LEGACY: loaded value in %s is dropped", a.Operands[0].Text))
			return &ast.Instr{
				Mnemonic: "FUSED_LOAD_ADD_LEGACY",
				Operands: []ast.Operand{b.Operands[0], a.Operands[1], b.Operands[2]},
				Attrs:    mergeAttrs(a.Attrs, b.Attrs),
				Loc:      a.Loc,
			}
		}
		return &ast.Instr{
			Mnemonic: "FUSED_LOAD_ADD",
			Operands: []ast.Operand{a.Operands[0], b.Operands[0], a.Operands[1], b.Operands[2]},
			Attrs:    mergeAttrs(a.Attrs, b.Attrs),
			Loc:      a.Loc,
		}

	// ADD A, x, y ; STORE A, [m]  =>  FUSED_ADD_STORE A, x, y, [m]
	case a.Mnemonic == "ADD" && b.Mnemonic == "STORE" &&
		len(a.Operands) == 3 && len(b.Operands) == 2 &&
		b.Operands[1].Kind == ast.OpdMem &&
		isRegLike(a.Operands[0]) && isRegLike(b.Operands[0]) &&
		a.Operands[0].Text == b.Operands[0].Text &&
		!exprReads(b.Operands[1].Mem.Addr, a.Operands[0].Text):
		return &ast.Instr{
			Mnemonic: "FUSED_ADD_STORE",
			Operands: []ast.Operand{a.Operands[0], a.Operands[1], a.Operands[2], b.Operands[1]},
			Attrs:    mergeAttrs(a.Attrs, b.Attrs),
			Loc:      a.Loc,
		}
	}
	return nil
}

// aliases reports whether o reads the named register or binding.
func aliases(o ast.Operand, name string) bool {
	return isRegLike(o) && o.Text == name
}

// exprReads reports whether e references the named register or binding.
func exprReads(e ast.Expr, name string) bool {
	switch e := e.(type) {
	case *ast.Ident:
		return e.Name == name
	case *ast.BinExpr:
		return exprReads(e.L, name) || exprReads(e.R, name)
	case *ast.MemExpr:
		return exprReads(e.Addr, name)
	default:
		return false
	}
}

func isRegLike(o ast.Operand) bool {
	switch o.Kind {
	case ast.OpdReg, ast.OpdVReg, ast.OpdSym:
		return true
	default:
		return false
	}
}

func mergeAttrs(a, b ast.AttrSet) ast.AttrSet {
	if len(b) == 0 {
		return a
	}
	return append(append(ast.AttrSet{}, a...), b...)
}
