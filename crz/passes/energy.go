package passes

import (
	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
)

// runEnergyAnnotation attaches calibrated per-op costs from the pass
// configuration. Program semantics are untouched; the simulator prefers
// an attached cost over the registry default when accounting.
func runEnergyAnnotation(prog *ast.Program, o *EnergyOptions) {
	if len(o.PerOp) == 0 {
		return
	}
	eachInstr(prog, func(in *ast.Instr) {
		if c, ok := o.PerOp[in.Mnemonic]; ok {
			cost := c
			in.Cost = &cost
		}
	})
}
