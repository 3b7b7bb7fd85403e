// Package passes rewrites the syntax tree between analysis and lowering.
// The pass set is closed and ordered: fusion, then reversible-emulation,
// then energy-annotation. Each pass is independently toggleable; a
// disabled pass is a no-op pass-through, and malformed options are
// corrected to documented defaults with a warning, never a fault.
package passes

import (
	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

// Name identifies a pass in the enablement list.
type Name string

const (
	Fusion              Name = "fusion"
	ReversibleEmulation Name = "reversible_emulation"
	EnergyAnnotation    Name = "energy_annotation"
)

// All lists the passes in their fixed execution order.
var All = []Name{Fusion, ReversibleEmulation, EnergyAnnotation}

// Config carries per-pass options. A nil options value for an enabled
// pass means documented defaults.
type Config struct {
	Fusion              *FusionOptions      `json:"fusion,omitempty"`
	ReversibleEmulation *ReversibleOptions  `json:"reversible_emulation,omitempty"`
	EnergyAnnotation    *EnergyOptions      `json:"energy_annotation,omitempty"`
}

type FusionOptions struct {
	// Window is the adjacent-instruction window size. Default 2.
	Window int `json:"window"`
	// EmitLegacyLoadAdd selects the 3-operand FUSED_LOAD_ADD_LEGACY form,
	// which drops the loaded value's destination. It is semantically
	// lossy and excluded from new compilations by default.
	EmitLegacyLoadAdd bool `json:"emitLegacyLoadAdd"`
}

func DefaultFusionOptions() *FusionOptions {
	return &FusionOptions{Window: 2}
}

type ReversibleOptions struct {
	// TempReg is the register used to hold saved deltas. Default 31.
	TempReg int `json:"tempReg"`
}

func DefaultReversibleOptions() *ReversibleOptions {
	return &ReversibleOptions{TempReg: 31}
}

type EnergyOptions struct {
	// PerOp maps mnemonics to calibrated costs superseding the registry
	// defaults.
	PerOp map[string]isa.CostOverride `json:"perOp"`
}

func DefaultEnergyOptions() *EnergyOptions {
	return &EnergyOptions{}
}

// Run applies the enabled passes to prog in their fixed order and returns
// the rewritten program with any diagnostics. The tree is rewritten in
// place; the returned pointer is prog.
func Run(prog *ast.Program, enabled []Name, cfg Config) (*ast.Program, diag.List) {
	var ds diag.List
	on := map[Name]bool{}
	for _, name := range enabled {
		switch name {
		case Fusion, ReversibleEmulation, EnergyAnnotation:
			on[name] = true
		default:
			ds.Add(diag.Warnf(diag.Loc{}, "unknown pass %q ignored", name))
		}
	}
	if on[Fusion] {
		runFusion(prog, normalizeFusion(cfg.Fusion, &ds), &ds)
	}
	if on[ReversibleEmulation] {
		runReversibleEmulation(prog, normalizeReversible(cfg.ReversibleEmulation, &ds), &ds)
	}
	if on[EnergyAnnotation] {
		runEnergyAnnotation(prog, normalizeEnergy(cfg.EnergyAnnotation, &ds))
	}
	return prog, ds
}

func normalizeFusion(o *FusionOptions, ds *diag.List) *FusionOptions {
	if o == nil {
		return DefaultFusionOptions()
	}
	out := *o
	if out.Window < 2 {
		ds.Add(diag.Warnf(diag.Loc{}, "fusion window %d out of range, using 2", out.Window))
		out.Window = 2
	}
	return &out
}

func normalizeReversible(o *ReversibleOptions, ds *diag.List) *ReversibleOptions {
	if o == nil {
		return DefaultReversibleOptions()
	}
	out := *o
	if out.TempReg < 0 || out.TempReg > 31 {
		ds.Add(diag.Warnf(diag.Loc{}, "reversible temp register %d out of range, using 31", out.TempReg))
		out.TempReg = 31
	}
	return &out
}

func normalizeEnergy(o *EnergyOptions, ds *diag.List) *EnergyOptions {
	if o == nil {
		return DefaultEnergyOptions()
	}
	out := &EnergyOptions{PerOp: map[string]isa.CostOverride{}}
	for name, c := range o.PerOp {
		if _, ok := isa.Lookup(name); !ok {
			ds.Add(diag.Warnf(diag.Loc{}, "energy annotation for unknown mnemonic %q ignored", name))
			continue
		}
		if c.Energy < 0 {
			ds.Add(diag.Warnf(diag.Loc{}, "negative energy for %s ignored", name))
			continue
		}
		out.PerOp[name] = c
	}
	return out
}

// eachBlock visits every block in the program, nested blocks included.
func eachBlock(prog *ast.Program, fn func(*ast.Block)) {
	var visit func(*ast.Block)
	visit = func(blk *ast.Block) {
		fn(blk)
		for _, s := range blk.Stmts {
			if nested, ok := s.(*ast.Block); ok {
				visit(nested)
			}
		}
	}
	for _, d := range prog.Decls {
		switch d := d.(type) {
		case *ast.Function:
			visit(d.Body)
		case *ast.Block:
			visit(d)
		}
	}
}

// eachInstr visits every instruction in the program in order.
func eachInstr(prog *ast.Program, fn func(*ast.Instr)) {
	eachBlock(prog, func(blk *ast.Block) {
		for _, s := range blk.Stmts {
			if in, ok := s.(*ast.Instr); ok {
				fn(in)
			}
		}
	})
	for _, d := range prog.Decls {
		if in, ok := d.(*ast.Instr); ok {
			fn(in)
		}
	}
}
