package passes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
	"github.com/HamidrezaReyhani/CRZ64I/crz/parser"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	return prog
}

func instrs(blk *ast.Block) (ret []*ast.Instr) {
	for _, s := range blk.Stmts {
		switch s := s.(type) {
		case *ast.Instr:
			ret = append(ret, s)
		case *ast.Block:
			ret = append(ret, instrs(s)...)
		}
	}
	return ret
}

func TestUnknownPassIgnored(t *testing.T) {
	t.Parallel()
	prog := parse(t, `NOP;`)
	_, ds := Run(prog, []Name{"defrag"}, Config{})
	require.Len(t, ds, 1)
	require.Contains(t, ds[0].Msg, "defrag")
	require.False(t, ds.HasErrors())
}

func TestFusionLoadAdd(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		fn f() {
			LOAD R1, [100];
			ADD R2, R1, 5;
		}
	`)
	_, ds := Run(prog, []Name{Fusion}, Config{})
	require.Empty(t, ds)
	ins := instrs(prog.Funcs()[0].Body)
	require.Len(t, ins, 1)
	fused := ins[0]
	require.Equal(t, "FUSED_LOAD_ADD", fused.Mnemonic)
	// both destinations survive: the loaded register and the sum register
	require.Equal(t, "R1", fused.Operands[0].Text)
	require.Equal(t, "R2", fused.Operands[1].Text)
	require.Equal(t, ast.OpdMem, fused.Operands[2].Kind)
	require.Equal(t, int64(5), fused.Operands[3].Num)
}

func TestFusionLegacyLoadAddWarns(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		fn f() {
			LOAD R1, [100];
			ADD R2, R1, 5;
		}
	`)
	cfg := Config{Fusion: &FusionOptions{Window: 2, EmitLegacyLoadAdd: true}}
	_, ds := Run(prog, []Name{Fusion}, cfg)
	require.Len(t, ds, 1)
	require.Contains(t, ds[0].Msg, "lossy")
	ins := instrs(prog.Funcs()[0].Body)
	require.Len(t, ins, 1)
	require.Equal(t, "FUSED_LOAD_ADD_LEGACY", ins[0].Mnemonic)
	require.Len(t, ins[0].Operands, 3)
}

func TestFusionAddStore(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		fn f() {
			ADD R1, R2, R3;
			STORE R1, [200];
		}
	`)
	_, ds := Run(prog, []Name{Fusion}, Config{})
	require.Empty(t, ds)
	ins := instrs(prog.Funcs()[0].Body)
	require.Len(t, ins, 1)
	require.Equal(t, "FUSED_ADD_STORE", ins[0].Mnemonic)
}

// fusion only applies when the intermediate register matches
func TestFusionRequiresMatchingRegister(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		fn f() {
			LOAD R1, [100];
			ADD R2, R3, 5;
		}
	`)
	Run(prog, []Name{Fusion}, Config{})
	require.Len(t, instrs(prog.Funcs()[0].Body), 2)
}

// the fused form reads its second source before the load lands, so a
// pair whose add source aliases the load destination must stay unfused
func TestFusionSkipsAliasedAddSource(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		fn f() {
			LOAD R1, [100];
			ADD R2, R1, R1;
		}
	`)
	_, ds := Run(prog, []Name{Fusion}, Config{})
	require.Empty(t, ds)
	ins := instrs(prog.Funcs()[0].Body)
	require.Len(t, ins, 2)
	require.Equal(t, "LOAD", ins[0].Mnemonic)
	require.Equal(t, "ADD", ins[1].Mnemonic)
}

// the fused form resolves the store address before the sum is written,
// so an address that references the sum register must stay unfused
func TestFusionSkipsAliasedStoreAddress(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		fn f() {
			ADD R1, R2, R3;
			STORE R1, [R1];
		}
	`)
	_, ds := Run(prog, []Name{Fusion}, Config{})
	require.Empty(t, ds)
	require.Len(t, instrs(prog.Funcs()[0].Body), 2)
}

func TestFusionSkipsAliasedStoreAddressExpr(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		fn f() {
			ADD R1, R2, R3;
			STORE R1, [R1 + 8];
		}
	`)
	Run(prog, []Name{Fusion}, Config{})
	require.Len(t, instrs(prog.Funcs()[0].Body), 2)
}

func TestFusionWindowNormalized(t *testing.T) {
	t.Parallel()
	prog := parse(t, `NOP;`)
	_, ds := Run(prog, []Name{Fusion}, Config{Fusion: &FusionOptions{Window: 0}})
	require.Len(t, ds, 1)
	require.Contains(t, ds[0].Msg, "window")
}

func TestReversibleEmulationInstruments(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		#[reversible]
		fn f(x: i64) {
			ADD x, x, 1;
		}
	`)
	_, ds := Run(prog, []Name{ReversibleEmulation}, Config{})
	require.Len(t, ds, 1)
	require.Contains(t, ds[0].Msg, "instrumenting")
	require.False(t, ds.HasErrors())

	ins := instrs(prog.Funcs()[0].Body)
	require.Len(t, ins, 3)
	require.Equal(t, "SAVE_DELTA", ins[0].Mnemonic)
	require.Equal(t, "R31", ins[0].Operands[0].Text)
	require.Equal(t, "x", ins[0].Operands[1].Text)
	require.Equal(t, "ADD", ins[1].Mnemonic)
	require.Equal(t, "RESTORE_DELTA", ins[2].Mnemonic)
	require.Equal(t, "x", ins[2].Operands[0].Text)
}

func TestReversibleEmulationIdempotent(t *testing.T) {
	t.Parallel()
	prog := parse(t, `
		#[reversible]
		fn f(x: i64) {
			SAVE_DELTA R31, x;
			ADD x, x, 1;
		}
	`)
	_, ds := Run(prog, []Name{ReversibleEmulation}, Config{})
	require.Empty(t, ds)
	require.Len(t, instrs(prog.Funcs()[0].Body), 2)
}

func TestReversibleTempRegNormalized(t *testing.T) {
	t.Parallel()
	prog := parse(t, `#[reversible] fn f(x: i64) { ADD x, x, 1; }`)
	cfg := Config{ReversibleEmulation: &ReversibleOptions{TempReg: 99}}
	_, ds := Run(prog, []Name{ReversibleEmulation}, cfg)
	require.Contains(t, ds[0].Msg, "out of range")
	ins := instrs(prog.Funcs()[0].Body)
	require.Equal(t, "R31", ins[0].Operands[0].Text)
}

func TestEnergyAnnotation(t *testing.T) {
	t.Parallel()
	prog := parse(t, `ADD R1, R2, R3; SUB R4, R5, R6;`)
	cfg := Config{EnergyAnnotation: &EnergyOptions{
		PerOp: map[string]isa.CostOverride{
			"ADD":  {Energy: 9e-9, Latency: 2},
			"FROB": {Energy: 1},
		},
	}}
	_, ds := Run(prog, []Name{EnergyAnnotation}, cfg)
	require.Len(t, ds, 1)
	require.Contains(t, ds[0].Msg, "FROB")

	stmts := prog.TopStmts()
	add := stmts[0].(*ast.Instr)
	require.NotNil(t, add.Cost)
	require.Equal(t, uint32(2), add.Cost.Latency)
	require.Nil(t, stmts[1].(*ast.Instr).Cost)
}
