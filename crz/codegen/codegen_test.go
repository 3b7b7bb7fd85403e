package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HamidrezaReyhani/CRZ64I/crz/parser"
	"github.com/HamidrezaReyhani/CRZ64I/ir"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

func lower(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	out, ds := Lower(prog)
	require.False(t, ds.HasErrors(), "diags: %v", ds)
	return out
}

func ops(p *ir.Program) (ret []isa.Op) {
	for _, r := range p.Records {
		ret = append(ret, r.Op)
	}
	return ret
}

func TestLabelResolution(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		LOADI R1, 5;
		loop:
		SUB R1, R1, 1;
		JNZ R1, loop;
		HALT;
	`)
	require.Equal(t, []isa.Op{isa.LOADI, isa.SUB, isa.JNZ, isa.HALT}, ops(p))
	jnz := p.Records[2]
	require.Equal(t, ir.KTarget, jnz.Args[1].Kind)
	require.Equal(t, int64(1), jnz.Args[1].Imm)
	require.Equal(t, 0, p.Entry)
}

func TestCallResolvesAcrossUnits(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		CALL main;
		fn main() {
			return 7;
		}
	`)
	// top stream: CALL, implicit HALT; then the function body
	require.Equal(t, []isa.Op{isa.CALL, isa.HALT, isa.LOADI, isa.RET}, ops(p))
	require.Equal(t, 2, p.Funcs["main"])
	require.Equal(t, ir.Target(2), p.Records[0].Args[0])
	// return value lands in R0
	require.Equal(t, ir.Reg(0), p.Records[2].Args[0])
	require.Equal(t, int64(7), p.Records[2].Args[1].Imm)
}

func TestEntryIsMainWithoutTopLevelCode(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		fn main() {
			NOP;
		}
	`)
	require.Equal(t, p.Funcs["main"], p.Entry)
	require.NotZero(t, p.Entry)
}

// numeric branch targets count from the enclosing unit's first record,
// so they stay valid wherever the unit lands in the flat stream
func TestNumericTargetsAreUnitRelative(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		NOP;
		fn f() {
			NOP;
			JMP 0;
		}
	`)
	// top stream: NOP, implicit HALT; f: NOP, JMP, implicit RET
	require.Equal(t, []isa.Op{isa.NOP, isa.HALT, isa.NOP, isa.JMP, isa.RET}, ops(p))
	require.Equal(t, ir.Target(p.Funcs["f"]), p.Records[3].Args[0])
}

// the entry function's power/thermal_hint attributes become run-start
// hints on the program
func TestEntryFunctionHints(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		#[power=low]
		#[thermal_hint=3]
		fn main() {
			NOP;
		}
	`)
	require.Equal(t, map[string]string{"power": "low", "thermal_hint": "3"}, p.Hints)

	// other attributes are not hints
	p = lower(t, `
		#[reversible]
		fn main() {
			NOP;
		}
	`)
	require.Empty(t, p.Hints)

	// with top-level code the entry is the top stream, not main
	p = lower(t, `
		NOP;
		#[power=low]
		fn main() {
			NOP;
		}
	`)
	require.Empty(t, p.Hints)
}

func TestImplicitTerminators(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		NOP;
		fn f() {
			NOP;
		}
	`)
	require.Equal(t, []isa.Op{isa.NOP, isa.HALT, isa.NOP, isa.RET}, ops(p))
}

func TestUnresolvedLabel(t *testing.T) {
	t.Parallel()
	prog, err := parser.Parse(`JMP nowhere;`)
	require.NoError(t, err)
	_, ds := Lower(prog)
	require.True(t, ds.HasErrors())
	require.Contains(t, ds.Errors()[0].Msg, "unresolved label")
}

func TestDuplicateLabel(t *testing.T) {
	t.Parallel()
	prog, err := parser.Parse(`x: NOP; x: NOP;`)
	require.NoError(t, err)
	_, ds := Lower(prog)
	require.True(t, ds.HasErrors())
	require.Contains(t, ds.Errors()[0].Msg, "duplicate label")
}

func TestParamBinding(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		fn f(a: i64, v: vec<8, i64>, b: i64) -> i64 {
			return b;
		}
	`)
	// scalars bind R1 upward independent of interleaved vector params
	entry := p.Funcs["f"]
	mov := p.Records[entry]
	require.Equal(t, isa.MOV, mov.Op)
	require.Equal(t, ir.Reg(0), mov.Args[0])
	require.Equal(t, ir.Reg(2), mov.Args[1])
}

func TestMemOperandFolding(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		LOAD R1, [100];
		LOAD R2, [R3 + 8];
		STORE R2, [R3 - 4];
	`)
	require.Equal(t, ir.MemAbs(100), p.Records[0].Args[1])
	require.Equal(t, ir.MemBase(3, 8), p.Records[1].Args[1])
	require.Equal(t, ir.MemBase(3, -4), p.Records[2].Args[1])
}

func TestMemOperandMaterializes(t *testing.T) {
	t.Parallel()
	p := lower(t, `LOAD R1, [R2 * 2];`)
	// the address expression computes into a temp, then LOAD indexes it
	require.Equal(t, []isa.Op{isa.MOV, isa.MUL, isa.LOAD, isa.HALT}, ops(p))
	load := p.Records[2]
	require.True(t, load.Args[1].Mem.HasBase)
	require.Equal(t, uint8(16), load.Args[1].Mem.Base)
}

func TestBranchCond(t *testing.T) {
	t.Parallel()
	p := lower(t, `
		x:
		BR_IF lt, R1, R2, x;
	`)
	br := p.Records[0]
	require.Equal(t, isa.BR_IF, br.Op)
	require.Equal(t, ir.KCond, br.Args[0].Kind)
	require.Equal(t, ir.CondLT, br.Args[0].Cond)
	require.Equal(t, ir.Target(0), br.Args[3])
}

func TestModuloLowering(t *testing.T) {
	t.Parallel()
	p := lower(t, `let a = 7 % 3;`)
	// a % b lowers as a - (a/b)*b
	require.Equal(t, []isa.Op{isa.LOADI, isa.DIV, isa.MUL, isa.SUB, isa.HALT}, ops(p))
}

func TestLocalRegisterExhaustion(t *testing.T) {
	t.Parallel()
	src := ""
	for n := 0; n < 20; n++ {
		src += "let x0 = 1;"
	}
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	_, ds := Lower(prog)
	require.True(t, ds.HasErrors())
	require.Contains(t, ds.Errors()[0].Msg, "register slots")
}
