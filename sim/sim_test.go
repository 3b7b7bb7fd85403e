package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HamidrezaReyhani/CRZ64I/config"
	"github.com/HamidrezaReyhani/CRZ64I/internal/testutil"
	"github.com/HamidrezaReyhani/CRZ64I/ir"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

func rec(op isa.Op, args ...ir.Operand) ir.Record {
	return ir.Record{Op: op, Args: args}
}

func prog(recs ...ir.Record) *ir.Program {
	return &ir.Program{Records: recs}
}

func run(t *testing.T, cfg config.Config, p *ir.Program) (*Machine, Result) {
	t.Helper()
	m := New(cfg)
	res, err := m.Run(testutil.Context(t), p)
	require.NoError(t, err)
	return m, res
}

func TestArithmeticHalt(t *testing.T) {
	t.Parallel()
	m, res := run(t, config.Default(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(6)),
		rec(isa.LOADI, ir.Reg(2), ir.Imm(7)),
		rec(isa.MUL, ir.Reg(0), ir.Reg(1), ir.Reg(2)),
		rec(isa.HALT),
	))
	require.Equal(t, StatusHalted, res.Status)
	require.Equal(t, int64(42), m.Regs[0])
	require.Equal(t, uint64(4), res.Steps)
}

func TestAccounting(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	_, res := run(t, cfg, prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(1)),
		rec(isa.ADD, ir.Reg(1), ir.Reg(1), ir.Imm(1)),
		rec(isa.HALT),
	))
	want := isa.LOADI.Info().Latency + isa.ADD.Info().Latency + isa.HALT.Info().Latency
	require.Equal(t, uint64(want), res.Cycles)
	wantEnergy := isa.LOADI.Info().Energy + isa.ADD.Info().Energy + isa.HALT.Info().Energy
	require.InEpsilon(t, wantEnergy, res.Energy, 1e-12)
	require.InEpsilon(t, float64(want)/cfg.ClockHz, res.WallSeconds, 1e-12)
	require.Equal(t, uint64(1), res.OpCounts["ADD"])
}

func TestCostOverride(t *testing.T) {
	t.Parallel()
	r := rec(isa.ADD, ir.Reg(1), ir.Reg(1), ir.Imm(1))
	r.Cost = &isa.CostOverride{Energy: 0.5, Latency: 100}
	_, res := run(t, config.Default(), prog(r, rec(isa.HALT)))
	require.Equal(t, uint64(100+isa.HALT.Info().Latency), res.Cycles)
	require.Greater(t, res.Energy, 0.5)
}

func TestEnergyScalesWithUnit(t *testing.T) {
	t.Parallel()
	p := prog(rec(isa.ADD, ir.Reg(1), ir.Reg(1), ir.Imm(1)), rec(isa.HALT))
	_, res1 := run(t, config.Default(), p)
	cfg := config.Default()
	cfg.EnergyUnit = 10
	_, res10 := run(t, cfg, p)
	require.InEpsilon(t, res1.Energy*10, res10.Energy, 1e-9)
}

func TestThermalHeating(t *testing.T) {
	t.Parallel()
	recs := make([]ir.Record, 0, 1001)
	for n := 0; n < 1000; n++ {
		recs = append(recs, rec(isa.MUL, ir.Reg(1), ir.Reg(1), ir.Imm(3)))
	}
	recs = append(recs, rec(isa.HALT))
	cfg := config.Default()
	_, res := run(t, cfg, prog(recs...))
	require.Greater(t, res.Thermal["alu"], cfg.Thermal.BaseTemp)
	require.Equal(t, res.Thermal["alu"], res.MaxTemp(cfg.Thermal.BaseTemp))
}

func TestHintsLastWriteWins(t *testing.T) {
	t.Parallel()
	_, res := run(t, config.Default(), prog(
		rec(isa.SET_PWR_MODE, ir.Str("low")),
		rec(isa.SET_THERM_POLICY, ir.Str("throttle")),
		rec(isa.SET_PWR_MODE, ir.Str("high")),
		rec(isa.HALT),
	))
	require.Equal(t, "high", res.Hints["power"])
	require.Equal(t, "throttle", res.Hints["thermal_policy"])
}

func TestLowPowerModeScalesEnergy(t *testing.T) {
	t.Parallel()
	_, res := run(t, config.Default(), prog(
		rec(isa.SET_PWR_MODE, ir.Str("low")),
		rec(isa.ADD, ir.Reg(1), ir.Reg(1), ir.Imm(1)),
		rec(isa.HALT),
	))
	// the hint op itself is accounted before it executes, so only the
	// ops after it are discounted
	want := isa.SET_PWR_MODE.Info().Energy +
		lowPowerScale*(isa.ADD.Info().Energy+isa.HALT.Info().Energy)
	require.InEpsilon(t, want, res.Energy, 1e-12)
}

func TestCoolPolicyStrengthensCooling(t *testing.T) {
	t.Parallel()
	hot := func(policy string) float64 {
		recs := []ir.Record{rec(isa.SET_THERM_POLICY, ir.Str(policy))}
		for n := 0; n < 1000; n++ {
			recs = append(recs, rec(isa.MUL, ir.Reg(1), ir.Reg(1), ir.Imm(3)))
		}
		recs = append(recs, rec(isa.HALT))
		_, res := run(t, config.Default(), prog(recs...))
		return res.Thermal["alu"]
	}
	require.Less(t, hot("cool"), hot("throttle"))
}

func TestMemoryBounds(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.MemoryLimit = 16
	m := New(cfg)
	_, err := m.Run(context.Background(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(1)),
		rec(isa.STORE, ir.Reg(1), ir.MemAbs(16)),
	))
	fault := &Fault{}
	require.ErrorAs(t, err, &fault)
	require.Contains(t, fault.Msg, "out of bounds")
	// no partial write from the faulting instruction
	require.Empty(t, m.Mem)
	require.Equal(t, StatusFaulted, m.result().Status)
}

func TestNegativeAddressFaults(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	_, err := m.Run(context.Background(), prog(
		rec(isa.LOAD, ir.Reg(1), ir.MemAbs(-1)),
	))
	require.Error(t, err)
}

func TestDivByZeroFaults(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	res, err := m.Run(context.Background(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(9)),
		rec(isa.DIV, ir.Reg(0), ir.Reg(1), ir.Imm(0)),
	))
	fault := &Fault{}
	require.ErrorAs(t, err, &fault)
	require.Contains(t, fault.Msg, "division by zero")
	require.Equal(t, isa.DIV, fault.Op)
	require.Equal(t, StatusFaulted, res.Status)
	// cost accounting precedes execution, so the faulting op is billed
	require.Equal(t, uint64(isa.LOADI.Info().Latency+isa.DIV.Info().Latency), res.Cycles)
	require.Zero(t, m.Regs[0])
}

func TestStepBudget(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.MaxSteps = 10
	_, res := run(t, cfg, prog(
		rec(isa.JMP, ir.Target(0)),
	))
	require.Equal(t, StatusBudgetExceeded, res.Status)
	require.Equal(t, uint64(10), res.Steps)
}

func TestSandboxDeniesIO(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	_, err := m.Run(context.Background(), prog(rec(isa.WRITE_IO, ir.Reg(1))))
	require.ErrorContains(t, err, "sandbox")
}

func TestSandboxAllowsIO(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Sandbox.AllowIO = true
	m := New(cfg)
	m.Input = []int64{55}
	_, res := run2(t, m, prog(
		rec(isa.READ_IO, ir.Reg(1)),
		rec(isa.WRITE_IO, ir.Reg(1)),
		rec(isa.HALT),
	))
	require.Equal(t, StatusHalted, res.Status)
	require.Equal(t, []int64{55}, m.IOLog)
}

func run2(t *testing.T, m *Machine, p *ir.Program) (*Machine, Result) {
	t.Helper()
	res, err := m.Run(testutil.Context(t), p)
	require.NoError(t, err)
	return m, res
}

func TestCallRet(t *testing.T) {
	t.Parallel()
	// entry calls the function at index 3, which doubles R1 into R0
	m, res := run(t, config.Default(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(21)),
		rec(isa.CALL, ir.Target(3)),
		rec(isa.HALT),
		rec(isa.ADD, ir.Reg(0), ir.Reg(1), ir.Reg(1)),
		rec(isa.RET),
	))
	require.Equal(t, StatusHalted, res.Status)
	require.Equal(t, int64(42), m.Regs[0])
}

// RET with an empty call stack is a clean halt
func TestRetAtTopHalts(t *testing.T) {
	t.Parallel()
	_, res := run(t, config.Default(), prog(rec(isa.RET)))
	require.Equal(t, StatusHalted, res.Status)
}

func TestCallDepthBounded(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	_, err := m.Run(context.Background(), prog(
		rec(isa.CALL, ir.Target(0)),
	))
	require.ErrorContains(t, err, "call stack overflow")
}

func TestBranchConditions(t *testing.T) {
	t.Parallel()
	m, _ := run(t, config.Default(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(5)),
		rec(isa.BR_IF, ir.CondOp(ir.CondGE), ir.Reg(1), ir.Imm(5), ir.Target(4)),
		rec(isa.LOADI, ir.Reg(2), ir.Imm(99)), // skipped
		rec(isa.HALT),
		rec(isa.LOADI, ir.Reg(2), ir.Imm(1)),
		rec(isa.HALT),
	))
	require.Equal(t, int64(1), m.Regs[2])
}

func TestJZJNZ(t *testing.T) {
	t.Parallel()
	m, _ := run(t, config.Default(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(0)),
		rec(isa.JZ, ir.Reg(1), ir.Target(3)),
		rec(isa.HALT),
		rec(isa.LOADI, ir.Reg(2), ir.Imm(7)),
		rec(isa.JNZ, ir.Reg(2), ir.Target(6)),
		rec(isa.HALT),
		rec(isa.LOADI, ir.Reg(3), ir.Imm(1)),
		rec(isa.HALT),
	))
	require.Equal(t, int64(1), m.Regs[3])
}

func TestSaveRestoreDelta(t *testing.T) {
	t.Parallel()
	m, _ := run(t, config.Default(), prog(
		rec(isa.LOADI, ir.Reg(5), ir.Imm(40)),
		rec(isa.SAVE_DELTA, ir.Reg(31), ir.Reg(5)),
		rec(isa.LOADI, ir.Reg(5), ir.Imm(999)),
		rec(isa.RESTORE_DELTA, ir.Reg(5), ir.Reg(31)),
		rec(isa.HALT),
	))
	require.Equal(t, int64(40), m.Regs[5])
}

func TestFusedLoadAddWritesBoth(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	m.Mem[100] = 30
	_, res := run2(t, m, prog(
		rec(isa.FUSED_LOAD_ADD, ir.Reg(1), ir.Reg(2), ir.MemAbs(100), ir.Imm(12)),
		rec(isa.HALT),
	))
	require.Equal(t, StatusHalted, res.Status)
	require.Equal(t, int64(30), m.Regs[1])
	require.Equal(t, int64(42), m.Regs[2])
}

func TestFusedAddStore(t *testing.T) {
	t.Parallel()
	m, _ := run(t, config.Default(), prog(
		rec(isa.FUSED_ADD_STORE, ir.Reg(1), ir.Imm(20), ir.Imm(22), ir.MemAbs(8)),
		rec(isa.HALT),
	))
	require.Equal(t, int64(42), m.Regs[1])
	require.Equal(t, int64(42), m.Mem[8])
}

func TestVectorOps(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	for i := 0; i < VLanes; i++ {
		m.Mem[int64(i)] = int64(i + 1)
	}
	_, _ = run2(t, m, prog(
		rec(isa.VLOAD, ir.VReg(1), ir.MemAbs(0)),
		rec(isa.VADD, ir.VReg(2), ir.VReg(1), ir.VReg(1)),
		rec(isa.VREDUCE_SUM, ir.Reg(0), ir.VReg(2)),
		rec(isa.HALT),
	))
	// sum(1..8) doubled
	require.Equal(t, int64(72), m.Regs[0])
}

func TestAtomics(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	m.Mem[4] = 10
	_, _ = run2(t, m, prog(
		rec(isa.ATOMIC_INC, ir.Reg(1), ir.MemAbs(4)),
		rec(isa.CMPXCHG, ir.Reg(2), ir.MemAbs(4), ir.Imm(11), ir.Imm(99)),
		rec(isa.HALT),
	))
	require.Equal(t, int64(10), m.Regs[1])
	require.Equal(t, int64(11), m.Regs[2])
	require.Equal(t, int64(99), m.Mem[4])
}

func TestLockTwiceFaults(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	_, err := m.Run(context.Background(), prog(
		rec(isa.LOCK, ir.MemAbs(0)),
		rec(isa.LOCK, ir.MemAbs(0)),
	))
	require.ErrorContains(t, err, "deadlock")

	m2 := New(config.Default())
	_, res := run2(t, m2, prog(
		rec(isa.LOCK, ir.MemAbs(0)),
		rec(isa.UNLOCK, ir.MemAbs(0)),
		rec(isa.LOCK, ir.MemAbs(0)),
		rec(isa.HALT),
	))
	require.Equal(t, StatusHalted, res.Status)
}

func TestProfileRegions(t *testing.T) {
	t.Parallel()
	_, res := run(t, config.Default(), prog(
		rec(isa.PROFILE_START, ir.Str("hot")),
		rec(isa.MUL, ir.Reg(1), ir.Reg(1), ir.Imm(2)),
		rec(isa.PROFILE_STOP, ir.Str("hot")),
		rec(isa.HALT),
	))
	// the region covers the MUL and the PROFILE_STOP itself
	want := uint64(isa.MUL.Info().Latency + isa.PROFILE_STOP.Info().Latency)
	require.Equal(t, want, res.Profiles["hot"])
}

func TestHashOps(t *testing.T) {
	t.Parallel()
	runHash := func() int64 {
		m, _ := run(t, config.Default(), prog(
			rec(isa.HASH_INIT),
			rec(isa.LOADI, ir.Reg(1), ir.Imm(12345)),
			rec(isa.HASH_UPDATE, ir.Reg(1)),
			rec(isa.HASH_FINAL, ir.Reg(2)),
			rec(isa.HALT),
		))
		return m.Regs[2]
	}
	h1, h2 := runHash(), runHash()
	require.NotZero(t, h1)
	require.Equal(t, h1, h2)
}

func TestHashUpdateWithoutInitFaults(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	_, err := m.Run(context.Background(), prog(rec(isa.HASH_UPDATE, ir.Reg(1))))
	require.ErrorContains(t, err, "HASH_INIT")
}

func TestCRC32Deterministic(t *testing.T) {
	t.Parallel()
	m, _ := run(t, config.Default(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(7)),
		rec(isa.CRC32, ir.Reg(2), ir.Reg(1)),
		rec(isa.CRC32, ir.Reg(3), ir.Reg(1)),
		rec(isa.HALT),
	))
	require.NotZero(t, m.Regs[2])
	require.Equal(t, m.Regs[2], m.Regs[3])
}

func TestExtHandler(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	_, err := m.Run(context.Background(), prog(rec(isa.EXT, ir.Str("custom"))))
	require.ErrorContains(t, err, "no extension handler")

	m2 := New(config.Default())
	m2.RegisterExt(func(m *Machine, args []ir.Operand) error {
		m.Regs[9] = 123
		return nil
	})
	_, res := run2(t, m2, prog(rec(isa.EXT, ir.Str("custom")), rec(isa.HALT)))
	require.Equal(t, StatusHalted, res.Status)
	require.Equal(t, int64(123), m2.Regs[9])
}

func TestUnknownOpcodeFaults(t *testing.T) {
	t.Parallel()
	m := New(config.Default())
	_, err := m.Run(context.Background(), prog(ir.Record{Op: isa.Op(0xff)}))
	require.ErrorContains(t, err, "unknown opcode")
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(config.Default())
	_, err := m.Run(ctx, prog(rec(isa.JMP, ir.Target(0))))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFlags(t *testing.T) {
	t.Parallel()
	m, _ := run(t, config.Default(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(5)),
		rec(isa.SUB, ir.Reg(1), ir.Reg(1), ir.Imm(5)),
		rec(isa.HALT),
	))
	require.True(t, m.Flags.Z)
	require.False(t, m.Flags.N)

	m2, _ := run(t, config.Default(), prog(
		rec(isa.LOADI, ir.Reg(1), ir.Imm(-5)),
		rec(isa.HALT),
	))
	require.False(t, m2.Flags.Z)
	require.True(t, m2.Flags.N)
}
