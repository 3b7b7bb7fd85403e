package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HamidrezaReyhani/CRZ64I"
	"github.com/HamidrezaReyhani/CRZ64I/config"
	"github.com/HamidrezaReyhani/CRZ64I/crz/passes"
	"github.com/HamidrezaReyhani/CRZ64I/internal/testutil"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
	"github.com/HamidrezaReyhani/CRZ64I/reportdb"
	"github.com/HamidrezaReyhani/CRZ64I/sim"
	"github.com/HamidrezaReyhani/CRZ64I/toolchain"
)

// the full path: source text through the compiler, the simulator, and
// into report rows keyed by the source digest
func TestCompileRunPersist(t *testing.T) {
	ctx := testutil.Context(t)
	const src = `
		fn main() -> i64 {
			let acc = 0;
			for i in 0..100 {
				ADD acc, acc, i;
			}
			return acc;
		}
	`
	cfg := config.Default()
	prog, _, err := toolchain.Compile(ctx, cfg, src)
	require.NoError(t, err)

	m := sim.New(cfg)
	res, err := m.Run(ctx, prog)
	require.NoError(t, err)
	require.Equal(t, sim.StatusHalted, res.Status)
	require.Equal(t, int64(4950), m.Regs[0])

	db, err := reportdb.Open(ctx, ":memory:")
	require.NoError(t, err)
	digest := crz64i.Hash(nil, []byte(src))
	id, err := db.SaveRun(ctx, digest, cfg.Thermal.BaseTemp, res)
	require.NoError(t, err)

	row, err := db.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, res.Cycles, row.Cycles)
	require.InEpsilon(t, res.Energy, row.Energy, 1e-9)

	counts, err := db.OpCounts(ctx, id)
	require.NoError(t, err)
	require.Equal(t, res.OpCounts, counts)
}

func TestFaultIsRecorded(t *testing.T) {
	ctx := testutil.Context(t)
	const src = `
		fn main() -> i64 {
			LOADI R1, 1;
			LOADI R2, 0;
			DIV R0, R1, R2;
			return R0;
		}
	`
	cfg := config.Default()
	prog, _, err := toolchain.Compile(ctx, cfg, src)
	require.NoError(t, err)

	m := sim.New(cfg)
	res, err := m.Run(ctx, prog)
	require.Error(t, err)
	require.Equal(t, sim.StatusFaulted, res.Status)

	db, err := reportdb.Open(ctx, ":memory:")
	require.NoError(t, err)
	id, err := db.SaveRun(ctx, crz64i.Hash(nil, []byte(src)), cfg.Thermal.BaseTemp, res)
	require.NoError(t, err)
	row, err := db.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "faulted", row.Status)
	require.Contains(t, row.Fault.String, "division by zero")
}

func TestBudgetedRunPersists(t *testing.T) {
	ctx := testutil.Context(t)
	cfg := config.Default()
	cfg.MaxSteps = 50
	prog, _, err := toolchain.Compile(ctx, cfg, `
		loop:
		ADD R1, R1, 1;
		JMP loop;
	`)
	require.NoError(t, err)

	m := sim.New(cfg)
	res, err := m.Run(ctx, prog)
	require.NoError(t, err)
	require.Equal(t, sim.StatusBudgetExceeded, res.Status)
	require.Equal(t, uint64(50), res.Steps)

	db, err := reportdb.Open(ctx, ":memory:")
	require.NoError(t, err)
	id, err := db.SaveRun(ctx, crz64i.Hash(nil, []byte("budget")), cfg.Thermal.BaseTemp, res)
	require.NoError(t, err)
	row, err := db.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "budget exceeded", row.Status)
}

// calibrated measurements persisted in the report database feed the
// energy-annotation pass on the next compile
func TestCalibratedRecompile(t *testing.T) {
	ctx := testutil.Context(t)
	const src = `
		fn main() -> i64 {
			LOADI R1, 6;
			MUL R0, R1, R1;
			return R0;
		}
	`
	db, err := reportdb.Open(ctx, ":memory:")
	require.NoError(t, err)
	err = db.SaveMeasurements(ctx, map[string]isa.CostOverride{
		"MUL": {Energy: 2.0e-6, Latency: 40},
	})
	require.NoError(t, err)
	measured, err := db.Measurements(ctx)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.EnabledPasses = []passes.Name{passes.EnergyAnnotation}
	cfg.Passes.EnergyAnnotation = &passes.EnergyOptions{PerOp: measured}
	prog, _, err := toolchain.Compile(ctx, cfg, src)
	require.NoError(t, err)

	m := sim.New(cfg)
	res, err := m.Run(ctx, prog)
	require.NoError(t, err)
	require.Equal(t, int64(36), m.Regs[0])

	base := config.Default()
	plain, _, err := toolchain.Compile(ctx, base, src)
	require.NoError(t, err)
	m2 := sim.New(base)
	res2, err := m2.Run(ctx, plain)
	require.NoError(t, err)
	require.Equal(t, res.Cycles-res2.Cycles, uint64(40-isa.MUL.Info().Latency))
}
