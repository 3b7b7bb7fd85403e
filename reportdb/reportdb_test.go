package reportdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HamidrezaReyhani/CRZ64I"
	"github.com/HamidrezaReyhani/CRZ64I/internal/testutil"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
	"github.com/HamidrezaReyhani/CRZ64I/reportdb/internal/dbutil"
	"github.com/HamidrezaReyhani/CRZ64I/sim"
)

func newDB(t *testing.T) *DB {
	ctx := testutil.Context(t)
	d, err := Setup(ctx, dbutil.NewTestDB(t))
	require.NoError(t, err)
	return d
}

func sampleResult() sim.Result {
	return sim.Result{
		Status:      sim.StatusHalted,
		Cycles:      120,
		Energy:      3.5e-6,
		WallSeconds: 3.5e-7,
		Steps:       100,
		Thermal:     map[string]float64{"alu": 25.4, "mem": 25.1},
		Hints:       map[string]string{"power": "low"},
		OpCounts:    map[string]uint64{"ADD": 60, "LOADI": 40},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	d := newDB(t)
	digest := crz64i.Hash(nil, []byte("program-a"))

	id, err := d.SaveRun(ctx, digest, 25.0, sampleResult())
	require.NoError(t, err)
	require.NotZero(t, id)

	r, err := d.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "halted", r.Status)
	require.Equal(t, uint64(120), r.Cycles)
	require.Equal(t, digest[:], r.Digest)
	require.InEpsilon(t, 25.4, r.MaxTemp, 1e-9)
	require.False(t, r.Fault.Valid)

	counts, err := d.OpCounts(ctx, id)
	require.NoError(t, err)
	require.Equal(t, map[string]uint64{"ADD": 60, "LOADI": 40}, counts)
}

func TestSaveFaultedRun(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	d := newDB(t)
	res := sampleResult()
	res.Status = sim.StatusFaulted
	res.Fault = &sim.Fault{PC: 3, Msg: "division by zero"}

	id, err := d.SaveRun(ctx, crz64i.Hash(nil, []byte("x")), 25.0, res)
	require.NoError(t, err)
	r, err := d.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "faulted", r.Status)
	require.True(t, r.Fault.Valid)
	require.Contains(t, r.Fault.String, "division by zero")
}

func TestListRunsAndTotalEnergy(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	d := newDB(t)
	a := crz64i.Hash(nil, []byte("a"))
	b := crz64i.Hash(nil, []byte("b"))

	for n := 0; n < 3; n++ {
		_, err := d.SaveRun(ctx, a, 25.0, sampleResult())
		require.NoError(t, err)
	}
	_, err := d.SaveRun(ctx, b, 25.0, sampleResult())
	require.NoError(t, err)

	runs, err := d.ListRuns(ctx, a)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	// newest first
	require.Greater(t, runs[0].ID, runs[2].ID)

	total, err := d.TotalEnergy(ctx, a)
	require.NoError(t, err)
	require.InEpsilon(t, 3*3.5e-6, total, 1e-9)

	none, err := d.TotalEnergy(ctx, crz64i.Hash(nil, []byte("unknown")))
	require.NoError(t, err)
	require.Zero(t, none)
}

func TestMeasurementsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	d := newDB(t)

	ms, err := d.Measurements(ctx)
	require.NoError(t, err)
	require.Empty(t, ms)

	err = d.SaveMeasurements(ctx, map[string]isa.CostOverride{
		"ADD": {Energy: 1.1e-7, Latency: 1},
		"MUL": {Energy: 9.0e-7, Latency: 4},
	})
	require.NoError(t, err)

	// re-measuring replaces the earlier row
	err = d.SaveMeasurements(ctx, map[string]isa.CostOverride{
		"MUL": {Energy: 8.5e-7, Latency: 3},
	})
	require.NoError(t, err)

	ms, err = d.Measurements(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]isa.CostOverride{
		"ADD": {Energy: 1.1e-7, Latency: 1},
		"MUL": {Energy: 8.5e-7, Latency: 3},
	}, ms)
}
