package semantic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/crz/parser"
)

func TestAnalyze(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Src      string
		Errors   int
		Warnings int
	}
	tcs := map[string]testCase{
		"clean": {
			Src: `fn main() { ADD R1, R2, R3; HALT; }`,
		},
		"unknown mnemonic": {
			Src:    `fn main() { FROB R1; }`,
			Errors: 1,
		},
		"arity mismatch is a warning": {
			Src:      `fn main() { ADD R1, R2; }`,
			Warnings: 1,
		},
		"unknown attribute is a warning": {
			Src:      `#[sparkly] fn main() { NOP; }`,
			Warnings: 1,
		},
		"reversible takes no value": {
			Src:    `#[reversible=yes] fn main() { NOP; }`,
			Errors: 1,
		},
		"power accepts enum": {
			Src: `#[power=med] fn main() { NOP; }`,
		},
		"power accepts integer": {
			Src: `#[power=7] fn main() { NOP; }`,
		},
		"power rejects garbage": {
			Src:    `#[power=warp] fn main() { NOP; }`,
			Errors: 1,
		},
		"thermal_hint needs non-negative int": {
			Src:    `#[thermal_hint=-2] fn main() { NOP; }`,
			Errors: 1,
		},
		"unbounded op in realtime fn": {
			Src:      `#[realtime] fn main() { WRITE_IO R1; }`,
			Warnings: 1,
		},
		"errors collected across functions": {
			Src:    `fn a() { FROB R1; } fn b() { FROB R2; }`,
			Errors: 2,
		},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			prog, err := parser.Parse(tc.Src)
			require.NoError(t, err)
			ds := Analyze(prog)
			require.Len(t, ds.Errors(), tc.Errors, "diags: %v", ds)
			require.Len(t, warnings(ds), tc.Warnings, "diags: %v", ds)
		})
	}
}

func warnings(ds diag.List) (ret diag.List) {
	for _, d := range ds {
		if d.Severity == diag.Warning {
			ret = append(ret, d)
		}
	}
	return ret
}
