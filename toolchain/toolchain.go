// Package toolchain drives the source-to-IR pipeline: parse, semantic
// checks, the reversibility analysis, the optimization passes, and
// lowering to flat IR. A Compiler memoizes compiled programs by source
// digest so repeated runs of the same program skip the pipeline.
package toolchain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/HamidrezaReyhani/CRZ64I"
	"github.com/HamidrezaReyhani/CRZ64I/config"
	"github.com/HamidrezaReyhani/CRZ64I/crz/codegen"
	"github.com/HamidrezaReyhani/CRZ64I/crz/dataflow"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/crz/parser"
	"github.com/HamidrezaReyhani/CRZ64I/crz/passes"
	"github.com/HamidrezaReyhani/CRZ64I/crz/semantic"
	"github.com/HamidrezaReyhani/CRZ64I/ir"
	"github.com/HamidrezaReyhani/CRZ64I/sim"
)

// CompileError aggregates the error-severity diagnostics that stopped a
// compilation. Warnings ride along for context.
type CompileError struct {
	Diags diag.List
}

func (e *CompileError) Error() string {
	errs := e.Diags.Errors()
	if len(errs) == 0 {
		return "compile failed"
	}
	parts := make([]string, len(errs))
	for i, d := range errs {
		parts[i] = d.String()
	}
	return fmt.Sprintf("compile failed: %s", strings.Join(parts, "; "))
}

// Compile runs the whole pipeline over one source text. The returned
// diagnostic list carries warnings even on success; any error-severity
// diagnostic yields a nil program and a *CompileError.
//
// Reversibility violations are errors when the reversible-emulation
// pass is disabled. With the pass enabled, the violating writes are
// instrumented instead and the pass downgrades them to warnings.
func Compile(ctx context.Context, cfg config.Config, src string) (*ir.Program, diag.List, error) {
	var ds diag.List
	cfg, nds := cfg.Normalize()
	for _, d := range nds {
		ds.Add(d)
	}
	prog, err := parser.Parse(src)
	if err != nil {
		if se, ok := err.(*parser.SyntaxError); ok {
			ds.Add(se.Diagnostic())
			return nil, ds, &CompileError{Diags: ds}
		}
		return nil, ds, err
	}

	for _, d := range semantic.Analyze(prog) {
		ds.Add(d)
	}

	if !passEnabled(cfg.EnabledPasses, passes.ReversibleEmulation) {
		// the returned list already carries one diagnostic per violation
		_, vds := dataflow.Analyze(prog)
		for _, d := range vds {
			ds.Add(d)
		}
	}
	if ds.HasErrors() {
		return nil, ds, &CompileError{Diags: ds}
	}

	prog, pds := passes.Run(prog, cfg.EnabledPasses, cfg.Passes)
	for _, d := range pds {
		ds.Add(d)
	}
	if ds.HasErrors() {
		return nil, ds, &CompileError{Diags: ds}
	}

	out, cds := codegen.Lower(prog)
	for _, d := range cds {
		ds.Add(d)
	}
	if ds.HasErrors() {
		return nil, ds, &CompileError{Diags: ds}
	}
	for _, d := range ds {
		logctx.Warnf(ctx, "%v", d)
	}
	logctx.Debug(ctx, "compiled program",
		zap.Int("records", len(out.Records)),
		zap.Int("funcs", len(out.Funcs)))
	return out, ds, nil
}

func passEnabled(enabled []passes.Name, name passes.Name) bool {
	for _, n := range enabled {
		if n == name {
			return true
		}
	}
	return false
}

// Compiler memoizes Compile results keyed by the digest of the source
// text. The configuration is fixed at construction; programs compiled
// under a different configuration need their own Compiler.
type Compiler struct {
	cfg config.Config

	mu    sync.Mutex
	cache *simplelru.LRU[crz64i.Digest, *ir.Program]
}

// NewCompiler creates a Compiler holding at most 128 compiled programs.
// cfg is normalized once here so the machines Run constructs see the
// documented defaults.
func NewCompiler(cfg config.Config) *Compiler {
	cfg, _ = cfg.Normalize()
	cache, err := simplelru.NewLRU[crz64i.Digest, *ir.Program](128, nil)
	if err != nil {
		panic(err)
	}
	return &Compiler{cfg: cfg, cache: cache}
}

// Compile compiles src, serving repeats from the cache. Diagnostics are
// only produced on a cache miss; a hit returns the program alone.
func (c *Compiler) Compile(ctx context.Context, src string) (*ir.Program, diag.List, error) {
	key := crz64i.Hash(nil, []byte(src))
	c.mu.Lock()
	prog, ok := c.cache.Get(key)
	c.mu.Unlock()
	if ok {
		logctx.Debug(ctx, "compile cache hit", zap.String("digest", fmt.Sprintf("%x", key[:8])))
		return prog, nil, nil
	}
	prog, ds, err := Compile(ctx, c.cfg, src)
	if err != nil {
		return nil, ds, err
	}
	c.mu.Lock()
	c.cache.Add(key, prog)
	c.mu.Unlock()
	return prog, ds, nil
}

// Run compiles src and executes it on a fresh machine.
// The partial result is returned alongside any runtime fault.
func (c *Compiler) Run(ctx context.Context, src string) (sim.Result, error) {
	prog, _, err := c.Compile(ctx, src)
	if err != nil {
		return sim.Result{}, err
	}
	m := sim.New(c.cfg)
	return m.Run(ctx, prog)
}
