package toolchain

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/HamidrezaReyhani/CRZ64I/ir"
)

// CompileAll compiles every source in parallel. The first failing
// compilation cancels the rest; on success the returned map has one
// program per input key.
func (c *Compiler) CompileAll(ctx context.Context, srcs map[string]string) (map[string]*ir.Program, error) {
	var mu sync.Mutex
	out := make(map[string]*ir.Program, len(srcs))
	eg, ctx := errgroup.WithContext(ctx)
	for name, src := range srcs {
		name, src := name, src
		eg.Go(func() error {
			prog, _, err := c.Compile(ctx, src)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = prog
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
