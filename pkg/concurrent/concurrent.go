package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach runs action for every item with at most limit goroutines at a
// time. The first error cancels ctx for the remaining actions and is
// returned once all started actions have finished; a cancelled ctx is
// reported as its error. limit <= 0 means no limit.
func ForEach[T any](ctx context.Context, items []T, limit int, action func(ctx context.Context, item T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return action(gctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Map applies mapFn to every item concurrently, preserving order.
func Map[T any, R any](ctx context.Context, items []T, limit int, mapFn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	err := ForEach(ctx, idx, limit, func(ctx context.Context, i int) error {
		r, err := mapFn(ctx, items[i])
		if err != nil {
			return err
		}
		out[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
