package evaluate

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// cancelCheckInterval is how many records a worker tests between context
// checks.
const cancelCheckInterval = 1024

// Filter returns the records matching pred, in input order.
func Filter[R Record](records []R, pred Predicate) []R {
	var out []R
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterParallel is Filter with the records split into contiguous partitions
// tested on separate goroutines. The result keeps input order. A workers
// value below 1 uses GOMAXPROCS. It returns ctx's error if ctx is canceled
// before every partition finishes.
func FilterParallel[R Record](ctx context.Context, records []R, pred Predicate, workers int) ([]R, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(records) {
		workers = len(records)
	}
	if workers <= 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Filter(records, pred), nil
	}

	matched := make([]bool, len(records))
	size := (len(records) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(records); start += size {
		start := start
		end := min(start+size, len(records))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				matched[i] = pred(records[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []R
	for i, ok := range matched {
		if ok {
			out = append(out, records[i])
		}
	}
	return out, nil
}
