package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ACF100/ndc-location-mapper/internal"
)

// ProgressFunc is called once per finished lookup, never concurrently.
type ProgressFunc func(done, total int, res LookupResult)

// LookupBatch runs Lookup for every NDC with at most concurrency lookups in
// flight. Results come back in input order. The error is the context's once it
// is cancelled; per-lookup failures stay in their results.
func (e *Engine) LookupBatch(ctx context.Context, ndcs []string, concurrency int, progress ProgressFunc) ([]LookupResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]LookupResult, len(ndcs))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ndc := range ndcs {
		i, ndc := i, ndc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Lookup errors are internal faults already carried in the result.
			res, _ := e.Lookup(gctx, ndc)
			results[i] = res

			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(ndcs), res)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Rows flattens the rows of several lookups, keeping their order.
func Rows(results []LookupResult) []internal.Row {
	var out []internal.Row
	for _, r := range results {
		out = append(out, r.Rows...)
	}
	return out
}
