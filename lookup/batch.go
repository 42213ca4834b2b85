package lookup

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// InvalidCall pairs a rejected call sign with its validation error.
type InvalidCall struct {
	CallSign string
	Err      error
}

// BatchResult collects the outcome of LookupBatch. Hit order across call signs
// is not defined; hits of one call sign keep their Lookup order.
type BatchResult struct {
	Hits    []Hit
	Invalid []InvalidCall
	// Processed counts call signs looked up before completion or cancellation.
	Processed int
}

type batchBuffer struct {
	hits      []Hit
	invalid   []InvalidCall
	processed int
}

// Purpose: Resolve many call signs concurrently.
// Key aspects: Bounded worker pool; each worker fills its own buffer and the
// buffers are merged after all workers stop. Cancellation is checked between
// call signs; a canceled batch returns the partial result and ctx.Err().
// Upstream: main batch mode, callers.
// Downstream: Engine.Lookup, errgroup.
func (e *Engine) LookupBatch(ctx context.Context, calls []string) (BatchResult, error) {
	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(calls) {
		workers = len(calls)
	}
	if workers == 0 {
		return BatchResult{}, ctx.Err()
	}

	jobs := make(chan string)
	buffers := make([]batchBuffer, workers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, call := range calls {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case jobs <- call:
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		buf := &buffers[w]
		g.Go(func() error {
			for call := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				hits, err := e.Lookup(call)
				buf.processed++
				if err != nil {
					buf.invalid = append(buf.invalid, InvalidCall{CallSign: call, Err: err})
					continue
				}
				buf.hits = append(buf.hits, hits...)
			}
			return nil
		})
	}
	err := g.Wait()

	var out BatchResult
	for i := range buffers {
		out.Hits = append(out.Hits, buffers[i].hits...)
		out.Invalid = append(out.Invalid, buffers[i].invalid...)
		out.Processed += buffers[i].processed
	}
	return out, err
}
