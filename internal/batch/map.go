// Package batch runs independent work items on a bounded pool of goroutines
// and reduces their tagged outcomes into a summary.
package batch

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc is called after each item completes with the number of
// completed items and the total. Calls are serialised.
type ProgressFunc func(done, total int)

type options struct {
	progress ProgressFunc
}

// Option configures Map.
type Option func(*options)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// Workers resolves a requested worker count: 0 or less means one per CPU, and
// never more workers than items.
func Workers(requested, items int) int {
	n := requested
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > items {
		n = items
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Map applies fn to every item using at most workers goroutines and returns
// the results in input order. Items share no state; fn must not panic.
//
// When ctx is cancelled no further items are started. started[i] reports
// whether item i ran; the error is ctx.Err() in that case.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(T) R, opts ...Option) (results []R, started []bool, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	results = make([]R, len(items))
	started = make([]bool, len(items))
	if len(items) == 0 {
		return results, started, nil
	}

	var (
		mu   sync.Mutex
		done int
	)
	g := new(errgroup.Group)
	g.SetLimit(Workers(workers, len(items)))

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			results[i] = fn(item)
			if o.progress != nil {
				mu.Lock()
				done++
				o.progress(done, len(items))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, started, ctx.Err()
}

// MapOutcomes is Map for workers that report an Outcome. Items that never
// started because ctx was cancelled are reported as StatusSkipped under the
// name given by name.
func MapOutcomes[T any](ctx context.Context, items []T, workers int, name func(T) string, fn func(T) Outcome, opts ...Option) ([]Outcome, error) {
	results, started, err := Map(ctx, items, workers, fn, opts...)
	for i, ok := range started {
		if !ok {
			results[i] = Outcome{Name: name(items[i]), Status: StatusSkipped}
		}
	}
	return results, err
}
