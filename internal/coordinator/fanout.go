package coordinator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// fanOutAll runs fn once per item against the caller's own ctx — no
// derived, cancellable context is handed to fn — collecting the first
// error observed. This is pattern P4 (spec §4.6): "cancel no other
// in-flight calls... surface the first failure after all have
// completed". Every sibling call runs to completion regardless of an
// earlier failure, because backend shards are individually idempotent
// and partial application on the others is tolerable.
func fanOutAll[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T) error) error {
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for _, item := range items {
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx, item); err != nil {
				once.Do(func() { firstErr = err })
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// fanOutCollect runs fn once per item in parallel and gathers every
// result, for P5 (fan-out query + set union). Unlike fanOutAll, a
// derived context is used: cancelling the slower siblings after a
// first failure is harmless for a read-only query and avoids wasted
// work, and the spec only requires "first failure is surfaced" for
// this pattern, not "every sibling completes".
func fanOutCollect[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]R, len(items))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fanOutRace runs fn once per item, opportunistically cancelling the
// remaining siblings as soon as one of them reports short == true —
// step 4 of the P6 transitive-closure algorithm, where a positive
// HasAccessTo* result from any group-query shard ends the search. A
// cancellation-induced error on a sibling that hasn't reported yet is
// swallowed rather than surfaced, since the spec requires "a
// cancellation failure must not mask the positive result".
func fanOutRace[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (short bool, err error)) (bool, error) {
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var found bool
	var firstErr error

	for _, item := range items {
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()
			short, err := fn(gctx, item)

			mu.Lock()
			defer mu.Unlock()
			if short {
				found = true
				cancel()
				return
			}
			if err != nil && gctx.Err() == nil && firstErr == nil {
				firstErr = err
			}
		}()
	}
	wg.Wait()

	if found {
		return true, nil
	}
	return false, firstErr
}
