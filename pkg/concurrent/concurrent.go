// Package concurrent provides small fan-out helpers over slices.
package concurrent

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNoResult is returned by First when no call succeeded.
var ErrNoResult = errors.New("no call succeeded")

// ForEach runs action for every item in its own goroutine and waits for all of
// them. It returns the first error encountered.
func ForEach[T any](items []T, action func(T) error) error {
	group := errgroup.Group{}
	for _, item := range items {
		item := item
		group.Go(func() error {
			return action(item)
		})
	}
	return group.Wait()
}

// ForEachMute runs action for every item in its own goroutine, waits for all
// of them, and ignores errors.
func ForEachMute[T any](items []T, action func(T) error) {
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			_ = action(item)
		}(item)
	}
	wg.Wait()
}

// First runs fn for every item concurrently and returns the first successful
// result, cancelling the context handed to the remaining calls. When every
// call fails it returns ErrNoResult.
func First[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error)) (R, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result R
		err    error
	}

	results := make(chan outcome, len(items))
	for _, item := range items {
		go func(item T) {
			r, err := fn(ctx, item)
			results <- outcome{result: r, err: err}
		}(item)
	}

	var zero R
	for range items {
		select {
		case out := <-results:
			if out.err == nil {
				cancel()
				return out.result, nil
			}
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, ErrNoResult
}
