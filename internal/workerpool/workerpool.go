// Package workerpool provides a bounded concurrency gate for blocking
// work dispatched off the request path (gzip compression, password
// hashing, system-stats sampling) so a burst of requests cannot spawn
// unbounded goroutines. Generalized from the teacher's ad hoc
// `go func() { ... }()` launches in cmd/server/main.go into a single
// reusable semaphore-backed pool, per spec.md §5's backpressure
// requirement.
package workerpool

import (
	"context"
	"fmt"
)

// Pool bounds the number of concurrently in-flight tasks to its capacity.
type Pool struct {
	sem chan struct{}
}

// New constructs a Pool that allows at most capacity concurrent tasks.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{sem: make(chan struct{}, capacity)}
}

// Submit runs fn once a slot is free, blocking the caller until either a
// slot opens or ctx is canceled. It returns fn's error, or ctx.Err() if
// canceled before a slot became available.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("workerpool: %w", ctx.Err())
	}
	defer func() { <-p.sem }()

	return fn(ctx)
}

// TrySubmit runs fn immediately if a slot is free, otherwise reports
// false without blocking or running fn.
func (p *Pool) TrySubmit(ctx context.Context, fn func(context.Context) error) (ran bool, err error) {
	select {
	case p.sem <- struct{}{}:
	default:
		return false, nil
	}
	defer func() { <-p.sem }()

	return true, fn(ctx)
}

// InUse returns the number of tasks currently occupying a slot.
func (p *Pool) InUse() int {
	return len(p.sem)
}

// Capacity returns the pool's maximum concurrency.
func (p *Pool) Capacity() int {
	return cap(p.sem)
}
