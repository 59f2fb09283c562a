package identifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/oops"
	"github.com/noahsadir/courseman/internal/telemetry/metrics"
)

// DefaultMaxAttempts bounds the generate-and-check loop when none is configured.
const DefaultMaxAttempts = 10

// ErrAllocationExhausted is returned when every attempt produced a value already in use.
var ErrAllocationExhausted = errors.New("identifier: allocation attempts exhausted")

// InsertFunc persists the row that consumes id. It runs once per candidate.
type InsertFunc func(ctx context.Context, id string) error

// Allocator composes a Generator and a UniquenessChecker into a bounded retry loop.
type Allocator struct {
	gen         Generator
	checker     UniquenessChecker
	maxAttempts int
	metrics     *metrics.Registry
}

// NewAllocator returns an Allocator. A non-positive maxAttempts falls back to DefaultMaxAttempts.
func NewAllocator(gen Generator, checker UniquenessChecker, maxAttempts int, m *metrics.Registry) *Allocator {
	if gen == nil {
		gen = RandomGenerator{}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{gen: gen, checker: checker, maxAttempts: maxAttempts, metrics: m}
}

// Allocate returns a value of the given length that no row in scope held at
// the time of the check. Callers that insert the value afterwards should use
// AllocateAndInsert so a lost race against a concurrent insert is retried.
func (a *Allocator) Allocate(ctx context.Context, scope Scope, length int) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		id, free, err := a.candidate(ctx, scope, length)
		if err != nil {
			return "", err
		}
		if free {
			a.metrics.ObserveAllocation(scope.String(), attempt)
			return id, nil
		}
	}
	a.metrics.AllocationExhausted(scope.String())
	return "", fmt.Errorf("%w: %s after %d attempts", ErrAllocationExhausted, scope, a.maxAttempts)
}

// AllocateAndInsert allocates an id and hands it to insert. If insert fails
// with a unique violation on scope.Constraint the candidate is discarded and
// another is drawn, sharing one attempt budget. Any other insert error is
// returned as is.
func (a *Allocator) AllocateAndInsert(ctx context.Context, scope Scope, length int, insert InsertFunc) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		id, free, err := a.candidate(ctx, scope, length)
		if err != nil {
			return "", err
		}
		if !free {
			continue
		}
		if err := insert(ctx, id); err != nil {
			if db.IsUniqueViolation(err, scope.Constraint) {
				continue
			}
			return "", err
		}
		a.metrics.ObserveAllocation(scope.String(), attempt)
		return id, nil
	}
	a.metrics.AllocationExhausted(scope.String())
	return "", fmt.Errorf("%w: %s after %d attempts", ErrAllocationExhausted, scope, a.maxAttempts)
}

func (a *Allocator) candidate(ctx context.Context, scope Scope, length int) (string, bool, error) {
	id, err := a.gen.Generate(length)
	if err != nil {
		return "", false, err
	}
	n, err := a.checker.Occurrences(ctx, scope, id)
	if err != nil {
		return "", false, oops.New(err, "failed to check uniqueness in %s", scope)
	}
	return id, n == 0, nil
}
