// Package lock provides non-blocking mutual exclusion over pairs of patient
// ids. A merge locks both ids involved so a patient cannot be the source of
// one merge and the target of another at the same time. Contested
// acquisition fails immediately rather than queueing.
package lock

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrLocked is returned when one of the requested ids is already held.
var ErrLocked = errors.New("resource is locked by another operation")

// ReleaseFunc releases an acquired lock. It is safe to call more than once.
type ReleaseFunc func()

// PairLocker acquires an exclusive lock over both ids of an unordered pair.
type PairLocker interface {
	Acquire(ctx context.Context, a, b uuid.UUID) (ReleaseFunc, error)
}

// orderedPair returns the pair in a deterministic order so lock keys are
// always taken in the same sequence regardless of argument order.
func orderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
