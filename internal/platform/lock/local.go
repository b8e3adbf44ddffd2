package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Local is an in-process PairLocker backed by a held-id set. Suitable for
// single-replica deployments and for tests.
type Local struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[uuid.UUID]struct{})}
}

func (l *Local) Acquire(_ context.Context, a, b uuid.UUID) (ReleaseFunc, error) {
	first, second := orderedPair(a, b)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[first]; ok {
		return nil, ErrLocked
	}
	if _, ok := l.held[second]; ok {
		return nil, ErrLocked
	}

	l.held[first] = struct{}{}
	l.held[second] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, first)
			delete(l.held, second)
			l.mu.Unlock()
		})
	}
	return release, nil
}
