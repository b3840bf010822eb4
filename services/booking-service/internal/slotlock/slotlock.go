package slotlock

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when another request already holds the slot.
var ErrBusy = errors.New("slot is being booked by another request")

type Locker interface {
	// Acquire takes the lock for key without waiting. The returned func releases it.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func Key(date, clock string) string {
	return date + "T" + clock
}

// Local is an in-process keyed try-lock.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrBusy
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
