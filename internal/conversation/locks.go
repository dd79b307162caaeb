package conversation

import (
	"sync"

	"github.com/google/uuid"
)

// LeadLocks serializes mutations per lead identifier. Operations on
// different leads proceed in parallel; operations on the same lead are
// exclusive. The scheduler and executor share one instance with the
// conversation service so the lock discipline covers every writer.
type LeadLocks struct {
	locks sync.Map
}

// NewLeadLocks creates an empty lock set.
func NewLeadLocks() *LeadLocks {
	return &LeadLocks{}
}

// Lock acquires the exclusive lock for a lead and returns the unlock
// function.
func (l *LeadLocks) Lock(id uuid.UUID) func() {
	v, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
