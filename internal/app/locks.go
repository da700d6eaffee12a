package app

import "sync"

// PolicyLocks serializes read-modify-write cycles per policy id so that
// concurrent sends targeting the same record cannot lose contact-history
// appends. One instance is shared between the renewal workflow and the
// sweep within a process.
type PolicyLocks struct {
	locks sync.Map // policy id -> *sync.Mutex
}

func NewPolicyLocks() *PolicyLocks {
	return &PolicyLocks{}
}

func (k *PolicyLocks) lock(id string) (unlock func()) {
	v, _ := k.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
