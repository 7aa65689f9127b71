package statemanager

import "sync"

// instanceLocks is a map of per-key mutexes guarded by a single mutex, the
// same shape as the teacher's heartbeats.cancelations map in
// services/presence/service.go — there it guards one context.CancelFunc per
// session, here one *sync.Mutex per instance, so writes against different
// instances never contend with each other (spec.md §4.2 "operations across
// different instances run in parallel").
type instanceLocks struct {
	mutex sync.Mutex
	perID map[string]*sync.Mutex
}

func newInstanceLocks() instanceLocks {
	return instanceLocks{perID: make(map[string]*sync.Mutex)}
}

// acquire blocks until instanceID's lock is held and returns the unlock func.
func (l *instanceLocks) acquire(instanceID string) func() {
	l.mutex.Lock()
	m, ok := l.perID[instanceID]
	if !ok {
		m = &sync.Mutex{}
		l.perID[instanceID] = m
	}
	l.mutex.Unlock()

	m.Lock()
	return m.Unlock
}
