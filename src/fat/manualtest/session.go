// Package manualtest is C8: hosts the interactive sub-tests (alarms,
// display, maintenance, trend/report) that run after hardpoint completion,
// gating StateManager transitions on operator acknowledgement (spec.md
// §4.6).
package manualtest

import (
	"sync"

	"fatorch/src/fat/model"
)

// Session is the per-instance object spec.md §4.6 names:
// {instance_id, applicable_sub_items, results_map}.
type Session struct {
	InstanceID string
	ModuleType model.ModuleType
	Applicable []model.SubTestItemKind
	Results    map[string]model.SubTestStatus
}

// Complete reports whether every applicable manual sub-item has reached a
// terminal status — the signal that the next apply_raw_outcome/
// set_manual_sub_item call will let StateManager compute the final
// TestCompletedPassed/Failed (§4.6 step 5).
func (s *Session) Complete() bool {
	for _, kind := range s.Applicable {
		key := model.SubTestItem{Kind: kind}.Key()
		status, ok := s.Results[key]
		if !ok || !status.IsTerminal() {
			return false
		}
	}
	return true
}

type sessionRegistry struct {
	mutex    sync.Mutex
	sessions map[string]*Session // key = instance_id
}

func newSessionRegistry() sessionRegistry {
	return sessionRegistry{sessions: make(map[string]*Session)}
}

func (r *sessionRegistry) put(s *Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sessions[s.InstanceID] = s
}

func (r *sessionRegistry) get(instanceID string) (*Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, ok := r.sessions[instanceID]
	return s, ok
}

func (r *sessionRegistry) delete(instanceID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.sessions, instanceID)
}
