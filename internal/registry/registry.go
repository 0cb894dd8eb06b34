package registry

import (
	"sync"

	"github.com/technosupport/ts-console/internal/normalize"
)

// Registry is the "latest distinct alert per source" projection over the
// push stream. It holds at most one incident per source and no history;
// duplicate-suppression lives here and nowhere else, so display logic
// never re-implements identity comparison.
type Registry struct {
	mu     sync.RWMutex
	active map[string]normalize.Incident
}

func New() *Registry {
	return &Registry{active: make(map[string]normalize.Incident)}
}

// Update sets the displayed alert for the incident's source. If the
// existing entry for that source shares the incident's id or category the
// call is a no-op: re-delivery of the same ongoing condition must not
// flicker the display. An escalation under the same id is therefore also
// suppressed; escalations arrive as new ids.
func (r *Registry) Update(inc normalize.Incident) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.active[inc.SourceID]; ok {
		if cur.ID == inc.ID || cur.Category == inc.Category {
			return false
		}
	}
	r.active[inc.SourceID] = inc
	return true
}

// Clear removes the displayed alert for a source (explicit dismissal).
func (r *Registry) Clear(sourceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[sourceID]; !ok {
		return false
	}
	delete(r.active, sourceID)
	return true
}

// Entries returns a copy of the current source → alert mapping.
func (r *Registry) Entries() map[string]normalize.Incident {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]normalize.Incident, len(r.active))
	for k, v := range r.active {
		out[k] = v
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Reset drops everything. The registry is rebuilt from scratch on
// teardown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = make(map[string]normalize.Incident)
}
