package store

import (
	"sort"
	"sync"

	"github.com/technosupport/ts-console/internal/normalize"
)

const DefaultCapacity = 500

// Store is the bounded incident timeline. Two writers feed it: push
// arrivals via Insert and pull snapshots via Reconcile. Both key
// exclusively on incident id and never replace an existing entry, which
// makes the two paths idempotent and commutative under any interleaving.
type Store struct {
	mu       sync.RWMutex
	entries  []normalize.Incident
	byID     map[string]int
	capacity int

	// OnEvict, if set, observes entries dropped by capacity trimming.
	// Set before first use; not guarded.
	OnEvict func(normalize.Incident)
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		byID:     make(map[string]int),
		capacity: capacity,
	}
}

// Insert adds a push-delivered incident. A second insert with the same id
// is a no-op, not a duplicate entry. Returns whether the incident was added.
func (s *Store) Insert(inc normalize.Incident) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[inc.ID]; ok {
		return false
	}
	s.entries = append(s.entries, inc)
	s.sortAndTrim()
	return true
}

// Reconcile merges a pull snapshot into the store. Entries already present
// are never replaced by the snapshot version; only snapshot ids absent
// from the store are added. A push-delivered copy may carry fresher fields
// than a stale snapshot, so the store's copy always wins. Returns the
// number of entries added.
func (s *Store) Reconcile(snapshot []normalize.Incident) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	seen := make(map[string]bool, len(snapshot))
	for _, inc := range snapshot {
		if _, ok := s.byID[inc.ID]; ok {
			continue
		}
		if seen[inc.ID] {
			continue
		}
		seen[inc.ID] = true
		s.entries = append(s.entries, inc)
		added++
	}
	if added > 0 {
		s.sortAndTrim()
	}
	return added
}

// MarkResolved flips the resolved flag on the matching entry, if present.
func (s *Store) MarkResolved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return false
	}
	s.entries[i].Resolved = true
	return true
}

// Remove deletes a single entry by id (explicit user dismissal, not
// eviction).
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.reindex()
	return true
}

// Entries returns a copy of the timeline, newest first.
func (s *Store) Entries() []normalize.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]normalize.Incident, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// sortAndTrim restores the two structural invariants after any mutation:
// descending occurredAt order, and at most capacity entries with the
// oldest evicted from the tail. Caller holds the write lock.
func (s *Store) sortAndTrim() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].OccurredAt.After(s.entries[j].OccurredAt)
	})
	if len(s.entries) > s.capacity {
		evicted := s.entries[s.capacity:]
		if s.OnEvict != nil {
			for _, inc := range evicted {
				s.OnEvict(inc)
			}
		}
		s.entries = s.entries[:s.capacity:s.capacity]
	}
	s.reindex()
}

func (s *Store) reindex() {
	s.byID = make(map[string]int, len(s.entries))
	for i, inc := range s.entries {
		s.byID[inc.ID] = i
	}
}
