package keycommitments

import (
	"sync"
	"sync/atomic"
)

// Store publishes commitment snapshots. Readers load the current snapshot
// atomically and never block; writers copy the current snapshot, modify
// the copy and swap it in.
type Store struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes writers
}

// NewStore creates a store holding initial, which may be nil.
func NewStore(initial *Snapshot) *Store {
	s := &Store{}
	if initial == nil {
		initial = &Snapshot{entries: map[string]Commitment{}}
	}
	s.current.Store(initial)
	return s
}

// Get implements Getter against the current snapshot.
func (s *Store) Get(issuer string) (Commitment, bool) {
	return s.current.Load().Get(issuer)
}

// Snapshot returns the current snapshot. It stays valid and unchanged
// after later writes.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Replace swaps in snap wholesale.
func (s *Store) Replace(snap *Snapshot) {
	if snap == nil {
		snap = &Snapshot{entries: map[string]Commitment{}}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(snap)
}

// Merge swaps in a copy of the current snapshot where the issuers in snap
// replace existing entries.
func (s *Store) Merge(snap *Snapshot) {
	s.Apply(snap, nil)
}

// Apply merges snap and removes the issuers in drop in a single swap.
// Origins in drop are expected to be normalized already.
func (s *Store) Apply(snap *Snapshot, drop []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current.Load().with(snap)
	for _, origin := range drop {
		delete(next.entries, origin)
	}
	s.current.Store(next)
}

// Set replaces the commitment of one issuer.
func (s *Store) Set(issuerURL string, c Commitment) error {
	origin, err := NormalizeOrigin(issuerURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current.Load().with(nil)
	next.entries[origin] = c.clone()
	s.current.Store(next)
	return nil
}

// Delete removes one issuer. Unknown issuers are ignored.
func (s *Store) Delete(issuerURL string) {
	origin, err := NormalizeOrigin(issuerURL)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current.Load()
	if _, ok := cur.entries[origin]; !ok {
		return
	}
	next := cur.with(nil)
	delete(next.entries, origin)
	s.current.Store(next)
}
