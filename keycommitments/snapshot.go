package keycommitments

import (
	"sort"
	"time"
)

// Getter is the read contract a verification cycle needs: the commitment
// for an issuer origin, if one is known.
type Getter interface {
	Get(issuer string) (Commitment, bool)
}

// Snapshot is an immutable set of commitments. Values passed in and
// returned are deep copies, so callers can never mutate it.
type Snapshot struct {
	entries map[string]Commitment
	fetched time.Time
}

// NewSnapshot builds a snapshot from commitments keyed by issuer URL.
// Issuer keys are normalized with NormalizeOrigin.
func NewSnapshot(commitments map[string]Commitment) (*Snapshot, error) {
	s := &Snapshot{entries: make(map[string]Commitment, len(commitments))}
	for issuer, c := range commitments {
		origin, err := NormalizeOrigin(issuer)
		if err != nil {
			return nil, err
		}
		s.entries[origin] = c.clone()
	}
	return s, nil
}

// Get returns the commitment for issuer. The issuer URL is normalized
// before lookup; malformed URLs are reported as unknown.
func (s *Snapshot) Get(issuer string) (Commitment, bool) {
	if s == nil {
		return Commitment{}, false
	}
	origin, err := NormalizeOrigin(issuer)
	if err != nil {
		return Commitment{}, false
	}
	c, ok := s.entries[origin]
	if !ok {
		return Commitment{}, false
	}
	return c.clone(), true
}

// Issuers returns the issuer origins in sorted order.
func (s *Snapshot) Issuers() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.entries))
	for origin := range s.entries {
		out = append(out, origin)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of issuers.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// FetchedAt returns when the snapshot was fetched, if it came from an issuer.
func (s *Snapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetched
}

// with returns a copy of s where the commitments in other replace s's.
func (s *Snapshot) with(other *Snapshot) *Snapshot {
	out := &Snapshot{entries: make(map[string]Commitment, s.Len()+other.Len()), fetched: s.FetchedAt()}
	if t := other.FetchedAt(); !t.IsZero() {
		out.fetched = t
	}
	if s != nil {
		for k, v := range s.entries {
			out.entries[k] = v
		}
	}
	if other != nil {
		for k, v := range other.entries {
			out.entries[k] = v
		}
	}
	return out
}
