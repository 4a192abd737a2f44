package adaptive

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry struct {
	tier      Tier
	expiresAt time.Time
	queriedAt time.Time
}

// Store is the authoritative mapping from correlation id to sampling tier.
// All transitions are applied under a single mutex; reads never mutate.
//
// Reads are lazily decayed: an entry whose expiry has passed reports its
// next tier even before the scheduler tick has swept it. The tick exists
// for eviction bookkeeping and snapshot-version hygiene, not correctness.
type Store struct {
	mu      sync.Mutex
	clock   clock.Clock
	params  Params
	entries map[string]entry
	version uint64

	// snapshot cache, valid while snapVersion == version
	snapVersion uint64
	snapshot    *Snapshot
	encoded     []byte
}

func NewStore(params Params, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:   clk,
		params:  params,
		entries: make(map[string]entry),
	}
}

func (s *Store) Params() Params {
	return s.params
}

// decayed returns the tier an entry is logically in at instant now,
// regardless of whether the scheduler has processed it yet. An expired HOT
// entry reads as WARM until its warm window would also have elapsed.
func (s *Store) decayed(e entry, now time.Time) Tier {
	switch {
	case now.Before(e.expiresAt):
		return e.tier
	case e.tier == Hot && now.Before(e.expiresAt.Add(s.params.WarmTTL)):
		return Warm
	default:
		return Cold
	}
}

// Promote forces a correlation id to HOT with a fresh full TTL window and
// returns the previous (lazily decayed) tier. Promotion always wins over
// decay and is idempotent: re-promoting an id that is already HOT resets
// its expiry, it never accumulates.
func (s *Store) Promote(correlationID string) Tier {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	previous := Cold
	if e, ok := s.entries[correlationID]; ok {
		previous = s.decayed(e, now)
	}

	s.entries[correlationID] = entry{
		tier:      Hot,
		expiresAt: now.Add(s.params.HotTTL),
		queriedAt: now,
	}
	s.version++

	return previous
}

// Disable deletes the entry unconditionally, forcing immediate COLD with no
// grace period. It returns the previous (lazily decayed) tier.
func (s *Store) Disable(correlationID string) Tier {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[correlationID]
	if !ok {
		return Cold
	}

	delete(s.entries, correlationID)
	s.version++

	return s.decayed(e, s.clock.Now())
}

// State returns the current tier for a correlation id in O(1) without
// waiting for the next tick.
func (s *Store) State(correlationID string) Tier {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[correlationID]
	if !ok {
		return Cold
	}
	return s.decayed(e, s.clock.Now())
}

// Rate returns the sampling probability currently in effect for a
// correlation id.
func (s *Store) Rate(correlationID string) float64 {
	return s.params.Rate(s.State(correlationID))
}

// Tick advances expired entries to their next tier: HOT to WARM with a
// fresh warm window, WARM to removal. Running it twice on unchanged state
// produces the same result, and the snapshot version only moves when at
// least one entry changed.
func (s *Store) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	changed := false

	for id, e := range s.entries {
		if now.Before(e.expiresAt) {
			continue
		}
		switch s.decayed(e, now) {
		case Warm:
			e.tier = Warm
			e.expiresAt = now.Add(s.params.WarmTTL)
			s.entries[id] = e
		default:
			delete(s.entries, id)
		}
		changed = true
	}

	if changed {
		s.version++
	}
}

// Version returns the snapshot validation token. It changes if and only if
// the tracked state changed since it was last observed.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

type StatusEntry struct {
	CorrelationID string    `json:"correlation_id"`
	State         string    `json:"state"`
	RemainingTTL  int64     `json:"remaining_ttl"`
	Rate          float64   `json:"rate"`
	QueriedAt     time.Time `json:"queried_at"`
}

// Status lists every non-COLD entry with its lazily decayed tier and
// remaining TTL, for operational visibility.
func (s *Store) Status() []StatusEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	status := []StatusEntry{}

	for id, e := range s.entries {
		tier := s.decayed(e, now)
		if tier == Cold {
			continue
		}

		expiresAt := e.expiresAt
		if tier == Warm && e.tier == Hot {
			expiresAt = e.expiresAt.Add(s.params.WarmTTL)
		}

		remaining := int64(expiresAt.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}

		status = append(status, StatusEntry{
			CorrelationID: id,
			State:         tier.String(),
			RemainingTTL:  remaining,
			Rate:          s.params.Rate(tier),
			QueriedAt:     e.queriedAt,
		})
	}

	return status
}
