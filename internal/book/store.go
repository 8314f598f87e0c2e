// Package book maintains a local mirror of the most recent order book state
// for every asset the engine watches.
//
// Each asset has its own lock so one venue's feed never blocks another's
// writer, and readers (the pricer, the opportunity generator) never block a
// writer mid-update. A snapshot replaces the prior one wholesale; a delta
// mutates the working snapshot's bid or ask side in place. Either way,
// C1's invariant holds: the engine always prices off an
// atomically-consistent two-sided book.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

// Side names which half of the book a delta applies to — the book's own
// bid/ask axis, distinct from types.Side's YES/NO trade-direction axis.
type Side string

const (
	Bid Side = "BID"
	Ask Side = "ASK"
)

// entry is one asset's current snapshot plus its own lock.
type entry struct {
	mu       sync.RWMutex
	snapshot types.OrderBookSnapshot
	hasData  bool
}

// Store is the concurrency-safe, per-asset order book cache.
type Store struct {
	mu      sync.RWMutex // guards the map itself, not its values
	entries map[string]*entry
}

// NewStore creates an empty book store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) entryFor(assetID string) *entry {
	s.mu.RLock()
	e, ok := s.entries[assetID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[assetID]; ok {
		return e
	}
	e = &entry{}
	s.entries[assetID] = e
	return e
}

// ApplySnapshot replaces the stored book for snap.AssetID. Only the single
// writer responsible for that asset's feed should call this (C1's
// single-writer-per-asset discipline); the lock exists to make concurrent
// readers safe, not to arbitrate between writers.
//
// The store's internal monotonic timestamp rejects a snapshot whose
// Timestamp is not strictly after the currently installed one — a stale or
// duplicate snapshot (including the same one applied twice) is a no-op.
func (s *Store) ApplySnapshot(snap types.OrderBookSnapshot) {
	e := s.entryFor(snap.AssetID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasData && !snap.Timestamp.After(e.snapshot.Timestamp) {
		return
	}
	e.snapshot = snap
	e.hasData = true
}

// ApplyDelta upserts or removes a single price level on assetID's book. A
// zero size removes the level; any other size inserts it (if new) or
// updates it in place (if the price already exists). Deltas are ignored
// until a snapshot has established a baseline for the asset. After any
// mutation, the affected side is re-sorted — bids descending, asks
// ascending — with a stable sort so equal-price ties keep their relative
// order.
func (s *Store) ApplyDelta(assetID string, side Side, price, size decimal.Decimal) {
	e := s.entryFor(assetID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasData {
		return
	}

	levels := &e.snapshot.Bids
	if side == Ask {
		levels = &e.snapshot.Asks
	}

	idx := -1
	for i, lvl := range *levels {
		if lvl.Price.Equal(price) {
			idx = i
			break
		}
	}

	switch {
	case size.IsZero():
		if idx >= 0 {
			*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
		}
	case idx >= 0:
		(*levels)[idx].Size = size
	default:
		*levels = append(*levels, types.PriceLevel{Price: price, Size: size})
	}

	sortLevels(*levels, side)
	e.snapshot.Timestamp = time.Now()
}

func sortLevels(levels []types.PriceLevel, side Side) {
	sort.SliceStable(levels, func(i, j int) bool {
		if side == Bid {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

// Get returns the current snapshot for assetID and whether one exists.
func (s *Store) Get(assetID string) (types.OrderBookSnapshot, bool) {
	s.mu.RLock()
	e, ok := s.entries[assetID]
	s.mu.RUnlock()
	if !ok {
		return types.OrderBookSnapshot{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasData {
		return types.OrderBookSnapshot{}, false
	}
	return e.snapshot, true
}

// StalenessMS returns staleness_ms = now − snapshot.timestamp for assetID's
// currently installed book. Returns -1 if no snapshot has ever arrived.
func (s *Store) StalenessMS(assetID string) int64 {
	s.mu.RLock()
	e, ok := s.entries[assetID]
	s.mu.RUnlock()
	if !ok {
		return -1
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasData {
		return -1
	}
	return time.Since(e.snapshot.Timestamp).Milliseconds()
}

// IsStale reports whether assetID's book is older than maxAgeMS, or has
// never been populated.
func (s *Store) IsStale(assetID string, maxAgeMS int64) bool {
	age := s.StalenessMS(assetID)
	return age < 0 || age > maxAgeMS
}

// Assets returns the set of asset IDs currently tracked.
func (s *Store) Assets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}
