package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/vbonduro/rifas/internal/domain"
)

// MemoryAuctionStore keeps auctions in process memory. The collection lock
// only guards the map and the id counter; each auction has its own lock so
// operations on different ids never wait on each other.
type MemoryAuctionStore struct {
	mu       sync.RWMutex
	lastID   int64
	auctions map[int64]*memoryEntry
}

type memoryEntry struct {
	mu      sync.Mutex
	auction *domain.Auction
	deleted bool
}

func NewMemoryAuctionStore() *MemoryAuctionStore {
	return &MemoryAuctionStore{auctions: make(map[int64]*memoryEntry)}
}

func (s *MemoryAuctionStore) Create(_ context.Context, a *domain.Auction) (*domain.Auction, error) {
	stored := a.Clone()

	s.mu.Lock()
	s.lastID++
	stored.ID = s.lastID
	s.auctions[stored.ID] = &memoryEntry{auction: stored}
	s.mu.Unlock()

	return stored.Clone(), nil
}

// GetByID returns nil, nil when the auction does not exist.
func (s *MemoryAuctionStore) GetByID(_ context.Context, id int64) (*domain.Auction, error) {
	e := s.entry(id)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, nil
	}
	return e.auction.Clone(), nil
}

// List returns summaries of matching auctions in ascending id order.
func (s *MemoryAuctionStore) List(_ context.Context, search string) ([]*domain.AuctionSummary, error) {
	s.mu.RLock()
	ids := slices.Sorted(maps.Keys(s.auctions))
	entries := make([]*memoryEntry, len(ids))
	for i, id := range ids {
		entries[i] = s.auctions[id]
	}
	s.mu.RUnlock()

	summaries := make([]*domain.AuctionSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted && e.auction.Matches(search) {
			summaries = append(summaries, e.auction.Summary())
		}
		e.mu.Unlock()
	}
	return summaries, nil
}

// Mutate runs fn on a working copy of the auction while holding its lock.
// The copy replaces the stored auction only when fn returns nil, so a failed
// operation leaves no trace.
func (s *MemoryAuctionStore) Mutate(_ context.Context, id int64, fn func(*domain.Auction) error) (*domain.Auction, error) {
	e := s.entry(id)
	if e == nil {
		return nil, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, domain.ErrNotFound
	}

	work := e.auction.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	e.auction = work
	return work.Clone(), nil
}

// Delete removes the auction and returns its last state.
func (s *MemoryAuctionStore) Delete(_ context.Context, id int64) (*domain.Auction, error) {
	s.mu.Lock()
	e, ok := s.auctions[id]
	if ok {
		delete(s.auctions, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = true
	return e.auction.Clone(), nil
}

func (s *MemoryAuctionStore) entry(id int64) *memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auctions[id]
}
