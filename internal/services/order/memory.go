package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"foodhub/internal/models"
)

// MemoryStore keeps orders in process. Each order has its own lock, so
// mutations of different orders never wait on each other.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*memoryEntry
	seq    uint64
}

type memoryEntry struct {
	mu      sync.Mutex
	seq     uint64
	order   *models.Order
	history []models.StatusHistory
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Create(_ context.Context, o *models.Order) error {
	stored := o.Clone()
	history := make([]models.StatusHistory, 0, len(stored.VendorOrders))
	for _, so := range stored.VendorOrders {
		note := placedNote
		h := historyEntry(so, systemActor, stored.CreatedAt)
		h.Notes = &note
		history = append(history, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	s.seq++
	s.orders[o.ID] = &memoryEntry{seq: s.seq, order: stored, history: history}
	return nil
}

func (s *MemoryStore) entry(orderID string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	return e, nil
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (*models.Order, error) {
	e, err := s.entry(orderID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.Order, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.orders))
	for _, e := range s.orders {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	type row struct {
		seq   uint64
		order *models.Order
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		o := e.order
		if (filter.VendorID == "" || o.HasVendor(filter.VendorID)) &&
			(filter.Status == "" || o.Status == filter.Status) {
			rows = append(rows, row{seq: e.seq, order: o.Clone()})
		}
		e.mu.Unlock()
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].order, rows[j].order
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	limit := effectiveLimit(filter.Limit)
	if len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]*models.Order, len(rows))
	for i, r := range rows {
		out[i] = r.order
	}
	return out, nil
}

func (s *MemoryStore) Mutate(_ context.Context, orderID string, fn MutateFunc) (*models.Order, error) {
	e, err := s.entry(orderID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	before := statusSnapshot(e.order)
	working := e.order.Clone()

	changed, err := fn(working)
	if err != nil {
		return nil, err
	}
	if !changed {
		return e.order.Clone(), nil
	}

	now := time.Now().UTC()
	working.Recompute()
	working.Version = e.order.Version + 1
	working.UpdatedAt = now

	for _, so := range changedSubOrders(before, working) {
		e.history = append(e.history, historyEntry(so, systemActor, now))
	}
	e.order = working
	return working.Clone(), nil
}

func (s *MemoryStore) History(_ context.Context, orderID string) ([]models.StatusHistory, error) {
	e, err := s.entry(orderID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.StatusHistory(nil), e.history...), nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
