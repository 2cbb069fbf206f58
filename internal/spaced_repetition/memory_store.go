package spaced_repetition

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/prepbot/pkg/models"
)

type recordKey struct {
	userID int64
	itemID string
}

// MemoryStore is an in-process Store. Writes are serialized by a mutex,
// which gives the per-record atomicity Put promises.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]models.ReviewRecord
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]models.ReviewRecord)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64, itemID string) (models.ReviewRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[recordKey{userID, itemID}]
	if !ok {
		return models.ReviewRecord{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (m *MemoryStore) Put(_ context.Context, rec models.ReviewRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{rec.UserID, rec.ItemID}
	cur, exists := m.records[key]
	switch {
	case rec.Version == 0 && exists:
		return fmt.Errorf("%w: record already exists", ErrVersionConflict)
	case rec.Version > 0 && !exists:
		return fmt.Errorf("%w: record does not exist", ErrVersionConflict)
	case exists && cur.Version != rec.Version:
		return fmt.Errorf("%w: stored version %d, got %d", ErrVersionConflict, cur.Version, rec.Version)
	}

	rec.Version++
	m.records[key] = copyRecord(rec)
	return nil
}

func (m *MemoryStore) DueBefore(_ context.Context, userID int64, t time.Time) ([]models.ReviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []models.ReviewRecord
	for key, rec := range m.records {
		if key.userID == userID && !rec.DueAt.After(t) {
			due = append(due, copyRecord(rec))
		}
	}
	sortByDue(due)
	return due, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID int64) ([]models.ReviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []models.ReviewRecord
	for key, rec := range m.records {
		if key.userID == userID {
			all = append(all, copyRecord(rec))
		}
	}
	sortByDue(all)
	return all, nil
}

// Seen reports whether the user has a record for the item
func (m *MemoryStore) Seen(userID int64, itemID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[recordKey{userID, itemID}]
	return ok
}

// MemoryCatalog is a fixed list of item IDs backed by a MemoryStore for the "seen" check
type MemoryCatalog struct {
	Items []string
	Store *MemoryStore
}

func (c *MemoryCatalog) UnseenItems(_ context.Context, userID int64, limit int) ([]string, error) {
	var unseen []string
	for _, id := range c.Items {
		if len(unseen) >= limit {
			break
		}
		if c.Store == nil || !c.Store.Seen(userID, id) {
			unseen = append(unseen, id)
		}
	}
	return unseen, nil
}

func copyRecord(rec models.ReviewRecord) models.ReviewRecord {
	if rec.LastReviewedAt != nil {
		t := *rec.LastReviewedAt
		rec.LastReviewedAt = &t
	}
	return rec
}

// map iteration order is random; keep results stable for callers
func sortByDue(recs []models.ReviewRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].DueAt.Equal(recs[j].DueAt) {
			return recs[i].DueAt.Before(recs[j].DueAt)
		}
		return recs[i].ItemID < recs[j].ItemID
	})
}
