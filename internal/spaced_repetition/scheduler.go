package spaced_repetition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/prepbot/pkg/models"
)

// Scheduler selects due items and applies answer outcomes.
// It keeps no state between calls: every decision is made from what the store returns.
type Scheduler struct {
	model   *SM2
	store   Store
	catalog Catalog
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithCatalog lets SelectDue top up a short selection with unseen items
func WithCatalog(c Catalog) Option {
	return func(s *Scheduler) {
		s.catalog = c
	}
}

// NewScheduler creates a scheduler over the given model and store
func NewScheduler(model *SM2, store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		model: model,
		store: store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the difficulty model used by the scheduler
func (s *Scheduler) Model() *SM2 {
	return s.model
}

// selection is the full result of one due-item query, before truncation
type selection struct {
	due    []models.ReviewRecord
	unseen []string
}

func (sel selection) items(limit int) []string {
	ids := make([]string, 0, limit)
	for _, rec := range sel.due {
		if len(ids) >= limit {
			return ids
		}
		ids = append(ids, rec.ItemID)
	}
	for _, id := range sel.unseen {
		if len(ids) >= limit {
			break
		}
		ids = append(ids, id)
	}
	return ids
}

// SelectDue returns up to limit item IDs whose review is due at now, most overdue first.
// With includeNew set and fewer than limit items due, unseen catalog items fill the rest.
func (s *Scheduler) SelectDue(ctx context.Context, userID int64, now time.Time, limit int, includeNew bool) ([]string, error) {
	sel, err := s.selectDue(ctx, userID, now, limit, models.ModeMixed, includeNew)
	if err != nil {
		return nil, err
	}
	return sel.items(limit), nil
}

func (s *Scheduler) selectDue(ctx context.Context, userID int64, now time.Time, limit int, mode models.SessionMode, includeNew bool) (selection, error) {
	var sel selection
	if limit <= 0 {
		return sel, nil
	}

	records, err := s.store.DueBefore(ctx, userID, now)
	if err != nil {
		return sel, &PersistenceError{Op: "due", UserID: userID, Err: err}
	}

	sel.due = make([]models.ReviewRecord, 0, len(records))
	for _, rec := range records {
		if rec.IsDue(now) && s.inMode(rec, mode) {
			sel.due = append(sel.due, rec)
		}
	}
	if mode == models.ModeWeak {
		sortWeak(sel.due)
	} else {
		sortDue(sel.due)
	}

	switch mode {
	case models.ModeNew:
		includeNew = true
	case models.ModeReview, models.ModeWeak:
		includeNew = false
	}
	if !includeNew || s.catalog == nil || len(sel.due) >= limit {
		return sel, nil
	}

	unseen, err := s.catalog.UnseenItems(ctx, userID, limit-len(sel.due))
	if err != nil {
		return sel, &PersistenceError{Op: "unseen", UserID: userID, Err: err}
	}
	picked := make(map[string]bool, len(sel.due))
	for _, rec := range sel.due {
		picked[rec.ItemID] = true
	}
	for _, id := range unseen {
		if !picked[id] {
			picked[id] = true
			sel.unseen = append(sel.unseen, id)
		}
	}
	return sel, nil
}

func (s *Scheduler) inMode(rec models.ReviewRecord, mode models.SessionMode) bool {
	switch mode {
	case models.ModeNew:
		return rec.Stage == models.StageNew
	case models.ModeReview:
		return rec.Stage != models.StageNew
	case models.ModeWeak:
		return s.isWeak(rec)
	default:
		return true
	}
}

// isWeak reports whether the item has lapsed or lost ease since it was first presented
func (s *Scheduler) isWeak(rec models.ReviewRecord) bool {
	return rec.LapseCount > 0 || rec.EaseFactor < s.model.cfg.InitialEase
}

// stageSeverity orders ties: lapsed items first, mastered last
func stageSeverity(s models.Stage) int {
	switch s {
	case models.StageLearning:
		return 0
	case models.StageNew:
		return 1
	case models.StageReview:
		return 2
	default:
		return 3
	}
}

func dueLess(a, b models.ReviewRecord) bool {
	if !a.DueAt.Equal(b.DueAt) {
		return a.DueAt.Before(b.DueAt)
	}
	if sa, sb := stageSeverity(a.Stage), stageSeverity(b.Stage); sa != sb {
		return sa < sb
	}
	return a.ItemID < b.ItemID
}

func sortDue(recs []models.ReviewRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return dueLess(recs[i], recs[j])
	})
}

// sortWeak puts the most lapsed items first, then the lowest ease, then the usual due order
func sortWeak(recs []models.ReviewRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.LapseCount != b.LapseCount {
			return a.LapseCount > b.LapseCount
		}
		if a.EaseFactor != b.EaseFactor {
			return a.EaseFactor < b.EaseFactor
		}
		return dueLess(a, b)
	})
}

type outcomeOptions struct {
	implicitCreate bool
}

// OutcomeOption adjusts RecordOutcome
type OutcomeOption func(*outcomeOptions)

// WithImplicitCreate creates a New record for an item that was never presented
// instead of failing with ErrUnknownItem
func WithImplicitCreate() OutcomeOption {
	return func(o *outcomeOptions) {
		o.implicitCreate = true
	}
}

// RecordOutcome applies an answer to the user's record for the item and persists it.
// An invalid quality is rejected before the store is touched.
func (s *Scheduler) RecordOutcome(ctx context.Context, userID int64, itemID string, quality models.Quality, now time.Time, opts ...OutcomeOption) (models.UpdatedFields, error) {
	if !quality.IsValid() {
		return models.UpdatedFields{}, fmt.Errorf("%w: %d", ErrInvalidQuality, int(quality))
	}

	var o outcomeOptions
	for _, opt := range opts {
		opt(&o)
	}

	rec, found, err := s.store.Get(ctx, userID, itemID)
	if err != nil {
		return models.UpdatedFields{}, &PersistenceError{Op: "get", UserID: userID, ItemID: itemID, Err: err}
	}
	if !found {
		if !o.implicitCreate {
			return models.UpdatedFields{}, fmt.Errorf("%w: user %d has no record for %q", ErrUnknownItem, userID, itemID)
		}
		rec = s.model.NewRecord(userID, itemID, now)
	}

	updated, err := s.model.Compute(rec, quality, now)
	if err != nil {
		return models.UpdatedFields{}, err
	}

	rec.Apply(updated)
	if err := s.store.Put(ctx, rec); err != nil {
		return models.UpdatedFields{}, &PersistenceError{Op: "put", UserID: userID, ItemID: itemID, Err: err}
	}
	return updated, nil
}

// GetRecord returns the user's record for the item, if any
func (s *Scheduler) GetRecord(ctx context.Context, userID int64, itemID string) (models.ReviewRecord, bool, error) {
	rec, found, err := s.store.Get(ctx, userID, itemID)
	if err != nil {
		return models.ReviewRecord{}, false, &PersistenceError{Op: "get", UserID: userID, ItemID: itemID, Err: err}
	}
	return rec, found, nil
}

// MarkPresented creates the New record for an item the first time the user sees it.
// Calling it again for a known item returns the existing record unchanged.
func (s *Scheduler) MarkPresented(ctx context.Context, userID int64, itemID string, now time.Time) (models.ReviewRecord, error) {
	rec, found, err := s.GetRecord(ctx, userID, itemID)
	if err != nil || found {
		return rec, err
	}

	rec = s.model.NewRecord(userID, itemID, now)
	err = s.store.Put(ctx, rec)
	if errors.Is(err, ErrVersionConflict) {
		// created by a concurrent presentation
		rec, _, err = s.GetRecord(ctx, userID, itemID)
		return rec, err
	}
	if err != nil {
		return models.ReviewRecord{}, &PersistenceError{Op: "put", UserID: userID, ItemID: itemID, Err: err}
	}
	rec.Version++
	return rec, nil
}

// Stats summarizes every record of the user. The store must implement Lister.
func (s *Scheduler) Stats(ctx context.Context, userID int64, now time.Time) (models.LearningStats, error) {
	lister, ok := s.store.(Lister)
	if !ok {
		return models.LearningStats{}, fmt.Errorf("spaced_repetition: store %T cannot list records", s.store)
	}
	records, err := lister.ListByUser(ctx, userID)
	if err != nil {
		return models.LearningStats{}, &PersistenceError{Op: "list", UserID: userID, Err: err}
	}
	stats := ComputeStats(records, now)
	stats.AvgRetention = s.model.AverageRetention(records, now)
	return stats, nil
}
