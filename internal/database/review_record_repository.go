package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/prepbot/internal/spaced_repetition"
	"github.com/example/prepbot/pkg/models"
)

const reviewRecordColumns = `user_id, item_id, stage, repetition_count, ease_factor, interval_days,
	due_at, last_reviewed_at, lapse_count, total_reviews, correct_reviews, version`

// ReviewRecordRepository is the sql-backed review record store.
// Writes are compare-and-swap on the version column, so concurrent outcome
// reports for the same (user, item) cannot overwrite each other.
type ReviewRecordRepository struct {
	db *sqlx.DB
}

var (
	_ spaced_repetition.Store  = (*ReviewRecordRepository)(nil)
	_ spaced_repetition.Lister = (*ReviewRecordRepository)(nil)
)

// NewReviewRecordRepository creates a new repository instance
func NewReviewRecordRepository(db *sqlx.DB) *ReviewRecordRepository {
	return &ReviewRecordRepository{db: db}
}

// Get returns the record for a user and item
func (r *ReviewRecordRepository) Get(ctx context.Context, userID int64, itemID string) (models.ReviewRecord, bool, error) {
	var rec models.ReviewRecord
	query := r.db.Rebind(`SELECT ` + reviewRecordColumns + ` FROM review_records WHERE user_id = ? AND item_id = ?`)
	err := r.db.GetContext(ctx, &rec, query, userID, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReviewRecord{}, false, nil
	}
	if err != nil {
		return models.ReviewRecord{}, false, fmt.Errorf("failed to get review record: %w", err)
	}
	return normalize(rec), true, nil
}

// Put inserts a record with version 0 or updates one whose stored version matches
func (r *ReviewRecordRepository) Put(ctx context.Context, rec models.ReviewRecord) error {
	rec = normalize(rec)

	var (
		result sql.Result
		err    error
	)
	if rec.Version == 0 {
		result, err = r.db.NamedExecContext(ctx, `
			INSERT INTO review_records (`+reviewRecordColumns+`)
			VALUES (:user_id, :item_id, :stage, :repetition_count, :ease_factor, :interval_days,
				:due_at, :last_reviewed_at, :lapse_count, :total_reviews, :correct_reviews, 1)
			ON CONFLICT (user_id, item_id) DO NOTHING
		`, rec)
	} else {
		result, err = r.db.NamedExecContext(ctx, `
			UPDATE review_records SET
				stage = :stage,
				repetition_count = :repetition_count,
				ease_factor = :ease_factor,
				interval_days = :interval_days,
				due_at = :due_at,
				last_reviewed_at = :last_reviewed_at,
				lapse_count = :lapse_count,
				total_reviews = :total_reviews,
				correct_reviews = :correct_reviews,
				version = version + 1
			WHERE user_id = :user_id AND item_id = :item_id AND version = :version
		`, rec)
	}
	if err != nil {
		return fmt.Errorf("failed to save review record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %d item %q version %d", spaced_repetition.ErrVersionConflict, rec.UserID, rec.ItemID, rec.Version)
	}
	return nil
}

// DueBefore returns the user's records due at or before t
func (r *ReviewRecordRepository) DueBefore(ctx context.Context, userID int64, t time.Time) ([]models.ReviewRecord, error) {
	var records []models.ReviewRecord
	query := r.db.Rebind(`
		SELECT ` + reviewRecordColumns + ` FROM review_records
		WHERE user_id = ? AND due_at <= ?
		ORDER BY due_at ASC, item_id ASC
	`)
	if err := r.db.SelectContext(ctx, &records, query, userID, t.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get due records: %w", err)
	}
	for i := range records {
		records[i] = normalize(records[i])
	}
	return records, nil
}

// ListByUser returns every record of the user
func (r *ReviewRecordRepository) ListByUser(ctx context.Context, userID int64) ([]models.ReviewRecord, error) {
	var records []models.ReviewRecord
	query := r.db.Rebind(`SELECT ` + reviewRecordColumns + ` FROM review_records WHERE user_id = ? ORDER BY due_at ASC, item_id ASC`)
	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list review records: %w", err)
	}
	for i := range records {
		records[i] = normalize(records[i])
	}
	return records, nil
}

// Purge deletes every record of a user. Only data-retention policy calls this.
func (r *ReviewRecordRepository) Purge(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM review_records WHERE user_id = ?`), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge review records: %w", err)
	}
	return result.RowsAffected()
}

// timestamps are stored and compared in UTC
func normalize(rec models.ReviewRecord) models.ReviewRecord {
	rec.DueAt = rec.DueAt.UTC()
	if rec.LastReviewedAt != nil {
		t := rec.LastReviewedAt.UTC()
		rec.LastReviewedAt = &t
	}
	return rec
}
