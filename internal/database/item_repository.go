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

// ItemRepository is the content catalog: vocabulary, idioms and general-knowledge entries
type ItemRepository struct {
	db *sqlx.DB
}

var _ spaced_repetition.Catalog = (*ItemRepository)(nil)

// NewItemRepository creates a new repository instance
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetByID returns an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	err := r.db.GetContext(ctx, &item, r.db.Rebind(`SELECT * FROM items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item by ID: %w", err)
	}
	return &item, nil
}

// GetByIDs returns the items found for ids, keyed by ID
func (r *ItemRepository) GetByIDs(ctx context.Context, ids []string) (map[string]models.Item, error) {
	result := make(map[string]models.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build items query: %w", err)
	}
	var items []models.Item
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	for _, item := range items {
		result[item.ID] = item
	}
	return result, nil
}

// ListByKind returns items of one kind ordered by ID
func (r *ItemRepository) ListByKind(ctx context.Context, kind string, limit int) ([]models.Item, error) {
	var items []models.Item
	query := r.db.Rebind(`SELECT * FROM items WHERE kind = ? ORDER BY id LIMIT ?`)
	if err := r.db.SelectContext(ctx, &items, query, kind, limit); err != nil {
		return nil, fmt.Errorf("failed to get items by kind: %w", err)
	}
	return items, nil
}

// Distractors returns up to n random items of the same kind, excluding one ID
func (r *ItemRepository) Distractors(ctx context.Context, kind, excludeID string, n int) ([]models.Item, error) {
	var items []models.Item
	query := r.db.Rebind(`SELECT * FROM items WHERE kind = ? AND id <> ? ORDER BY RANDOM() LIMIT ?`)
	if err := r.db.SelectContext(ctx, &items, query, kind, excludeID, n); err != nil {
		return nil, fmt.Errorf("failed to get distractors: %w", err)
	}
	return items, nil
}

// UnseenItems returns IDs of items the user has no review record for, oldest first
func (r *ItemRepository) UnseenItems(ctx context.Context, userID int64, limit int) ([]string, error) {
	var ids []string
	query := r.db.Rebind(`
		SELECT i.id FROM items i
		WHERE NOT EXISTS (
			SELECT 1 FROM review_records rr WHERE rr.user_id = ? AND rr.item_id = i.id
		)
		ORDER BY i.created_at ASC, i.id ASC
		LIMIT ?
	`)
	if err := r.db.SelectContext(ctx, &ids, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to get unseen items: %w", err)
	}
	return ids, nil
}

// Upsert creates the item or updates its content. It reports whether a new row was created.
func (r *ItemRepository) Upsert(ctx context.Context, item *models.Item) (bool, error) {
	now := time.Now().UTC()
	item.UpdatedAt = now

	existing, err := r.GetByID(ctx, item.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}

	if existing == nil {
		item.CreatedAt = now
		_, err = r.db.NamedExecContext(ctx, `
			INSERT INTO items (id, kind, prompt, answer, details, topic, created_at, updated_at)
			VALUES (:id, :kind, :prompt, :answer, :details, :topic, :created_at, :updated_at)
		`, item)
		if err != nil {
			return false, fmt.Errorf("failed to create item: %w", err)
		}
		return true, nil
	}

	item.CreatedAt = existing.CreatedAt
	_, err = r.db.NamedExecContext(ctx, `
		UPDATE items SET
			kind = :kind,
			prompt = :prompt,
			answer = :answer,
			details = :details,
			topic = :topic,
			updated_at = :updated_at
		WHERE id = :id
	`, item)
	if err != nil {
		return false, fmt.Errorf("failed to update item: %w", err)
	}
	return false, nil
}

// Count returns the number of items in the catalog
func (r *ItemRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM items`); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}
