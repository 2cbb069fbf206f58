package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/prepbot/pkg/models"
)

const userColumns = `telegram_id, username, first_name, notification_enabled, notification_hour,
	items_per_session, created_at, updated_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by Telegram ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &user, nil
}

// Register inserts a new user with the given defaults or refreshes the names of an existing one.
// Settings of an existing user are left alone.
func (r *UserRepository) Register(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:telegram_id, :username, :first_name, :notification_enabled, :notification_hour,
			:items_per_session, :created_at, :updated_at)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			updated_at = excluded.updated_at
	`, user)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	return nil
}

// UpdateSettings changes the review preferences of a user
func (r *UserRepository) UpdateSettings(ctx context.Context, id int64, itemsPerSession, notificationHour int, enabled bool) error {
	query := r.db.Rebind(`
		UPDATE users SET
			items_per_session = ?,
			notification_hour = ?,
			notification_enabled = ?,
			updated_at = ?
		WHERE telegram_id = ?
	`)
	result, err := r.db.ExecContext(ctx, query, itemsPerSession, notificationHour, enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user settings: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetUsersForNotification returns users with reminders enabled at the given hour
func (r *UserRepository) GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error) {
	var users []models.User
	query := r.db.Rebind(`
		SELECT ` + userColumns + ` FROM users
		WHERE notification_enabled = ? AND notification_hour = ?
		ORDER BY telegram_id
	`)
	if err := r.db.SelectContext(ctx, &users, query, true, hour); err != nil {
		return nil, fmt.Errorf("failed to get users for notification: %w", err)
	}
	return users, nil
}
