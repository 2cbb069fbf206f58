package spaced_repetition

import (
	"context"
	"time"

	"github.com/example/prepbot/pkg/models"
)

// Store is the durable mapping from (user, item) to its review record.
//
// Put is a compare-and-swap on ReviewRecord.Version: a record with Version 0 is
// inserted only if none exists, otherwise the stored version must equal rec.Version.
// On success the stored version is rec.Version+1. A lost race returns an error
// wrapping ErrVersionConflict.
type Store interface {
	Get(ctx context.Context, userID int64, itemID string) (models.ReviewRecord, bool, error)
	Put(ctx context.Context, rec models.ReviewRecord) error
	DueBefore(ctx context.Context, userID int64, t time.Time) ([]models.ReviewRecord, error)
}

// Lister is implemented by stores that can enumerate every record of a user
type Lister interface {
	ListByUser(ctx context.Context, userID int64) ([]models.ReviewRecord, error)
}

// Catalog supplies items the user has never been shown
type Catalog interface {
	UnseenItems(ctx context.Context, userID int64, limit int) ([]string, error)
}
