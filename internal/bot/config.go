package bot

import (
	"time"
)

// Config represents the configuration for the bot
type Config struct {
	// Items per review session for users who never changed it
	DefaultItemsPerSession int
	// Reminder hour (UTC) given to new users
	DefaultNotificationHour int
	// Upper bound on session length; zero means count-only budgets
	SessionDuration time.Duration
	// Largest session size a user may choose
	MaxItemsPerSession int
	// Items per day the study plan is built around
	DailyTarget int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() Config {
	return Config{
		DefaultItemsPerSession:  10,
		DefaultNotificationHour: 18,
		SessionDuration:         15 * time.Minute,
		MaxItemsPerSession:      50,
		DailyTarget:             20,
	}
}
