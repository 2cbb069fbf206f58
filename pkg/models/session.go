package models

import (
	"fmt"
	"time"
)

// SessionMode picks which items a session draws from. It never filters on item kind.
type SessionMode int

const (
	ModeMixed  SessionMode = iota // everything due; unseen items too when IncludeNew is set
	ModeNew                       // items never answered: New records and unseen catalog items
	ModeReview                    // due items answered at least once
	ModeWeak                      // due items with lapses or a lowered ease, weakest first
)

var (
	modeNames  = [...]string{ModeMixed: "mixed", ModeNew: "new", ModeReview: "review", ModeWeak: "weak"}
	modeByName = map[string]SessionMode{
		"mixed":  ModeMixed,
		"new":    ModeNew,
		"review": ModeReview,
		"weak":   ModeWeak,
	}
)

func (m SessionMode) String() string {
	if m >= ModeMixed && m <= ModeWeak {
		return modeNames[m]
	}
	return fmt.Sprintf("SessionMode(%d)", int(m))
}

// ParseSessionMode converts a mode name; the empty string is ModeMixed
func ParseSessionMode(name string) (SessionMode, error) {
	if name == "" {
		return ModeMixed, nil
	}
	m, ok := modeByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown session mode %q", name)
	}
	return m, nil
}

// Budget bounds a review session either by item count or by estimated duration.
// When both are set the smaller resulting count wins.
type Budget struct {
	MaxItems    int           `json:"max_items"`
	MaxDuration time.Duration `json:"max_duration"`
	IncludeNew  bool          `json:"include_new"` // top up with unseen catalog items
	Mode        SessionMode   `json:"mode"`
}

// CountBudget returns a budget of at most n items
func CountBudget(n int) Budget {
	return Budget{MaxItems: n}
}

// DurationBudget returns a budget bounded by an estimated duration
func DurationBudget(d time.Duration) Budget {
	return Budget{MaxDuration: d}
}

// Session is one bounded batch of items selected for review
type Session struct {
	UserID  int64        `json:"user_id"`
	Items   []string     `json:"items"`
	Budget  Budget       `json:"budget"`
	Limit   int          `json:"limit"` // item count derived from the budget
	BuiltAt time.Time    `json:"built_at"`
	Stats   SessionStats `json:"stats"`
}

// IsEmpty reports whether nothing was due
func (s Session) IsEmpty() bool {
	return len(s.Items) == 0
}

// SessionStats describes the due backlog a session was built from
type SessionStats struct {
	DueTotal    int           `json:"due_total"`
	DueByStage  map[Stage]int `json:"due_by_stage"`
	NewSurfaced int           `json:"new_surfaced"`
	Truncated   int           `json:"truncated"` // due items left out by the budget
}

// StudyPlan suggests how to split a day's reviews
type StudyPlan struct {
	DailyTarget int              `json:"daily_target"`
	CurrentDue  int              `json:"current_due"`
	WeakDue     int              `json:"weak_due"`
	Sessions    []PlannedSession `json:"sessions"`
	Adjustment  string           `json:"adjustment"` // increase, decrease or maintain the daily load
}

// PlannedSession is one recommended session of a study plan
type PlannedSession struct {
	Mode  SessionMode `json:"mode"`
	Items int         `json:"items"`
}

// Daily load adjustments suggested by a study plan
const (
	AdjustIncrease = "increase"
	AdjustDecrease = "decrease"
	AdjustMaintain = "maintain"
)
