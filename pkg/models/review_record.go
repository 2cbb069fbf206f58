package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Stage is the coarse learning phase of an item for one user
type Stage int

const (
	StageNew Stage = iota
	StageLearning
	StageReview
	StageMastered
)

var (
	stageNames  = [...]string{StageNew: "new", StageLearning: "learning", StageReview: "review", StageMastered: "mastered"}
	stageByName = map[string]Stage{
		"new":      StageNew,
		"learning": StageLearning,
		"review":   StageReview,
		"mastered": StageMastered,
	}
)

// IsValid reports whether s is one of the four known stages
func (s Stage) IsValid() bool {
	return s >= StageNew && s <= StageMastered
}

func (s Stage) String() string {
	if s.IsValid() {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s Stage) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid stage: %d", int(s))
	}
	return []byte(stageNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Stage) UnmarshalText(text []byte) error {
	v, ok := stageByName[string(text)]
	if !ok {
		return fmt.Errorf("invalid stage: %q", text)
	}
	*s = v
	return nil
}

// MarshalJSON serializes the stage as a JSON string
func (s Stage) MarshalJSON() ([]byte, error) {
	text, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON expects a JSON string
func (s *Stage) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("invalid stage: %s", data)
	}
	return s.UnmarshalText([]byte(str))
}

// Value stores the stage as text so the column stays readable in both sqlite and postgres
func (s Stage) Value() (driver.Value, error) {
	text, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(text), nil
}

// Scan implements sql.Scanner
func (s *Stage) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		*s = StageNew
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Stage", src)
	}
}

// Quality is the ordinal recall-quality signal reported for one answer
type Quality int

const (
	QualityFail Quality = iota + 1 // Not recalled
	QualityHard                    // Recalled with significant effort
	QualityGood                    // Recalled after some hesitation
	QualityEasy                    // Recalled instantly
)

var (
	qualityNames  = [...]string{QualityFail: "fail", QualityHard: "hard", QualityGood: "good", QualityEasy: "easy"}
	qualityByName = map[string]Quality{
		"fail": QualityFail,
		"hard": QualityHard,
		"good": QualityGood,
		"easy": QualityEasy,
	}
	// position on the classic 0-5 SuperMemo grade scale
	qualityScores = [...]int{QualityFail: 1, QualityHard: 3, QualityGood: 4, QualityEasy: 5}
)

// IsValid reports whether q is one of Fail, Hard, Good, Easy
func (q Quality) IsValid() bool {
	return q >= QualityFail && q <= QualityEasy
}

func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// Score maps the quality onto the 0-5 grade scale. Invalid qualities score -1.
func (q Quality) Score() int {
	if !q.IsValid() {
		return -1
	}
	return qualityScores[q]
}

// ParseQuality converts a quality name ("fail", "hard", "good", "easy")
func ParseQuality(name string) (Quality, error) {
	q, ok := qualityByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown quality %q", name)
	}
	return q, nil
}

// ReviewRecord is the scheduling state of one item for one user
type ReviewRecord struct {
	UserID          int64      `json:"user_id" db:"user_id"`
	ItemID          string     `json:"item_id" db:"item_id"`
	Stage           Stage      `json:"stage" db:"stage"`
	RepetitionCount int        `json:"repetition_count" db:"repetition_count"` // consecutive passes since the last lapse
	EaseFactor      float64    `json:"ease_factor" db:"ease_factor"`
	IntervalDays    int        `json:"interval_days" db:"interval_days"`
	DueAt           time.Time  `json:"due_at" db:"due_at"`
	LastReviewedAt  *time.Time `json:"last_reviewed_at" db:"last_reviewed_at"`
	LapseCount      int        `json:"lapse_count" db:"lapse_count"`
	TotalReviews    int        `json:"total_reviews" db:"total_reviews"`
	CorrectReviews  int        `json:"correct_reviews" db:"correct_reviews"`
	Version         int64      `json:"version" db:"version"` // 0 until first persisted
}

// IsDue reports whether the record is eligible for review at now
func (r *ReviewRecord) IsDue(now time.Time) bool {
	return !r.DueAt.After(now)
}

// Apply copies computed scheduling fields into the record
func (r *ReviewRecord) Apply(u UpdatedFields) {
	r.Stage = u.Stage
	r.RepetitionCount = u.RepetitionCount
	r.EaseFactor = u.EaseFactor
	r.IntervalDays = u.IntervalDays
	r.DueAt = u.DueAt
	reviewed := u.LastReviewedAt
	r.LastReviewedAt = &reviewed
	r.LapseCount = u.LapseCount
	r.TotalReviews = u.TotalReviews
	r.CorrectReviews = u.CorrectReviews
}

// UpdatedFields is the result of applying one outcome to a record
type UpdatedFields struct {
	Stage           Stage     `json:"stage"`
	RepetitionCount int       `json:"repetition_count"`
	EaseFactor      float64   `json:"ease_factor"`
	IntervalDays    int       `json:"interval_days"`
	DueAt           time.Time `json:"due_at"`
	LastReviewedAt  time.Time `json:"last_reviewed_at"`
	LapseCount      int       `json:"lapse_count"`
	TotalReviews    int       `json:"total_reviews"`
	CorrectReviews  int       `json:"correct_reviews"`
	Lapsed          bool      `json:"lapsed"`
}
