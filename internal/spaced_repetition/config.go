package spaced_repetition

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config holds the scheduling policy constants
type Config struct {
	// Lowest ease factor any record can reach
	EaseFloor float64 `mapstructure:"ease_floor" validate:"gt=0"`
	// Ease factor of a freshly presented item
	InitialEase float64 `mapstructure:"initial_ease" validate:"gtefield=EaseFloor"`
	// Scores (0-5 scale) below this count as a lapse
	PassThreshold int `mapstructure:"pass_threshold" validate:"gte=1,lte=5"`
	// Ease subtracted on a lapse
	LapsePenalty float64 `mapstructure:"lapse_penalty" validate:"gte=0"`
	// Ease adjustments on a pass, per quality
	EaseDeltaHard float64 `mapstructure:"ease_delta_hard"`
	EaseDeltaGood float64 `mapstructure:"ease_delta_good" validate:"gtefield=EaseDeltaHard"`
	EaseDeltaEasy float64 `mapstructure:"ease_delta_easy" validate:"gtefield=EaseDeltaGood"`
	// Extra interval multiplier for Easy answers in the review phase
	EasyBonus float64 `mapstructure:"easy_bonus" validate:"gte=1"`
	// Interval assigned after any lapse
	LapseIntervalDays int `mapstructure:"lapse_interval_days" validate:"gte=0,lte=36500"`
	// Fixed intervals for the first passes after New/Learning
	LearningIntervals []int `mapstructure:"learning_intervals" validate:"min=1,dive,gte=0,lte=36500"`
	// Consecutive passes needed to leave Learning
	GraduationPasses int `mapstructure:"graduation_passes" validate:"gte=1"`
	// Review -> Mastered once interval and repetitions exceed these
	MasteryIntervalDays   int `mapstructure:"mastery_interval_days" validate:"gte=0"`
	MasteryMinRepetitions int `mapstructure:"mastery_min_repetitions" validate:"gte=0"`
	// Upper bound for computed intervals; 0 leaves only the 100-year ceiling
	MaxIntervalDays int `mapstructure:"max_interval_days" validate:"gte=0,lte=36500"`

	// Session sizing
	DefaultSessionSize  int           `mapstructure:"default_session_size" validate:"gte=1"`
	AverageItemDuration time.Duration `mapstructure:"average_item_duration" validate:"gt=0"`
}

// DefaultConfig returns the baseline policy
func DefaultConfig() Config {
	return Config{
		EaseFloor:             1.3,
		InitialEase:           2.5,
		PassThreshold:         3,
		LapsePenalty:          0.2,
		EaseDeltaHard:         -0.15,
		EaseDeltaGood:         0.05,
		EaseDeltaEasy:         0.15,
		EasyBonus:             1.3,
		LapseIntervalDays:     1,
		LearningIntervals:     []int{1, 6},
		GraduationPasses:      2,
		MasteryIntervalDays:   60,
		MasteryMinRepetitions: 8,
		MaxIntervalDays:       365,
		DefaultSessionSize:    10,
		AverageItemDuration:   30 * time.Second,
	}
}

// Validate checks the policy for values the difficulty model cannot work with
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for i := 1; i < len(c.LearningIntervals); i++ {
		if c.LearningIntervals[i] < c.LearningIntervals[i-1] {
			return fmt.Errorf("%w: learning intervals must not decrease: %v", ErrInvalidConfig, c.LearningIntervals)
		}
	}
	return nil
}
