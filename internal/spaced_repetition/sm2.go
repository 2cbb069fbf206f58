package spaced_repetition

import (
	"fmt"
	"math"
	"time"

	"github.com/example/prepbot/pkg/models"
)

const day = 24 * time.Hour

// MaxIntervalCeiling bounds every computed interval, whatever the configured cap.
// Larger values would overflow time.Duration when added to a timestamp.
const MaxIntervalCeiling = 36500

// SM2 is the difficulty model: a SuperMemo-2 variant with an explicit stage machine.
// It holds only configuration and is safe for concurrent use.
type SM2 struct {
	cfg Config
}

// NewSM2 validates cfg and returns a model using it
func NewSM2(cfg Config) (*SM2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LearningIntervals = append([]int(nil), cfg.LearningIntervals...)
	return &SM2{cfg: cfg}, nil
}

// Config returns the policy the model was built with
func (sm *SM2) Config() Config {
	return sm.cfg
}

// NewRecord returns the state of an item the first time it is presented: New and due immediately
func (sm *SM2) NewRecord(userID int64, itemID string, now time.Time) models.ReviewRecord {
	return models.ReviewRecord{
		UserID:     userID,
		ItemID:     itemID,
		Stage:      models.StageNew,
		EaseFactor: sm.cfg.InitialEase,
		DueAt:      now,
	}
}

// IsLapse reports whether the quality falls below the pass threshold
func (sm *SM2) IsLapse(q models.Quality) bool {
	return q.Score() < sm.cfg.PassThreshold
}

// Compute applies one outcome to a record. It has no side effects:
// the same (record, quality, now) always yields the same result.
func (sm *SM2) Compute(rec models.ReviewRecord, quality models.Quality, now time.Time) (models.UpdatedFields, error) {
	if !quality.IsValid() {
		return models.UpdatedFields{}, fmt.Errorf("%w: %d", ErrInvalidQuality, int(quality))
	}

	ease := sm.clampEase(rec.EaseFactor)
	out := models.UpdatedFields{
		LastReviewedAt: now,
		LapseCount:     rec.LapseCount,
		TotalReviews:   rec.TotalReviews + 1,
		CorrectReviews: rec.CorrectReviews,
	}

	if sm.IsLapse(quality) {
		out.Lapsed = true
		out.Stage = models.StageLearning
		out.RepetitionCount = 0
		out.LapseCount++
		out.IntervalDays = sm.cfg.LapseIntervalDays
		out.EaseFactor = sm.clampEase(ease - sm.cfg.LapsePenalty)
		out.DueAt = now.Add(time.Duration(out.IntervalDays) * day)
		return out, nil
	}

	out.CorrectReviews++
	out.RepetitionCount = rec.RepetitionCount + 1
	out.EaseFactor = sm.clampEase(ease + sm.easeDelta(quality))

	switch rec.Stage {
	case models.StageNew:
		out.Stage = models.StageLearning
		out.IntervalDays = sm.learningInterval(out.RepetitionCount)
	case models.StageLearning:
		out.Stage = models.StageLearning
		if out.RepetitionCount >= sm.cfg.GraduationPasses {
			out.Stage = models.StageReview
		}
		out.IntervalDays = sm.learningInterval(out.RepetitionCount)
	default:
		out.Stage = rec.Stage
		out.IntervalDays = sm.reviewInterval(rec.IntervalDays, ease, quality)
	}

	if out.Stage == models.StageReview &&
		out.IntervalDays > sm.cfg.MasteryIntervalDays &&
		out.RepetitionCount > sm.cfg.MasteryMinRepetitions {
		out.Stage = models.StageMastered
	}

	out.DueAt = now.Add(time.Duration(out.IntervalDays) * day)
	return out, nil
}

// RetentionEstimate gives a rough probability that the item is still remembered at now.
// Never-reviewed items get 0.5.
func (sm *SM2) RetentionEstimate(rec models.ReviewRecord, now time.Time) float64 {
	if rec.LastReviewedAt == nil || rec.TotalReviews == 0 {
		return 0.5
	}
	days := math.Floor(now.Sub(*rec.LastReviewedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	retention := rec.EaseFactor / 3.0 * math.Exp(-days/10.0)
	return math.Max(0.1, math.Min(0.95, retention))
}

// AverageRetention is the mean RetentionEstimate over records answered at least once,
// 0 when there are none
func (sm *SM2) AverageRetention(records []models.ReviewRecord, now time.Time) float64 {
	var sum float64
	n := 0
	for _, rec := range records {
		if rec.TotalReviews == 0 {
			continue
		}
		sum += sm.RetentionEstimate(rec, now)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (sm *SM2) clampEase(ease float64) float64 {
	if ease < sm.cfg.EaseFloor {
		return sm.cfg.EaseFloor
	}
	return ease
}

func (sm *SM2) easeDelta(q models.Quality) float64 {
	switch q {
	case models.QualityEasy:
		return sm.cfg.EaseDeltaEasy
	case models.QualityGood:
		return sm.cfg.EaseDeltaGood
	default:
		return sm.cfg.EaseDeltaHard
	}
}

// learningInterval returns the fixed interval for the n-th consecutive pass (1-based)
func (sm *SM2) learningInterval(n int) int {
	steps := sm.cfg.LearningIntervals
	if n > len(steps) {
		n = len(steps)
	}
	if n < 1 {
		n = 1
	}
	return steps[n-1]
}

// reviewInterval grows the previous interval by the ease factor the record had before this answer
func (sm *SM2) reviewInterval(prev int, ease float64, q models.Quality) int {
	if prev <= 0 {
		return sm.learningInterval(len(sm.cfg.LearningIntervals))
	}

	next := math.Round(float64(prev) * ease)
	if q == models.QualityEasy {
		next = math.Round(next * sm.cfg.EasyBonus)
	}

	next = math.Min(next, MaxIntervalCeiling)

	interval := int(next)
	if interval < prev {
		interval = prev
	}
	if limit := sm.cfg.MaxIntervalDays; limit > 0 && interval > limit {
		// never shrink an interval that is already past the cap
		interval = limit
		if prev > limit {
			interval = prev
		}
	}
	if interval > MaxIntervalCeiling {
		interval = MaxIntervalCeiling
	}
	return interval
}
