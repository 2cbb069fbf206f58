package spaced_repetition

import (
	"time"

	"github.com/example/prepbot/pkg/models"
)

// ComputeStats aggregates a user's records as of now
func ComputeStats(records []models.ReviewRecord, now time.Time) models.LearningStats {
	var stats models.LearningStats
	var easeSum float64

	for _, rec := range records {
		stats.TotalItems++
		switch rec.Stage {
		case models.StageNew:
			stats.NewItems++
		case models.StageLearning:
			stats.LearningItems++
		case models.StageReview:
			stats.ReviewItems++
		case models.StageMastered:
			stats.MasteredItems++
		}
		if rec.IsDue(now) {
			stats.DueItems++
		}
		stats.TotalReviews += rec.TotalReviews
		stats.CorrectReviews += rec.CorrectReviews
		stats.TotalLapses += rec.LapseCount
		easeSum += rec.EaseFactor
	}

	if stats.TotalReviews > 0 {
		stats.AccuracyRate = float64(stats.CorrectReviews) / float64(stats.TotalReviews)
	}
	if stats.TotalItems > 0 {
		stats.AvgEaseFactor = easeSum / float64(stats.TotalItems)
	}
	return stats
}
