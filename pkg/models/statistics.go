package models

// LearningStats summarizes all review records of a user
type LearningStats struct {
	TotalItems     int     `json:"total_items"`
	NewItems       int     `json:"new_items"`
	LearningItems  int     `json:"learning_items"`
	ReviewItems    int     `json:"review_items"`
	MasteredItems  int     `json:"mastered_items"`
	DueItems       int     `json:"due_items"`
	TotalReviews   int     `json:"total_reviews"`
	CorrectReviews int     `json:"correct_reviews"`
	TotalLapses    int     `json:"total_lapses"`
	AccuracyRate   float64 `json:"accuracy_rate"`
	AvgEaseFactor  float64 `json:"avg_ease_factor"`
	AvgRetention   float64 `json:"avg_retention"` // mean recall estimate over reviewed items
}
