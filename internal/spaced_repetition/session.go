package spaced_repetition

import (
	"context"
	"time"

	"github.com/example/prepbot/pkg/models"
)

// Coordinator turns a budget into a bounded review session
type Coordinator struct {
	scheduler   *Scheduler
	defaultSize int
	avgItem     time.Duration
}

// NewCoordinator creates a coordinator using the session sizing from the scheduler's config
func NewCoordinator(s *Scheduler) *Coordinator {
	cfg := s.model.Config()
	return &Coordinator{
		scheduler:   s,
		defaultSize: cfg.DefaultSessionSize,
		avgItem:     cfg.AverageItemDuration,
	}
}

// Limit converts a budget into an item count. A duration budget is divided by the
// average time per item and always allows at least one item. With both set the smaller
// count wins. A zero budget gets the default size.
func (c *Coordinator) Limit(b models.Budget) int {
	if b.MaxItems <= 0 && b.MaxDuration <= 0 {
		return c.defaultSize
	}

	limit := -1
	if b.MaxItems > 0 {
		limit = b.MaxItems
	}
	if b.MaxDuration > 0 {
		byTime := max(int(b.MaxDuration/c.avgItem), 1)
		if limit < 0 || byTime < limit {
			limit = byTime
		}
	}
	return limit
}

// BuildSession selects the items for one review interaction. It only reads,
// so repeated calls with the same now return the same items.
func (c *Coordinator) BuildSession(ctx context.Context, userID int64, now time.Time, budget models.Budget) (models.Session, error) {
	limit := c.Limit(budget)
	session := models.Session{
		UserID:  userID,
		Items:   []string{},
		Budget:  budget,
		Limit:   limit,
		BuiltAt: now,
		Stats:   models.SessionStats{DueByStage: map[models.Stage]int{}},
	}

	sel, err := c.scheduler.selectDue(ctx, userID, now, limit, budget.Mode, budget.IncludeNew)
	if err != nil {
		return models.Session{}, err
	}

	session.Items = sel.items(limit)
	session.Stats.DueTotal = len(sel.due)
	for _, rec := range sel.due {
		session.Stats.DueByStage[rec.Stage]++
	}
	if len(sel.due) > limit {
		session.Stats.Truncated = len(sel.due) - limit
	} else {
		session.Stats.NewSurfaced = len(session.Items) - len(sel.due)
	}
	return session, nil
}

// SuggestPlan splits a daily target into recommended sessions. With more due than the
// target it mixes review, new and weak sessions; otherwise one mixed session covers the backlog.
// The daily load adjustment follows the overall accuracy.
func (c *Coordinator) SuggestPlan(ctx context.Context, userID int64, now time.Time, dailyTarget int) (models.StudyPlan, error) {
	if dailyTarget <= 0 {
		dailyTarget = 2 * c.defaultSize
	}

	stats, err := c.scheduler.Stats(ctx, userID, now)
	if err != nil {
		return models.StudyPlan{}, err
	}
	weak, err := c.scheduler.selectDue(ctx, userID, now, 1, models.ModeWeak, false)
	if err != nil {
		return models.StudyPlan{}, err
	}

	plan := models.StudyPlan{
		DailyTarget: dailyTarget,
		CurrentDue:  stats.DueItems,
		WeakDue:     len(weak.due),
		Adjustment:  models.AdjustMaintain,
	}

	switch {
	case stats.DueItems > dailyTarget:
		plan.Sessions = plannedSessions(
			models.PlannedSession{Mode: models.ModeReview, Items: dailyTarget / 2},
			models.PlannedSession{Mode: models.ModeNew, Items: dailyTarget / 4},
			models.PlannedSession{Mode: models.ModeWeak, Items: min(dailyTarget/4, plan.WeakDue)},
		)
	case stats.DueItems > 0:
		plan.Sessions = []models.PlannedSession{{Mode: models.ModeMixed, Items: stats.DueItems}}
	default:
		plan.Sessions = []models.PlannedSession{{Mode: models.ModeNew, Items: max(dailyTarget/4, 1)}}
	}

	if stats.TotalReviews > 0 {
		switch {
		case stats.AccuracyRate > 0.9:
			plan.Adjustment = models.AdjustIncrease
		case stats.AccuracyRate < 0.6:
			plan.Adjustment = models.AdjustDecrease
		}
	}
	return plan, nil
}

func plannedSessions(all ...models.PlannedSession) []models.PlannedSession {
	out := make([]models.PlannedSession, 0, len(all))
	for _, p := range all {
		if p.Items > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Tally aggregates the outcomes reported during one session
type Tally struct {
	Answered  int                    `json:"answered"`
	Passed    int                    `json:"passed"`
	Lapsed    int                    `json:"lapsed"`
	ByQuality map[models.Quality]int `json:"by_quality"`
}

// Add records one computed outcome
func (t *Tally) Add(q models.Quality, u models.UpdatedFields) {
	if t.ByQuality == nil {
		t.ByQuality = make(map[models.Quality]int)
	}
	t.Answered++
	t.ByQuality[q]++
	if u.Lapsed {
		t.Lapsed++
	} else {
		t.Passed++
	}
}

// Accuracy is the share of passed answers, 0 for an empty tally
func (t Tally) Accuracy() float64 {
	if t.Answered == 0 {
		return 0
	}
	return float64(t.Passed) / float64(t.Answered)
}
