package bot

import (
	"sync"
	"time"

	"github.com/example/prepbot/internal/quiz"
	"github.com/example/prepbot/internal/spaced_repetition"
	"github.com/example/prepbot/pkg/models"
)

// reviewSession is a user's ongoing review in the chat
type reviewSession struct {
	mu sync.Mutex

	ID     string
	ChatID int64
	Items  []models.Item
	Stats  models.SessionStats
	pos    int
	// question currently shown, valid while awaiting is true
	question quiz.Question
	askedAt  time.Time
	awaiting bool
	revealed bool // answer shown, waiting for a self-rating
	tally    spaced_repetition.Tally
}

func (s *reviewSession) current() (models.Item, bool) {
	if s.pos >= len(s.Items) {
		return models.Item{}, false
	}
	return s.Items[s.pos], true
}

func (b *Bot) session(userID int64) *reviewSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[userID]
}

func (b *Bot) setSession(userID int64, s *reviewSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[userID] = s
}

// endSession removes s if it is still the user's active session
func (b *Bot) endSession(userID int64, s *reviewSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessions[userID] == s {
		delete(b.sessions, userID)
	}
}
