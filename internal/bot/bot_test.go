package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/prepbot/internal/database"
	"github.com/example/prepbot/internal/quiz"
	"github.com/example/prepbot/internal/spaced_repetition"
	"github.com/example/prepbot/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const testUser int64 = 42

type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	requests int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Text
	}
	return out
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]models.User
}

func (f *fakeUsers) Register(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = map[int64]models.User{}
	}
	if existing, ok := f.users[user.ID]; ok {
		existing.Username = user.Username
		existing.FirstName = user.FirstName
		f.users[user.ID] = existing
		return nil
	}
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, database.ErrNotFound)
	}
	return &user, nil
}

func (f *fakeUsers) UpdateSettings(_ context.Context, id int64, items, hour int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, database.ErrNotFound)
	}
	user.ItemsPerSession = items
	user.NotificationHour = hour
	user.NotificationEnabled = enabled
	f.users[id] = user
	return nil
}

type fakeItems map[string]models.Item

func (f fakeItems) GetByIDs(_ context.Context, ids []string) (map[string]models.Item, error) {
	out := map[string]models.Item{}
	for _, id := range ids {
		if item, ok := f[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (f fakeItems) Distractors(_ context.Context, kind, excludeID string, n int) ([]models.Item, error) {
	var out []models.Item
	for _, item := range f {
		if item.Kind == kind && item.ID != excludeID && len(out) < n {
			out = append(out, item)
		}
	}
	return out, nil
}

type testEnv struct {
	bot     *Bot
	sender  *fakeSender
	users   *fakeUsers
	store   *spaced_repetition.MemoryStore
	metrics *Metrics
}

func newTestEnv(t *testing.T, items fakeItems, catalog []string) *testEnv {
	t.Helper()

	model, err := spaced_repetition.NewSM2(spaced_repetition.DefaultConfig())
	require.NoError(t, err)
	store := spaced_repetition.NewMemoryStore()
	sched := spaced_repetition.NewScheduler(model, store,
		spaced_repetition.WithCatalog(&spaced_repetition.MemoryCatalog{Items: catalog, Store: store}))

	env := &testEnv{
		sender:  &fakeSender{},
		users:   &fakeUsers{},
		store:   store,
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	b, err := New(DefaultConfig(), Deps{
		API:       env.sender,
		Users:     env.users,
		Items:     items,
		Scheduler: sched,
		Questions: quiz.NewBuilder(items, 1),
		Metrics:   env.metrics,
	})
	require.NoError(t, err)
	b.now = func() time.Time { return t0 }
	env.bot = b
	return env
}

func command(userID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func text(userID int64, body string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      body,
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

// buttonData returns the callback data of the button with the given label on msg
func buttonData(t *testing.T, msg tgbotapi.MessageConfig, label string) string {
	t.Helper()
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "message has no inline keyboard")
	for _, row := range markup.InlineKeyboard {
		for _, button := range row {
			if button.Text == label && button.CallbackData != nil {
				return *button.CallbackData
			}
		}
	}
	t.Fatalf("no button %q on message %q", label, msg.Text)
	return ""
}

var vocab = fakeItems{
	"vocab:ubiquitous": {ID: "vocab:ubiquitous", Kind: "vocab", Prompt: "ubiquitous", Answer: "present everywhere"},
	"vocab:ephemeral":  {ID: "vocab:ephemeral", Kind: "vocab", Prompt: "ephemeral", Answer: "lasting a short time"},
	"vocab:frugal":     {ID: "vocab:frugal", Kind: "vocab", Prompt: "frugal", Answer: "sparing with money"},
}

func TestAnswerCallbackRoundTrip(t *testing.T) {
	in := answerCallback{SessionID: "0b8e9c2a-8f1e-4a59-9c8d-3f2b1a0e7d64", Position: 12, Option: -1}
	data := in.String()
	assert.LessOrEqual(t, len(data), 64)

	out, err := parseAnswerCallback(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	for _, bad := range []string{"", "review", "a|x|1", "a||1|0", "a|x|-1|0", "a|x|1|-3", "b|x|1|0", "a|x|one|0"} {
		_, err := parseAnswerCallback(bad)
		assert.ErrorIs(t, err, errBadCallback, bad)
	}
}

func TestRatingCallbackRoundTrip(t *testing.T) {
	in := ratingCallback{SessionID: "0b8e9c2a-8f1e-4a59-9c8d-3f2b1a0e7d64", Position: 3, Quality: models.QualityHard}
	data := in.String()
	assert.LessOrEqual(t, len(data), 64)

	out, err := parseRatingCallback(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	for _, bad := range []string{"r|x|1", "r||1|good", "r|x|-1|good", "r|x|1|perfect", "a|x|1|good"} {
		_, err := parseRatingCallback(bad)
		assert.ErrorIs(t, err, errBadCallback, bad)
	}
}

func TestStartRegistersUser(t *testing.T) {
	env := newTestEnv(t, vocab, nil)

	update := command(testUser, "/start")
	update.Message.From.UserName = "aspirant"
	require.NoError(t, env.bot.HandleUpdate(context.Background(), update))

	user, err := env.users.GetByID(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "aspirant", user.Username)
	assert.Equal(t, 10, user.ItemsPerSession)
	assert.True(t, user.NotificationEnabled)
	assert.Contains(t, env.sender.last().Text, "Welcome")
}

func TestReviewSessionFlow(t *testing.T) {
	env := newTestEnv(t, vocab, []string{"vocab:ubiquitous", "vocab:ephemeral"})
	ctx := context.Background()

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review")))
	texts := env.sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "2 items (2 new)")
	assert.Contains(t, texts[1], "ubiquitous")

	// correct answer on the first question
	data := buttonData(t, env.sender.last(), "present everywhere")
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, data)))

	rec, found, err := env.store.Get(ctx, testUser, "vocab:ubiquitous")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.StageLearning, rec.Stage)
	assert.Equal(t, 1, rec.CorrectReviews)
	assert.Equal(t, int64(2), rec.Version)

	// pressing the same button again is ignored
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, data)))
	rec, _, err = env.store.Get(ctx, testUser, "vocab:ubiquitous")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalReviews)

	last := env.sender.last()
	assert.Contains(t, last.Text, "ephemeral")
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, buttonData(t, last, "🤷 I don't know"))))

	rec, _, err = env.store.Get(ctx, testUser, "vocab:ephemeral")
	require.NoError(t, err)
	assert.Equal(t, models.StageLearning, rec.Stage)
	assert.Equal(t, 1, rec.LapseCount)

	summary := env.sender.last().Text
	assert.Contains(t, summary, "Answered: 2")
	assert.Contains(t, summary, "Correct: 1")
	assert.Nil(t, env.bot.session(testUser))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Sessions.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Sessions.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Outcomes.WithLabelValues(models.QualityGood.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Outcomes.WithLabelValues(models.QualityFail.String())))

	// both items are due tomorrow, so nothing is left today
	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review")))
	assert.Contains(t, env.sender.last().Text, "Nothing is due")
}

func TestReviewTextInputAnswer(t *testing.T) {
	items := fakeItems{
		"gk:peru": {ID: "gk:peru", Kind: "gk", Prompt: "Capital of Peru?", Answer: "Lima", Details: "Founded in 1535"},
	}
	env := newTestEnv(t, items, []string{"gk:peru"})
	ctx := context.Background()

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review")))
	assert.Contains(t, env.sender.last().Text, "Type your answer")

	require.NoError(t, env.bot.HandleUpdate(ctx, text(testUser, " lima. ")))

	texts := env.sender.texts()
	feedback := texts[len(texts)-2]
	assert.Contains(t, feedback, "Correct")
	assert.Contains(t, feedback, "Founded in 1535")
	assert.Contains(t, feedback, "tomorrow")

	rec, found, err := env.store.Get(ctx, testUser, "gk:peru")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, rec.CorrectReviews)
}

func TestStaleCallbackIsIgnored(t *testing.T) {
	env := newTestEnv(t, vocab, []string{"vocab:frugal"})
	ctx := context.Background()

	stale := answerCallback{SessionID: "old", Position: 0, Option: 0}.String()
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, stale)))
	assert.Contains(t, env.sender.last().Text, "expired")

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review")))
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, stale)))

	rec, found, err := env.store.Get(ctx, testUser, "vocab:frugal")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, rec.TotalReviews)
}

func TestSettingsAndStop(t *testing.T) {
	env := newTestEnv(t, vocab, nil)
	ctx := context.Background()

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/settings 15 9")))
	user, err := env.users.GetByID(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 15, user.ItemsPerSession)
	assert.Equal(t, 9, user.NotificationHour)

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/settings 500")))
	assert.Contains(t, env.sender.last().Text, "from 1 to 50")

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/settings 5 25")))
	assert.Contains(t, env.sender.last().Text, "0 to 23")

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/settings")))
	assert.Contains(t, env.sender.last().Text, "Items per session: 15")

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/stop")))
	user, err = env.users.GetByID(ctx, testUser)
	require.NoError(t, err)
	assert.False(t, user.NotificationEnabled)
	assert.Equal(t, 15, user.ItemsPerSession)
}

func TestProgress(t *testing.T) {
	env := newTestEnv(t, vocab, []string{"vocab:ubiquitous"})
	ctx := context.Background()

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/progress")))
	assert.Contains(t, env.sender.last().Text, "not studied anything")

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review")))
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, buttonData(t, env.sender.last(), "present everywhere"))))

	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, callbackProgress)))
	progress := env.sender.last().Text
	assert.Contains(t, progress, "Items studied: 1")
	assert.Contains(t, progress, "100% correct")
	// ease 2.55 right after the review
	assert.Contains(t, progress, "Estimated retention: 85%")
}

func TestSendReminders(t *testing.T) {
	env := newTestEnv(t, vocab, nil)

	require.NoError(t, env.bot.SendReminders(context.Background(), 7, 3))
	msg := env.sender.last()
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Contains(t, msg.Text, "3 items due")
	assert.Equal(t, callbackReview, buttonData(t, msg, "📚 Start review"))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Reminders))
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, vocab, nil)
	updates := make(chan tgbotapi.Update, 1)
	updates <- command(testUser, "/help")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.bot.Run(ctx, updates)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(env.sender.texts()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReviewSelfRating(t *testing.T) {
	items := fakeItems{
		"gk:peru": {ID: "gk:peru", Kind: "gk", Prompt: "Capital of Peru?", Answer: "Lima"},
	}
	env := newTestEnv(t, items, []string{"gk:peru"})
	ctx := context.Background()

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review")))
	reveal := buttonData(t, env.sender.last(), "👀 Show answer")
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, reveal)))

	revealed := env.sender.last()
	assert.Contains(t, revealed.Text, "Lima")
	easy := buttonData(t, revealed, "😎 Easy")

	// typing after the reveal does not count as an answer
	require.NoError(t, env.bot.HandleUpdate(ctx, text(testUser, "lima")))
	assert.Contains(t, env.sender.last().Text, "rate yourself")

	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, easy)))
	rec, found, err := env.store.Get(ctx, testUser, "gk:peru")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, rec.TotalReviews)
	assert.Equal(t, 1, rec.CorrectReviews)
	assert.InDelta(t, 2.65, rec.EaseFactor, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Outcomes.WithLabelValues(models.QualityEasy.String())))
	assert.Contains(t, env.sender.last().Text, "Session complete")

	// the rating button is stale once the session is over
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, easy)))
	rec, _, err = env.store.Get(ctx, testUser, "gk:peru")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalReviews)
}

func TestRatingRequiresReveal(t *testing.T) {
	items := fakeItems{
		"gk:peru": {ID: "gk:peru", Kind: "gk", Prompt: "Capital of Peru?", Answer: "Lima"},
	}
	env := newTestEnv(t, items, []string{"gk:peru"})
	ctx := context.Background()

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review")))
	s := env.bot.session(testUser)
	require.NotNil(t, s)

	early := ratingCallback{SessionID: s.ID, Position: 0, Quality: models.QualityEasy}.String()
	require.NoError(t, env.bot.HandleUpdate(ctx, callback(testUser, early)))

	rec, found, err := env.store.Get(ctx, testUser, "gk:peru")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, rec.TotalReviews)
}

func seedLapsedFrugal(t *testing.T, env *testEnv) {
	t.Helper()
	require.NoError(t, env.store.Put(context.Background(), models.ReviewRecord{
		UserID:         testUser,
		ItemID:         "vocab:frugal",
		Stage:          models.StageLearning,
		EaseFactor:     2.3,
		IntervalDays:   1,
		DueAt:          t0.Add(-time.Hour),
		LapseCount:     1,
		TotalReviews:   3,
		CorrectReviews: 2,
	}))
}

func TestReviewModes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		args  string
		intro string
	}{
		{"weak", "(weak): 1 items"},
		{"new", "(new): 2 items"},
		{"REVIEW", "(review): 1 items"},
		{"", "Review session: 3 items"},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			env := newTestEnv(t, vocab, []string{"vocab:ubiquitous", "vocab:ephemeral"})
			seedLapsedFrugal(t, env)

			require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, strings.TrimSpace("/review "+tt.args))))
			assert.Contains(t, env.sender.texts()[0], tt.intro)
		})
	}
}

func TestReviewModeEmptyAndUnknown(t *testing.T) {
	env := newTestEnv(t, vocab, nil)
	ctx := context.Background()

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review weak")))
	assert.Contains(t, env.sender.last().Text, "No weak items")

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review new")))
	assert.Contains(t, env.sender.last().Text, "seen every item")

	require.NoError(t, env.bot.HandleUpdate(ctx, command(testUser, "/review vocab")))
	assert.Contains(t, env.sender.last().Text, "Unknown session type")
	assert.Nil(t, env.bot.session(testUser))
}

func TestPlan(t *testing.T) {
	env := newTestEnv(t, vocab, nil)
	seedLapsedFrugal(t, env)

	require.NoError(t, env.bot.HandleUpdate(context.Background(), command(testUser, "/plan")))
	plan := env.sender.last().Text
	assert.Contains(t, plan, "Due now: 1 (weak: 1)")
	assert.Contains(t, plan, "Daily target: 20")
	assert.Contains(t, plan, "• /review - 1 items")
	assert.Contains(t, plan, "Keep your current pace")
}
