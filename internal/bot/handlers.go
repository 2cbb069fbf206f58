package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/example/prepbot/internal/database"
	"github.com/example/prepbot/internal/quiz"
	"github.com/example/prepbot/internal/spaced_repetition"
	"github.com/example/prepbot/pkg/models"
)

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID, userID := message.Chat.ID, message.From.ID

	var err error
	switch message.Command() {
	case "start":
		err = b.handleStart(ctx, message)
	case "help":
		err = b.handleHelp(chatID)
	case "review":
		err = b.handleReview(ctx, chatID, userID, message.CommandArguments())
	case "progress", "stats":
		err = b.handleProgress(ctx, chatID, userID)
	case "plan":
		err = b.handlePlan(ctx, chatID, userID)
	case "settings":
		err = b.handleSettings(ctx, chatID, userID, message.CommandArguments())
	case "stop":
		err = b.handleStop(ctx, chatID, userID)
	default:
		err = b.sendText(chatID, "Unknown command. Use /help to see what I can do.")
	}
	return err
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.Message == nil || callback.Message.Chat == nil || callback.From == nil {
		return errors.New("invalid callback: required fields are missing")
	}
	chatID, userID := callback.Message.Chat.ID, callback.From.ID

	// Always answer the callback query to remove the loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback", "user_id", userID, "error", err)
	}

	switch callback.Data {
	case callbackReview:
		return b.handleReview(ctx, chatID, userID, "")
	case callbackProgress:
		return b.handleProgress(ctx, chatID, userID)
	case callbackSettings:
		return b.handleSettings(ctx, chatID, userID, "")
	case callbackHelp:
		return b.handleHelp(chatID)
	}

	if strings.HasPrefix(callback.Data, ratingPrefix+"|") {
		rating, err := parseRatingCallback(callback.Data)
		if err != nil {
			b.logger.Warn("bad rating callback", "user_id", userID, "data", callback.Data, "error", err)
			return b.sendText(chatID, "⚠️ Unknown action")
		}
		return b.handleRatingCallback(ctx, chatID, userID, rating)
	}

	answer, err := parseAnswerCallback(callback.Data)
	if err != nil {
		b.logger.Warn("unknown callback", "user_id", userID, "data", callback.Data)
		return b.sendText(chatID, "⚠️ Unknown action")
	}
	return b.handleAnswerCallback(ctx, chatID, userID, answer)
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	user := b.defaultUser(message.From.ID)
	user.Username = message.From.UserName
	user.FirstName = message.From.FirstName
	if err := b.users.Register(ctx, &user); err != nil {
		b.metrics.Errors.WithLabelValues("register").Inc()
		return fmt.Errorf("failed to register user: %w", err)
	}

	text := "👋 Welcome to the exam prep bot!\n\n" +
		"I quiz you on vocabulary, idioms and general knowledge and schedule every item " +
		"so it comes back right before you would forget it.\n\n" +
		"Press Review to start, or use /help to see all commands."

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleHelp(chatID int64) error {
	text := "📖 Commands\n\n" +
		"/review - start a review session\n" +
		"/review new|review|weak - only new items, only items seen before, or your weakest items\n" +
		"/progress - show your learning statistics\n" +
		"/plan - suggest today's sessions\n" +
		"/settings [items] [hour] - show or change session size and reminder hour (UTC)\n" +
		"/stop - turn off reminders and end the current session\n" +
		"/help - show this message\n\n" +
		"🔄 How it works\n" +
		"New items come back after 1 day, then 6 days, then at growing intervals. " +
		"A wrong answer sends the item back to learning."

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	return b.sendMessage(msg)
}

// defaultUser returns the settings a user gets before changing anything
func (b *Bot) defaultUser(userID int64) models.User {
	return models.User{
		ID:                  userID,
		NotificationEnabled: true,
		NotificationHour:    b.cfg.DefaultNotificationHour,
		ItemsPerSession:     b.cfg.DefaultItemsPerSession,
	}
}

func (b *Bot) loadUser(ctx context.Context, userID int64) (models.User, error) {
	user, err := b.users.GetByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return b.defaultUser(userID), nil
	}
	if err != nil {
		return models.User{}, err
	}
	return *user, nil
}

// emptySessionText tells the user why a session of the given mode has nothing to show
var emptySessionText = map[models.SessionMode]string{
	models.ModeMixed:  "🎉 Nothing is due right now. Come back later!",
	models.ModeNew:    "🎉 You have seen every item in the catalog.",
	models.ModeReview: "🎉 No reviews are due right now. Try /review new for fresh items.",
	models.ModeWeak:   "💪 No weak items are due. Nice work!",
}

func (b *Bot) handleReview(ctx context.Context, chatID, userID int64, args string) error {
	if s := b.session(userID); s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return b.askCurrent(ctx, userID, s)
	}

	mode, err := models.ParseSessionMode(strings.ToLower(strings.TrimSpace(args)))
	if err != nil {
		return b.sendText(chatID, "Unknown session type. Use /review, /review new, /review review or /review weak.")
	}

	user, err := b.loadUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	now := b.now()
	budget := models.Budget{
		MaxItems:    user.ItemsPerSession,
		MaxDuration: b.cfg.SessionDuration,
		IncludeNew:  true,
		Mode:        mode,
	}
	built, err := b.coordinator.BuildSession(ctx, userID, now, budget)
	if err != nil {
		b.metrics.Errors.WithLabelValues("build_session").Inc()
		return fmt.Errorf("failed to build session: %w", err)
	}
	if built.IsEmpty() {
		b.metrics.Sessions.WithLabelValues("empty").Inc()
		return b.sendText(chatID, emptySessionText[mode])
	}

	byID, err := b.items.GetByIDs(ctx, built.Items)
	if err != nil {
		return fmt.Errorf("failed to load session items: %w", err)
	}
	items := make([]models.Item, 0, len(built.Items))
	for _, id := range built.Items {
		item, ok := byID[id]
		if !ok {
			b.logger.Warn("scheduled item missing from catalog", "user_id", userID, "item_id", id)
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return b.sendText(chatID, emptySessionText[mode])
	}

	s := &reviewSession{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Items:  items,
		Stats:  built.Stats,
	}
	b.setSession(userID, s)
	b.metrics.Sessions.WithLabelValues("started").Inc()
	b.metrics.SessionSize.Observe(float64(len(items)))
	b.logger.Info("review session started", "user_id", userID, "session_id", s.ID, "mode", mode.String(),
		"items", len(items), "due_total", built.Stats.DueTotal, "new", built.Stats.NewSurfaced)

	intro := fmt.Sprintf("📚 Review session: %d items", len(items))
	if mode != models.ModeMixed {
		intro = fmt.Sprintf("📚 Review session (%s): %d items", mode, len(items))
	}
	if built.Stats.NewSurfaced > 0 {
		intro += fmt.Sprintf(" (%d new)", built.Stats.NewSurfaced)
	}
	if built.Stats.Truncated > 0 {
		intro += fmt.Sprintf("\n%d more are waiting for the next session.", built.Stats.Truncated)
	}
	if err := b.sendText(chatID, intro); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return b.askCurrent(ctx, userID, s)
}

// askCurrent shows the question at the session position. s.mu must be held.
func (b *Bot) askCurrent(ctx context.Context, userID int64, s *reviewSession) error {
	item, ok := s.current()
	if !ok {
		return b.finishSession(userID, s)
	}

	now := b.now()
	if _, err := b.scheduler.MarkPresented(ctx, userID, item.ID, now); err != nil {
		b.metrics.Errors.WithLabelValues("mark_presented").Inc()
		return fmt.Errorf("failed to mark item presented: %w", err)
	}

	q, err := b.questions.Build(ctx, item)
	if err != nil {
		return err
	}
	s.question = q
	s.askedAt = now
	s.awaiting = true
	s.revealed = false

	text := fmt.Sprintf("❓ %d/%d\n\n%s", s.pos+1, len(s.Items), item.Prompt)
	msg := tgbotapi.NewMessage(s.ChatID, text)

	var rows [][]MenuButton
	if q.Type == quiz.MultipleChoice {
		for i, option := range q.Options {
			data := answerCallback{SessionID: s.ID, Position: s.pos, Option: i}.String()
			rows = append(rows, []MenuButton{{Text: option, CallbackData: data}})
		}
	} else {
		msg.Text += "\n\n✍️ Type your answer, or show it and rate yourself."
		rows = append(rows, []MenuButton{{
			Text:         "👀 Show answer",
			CallbackData: answerCallback{SessionID: s.ID, Position: s.pos, Option: optionReveal}.String(),
		}})
	}
	rows = append(rows, []MenuButton{{
		Text:         "🤷 I don't know",
		CallbackData: answerCallback{SessionID: s.ID, Position: s.pos, Option: optionDontKnow}.String(),
	}})
	msg.ReplyMarkup = createKeyboard(rows)
	return b.sendMessage(msg)
}

func (b *Bot) handleAnswerCallback(ctx context.Context, chatID, userID int64, answer answerCallback) error {
	s := b.session(userID)
	if s == nil {
		return b.sendText(chatID, "⌛ This question has expired. Use /review to start a new session.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ID != answer.SessionID || s.pos != answer.Position || !s.awaiting {
		// stale button from an earlier question or session
		return nil
	}
	if answer.Option == optionReveal {
		return b.revealAnswer(s)
	}
	return b.recordAnswer(ctx, userID, s, s.question.Check(answer.Option))
}

// selfRatings are the buttons shown under a revealed answer
var selfRatings = []struct {
	label   string
	quality models.Quality
}{
	{"😣 Forgot", models.QualityFail},
	{"😬 Hard", models.QualityHard},
	{"🙂 Good", models.QualityGood},
	{"😎 Easy", models.QualityEasy},
}

// revealAnswer shows the answer and asks the user to rate their recall. s.mu must be held.
func (b *Bot) revealAnswer(s *reviewSession) error {
	if s.revealed {
		return nil
	}
	item, _ := s.current()
	s.revealed = true

	row := make([]MenuButton, 0, len(selfRatings))
	for _, r := range selfRatings {
		data := ratingCallback{SessionID: s.ID, Position: s.pos, Quality: r.quality}.String()
		row = append(row, MenuButton{Text: r.label, CallbackData: data})
	}
	msg := tgbotapi.NewMessage(s.ChatID, fmt.Sprintf("💡 %s\n\nHow well did you remember it?", item.Answer))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{row})
	return b.sendMessage(msg)
}

func (b *Bot) handleRatingCallback(ctx context.Context, chatID, userID int64, rating ratingCallback) error {
	s := b.session(userID)
	if s == nil {
		return b.sendText(chatID, "⌛ This question has expired. Use /review to start a new session.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ID != rating.SessionID || s.pos != rating.Position || !s.awaiting || !s.revealed {
		return nil
	}
	correct := !b.scheduler.Model().IsLapse(rating.Quality)
	return b.recordOutcome(ctx, userID, s, rating.Quality, correct)
}

// handleText treats plain messages as answers to text input questions
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	s := b.session(userID)
	if s == nil {
		return b.sendText(message.Chat.ID, "I don't understand. Use /review to practice or /help for commands.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.awaiting || s.question.Type != quiz.TextInput {
		return b.sendText(message.Chat.ID, "Please pick one of the options above.")
	}
	if s.revealed {
		return b.sendText(message.Chat.ID, "Please rate yourself with the buttons above.")
	}
	return b.recordAnswer(ctx, userID, s, s.question.CheckText(message.Text))
}

// recordAnswer grades a quiz answer by correctness and response time. s.mu must be held.
func (b *Bot) recordAnswer(ctx context.Context, userID int64, s *reviewSession, correct bool) error {
	quality := b.grader.Grade(correct, b.now().Sub(s.askedAt))
	return b.recordOutcome(ctx, userID, s, quality, correct)
}

// recordOutcome persists the outcome for the current item and moves on. s.mu must be held.
func (b *Bot) recordOutcome(ctx context.Context, userID int64, s *reviewSession, quality models.Quality, correct bool) error {
	item, _ := s.current()
	now := b.now()

	updated, err := b.scheduler.RecordOutcome(ctx, userID, item.ID, quality, now, spaced_repetition.WithImplicitCreate())
	switch {
	case errors.Is(err, spaced_repetition.ErrVersionConflict):
		// the same answer was recorded concurrently, e.g. a double tap
		b.logger.Warn("outcome conflict", "user_id", userID, "item_id", item.ID)
		b.metrics.Errors.WithLabelValues("conflict").Inc()
		return nil
	case err != nil:
		b.metrics.Errors.WithLabelValues("record_outcome").Inc()
		_ = b.sendText(s.ChatID, "❌ Could not save your answer. Please try again.")
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	s.awaiting = false
	s.tally.Add(quality, updated)
	b.metrics.Outcomes.WithLabelValues(quality.String()).Inc()
	b.logger.Debug("outcome recorded", "user_id", userID, "item_id", item.ID,
		"quality", quality.String(), "stage", updated.Stage.String(), "interval_days", updated.IntervalDays)

	if err := b.sendText(s.ChatID, feedbackText(item, correct, updated)); err != nil {
		return err
	}

	s.pos++
	return b.askCurrent(ctx, userID, s)
}

func feedbackText(item models.Item, correct bool, updated models.UpdatedFields) string {
	var sb strings.Builder
	if correct {
		sb.WriteString("✅ Correct!")
	} else {
		sb.WriteString("❌ The answer is: ")
		sb.WriteString(item.Answer)
	}
	if item.Details != "" {
		sb.WriteString("\n")
		sb.WriteString(item.Details)
	}
	sb.WriteString("\n\n🗓 Next review ")
	sb.WriteString(formatInterval(updated.IntervalDays))
	return sb.String()
}

func formatInterval(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

// finishSession sends the summary and drops the session. s.mu must be held.
func (b *Bot) finishSession(userID int64, s *reviewSession) error {
	b.endSession(userID, s)
	b.metrics.Sessions.WithLabelValues("completed").Inc()
	b.logger.Info("review session completed", "user_id", userID, "session_id", s.ID,
		"answered", s.tally.Answered, "passed", s.tally.Passed, "lapsed", s.tally.Lapsed)

	text := fmt.Sprintf("🏁 Session complete!\n\nAnswered: %d\nCorrect: %d\nTo relearn: %d\nAccuracy: %.0f%%",
		s.tally.Answered, s.tally.Passed, s.tally.Lapsed, s.tally.Accuracy()*100)
	msg := tgbotapi.NewMessage(s.ChatID, text)
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleProgress(ctx context.Context, chatID, userID int64) error {
	stats, err := b.scheduler.Stats(ctx, userID, b.now())
	if err != nil {
		b.metrics.Errors.WithLabelValues("stats").Inc()
		return fmt.Errorf("failed to get stats: %w", err)
	}
	if stats.TotalItems == 0 {
		return b.sendText(chatID, "📊 You have not studied anything yet. Use /review to begin.")
	}

	text := fmt.Sprintf("📊 Your progress\n\n"+
		"Items studied: %d\n"+
		"🌱 Learning: %d\n"+
		"🔁 Review: %d\n"+
		"🏆 Mastered: %d\n"+
		"⏰ Due now: %d\n\n"+
		"Answers: %d (%.0f%% correct)\n"+
		"Lapses: %d\n"+
		"Average ease: %.2f\n"+
		"🧠 Estimated retention: %.0f%%",
		stats.TotalItems, stats.LearningItems+stats.NewItems, stats.ReviewItems, stats.MasteredItems, stats.DueItems,
		stats.TotalReviews, stats.AccuracyRate*100, stats.TotalLapses, stats.AvgEaseFactor, stats.AvgRetention*100)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handlePlan(ctx context.Context, chatID, userID int64) error {
	plan, err := b.coordinator.SuggestPlan(ctx, userID, b.now(), b.cfg.DailyTarget)
	if err != nil {
		b.metrics.Errors.WithLabelValues("plan").Inc()
		return fmt.Errorf("failed to suggest plan: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🗺 Study plan for today\n\nDue now: %d (weak: %d)\nDaily target: %d\n\nSuggested sessions:\n",
		plan.CurrentDue, plan.WeakDue, plan.DailyTarget)
	for _, p := range plan.Sessions {
		command := "/review"
		if p.Mode != models.ModeMixed {
			command += " " + p.Mode.String()
		}
		fmt.Fprintf(&sb, "• %s - %d items\n", command, p.Items)
	}
	switch plan.Adjustment {
	case models.AdjustIncrease:
		sb.WriteString("\n📈 Your accuracy is high, you can take on more items per day.")
	case models.AdjustDecrease:
		sb.WriteString("\n📉 Your accuracy is low, smaller sessions may help.")
	default:
		sb.WriteString("\n👍 Keep your current pace.")
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleSettings(ctx context.Context, chatID, userID int64, args string) error {
	user, err := b.loadUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	fields := strings.Fields(args)
	if len(fields) == 0 {
		return b.sendText(chatID, fmt.Sprintf("⚙️ Settings\n\nItems per session: %d\nReminder hour (UTC): %d\nReminders: %s\n\n"+
			"Change with /settings <items> [hour], e.g. /settings 15 19",
			user.ItemsPerSession, user.NotificationHour, enabledString(user.NotificationEnabled)))
	}

	items, err := strconv.Atoi(fields[0])
	if err != nil || items < 1 || items > b.cfg.MaxItemsPerSession {
		return b.sendText(chatID, fmt.Sprintf("Please enter a session size from 1 to %d.", b.cfg.MaxItemsPerSession))
	}
	hour := user.NotificationHour
	if len(fields) > 1 {
		hour, err = strconv.Atoi(fields[1])
		if err != nil || hour < 0 || hour > 23 {
			return b.sendText(chatID, "Please enter a reminder hour from 0 to 23.")
		}
	}

	if err := b.users.Register(ctx, &user); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	if err := b.users.UpdateSettings(ctx, userID, items, hour, true); err != nil {
		b.metrics.Errors.WithLabelValues("settings").Inc()
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return b.sendText(chatID, fmt.Sprintf("✅ Saved: %d items per session, reminders at %02d:00 UTC.", items, hour))
}

func (b *Bot) handleStop(ctx context.Context, chatID, userID int64) error {
	if s := b.session(userID); s != nil {
		b.endSession(userID, s)
	}

	user, err := b.loadUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if err := b.users.UpdateSettings(ctx, userID, user.ItemsPerSession, user.NotificationHour, false); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to disable reminders: %w", err)
	}
	return b.sendText(chatID, "🔕 Reminders are off. Your progress is saved; use /review any time.")
}

func enabledString(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

