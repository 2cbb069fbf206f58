package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/prepbot/internal/quiz"
	"github.com/example/prepbot/internal/spaced_repetition"
	"github.com/example/prepbot/pkg/models"
)

// Sender is the part of the Telegram API the bot uses. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UserStore persists users and their review preferences
type UserStore interface {
	Register(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateSettings(ctx context.Context, id int64, itemsPerSession, notificationHour int, enabled bool) error
}

// ItemStore reads catalog content
type ItemStore interface {
	quiz.DistractorSource
	GetByIDs(ctx context.Context, ids []string) (map[string]models.Item, error)
}

// Deps are the collaborators of the bot
type Deps struct {
	API         Sender
	Users       UserStore
	Items       ItemStore
	Scheduler   *spaced_repetition.Scheduler
	Coordinator *spaced_repetition.Coordinator
	Questions   *quiz.Builder
	Metrics     *Metrics
	Logger      *slog.Logger
}

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// MainMenuButtons returns the main menu layout
func MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "📚 Review", CallbackData: callbackReview}, {Text: "📊 Progress", CallbackData: callbackProgress}},
		{{Text: "⚙️ Settings", CallbackData: callbackSettings}, {Text: "❓ Help", CallbackData: callbackHelp}},
	}
}

// Bot represents the Telegram bot application
type Bot struct {
	api         Sender
	cfg         Config
	users       UserStore
	items       ItemStore
	scheduler   *spaced_repetition.Scheduler
	coordinator *spaced_repetition.Coordinator
	questions   *quiz.Builder
	grader      quiz.Grader
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[int64]*reviewSession
	wg       sync.WaitGroup
}

// New creates a new bot instance
func New(cfg Config, deps Deps) (*Bot, error) {
	if deps.API == nil || deps.Users == nil || deps.Items == nil || deps.Scheduler == nil {
		return nil, errors.New("bot: API, Users, Items and Scheduler are required")
	}
	if deps.Coordinator == nil {
		deps.Coordinator = spaced_repetition.NewCoordinator(deps.Scheduler)
	}
	if deps.Questions == nil {
		deps.Questions = quiz.NewBuilder(deps.Items, time.Now().UnixNano())
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Bot{
		api:         deps.API,
		cfg:         cfg,
		users:       deps.Users,
		items:       deps.Items,
		scheduler:   deps.Scheduler,
		coordinator: deps.Coordinator,
		questions:   deps.Questions,
		grader:      quiz.DefaultGrader(),
		metrics:     deps.Metrics,
		logger:      deps.Logger.With("component", "bot"),
		now:         time.Now,
		sessions:    make(map[int64]*reviewSession),
	}, nil
}

// Run handles updates until ctx is cancelled or the channel is closed,
// then waits for in-flight handlers
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	b.logger.Info("bot is running")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stopping bot", "reason", ctx.Err())
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()
				if err := b.HandleUpdate(ctx, update); err != nil {
					b.logger.Error("failed to handle update", "update_id", update.UpdateID, "error", err)
				}
			}(update)
		}
	}
}

// HandleUpdate dispatches a single update
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.Message != nil:
		if update.Message.From == nil || update.Message.Chat == nil {
			return nil
		}
		if update.Message.IsCommand() {
			return b.HandleCommand(ctx, update.Message)
		}
		return b.handleText(ctx, update.Message)
	case update.CallbackQuery != nil:
		return b.HandleCallback(ctx, update.CallbackQuery)
	}
	return nil
}

// SendReminders tells a user that count items are waiting for review
func (b *Bot) SendReminders(ctx context.Context, userID int64, count int) error {
	noun := "items"
	if count == 1 {
		noun = "item"
	}

	// user ID and chat ID are the same for private chats
	msg := tgbotapi.NewMessage(userID, fmt.Sprintf("⏰ You have %d %s due for review. Keep your streak going!", count, noun))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "📚 Start review", CallbackData: callbackReview}},
	})
	if err := b.sendMessage(msg); err != nil {
		b.metrics.Errors.WithLabelValues("reminder").Inc()
		return fmt.Errorf("failed to send reminder to user %d: %w", userID, err)
	}

	b.metrics.Reminders.Inc()
	b.logger.Debug("reminder sent", "user_id", userID, "count", count)
	return nil
}

func (b *Bot) sendMessage(msg tgbotapi.Chattable) error {
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}
