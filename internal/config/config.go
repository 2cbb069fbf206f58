package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/prepbot/internal/spaced_repetition"
)

// Keys read from the environment (and bound to flags where the CLI offers one)
const (
	KeyTelegramToken       = "telegram_bot_token"
	KeyDBType              = "db_type"
	KeyDatabaseURL         = "database_url"
	KeyAppEnv              = "app_env"
	KeyLogLevel            = "log_level"
	KeyMetricsAddr         = "metrics_addr"
	KeyNotificationStart   = "notification_start_hour"
	KeyNotificationEnd     = "notification_end_hour"
	KeyDefaultReminderHour = "default_reminder_hour"
	KeyReminderCron        = "reminder_cron"
	KeySessionSize         = "session_size"
	KeySessionSecondsItem  = "session_seconds_per_item"
	KeySessionMinutes      = "session_minutes"
	KeyDailyTarget         = "daily_target"

	keyEaseFloor             = "srs_ease_floor"
	keyInitialEase           = "srs_initial_ease"
	keyPassThreshold         = "srs_pass_threshold"
	keyLapsePenalty          = "srs_lapse_penalty"
	keyEaseDeltaHard         = "srs_ease_delta_hard"
	keyEaseDeltaGood         = "srs_ease_delta_good"
	keyEaseDeltaEasy         = "srs_ease_delta_easy"
	keyEasyBonus             = "srs_easy_bonus"
	keyLapseIntervalDays     = "srs_lapse_interval_days"
	keyLearningIntervals     = "srs_learning_intervals"
	keyGraduationPasses      = "srs_graduation_passes"
	keyMasteryIntervalDays   = "srs_mastery_interval_days"
	keyMasteryMinRepetitions = "srs_mastery_min_repetitions"
	keyMaxIntervalDays       = "srs_max_interval_days"
)

var validate = validator.New()

// Config is the application configuration
type Config struct {
	AppEnv        string `validate:"required"`
	LogLevel      string `validate:"oneof=debug info warn warning error"`
	TelegramToken string
	DBType        string `validate:"oneof=sqlite sqlite3 postgres postgresql"`
	DatabaseURL   string
	MetricsAddr   string

	NotificationStartHour int `validate:"gte=0,lte=23"`
	NotificationEndHour   int `validate:"gte=0,lte=23"`
	DefaultReminderHour   int `validate:"gte=0,lte=23"`
	ReminderCron          string
	SessionSize           int           `validate:"gte=1,lte=100"`
	SessionDuration       time.Duration `validate:"gte=0"`
	DailyTarget           int           `validate:"gte=1,lte=1000"`

	// Scheduling policy, validated by its own Validate
	SRS spaced_repetition.Config `validate:"-"`
}

// IsDev reports whether the app runs in development mode
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.AppEnv, "dev")
}

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance reading the environment, with every default set
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	srs := spaced_repetition.DefaultConfig()
	defaults := map[string]interface{}{
		KeyTelegramToken:       "",
		KeyDBType:              "sqlite",
		KeyDatabaseURL:         "",
		KeyAppEnv:              "prod",
		KeyLogLevel:            "info",
		KeyMetricsAddr:         ":9090",
		KeyNotificationStart:   8,
		KeyNotificationEnd:     22,
		KeyDefaultReminderHour: 18,
		KeyReminderCron:        "",
		KeySessionSize:         srs.DefaultSessionSize,
		KeySessionSecondsItem:  int(srs.AverageItemDuration / time.Second),
		KeySessionMinutes:      15,
		KeyDailyTarget:         20,

		keyEaseFloor:             srs.EaseFloor,
		keyInitialEase:           srs.InitialEase,
		keyPassThreshold:         srs.PassThreshold,
		keyLapsePenalty:          srs.LapsePenalty,
		keyEaseDeltaHard:         srs.EaseDeltaHard,
		keyEaseDeltaGood:         srs.EaseDeltaGood,
		keyEaseDeltaEasy:         srs.EaseDeltaEasy,
		keyEasyBonus:             srs.EasyBonus,
		keyLapseIntervalDays:     srs.LapseIntervalDays,
		keyLearningIntervals:     srs.LearningIntervals,
		keyGraduationPasses:      srs.GraduationPasses,
		keyMasteryIntervalDays:   srs.MasteryIntervalDays,
		keyMasteryMinRepetitions: srs.MasteryMinRepetitions,
		keyMaxIntervalDays:       srs.MaxIntervalDays,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Load builds and validates the configuration from v
func Load(v *viper.Viper) (*Config, error) {
	intervals, err := intList(v, keyLearningIntervals)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:                strings.ToLower(v.GetString(KeyAppEnv)),
		LogLevel:              strings.ToLower(v.GetString(KeyLogLevel)),
		TelegramToken:         v.GetString(KeyTelegramToken),
		DBType:                strings.ToLower(v.GetString(KeyDBType)),
		DatabaseURL:           v.GetString(KeyDatabaseURL),
		MetricsAddr:           v.GetString(KeyMetricsAddr),
		NotificationStartHour: v.GetInt(KeyNotificationStart),
		NotificationEndHour:   v.GetInt(KeyNotificationEnd),
		DefaultReminderHour:   v.GetInt(KeyDefaultReminderHour),
		ReminderCron:          v.GetString(KeyReminderCron),
		SessionSize:           v.GetInt(KeySessionSize),
		SessionDuration:       time.Duration(v.GetInt(KeySessionMinutes)) * time.Minute,
		DailyTarget:           v.GetInt(KeyDailyTarget),
		SRS: spaced_repetition.Config{
			EaseFloor:             v.GetFloat64(keyEaseFloor),
			InitialEase:           v.GetFloat64(keyInitialEase),
			PassThreshold:         v.GetInt(keyPassThreshold),
			LapsePenalty:          v.GetFloat64(keyLapsePenalty),
			EaseDeltaHard:         v.GetFloat64(keyEaseDeltaHard),
			EaseDeltaGood:         v.GetFloat64(keyEaseDeltaGood),
			EaseDeltaEasy:         v.GetFloat64(keyEaseDeltaEasy),
			EasyBonus:             v.GetFloat64(keyEasyBonus),
			LapseIntervalDays:     v.GetInt(keyLapseIntervalDays),
			LearningIntervals:     intervals,
			GraduationPasses:      v.GetInt(keyGraduationPasses),
			MasteryIntervalDays:   v.GetInt(keyMasteryIntervalDays),
			MasteryMinRepetitions: v.GetInt(keyMasteryMinRepetitions),
			MaxIntervalDays:       v.GetInt(keyMaxIntervalDays),
			DefaultSessionSize:    v.GetInt(KeySessionSize),
			AverageItemDuration:   time.Duration(v.GetInt(KeySessionSecondsItem)) * time.Second,
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.SRS.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// intList reads a list of ints given either as a slice or as "1,6" / "1 6"
func intList(v *viper.Viper, key string) ([]int, error) {
	raw, ok := v.Get(key).(string)
	if !ok {
		return v.GetIntSlice(key), nil
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]int, 0, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, err)
		}
		out = append(out, n)
	}
	return out, nil
}
