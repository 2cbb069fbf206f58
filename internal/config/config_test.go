package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/prepbot/internal/spaced_repetition"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, 10, cfg.SessionSize)
	assert.Equal(t, 15*time.Minute, cfg.SessionDuration)
	assert.Equal(t, 20, cfg.DailyTarget)
	assert.Equal(t, spaced_repetition.DefaultConfig(), cfg.SRS)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "DEV")
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/prepbot")
	t.Setenv("SESSION_SIZE", "20")
	t.Setenv("SRS_PASS_THRESHOLD", "4")
	t.Setenv("SRS_EASY_BONUS", "1.5")
	t.Setenv("SRS_LEARNING_INTERVALS", "1, 3,7")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, "postgres://localhost/prepbot", cfg.DatabaseURL)
	assert.Equal(t, 20, cfg.SessionSize)
	assert.Equal(t, 20, cfg.SRS.DefaultSessionSize)
	assert.Equal(t, 4, cfg.SRS.PassThreshold)
	assert.Equal(t, 1.5, cfg.SRS.EasyBonus)
	assert.Equal(t, []int{1, 3, 7}, cfg.SRS.LearningIntervals)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"db type", "DB_TYPE", "oracle"},
		{"log level", "LOG_LEVEL", "loud"},
		{"hour", "NOTIFICATION_END_HOUR", "24"},
		{"session size", "SESSION_SIZE", "0"},
		{"policy", "SRS_EASE_FLOOR", "0"},
		{"intervals", "SRS_LEARNING_INTERVALS", "1,x"},
		{"decreasing intervals", "SRS_LEARNING_INTERVALS", "6,1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(NewViper())
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PREPBOT_TEST_VALUE=from-file\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("PREPBOT_TEST_VALUE") })

	require.NoError(t, LoadEnvFiles(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("PREPBOT_TEST_VALUE"))
}
