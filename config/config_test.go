package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"reviewbot/config"
)

func load(t *testing.T, env map[string]string) *config.Config {
	t.Helper()

	for key, value := range env {
		t.Setenv(key, value)
	}
	return config.Load(zap.NewNop().Sugar())
}

func TestLoadDefaults(t *testing.T) {
	cfg := load(t, map[string]string{
		"BOT_TOKEN":    "token",
		"DATABASE_URL": "postgresql://localhost/reviewbot",
		"TIMEZONE":     "",
	})

	assert.Equal(t, config.DefaultPendingInterval, cfg.PendingIntervalMin)
	assert.Equal(t, config.DefaultNeedFixInterval, cfg.NeedFixIntervalMin)
	assert.Equal(t, config.DefaultSyncInterval, cfg.SyncIntervalMin)
	assert.Empty(t, cfg.QuietStart)
	assert.Empty(t, cfg.DailySummary)
	assert.Equal(t, "https://gitlab.com", cfg.GitLabURL)
	assert.Equal(t, "Asia/Taipei", cfg.Location.String())
}

func TestLoadMalformedIntervalFallsBack(t *testing.T) {
	cfg := load(t, map[string]string{
		"REMINDER_INTERVAL_PENDING":  "soon",
		"REMINDER_INTERVAL_NEED_FIX": "-5",
		"SYNC_INTERVAL":              "15",
	})

	assert.Equal(t, config.DefaultPendingInterval, cfg.PendingIntervalMin)
	assert.Equal(t, config.DefaultNeedFixInterval, cfg.NeedFixIntervalMin)
	assert.Equal(t, 15, cfg.SyncIntervalMin)
}

func TestLoadChatIDs(t *testing.T) {
	cfg := load(t, map[string]string{
		"ALLOWED_CHAT_IDS": " -100123, 456,, junk , 789 ",
	})

	assert.Equal(t, []int64{-100123, 456, 789}, cfg.AllowedChatIDs)
}

func TestLoadUnknownTimeZoneFallsBackToUTC(t *testing.T) {
	cfg := load(t, map[string]string{
		"TIMEZONE": "Mars/Olympus_Mons",
	})

	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoadTrimsGitLabURL(t *testing.T) {
	cfg := load(t, map[string]string{
		"GITLAB_URL": "https://git.internal.example.com/",
	})

	assert.Equal(t, "https://git.internal.example.com", cfg.GitLabURL)
}
