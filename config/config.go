// Package config loads bot configuration from the environment. Every tunable
// has a safe default so a missing or malformed value never prevents startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// Broadcast and sync defaults, in minutes.
	DefaultPendingInterval = 60
	DefaultNeedFixInterval = 120
	DefaultSyncInterval    = 10

	defaultTimeZone  = "Asia/Taipei"
	defaultGitLabURL = "https://gitlab.com"
)

type Config struct {
	BotToken    string
	DatabaseURL string

	// Chats the bot is allowed to serve. Empty means no restriction, but
	// scheduled notifications need at least one destination.
	AllowedChatIDs []int64

	PendingIntervalMin int // reviewer nudge period
	NeedFixIntervalMin int // submitter nudge period
	SyncIntervalMin    int // issue tracker reconciliation period

	QuietStart   string // "HH:MM", empty disables quiet hours
	QuietEnd     string
	DailySummary string // "HH:MM", empty disables the daily summary

	Location *time.Location

	GitLabURL       string
	GitLabToken     string
	GitLabProjectID string
	UserMappingFile string
}

// Load reads the environment. Only BOT_TOKEN and DATABASE_URL are mandatory;
// the caller decides whether their absence is fatal.
func Load(log *zap.SugaredLogger) *Config {
	cfg := &Config{
		BotToken:           os.Getenv("BOT_TOKEN"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		AllowedChatIDs:     parseChatIDs(os.Getenv("ALLOWED_CHAT_IDS")),
		PendingIntervalMin: intervalMinutes(log, "REMINDER_INTERVAL_PENDING", DefaultPendingInterval),
		NeedFixIntervalMin: intervalMinutes(log, "REMINDER_INTERVAL_NEED_FIX", DefaultNeedFixInterval),
		SyncIntervalMin:    intervalMinutes(log, "SYNC_INTERVAL", DefaultSyncInterval),
		QuietStart:         strings.TrimSpace(os.Getenv("QUIET_HOURS_START")),
		QuietEnd:           strings.TrimSpace(os.Getenv("QUIET_HOURS_END")),
		DailySummary:       strings.TrimSpace(os.Getenv("DAILY_SUMMARY_AT")),
		GitLabURL:          strings.TrimRight(envOr("GITLAB_URL", defaultGitLabURL), "/"),
		GitLabToken:        os.Getenv("GITLAB_TOKEN"),
		GitLabProjectID:    os.Getenv("GITLAB_PROJECT_ID"),
		UserMappingFile:    envOr("GITLAB_USER_MAPPING", "telegramID2gitlabID.json"),
	}

	tz := envOr("TIMEZONE", defaultTimeZone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warnw("unknown time zone, falling back to UTC", "tz", tz, "err", err)
		loc = time.UTC
	}
	cfg.Location = loc

	return cfg
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// intervalMinutes parses a positive integer number of minutes, falling back
// to def on anything else.
func intervalMinutes(log *zap.SugaredLogger, key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Warnw("invalid interval, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func parseChatIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
