package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmhodges/clock"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reviewbot/config"
	"reviewbot/database"
	"reviewbot/gitlab"
	"reviewbot/schedule"
	"reviewbot/tgbot"
)

func getLogger() (*zap.SugaredLogger, func() error) {
	logger, _ := zap.NewDevelopment(zap.Fields(zap.String("ns", "reviewbot")))

	log := logger.Sugar()
	return log, logger.Sync
}

func main() {
	logger, syncLogs := getLogger()
	defer syncLogs()

	if err := godotenv.Load(); err != nil {
		logger.Debugw("no .env file, using process environment", "err", err)
	}

	cfg := config.Load(logger)
	if cfg.BotToken == "" {
		logger.Fatal("BOT_TOKEN isn't set")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL isn't set")
	}
	if len(cfg.AllowedChatIDs) == 0 {
		logger.Warn("ALLOWED_CHAT_IDS isn't set; scheduled notifications have no destination")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("failed connecting to database", "err", err)
	}
	defer db.Conn.Close()

	if err := db.InitSchema(); err != nil {
		logger.Fatalw("failed initializing schema", "err", err)
	}

	clk := clock.New()
	gl := gitlab.New(cfg.GitLabURL, cfg.GitLabToken, cfg.GitLabProjectID,
		cfg.UserMappingFile, logger)
	if !gl.Enabled() {
		logger.Warn("GitLab integration disabled (token or project id missing)")
	}

	sched := schedule.NewScheduler(db, gl, nil, cfg, clk, logger)

	bot, err := tgbot.New(cfg.BotToken, db, sched, gl, cfg, clk, logger)
	if err != nil {
		logger.Fatalw("failed initializing Telegram bot", "err", err)
	}
	sched.SetMessenger(bot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return bot.Run(ctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatalw("stopped with error", "err", err)
	}
	logger.Info("bye")
}
