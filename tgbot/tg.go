// Package tgbot handles Telegram updates: command dispatch, inline keyboard
// callbacks and message formatting. Business state lives in the store; this
// package is glue between chat input and the scheduler/store/tracker.
package tgbot

import (
	"context"
	"strings"
	"sync"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"reviewbot/config"
	"reviewbot/database"
	"reviewbot/gitlab"
	"reviewbot/schedule"
)

type Bot struct {
	api    *tg.BotAPI
	db     *database.Database
	sched  *schedule.Scheduler
	gl     *gitlab.Client
	cfg    *config.Config
	clk    clock.Clock
	logger *zap.SugaredLogger

	track *messageTracker

	mu     sync.Mutex
	drafts map[int64]*remindDraft // user id -> remind flow in progress
	notes  map[int64]string       // user id -> pending need-fix comment
}

// remindDraft carries the /remind flow between the type and time keyboards.
type remindDraft struct {
	target  string
	content string
	kind    database.TimingKind
}

func New(token string, db *database.Database, sched *schedule.Scheduler, gl *gitlab.Client,
	cfg *config.Config, clk clock.Clock, logger *zap.SugaredLogger) (*Bot, error) {
	api, err := tg.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false

	logger.Infof("authorized on account %q", api.Self.UserName)

	return &Bot{
		api:    api,
		db:     db,
		sched:  sched,
		gl:     gl,
		cfg:    cfg,
		clk:    clk,
		logger: logger,
		track:  newMessageTracker(),
		drafts: make(map[int64]*remindDraft),
		notes:  make(map[int64]string),
	}, nil
}

// SendHTML implements schedule.Messenger.
func (b *Bot) SendHTML(chatID int64, text string) error {
	msg := tg.NewMessage(chatID, text)
	msg.ParseMode = tg.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

// Run consumes the update channel until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tg.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return nil
			}

			switch {
			case update.Message != nil && update.Message.IsCommand():
				if !b.chatAllowed(update.Message.Chat.ID) {
					continue
				}
				go b.handleCommand(update.Message)

			case update.CallbackQuery != nil:
				go b.handleCallback(update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) chatAllowed(chatID int64) bool {
	if len(b.cfg.AllowedChatIDs) == 0 {
		return true
	}
	for _, id := range b.cfg.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func (b *Bot) handleCommand(message *tg.Message) {
	switch message.Command() {
	case "start", "help":
		b.reply(message, helpText)

	case "review":
		b.handleReview(message)
	case "review_approve":
		b.handleReviewApprove(message)
	case "review_need_fix":
		b.handleReviewNeedFix(message)
	case "review_again":
		b.handleReviewAgain(message)
	case "review_list":
		b.handleReviewList(message)
	case "review_notify":
		b.handleReviewNotify(message)

	case "reviewer_add":
		b.handleReviewerAdd(message)
	case "reviewer_remove":
		b.handleReviewerRemove(message)
	case "reviewer_list":
		b.handleReviewerList(message)

	case "remind":
		b.handleRemind(message)
	case "remind_list":
		b.handleRemindList(message)
	case "remind_done":
		b.handleRemindDone(message)

	default:
		b.reply(message, "Unknown command. Use /help to list what I understand.")
	}
}

func (b *Bot) handleCallback(query *tg.CallbackQuery) {
	data := query.Data
	switch {
	case strings.HasPrefix(data, "approve:"):
		b.approveCallback(query, strings.TrimPrefix(data, "approve:"))
	case strings.HasPrefix(data, "needfix:"):
		b.needFixCallback(query, strings.TrimPrefix(data, "needfix:"))
	case strings.HasPrefix(data, "again:"):
		b.againCallback(query, strings.TrimPrefix(data, "again:"))
	case strings.HasPrefix(data, "remind_type:"):
		b.remindTypeCallback(query, strings.TrimPrefix(data, "remind_type:"))
	case strings.HasPrefix(data, "remind_time:"):
		b.remindTimeCallback(query, strings.TrimPrefix(data, "remind_time:"))
	default:
		b.answer(query, "❌ Unknown action")
	}
}

// reply sends plain text in answer to a message.
func (b *Bot) reply(message *tg.Message, text string) {
	msg := tg.NewMessage(message.Chat.ID, text)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Errorw("failed sending reply", "chat", message.Chat.ID, "err", err)
	}
}

// replyTracked replaces the previous bot message of the same category in
// this chat: the stale one is deleted before the fresh one goes out, so menus
// and lists don't pile up.
func (b *Bot) replyTracked(chatID int64, category, text string, markup *tg.InlineKeyboardMarkup) {
	if prev, ok := b.track.Last(chatID, category); ok {
		if _, err := b.api.Request(tg.NewDeleteMessage(chatID, prev)); err != nil {
			b.logger.Debugw("failed deleting stale message", "chat", chatID, "err", err)
		}
	}

	msg := tg.NewMessage(chatID, text)
	msg.ParseMode = tg.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Errorw("failed sending message", "chat", chatID, "err", err)
		return
	}
	b.track.Remember(chatID, category, sent.MessageID)
}

// answer acknowledges a callback query so the client stops its spinner.
func (b *Bot) answer(query *tg.CallbackQuery, text string) {
	if _, err := b.api.Request(tg.NewCallback(query.ID, text)); err != nil {
		b.logger.Debugw("failed answering callback", "err", err)
	}
}

// editOrReplace rewrites the menu message a callback came from.
func (b *Bot) editOrReplace(query *tg.CallbackQuery, text string) {
	edit := tg.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	edit.ParseMode = tg.ModeHTML
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Errorw("failed editing message", "err", err)
	}
}

const helpText = `👋 Hi! I track sponsor reviews and reminders.

📝 Reviews:
/review <name> : <link> - submit a review request (one per line for batches)
/review_approve [name] - approve a pending review
/review_need_fix [comment] - send a review back for fixes
/review_again - resubmit a fixed review
/review_list - list open reviews
/review_notify - nudge the reviewers now

👥 Reviewers:
/reviewer_add <username> - add a reviewer
/reviewer_remove <username> - remove a reviewer
/reviewer_list - list reviewers

⏰ Reminders (mirrored to GitLab issues):
/remind @user <content> [HH:MM | MM/DD HH:MM | YYYY-MM-DD HH:MM] - set a reminder
/remind_list - list your open reminders
/remind_done <id> - close a reminder (closes its GitLab issue too)`
