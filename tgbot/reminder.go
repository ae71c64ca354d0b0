package tgbot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reviewbot/database"
	"reviewbot/timeparse"
)

const remindCategory = "remind_cmd"

const remindUsage = `❌ Bad format

Usage: /remind @username content
An explicit time may trail the content:
/remind @username pay the invoice 14:00
/remind @username send the report 10/25 09:30`

// handleRemind starts the reminder flow. A trailing time specification
// creates a one-off reminder immediately; otherwise the type and time
// keyboards take over.
func (b *Bot) handleRemind(message *tg.Message) {
	args := strings.TrimSpace(message.CommandArguments())
	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "@") {
		b.reply(message, remindUsage)
		return
	}

	target := strings.TrimPrefix(parts[0], "@")
	content := strings.TrimSpace(parts[1])
	now := b.clk.Now().In(b.cfg.Location)

	if trimmed, at, ok := timeparse.Extract(content, now); ok {
		reminder, err := b.createReminder(target, trimmed, database.Once, 0, at)
		if err != nil {
			b.reply(message, "❌ Failed to save the reminder, try again")
			return
		}
		b.replyTracked(message.Chat.ID, remindCategory, confirmation(reminder), nil)
		return
	}

	b.mu.Lock()
	b.drafts[message.From.ID] = &remindDraft{target: target, content: content}
	b.mu.Unlock()

	markup := tg.NewInlineKeyboardMarkup(
		tg.NewInlineKeyboardRow(
			tg.NewInlineKeyboardButtonData("One-time", "remind_type:once"),
			tg.NewInlineKeyboardButtonData("Periodic", "remind_type:periodic"),
		),
	)
	b.replyTracked(message.Chat.ID, remindCategory,
		fmt.Sprintf("🔔 Setting a reminder for @%s:\n📝 %s\n\nPick the reminder type:",
			html.EscapeString(target), html.EscapeString(content)),
		&markup)
}

func (b *Bot) remindTypeCallback(query *tg.CallbackQuery, kindArg string) {
	kind := database.TimingKind(kindArg)
	if kind != database.Once && kind != database.Periodic {
		b.answer(query, "❌ Invalid action")
		return
	}

	b.mu.Lock()
	draft, ok := b.drafts[query.From.ID]
	if ok {
		draft.kind = kind
	}
	b.mu.Unlock()

	b.answer(query, "")
	if !ok {
		b.editOrReplace(query, "❌ Reminder details lost, start over with /remind")
		return
	}

	var markup tg.InlineKeyboardMarkup
	var prompt string
	if kind == database.Once {
		markup = tg.NewInlineKeyboardMarkup(
			tg.NewInlineKeyboardRow(
				tg.NewInlineKeyboardButtonData("In 1 hour", "remind_time:60"),
				tg.NewInlineKeyboardButtonData("In 4 hours", "remind_time:240"),
			),
			tg.NewInlineKeyboardRow(
				tg.NewInlineKeyboardButtonData("In 1 day", "remind_time:1440"),
				tg.NewInlineKeyboardButtonData("In 3 days", "remind_time:4320"),
			),
		)
		prompt = "How long until the reminder?"
	} else {
		markup = tg.NewInlineKeyboardMarkup(
			tg.NewInlineKeyboardRow(
				tg.NewInlineKeyboardButtonData("Daily", "remind_time:1440"),
				tg.NewInlineKeyboardButtonData("Every 3 days", "remind_time:4320"),
			),
			tg.NewInlineKeyboardRow(
				tg.NewInlineKeyboardButtonData("Weekly", "remind_time:10080"),
			),
		)
		prompt = "Pick the repeat period:"
	}

	edit := tg.NewEditMessageTextAndMarkup(query.Message.Chat.ID, query.Message.MessageID, prompt, markup)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Errorw("failed editing message", "err", err)
	}
}

func (b *Bot) remindTimeCallback(query *tg.CallbackQuery, minutesArg string) {
	minutes, err := strconv.Atoi(minutesArg)
	if err != nil || minutes <= 0 {
		b.answer(query, "❌ Invalid action")
		return
	}

	b.mu.Lock()
	draft := b.drafts[query.From.ID]
	delete(b.drafts, query.From.ID)
	b.mu.Unlock()

	b.answer(query, "")
	if draft == nil || draft.kind == "" {
		b.editOrReplace(query, "❌ Reminder details lost, start over with /remind")
		return
	}

	interval := 0
	if draft.kind == database.Periodic {
		interval = minutes
	}
	at := timeparse.Relative(b.clk.Now().In(b.cfg.Location), minutes)

	reminder, err := b.createReminder(draft.target, draft.content, draft.kind, interval, at)
	if err != nil {
		b.editOrReplace(query, "❌ Failed to save the reminder, try again")
		return
	}
	b.editOrReplace(query, confirmation(reminder))
}

// createReminder mirrors the reminder into the tracker, persists it and arms
// its timer.
func (b *Bot) createReminder(target, content string, kind database.TimingKind,
	intervalMin int, at time.Time) (*database.Reminder, error) {
	reminder := &database.Reminder{
		Title:            truncate(content, 50),
		Content:          content,
		AssigneeUsername: target,
		Kind:             kind,
		IntervalMin:      intervalMin,
		NextRemindAt:     &at,
		Status:           database.ReminderPending,
	}
	b.openReminderIssue(reminder)

	id, err := b.db.CreateReminder(reminder)
	if err != nil {
		b.logger.Errorw("failed storing reminder", "assignee", target, "err", err)
		return nil, err
	}
	reminder.ID = id

	b.sched.Arm(reminder)
	return reminder, nil
}

func (b *Bot) openReminderIssue(r *database.Reminder) {
	if !b.gl.Enabled() {
		return
	}
	ctx := context.Background()

	assigneeID := b.gl.UserID(ctx, r.AssigneeUsername)
	tag := "@" + r.AssigneeUsername + " (Telegram)"
	if glUser, ok := b.gl.Username(r.AssigneeUsername); ok {
		tag = "@" + glUser
	}

	labels := []string{"Status::Inbox", "Category::Task"}
	var due *time.Time
	if r.Kind == database.Periodic {
		labels = append(labels, "Type::Periodic")
	} else {
		due = r.NextRemindAt
	}

	issue, err := b.gl.CreateIssue(ctx,
		"[Remind] "+r.Title,
		fmt.Sprintf("Assignee: %s\nType: %s\nContent: %s", tag, timingDesc(r), r.Content),
		assigneeID, labels, due)
	if err != nil || issue == nil {
		return
	}

	r.IssueIID = issue.IID
	r.IssueURL = issue.WebURL
}

func timingDesc(r *database.Reminder) string {
	if r.Kind == database.Once {
		return "one-time"
	}

	switch r.IntervalMin {
	case timeparse.DailyMin:
		return "daily"
	case timeparse.WeeklyMin:
		return "weekly"
	default:
		return fmt.Sprintf("every %d days", r.IntervalMin/timeparse.DailyMin)
	}
}

func confirmation(r *database.Reminder) string {
	kindText := "one-time"
	if r.Kind == database.Periodic {
		kindText = "periodic (" + timingDesc(r) + ")"
	}

	msg := fmt.Sprintf("✅ Set a %s reminder for @%s!\n⏰ Next fire: %s",
		kindText, html.EscapeString(r.AssigneeUsername),
		r.NextRemindAt.Format("2006-01-02 15:04"))
	if r.HasIssue() {
		msg += fmt.Sprintf("\n<a href=\"%s\">GitLab issue: #%d</a>", r.IssueURL, r.IssueIID)
	}
	return msg
}

func (b *Bot) handleRemindList(message *tg.Message) {
	username := message.From.UserName
	if username == "" {
		username = strconv.FormatInt(message.From.ID, 10)
	}

	reminders, err := b.db.PendingRemindersFor(username)
	if err != nil {
		b.logger.Errorw("failed listing reminders", "username", username, "err", err)
		return
	}
	if len(reminders) == 0 {
		b.replyTracked(message.Chat.ID, remindCategory, "📋 You have no open reminders", nil)
		return
	}

	lines := []string{"📋 Your open reminders:"}
	for i := range reminders {
		r := &reminders[i]
		marker := "⏳"
		if r.Kind == database.Periodic {
			marker = "🔄"
		}
		lines = append(lines, fmt.Sprintf("%s ID %d — %s", marker, r.ID, html.EscapeString(r.Content)))
		if r.NextRemindAt != nil {
			lines = append(lines, "   next: "+r.NextRemindAt.Format("2006-01-02 15:04"))
		}
		if r.HasIssue() {
			lines = append(lines, fmt.Sprintf("   GitLab: <a href=\"%s\">#%d</a>", r.IssueURL, r.IssueIID))
		}
	}
	lines = append(lines, "", "Close one with /remind_done <id>")

	b.replyTracked(message.Chat.ID, remindCategory, strings.Join(lines, "\n"), nil)
}

func (b *Bot) handleRemindDone(message *tg.Message) {
	arg := strings.TrimSpace(message.CommandArguments())
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		b.reply(message, "❌ Give me a reminder id, e.g. /remind_done 1")
		return
	}

	reminder, err := b.db.ReminderByID(id)
	if err != nil {
		b.logger.Errorw("failed loading reminder", "id", id, "err", err)
		return
	}
	if reminder == nil {
		b.reply(message, fmt.Sprintf("❌ No reminder with id %d", id))
		return
	}
	if reminder.Status == database.ReminderDone {
		b.reply(message, fmt.Sprintf("ℹ️ Reminder %d is already done", id))
		return
	}

	done, err := b.db.MarkReminderDone(id)
	if err != nil || !done {
		b.logger.Errorw("failed closing reminder", "id", id, "err", err)
		b.reply(message, "❌ Failed to update the reminder")
		return
	}

	// closing cancels the timer and the mirrored issue
	b.sched.Cancel(id)
	if reminder.HasIssue() {
		if err := b.gl.CloseIssue(context.Background(), reminder.IssueIID); err != nil {
			b.logger.Errorw("failed closing issue", "iid", reminder.IssueIID, "err", err)
		}
	}

	b.reply(message, fmt.Sprintf("✅ Reminder %d marked as done!", id))
}
