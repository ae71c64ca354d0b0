package tgbot

import (
	"strings"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleReviewerAdd(message *tg.Message) {
	username := strings.TrimPrefix(strings.TrimSpace(message.CommandArguments()), "@")
	if username == "" {
		b.reply(message, "❌ Give me a username: /reviewer_add <username>")
		return
	}

	added, err := b.db.AddReviewer(username)
	if err != nil {
		b.logger.Errorw("failed adding reviewer", "username", username, "err", err)
		b.reply(message, "❌ Failed to add reviewer, try again")
		return
	}

	if added {
		b.reply(message, "✅ Added reviewer @"+username)
	} else {
		b.reply(message, "ℹ️ @"+username+" is already a reviewer")
	}
}

func (b *Bot) handleReviewerRemove(message *tg.Message) {
	username := strings.TrimPrefix(strings.TrimSpace(message.CommandArguments()), "@")
	if username == "" {
		b.reply(message, "❌ Give me a username: /reviewer_remove <username>")
		return
	}

	removed, err := b.db.RemoveReviewer(username)
	if err != nil {
		b.logger.Errorw("failed removing reviewer", "username", username, "err", err)
		b.reply(message, "❌ Failed to remove reviewer, try again")
		return
	}

	if removed {
		b.reply(message, "✅ Removed reviewer @"+username)
	} else {
		b.reply(message, "❌ No reviewer named @"+username)
	}
}

func (b *Bot) handleReviewerList(message *tg.Message) {
	reviewers, err := b.db.Reviewers()
	if err != nil {
		b.logger.Errorw("failed listing reviewers", "err", err)
		return
	}

	if len(reviewers) == 0 {
		b.reply(message, "📋 Reviewers\n\n(nobody yet)\n\nAdd one with /reviewer_add <username>")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 Reviewers\n\n")
	for _, u := range reviewers {
		sb.WriteString("• @")
		sb.WriteString(u)
		sb.WriteString("\n")
	}
	b.reply(message, sb.String())
}
