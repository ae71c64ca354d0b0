package tgbot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reviewbot/database"
)

const reviewCategory = "review_cmd"

const reviewUsage = `❌ Bad format

Separate the name and the link with a colon:
/review sponsor name : link

Batches work too, one per line:
/review sponsor1 : link1
sponsor2 : link2`

// handleReview creates one review per input line, opening a tracker issue
// for each.
func (b *Bot) handleReview(message *tg.Message) {
	text := strings.TrimSpace(message.CommandArguments())
	if text == "" {
		b.replyTracked(message.Chat.ID, reviewCategory, reviewUsage, nil)
		return
	}

	submitterID := message.From.ID
	submitter := message.From.UserName
	if submitter == "" {
		submitter = strings.TrimSpace(message.From.FirstName)
	}
	if submitter == "" {
		submitter = strconv.FormatInt(submitterID, 10)
	}

	var added, failed []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name, link, ok := parseReviewLine(line)
		if !ok {
			failed = append(failed, "❌ "+html.EscapeString(line))
			continue
		}

		review := &database.Review{
			SponsorName:       name,
			Link:              link,
			SubmitterID:       submitterID,
			SubmitterUsername: submitter,
		}
		b.openReviewIssue(review)

		if _, err := b.db.CreateReview(review); err != nil {
			b.logger.Errorw("failed storing review", "sponsor", name, "err", err)
			failed = append(failed, "❌ "+html.EscapeString(line))
			continue
		}

		item := "✅ " + html.EscapeString(name)
		if review.HasIssue() {
			item += fmt.Sprintf(" (<a href=\"%s\">GitLab #%d</a>)", review.IssueURL, review.IssueIID)
		}
		added = append(added, item)
	}

	if len(added) == 0 {
		b.replyTracked(message.Chat.ID, reviewCategory, reviewUsage, nil)
		return
	}

	var parts []string
	msg := "📝 Review requests added:\n" + strings.Join(added, "\n")
	if reviewers, err := b.db.Reviewers(); err == nil && len(reviewers) > 0 {
		mentions := make([]string, len(reviewers))
		for i, u := range reviewers {
			mentions[i] = "@" + html.EscapeString(u)
		}
		msg += "\n\n🔔 Calling reviewers: " + strings.Join(mentions, " ")
	}
	parts = append(parts, msg)

	if len(failed) > 0 {
		parts = append(parts, "⚠️ Malformed lines (want \"name : link\"):\n"+strings.Join(failed, "\n"))
	}

	if pending, err := b.db.ReviewsByStatus(database.ReviewPending); err == nil {
		parts = append(parts, formatReviewList(pending, "Waiting for review"))
	}

	b.replyTracked(message.Chat.ID, reviewCategory, strings.Join(parts, "\n\n"), nil)
}

// openReviewIssue mirrors a new review into the tracker, filling the issue
// reference in place. Tracker failures only cost the mirror.
func (b *Bot) openReviewIssue(review *database.Review) {
	if !b.gl.Enabled() {
		return
	}
	ctx := context.Background()

	assigneeID := b.gl.UserID(ctx, review.SubmitterUsername)
	tag := "@" + review.SubmitterUsername + " (Telegram)"
	if glUser, ok := b.gl.Username(review.SubmitterUsername); ok {
		tag = "@" + glUser
	}

	issue, err := b.gl.CreateIssue(ctx,
		"[Review] "+review.SponsorName,
		fmt.Sprintf("Submitted by: %s\nLink: %s", tag, review.Link),
		assigneeID,
		[]string{"Status::Review", "Category::Task"},
		nil)
	if err != nil || issue == nil {
		return
	}

	review.IssueIID = issue.IID
	review.IssueURL = issue.WebURL
}

// handleReviewApprove approves by name when given one, otherwise offers the
// pending reviews as a keyboard.
func (b *Bot) handleReviewApprove(message *tg.Message) {
	if name := strings.TrimSpace(message.CommandArguments()); name != "" {
		review, err := b.db.ReviewByName(name)
		if err != nil {
			b.logger.Errorw("failed looking up review", "sponsor", name, "err", err)
			return
		}
		b.reply(message, b.approve(message.Chat.ID, review, name))
		return
	}

	b.reviewMenu(message.Chat.ID, database.ReviewPending, "approve",
		"📋 Pick the review to approve:", "✅ ")
}

// handleReviewNeedFix stashes the optional comment and offers the pending
// reviews as a keyboard.
func (b *Bot) handleReviewNeedFix(message *tg.Message) {
	prompt := "📋 Pick the review to send back:"
	if comment := strings.TrimSpace(message.CommandArguments()); comment != "" {
		b.mu.Lock()
		b.notes[message.From.ID] = comment
		b.mu.Unlock()
		prompt += "\n💬 " + html.EscapeString(comment)
	}

	b.reviewMenu(message.Chat.ID, database.ReviewPending, "needfix", prompt, "🔧 ")
}

// handleReviewAgain offers the need-fix reviews for resubmission.
func (b *Bot) handleReviewAgain(message *tg.Message) {
	b.reviewMenu(message.Chat.ID, database.ReviewNeedFix, "again",
		"🔄 Pick the review to resubmit:", "")
}

func (b *Bot) reviewMenu(chatID int64, status database.ReviewStatus, action, prompt, prefix string) {
	reviews, err := b.db.ReviewsByStatus(status)
	if err != nil {
		b.logger.Errorw("failed listing reviews", "status", status, "err", err)
		return
	}
	if len(reviews) == 0 {
		b.replyTracked(chatID, reviewCategory, "📋 Nothing to pick from right now", nil)
		return
	}

	var rows [][]tg.InlineKeyboardButton
	for i := range reviews {
		r := &reviews[i]
		rows = append(rows, tg.NewInlineKeyboardRow(
			tg.NewInlineKeyboardButtonData(prefix+r.SponsorName, fmt.Sprintf("%s:%d", action, r.ID))))
	}

	markup := tg.NewInlineKeyboardMarkup(rows...)
	b.replyTracked(chatID, reviewCategory, prompt, &markup)
}

// approve applies the terminal transition and reports the outcome as a
// user-facing line. A review already approved is a no-op.
func (b *Bot) approve(chatID int64, review *database.Review, label string) string {
	if review == nil {
		return fmt.Sprintf("❌ No review request found for \"%s\"", label)
	}
	if review.Status == database.ReviewApproved {
		return fmt.Sprintf("ℹ️ \"%s\" is already approved", review.SponsorName)
	}

	ok, err := b.db.UpdateReviewStatus(review.ID, database.ReviewApproved, nil)
	if err != nil || !ok {
		b.logger.Errorw("failed approving review", "id", review.ID, "err", err)
		return fmt.Sprintf("❌ Failed to approve \"%s\"", review.SponsorName)
	}

	if review.HasIssue() {
		if err := b.gl.CloseIssue(context.Background(), review.IssueIID); err != nil {
			b.logger.Errorw("failed closing issue", "iid", review.IssueIID, "err", err)
		}
	}

	if review.SubmitterUsername != "" {
		b.notifyApproved(chatID, review)
	}
	return fmt.Sprintf("✅ \"%s\" approved!", review.SponsorName)
}

func (b *Bot) notifyApproved(chatID int64, review *database.Review) {
	text := fmt.Sprintf("✅ Approved\n\n@%s your submission \"%s\" passed review!",
		html.EscapeString(review.SubmitterUsername), html.EscapeString(review.SponsorName))
	if err := b.SendHTML(chatID, text); err != nil {
		b.logger.Errorw("failed notifying submitter", "chat", chatID, "err", err)
	}
}

// needFix applies the need_fix transition with an optional comment and
// notifies the submitter right away.
func (b *Bot) needFix(chatID int64, review *database.Review, comment string) string {
	if review == nil {
		return "❌ Review request not found"
	}
	if review.Status == database.ReviewApproved {
		return fmt.Sprintf("ℹ️ \"%s\" is already approved and can't be sent back", review.SponsorName)
	}

	var commentArg *string
	if comment != "" {
		commentArg = &comment
	}

	ok, err := b.db.UpdateReviewStatus(review.ID, database.ReviewNeedFix, commentArg)
	if err != nil || !ok {
		b.logger.Errorw("failed marking review need-fix", "id", review.ID, "err", err)
		return fmt.Sprintf("❌ Failed to mark \"%s\"", review.SponsorName)
	}

	if review.SubmitterUsername != "" {
		b.notifyNeedFix(chatID, review, comment)
	}

	result := fmt.Sprintf("🔧 \"%s\" sent back for fixes", review.SponsorName)
	if comment != "" {
		result += "\n💬 " + comment
	}
	return result
}

func (b *Bot) notifyNeedFix(chatID int64, review *database.Review, comment string) {
	text := fmt.Sprintf("🔧 Fixes requested\n\n@%s your submission \"%s\" needs changes\nLink: %s",
		html.EscapeString(review.SubmitterUsername), html.EscapeString(review.SponsorName),
		html.EscapeString(review.Link))
	if review.HasIssue() {
		text += fmt.Sprintf("\nGitLab: <a href=\"%s\">#%d</a>", review.IssueURL, review.IssueIID)
	}
	if comment != "" {
		text += "\n💬 " + html.EscapeString(comment)
	}
	text += "\n\nResubmit with /review_again once fixed"

	if err := b.SendHTML(chatID, text); err != nil {
		b.logger.Errorw("failed notifying submitter", "chat", chatID, "err", err)
	}
}

func (b *Bot) handleReviewList(message *tg.Message) {
	reviews, err := b.db.ActiveReviews()
	if err != nil {
		b.logger.Errorw("failed listing active reviews", "err", err)
		return
	}
	if len(reviews) == 0 {
		b.replyTracked(message.Chat.ID, reviewCategory, "📋 No open review requests", nil)
		return
	}

	var pending, needFix []database.Review
	for _, r := range reviews {
		if r.Status == database.ReviewPending {
			pending = append(pending, r)
		} else {
			needFix = append(needFix, r)
		}
	}

	var parts []string
	if len(pending) > 0 {
		parts = append(parts, formatReviewList(pending, "Waiting for review"))
	}
	if len(needFix) > 0 {
		parts = append(parts, formatReviewList(needFix, "Waiting for fixes"))
	}
	b.replyTracked(message.Chat.ID, reviewCategory, strings.Join(parts, "\n"), nil)
}

func (b *Bot) handleReviewNotify(message *tg.Message) {
	if !b.sched.NotifyPendingReviews() {
		b.replyTracked(message.Chat.ID, reviewCategory,
			"📋 Nothing to notify about: no pending reviews or no reviewers", nil)
	}
}

// callback handlers for the review keyboards

func (b *Bot) approveCallback(query *tg.CallbackQuery, idArg string) {
	review := b.reviewFromCallback(query, idArg)
	if review == nil {
		return
	}

	b.answer(query, fmt.Sprintf("⏳ Approving \"%s\"…", review.SponsorName))
	b.editOrReplace(query, b.approve(query.Message.Chat.ID, review, review.SponsorName))
}

func (b *Bot) needFixCallback(query *tg.CallbackQuery, idArg string) {
	review := b.reviewFromCallback(query, idArg)
	if review == nil {
		return
	}

	b.mu.Lock()
	comment := b.notes[query.From.ID]
	delete(b.notes, query.From.ID)
	b.mu.Unlock()

	b.answer(query, fmt.Sprintf("⏳ Sending back \"%s\"…", review.SponsorName))
	b.editOrReplace(query, b.needFix(query.Message.Chat.ID, review, comment))
}

func (b *Bot) againCallback(query *tg.CallbackQuery, idArg string) {
	review := b.reviewFromCallback(query, idArg)
	if review == nil {
		return
	}

	b.answer(query, fmt.Sprintf("⏳ Resubmitting \"%s\"…", review.SponsorName))

	if review.Status != database.ReviewNeedFix {
		b.editOrReplace(query, fmt.Sprintf("ℹ️ \"%s\" is not waiting for fixes", review.SponsorName))
		return
	}

	ok, err := b.db.UpdateReviewStatus(review.ID, database.ReviewPending, nil)
	if err != nil || !ok {
		b.editOrReplace(query, fmt.Sprintf("❌ Failed to resubmit \"%s\"", review.SponsorName))
		return
	}

	result := fmt.Sprintf("🔄 \"%s\" resubmitted for review", review.SponsorName)
	if review.Link != "" {
		result += "\n📎 " + review.Link
	}
	b.editOrReplace(query, result)
}

func (b *Bot) reviewFromCallback(query *tg.CallbackQuery, idArg string) *database.Review {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		b.answer(query, "❌ Invalid action")
		return nil
	}

	review, err := b.db.ReviewByID(id)
	if err != nil {
		b.logger.Errorw("failed loading review", "id", id, "err", err)
		b.answer(query, "❌ Lookup failed, try again")
		return nil
	}
	if review == nil {
		b.answer(query, "")
		b.editOrReplace(query, fmt.Sprintf("❌ Review %d no longer exists", id))
		return nil
	}
	return review
}
