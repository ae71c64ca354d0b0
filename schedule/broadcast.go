package schedule

import (
	"fmt"
	"html"
	"strings"

	"reviewbot/database"
)

// NotifyPendingReviews nudges the reviewer roster about reviews waiting for
// a verdict. Nothing is sent when there are no pending reviews or no
// reviewers. Reports whether a notification went out.
func (s *Scheduler) NotifyPendingReviews() bool {
	pending, err := s.store.ReviewsByStatus(database.ReviewPending)
	if err != nil {
		s.logger.Errorw("failed listing pending reviews", "err", err)
		return false
	}
	if len(pending) == 0 {
		return false
	}

	reviewers, err := s.store.Reviewers()
	if err != nil {
		s.logger.Errorw("failed listing reviewers", "err", err)
		return false
	}
	if len(reviewers) == 0 {
		s.logger.Warn("no reviewers configured, skipping nudge")
		return false
	}

	mentions := make([]string, len(reviewers))
	for i, u := range reviewers {
		mentions[i] = "@" + html.EscapeString(u)
	}

	var lines []string
	for i := range pending {
		lines = append(lines, reviewLine(&pending[i]))
	}

	msg := fmt.Sprintf("📢 Review reminder\n\n%s\n\nWaiting for review:\n"+
		"<blockquote expandable>%s</blockquote>\nUse /review_list for details",
		strings.Join(mentions, " "), strings.Join(lines, "\n"))

	s.deliver(msg)
	return true
}

// NotifyNeedFix nudges submitters whose reviews were sent back, grouped per
// submitter with the reviewer's comment. Reports whether anything was sent.
func (s *Scheduler) NotifyNeedFix() bool {
	needFix, err := s.store.ReviewsByStatus(database.ReviewNeedFix)
	if err != nil {
		s.logger.Errorw("failed listing need-fix reviews", "err", err)
		return false
	}
	if len(needFix) == 0 {
		return false
	}

	bySubmitter := make(map[string][]*database.Review)
	var order []string
	for i := range needFix {
		r := &needFix[i]
		submitter := r.SubmitterUsername
		if submitter == "" {
			submitter = "unknown"
		}
		if _, seen := bySubmitter[submitter]; !seen {
			order = append(order, submitter)
		}
		bySubmitter[submitter] = append(bySubmitter[submitter], r)
	}

	var lines []string
	for _, submitter := range order {
		lines = append(lines, fmt.Sprintf("@%s please revise:", html.EscapeString(submitter)))
		for _, r := range bySubmitter[submitter] {
			lines = append(lines, "  "+reviewLine(r))
			if r.Comment != "" {
				lines = append(lines, "    💬 "+html.EscapeString(r.Comment))
			}
		}
		lines = append(lines, "")
	}

	msg := fmt.Sprintf("📢 Revision reminder\n\n<blockquote expandable>%s</blockquote>\n"+
		"Resubmit with /review_again once fixed",
		strings.Join(lines, "\n"))

	s.deliver(msg)
	return true
}

// DailySummary sends one digest of everything still open: active reviews and
// pending reminders. A clean slate produces no message.
func (s *Scheduler) DailySummary() bool {
	reviews, err := s.store.ActiveReviews()
	if err != nil {
		s.logger.Errorw("failed listing active reviews", "err", err)
		return false
	}
	reminders, err := s.store.PendingReminders()
	if err != nil {
		s.logger.Errorw("failed listing pending reminders", "err", err)
		return false
	}
	if len(reviews) == 0 && len(reminders) == 0 {
		return false
	}

	var parts []string
	if len(reviews) > 0 {
		var lines []string
		for i := range reviews {
			lines = append(lines, reviewLine(&reviews[i]))
		}
		parts = append(parts, fmt.Sprintf("Open reviews:\n<blockquote expandable>%s</blockquote>",
			strings.Join(lines, "\n")))
	}
	if len(reminders) > 0 {
		var lines []string
		for i := range reminders {
			r := &reminders[i]
			line := fmt.Sprintf("• @%s — %s", html.EscapeString(r.AssigneeUsername),
				html.EscapeString(r.Title))
			if r.NextRemindAt != nil {
				line += " (next " + r.NextRemindAt.Format("2006-01-02 15:04") + ")"
			}
			lines = append(lines, line)
		}
		parts = append(parts, fmt.Sprintf("Open reminders:\n<blockquote expandable>%s</blockquote>",
			strings.Join(lines, "\n")))
	}

	s.deliver("🗓 Daily summary\n\n" + strings.Join(parts, "\n\n"))
	return true
}

func reviewLine(r *database.Review) string {
	line := fmt.Sprintf("• %s - %s", html.EscapeString(r.SponsorName), html.EscapeString(r.Link))
	if r.HasIssue() {
		line += fmt.Sprintf(" (<a href=\"%s\">GitLab #%d</a>)", r.IssueURL, r.IssueIID)
	}
	return line
}
