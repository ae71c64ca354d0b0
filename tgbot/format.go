package tgbot

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"reviewbot/database"
)

var statusEmoji = map[database.ReviewStatus]string{
	database.ReviewPending:  "⏳",
	database.ReviewApproved: "✅",
	database.ReviewNeedFix:  "🔧",
}

// formatReviewList renders reviews as a collapsible HTML block.
func formatReviewList(reviews []database.Review, title string) string {
	if len(reviews) == 0 {
		return fmt.Sprintf("📋 %s\n\n(none)", html.EscapeString(title))
	}

	var lines []string
	for i := range reviews {
		r := &reviews[i]
		emoji, ok := statusEmoji[r.Status]
		if !ok {
			emoji = "❓"
		}

		lines = append(lines, fmt.Sprintf("%s %s", emoji, html.EscapeString(r.SponsorName)))
		lines = append(lines, "   Link: "+html.EscapeString(r.Link))
		if r.HasIssue() {
			lines = append(lines, fmt.Sprintf("   GitLab: <a href=\"%s\">#%d</a>", r.IssueURL, r.IssueIID))
		}
		lines = append(lines, "   Submitted by: "+html.EscapeString(r.SubmitterUsername))
		if r.Comment != "" {
			lines = append(lines, "   💬 "+html.EscapeString(r.Comment))
		}
		lines = append(lines, "")
	}

	return fmt.Sprintf("📋 %s\n\n<blockquote expandable>%s</blockquote>",
		html.EscapeString(title), strings.Join(lines, "\n"))
}

// reviewLinePattern splits "name : link" tolerating a missing space around
// the colon while not breaking on the "://" inside URLs.
var reviewLinePattern = regexp.MustCompile(`^(.+?):([^/].*|/[^/].*)$`)

// parseReviewLine parses one "sponsor name : link" input line. The
// full-width colon is accepted too. Returns ok=false on anything malformed.
func parseReviewLine(line string) (name, link string, ok bool) {
	line = strings.ReplaceAll(line, "：", ":")

	var parts []string
	if idx := strings.Index(line, " : "); idx >= 0 {
		parts = []string{line[:idx], line[idx+3:]}
	} else if m := reviewLinePattern.FindStringSubmatch(line); m != nil {
		parts = []string{m[1], m[2]}
	} else {
		return "", "", false
	}

	name = strings.TrimSpace(parts[0])
	link = strings.TrimSpace(parts[1])
	if name == "" || link == "" {
		return "", "", false
	}
	return name, link, true
}

// truncate shortens s to at most n runes for titles.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
