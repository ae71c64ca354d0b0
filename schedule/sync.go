package schedule

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"reviewbot/database"
	"reviewbot/gitlab"
)

const syncCallTimeout = 30 * time.Second

// SyncPass reconciles local state with the issue tracker: every locally
// tracked open issue reference is looked up in one bulk call, and references
// the tracker reports closed are applied back — reminders become done,
// reviews become approved. One consolidated message reports the transitions
// of this pass; a failed lookup leaves everything untouched until the next
// interval.
func (s *Scheduler) SyncPass(ctx context.Context) {
	if !s.tracker.Enabled() {
		return
	}

	reminders, err := s.store.PendingReminders()
	if err != nil {
		s.logger.Errorw("sync: failed listing pending reminders", "err", err)
		return
	}
	reviews, err := s.store.ActiveReviews()
	if err != nil {
		s.logger.Errorw("sync: failed listing active reviews", "err", err)
		return
	}

	remByIID := make(map[int64]*database.Reminder)
	revByIID := make(map[int64]*database.Review)
	var iids []int64
	for i := range reminders {
		if r := &reminders[i]; r.HasIssue() {
			remByIID[r.IssueIID] = r
			iids = append(iids, r.IssueIID)
		}
	}
	for i := range reviews {
		if r := &reviews[i]; r.HasIssue() {
			if _, dup := remByIID[r.IssueIID]; !dup {
				iids = append(iids, r.IssueIID)
			}
			revByIID[r.IssueIID] = r
		}
	}
	if len(iids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, syncCallTimeout)
	defer cancel()

	issues, err := s.tracker.IssuesByIIDs(ctx, iids)
	if err != nil {
		s.logger.Warnw("sync: tracker lookup failed, retrying next interval", "err", err)
		return
	}

	var transitions []string
	for _, issue := range issues {
		if issue.State != gitlab.StateClosed {
			continue
		}

		if r, ok := remByIID[issue.IID]; ok {
			done, err := s.store.MarkReminderDone(r.ID)
			if err != nil {
				s.logger.Errorw("sync: failed closing reminder", "id", r.ID, "err", err)
			} else if done {
				s.Cancel(r.ID)
				transitions = append(transitions,
					fmt.Sprintf("✅ reminder \"%s\" done (issue #%d closed)",
						html.EscapeString(r.Title), issue.IID))
			}
		}

		if r, ok := revByIID[issue.IID]; ok {
			approved, err := s.store.UpdateReviewStatus(r.ID, database.ReviewApproved, nil)
			if err != nil {
				s.logger.Errorw("sync: failed approving review", "id", r.ID, "err", err)
			} else if approved {
				transitions = append(transitions,
					fmt.Sprintf("✅ review \"%s\" approved (issue #%d closed)",
						html.EscapeString(r.SponsorName), issue.IID))
			}
		}
	}

	if len(transitions) == 0 {
		return
	}

	s.deliver("🔄 Synced from GitLab:\n\n" + strings.Join(transitions, "\n"))
}
