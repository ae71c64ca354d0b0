package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewbot/database"
	"reviewbot/gitlab"
)

func TestSyncClosesReminderLeavesOpenReviewAlone(t *testing.T) {
	t.Parallel()

	s, store, msg, tracker, clk := setupScheduler(t)
	store.put(database.Reminder{
		ID: 1, Title: "renew cert", Content: "renew cert", Kind: database.Once,
		IssueIID: 41, Status: database.ReminderPending,
		NextRemindAt: ptr(clk.Now().Add(time.Hour)),
	})
	store.putReview(database.Review{
		ID: 2, SponsorName: "acme", Link: "https://example.com/doc",
		IssueIID: 42, Status: database.ReviewPending,
	})
	tracker.states[41] = gitlab.StateClosed
	tracker.states[42] = gitlab.StateOpened
	s.Arm(&database.Reminder{ID: 1, NextRemindAt: ptr(clk.Now().Add(time.Hour))})

	s.SyncPass(context.Background())

	assert.Equal(t, database.ReminderDone, store.reminder(1).Status)
	assert.Equal(t, database.ReviewPending, store.review(2).Status,
		"open issue must not touch the review")

	sent := msg.messages()
	require.Len(t, sent, 1, "one consolidated message per pass")
	assert.Contains(t, sent[0].text, "renew cert")
	assert.NotContains(t, sent[0].text, "acme")

	// the closed reminder's timer is gone
	clk.Add(2 * time.Hour)
	s.Tick()
	assert.Len(t, msg.messages(), 1)
}

func TestSyncApprovesReviewOnClosedIssue(t *testing.T) {
	t.Parallel()

	s, store, msg, tracker, _ := setupScheduler(t)
	store.putReview(database.Review{
		ID: 7, SponsorName: "globex", Link: "https://example.com/x",
		IssueIID: 50, Status: database.ReviewNeedFix,
	})
	tracker.states[50] = gitlab.StateClosed

	s.SyncPass(context.Background())

	assert.Equal(t, database.ReviewApproved, store.review(7).Status)
	sent := msg.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].text, "globex")
}

func TestSyncSkipsLookupWithoutIssueRefs(t *testing.T) {
	t.Parallel()

	s, store, msg, tracker, clk := setupScheduler(t)
	store.put(database.Reminder{
		ID: 1, Content: "local only", Kind: database.Once,
		Status: database.ReminderPending, NextRemindAt: ptr(clk.Now().Add(time.Hour)),
	})

	s.SyncPass(context.Background())

	assert.Zero(t, tracker.calls, "no refs, no tracker round trip")
	assert.Empty(t, msg.messages())
}

func TestSyncLookupFailureChangesNothing(t *testing.T) {
	t.Parallel()

	s, store, msg, tracker, _ := setupScheduler(t)
	store.put(database.Reminder{
		ID: 1, Title: "flaky", Content: "flaky", Kind: database.Once,
		IssueIID: 60, Status: database.ReminderPending,
	})
	tracker.err = errors.New("gitlab unreachable")

	s.SyncPass(context.Background())

	assert.Equal(t, database.ReminderPending, store.reminder(1).Status)
	assert.Empty(t, msg.messages())
}

func TestSyncSecondPassIsQuiet(t *testing.T) {
	t.Parallel()

	s, store, msg, tracker, _ := setupScheduler(t)
	store.put(database.Reminder{
		ID: 1, Title: "once only", Content: "once only", Kind: database.Once,
		IssueIID: 70, Status: database.ReminderPending,
	})
	tracker.states[70] = gitlab.StateClosed

	s.SyncPass(context.Background())
	s.SyncPass(context.Background())

	assert.Len(t, msg.messages(), 1, "already-done rows must not be re-announced")
}
