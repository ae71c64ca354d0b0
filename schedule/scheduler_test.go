package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reviewbot/config"
	"reviewbot/database"
	"reviewbot/gitlab"
	"reviewbot/schedule"
)

// fakeStore is an in-memory schedule.Store.
type fakeStore struct {
	mu        sync.Mutex
	reminders map[int64]*database.Reminder
	reviews   map[int64]*database.Review
	reviewers []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reminders: make(map[int64]*database.Reminder),
		reviews:   make(map[int64]*database.Review),
	}
}

func (f *fakeStore) put(r database.Reminder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := r
	f.reminders[r.ID] = &cp
}

func (f *fakeStore) putReview(r database.Review) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := r
	f.reviews[r.ID] = &cp
}

func (f *fakeStore) reminder(id int64) database.Reminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.reminders[id]
}

func (f *fakeStore) review(id int64) database.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.reviews[id]
}

func (f *fakeStore) ArmedReminders() ([]database.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.Reminder
	for _, r := range f.reminders {
		if r.Status == database.ReminderPending && r.NextRemindAt != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) PendingReminders() ([]database.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.Reminder
	for _, r := range f.reminders {
		if r.Status == database.ReminderPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ReminderByID(id int64) (*database.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) SetNextRemindAt(id int64, at *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reminders[id]; ok {
		r.NextRemindAt = at
	}
	return nil
}

func (f *fakeStore) MarkReminderDone(id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || r.Status != database.ReminderPending {
		return false, nil
	}
	r.Status = database.ReminderDone
	r.NextRemindAt = nil
	return true, nil
}

func (f *fakeStore) ReviewsByStatus(status database.ReviewStatus) ([]database.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.Review
	for _, r := range f.reviews {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveReviews() ([]database.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.Review
	for _, r := range f.reviews {
		if r.Status == database.ReviewPending || r.Status == database.ReviewNeedFix {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateReviewStatus(id int64, status database.ReviewStatus, comment *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[id]
	if !ok || r.Status == database.ReviewApproved {
		return false, nil
	}
	r.Status = status
	if comment != nil {
		r.Comment = *comment
	}
	return true, nil
}

func (f *fakeStore) Reviewers() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reviewers, nil
}

// fakeMessenger records deliveries, optionally failing some chats.
type fakeMessenger struct {
	mu    sync.Mutex
	sent  []sentMessage
	fails map[int64]bool
}

type sentMessage struct {
	chatID int64
	text   string
}

func (f *fakeMessenger) SendHTML(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID, text})
	if f.fails[chatID] {
		return errors.New("chat gone")
	}
	return nil
}

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// fakeTracker is an in-memory schedule.Tracker.
type fakeTracker struct {
	mu     sync.Mutex
	states map[int64]string
	err    error
	calls  int
}

func (f *fakeTracker) Enabled() bool { return true }

func (f *fakeTracker) IssuesByIIDs(_ context.Context, iids []int64) ([]gitlab.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []gitlab.Issue
	for _, iid := range iids {
		if state, ok := f.states[iid]; ok {
			out = append(out, gitlab.Issue{IID: iid, State: state})
		}
	}
	return out, nil
}

func setupScheduler(t *testing.T, chats ...int64) (*schedule.Scheduler, *fakeStore, *fakeMessenger, *fakeTracker, clock.FakeClock) {
	t.Helper()

	if len(chats) == 0 {
		chats = []int64{100}
	}
	store := newFakeStore()
	msg := &fakeMessenger{fails: make(map[int64]bool)}
	tracker := &fakeTracker{states: make(map[int64]string)}
	clk := clock.NewFake()
	clk.Set(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))

	cfg := &config.Config{AllowedChatIDs: chats, Location: time.UTC}
	s := schedule.NewScheduler(store, tracker, msg, cfg, clk, zap.NewNop().Sugar())
	return s, store, msg, tracker, clk
}

func ptr(t time.Time) *time.Time { return &t }

func TestOnceReminderFiresAndDisarms(t *testing.T) {
	t.Parallel()

	s, store, msg, _, clk := setupScheduler(t)
	fireAt := clk.Now().Add(10 * time.Minute)
	r := database.Reminder{
		ID: 1, Title: "pay invoice", Content: "pay invoice",
		AssigneeUsername: "alice", Kind: database.Once,
		NextRemindAt: ptr(fireAt), Status: database.ReminderPending,
	}
	store.put(r)
	s.Arm(&r)

	s.Tick()
	assert.Empty(t, msg.messages(), "must not fire early")

	clk.Add(11 * time.Minute)
	s.Tick()

	sent := msg.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].text, "pay invoice")
	assert.Contains(t, sent[0].text, "@alice")

	got := store.reminder(1)
	assert.Nil(t, got.NextRemindAt, "one-off must disarm after firing")
	assert.Equal(t, database.ReminderPending, got.Status, "stays pending until closed by hand")

	// no timer left behind
	clk.Add(time.Hour)
	s.Tick()
	assert.Len(t, msg.messages(), 1)
}

func TestPeriodicReminderRearms(t *testing.T) {
	t.Parallel()

	s, store, msg, _, clk := setupScheduler(t)
	r := database.Reminder{
		ID: 2, Title: "standup", Content: "standup",
		AssigneeUsername: "bob", Kind: database.Periodic, IntervalMin: 60,
		NextRemindAt: ptr(clk.Now().Add(5 * time.Minute)), Status: database.ReminderPending,
	}
	store.put(r)
	s.Arm(&r)

	clk.Add(6 * time.Minute)
	s.Tick()
	require.Len(t, msg.messages(), 1)

	got := store.reminder(2)
	require.NotNil(t, got.NextRemindAt)
	assert.Equal(t, clk.Now().Add(60*time.Minute), *got.NextRemindAt,
		"next fire is fire-time plus interval")

	// exactly one timer: advancing past the next fire yields exactly one more
	clk.Add(61 * time.Minute)
	s.Tick()
	assert.Len(t, msg.messages(), 2)
}

func TestFireSkipsReminderClosedMeanwhile(t *testing.T) {
	t.Parallel()

	s, store, msg, _, clk := setupScheduler(t)
	r := database.Reminder{
		ID: 3, Content: "obsolete", Kind: database.Once,
		NextRemindAt: ptr(clk.Now().Add(time.Minute)), Status: database.ReminderPending,
	}
	store.put(r)
	s.Arm(&r)

	// closed between arming and firing; the fresh reload must notice
	_, err := store.MarkReminderDone(3)
	require.NoError(t, err)

	clk.Add(2 * time.Minute)
	s.Tick()
	assert.Empty(t, msg.messages())
}

func TestDeliveryFailureDoesNotStopOtherChats(t *testing.T) {
	t.Parallel()

	s, store, msg, _, clk := setupScheduler(t, 100, 200, 300)
	msg.fails[100] = true

	r := database.Reminder{
		ID: 4, Content: "ship it", Kind: database.Once,
		NextRemindAt: ptr(clk.Now().Add(time.Minute)), Status: database.ReminderPending,
	}
	store.put(r)
	s.Arm(&r)

	clk.Add(2 * time.Minute)
	s.Tick()

	sent := msg.messages()
	require.Len(t, sent, 3, "every destination is attempted")
	assert.Equal(t, int64(100), sent[0].chatID)
	assert.Equal(t, int64(200), sent[1].chatID)
	assert.Equal(t, int64(300), sent[2].chatID)
}

func TestRecoverySkipsStaleOnceArmsPastPeriodic(t *testing.T) {
	t.Parallel()

	s, store, msg, _, clk := setupScheduler(t)
	past := clk.Now().Add(-2 * time.Hour)

	store.put(database.Reminder{
		ID: 10, Content: "missed one-off", Kind: database.Once,
		NextRemindAt: ptr(past), Status: database.ReminderPending,
	})
	store.put(database.Reminder{
		ID: 11, Content: "overdue periodic", AssigneeUsername: "carol",
		Kind: database.Periodic, IntervalMin: 30,
		NextRemindAt: ptr(past), Status: database.ReminderPending,
	})

	require.NoError(t, s.Recover())
	s.Tick()

	sent := msg.messages()
	require.Len(t, sent, 1, "only the periodic reminder catches up")
	assert.Contains(t, sent[0].text, "overdue periodic")

	// the stale one-off stays pending and disarmed
	got := store.reminder(10)
	assert.Equal(t, database.ReminderPending, got.Status)
	assert.Equal(t, past, *got.NextRemindAt)
}

func TestCancelRemovesTimer(t *testing.T) {
	t.Parallel()

	s, store, msg, _, clk := setupScheduler(t)
	r := database.Reminder{
		ID: 5, Content: "cancelled", Kind: database.Once,
		NextRemindAt: ptr(clk.Now().Add(time.Minute)), Status: database.ReminderPending,
	}
	store.put(r)
	s.Arm(&r)
	s.Cancel(5)

	clk.Add(time.Hour)
	s.Tick()
	assert.Empty(t, msg.messages())
}
