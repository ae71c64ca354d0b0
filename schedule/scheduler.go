// Package schedule drives all delayed and periodic work: per-reminder fires,
// the reviewer and submitter nudges, the daily summary and the issue tracker
// sync pass. Everything interleaves on one cooperative run loop; the timer
// queue is only a cache of next_remind_at and is rebuilt from the store at
// startup.
package schedule

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"reviewbot/config"
	"reviewbot/database"
	"reviewbot/gitlab"
)

// reminderTick bounds how far past its fire time a reminder can be noticed.
const reminderTick = 20 * time.Second

// Messenger delivers one message to one chat. Implementations must not
// panic on delivery failure; an error is enough.
type Messenger interface {
	SendHTML(chatID int64, text string) error
}

// Store is the slice of the row store the scheduler needs.
type Store interface {
	ArmedReminders() ([]database.Reminder, error)
	PendingReminders() ([]database.Reminder, error)
	ReminderByID(id int64) (*database.Reminder, error)
	SetNextRemindAt(id int64, at *time.Time) error
	MarkReminderDone(id int64) (bool, error)

	ReviewsByStatus(status database.ReviewStatus) ([]database.Review, error)
	ActiveReviews() ([]database.Review, error)
	UpdateReviewStatus(id int64, status database.ReviewStatus, comment *string) (bool, error)
	Reviewers() ([]string, error)
}

// Tracker is the issue tracker surface the sync pass needs.
type Tracker interface {
	Enabled() bool
	IssuesByIIDs(ctx context.Context, iids []int64) ([]gitlab.Issue, error)
}

type Scheduler struct {
	store   Store
	tracker Tracker
	msg     Messenger
	cfg     *config.Config
	clk     clock.Clock
	logger  *zap.SugaredLogger

	mu    sync.Mutex
	queue *timerQueue

	nextSummary time.Time // zero when the daily summary is disabled
}

func NewScheduler(store Store, tracker Tracker, msg Messenger, cfg *config.Config,
	clk clock.Clock, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		store:   store,
		tracker: tracker,
		msg:     msg,
		cfg:     cfg,
		clk:     clk,
		logger:  logger,
		queue:   newTimerQueue(),
	}
}

// SetMessenger wires the delivery channel in. The bot and the scheduler
// reference each other, so one side is attached after construction. Must be
// called before Run.
func (s *Scheduler) SetMessenger(msg Messenger) {
	s.msg = msg
}

// Arm registers (or replaces) the timer for a reminder. Reminders without a
// fire time are ignored.
func (s *Scheduler) Arm(r *database.Reminder) {
	if r.NextRemindAt == nil {
		return
	}

	s.mu.Lock()
	s.queue.Arm(r.ID, *r.NextRemindAt)
	s.mu.Unlock()
}

// Cancel drops the outstanding timer for the reminder id, if any. Best
// effort: a fire already dequeued is not aborted, which is safe because the
// fire path reloads the row and checks its status first.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	s.queue.Cancel(id)
	s.mu.Unlock()
}

// Recover rebuilds timers from the store after a restart. A one-off reminder
// whose fire time already passed stays unarmed — no backlog catch-up — while
// a past-due periodic one is armed as is and fires on the first tick.
func (s *Scheduler) Recover() error {
	reminders, err := s.store.ArmedReminders()
	if err != nil {
		return err
	}

	now := s.clk.Now()
	armed := 0
	for i := range reminders {
		r := &reminders[i]
		if r.Kind == database.Once && r.NextRemindAt.Before(now) {
			s.logger.Infow("skipping stale one-off reminder", "id", r.ID, "at", r.NextRemindAt)
			continue
		}
		s.Arm(r)
		armed++
	}

	s.logger.Infof("recovered %d armed reminders (%d rows)", armed, len(reminders))
	return nil
}

// Tick fires every due reminder. Called by the run loop; exposed so tests
// can drive it with a fake clock.
func (s *Scheduler) Tick() {
	now := s.clk.Now()
	for {
		s.mu.Lock()
		id, ok := s.queue.PopDue(now)
		s.mu.Unlock()
		if !ok {
			return
		}

		s.fire(id, now)
	}
}

// fire delivers one reminder and re-arms or retires it. The row is reloaded
// first: the timer is only a cache, and another actor may have closed the
// reminder since it was armed.
func (s *Scheduler) fire(id int64, now time.Time) {
	r, err := s.store.ReminderByID(id)
	if err != nil {
		s.logger.Errorw("failed reloading reminder before fire", "id", id, "err", err)
		return
	}
	if r == nil || r.Status != database.ReminderPending {
		return
	}

	s.deliver(reminderMessage(r))

	if r.Kind == database.Periodic && r.IntervalMin > 0 {
		next := now.Add(time.Duration(r.IntervalMin) * time.Minute)
		if err := s.store.SetNextRemindAt(id, &next); err != nil {
			s.logger.Errorw("failed storing next fire time", "id", id, "err", err)
			return
		}
		r.NextRemindAt = &next
		s.Arm(r)
		return
	}

	// one-off: disarm but keep it pending until the user closes it
	if err := s.store.SetNextRemindAt(id, nil); err != nil {
		s.logger.Errorw("failed clearing fire time", "id", id, "err", err)
	}
}

// deliver sends the text to every configured chat, isolating failures so one
// dead destination doesn't starve the rest.
func (s *Scheduler) deliver(text string) {
	for _, chatID := range s.cfg.AllowedChatIDs {
		if err := s.msg.SendHTML(chatID, text); err != nil {
			s.logger.Errorw("failed sending notification", "chat", chatID, "err", err)
		}
	}
}

func reminderMessage(r *database.Reminder) string {
	msg := fmt.Sprintf("🔔 Reminder for @%s\n\n📝 %s",
		html.EscapeString(r.AssigneeUsername), html.EscapeString(r.Content))
	if r.HasIssue() {
		msg += fmt.Sprintf("\n🔗 GitLab: <a href=\"%s\">#%d</a>", r.IssueURL, r.IssueIID)
	}
	return msg
}
