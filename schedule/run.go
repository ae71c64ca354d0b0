package schedule

import (
	"context"
	"time"
)

// Run is the cooperative run loop: one goroutine multiplexing reminder
// fires, the two quiet-gated nudges, the sync pass and the daily summary.
// Handlers stay short; the only suspending work is the network sends, each
// bounded by its own client timeout. Run returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Recover(); err != nil {
		return err
	}

	s.scheduleSummary()

	fires := time.NewTicker(reminderTick)
	pending := time.NewTicker(time.Duration(s.cfg.PendingIntervalMin) * time.Minute)
	needFix := time.NewTicker(time.Duration(s.cfg.NeedFixIntervalMin) * time.Minute)
	syncs := time.NewTicker(time.Duration(s.cfg.SyncIntervalMin) * time.Minute)
	defer fires.Stop()
	defer pending.Stop()
	defer needFix.Stop()
	defer syncs.Stop()

	s.logger.Infow("scheduler started",
		"pendingNudgeMin", s.cfg.PendingIntervalMin,
		"needFixNudgeMin", s.cfg.NeedFixIntervalMin,
		"syncMin", s.cfg.SyncIntervalMin,
		"chats", s.cfg.AllowedChatIDs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-fires.C:
			s.Tick()
			s.maybeSummary()

		case <-pending.C:
			if s.quietNow() {
				s.logger.Info("skipping reviewer nudge (quiet hours)")
				continue
			}
			s.NotifyPendingReviews()

		case <-needFix.C:
			if s.quietNow() {
				s.logger.Info("skipping submitter nudge (quiet hours)")
				continue
			}
			s.NotifyNeedFix()

		case <-syncs.C:
			s.SyncPass(ctx)
		}
	}
}

func (s *Scheduler) quietNow() bool {
	return InQuietWindow(s.clk.Now().In(s.cfg.Location), s.cfg.QuietStart, s.cfg.QuietEnd)
}

// scheduleSummary computes the first daily-summary fire time. A missing or
// malformed DAILY_SUMMARY_AT leaves the summary off.
func (s *Scheduler) scheduleSummary() {
	hour, minute, ok := parseClock(s.cfg.DailySummary)
	if !ok {
		if s.cfg.DailySummary != "" {
			s.logger.Warnw("malformed daily summary time, summary disabled", "value", s.cfg.DailySummary)
		}
		return
	}

	now := s.clk.Now().In(s.cfg.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.cfg.Location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	s.nextSummary = next
}

func (s *Scheduler) maybeSummary() {
	if s.nextSummary.IsZero() || s.clk.Now().Before(s.nextSummary) {
		return
	}

	s.DailySummary()
	s.nextSummary = s.nextSummary.AddDate(0, 0, 1)
}
