package database

import "time"

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewNeedFix  ReviewStatus = "need_fix"
)

type TimingKind string

const (
	Once     TimingKind = "once"
	Periodic TimingKind = "periodic"
)

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderDone    ReminderStatus = "done"
)

// Review is a sponsor submission moving through the
// pending -> approved / need_fix -> pending cycle. Approval is terminal.
type Review struct {
	ID                int64
	SponsorName       string
	Link              string
	Status            ReviewStatus
	SubmitterID       int64
	SubmitterUsername string
	Comment           string // reviewer remark attached with need_fix, empty if none
	IssueIID          int64  // external issue reference, 0 if none
	IssueURL          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasIssue reports whether the review is mirrored to an external issue.
func (r *Review) HasIssue() bool { return r.IssueIID > 0 }

// Reminder is a scheduled notification for an assignee. NextRemindAt is nil
// when the reminder is not armed: either a one-off already fired or the
// reminder was closed. Status done is terminal.
type Reminder struct {
	ID               int64
	Title            string // content truncated for issue titles and lists
	Content          string
	AssigneeID       int64 // chat user id, 0 if unknown
	AssigneeUsername string
	IssueIID         int64
	IssueURL         string
	Kind             TimingKind
	IntervalMin      int // minutes between fires, set iff Kind == Periodic
	NextRemindAt     *time.Time
	Status           ReminderStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (r *Reminder) HasIssue() bool { return r.IssueIID > 0 }
