// Package database is the row store for reviews, reviewers and reminders.
// Every operation is independently atomic; callers rely on the WHERE guards
// here (approved and done are terminal) rather than on transactions.
package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmhodges/clock"
)

var (
	noCtx = context.Background()
	clk   = clock.New()
)

const uniqueViolation = "23505"

// PgxIface is the subset of pgxpool.Pool the store uses. pgxmock implements
// it for tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type Database struct {
	Conn PgxIface
}

// New connects to Postgres. The connection string looks like
// postgresql://localhost:5432/reviewbot?user=bot&password=secret
func New(connStr string) (*Database, error) {
	pool, err := pgxpool.New(noCtx, connStr)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(noCtx); err != nil {
		return nil, err
	}

	return &Database{Conn: pool}, nil
}

// NewWithConn wraps an existing connection, used by tests.
func NewWithConn(conn PgxIface) *Database {
	return &Database{Conn: conn}
}

// InitSchema creates the tables if they don't exist yet.
func (d *Database) InitSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reviews (
			id BIGSERIAL PRIMARY KEY,
			sponsor_name TEXT NOT NULL,
			link TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			submitter_id BIGINT,
			submitter_username TEXT,
			comment TEXT,
			issue_iid BIGINT,
			issue_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS reviewers (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			assignee_id BIGINT,
			assignee_username TEXT,
			issue_iid BIGINT,
			issue_url TEXT,
			timing_kind TEXT NOT NULL,
			interval_minutes INT,
			next_remind_at TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.Conn.Exec(noCtx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ==================== reviews ====================

const reviewColumns = `id, sponsor_name, link, status, submitter_id, submitter_username,
comment, issue_iid, issue_url, created_at, updated_at`

// CreateReview inserts a new pending review and returns its id.
func (d *Database) CreateReview(r *Review) (int64, error) {
	var id int64
	err := d.Conn.QueryRow(noCtx, `INSERT INTO reviews
(sponsor_name, link, status, submitter_id, submitter_username, issue_iid, issue_url)
VALUES($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		r.SponsorName, r.Link, string(ReviewPending), r.SubmitterID, r.SubmitterUsername,
		nullInt64(r.IssueIID), nullStr(r.IssueURL)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ReviewByID returns the review or nil when it doesn't exist.
func (d *Database) ReviewByID(id int64) (*Review, error) {
	row := d.Conn.QueryRow(noCtx, `SELECT `+reviewColumns+` FROM reviews WHERE id=$1`, id)
	return scanReview(row)
}

// ReviewByName returns the most recently created review for the sponsor name,
// or nil when there is none. Older rows for a reused name are ignored.
func (d *Database) ReviewByName(sponsorName string) (*Review, error) {
	row := d.Conn.QueryRow(noCtx, `SELECT `+reviewColumns+` FROM reviews
WHERE sponsor_name=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, sponsorName)
	return scanReview(row)
}

// UpdateReviewStatus moves the review to the given status. An approved review
// never changes again; updating one reports false without mutating anything.
// A non-nil comment replaces the stored one.
func (d *Database) UpdateReviewStatus(id int64, status ReviewStatus, comment *string) (bool, error) {
	var tag pgconn.CommandTag
	var err error

	if comment != nil {
		tag, err = d.Conn.Exec(noCtx, `UPDATE reviews SET status=$1, comment=$2, updated_at=$3
WHERE id=$4 AND status != $5`,
			string(status), *comment, clk.Now(), id, string(ReviewApproved))
	} else {
		tag, err = d.Conn.Exec(noCtx, `UPDATE reviews SET status=$1, updated_at=$2
WHERE id=$3 AND status != $4`,
			string(status), clk.Now(), id, string(ReviewApproved))
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReviewsByStatus lists reviews in the given status, newest first.
func (d *Database) ReviewsByStatus(status ReviewStatus) ([]Review, error) {
	rows, err := d.Conn.Query(noCtx, `SELECT `+reviewColumns+` FROM reviews
WHERE status=$1 ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReviews(rows)
}

// ActiveReviews lists pending and need_fix reviews.
func (d *Database) ActiveReviews() ([]Review, error) {
	rows, err := d.Conn.Query(noCtx, `SELECT `+reviewColumns+` FROM reviews
WHERE status IN ($1, $2) ORDER BY status, created_at DESC`,
		string(ReviewPending), string(ReviewNeedFix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReviews(rows)
}

func scanReview(row pgx.Row) (*Review, error) {
	var r Review
	var submitterID, issueIID pgtype.Int8
	var submitter, comment, issueURL pgtype.Text

	err := row.Scan(&r.ID, &r.SponsorName, &r.Link, &r.Status, &submitterID, &submitter,
		&comment, &issueIID, &issueURL, &r.CreatedAt, &r.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}

	r.SubmitterID = submitterID.Int64
	r.SubmitterUsername = submitter.String
	r.Comment = comment.String
	r.IssueIID = issueIID.Int64
	r.IssueURL = issueURL.String
	return &r, nil
}

func collectReviews(rows pgx.Rows) ([]Review, error) {
	var reviews []Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

// ==================== reviewers ====================

// AddReviewer inserts a reviewer, stripping a leading "@". Returns false when
// the username is already present; the roster is left untouched in that case.
func (d *Database) AddReviewer(username string) (bool, error) {
	username = strings.TrimPrefix(username, "@")

	_, err := d.Conn.Exec(noCtx, `INSERT INTO reviewers(username) VALUES($1)`, username)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RemoveReviewer deletes a reviewer, reporting whether it existed.
func (d *Database) RemoveReviewer(username string) (bool, error) {
	username = strings.TrimPrefix(username, "@")

	tag, err := d.Conn.Exec(noCtx, `DELETE FROM reviewers WHERE username=$1`, username)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Reviewers lists all reviewer usernames.
func (d *Database) Reviewers() ([]string, error) {
	rows, err := d.Conn.Query(noCtx, `SELECT username FROM reviewers ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		usernames = append(usernames, u)
	}
	return usernames, rows.Err()
}

// ==================== reminders ====================

const reminderColumns = `id, title, content, assignee_id, assignee_username, issue_iid,
issue_url, timing_kind, interval_minutes, next_remind_at, status, created_at, updated_at`

// CreateReminder inserts a pending reminder and returns its id.
func (d *Database) CreateReminder(r *Reminder) (int64, error) {
	var id int64
	err := d.Conn.QueryRow(noCtx, `INSERT INTO reminders
(title, content, assignee_id, assignee_username, issue_iid, issue_url,
 timing_kind, interval_minutes, next_remind_at, status)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		r.Title, r.Content, nullInt64(r.AssigneeID), nullStr(r.AssigneeUsername),
		nullInt64(r.IssueIID), nullStr(r.IssueURL), string(r.Kind),
		nullInt(r.IntervalMin), r.NextRemindAt, string(ReminderPending)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ReminderByID returns the reminder or nil when it doesn't exist.
func (d *Database) ReminderByID(id int64) (*Reminder, error) {
	row := d.Conn.QueryRow(noCtx, `SELECT `+reminderColumns+` FROM reminders WHERE id=$1`, id)
	return scanReminder(row)
}

// PendingReminders lists all reminders that are not done yet.
func (d *Database) PendingReminders() ([]Reminder, error) {
	rows, err := d.Conn.Query(noCtx, `SELECT `+reminderColumns+` FROM reminders
WHERE status=$1 ORDER BY created_at`, string(ReminderPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReminders(rows)
}

// PendingRemindersFor lists pending reminders assigned to the username.
func (d *Database) PendingRemindersFor(username string) ([]Reminder, error) {
	rows, err := d.Conn.Query(noCtx, `SELECT `+reminderColumns+` FROM reminders
WHERE status=$1 AND assignee_username=$2 ORDER BY created_at`,
		string(ReminderPending), username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReminders(rows)
}

// ArmedReminders lists pending reminders that have a fire time, i.e. the rows
// the scheduler rebuilds its timers from at startup.
func (d *Database) ArmedReminders() ([]Reminder, error) {
	rows, err := d.Conn.Query(noCtx, `SELECT `+reminderColumns+` FROM reminders
WHERE status=$1 AND next_remind_at IS NOT NULL ORDER BY next_remind_at`,
		string(ReminderPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReminders(rows)
}

// SetNextRemindAt stores the next fire time; nil disarms the reminder.
func (d *Database) SetNextRemindAt(id int64, at *time.Time) error {
	_, err := d.Conn.Exec(noCtx, `UPDATE reminders SET next_remind_at=$1, updated_at=$2
WHERE id=$3`, at, clk.Now(), id)
	return err
}

// MarkReminderDone closes the reminder and clears its fire time. Reports
// false when the reminder was already done (done is terminal) or absent.
func (d *Database) MarkReminderDone(id int64) (bool, error) {
	tag, err := d.Conn.Exec(noCtx, `UPDATE reminders
SET status=$1, next_remind_at=NULL, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(ReminderDone), clk.Now(), id, string(ReminderPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var r Reminder
	var assigneeID, issueIID pgtype.Int8
	var assignee, issueURL pgtype.Text
	var interval pgtype.Int4
	var nextAt pgtype.Timestamptz

	err := row.Scan(&r.ID, &r.Title, &r.Content, &assigneeID, &assignee, &issueIID,
		&issueURL, &r.Kind, &interval, &nextAt, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}

	r.AssigneeID = assigneeID.Int64
	r.AssigneeUsername = assignee.String
	r.IssueIID = issueIID.Int64
	r.IssueURL = issueURL.String
	r.IntervalMin = int(interval.Int32)
	if nextAt.Valid {
		t := nextAt.Time
		r.NextRemindAt = &t
	}
	return &r, nil
}

func collectReminders(rows pgx.Rows) ([]Reminder, error) {
	var reminders []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// nullable column helpers: zero values are stored as NULL

func nullInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
