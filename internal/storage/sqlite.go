package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"autoapply/internal/model"
	"autoapply/migrations"
)

// Fixed width so that timestamps compare correctly as strings inside SQL.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// shared across goroutines.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// SetClock overrides the time source used for timestamps (tests).
func (s *SQLite) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) stamp() string {
	return formatTime(s.now())
}

// CreateUser inserts a new user. The ID is supplied by the caller.
func (s *SQLite) CreateUser(ctx context.Context, u *model.User) error {
	if u.Status == "" {
		u.Status = model.UserActive
	}
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, status, notifications, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, string(u.Status), boolToInt(u.Notifications), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %d: %w", u.ID, ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = parseTime(now)
	return nil
}

// GetUser returns a single user by ID.
func (s *SQLite) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	var status, created string
	var notif int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, status, notifications, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &status, &notif, &created)
	if err != nil {
		return nil, notFound(err, "scan user")
	}
	u.Status = model.UserStatus(status)
	u.Notifications = notif == 1
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// SetNotifications toggles the user's notification preference.
func (s *SQLite) SetNotifications(ctx context.Context, userID int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET notifications = ? WHERE id = ?`, boolToInt(enabled), userID,
	)
	if err != nil {
		return fmt.Errorf("update notifications: %w", err)
	}
	return expectRow(res, "update notifications")
}

// UpsertSubscription creates or replaces the user's single subscription.
func (s *SQLite) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	if sub.StartedAt.IsZero() {
		sub.StartedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, started_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   plan = excluded.plan, status = excluded.status,
		   started_at = excluded.started_at, expires_at = excluded.expires_at`,
		sub.UserID, string(sub.Plan), string(sub.Status), formatTime(sub.StartedAt), formatTimePtr(sub.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns the user's subscription or ErrNotFound.
func (s *SQLite) GetSubscription(ctx context.Context, userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	var plan, status, started string
	var expires sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, plan, status, started_at, expires_at FROM subscriptions WHERE user_id = ?`, userID,
	).Scan(&sub.UserID, &plan, &status, &started, &expires)
	if err != nil {
		return nil, notFound(err, "scan subscription")
	}
	sub.Plan = model.Plan(plan)
	sub.Status = model.SubscriptionStatus(status)
	sub.StartedAt = parseTime(started)
	sub.ExpiresAt = parseNullTime(expires)
	return &sub, nil
}

// ListSubscribers returns the IDs of active users whose subscription is
// currently active on one of the given plans, ordered by user ID.
func (s *SQLite) ListSubscribers(ctx context.Context, plans []model.Plan, now time.Time) ([]int64, error) {
	if len(plans) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(plans)+2)
	args = append(args, string(model.UserActive), string(model.SubscriptionActive))
	for _, p := range plans {
		args = append(args, string(p))
	}
	args = append(args, formatTime(now))

	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id FROM users u
		 JOIN subscriptions s ON s.user_id = u.id
		 WHERE u.status = ? AND s.status = ?
		   AND s.plan IN (`+placeholders(len(plans))+`)
		   AND (s.expires_at IS NULL OR s.expires_at > ?)
		 ORDER BY u.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateResume inserts a résumé and populates CreatedAt.
func (s *SQLite) CreateResume(ctx context.Context, r *model.Resume) error {
	if r.Status == "" {
		r.Status = model.ResumeInactive
	}
	pos, err := json.Marshal(nonNil(r.PositiveKeywords))
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	neg, err := json.Marshal(nonNil(r.NegativeKeywords))
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resumes (id, user_id, positive_keywords, negative_keywords, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, string(pos), string(neg), string(r.Status), formatTime(created),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert resume %s: %w", r.ID, ErrConflict)
		}
		return fmt.Errorf("insert resume: %w", err)
	}
	r.CreatedAt = parseTime(formatTime(created))
	return nil
}

// GetResume returns a single résumé by its job-board ID.
func (s *SQLite) GetResume(ctx context.Context, id string) (*model.Resume, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, positive_keywords, negative_keywords, status, created_at
		 FROM resumes WHERE id = ?`, id,
	)
	r, err := scanResume(row)
	if err != nil {
		return nil, notFound(err, "scan resume")
	}
	return r, nil
}

// ListActiveResumes returns the user's active résumés, oldest first.
func (s *SQLite) ListActiveResumes(ctx context.Context, userID int64) ([]model.Resume, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, positive_keywords, negative_keywords, status, created_at
		 FROM resumes WHERE user_id = ? AND status = ?
		 ORDER BY created_at, id`,
		userID, string(model.ResumeActive),
	)
	if err != nil {
		return nil, fmt.Errorf("query resumes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Resume
	for rows.Next() {
		r, err := scanResume(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// AssignResume moves an existing résumé to r.UserID and replaces its
// positive keywords and status. Negative keywords are kept.
func (s *SQLite) AssignResume(ctx context.Context, r *model.Resume) error {
	pos, err := json.Marshal(nonNil(r.PositiveKeywords))
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE resumes SET user_id = ?, positive_keywords = ?, status = ? WHERE id = ?`,
		r.UserID, string(pos), string(r.Status), r.ID,
	)
	if err != nil {
		return fmt.Errorf("assign resume: %w", err)
	}
	return expectRow(res, "assign resume")
}

// SetResumeStatus activates or deactivates a résumé.
func (s *SQLite) SetResumeStatus(ctx context.Context, id string, status model.ResumeStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE resumes SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update resume status: %w", err)
	}
	return expectRow(res, "update resume status")
}

// AttemptedPostings returns the subset of postingIDs whose attempt for the
// résumé is sent or success.
func (s *SQLite) AttemptedPostings(ctx context.Context, resumeID string, postingIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(postingIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(postingIDs)+3)
	args = append(args, resumeID, string(model.AttemptSent), string(model.AttemptSuccess))
	for _, id := range postingIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT posting_id FROM application_attempts
		 WHERE resume_id = ? AND status IN (?, ?)
		   AND posting_id IN (`+placeholders(len(postingIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempted postings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan posting id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// BeginAttempt atomically inserts a sent row for the pair, or reopens a failed
// or skipped row to sent and bumps its retry count. A pair already in sent or
// success yields ErrConflict.
func (s *SQLite) BeginAttempt(ctx context.Context, resumeID, postingID string) (*model.ApplicationAttempt, error) {
	now := s.stamp()
	var a model.ApplicationAttempt
	var created string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO application_attempts (resume_id, posting_id, status, retry_count, created_at, updated_at, opened_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?)
		 ON CONFLICT (resume_id, posting_id) DO UPDATE SET
		   status = excluded.status,
		   retry_count = application_attempts.retry_count + 1,
		   cover_letter = NULL,
		   error = NULL,
		   updated_at = excluded.updated_at,
		   opened_at = excluded.opened_at
		 WHERE application_attempts.status IN (?, ?)
		 RETURNING id, retry_count, created_at`,
		resumeID, postingID, string(model.AttemptSent), now, now, now,
		string(model.AttemptFailed), string(model.AttemptSkipped),
	).Scan(&a.ID, &a.RetryCount, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return nil, fmt.Errorf("begin attempt %s/%s: %w", resumeID, postingID, ErrConflict)
		}
		return nil, fmt.Errorf("begin attempt: %w", err)
	}
	a.ResumeID = resumeID
	a.PostingID = postingID
	a.Status = model.AttemptSent
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(now)
	return &a, nil
}

// CompleteAttempt moves a sent attempt to a terminal state. Repeating the same
// completion is a no-op; any other transition yields ErrInvalidTransition.
func (s *SQLite) CompleteAttempt(ctx context.Context, c Completion) error {
	switch c.Status {
	case model.AttemptSuccess, model.AttemptFailed:
	default:
		return fmt.Errorf("complete attempt as %q: %w", c.Status, ErrInvalidTransition)
	}

	now := s.stamp()
	var applied *string
	if c.Status == model.AttemptSuccess {
		applied = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE application_attempts
		 SET status = ?, cover_letter = COALESCE(?, cover_letter), error = ?, updated_at = ?,
		     applied_at = COALESCE(?, applied_at)
		 WHERE id = ? AND retry_count = ? AND status = ?`,
		string(c.Status), c.CoverLetter, c.Error, now, applied,
		c.AttemptID, c.Generation, string(model.AttemptSent),
	)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var status string
	var gen int
	err = s.db.QueryRowContext(ctx,
		`SELECT status, retry_count FROM application_attempts WHERE id = ?`, c.AttemptID,
	).Scan(&status, &gen)
	if err != nil {
		return notFound(err, "scan attempt")
	}
	if gen == c.Generation && model.AttemptStatus(status) == c.Status {
		return nil
	}
	return fmt.Errorf("attempt %d is %s (generation %d): %w", c.AttemptID, status, gen, ErrInvalidTransition)
}

// MarkSkipped records the pair as skipped unless it is already sent or
// success. It reports whether the row was written.
func (s *SQLite) MarkSkipped(ctx context.Context, resumeID, postingID, reason string) (bool, error) {
	now := s.stamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO application_attempts (resume_id, posting_id, status, error, retry_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (resume_id, posting_id) DO UPDATE SET
		   status = excluded.status, error = excluded.error, updated_at = excluded.updated_at
		 WHERE application_attempts.status IN (?, ?)`,
		resumeID, postingID, string(model.AttemptSkipped), reason, now, now,
		string(model.AttemptFailed), string(model.AttemptSkipped),
	)
	if err != nil {
		return false, fmt.Errorf("mark skipped: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetAttempt returns the ledger row for a pair.
func (s *SQLite) GetAttempt(ctx context.Context, resumeID, postingID string) (*model.ApplicationAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM application_attempts WHERE resume_id = ? AND posting_id = ?`,
		resumeID, postingID,
	)
	a, err := scanAttempt(row)
	if err != nil {
		return nil, notFound(err, "scan attempt")
	}
	return a, nil
}

// ListStuckAttempts returns sent attempts last touched before the cutoff, oldest first.
func (s *SQLite) ListStuckAttempts(ctx context.Context, before time.Time, limit int) ([]model.ApplicationAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM application_attempts
		 WHERE status = ? AND updated_at < ?
		 ORDER BY updated_at, id LIMIT ?`,
		string(model.AttemptSent), formatTime(before), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stuck attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ApplicationAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CountUserAttemptsSince counts sent or success attempts opened for the user's
// résumés at or after since. An attempt is opened when BeginAttempt moves it
// to sent; later completion does not move it into a newer window.
func (s *SQLite) CountUserAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM application_attempts a
		 JOIN resumes r ON r.id = a.resume_id
		 WHERE r.user_id = ? AND a.status IN (?, ?) AND COALESCE(a.opened_at, a.created_at) >= ?`,
		userID, string(model.AttemptSent), string(model.AttemptSuccess), formatTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

// AttemptStats returns attempt counts per status across the user's résumés.
func (s *SQLite) AttemptStats(ctx context.Context, userID int64) (map[model.AttemptStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.status, COUNT(*) FROM application_attempts a
		 JOIN resumes r ON r.id = a.resume_id
		 WHERE r.user_id = ? GROUP BY a.status`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempt stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[model.AttemptStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan attempt stats: %w", err)
		}
		stats[model.AttemptStatus(status)] = n
	}
	return stats, rows.Err()
}

// CreateRunResult inserts a run result and populates its ID and CreatedAt.
func (s *SQLite) CreateRunResult(ctx context.Context, r *model.RunResult) error {
	meta, err := json.Marshal(nonNilMap(r.Meta))
	if err != nil {
		return fmt.Errorf("encode run meta: %w", err)
	}
	now := s.stamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_results (user_id, run_type, resumes_enqueued, meta, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.UserID, string(r.RunType), r.ResumesEnqueued, string(meta), now,
	)
	if err != nil {
		return fmt.Errorf("insert run result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = parseTime(now)
	return nil
}

// LatestRunResult returns the most recent run result for the user.
func (s *SQLite) LatestRunResult(ctx context.Context, userID int64) (*model.RunResult, error) {
	var r model.RunResult
	var runType, meta, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, run_type, resumes_enqueued, meta, created_at FROM run_results
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID,
	).Scan(&r.ID, &r.UserID, &runType, &r.ResumesEnqueued, &meta, &created)
	if err != nil {
		return nil, notFound(err, "scan run result")
	}
	r.RunType = model.RunType(runType)
	r.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(meta), &r.Meta); err != nil {
		return nil, fmt.Errorf("decode run meta: %w", err)
	}
	return &r, nil
}

// GetToken returns the stored OAuth token for the user.
func (s *SQLite) GetToken(ctx context.Context, userID int64) (*model.Token, error) {
	var t model.Token
	var expiry sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, access_token, refresh_token, token_type, expiry FROM oauth_tokens WHERE user_id = ?`, userID,
	).Scan(&t.UserID, &t.AccessToken, &t.RefreshToken, &t.TokenType, &expiry)
	if err != nil {
		return nil, notFound(err, "scan token")
	}
	if e := parseNullTime(expiry); e != nil {
		t.Expiry = *e
	}
	return &t, nil
}

// SaveToken creates or replaces the user's OAuth token.
func (s *SQLite) SaveToken(ctx context.Context, t *model.Token) error {
	var expiry *time.Time
	if !t.Expiry.IsZero() {
		expiry = &t.Expiry
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (user_id, access_token, refresh_token, token_type, expiry)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = CASE WHEN excluded.refresh_token = '' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
		   token_type = excluded.token_type,
		   expiry = excluded.expiry`,
		t.UserID, t.AccessToken, t.RefreshToken, t.TokenType, formatTimePtr(expiry),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

const attemptColumns = `id, resume_id, posting_id, status, cover_letter, error, retry_count, created_at, updated_at, applied_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanAttempt(row scannable) (*model.ApplicationAttempt, error) {
	var a model.ApplicationAttempt
	var status, created, updated string
	var letter, errMsg, applied sql.NullString
	err := row.Scan(&a.ID, &a.ResumeID, &a.PostingID, &status, &letter, &errMsg, &a.RetryCount, &created, &updated, &applied)
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	a.Status = model.AttemptStatus(status)
	if letter.Valid {
		a.CoverLetter = &letter.String
	}
	if errMsg.Valid {
		a.Error = &errMsg.String
	}
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	a.AppliedAt = parseNullTime(applied)
	return &a, nil
}

func scanResume(row scannable) (*model.Resume, error) {
	var r model.Resume
	var pos, neg, status, created string
	if err := row.Scan(&r.ID, &r.UserID, &pos, &neg, &status, &created); err != nil {
		return nil, fmt.Errorf("scan resume: %w", err)
	}
	if err := json.Unmarshal([]byte(pos), &r.PositiveKeywords); err != nil {
		return nil, fmt.Errorf("decode positive keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(neg), &r.NegativeKeywords); err != nil {
		return nil, fmt.Errorf("decode negative keywords: %w", err)
	}
	r.Status = model.ResumeStatus(status)
	r.CreatedAt = parseTime(created)
	return &r, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
