// Package ledger is the deduplication ledger: the durable record of every
// (résumé, posting) application attempt and the at-most-once gate in front
// of every submission.
package ledger

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"autoapply/internal/model"
	"autoapply/internal/storage"
)

// ErrConflict means the pair is already sent or succeeded. It is an expected
// outcome under concurrency; callers must not proceed with the submission.
var ErrConflict = errors.New("attempt already in flight or applied")

// Store is the subset of storage the ledger needs.
type Store interface {
	AttemptedPostings(ctx context.Context, resumeID string, postingIDs []string) (map[string]bool, error)
	BeginAttempt(ctx context.Context, resumeID, postingID string) (*model.ApplicationAttempt, error)
	CompleteAttempt(ctx context.Context, c storage.Completion) error
	MarkSkipped(ctx context.Context, resumeID, postingID, reason string) (bool, error)
}

// Handle identifies one opened attempt. Generation pins the handle to the
// reopening it was issued for, so a stale handle cannot complete a newer attempt.
type Handle struct {
	ID         int64
	ResumeID   string
	PostingID  string
	Generation int
}

// Ledger wraps Store with the attempt lifecycle.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New creates a Ledger.
func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// AlreadyAttempted returns the subset of postingIDs that are sent or success
// for the résumé. Failed and skipped pairs are retryable and not included.
func (l *Ledger) AlreadyAttempted(ctx context.Context, resumeID string, postingIDs []string) (map[string]bool, error) {
	got, err := l.store.AttemptedPostings(ctx, resumeID, postingIDs)
	if err != nil {
		return nil, errors.Wrapf(err, "already attempted for resume %s", resumeID)
	}
	return got, nil
}

// BeginAttempt opens the pair in the sent state, or reopens a failed or
// skipped row. It returns ErrConflict when the pair is sent or success.
func (l *Ledger) BeginAttempt(ctx context.Context, resumeID, postingID string) (*Handle, error) {
	a, err := l.store.BeginAttempt(ctx, resumeID, postingID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, errors.Wrap(err, "begin attempt")
	}
	if a.RetryCount > 0 {
		l.logger.Debug("reopened attempt", "resume_id", resumeID, "posting_id", postingID, "retry_count", a.RetryCount)
	}
	return &Handle{ID: a.ID, ResumeID: resumeID, PostingID: postingID, Generation: a.RetryCount}, nil
}

// Succeed moves the attempt to success. Repeating it is a no-op.
func (l *Ledger) Succeed(ctx context.Context, h *Handle, coverLetter string) error {
	c := storage.Completion{AttemptID: h.ID, Generation: h.Generation, Status: model.AttemptSuccess}
	if coverLetter != "" {
		c.CoverLetter = &coverLetter
	}
	return l.complete(ctx, h, c)
}

// Fail moves the attempt to failed with a reason. Repeating it is a no-op.
func (l *Ledger) Fail(ctx context.Context, h *Handle, reason string, coverLetter string) error {
	c := storage.Completion{AttemptID: h.ID, Generation: h.Generation, Status: model.AttemptFailed, Error: &reason}
	if coverLetter != "" {
		c.CoverLetter = &coverLetter
	}
	return l.complete(ctx, h, c)
}

func (l *Ledger) complete(ctx context.Context, h *Handle, c storage.Completion) error {
	if err := l.store.CompleteAttempt(ctx, c); err != nil {
		return errors.Wrapf(err, "complete attempt %s/%s as %s", h.ResumeID, h.PostingID, c.Status)
	}
	return nil
}

// MarkSkipped records a pair the discovery filter excluded. A pair that is
// already sent or success is left untouched.
func (l *Ledger) MarkSkipped(ctx context.Context, resumeID, postingID, reason string) error {
	written, err := l.store.MarkSkipped(ctx, resumeID, postingID, reason)
	if err != nil {
		return errors.Wrap(err, "mark skipped")
	}
	if !written {
		l.logger.Debug("skip ignored, pair already attempted", "resume_id", resumeID, "posting_id", postingID)
	}
	return nil
}
