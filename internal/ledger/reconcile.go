package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"autoapply/internal/model"
	"autoapply/internal/storage"
)

// ReasonNotOnBoard is recorded on stuck attempts the job board has no record of.
const ReasonNotOnBoard = "reconciled: not found on board"

// History answers whether the job board already holds an application.
type History interface {
	HasApplied(ctx context.Context, userID int64, resumeID, postingID string) (bool, error)
}

// ReconcileStore is the subset of storage the reconciler needs.
type ReconcileStore interface {
	ListStuckAttempts(ctx context.Context, before time.Time, limit int) ([]model.ApplicationAttempt, error)
	GetResume(ctx context.Context, id string) (*model.Resume, error)
	CompleteAttempt(ctx context.Context, c storage.Completion) error
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked    int
	Succeeded  int
	Failed     int
	Unresolved int
}

// Reconciler resolves attempts left in sent by a crash, using the job
// board's own application history as the source of truth.
type Reconciler struct {
	store   ReconcileStore
	history History
	logger  *slog.Logger
	timeout time.Duration
	batch   int
	now     func() time.Time
}

// NewReconciler creates a Reconciler. timeout bounds each history lookup.
func NewReconciler(store ReconcileStore, history History, logger *slog.Logger, timeout time.Duration) *Reconciler {
	return &Reconciler{
		store:   store,
		history: history,
		logger:  logger,
		timeout: timeout,
		batch:   100,
		now:     time.Now,
	}
}

// Sweep checks sent attempts not touched for olderThan. Attempts found on the
// board become success; the rest become failed and thus retryable. Attempts
// whose history cannot be read stay sent until the next sweep.
func (r *Reconciler) Sweep(ctx context.Context, olderThan time.Duration) (SweepResult, error) {
	var res SweepResult
	stuck, err := r.store.ListStuckAttempts(ctx, r.now().Add(-olderThan), r.batch)
	if err != nil {
		return res, errors.Wrap(err, "list stuck attempts")
	}

	for _, a := range stuck {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		log := r.logger.With("resume_id", a.ResumeID, "posting_id", a.PostingID, "attempt_id", a.ID)

		resume, err := r.store.GetResume(ctx, a.ResumeID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				log.Warn("stuck attempt has no resume")
				res.Unresolved++
				continue
			}
			return res, errors.Wrap(err, "get resume")
		}

		found, err := r.lookup(ctx, resume.UserID, a)
		if err != nil {
			log.Warn("application history unavailable", "error", err)
			res.Unresolved++
			continue
		}

		c := storage.Completion{AttemptID: a.ID, Generation: a.RetryCount, Status: model.AttemptSuccess}
		if !found {
			reason := ReasonNotOnBoard
			c.Status = model.AttemptFailed
			c.Error = &reason
		}
		if err := r.store.CompleteAttempt(ctx, c); err != nil {
			if errors.Is(err, storage.ErrInvalidTransition) {
				// A worker finished it in the meantime.
				continue
			}
			return res, errors.Wrap(err, "complete stuck attempt")
		}
		if found {
			res.Succeeded++
		} else {
			res.Failed++
		}
		log.Info("reconciled stuck attempt", "status", c.Status)
	}
	return res, nil
}

func (r *Reconciler) lookup(ctx context.Context, userID int64, a model.ApplicationAttempt) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.history.HasApplied(ctx, userID, a.ResumeID, a.PostingID)
}
