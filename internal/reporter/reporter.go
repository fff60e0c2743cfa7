// Package reporter persists run results and notifies users about them.
package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"autoapply/internal/model"
	"autoapply/internal/storage"
)

// Run is the outcome of one scheduling pass for one user.
type Run struct {
	ID      string
	UserID  int64
	RunType model.RunType
	Queue   model.Queue

	ResumesProcessed int
	PostingsFound    int
	// Dispatched counts application units handed to workers.
	Dispatched   int
	SkippedTests []string

	Sent      int
	Failed    int
	Conflicts int

	AuthRequired bool
	// Note explains an empty run, e.g. an exhausted quota.
	Note string
}

// Meta returns the metadata stored with the run result.
func (r Run) Meta() map[string]any {
	skipped := r.SkippedTests
	if skipped == nil {
		skipped = []string{}
	}
	m := map[string]any{
		"run_id":            r.ID,
		"queue":             string(r.Queue),
		"resumes_processed": r.ResumesProcessed,
		"postings_found":    r.PostingsFound,
		"skipped_tests":     skipped,
		"sent":              r.Sent,
		"failed":            r.Failed,
		"conflicts":         r.Conflicts,
	}
	if r.AuthRequired {
		m["error"] = "authorization_required"
	}
	if r.Note != "" {
		m["note"] = r.Note
	}
	return m
}

// Store is the subset of storage the reporter needs.
type Store interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	CreateRunResult(ctx context.Context, r *model.RunResult) error
}

// Notifier delivers a short text to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// AuthLinker builds the re-authorization link shown to users.
type AuthLinker interface {
	AuthCodeURL(userID int64) string
}

// Reporter persists run results, then notifies.
type Reporter struct {
	store    Store
	notifier Notifier
	links    AuthLinker
	logger   *slog.Logger
}

// New creates a Reporter. links may be nil.
func New(store Store, notifier Notifier, links AuthLinker, logger *slog.Logger) *Reporter {
	return &Reporter{store: store, notifier: notifier, links: links, logger: logger}
}

// Report persists the run and sends a best-effort summary. Only persistence
// errors are returned.
func (r *Reporter) Report(ctx context.Context, run Run) (*model.RunResult, error) {
	res := &model.RunResult{
		UserID:          run.UserID,
		RunType:         run.RunType,
		ResumesEnqueued: run.Dispatched,
		Meta:            run.Meta(),
	}
	if err := r.store.CreateRunResult(ctx, res); err != nil {
		return nil, errors.Wrap(err, "persist run result")
	}
	r.logger.Info("run finished",
		"user_id", run.UserID, "run_type", run.RunType, "queue", run.Queue,
		"dispatched", run.Dispatched, "sent", run.Sent, "failed", run.Failed,
		"conflicts", run.Conflicts, "skipped_tests", len(run.SkippedTests))

	r.notify(ctx, run)
	return res, nil
}

func (r *Reporter) notify(ctx context.Context, run Run) {
	if run.Sent == 0 && len(run.SkippedTests) == 0 && !run.AuthRequired {
		return
	}
	u, err := r.store.GetUser(ctx, run.UserID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("load user for notification", "user_id", run.UserID, "error", err)
		}
		return
	}
	if !u.Notifications {
		return
	}

	var link string
	if run.AuthRequired && r.links != nil {
		link = r.links.AuthCodeURL(run.UserID)
	}
	if err := r.notifier.Notify(ctx, run.UserID, Format(run, link)); err != nil {
		r.logger.Warn("notify user", "user_id", run.UserID, "error", err)
	}
}

// Format renders the user-facing summary. Failures are not itemized.
func Format(run Run, authURL string) string {
	var b strings.Builder
	if run.AuthRequired {
		b.WriteString("⚠️ Access to hh.ru has expired, applications are paused.")
		if authURL != "" {
			fmt.Fprintf(&b, "\nSign in again: %s", authURL)
		}
		if run.Sent == 0 && len(run.SkippedTests) == 0 {
			return b.String()
		}
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "✅ Applications sent: %d", run.Sent)
	if n := len(run.SkippedTests); n > 0 {
		fmt.Fprintf(&b, "\n📝 Skipped, employer test required: %d", n)
		for _, id := range run.SkippedTests {
			fmt.Fprintf(&b, "\nhttps://hh.ru/vacancy/%s", id)
		}
	}
	return b.String()
}
