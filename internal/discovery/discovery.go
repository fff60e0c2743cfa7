// Package discovery finds candidate postings for a résumé and filters them
// down to the ones a run may apply to.
package discovery

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"autoapply/internal/hh"
	"autoapply/internal/model"
)

// ErrSearch wraps gateway search failures. The résumé contributes nothing
// to the run; other résumés are unaffected.
var ErrSearch = errors.New("posting search failed")

// Searcher is the search operation of the job-board gateway.
type Searcher interface {
	SearchPostings(ctx context.Context, userID int64, query, resumeID string, pageSize int) ([]hh.Posting, error)
}

// Ledger is the subset of the dedup ledger discovery consults.
type Ledger interface {
	AlreadyAttempted(ctx context.Context, resumeID string, postingIDs []string) (map[string]bool, error)
	MarkSkipped(ctx context.Context, resumeID, postingID, reason string) error
}

// Result is what discovery found for one résumé.
type Result struct {
	ResumeID string
	// Found is the number of candidates the gateway returned.
	Found int
	// Skipped are test-gated postings, recorded in the ledger as skipped.
	Skipped []string
	// Excluded counts postings dropped by negative keywords.
	Excluded int
	// Attempted counts postings already sent or applied.
	Attempted int
	// Postings are the dispatchable posting IDs in relevance order, at most limit.
	Postings []string
}

// Discoverer runs discovery for résumés.
type Discoverer struct {
	search   Searcher
	ledger   Ledger
	pageSize int
	logger   *slog.Logger
}

// New creates a Discoverer requesting pageSize candidates per search.
func New(search Searcher, l Ledger, pageSize int, logger *slog.Logger) *Discoverer {
	return &Discoverer{search: search, ledger: l, pageSize: pageSize, logger: logger}
}

// Discover searches postings for the résumé and returns at most limit
// postings that are neither test-gated nor already attempted. Gateway
// failures are wrapped with ErrSearch; ledger failures are returned as is.
func (d *Discoverer) Discover(ctx context.Context, userID int64, resume model.Resume, limit int) (Result, error) {
	res := Result{ResumeID: resume.ID}
	log := d.logger.With("user_id", userID, "resume_id", resume.ID)

	query := resume.SearchQuery()
	if query == "" {
		log.Info("resume has no positive keywords, skipping search")
		return res, nil
	}

	candidates, err := d.search.SearchPostings(ctx, userID, query, resume.ID, d.pageSize)
	if err != nil {
		return res, errors.Mark(errors.Wrapf(err, "search for resume %s", resume.ID), ErrSearch)
	}
	res.Found = len(candidates)

	seen := make(map[string]bool, len(candidates))
	var keep []string
	for _, p := range candidates {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		switch classify(p, resume.NegativeKeywords) {
		case SkipTest:
			if err := d.ledger.MarkSkipped(ctx, resume.ID, p.ID, ReasonRequiresTest); err != nil {
				return res, err
			}
			res.Skipped = append(res.Skipped, p.ID)
		case Exclude:
			res.Excluded++
		default:
			keep = append(keep, p.ID)
		}
	}
	if len(keep) == 0 {
		return res, nil
	}

	attempted, err := d.ledger.AlreadyAttempted(ctx, resume.ID, keep)
	if err != nil {
		return res, err
	}
	for _, id := range keep {
		if attempted[id] {
			res.Attempted++
			continue
		}
		if len(res.Postings) < limit {
			res.Postings = append(res.Postings, id)
		}
	}

	log.Debug("discovery done", "found", res.Found, "skipped", len(res.Skipped),
		"excluded", res.Excluded, "attempted", res.Attempted, "dispatchable", len(res.Postings))
	return res, nil
}
