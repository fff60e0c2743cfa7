// Package worker applies to one posting with one résumé, gated by the ledger.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sethvargo/go-retry"

	"autoapply/internal/auth"
	"autoapply/internal/hh"
	"autoapply/internal/ledger"
)

// Outcome is the result of one Apply call.
type Outcome string

// Supported outcomes.
const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeConflict Outcome = "conflict"
)

// Failure reasons recorded on the ledger row.
const (
	ReasonFetch      = "fetch_error"
	ReasonGeneration = "generation_error"
	ReasonSubmit     = "submit_error"
)

// Gateway is the subset of the job-board client the worker calls.
type Gateway interface {
	GetPosting(ctx context.Context, userID int64, id string) (*hh.PostingDetail, error)
	GetResume(ctx context.Context, userID int64, id string) (*hh.ResumeDetail, error)
	SubmitApplication(ctx context.Context, userID int64, resumeID, postingID, message string) error
}

// LetterGenerator writes a cover letter.
type LetterGenerator interface {
	Generate(ctx context.Context, resumeText, postingText string) (string, error)
}

// Ledger is the attempt lifecycle the worker drives.
type Ledger interface {
	BeginAttempt(ctx context.Context, resumeID, postingID string) (*ledger.Handle, error)
	Succeed(ctx context.Context, h *ledger.Handle, coverLetter string) error
	Fail(ctx context.Context, h *ledger.Handle, reason string, coverLetter string) error
}

// Unit is one (résumé, posting) pair to apply to.
type Unit struct {
	UserID    int64
	ResumeID  string
	PostingID string
}

// Result is what happened to a unit.
type Result struct {
	Unit    Unit
	Outcome Outcome
	// Reason is set for failed outcomes.
	Reason string
	// Err is the underlying failure, if any.
	Err error
}

// AuthRequired reports whether the unit failed because the user must re-authorize.
func (r Result) AuthRequired() bool {
	return errors.Is(r.Err, auth.ErrAuthorizationRequired)
}

// Options tune timeouts, retries and caching.
type Options struct {
	GatewayTimeout time.Duration
	LetterTimeout  time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	CacheSize      int
	CacheTTL       time.Duration
}

// Applier runs units.
type Applier struct {
	gateway Gateway
	letters LetterGenerator
	ledger  Ledger
	logger  *slog.Logger
	opts    Options
	resumes *lru.Cache
	now     func() time.Time
}

type cachedText struct {
	text    string
	expires time.Time
}

// New creates an Applier.
func New(gateway Gateway, letters LetterGenerator, l Ledger, logger *slog.Logger, opts Options) (*Applier, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 30 * time.Second
	}
	if opts.LetterTimeout <= 0 {
		opts.LetterTimeout = 60 * time.Second
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create resume cache")
	}
	return &Applier{
		gateway: gateway,
		letters: letters,
		ledger:  l,
		logger:  logger,
		opts:    opts,
		resumes: cache,
		now:     time.Now,
	}, nil
}

// Apply runs one unit. The ledger gate precedes the submission and the
// attempt always leaves the sent state unless the ledger itself fails, in
// which case the error is returned and the row is left for reconciliation.
func (a *Applier) Apply(ctx context.Context, u Unit) (Result, error) {
	log := a.logger.With("user_id", u.UserID, "resume_id", u.ResumeID, "posting_id", u.PostingID)

	h, err := a.ledger.BeginAttempt(ctx, u.ResumeID, u.PostingID)
	if err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			log.Debug("attempt conflict")
			return Result{Unit: u, Outcome: OutcomeConflict}, nil
		}
		return Result{}, errors.Wrap(err, "begin attempt")
	}

	// Completion must land even when the run is cancelled mid-flight.
	done := context.WithoutCancel(ctx)

	fail := func(reason, letter string, cause error) (Result, error) {
		log.Warn("application failed", "reason", reason, "error", cause)
		if err := a.ledger.Fail(done, h, reason+": "+cause.Error(), letter); err != nil {
			return Result{}, errors.Wrap(err, "record failure")
		}
		return Result{Unit: u, Outcome: OutcomeFailed, Reason: reason, Err: cause}, nil
	}

	posting, err := callWithRetry(ctx, a, func(ctx context.Context) (*hh.PostingDetail, error) {
		return a.gateway.GetPosting(ctx, u.UserID, u.PostingID)
	})
	if err != nil {
		return fail(ReasonFetch, "", err)
	}
	resumeText, err := a.resumeText(ctx, u)
	if err != nil {
		return fail(ReasonFetch, "", err)
	}

	letterCtx, cancel := context.WithTimeout(ctx, a.opts.LetterTimeout)
	letter, err := a.letters.Generate(letterCtx, resumeText, posting.Text())
	cancel()
	if err != nil {
		return fail(ReasonGeneration, "", err)
	}

	_, err = callWithRetry(ctx, a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.gateway.SubmitApplication(ctx, u.UserID, u.ResumeID, u.PostingID, letter)
	})
	if err != nil && !errors.Is(err, hh.ErrAlreadyApplied) {
		return fail(ReasonSubmit, letter, err)
	}
	if err != nil {
		log.Info("board reports existing application")
	}

	if err := a.ledger.Succeed(done, h, letter); err != nil {
		return Result{}, errors.Wrap(err, "record success")
	}
	log.Info("application sent")
	return Result{Unit: u, Outcome: OutcomeSuccess}, nil
}

func (a *Applier) resumeText(ctx context.Context, u Unit) (string, error) {
	if v, ok := a.resumes.Get(u.ResumeID); ok {
		if c := v.(cachedText); a.now().Before(c.expires) {
			return c.text, nil
		}
		a.resumes.Remove(u.ResumeID)
	}
	r, err := callWithRetry(ctx, a, func(ctx context.Context) (*hh.ResumeDetail, error) {
		return a.gateway.GetResume(ctx, u.UserID, u.ResumeID)
	})
	if err != nil {
		return "", err
	}
	text := r.Text()
	a.resumes.Add(u.ResumeID, cachedText{text: text, expires: a.now().Add(a.opts.CacheTTL)})
	return text, nil
}

// callWithRetry runs fn with a per-try gateway timeout, retrying transient
// errors with exponential backoff.
func callWithRetry[T any](ctx context.Context, a *Applier, fn func(context.Context) (T, error)) (T, error) {
	b := retry.WithMaxRetries(uint64(a.opts.RetryAttempts-1), retry.NewExponential(a.opts.RetryBaseDelay))
	return retry.DoValue(ctx, b, func(ctx context.Context) (T, error) {
		tryCtx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
		defer cancel()
		v, err := fn(tryCtx)
		if err != nil && (errors.Is(err, hh.ErrTransient) || errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
			return v, retry.RetryableError(err)
		}
		return v, err
	})
}
