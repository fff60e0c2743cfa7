// Package scheduler fans a user's résumés out into application units,
// enforcing the per-run quota, and drives cohort runs on their cadences.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"autoapply/internal/auth"
	"autoapply/internal/cohort"
	"autoapply/internal/discovery"
	"autoapply/internal/ledger"
	"autoapply/internal/model"
	"autoapply/internal/queue"
	"autoapply/internal/quota"
	"autoapply/internal/reporter"
	"autoapply/internal/storage"
	"autoapply/internal/worker"
)

// ErrIneligible means the user cannot be scheduled: unknown or blocked.
var ErrIneligible = errors.New("user not eligible for scheduling")

// Store is the subset of storage the scheduler reads.
type Store interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetSubscription(ctx context.Context, userID int64) (*model.Subscription, error)
	ListActiveResumes(ctx context.Context, userID int64) ([]model.Resume, error)
	CountUserAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	ListSubscribers(ctx context.Context, plans []model.Plan, now time.Time) ([]int64, error)
}

// Discoverer finds dispatchable postings for a résumé.
type Discoverer interface {
	Discover(ctx context.Context, userID int64, resume model.Resume, limit int) (discovery.Result, error)
}

// Applier runs one application unit.
type Applier interface {
	Apply(ctx context.Context, u worker.Unit) (worker.Result, error)
}

// Dispatcher enqueues tasks on a priority lane.
type Dispatcher interface {
	Submit(ctx context.Context, lane model.Queue, task queue.Task) error
}

// Reporter records a finished run.
type Reporter interface {
	Report(ctx context.Context, run reporter.Run) (*model.RunResult, error)
}

// Cohorts resolves trigger names to users.
type Cohorts interface {
	Resolve(ctx context.Context, name string) ([]int64, error)
	Trigger(name string) (cohort.Trigger, bool)
	Triggers() []cohort.Trigger
}

// Reconciler resolves stuck attempts.
type Reconciler interface {
	Sweep(ctx context.Context, olderThan time.Duration) (ledger.SweepResult, error)
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Store      Store
	Policy     *quota.Policy
	Cohorts    Cohorts
	Discoverer Discoverer
	Applier    Applier
	Dispatcher Dispatcher
	Reporter   Reporter
	Reconciler Reconciler
}

// Options tune concurrency.
type Options struct {
	DiscoveryConcurrency int
	UserConcurrency      int
	StuckAfter           time.Duration
}

// Scheduler runs scheduling passes. Runs for the same user never overlap,
// so each one sees the attempts of the previous run in its quota window.
type Scheduler struct {
	Deps
	opts Options
	log  *slog.Logger
	now  func() time.Time

	mu    sync.Mutex
	locks map[int64]chan struct{}
}

// New creates a Scheduler.
func New(deps Deps, opts Options, log *slog.Logger) *Scheduler {
	if opts.DiscoveryConcurrency < 1 {
		opts.DiscoveryConcurrency = 1
	}
	if opts.UserConcurrency < 1 {
		opts.UserConcurrency = 1
	}
	return &Scheduler{Deps: deps, opts: opts, log: log, now: time.Now, locks: make(map[int64]chan struct{})}
}

// userLock returns the single-slot semaphore serializing runs for a user.
func (s *Scheduler) userLock(userID int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[userID] = l
	}
	return l
}

type discovered struct {
	res discovery.Result
	err error
}

// ScheduleUser runs one pass for one user: it resolves the queue and
// budget, discovers postings for each active résumé and dispatches one unit
// per surviving posting, then waits for the units to finish. Authorization
// failures end the user's run early and are reported in the Run; returned
// errors are fatal (storage) or ErrIneligible.
func (s *Scheduler) ScheduleUser(ctx context.Context, userID int64, runType model.RunType) (reporter.Run, error) {
	run := reporter.Run{ID: uuid.NewString(), UserID: userID, RunType: runType}
	log := s.log.With("user_id", userID, "run_type", runType, "run_id", run.ID)

	u, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return run, errors.Wrapf(ErrIneligible, "user %d not found", userID)
		}
		return run, errors.Wrap(err, "get user")
	}
	if u.Status != model.UserActive {
		return run, errors.Wrapf(ErrIneligible, "user %d is %s", userID, u.Status)
	}

	lock := s.userLock(userID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return run, ctx.Err()
	}
	defer func() { <-lock }()

	sub, err := s.Store.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return run, errors.Wrap(err, "get subscription")
	}
	now := s.now()
	allow := s.Policy.Allow(sub, runType, now)
	run.Queue = allow.Queue

	used := 0
	if allow.Window > 0 {
		if used, err = s.Store.CountUserAttemptsSince(ctx, userID, now.Add(-allow.Window)); err != nil {
			return run, errors.Wrap(err, "count recent attempts")
		}
	}
	remaining := allow.Remaining(used)
	if remaining == 0 {
		run.Note = "quota exhausted"
		log.Info("no quota left", "plan", allow.Plan, "used", used)
		return run, nil
	}

	resumes, err := s.Store.ListActiveResumes(ctx, userID)
	if err != nil {
		return run, errors.Wrap(err, "list resumes")
	}
	if len(resumes) == 0 {
		return run, nil
	}

	budget := quota.NewBudget(remaining)
	discCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	slots := make([]chan discovered, len(resumes))
	for i := range slots {
		slots[i] = make(chan discovered, 1)
	}
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		var g errgroup.Group
		g.SetLimit(s.opts.DiscoveryConcurrency)
		for i, r := range resumes {
			g.Go(func() error {
				if discCtx.Err() != nil {
					slots[i] <- discovered{err: discCtx.Err()}
					return nil
				}
				res, err := s.Discoverer.Discover(discCtx, userID, r, budget.Limit(s.Policy.PageSize()))
				slots[i] <- discovered{res: res, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []worker.Result
		fatal   error
	)
	record := func(res worker.Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if fatal == nil {
				fatal = err
			}
			return
		}
		results = append(results, res)
	}

allocate:
	for i := range resumes {
		if budget.Exhausted() {
			break
		}
		d := <-slots[i]
		rlog := log.With("resume_id", resumes[i].ID)
		switch {
		case d.err == nil:
		case errors.Is(d.err, auth.ErrAuthorizationRequired):
			rlog.Warn("authorization required", "error", d.err)
			run.AuthRequired = true
			break allocate
		case errors.Is(d.err, discovery.ErrSearch):
			rlog.Warn("discovery failed", "error", d.err)
			run.ResumesProcessed++
			continue
		case ctx.Err() != nil:
			record(worker.Result{}, ctx.Err())
			break allocate
		default:
			record(worker.Result{}, errors.Wrapf(d.err, "discover resume %s", resumes[i].ID))
			break allocate
		}

		run.ResumesProcessed++
		run.PostingsFound += d.res.Found
		run.SkippedTests = append(run.SkippedTests, d.res.Skipped...)

		granted := budget.Take(len(d.res.Postings))
		for _, postingID := range d.res.Postings[:granted] {
			unit := worker.Unit{UserID: userID, ResumeID: resumes[i].ID, PostingID: postingID}
			wg.Add(1)
			err := s.Dispatcher.Submit(ctx, run.Queue, func(pctx context.Context) {
				defer wg.Done()
				record(s.Applier.Apply(pctx, unit))
			})
			if err != nil {
				wg.Done()
				record(worker.Result{}, errors.Wrap(err, "dispatch unit"))
				break allocate
			}
			run.Dispatched++
		}
	}
	cancel()
	<-launched
	wg.Wait()

	// Discoveries that finished after allocation stopped may still have
	// marked test-gated postings as skipped.
	for i := range slots {
		select {
		case d := <-slots[i]:
			if d.err == nil {
				run.SkippedTests = append(run.SkippedTests, d.res.Skipped...)
			}
		default:
		}
	}

	if fatal != nil {
		return run, fatal
	}
	for _, r := range results {
		switch r.Outcome {
		case worker.OutcomeSuccess:
			run.Sent++
		case worker.OutcomeFailed:
			run.Failed++
			if r.AuthRequired() {
				run.AuthRequired = true
			}
		case worker.OutcomeConflict:
			run.Conflicts++
		}
	}
	log.Debug("user scheduled", "resumes_processed", run.ResumesProcessed, "dispatched", run.Dispatched,
		"sent", run.Sent, "failed", run.Failed)
	return run, nil
}

// RunUser schedules one user and reports the run.
func (s *Scheduler) RunUser(ctx context.Context, userID int64, runType model.RunType) (reporter.Run, error) {
	run, err := s.ScheduleUser(ctx, userID, runType)
	if err != nil {
		return run, err
	}
	if _, err := s.Reporter.Report(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// Summary aggregates a multi-user run.
type Summary struct {
	Users      int
	Skipped    int
	Dispatched int
	Sent       int
}

// ScheduleUsers runs and reports the given users concurrently. Ineligible
// users are skipped; any other error aborts the whole run.
func (s *Scheduler) ScheduleUsers(ctx context.Context, userIDs []int64, runType model.RunType) (Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UserConcurrency)
	for _, id := range userIDs {
		g.Go(func() error {
			run, err := s.RunUser(gctx, id, runType)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, ErrIneligible) {
					s.log.Info("skipping user", "user_id", id, "error", err)
					sum.Skipped++
					return nil
				}
				return errors.Wrapf(err, "user %d", id)
			}
			sum.Users++
			sum.Dispatched += run.Dispatched
			sum.Sent += run.Sent
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	return sum, nil
}

// ScheduleCohort runs every user the named trigger covers.
func (s *Scheduler) ScheduleCohort(ctx context.Context, trigger string) (Summary, error) {
	t, ok := s.Cohorts.Trigger(trigger)
	if !ok {
		return Summary{}, errors.Newf("unknown trigger %q", trigger)
	}
	ids, err := s.Cohorts.Resolve(ctx, trigger)
	if err != nil {
		return Summary{}, err
	}
	s.log.Info("cohort run", "trigger", trigger, "run_type", t.RunType, "users", len(ids))
	return s.ScheduleUsers(ctx, ids, t.RunType)
}

// ScheduleBulk runs the given users, or every user with an active
// subscription when ids is empty.
func (s *Scheduler) ScheduleBulk(ctx context.Context, ids []int64) (Summary, error) {
	if len(ids) == 0 {
		var err error
		ids, err = s.Store.ListSubscribers(ctx, []model.Plan{model.PlanFree, model.PlanPlus, model.PlanPro}, s.now())
		if err != nil {
			return Summary{}, errors.Wrap(err, "list subscribers")
		}
	}
	return s.ScheduleUsers(ctx, ids, model.RunBulk)
}
