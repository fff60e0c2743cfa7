package scheduler

import (
	"context"
	"sync"
	"time"

	"autoapply/internal/cohort"
	"autoapply/internal/model"
)

// Run fires every cohort trigger on its cadence and, when StuckAfter is
// set, sweeps stuck attempts on the retry lane. It blocks until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range s.Cohorts.Triggers() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runTrigger(ctx, t)
		}()
	}
	if s.Reconciler != nil && s.opts.StuckAfter > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runReconcile(ctx)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) runTrigger(ctx context.Context, t cohort.Trigger) {
	for {
		next := t.Next(s.now())
		s.log.Debug("trigger scheduled", "trigger", t.Name, "next", next)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		sum, err := s.ScheduleCohort(ctx, t.Name)
		if err != nil {
			s.log.Error("cohort run", "trigger", t.Name, "error", err)
			continue
		}
		s.log.Info("cohort run done", "trigger", t.Name, "users", sum.Users,
			"skipped", sum.Skipped, "dispatched", sum.Dispatched, "sent", sum.Sent)
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	ticker := time.NewTicker(s.opts.StuckAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reconcile(ctx)
		}
	}
}

// Reconcile submits one sweep of stuck attempts on the retry lane and
// waits for it.
func (s *Scheduler) Reconcile(ctx context.Context) {
	done := make(chan struct{})
	err := s.Dispatcher.Submit(ctx, model.QueueRetry, func(pctx context.Context) {
		defer close(done)
		res, err := s.Reconciler.Sweep(pctx, s.opts.StuckAfter)
		if err != nil {
			s.log.Error("reconcile sweep", "error", err)
			return
		}
		if res.Checked > 0 {
			s.log.Info("reconcile sweep", "checked", res.Checked, "succeeded", res.Succeeded,
				"failed", res.Failed, "unresolved", res.Unresolved)
		}
	})
	if err != nil {
		s.log.Warn("submit reconcile sweep", "error", err)
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}
