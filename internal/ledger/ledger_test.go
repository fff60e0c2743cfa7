package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"autoapply/internal/model"
	"autoapply/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBeginAttemptAtMostOnce(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t), discardLogger())

	const workers = 8
	handles := make(chan *Handle, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := l.BeginAttempt(ctx, "R1", "P2")
			if err != nil {
				if !errors.Is(err, ErrConflict) {
					t.Errorf("begin: %v", err)
				}
				return
			}
			handles <- h
		}()
	}
	wg.Wait()
	close(handles)

	var got []*Handle
	for h := range handles {
		got = append(got, h)
	}
	if len(got) != 1 {
		t.Fatalf("got %d handles, want exactly 1", len(got))
	}
}

func TestIdempotentCompletion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := New(s, discardLogger())

	h, err := l.BeginAttempt(ctx, "R1", "P1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := range 2 {
		if err := l.Succeed(ctx, h, "letter"); err != nil {
			t.Fatalf("succeed #%d: %v", i+1, err)
		}
	}
	a, err := s.GetAttempt(ctx, "R1", "P1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != model.AttemptSuccess || a.Error != nil {
		t.Errorf("got status %s error %v, want success with no error", a.Status, a.Error)
	}
	if err := l.Fail(ctx, h, "late", ""); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("fail after success: got %v, want ErrInvalidTransition", err)
	}
}

func TestRetryEligibility(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t), discardLogger())

	h, _ := l.BeginAttempt(ctx, "R1", "P1")
	if err := l.Fail(ctx, h, "submit_error", ""); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := l.MarkSkipped(ctx, "R1", "P2", "requires test"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	ok, _ := l.BeginAttempt(ctx, "R1", "P3")
	_ = l.Succeed(ctx, ok, "")

	got, err := l.AlreadyAttempted(ctx, "R1", []string{"P1", "P2", "P3", "P4"})
	if err != nil {
		t.Fatalf("already attempted: %v", err)
	}
	if diff := cmp.Diff(map[string]bool{"P3": true}, got); diff != "" {
		t.Errorf("AlreadyAttempted mismatch (-want +got):\n%s", diff)
	}

	again, err := l.BeginAttempt(ctx, "R1", "P1")
	if err != nil {
		t.Fatalf("retry failed pair: %v", err)
	}
	if again.ID != h.ID || again.Generation != 1 {
		t.Errorf("retry handle = %+v, want same row with generation 1", again)
	}
	// The stale handle from the first attempt must not close the retry.
	if err := l.Succeed(ctx, h, ""); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("stale succeed: got %v, want ErrInvalidTransition", err)
	}
}

type fakeHistory struct {
	applied map[string]bool
	err     error
	calls   int
}

func (f *fakeHistory) HasApplied(_ context.Context, _ int64, resumeID, postingID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.applied[resumeID+"/"+postingID], nil
}

func TestReconcilerSweep(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.CreateResume(ctx, &model.Resume{ID: "R1", UserID: 7, Status: model.ResumeActive}); err != nil {
		t.Fatalf("create resume: %v", err)
	}

	s.SetClock(func() time.Time { return now.Add(-time.Hour) })
	for _, p := range []string{"P1", "P2"} {
		if _, err := s.BeginAttempt(ctx, "R1", p); err != nil {
			t.Fatalf("begin: %v", err)
		}
	}
	s.SetClock(func() time.Time { return now })
	if _, err := s.BeginAttempt(ctx, "R1", "P3"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	history := &fakeHistory{applied: map[string]bool{"R1/P1": true}}
	r := NewReconciler(s, history, discardLogger(), time.Second)
	r.now = func() time.Time { return now }

	res, err := r.Sweep(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if diff := cmp.Diff(SweepResult{Checked: 2, Succeeded: 1, Failed: 1}, res); diff != "" {
		t.Errorf("SweepResult mismatch (-want +got):\n%s", diff)
	}

	want := map[string]model.AttemptStatus{"P1": model.AttemptSuccess, "P2": model.AttemptFailed, "P3": model.AttemptSent}
	for p, status := range want {
		a, err := s.GetAttempt(ctx, "R1", p)
		if err != nil {
			t.Fatalf("get %s: %v", p, err)
		}
		if a.Status != status {
			t.Errorf("%s status = %s, want %s", p, a.Status, status)
		}
	}
	p2, _ := s.GetAttempt(ctx, "R1", "P2")
	if p2.Error == nil || *p2.Error != ReasonNotOnBoard {
		t.Errorf("P2 error = %v, want %q", p2.Error, ReasonNotOnBoard)
	}
}

func TestReconcilerLeavesSentWhenHistoryFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = s.CreateResume(ctx, &model.Resume{ID: "R1", UserID: 7, Status: model.ResumeActive})

	s.SetClock(func() time.Time { return now.Add(-time.Hour) })
	_, _ = s.BeginAttempt(ctx, "R1", "P1")

	r := NewReconciler(s, &fakeHistory{err: errors.New("boom")}, discardLogger(), time.Second)
	r.now = func() time.Time { return now }

	res, err := r.Sweep(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Unresolved != 1 {
		t.Errorf("Unresolved = %d, want 1", res.Unresolved)
	}
	a, _ := s.GetAttempt(ctx, "R1", "P1")
	if a.Status != model.AttemptSent {
		t.Errorf("status = %s, want sent", a.Status)
	}
}
