package discovery

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"

	"autoapply/internal/hh"
	"autoapply/internal/ledger"
	"autoapply/internal/model"
	"autoapply/internal/storage"
)

type fakeSearcher struct {
	postings []hh.Posting
	err      error
	queries  []string
}

func (f *fakeSearcher) SearchPostings(_ context.Context, _ int64, query, _ string, _ int) ([]hh.Posting, error) {
	f.queries = append(f.queries, query)
	return f.postings, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *storage.SQLite) {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return ledger.New(s, discardLogger()), s
}

var r1 = model.Resume{ID: "R1", UserID: 1, PositiveKeywords: []string{"go"}, NegativeKeywords: []string{"php"}, Status: model.ResumeActive}

func TestDiscoverCapAndTestGate(t *testing.T) {
	ctx := context.Background()
	l, s := newTestLedger(t)
	search := &fakeSearcher{postings: []hh.Posting{
		{ID: "P1", HasTest: true},
		{ID: "P2"},
		{ID: "P3"},
		{ID: "P4"},
	}}
	d := New(search, l, 25, discardLogger())

	got, err := d.Discover(ctx, 1, r1, 2)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := Result{ResumeID: "R1", Found: 4, Skipped: []string{"P1"}, Postings: []string{"P2", "P3"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Discover mismatch (-want +got):\n%s", diff)
	}

	a, err := s.GetAttempt(ctx, "R1", "P1")
	if err != nil {
		t.Fatalf("get skipped attempt: %v", err)
	}
	if a.Status != model.AttemptSkipped || a.RetryCount != 0 {
		t.Errorf("P1 = %s/%d, want skipped/0", a.Status, a.RetryCount)
	}
	for _, p := range []string{"P2", "P3", "P4"} {
		if _, err := s.GetAttempt(ctx, "R1", p); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("%s: discovery must not open attempts, got %v", p, err)
		}
	}
	if diff := cmp.Diff([]string{"go NOT php"}, search.queries); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverFiltersLedgerAndKeywords(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, _ = l.BeginAttempt(ctx, "R1", "P1")
	done, _ := l.BeginAttempt(ctx, "R1", "P2")
	_ = l.Succeed(ctx, done, "")
	failed, _ := l.BeginAttempt(ctx, "R1", "P3")
	_ = l.Fail(ctx, failed, "submit_error", "")

	search := &fakeSearcher{postings: []hh.Posting{
		{ID: "P1"}, {ID: "P2"}, {ID: "P3"},
		{ID: "P4", Name: "Senior PHP developer"},
		{ID: "P5"}, {ID: "P5"},
	}}
	d := New(search, l, 25, discardLogger())

	got, err := d.Discover(ctx, 1, r1, 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := Result{ResumeID: "R1", Found: 6, Excluded: 1, Attempted: 2, Postings: []string{"P3", "P5"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Discover mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverSearchError(t *testing.T) {
	l, _ := newTestLedger(t)
	d := New(&fakeSearcher{err: errors.Mark(errors.New("502"), hh.ErrTransient)}, l, 25, discardLogger())

	_, err := d.Discover(context.Background(), 1, r1, 3)
	if !errors.Is(err, ErrSearch) || !errors.Is(err, hh.ErrTransient) {
		t.Errorf("got %v, want ErrSearch wrapping ErrTransient", err)
	}
}

func TestDiscoverEmptyQuery(t *testing.T) {
	l, _ := newTestLedger(t)
	search := &fakeSearcher{postings: []hh.Posting{{ID: "P1"}}}
	d := New(search, l, 25, discardLogger())

	got, err := d.Discover(context.Background(), 1, model.Resume{ID: "R2"}, 3)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if diff := cmp.Diff(Result{ResumeID: "R2"}, got); diff != "" {
		t.Errorf("Discover mismatch (-want +got):\n%s", diff)
	}
	if len(search.queries) != 0 {
		t.Errorf("search called %d times, want 0", len(search.queries))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		posting   hh.Posting
		negatives []string
		want      Verdict
	}{
		{"plain", hh.Posting{Name: "Go developer"}, nil, Keep},
		{"test gated wins", hh.Posting{Name: "PHP developer", HasTest: true}, []string{"php"}, SkipTest},
		{"negative case-insensitive", hh.Posting{Name: "Senior PHP Developer"}, []string{"php"}, Exclude},
		{"blank negative ignored", hh.Posting{Name: "Go developer"}, []string{"  "}, Keep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.posting, tt.negatives); got != tt.want {
				t.Errorf("classify() = %d, want %d", got, tt.want)
			}
		})
	}
}
