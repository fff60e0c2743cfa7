package enroll

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"autoapply/internal/auth"
	"autoapply/internal/hh"
	"autoapply/internal/model"
	"autoapply/internal/storage"
)

type fakeFetcher struct {
	titles map[string]string
	err    error
	calls  []string
}

func (f *fakeFetcher) GetResume(_ context.Context, _ int64, id string) (*hh.ResumeDetail, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	title, ok := f.titles[id]
	if !ok {
		return nil, errors.Mark(errors.Newf("resume %s not found", id), hh.ErrPermanent)
	}
	return &hh.ResumeDetail{ID: id, Title: title}, nil
}

func newTestService(t *testing.T, f *fakeFetcher) (*Service, *storage.SQLite) {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, f, slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestEnsureSubscription(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t, &fakeFetcher{})
	_ = s.CreateUser(ctx, &model.User{ID: 1})

	created, err := svc.EnsureSubscription(ctx, 1)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !created {
		t.Error("first call did not create a subscription")
	}
	sub, err := s.GetSubscription(ctx, 1)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Plan != model.PlanFree || sub.Status != model.SubscriptionActive {
		t.Errorf("subscription = %+v, want active free", sub)
	}

	// An existing subscription, even a paid or canceled one, is left alone.
	_ = s.UpsertSubscription(ctx, &model.Subscription{UserID: 1, Plan: model.PlanPro, Status: model.SubscriptionCanceled})
	created, err = svc.EnsureSubscription(ctx, 1)
	if err != nil || created {
		t.Fatalf("second ensure = %v, %v; want false, nil", created, err)
	}
	sub, _ = s.GetSubscription(ctx, 1)
	if sub.Plan != model.PlanPro {
		t.Errorf("plan = %s, want pro kept", sub.Plan)
	}
}

func TestAddResume(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{titles: map[string]string{
		"0a1b2c": "Go / Python backend developer",
		"ffee01": "Frontend React.js",
	}}
	svc, s := newTestService(t, f)
	_ = s.CreateUser(ctx, &model.User{ID: 1})
	_ = s.CreateUser(ctx, &model.User{ID: 2})

	r, err := svc.AddResume(ctx, 1, "https://hh.ru/resume/0a1b2c?from=share")
	if err != nil {
		t.Fatalf("add resume: %v", err)
	}
	want := &model.Resume{
		ID: "0a1b2c", UserID: 1, Status: model.ResumeActive,
		PositiveKeywords: []string{"Go", "Python", "backend", "developer"},
	}
	if diff := cmp.Diff(want, r, cmpopts.IgnoreFields(model.Resume{}, "CreatedAt")); diff != "" {
		t.Errorf("resume mismatch (-want +got):\n%s", diff)
	}
	active, _ := s.ListActiveResumes(ctx, 1)
	if len(active) != 1 || active[0].ID != "0a1b2c" {
		t.Errorf("active resumes = %+v, want 0a1b2c", active)
	}

	// Adding it again from another account moves it and reactivates it.
	_ = s.SetResumeStatus(ctx, "0a1b2c", model.ResumeInactive)
	if _, err := svc.AddResume(ctx, 2, "0a1b2c"); err != nil {
		t.Fatalf("re-add resume: %v", err)
	}
	got, _ := s.GetResume(ctx, "0a1b2c")
	if got.UserID != 2 || got.Status != model.ResumeActive {
		t.Errorf("re-added resume = %+v, want active for user 2", got)
	}

	if _, err := svc.AddResume(ctx, 1, "https://example.com/resume/ffee01"); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("foreign link: got %v, want ErrInvalidReference", err)
	}
	if diff := cmp.Diff([]string{"0a1b2c", "0a1b2c"}, f.calls); diff != "" {
		t.Errorf("fetches mismatch (-want +got):\n%s", diff)
	}
}

func TestAddResumeFetchErrors(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{err: errors.Mark(errors.New("no token"), auth.ErrAuthorizationRequired)}
	svc, s := newTestService(t, f)

	if _, err := svc.AddResume(ctx, 1, "abc123"); !errors.Is(err, auth.ErrAuthorizationRequired) {
		t.Errorf("got %v, want ErrAuthorizationRequired", err)
	}
	if _, err := s.GetResume(ctx, "abc123"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("resume stored despite fetch error: %v", err)
	}
}

func TestParseResumeID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://hh.ru/resume/0a1b2c3d", want: "0a1b2c3d"},
		{in: "  https://spb.hh.ru/resume/0a1b2c3d/  ", want: "0a1b2c3d"},
		{in: "https://hh.ru/resume/0a1b2c3d?hhtmFrom=resume_list", want: "0a1b2c3d"},
		{in: "0a1b2c3d", want: "0a1b2c3d"},
		{in: "", wantErr: true},
		{in: "https://hh.ru/vacancy/123", wantErr: true},
		{in: "https://hh.ru.evil.com/resume/0a1b", wantErr: true},
		{in: "https://hh.ru/resume/", wantErr: true},
		{in: "id with spaces", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResumeID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidReference) {
					t.Errorf("ParseResumeID(%q) error = %v, want ErrInvalidReference", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResumeID(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseResumeID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		title string
		want  []string
	}{
		{"Go developer", []string{"Go", "developer"}},
		{"C++ / C# / .NET engineer", []string{"C++", "C#", ".NET", "engineer"}},
		{"Node.js и React.js разработчик", []string{"Node.js", "React.js", "разработчик"}},
		{"Специалист 1С, 1С", []string{"Специалист", "1С"}},
		{"Go Go go", []string{"Go", "go"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Keywords(tt.title)); diff != "" {
				t.Errorf("Keywords(%q) mismatch (-want +got):\n%s", tt.title, diff)
			}
		})
	}
}
