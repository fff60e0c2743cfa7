// Package enroll registers what a user needs before runs can reach them:
// a subscription and at least one active résumé.
package enroll

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"autoapply/internal/hh"
	"autoapply/internal/model"
	"autoapply/internal/storage"
)

// ErrInvalidReference means a résumé link or ID could not be parsed.
var ErrInvalidReference = errors.New("invalid résumé reference")

// Store is the subset of storage enrollment writes to.
type Store interface {
	GetSubscription(ctx context.Context, userID int64) (*model.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	CreateResume(ctx context.Context, r *model.Resume) error
	AssignResume(ctx context.Context, r *model.Resume) error
}

// Fetcher reads a résumé from the job board with the user's credentials.
type Fetcher interface {
	GetResume(ctx context.Context, userID int64, resumeID string) (*hh.ResumeDetail, error)
}

// Service enrolls users and their résumés.
type Service struct {
	store   Store
	fetcher Fetcher
	log     *slog.Logger
}

// New creates a Service.
func New(store Store, fetcher Fetcher, log *slog.Logger) *Service {
	return &Service{store: store, fetcher: fetcher, log: log}
}

// EnsureSubscription gives the user an active free subscription unless they
// already have one in any state. It reports whether one was created.
func (s *Service) EnsureSubscription(ctx context.Context, userID int64) (bool, error) {
	_, err := s.store.GetSubscription(ctx, userID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, errors.Wrap(err, "get subscription")
	}
	sub := &model.Subscription{UserID: userID, Plan: model.PlanFree, Status: model.SubscriptionActive}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return false, errors.Wrap(err, "create free subscription")
	}
	s.log.Info("free subscription created", "user_id", userID)
	return true, nil
}

// AddResume fetches the résumé behind ref, a job-board link or a bare ID,
// and stores it active for the user with keywords taken from its title.
// A résumé already on file is moved to the user and refreshed.
func (s *Service) AddResume(ctx context.Context, userID int64, ref string) (*model.Resume, error) {
	id, err := ParseResumeID(ref)
	if err != nil {
		return nil, err
	}
	detail, err := s.fetcher.GetResume(ctx, userID, id)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch resume %s", id)
	}

	r := &model.Resume{
		ID:               id,
		UserID:           userID,
		PositiveKeywords: Keywords(detail.Title),
		Status:           model.ResumeActive,
	}
	err = s.store.CreateResume(ctx, r)
	if errors.Is(err, storage.ErrConflict) {
		err = s.store.AssignResume(ctx, r)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "store resume %s", id)
	}
	s.log.Info("resume added", "user_id", userID, "resume_id", id, "keywords", len(r.PositiveKeywords))
	return r, nil
}

var resumeIDRe = regexp.MustCompile(`^[0-9A-Za-z]+$`)

// ParseResumeID accepts https://hh.ru/resume/<id> (any hh.ru subdomain,
// query ignored) or a bare ID.
func ParseResumeID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.Wrap(ErrInvalidReference, "empty")
	}
	id := ref
	if strings.Contains(ref, "/") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", errors.Wrapf(ErrInvalidReference, "%q", ref)
		}
		host := strings.ToLower(u.Hostname())
		if host != "hh.ru" && !strings.HasSuffix(host, ".hh.ru") {
			return "", errors.Wrapf(ErrInvalidReference, "%q is not an hh.ru link", ref)
		}
		rest, ok := strings.CutPrefix(u.Path, "/resume/")
		if !ok {
			return "", errors.Wrapf(ErrInvalidReference, "%q is not a résumé link", ref)
		}
		id = strings.TrimSuffix(rest, "/")
	}
	if !resumeIDRe.MatchString(id) {
		return "", errors.Wrapf(ErrInvalidReference, "bad résumé id %q", id)
	}
	return id, nil
}

var keywordRe = regexp.MustCompile(`C\+\+|C#|\.NET|[A-Za-z]+\.js|[A-Za-zА-Яа-яёЁ]{2,}|\d+[A-Za-zА-Яа-яёЁ]+`)

// Keywords extracts search keywords from a résumé title: words of two or
// more letters plus a few technology names, unique, in order of appearance.
func Keywords(title string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range keywordRe.FindAllString(title, -1) {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
