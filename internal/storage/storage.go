// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"autoapply/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint blocks the write.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition is returned when an attempt cannot move to the requested state.
	ErrInvalidTransition = errors.New("invalid attempt transition")
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetNotifications(ctx context.Context, userID int64, enabled bool) error

	UpsertSubscription(ctx context.Context, s *model.Subscription) error
	GetSubscription(ctx context.Context, userID int64) (*model.Subscription, error)
	ListSubscribers(ctx context.Context, plans []model.Plan, now time.Time) ([]int64, error)

	CreateResume(ctx context.Context, r *model.Resume) error
	GetResume(ctx context.Context, id string) (*model.Resume, error)
	ListActiveResumes(ctx context.Context, userID int64) ([]model.Resume, error)
	SetResumeStatus(ctx context.Context, id string, status model.ResumeStatus) error
	AssignResume(ctx context.Context, r *model.Resume) error

	AttemptedPostings(ctx context.Context, resumeID string, postingIDs []string) (map[string]bool, error)
	BeginAttempt(ctx context.Context, resumeID, postingID string) (*model.ApplicationAttempt, error)
	CompleteAttempt(ctx context.Context, c Completion) error
	MarkSkipped(ctx context.Context, resumeID, postingID, reason string) (bool, error)
	GetAttempt(ctx context.Context, resumeID, postingID string) (*model.ApplicationAttempt, error)
	ListStuckAttempts(ctx context.Context, before time.Time, limit int) ([]model.ApplicationAttempt, error)
	CountUserAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	AttemptStats(ctx context.Context, userID int64) (map[model.AttemptStatus]int, error)

	CreateRunResult(ctx context.Context, r *model.RunResult) error
	LatestRunResult(ctx context.Context, userID int64) (*model.RunResult, error)

	GetToken(ctx context.Context, userID int64) (*model.Token, error)
	SaveToken(ctx context.Context, t *model.Token) error

	Close() error
}

// Completion moves an attempt out of the sent state.
// Generation must match the attempt's retry count at the time it was opened.
type Completion struct {
	AttemptID   int64
	Generation  int
	Status      model.AttemptStatus
	CoverLetter *string
	Error       *string
}
