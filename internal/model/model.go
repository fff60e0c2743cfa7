// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// UserStatus is the account state of a user.
type UserStatus string

// Supported user states.
const (
	UserActive  UserStatus = "active"
	UserBlocked UserStatus = "blocked"
)

// User is a bot user. The ID doubles as the Telegram chat ID.
type User struct {
	ID            int64
	Username      string
	Status        UserStatus
	Notifications bool
	CreatedAt     time.Time
}

// Plan is a subscription tier.
type Plan string

// Supported plans.
const (
	PlanFree Plan = "free"
	PlanPlus Plan = "plus"
	PlanPro  Plan = "pro"
)

// IsPaid reports whether the plan belongs to the paid cohort.
func (p Plan) IsPaid() bool {
	return p == PlanPlus || p == PlanPro
}

// SubscriptionStatus is the billing state of a subscription.
type SubscriptionStatus string

// Supported subscription states.
const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionExpired  SubscriptionStatus = "expired"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription belongs to exactly one user.
type Subscription struct {
	UserID    int64
	Plan      Plan
	Status    SubscriptionStatus
	StartedAt time.Time
	ExpiresAt *time.Time
}

// ActiveAt reports whether the subscription is currently active at now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	if s == nil || s.Status != SubscriptionActive {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// ResumeStatus toggles whether a résumé takes part in scheduling.
type ResumeStatus string

// Supported résumé states.
const (
	ResumeActive   ResumeStatus = "active"
	ResumeInactive ResumeStatus = "inactive"
)

// Resume is a user's candidate profile on the job board.
type Resume struct {
	ID               string
	UserID           int64
	PositiveKeywords []string
	NegativeKeywords []string
	Status           ResumeStatus
	CreatedAt        time.Time
}

// SearchQuery builds the job-board search text from the keyword lists:
// positives joined with OR, then a NOT term per negative keyword.
// An empty string means the résumé cannot be searched.
func (r Resume) SearchQuery() string {
	var pos []string
	for _, w := range r.PositiveKeywords {
		if w = strings.TrimSpace(w); w != "" {
			pos = append(pos, w)
		}
	}
	if len(pos) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.Join(pos, " OR "))
	for _, w := range r.NegativeKeywords {
		if w = strings.TrimSpace(w); w != "" {
			b.WriteString(" NOT ")
			b.WriteString(w)
		}
	}
	return b.String()
}

// AttemptStatus is the ledger state of one (résumé, posting) pair.
type AttemptStatus string

// Supported attempt states.
const (
	AttemptSent    AttemptStatus = "sent"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
	AttemptSkipped AttemptStatus = "skipped"
)

// Blocking reports whether the state forbids another attempt on the pair.
func (s AttemptStatus) Blocking() bool {
	return s == AttemptSent || s == AttemptSuccess
}

// ApplicationAttempt is the dedup ledger row, unique on (ResumeID, PostingID).
type ApplicationAttempt struct {
	ID          int64
	ResumeID    string
	PostingID   string
	Status      AttemptStatus
	CoverLetter *string
	Error       *string
	RetryCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AppliedAt   *time.Time
}

// RunType labels what started a scheduling pass.
type RunType string

// Supported run types.
const (
	RunFreeDaily  RunType = "free_daily"
	RunPaidHourly RunType = "paid_hourly"
	RunBulk       RunType = "bulk"
	RunManual     RunType = "manual"
)

// Valid reports whether t is one of the known run types.
func (t RunType) Valid() bool {
	switch t {
	case RunFreeDaily, RunPaidHourly, RunBulk, RunManual:
		return true
	}
	return false
}

// RunResult is the immutable record of one scheduling pass for one user.
type RunResult struct {
	ID              int64
	UserID          int64
	RunType         RunType
	ResumesEnqueued int
	Meta            map[string]any
	CreatedAt       time.Time
}

// Queue is a priority class of the worker pool.
type Queue string

// Supported queues, highest priority first.
const (
	QueueHigh   Queue = "high"
	QueueNormal Queue = "normal"
	QueueLow    Queue = "low"
	QueueRetry  Queue = "retry"
)

// Token is a persisted OAuth credential for one user.
type Token struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}
