// Package cohort resolves which users a cadence trigger applies to and when it fires next.
package cohort

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"autoapply/internal/config"
	"autoapply/internal/model"
)

// Store is the subset of storage the resolver reads.
type Store interface {
	ListSubscribers(ctx context.Context, plans []model.Plan, now time.Time) ([]int64, error)
}

// Trigger is a named cohort cadence given as a standard five-field cron
// expression, optionally prefixed with CRON_TZ=<zone>.
type Trigger struct {
	Name     string
	Plans    []model.Plan
	RunType  model.RunType
	Schedule string

	sched cron.Schedule
}

// NewTrigger builds a Trigger from its configuration.
func NewTrigger(name string, c config.Trigger) (Trigger, error) {
	sched, err := cron.ParseStandard(c.Schedule)
	if err != nil {
		return Trigger{}, fmt.Errorf("trigger %s: parse schedule %q: %w", name, c.Schedule, err)
	}
	return Trigger{Name: name, Plans: c.Plans, RunType: c.RunType, Schedule: c.Schedule, sched: sched}, nil
}

// Next returns the first firing time strictly after now.
func (t Trigger) Next(now time.Time) time.Time {
	return t.sched.Next(now)
}

// Resolver maps trigger names to the set of users they cover.
type Resolver struct {
	store    Store
	triggers map[string]Trigger
	now      func() time.Time
}

// NewResolver creates a Resolver over the configured triggers.
func NewResolver(store Store, triggers map[string]config.Trigger) (*Resolver, error) {
	r := &Resolver{store: store, triggers: make(map[string]Trigger, len(triggers)), now: time.Now}
	for name, c := range triggers {
		t, err := NewTrigger(name, c)
		if err != nil {
			return nil, err
		}
		r.triggers[name] = t
	}
	return r, nil
}

// Triggers returns all triggers ordered by name.
func (r *Resolver) Triggers() []Trigger {
	out := make([]Trigger, 0, len(r.triggers))
	for _, t := range r.triggers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Trigger returns the trigger with the given name.
func (r *Resolver) Trigger(name string) (Trigger, bool) {
	t, ok := r.triggers[name]
	return t, ok
}

// Resolve returns the IDs of active users with a currently active
// subscription on one of the trigger's plans. Users without a subscription
// never belong to a cohort.
func (r *Resolver) Resolve(ctx context.Context, name string) ([]int64, error) {
	t, ok := r.triggers[name]
	if !ok {
		return nil, fmt.Errorf("unknown trigger %q", name)
	}
	ids, err := r.store.ListSubscribers(ctx, t.Plans, r.now())
	if err != nil {
		return nil, fmt.Errorf("list subscribers for %s: %w", name, err)
	}
	return ids, nil
}
