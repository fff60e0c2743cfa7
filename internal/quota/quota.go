// Package quota maps subscription plans to queues and per-run application caps.
package quota

import (
	"sync"
	"time"

	"autoapply/internal/model"
)

// Unbounded marks a cap with no hard limit. Such runs are bounded by the discovery page size.
const Unbounded = -1

// Policy is the deterministic plan → (queue, cap) mapping.
type Policy struct {
	caps       map[model.Plan]int
	pageSize   int
	freeWindow time.Duration
}

// NewPolicy creates a Policy. A cap of -1 is unbounded; a plan missing from caps gets 0.
func NewPolicy(caps map[model.Plan]int, pageSize int, freeWindow time.Duration) *Policy {
	c := make(map[model.Plan]int, len(caps))
	for k, v := range caps {
		c[k] = v
	}
	return &Policy{caps: c, pageSize: pageSize, freeWindow: freeWindow}
}

// PageSize is the number of candidates requested per discovery call.
func (p *Policy) PageSize() int {
	return p.pageSize
}

// QueueFor returns the queue a user's units run on. Users without a
// subscription are only reachable through manual and bulk runs and use the
// normal queue.
func (p *Policy) QueueFor(sub *model.Subscription, now time.Time) model.Queue {
	switch {
	case sub == nil:
		return model.QueueNormal
	case sub.ActiveAt(now) && sub.Plan.IsPaid():
		return model.QueueHigh
	default:
		return model.QueueLow
	}
}

// CapFor returns the per-run cap for a plan. The run type does not change
// the cap today; it is part of the signature so cadences can diverge.
func (p *Policy) CapFor(_ model.RunType, plan model.Plan) int {
	c, ok := p.caps[plan]
	if !ok {
		return 0
	}
	if c < 0 {
		return Unbounded
	}
	return c
}

// Allowance is what one user may do in one run.
type Allowance struct {
	Plan  model.Plan
	Queue model.Queue
	// Cap is the run's cap before window accounting; Unbounded when negative.
	Cap int
	// Window, when non-zero, is the rolling period whose sent and successful
	// attempts are subtracted from Cap.
	Window time.Duration
}

// Allow resolves a user's allowance for a run. Inactive or expired
// subscriptions get a zero cap.
func (p *Policy) Allow(sub *model.Subscription, runType model.RunType, now time.Time) Allowance {
	a := Allowance{Queue: p.QueueFor(sub, now)}
	switch {
	case sub == nil:
		a.Plan = model.PlanFree
	case !sub.ActiveAt(now):
		a.Plan = sub.Plan
		return a
	default:
		a.Plan = sub.Plan
	}
	a.Cap = p.CapFor(runType, a.Plan)
	if a.Plan == model.PlanFree && a.Cap != Unbounded {
		a.Window = p.freeWindow
	}
	return a
}

// Remaining applies window usage to the allowance's cap.
func (a Allowance) Remaining(used int) int {
	if a.Cap == Unbounded {
		return Unbounded
	}
	if a.Window > 0 {
		return max(a.Cap-used, 0)
	}
	return a.Cap
}

// Budget is a user's application budget for a single run, shared by all of
// the user's résumés. It is safe for concurrent use.
type Budget struct {
	mu        sync.Mutex
	remaining int
	unbounded bool
}

// NewBudget creates a budget of n; a negative n is unbounded.
func NewBudget(n int) *Budget {
	if n < 0 {
		return &Budget{unbounded: true}
	}
	return &Budget{remaining: n}
}

// Take grants up to n units and returns how many were granted.
func (b *Budget) Take(n int) int {
	if n <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unbounded {
		return n
	}
	granted := min(n, b.remaining)
	b.remaining -= granted
	return granted
}

// Limit returns how many postings the next discovery may return, at most pageSize.
func (b *Budget) Limit(pageSize int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unbounded {
		return pageSize
	}
	return min(b.remaining, pageSize)
}

// Exhausted reports whether no further units can be granted.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.unbounded && b.remaining == 0
}
