// Package queue runs tasks on a fixed pool of goroutines fed by
// priority lanes. On every pick a worker takes from the highest-priority
// non-empty lane.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"autoapply/internal/model"
)

// ErrClosed is returned by Submit after Stop.
var ErrClosed = errors.New("queue closed")

// Lanes in priority order.
var Lanes = []model.Queue{model.QueueHigh, model.QueueNormal, model.QueueLow, model.QueueRetry}

// Task is a unit of work. ctx is the pool's context.
type Task func(ctx context.Context)

// Pool is a priority worker pool.
type Pool struct {
	workers int
	lanes   map[model.Queue]chan Task
	// One token per queued task, so a worker holding a token always finds a task.
	signal chan struct{}
	quit   chan struct{}
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	stop   sync.Once
	wg     sync.WaitGroup
}

// New creates a pool with the given number of workers and per-lane depth.
func New(workers, depth int, logger *slog.Logger) *Pool {
	p := &Pool{
		workers: workers,
		lanes:   make(map[model.Queue]chan Task, len(Lanes)),
		signal:  make(chan struct{}, depth*len(Lanes)),
		quit:    make(chan struct{}),
		logger:  logger,
	}
	for _, l := range Lanes {
		p.lanes[l] = make(chan Task, depth)
	}
	return p
}

// Start launches the workers. Tasks receive ctx.
func (p *Pool) Start(ctx context.Context) {
	for i := range p.workers {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

// Submit enqueues a task on a lane. It blocks while the lane is full.
func (p *Pool) Submit(ctx context.Context, lane model.Queue, task Task) error {
	ch, ok := p.lanes[lane]
	if !ok {
		return fmt.Errorf("unknown lane %q", lane)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case ch <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrClosed
	}
	p.signal <- struct{}{}
	return nil
}

// Pending returns the number of queued tasks on a lane.
func (p *Pool) Pending(lane model.Queue) int {
	return len(p.lanes[lane])
}

// Stop rejects new tasks, lets the workers drain what is queued and waits for them.
func (p *Pool) Stop() {
	p.stop.Do(func() {
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		close(p.signal)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for range p.signal {
		task := p.pick()
		if task == nil {
			continue
		}
		p.run(ctx, id, task)
	}
}

func (p *Pool) pick() Task {
	for _, l := range Lanes {
		select {
		case t := <-p.lanes[l]:
			return t
		default:
		}
	}
	return nil
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "worker", id, "panic", r)
		}
	}()
	task(ctx)
}
