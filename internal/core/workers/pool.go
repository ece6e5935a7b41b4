package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/pkg/sequence"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a unit of background work. ctx is cancelled when the pool closes.
type Task func(ctx context.Context)

type Config struct {
	// Size is the number of worker goroutines. Zero means runtime.NumCPU().
	Size int
	Name string
}

func DefaultConfig() Config {
	return Config{Size: runtime.NumCPU(), Name: "workers"}
}

type Stats struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Busy      int64  `json:"busy"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Panics    uint64 `json:"panics"`
}

// Pool runs tasks on a resizable set of goroutines. Submit never blocks;
// the queue is unbounded.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  *sequence.Queue[Task]
	target int
	live   int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	logger log.Log

	busy      atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	panics    atomic.Uint64
}

func New(cfg Config, logger log.Log) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = runtime.NumCPU()
	}
	if cfg.Name == "" {
		cfg.Name = "workers"
	}
	if logger == nil {
		logger = log.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  sequence.NewQueue[Task](64),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(log.String("component", "pool"), log.String("pool", cfg.Name)),
	}
	p.cond = sync.NewCond(&p.mu)
	_ = p.Resize(cfg.Size)

	p.logger.Debug("Worker pool started", log.Int("workers", cfg.Size))
	return p
}

// Submit queues t for execution.
func (p *Pool) Submit(t Task) error {
	if t == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.queue.Enqueue(t)
	p.submitted.Add(1)
	p.cond.Signal()
	return nil
}

// Resize changes the number of workers. Surplus workers exit after their
// current task; values below one are raised to one.
func (p *Pool) Resize(n int) error {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	prev := p.target
	p.target = n
	for p.live < p.target {
		p.live++
		id := p.live
		p.group.Go(func() error { return p.worker(id) })
	}
	p.cond.Broadcast()
	if prev != 0 && prev != n {
		p.logger.Info("Worker pool resized", log.Int("from", prev), log.Int("to", n))
	}
	return nil
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers, queued := p.live, p.queue.Len()
	p.mu.Unlock()
	return Stats{
		Workers:   workers,
		Queued:    queued,
		Busy:      p.busy.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

// WaitIdle blocks until no task is queued or running, or ctx is done.
func (p *Pool) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if p.Queued() == 0 && p.busy.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close drops queued tasks, cancels the task context and waits for running
// tasks to return. It is safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dropped := p.queue.Clear()
	p.cancel()
	p.cond.Broadcast()
	p.mu.Unlock()

	err := p.group.Wait()
	p.logger.Debug("Worker pool closed",
		log.Int("dropped", dropped),
		log.Uint64("completed", p.completed.Load()))
	return err
}

func (p *Pool) worker(id int) error {
	for {
		p.mu.Lock()
		for !p.closed && p.queue.IsEmpty() && p.live <= p.target {
			p.cond.Wait()
		}
		if p.closed || p.live > p.target {
			p.live--
			p.mu.Unlock()
			return nil
		}
		task, _ := p.queue.Dequeue()
		p.busy.Add(1)
		p.mu.Unlock()

		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("Task panicked",
				log.Int("worker", id),
				log.Error(fmt.Errorf("panic: %v", r)))
		}
		p.busy.Add(-1)
		p.completed.Add(1)
	}()
	task(p.ctx)
}
