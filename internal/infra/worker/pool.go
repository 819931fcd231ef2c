package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"collab-billing/internal/infra/metrics"
)

var (
	// ErrQueueFull is returned by Submit when the backlog is at capacity.
	ErrQueueFull = errors.New("worker queue full")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("worker pool stopped")
	errNilTask = errors.New("nil task")
)

type Task func(ctx context.Context) error

// Pool runs tasks on a fixed number of goroutines behind a bounded backlog
// of four slots per worker. Outcomes are exported per pool name.
type Pool struct {
	name    string
	size    int
	backlog chan Task
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	log     *zerolog.Logger
}

func NewPool(name string, workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "worker").Str("pool", name).Logger()
	return &Pool{
		name:    name,
		size:    workers,
		backlog: make(chan Task, workers*4),
		done:    make(chan struct{}),
		log:     &l,
	}
}

func (p *Pool) Size() int { return p.size }

// Start launches the workers. They exit when ctx ends or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.loop(ctx, i)
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case task := <-p.backlog:
			metrics.SetWorkerQueueDepth(p.name, len(p.backlog))
			metrics.IncWorkerTask(p.name, p.exec(ctx, id, task))
		}
	}
}

func (p *Pool) exec(ctx context.Context, id int, task Task) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Str("panic", fmt.Sprint(r)).Msg("task panicked")
			outcome = metrics.TaskPanic
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("task failed")
		return metrics.TaskError
	}
	return metrics.TaskOK
}

// Stop makes workers exit after their current task and waits for them.
// Anything still queued is discarded.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Pool) stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Submit queues task without blocking.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errNilTask
	}
	if p.stopped() {
		return ErrStopped
	}
	select {
	case p.backlog <- task:
		metrics.SetWorkerQueueDepth(p.name, len(p.backlog))
		return nil
	default:
		metrics.IncWorkerTask(p.name, metrics.TaskRejected)
		return ErrQueueFull
	}
}

// SubmitWait queues task, waiting for room until ctx ends or the pool stops.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	if task == nil {
		return errNilTask
	}
	if p.stopped() {
		return ErrStopped
	}
	select {
	case p.backlog <- task:
		metrics.SetWorkerQueueDepth(p.name, len(p.backlog))
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
