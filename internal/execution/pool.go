package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when every worker is busy and the queue is at capacity.
var ErrQueueFull = errors.New("execution queue full")

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("execution pool closed")

// Job is one approved trade waiting for a worker.
type Job struct {
	Opportunity   *opportunity.Opportunity
	Stake         decimal.Decimal
	ReservationID string
}

// Result is delivered to the handler for every submitted job, including cancelled ones.
type Result struct {
	Job  Job
	Fill *Fill
	Err  error
}

// ResultHandler consumes execution results. It runs on the worker goroutine.
type ResultHandler func(ctx context.Context, res Result)

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers   int
	QueueSize int
	Executor  *Executor
	Handler   ResultHandler
	Recorder  Recorder
	Logger    *zap.Logger
}

// Pool runs executions off the scan path on a fixed set of workers fed by a bounded queue.
type Pool struct {
	workers  int
	executor *Executor
	handler  ResultHandler
	recorder Recorder
	logger   *zap.Logger

	jobs chan Job

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(cfg *PoolConfig) (*Pool, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if cfg.Workers <= 0 {
		return nil, errors.New("workers must be positive")
	}
	if cfg.QueueSize < 0 {
		return nil, errors.New("queue size cannot be negative")
	}
	handler := cfg.Handler
	if handler == nil {
		handler = func(context.Context, Result) {}
	}

	return &Pool{
		workers:  cfg.Workers,
		executor: cfg.Executor,
		handler:  handler,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		jobs:     make(chan Job, cfg.QueueSize),
	}, nil
}

// Start launches the workers. They stop when ctx is cancelled or Close is called.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("execution-pool-starting",
		zap.Int("workers", p.workers),
		zap.Int("queue-size", cap(p.jobs)),
		zap.String("mode", string(p.executor.Mode())))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit enqueues a job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		QueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		QueueRejectedTotal.Inc()
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.drain(ctx)
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			QueueDepth.Set(float64(len(p.jobs)))
			if ctx.Err() != nil {
				p.cancel(ctx, job)
				p.drain(ctx)
				return
			}
			p.run(ctx, id, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, worker int, job Job) {
	ActiveWorkers.Inc()
	defer ActiveWorkers.Dec()

	fill, err := p.executor.Execute(ctx, job.Opportunity, job.Stake)
	fill.ReservationID = job.ReservationID
	p.deliver(ctx, Result{Job: job, Fill: fill, Err: err})

	p.logger.Debug("execution-job-done",
		zap.Int("worker", worker),
		zap.String("opportunity-id", job.Opportunity.ID),
		zap.String("status", string(fill.Status)))
}

// drain reports queued jobs as failed so nothing is dropped silently on shutdown.
func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.cancel(ctx, job)
		default:
			return
		}
	}
}

func (p *Pool) cancel(ctx context.Context, job Job) {
	fill := &Fill{
		OpportunityID: job.Opportunity.ID,
		ReservationID: job.ReservationID,
		Mode:          p.executor.Mode(),
		Status:        FillFailed,
		Stake:         job.Stake,
		Error:         "cancelled before submission",
		ExecutedAt:    time.Now(),
	}
	FillsTotal.WithLabelValues(string(fill.Mode), string(fill.Status)).Inc()
	p.logger.Warn("execution-job-cancelled",
		zap.String("opportunity-id", job.Opportunity.ID))
	p.deliver(ctx, Result{Job: job, Fill: fill, Err: ctx.Err()})
}

func (p *Pool) deliver(ctx context.Context, res Result) {
	if p.recorder != nil {
		// Recording must survive a cancelled run context.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := p.recorder.RecordExecution(recCtx, res.Fill); err != nil {
			p.logger.Error("execution-record-failed",
				zap.String("opportunity-id", res.Job.Opportunity.ID),
				zap.Error(err))
		}
		cancel()
	}
	p.handler(ctx, res)
}

// Close stops accepting jobs, lets workers finish the queue and waits for them.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("closing-execution-pool")
	p.wg.Wait()

	// Workers that exited on cancellation may have left jobs behind.
	for job := range p.jobs {
		ctx, stop := context.WithCancel(context.Background())
		stop()
		p.cancel(ctx, job)
	}
	QueueDepth.Set(0)
	p.logger.Info("execution-pool-closed")
	return nil
}
