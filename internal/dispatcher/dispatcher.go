// Package dispatcher runs pipeline stages on fixed-size worker pools.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
	"github.com/JakeFAU/wikicrawler/internal/metrics"
	"github.com/JakeFAU/wikicrawler/internal/queue/memory"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("pool closed")

// Config sizes a Pool.
type Config struct {
	Name    string
	Workers int
}

// Pool fans stages out to a fixed number of workers over an unbounded queue.
// On shutdown the stages still queued are run with a canceled context so that
// every submitted stage gets to observe the shutdown.
type Pool struct {
	name    string
	workers int
	queue   *memory.Queue[crawler.Stage]
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

var _ crawler.Executor = (*Pool)(nil)

// New creates a Pool. Workers do not run until Start.
func New(cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("pool %q needs at least one worker, got %d", cfg.Name, cfg.Workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:    cfg.Name,
		workers: cfg.Workers,
		queue:   memory.NewQueue[crawler.Stage](),
		logger:  logger.With(zap.String("pool", cfg.Name)),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Name returns the pool label used in logs and metrics.
func (p *Pool) Name() string {
	return p.name
}

// Start launches the workers. Calling it again is a no-op.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.work()
			}()
		}
		p.logger.Debug("pool started", zap.Int("workers", p.workers))
	})
}

// Run starts the workers and blocks until ctx ends, then shuts the pool down.
func (p *Pool) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	return p.Shutdown(context.WithoutCancel(ctx))
}

// Submit queues stage for execution. It never blocks.
func (p *Pool) Submit(stage crawler.Stage) error {
	if err := p.queue.Enqueue(stage); err != nil {
		return fmt.Errorf("submit to %s: %w", p.name, ErrPoolClosed)
	}
	metrics.SetPoolQueueDepth(p.name, p.queue.Len())
	return nil
}

// Pending returns the number of queued stages.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

func (p *Pool) work() {
	for {
		stage, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			return
		}
		metrics.SetPoolQueueDepth(p.name, p.queue.Len())
		p.run(stage)
	}
}

func (p *Pool) run(stage crawler.Stage) {
	metrics.IncBusyWorkers(p.name)
	defer metrics.DecBusyWorkers(p.name)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("stage panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	stage(p.ctx)
}

// Shutdown stops accepting stages, cancels the pool context and waits for the
// workers to finish what is queued. It returns early if ctx ends first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.queue.Close()
		p.cancel()
		p.logger.Debug("pool shutting down", zap.Int("pending", p.queue.Len()))
	})
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		// Stages left behind by a pool that never started.
		for _, stage := range p.queue.Drain() {
			p.run(stage)
		}
		close(done)
	}()
	select {
	case <-done:
		metrics.SetPoolQueueDepth(p.name, 0)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown %s: %w", p.name, ctx.Err())
	}
}
