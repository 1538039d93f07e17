// Package dispatch provides the bounded worker pool that decouples event
// production from notification handling. Producers enqueue through Submit,
// which never blocks: when the queue is full and all workers are busy the
// event is rejected and dropped.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/AdeepaK2/gear-up-be-sub000/internal/event"
)

const (
	defaultCoreWorkers = 5
	defaultMaxWorkers  = 10
	defaultQueueSize   = 100

	// Workers above the core count retire after this long without work.
	defaultIdleRetirement = 60 * time.Second
)

// ErrQueueFull is returned by Submit when the pending queue is saturated and
// the pool is already running its maximum number of workers.
var ErrQueueFull = errors.New("dispatch: queue full and all workers busy")

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("dispatch: pool is shut down")

// Handler processes a single event. Handlers run on pool workers, never on
// the submitting goroutine, and must tolerate concurrent invocation.
type Handler func(ctx context.Context, ev event.NotificationEvent)

// RejectionHandler is invoked for every event Submit rejects. It runs on the
// submitting goroutine and must not block.
type RejectionHandler func(ev event.NotificationEvent, cause error)

// Config holds pool sizing. Zero values fall back to the defaults
// (5 core / 10 max workers, queue of 100).
type Config struct {
	CoreWorkers int
	MaxWorkers  int
	QueueSize   int
	// IdleRetirement is how long an above-core worker waits for work before
	// exiting. Zero means the 60s default.
	IdleRetirement time.Duration
	// OnReject is optional; when nil rejections are only logged.
	OnReject RejectionHandler
}

// Pool is a fixed-capacity worker pool with elastic sizing: core workers run
// for the pool's lifetime, extra workers are spawned when the queue is full
// and retire after an idle period.
type Pool struct {
	cfg     Config
	queue   chan event.NotificationEvent
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	workers int
	closed  bool
	wg      sync.WaitGroup
}

// NewPool creates and starts a pool running handler on its workers.
func NewPool(cfg Config, handler Handler, logger *slog.Logger) *Pool {
	if cfg.CoreWorkers <= 0 {
		cfg.CoreWorkers = defaultCoreWorkers
	}
	if cfg.MaxWorkers < cfg.CoreWorkers {
		cfg.MaxWorkers = defaultMaxWorkers
		if cfg.MaxWorkers < cfg.CoreWorkers {
			cfg.MaxWorkers = cfg.CoreWorkers
		}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.IdleRetirement <= 0 {
		cfg.IdleRetirement = defaultIdleRetirement
	}

	p := &Pool{
		cfg:     cfg,
		queue:   make(chan event.NotificationEvent, cfg.QueueSize),
		handler: handler,
		logger:  logger,
	}

	p.mu.Lock()
	for i := 0; i < cfg.CoreWorkers; i++ {
		p.spawnLocked(coreWorker)
	}
	p.mu.Unlock()

	return p
}

type workerMode int

const (
	coreWorker workerMode = iota
	extraWorker
)

// Submit enqueues an event for asynchronous handling. It never blocks: if
// the queue is full, an extra worker is spawned when capacity allows;
// otherwise the event is rejected and the rejection handler is invoked.
func (p *Pool) Submit(ev event.NotificationEvent) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.reject(ev, ErrPoolClosed)
		return ErrPoolClosed
	}

	select {
	case p.queue <- ev:
		p.mu.Unlock()
		return nil
	default:
	}

	// Queue saturated. Grow towards the max before giving up; the new
	// worker takes the event directly instead of going through the queue.
	if p.workers < p.cfg.MaxWorkers {
		p.spawnWithTaskLocked(ev)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.reject(ev, ErrQueueFull)
	return ErrQueueFull
}

// QueueDepth returns the number of events waiting in the queue.
func (p *Pool) QueueDepth() int { return len(p.queue) }

// WorkerCount returns the number of live workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Shutdown stops accepting events and waits for queued and running work to
// finish, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) reject(ev event.NotificationEvent, cause error) {
	p.logger.Warn("notification event dropped",
		"recipient_id", ev.RecipientID,
		"kind", string(ev.Kind),
		"cause", cause,
	)
	if p.cfg.OnReject != nil {
		p.cfg.OnReject(ev, cause)
	}
}

func (p *Pool) spawnLocked(mode workerMode) {
	p.workers++
	p.wg.Add(1)
	go p.run(mode, nil)
}

func (p *Pool) spawnWithTaskLocked(ev event.NotificationEvent) {
	p.workers++
	p.wg.Add(1)
	first := ev
	go p.run(extraWorker, &first)
}

// run is the worker loop. Core workers block on the queue until it is
// closed; extra workers retire after idleRetirement without work.
func (p *Pool) run(mode workerMode, first *event.NotificationEvent) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
	}()

	if first != nil {
		p.handle(*first)
	}

	if mode == coreWorker {
		for ev := range p.queue {
			p.handle(ev)
		}
		return
	}

	idle := time.NewTimer(p.cfg.IdleRetirement)
	defer idle.Stop()
	for {
		select {
		case ev, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(ev)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(p.cfg.IdleRetirement)
		case <-idle.C:
			return
		}
	}
}

// handle runs one unit of work with panic isolation: a fault in one event's
// handler never affects other units or the submitting goroutine.
func (p *Pool) handle(ev event.NotificationEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while handling notification event",
				"recipient_id", ev.RecipientID,
				"kind", string(ev.Kind),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	p.handler(context.Background(), ev)
}
