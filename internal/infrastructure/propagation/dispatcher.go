// Package propagation pushes newly created identities to downstream services.
//
// Delivery is best effort: callers enqueue and return immediately, failures
// are logged and counted but never reported back to the request.
package propagation

import (
	"context"
	"hash/fnv"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindnest/auth-service/internal/api/metrics"
	"github.com/mindnest/auth-service/internal/core/domain"
	"github.com/mindnest/auth-service/internal/core/ports"
)

const (
	defaultWorkers = 4
	defaultQueue   = 256
	defaultTimeout = 5 * time.Second
)

var _ ports.IdentityPropagator = (*Dispatcher)(nil)

// Result is the outcome of delivering one account to one target.
type Result struct {
	AccountID  string
	Target     string
	Trigger    ports.PropagationTrigger
	Outcome    Outcome
	StatusCode int
	Err        error
	Duration   time.Duration
}

// Config holds the dispatcher settings. Zero values select defaults.
type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds each downstream call.
	Timeout time.Duration
	Targets []Target
	Client  *http.Client
}

type job struct {
	account domain.Account
	trigger ports.PropagationTrigger
}

// Dispatcher routes propagation jobs to a fixed set of workers using
// consistent hashing on the account id, so jobs for one account are
// delivered in order.
type Dispatcher struct {
	workers  []chan job
	targets  []Target
	notifier *Notifier
	timeout  time.Duration
	outcomes chan Result
	log      zerolog.Logger

	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher. Workers do not run until Start.
func NewDispatcher(cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	d := &Dispatcher{
		workers:  make([]chan job, cfg.Workers),
		targets:  cfg.Targets,
		notifier: NewNotifier(cfg.Client),
		timeout:  cfg.Timeout,
		outcomes: make(chan Result, cfg.QueueSize),
		log:      log.With().Str("component", "propagation").Logger(),
		cancel:   func() {},
	}
	for i := range d.workers {
		d.workers[i] = make(chan job, cfg.QueueSize)
	}
	return d
}

// Start launches all worker goroutines. Cancelling ctx aborts in-flight
// calls and stops the workers without draining; use Stop for a graceful exit.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Propagate enqueues acc for delivery and returns immediately. When the
// worker's queue is full or the dispatcher is stopped the job is dropped.
func (d *Dispatcher) Propagate(acc domain.Account, trigger ports.PropagationTrigger) {
	acc.PasswordHash = ""

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.PropagationsDroppedTotal.WithLabelValues("stopped").Inc()
		d.log.Warn().Str("user_id", acc.ID).Str("trigger", string(trigger)).Msg("propagation dropped: dispatcher stopped")
		return
	}

	idx := d.shardIndex(acc.ID)
	select {
	case d.workers[idx] <- job{account: acc, trigger: trigger}:
		metrics.PropagationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.PropagationsDroppedTotal.WithLabelValues("queue_full").Inc()
		d.log.Warn().Str("user_id", acc.ID).Str("trigger", string(trigger)).Int("worker_id", idx).Msg("propagation dropped: queue full")
	}
}

// Outcomes exposes delivery results. Results are discarded when nobody
// keeps up with the channel.
func (d *Dispatcher) Outcomes() <-chan Result {
	return d.outcomes
}

// Stop refuses new jobs and waits for queued jobs to be delivered. If ctx
// expires first, in-flight calls are aborted and ctx.Err() is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

// shardIndex maps an account id deterministically to a worker index.
func (d *Dispatcher) shardIndex(accountID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan job) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-ch:
			if !ok {
				return
			}
			metrics.PropagationQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.deliver(ctx, id, j)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, workerID int, j job) {
	for _, t := range d.targets {
		if !t.Applies(j.account) {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		start := time.Now()
		outcome, status, err := d.notifier.Notify(callCtx, t, j.account)
		elapsed := time.Since(start)
		cancel()

		metrics.PropagationDuration.WithLabelValues(t.Name).Observe(elapsed.Seconds())
		metrics.PropagationsTotal.WithLabelValues(t.Name, string(j.trigger), string(outcome)).Inc()

		ev := d.log.Info()
		msg := "identity propagated"
		switch outcome {
		case OutcomeExists:
			msg = "identity already present downstream"
		case OutcomeFailed:
			ev = d.log.Warn().Err(err)
			msg = "identity propagation failed"
		}
		ev.Str("target", t.Name).
			Str("user_id", j.account.ID).
			Str("trigger", string(j.trigger)).
			Int("status", status).
			Int("worker_id", workerID).
			Dur("duration", elapsed).
			Msg(msg)

		d.publish(Result{
			AccountID:  j.account.ID,
			Target:     t.Name,
			Trigger:    j.trigger,
			Outcome:    outcome,
			StatusCode: status,
			Err:        err,
			Duration:   elapsed,
		})
	}
}

func (d *Dispatcher) publish(r Result) {
	select {
	case d.outcomes <- r:
	default:
	}
}
