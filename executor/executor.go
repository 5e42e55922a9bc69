// Package executor implements C2, the batched executor: a semaphore of
// configurable size M wrapping arbitrary awaitable tasks, integrated with
// the C1 rate limiter so every task clears both a concurrency slot and a
// token before running.
//
// It generalizes the teacher's PlanExecutor.executeParallel (a semaphore
// channel plus a WaitGroup and a results channel) from routing-step-shaped
// work into any Task, and adds the rate-limiter handshake the teacher's
// executor never had.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/varunalfred/Finmentor-sub000/logging"
	"github.com/varunalfred/Finmentor-sub000/ratelimit"
)

// Telemetry receives one event per rate-limiter wait a task incurs before
// running, so the telemetry package can turn it into a counter/histogram
// without this package importing otel directly.
type Telemetry interface {
	RecordRateLimiterWait(ctx context.Context, waited time.Duration)
}

type noopTelemetry struct{}

func (noopTelemetry) RecordRateLimiterWait(context.Context, time.Duration) {}

// DefaultMaxConcurrency is M, per §4.2.
const DefaultMaxConcurrency = 2

// Task is one unit of work submitted to a batch. It must be safe to run on
// its own goroutine.
type Task func(ctx context.Context) (interface{}, error)

// Result is the outcome of a single task, returned in input order
// regardless of completion order.
type Result struct {
	Index int
	Value interface{}
	Err   error
}

// Executor runs batches of Tasks under a concurrency ceiling and a shared
// rate limiter.
type Executor struct {
	maxConcurrency int
	semaphore      chan struct{}
	limiter        *ratelimit.Limiter
	logger         logging.Logger
	telemetry      Telemetry
}

// New builds an Executor. maxConcurrency <= 0 falls back to
// DefaultMaxConcurrency. limiter may be nil, in which case tasks only wait
// on the semaphore.
func New(maxConcurrency int, limiter *ratelimit.Limiter, logger logging.Logger) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Executor{
		maxConcurrency: maxConcurrency,
		semaphore:      make(chan struct{}, maxConcurrency),
		limiter:        limiter,
		logger:         logger,
		telemetry:      noopTelemetry{},
	}
}

// SetTelemetry binds a Telemetry sink, e.g. telemetry.Provider, so every
// rate-limiter wait this Executor incurs is also recorded as a metric.
func (e *Executor) SetTelemetry(t Telemetry) {
	if t == nil {
		t = noopTelemetry{}
	}
	e.telemetry = t
}

// ExecuteBatch runs every task with at most maxConcurrency running at once,
// each acquiring a semaphore slot and one rate-limiter token before it
// starts, and returns results in input order. A single task's failure is
// surfaced in its own Result and never aborts its peers.
func (e *Executor) ExecuteBatch(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()

			select {
			case e.semaphore <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{Index: i, Err: ctx.Err()}
				return
			}
			defer func() { <-e.semaphore }()

			if e.limiter != nil {
				waitStart := time.Now()
				err := e.limiter.Acquire(ctx, 1)
				e.telemetry.RecordRateLimiterWait(ctx, time.Since(waitStart))
				if err != nil {
					results[i] = Result{Index: i, Err: err}
					return
				}
			}

			value, err := task(ctx)
			if err != nil {
				e.logger.Error("batched task failed", map[string]interface{}{
					"index": i,
					"error": err.Error(),
				})
			}
			results[i] = Result{Index: i, Value: value, Err: err}
		}(i, task)
	}

	wg.Wait()
	return results
}

// SetMaxConcurrency replaces the semaphore with one of the new size. Not
// safe to call concurrently with an in-flight ExecuteBatch.
func (e *Executor) SetMaxConcurrency(max int) {
	if max <= 0 {
		max = 1
	}
	e.maxConcurrency = max
	e.semaphore = make(chan struct{}, max)
}

func (e *Executor) MaxConcurrency() int { return e.maxConcurrency }
