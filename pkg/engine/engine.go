// Package engine runs mapping requests in the background: single requests
// as futures, time series as an ordered pipeline and independent files as
// a bounded batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"cortexmap/internal/models"
	"cortexmap/pkg/mapping"
)

// Engine bounds the number of mapping requests computing at once and
// applies an optional per-request timeout. It holds no request state.
type Engine struct {
	timeout time.Duration
	slots   *semaphore.Weighted
	logger  *zap.Logger
}

// New creates an engine running at most workers requests at once. A
// non-positive workers means NumCPU; a zero timeout means none.
func New(workers int, timeout time.Duration, logger *zap.Logger) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		timeout: timeout,
		slots:   semaphore.NewWeighted(int64(workers)),
		logger:  logger,
	}
}

// Future is the pending response of a submitted request.
type Future struct {
	done   chan struct{}
	result *models.MappingResult
	err    error
}

// Done is closed when the response is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the response is available or ctx ends. Giving up on a
// future does not stop its request.
func (f *Future) Wait(ctx context.Context) (*models.MappingResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit starts a request in the background and returns its future.
func (e *Engine) Submit(ctx context.Context, mc *mapping.Context, req mapping.Request) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.result, f.err = e.run(ctx, mc, req)
	}()
	return f
}

// Map submits a request and waits for its response.
func (e *Engine) Map(ctx context.Context, mc *mapping.Context, req mapping.Request) (*models.MappingResult, error) {
	return e.Submit(ctx, mc, req).Wait(ctx)
}

func (e *Engine) run(ctx context.Context, mc *mapping.Context, req mapping.Request) (*models.MappingResult, error) {
	start := time.Now()
	result, err := e.compute(ctx, mc, req)
	if errors.Is(err, context.DeadlineExceeded) {
		e.logger.Warn("Mapping request timed out",
			zap.Stringer("request", req),
			zap.Duration("timeout", e.timeout))
		return nil, &models.Error{
			Kind:      models.MappingError,
			Message:   fmt.Sprintf("mapping %s ran past its deadline", req),
			Transient: true,
			Err:       err,
		}
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Mapping request completed",
		zap.Stringer("request", req),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// compute runs the request in a worker slot under the engine timeout.
func (e *Engine) compute(ctx context.Context, mc *mapping.Context, req mapping.Request) (result *models.MappingResult, err error) {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.slots.Release(1)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = models.NewMappingError("mapping %s panicked: %v", req, r)
		}
	}()

	return mc.Run(ctx, req)
}

// SeriesResult is one element of a time-series stream.
type SeriesResult struct {
	Time   int
	Result *models.MappingResult
	Err    error
}

// Stream runs a time series strictly in ascending time order, one request
// at a time, and delivers the responses in that order. The stream stops
// after the first failure. The channel is closed when the series ends.
func (e *Engine) Stream(ctx context.Context, mc *mapping.Context, reqs []mapping.Request) <-chan SeriesResult {
	out := make(chan SeriesResult)
	ordered := orderByTime(reqs)

	go func() {
		defer close(out)
		for _, req := range ordered {
			res, err := e.run(ctx, mc, req)
			select {
			case out <- SeriesResult{Time: req.Time, Result: res, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// Series runs a time series and returns the responses in time order. Time
// points must be distinct. No partial result is returned on failure.
func (e *Engine) Series(ctx context.Context, mc *mapping.Context, reqs []mapping.Request) ([]*models.MappingResult, error) {
	if len(reqs) == 0 {
		return nil, models.NewMappingError("time series has no requests")
	}
	seen := make(map[int]bool, len(reqs))
	for _, req := range reqs {
		if seen[req.Time] {
			return nil, models.NewMappingError("time point %d appears more than once", req.Time)
		}
		seen[req.Time] = true
	}

	results := make([]*models.MappingResult, 0, len(reqs))
	for sr := range e.Stream(ctx, mc, reqs) {
		if sr.Err != nil {
			return nil, fmt.Errorf("time point %d: %w", sr.Time, sr.Err)
		}
		results = append(results, sr.Result)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Info("Time series completed", zap.Int("timePoints", len(results)))
	return results, nil
}

func orderByTime(reqs []mapping.Request) []mapping.Request {
	ordered := make([]mapping.Request, len(reqs))
	copy(ordered, reqs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time })
	return ordered
}

// Job is one independent request of a batch.
type Job struct {
	Name    string
	Context *mapping.Context
	Request mapping.Request
}

// JobResult is the outcome of one batch job.
type JobResult struct {
	Name   string
	Result *models.MappingResult
	Err    error
}

// Batch runs independent jobs with at most concurrency of them in flight.
// A failed job does not stop the others; results keep the job order.
func (e *Engine) Batch(ctx context.Context, jobs []Job, concurrency int) []JobResult {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]JobResult, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for i, job := range jobs {
		eg.Go(func() error {
			res, err := e.run(egCtx, job.Context, job.Request)
			if err != nil {
				e.logger.Warn("Batch job failed", zap.String("job", job.Name), zap.Error(err))
			}
			results[i] = JobResult{Name: job.Name, Result: res, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	return results
}
