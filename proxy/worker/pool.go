// Package worker provides an asynchronous worker pool that verifies pool
// credentials against the backend and feeds the results back into pool
// health and metrics.
//
// The pool decouples verification from the relay's HTTP hot path: dashboard
// verify requests enqueue and return immediately while workers probe the
// backend in the background.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zrelay/zrelay/pkg/metrics"
	"github.com/zrelay/zrelay/pkg/tokenpool"
	"github.com/zrelay/zrelay/pkg/upstream"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 64
	defaultCheckTimeout      = 15 * time.Second
)

// Verifier probes the backend with a credential. The model catalog endpoint
// doubles as the cheapest authenticated call.
type Verifier interface {
	Models(ctx context.Context, token string) (*upstream.ModelsResponse, error)
}

// Job is one credential to verify.
type Job struct {
	Token string
}

// Config is the configuration options for the verification pool.
type Config struct {
	// Pool receives the health outcome of each check.
	Pool *tokenpool.Pool

	// Verifier issues the backend probe.
	Verifier Verifier

	// Metrics optionally records each check as a call outcome.
	Metrics *metrics.Recorder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel.
	QueueSize uint

	// Timeout bounds a single backend probe.
	Timeout time.Duration

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool verifies credentials asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Pool == nil {
		return nil, errors.New("token pool is required")
	}
	if c.Verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultCheckTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := uint(0); i < c.NumWorkers; i++ {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a credential check. Returns true if enqueued, false if
// the queue is full and the job was dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		return true
	default:
		p.logger.Warn("verification queue full, job dropped")
		return false
	}
}

// EnqueueAll submits a check for every credential currently in the token
// pool and returns how many were accepted.
func (p *Pool) EnqueueAll() int {
	accepted := 0
	for _, token := range p.config.Pool.Tokens() {
		if p.Enqueue(Job{Token: token}) {
			accepted++
		}
	}
	return accepted
}

// Close signals workers to stop and waits for in-flight checks to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker continuously pulls jobs off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("verification worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("verification worker stopped", zap.Uint("worker_id", id))
}

// processJob probes the backend with the job's credential and reports the
// outcome to pool health and metrics.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	identity, _ := p.config.Pool.IdentityOf(job.Token)
	start := time.Now()

	_, err := p.config.Verifier.Models(ctx, job.Token)

	status := 200
	var statusErr *upstream.StatusError
	switch {
	case err == nil:
		p.config.Pool.MarkSuccess(job.Token)
	case errors.As(err, &statusErr):
		status = statusErr.Status
		if statusErr.AuthFailure() {
			p.config.Pool.MarkFailure(job.Token)
			p.logger.Warn("credential check failed auth",
				zap.String("identity", identity),
				zap.Int("status", status),
			)
		}
	default:
		// Transport faults say nothing about the credential itself.
		status = 0
		p.logger.Warn("credential check errored",
			zap.String("identity", identity),
			zap.Error(err),
		)
	}

	if p.config.Metrics != nil {
		rec := metrics.Record{
			Method:   "VERIFY",
			Path:     "/api/models",
			Status:   status,
			Duration: time.Since(start),
			Identity: identity,
			Source:   metrics.SourcePool,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		p.config.Metrics.Observe(rec)
	}
}
