// Package metrics aggregates per-call outcomes for the relay: rolling
// totals, a fixed window of recent calls, and success/failure counters
// keyed by credential identity. An optional Prometheus mirror exposes the
// same outcomes as counter and histogram series.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// recentCapacity bounds the rolling window of retained call records.
const recentCapacity = 100

// Source tags stand in for a credential identity when the call was not
// authenticated by a pool credential.
const (
	SourcePool      = "pool"
	SourceStatic    = "static"
	SourceAnonymous = "anonymous"
	SourceNone      = "none"
)

// latencyBuckets covers upstream inference latencies from 100ms to 120s.
var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Record is one completed call. Status 0 means the call produced no HTTP
// status (transport failure or client cancellation).
type Record struct {
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Status     int           `json:"status,omitempty"`
	Duration   time.Duration `json:"duration"`
	ClientAddr string        `json:"client_addr"`

	// Identity is the credential identity that served the call, when one
	// exists. Source classifies the call otherwise.
	Identity string `json:"identity,omitempty"`
	Source   string `json:"source,omitempty"`

	Error string `json:"error,omitempty"`
}

// key returns the breakdown key for the record: the credential identity,
// or the source tag when no identity is available.
func (r Record) key() string {
	if r.Identity != "" {
		return r.Identity
	}
	if r.Source != "" {
		return r.Source
	}
	return SourceNone
}

// success classifies the outcome: a present status in [200, 400).
func (r Record) success() bool {
	return r.Status >= 200 && r.Status < 400
}

// KeyStats is the per-key success/failure breakdown.
type KeyStats struct {
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
}

// Snapshot is a point-in-time copy of the recorder state.
type Snapshot struct {
	Requests    uint64              `json:"requests"`
	Success     uint64              `json:"success"`
	Failure     uint64              `json:"failure"`
	AvgDuration time.Duration       `json:"avg_duration"`
	Recent      []Record            `json:"recent"`
	Keys        map[string]KeyStats `json:"keys"`
}

// Recorder aggregates call outcomes under one mutex. It never calls out to
// other components; callers feed it completed Records and read Snapshots.
type Recorder struct {
	mu sync.Mutex

	requests uint64
	success  uint64
	failure  uint64
	duration time.Duration

	// recent is a ring; head indexes the newest record, count the number
	// of occupied slots.
	recent [recentCapacity]Record
	head   int
	count  int

	keys map[string]KeyStats

	promRequests *prometheus.CounterVec
	promDuration prometheus.Histogram

	logger *zap.Logger
}

// New creates a Recorder. When reg is non-nil the recorder also registers
// Prometheus series on it and mirrors every Record into them.
func New(reg prometheus.Registerer, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{
		keys:   make(map[string]KeyStats),
		logger: logger,
	}

	if reg != nil {
		r.promRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zrelay_requests_total",
				Help: "Completed relay calls by outcome and credential source",
			},
			[]string{"outcome", "source"},
		)
		r.promDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zrelay_request_duration_seconds",
				Help:    "Relay call duration",
				Buckets: latencyBuckets,
			},
		)
		reg.MustRegister(r.promRequests, r.promDuration)
	}

	return r
}

// Observe folds one completed call into the aggregate.
func (r *Recorder) Observe(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	ok := rec.success()
	key := rec.key()

	r.mu.Lock()

	r.requests++
	r.duration += rec.Duration
	stats := r.keys[key]
	if ok {
		r.success++
		stats.Success++
	} else {
		r.failure++
		stats.Failure++
	}
	r.keys[key] = stats

	r.head = (r.head + recentCapacity - 1) % recentCapacity
	r.recent[r.head] = rec
	if r.count < recentCapacity {
		r.count++
	}

	r.mu.Unlock()

	if r.promRequests != nil {
		outcome := "failure"
		if ok {
			outcome = "success"
		}
		source := rec.Source
		if source == "" {
			source = SourceNone
		}
		r.promRequests.WithLabelValues(outcome, source).Inc()
		r.promDuration.Observe(rec.Duration.Seconds())
	}
}

// Snapshot returns a deep copy of the aggregate state. Recent records are
// ordered newest first.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Requests: r.requests,
		Success:  r.success,
		Failure:  r.failure,
		Recent:   make([]Record, r.count),
		Keys:     make(map[string]KeyStats, len(r.keys)),
	}
	if r.requests > 0 {
		snap.AvgDuration = r.duration / time.Duration(r.requests)
	}
	for i := 0; i < r.count; i++ {
		snap.Recent[i] = r.recent[(r.head+i)%recentCapacity]
	}
	for k, v := range r.keys {
		snap.Keys[k] = v
	}

	return snap
}
