// Package telemetry provides an asynchronous worker pool that records
// per-stream outcomes (frame counts, drops, duration) into the gateway's
// logger and Prometheus collectors.
//
// The pool decouples accounting from the transcoding hot path so that the
// client-gateway-backend interaction stays a single read/decode/write loop.
// No message content is recorded, only operational counts.
package telemetry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/obragco/relay/pkg/metrics"
)

var (
	defaultNumWorkers uint = 2
	defaultQueueSize  uint = 256
)

// StreamStats is the outcome of one answer stream's transcoding loop.
type StreamStats struct {
	// Outcome is one of the metrics outcome label values.
	Outcome string

	// FramesDecoded is the number of upstream frames successfully decoded.
	FramesDecoded int

	// FramesDropped is the number of malformed frames skipped.
	FramesDropped int

	// SoftErrors is the number of error records seen inside the stream.
	SoftErrors int

	// UnknownEvents is the number of records with an unrecognized type.
	UnknownEvents int

	// ContentBytes is the total byte length of forwarded text fragments.
	ContentBytes int

	// Duration is the wall-clock time from upstream connect to stream end.
	Duration time.Duration
}

// Config is the configuration options for the recorder pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Metrics receives the recorded counters.
	Metrics *metrics.Metrics

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Recorder processes stream accounting jobs asynchronously via a worker pool.
type Recorder struct {
	config *Config
	queue  chan StreamStats
	wg     sync.WaitGroup
	logger *zap.Logger

	// mu guards closed. Transcode goroutines detached from their connection
	// can outlive the server shutdown and still submit stats; those
	// submissions are dropped instead of hitting a closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates a Recorder and starts its worker goroutines.
func NewRecorder(c *Config) (*Recorder, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	r := &Recorder{
		config: c,
		queue:  make(chan StreamStats, c.QueueSize),
		logger: c.Logger,
	}

	r.wg.Add(int(c.NumWorkers))
	for i := uint(0); i < c.NumWorkers; i++ {
		go r.worker(i)
	}

	return r, nil
}

// Record submits stream stats for processing by the worker pool.
// Returns true if enqueued, false if the stats were dropped because the
// queue is full or the recorder has been closed.
func (r *Recorder) Record(stats StreamStats) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Debug("recorder closed, stats dropped",
			zap.String("outcome", stats.Outcome),
		)
		return false
	}

	select {
	case r.queue <- stats:
		return true
	default:
		r.logger.Warn("telemetry queue full, stats dropped",
			zap.String("outcome", stats.Outcome),
		)
		return false
	}
}

// Close signals workers to stop and waits for queued stats to drain.
// Safe to call more than once. Call this during graceful shutdown after
// the gateway HTTP server has stopped.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// worker continuously pulls stats off the queue.
func (r *Recorder) worker(id uint) {
	defer r.wg.Done()
	r.logger.Debug("telemetry worker started", zap.Uint("worker_id", id))

	for stats := range r.queue {
		r.process(stats)
	}

	r.logger.Debug("telemetry worker stopped", zap.Uint("worker_id", id))
}

// process applies one stream's stats to the collectors and logs a summary.
func (r *Recorder) process(stats StreamStats) {
	if m := r.config.Metrics; m != nil {
		m.ChatRequests.WithLabelValues(stats.Outcome).Inc()
		m.FramesDecoded.Add(float64(stats.FramesDecoded))
		m.FramesDropped.Add(float64(stats.FramesDropped))
		m.SoftErrors.Add(float64(stats.SoftErrors))
		m.UnknownEvents.Add(float64(stats.UnknownEvents))
		m.StreamDuration.Observe(stats.Duration.Seconds())
	}

	r.logger.Info("answer stream finished",
		zap.String("outcome", stats.Outcome),
		zap.Int("frames_decoded", stats.FramesDecoded),
		zap.Int("frames_dropped", stats.FramesDropped),
		zap.Int("soft_errors", stats.SoftErrors),
		zap.Int("unknown_events", stats.UnknownEvents),
		zap.Int("content_bytes", stats.ContentBytes),
		zap.Duration("duration", stats.Duration),
	)
}
