// Package batch decouples execution logging from the instrumented hot path.
//
// Enqueue accepts a record and returns immediately; a single background
// goroutine accumulates records and flushes them to the store when a size
// threshold is reached or a flush interval elapses, whichever first. One
// channel feeding one flusher keeps records in FIFO order end to end, and
// guarantees at most one flush in flight.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/observe"
)

// ErrClosed is returned by Drain after the logger has shut down.
var ErrClosed = errors.New("batch logger closed")

// Appender is the slice of the storage gateway the logger writes through.
type Appender interface {
	Append(ctx context.Context, records ...core.ExecutionRecord) ([]string, error)
}

// Logger is the process-wide write-behind execution logger.
type Logger struct {
	store Appender
	sink  observe.Sink

	size         int
	interval     time.Duration
	flushTimeout time.Duration
	retries      uint64

	ch      chan core.ExecutionRecord
	drainCh chan chan struct{}
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

// Option tunes the logger.
type Option func(*Logger)

// WithBatchSize sets the flush size threshold.
func WithBatchSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.size = n
		}
	}
}

// WithFlushInterval sets the time-based flush trigger.
func WithFlushInterval(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithQueueSize bounds the enqueue buffer. Overflow drops records.
func WithQueueSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.ch = make(chan core.ExecutionRecord, n)
		}
	}
}

// WithRetries bounds how many times a failed flush is retried before the
// batch is dropped.
func WithRetries(n uint64) Option {
	return func(l *Logger) { l.retries = n }
}

// WithFlushTimeout bounds the total time one flush may spend, retries
// included.
func WithFlushTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.flushTimeout = d
		}
	}
}

// WithSink sets the observability sink for dropped records and failures.
func WithSink(sink observe.Sink) Option {
	return func(l *Logger) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// New creates a logger and starts its flush loop.
func New(store Appender, opts ...Option) *Logger {
	l := &Logger{
		store:        store,
		sink:         observe.NopSink{},
		size:         20,
		interval:     2 * time.Second,
		flushTimeout: 15 * time.Second,
		retries:      3,
		ch:           make(chan core.ExecutionRecord, 1024),
		drainCh:      make(chan chan struct{}),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Enqueue hands a record to the background flusher. It never blocks: when
// the buffer is full the record is dropped and reported.
func (l *Logger) Enqueue(rec core.ExecutionRecord) {
	select {
	case l.ch <- rec:
	default:
		l.sink.Report("log_queue_full", map[string]any{
			"error":         "queue full, record dropped",
			"function_name": rec.FunctionName,
		})
	}
}

// Drain blocks until every record enqueued before the call has been flushed
// (or dropped after exhausting retries). Used at shutdown and in tests.
func (l *Logger) Drain(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case l.drainCh <- ack:
	case <-l.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes what is buffered and stops the flush loop.
func (l *Logger) Close() {
	l.stop.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var buf []core.ExecutionRecord
	for {
		select {
		case rec := <-l.ch:
			buf = append(buf, rec)
			if len(buf) >= l.size {
				l.flush(&buf)
			}
		case <-ticker.C:
			l.flush(&buf)
		case ack := <-l.drainCh:
			l.takePending(&buf)
			l.flush(&buf)
			close(ack)
		case <-l.stopCh:
			l.takePending(&buf)
			l.flush(&buf)
			return
		}
	}
}

// takePending moves everything already sitting in the channel into the
// buffer without blocking.
func (l *Logger) takePending(buf *[]core.ExecutionRecord) {
	for {
		select {
		case rec := <-l.ch:
			*buf = append(*buf, rec)
		default:
			return
		}
	}
}

// flush writes the buffered batch with bounded retry and backoff. A batch
// that still fails is dropped and reported; it never blocks later enqueues
// beyond the flush timeout.
func (l *Logger) flush(buf *[]core.ExecutionRecord) {
	if len(*buf) == 0 {
		return
	}
	records := *buf
	*buf = nil

	ctx, cancel := context.WithTimeout(context.Background(), l.flushTimeout)
	defer cancel()

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), l.retries), ctx)
	err := backoff.Retry(func() error {
		_, err := l.store.Append(ctx, records...)
		return err
	}, policy)
	if err != nil {
		l.sink.Report("log_write_failure", map[string]any{
			"error":   err.Error(),
			"dropped": len(records),
		})
	}
}
