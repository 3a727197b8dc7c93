package sink

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// DefaultQueueSize bounds the number of pending batches between the workers
// and the writer goroutine.
const DefaultQueueSize = 1024

// ErrSinkFailed wraps every I/O error seen by the writer. Once a sink failed
// the measurement is incomplete and the run must not be reported as a success.
var ErrSinkFailed = errors.New("result sink failed")

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("result sink closed")

type Option func(*Sink)

// WithQueueSize sets the capacity of the bounded channel feeding the writer.
func WithQueueSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithClock replaces time.Now for stamping samples that carry no timestamp.
// Samples with a timestamp are written as they are.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// WithCompressionLevel sets the gzip level (gzip.BestSpeed .. gzip.BestCompression).
func WithCompressionLevel(level int) Option {
	return func(s *Sink) { s.level = level }
}

// Sink serializes samples from any number of goroutines into a single gzip
// compressed CSV stream. A single goroutine owns the writer; producers hand
// batches over a bounded channel, so one request's samples stay contiguous.
type Sink struct {
	queueSize int
	level     int
	now       func() time.Time

	ch     chan []Sample
	done   chan struct{}
	failed chan struct{}

	mu     sync.Mutex
	err    error
	closed bool

	closeOnce sync.Once
	failOnce  sync.Once

	written uint64

	// owned by the writer goroutine
	gz     *gzip.Writer
	csv    *csv.Writer
	closer io.Closer
	last   time.Time
	row    []string
}

// New starts a sink writing to w. The caller keeps ownership of w.
func New(w io.Writer, opts ...Option) (*Sink, error) {
	return newSink(w, nil, opts...)
}

// Create truncates (or creates) path and starts a sink writing to it. The
// file is closed by Close.
func Create(path string, opts ...Option) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create result file %s", path)
	}
	s, err := newSink(f, f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func newSink(w io.Writer, closer io.Closer, opts ...Option) (*Sink, error) {
	s := &Sink{
		queueSize: DefaultQueueSize,
		level:     gzip.DefaultCompression,
		now:       time.Now,
		done:      make(chan struct{}),
		failed:    make(chan struct{}),
		closer:    closer,
	}
	for _, opt := range opts {
		opt(s)
	}

	gz, err := gzip.NewWriterLevel(w, s.level)
	if err != nil {
		return nil, errors.Wrap(err, "init gzip writer")
	}
	s.gz = gz
	s.csv = csv.NewWriter(gz)
	s.ch = make(chan []Sample, s.queueSize)
	s.row = make([]string, 0, len(Header))

	go s.loop()
	return s, nil
}

// Write hands samples to the writer goroutine. It blocks while the queue is
// full and returns an error wrapping ErrSinkFailed once the writer failed.
// The slice must not be modified after the call.
func (s *Sink) Write(ctx context.Context, samples ...Sample) error {
	if len(samples) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	select {
	case s.ch <- samples:
		return nil
	case <-s.failed:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed is closed when the writer hits an I/O error.
func (s *Sink) Failed() <-chan struct{} {
	return s.failed
}

// Err returns the first fatal error, if any.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Written returns the number of samples handed to the CSV encoder.
func (s *Sink) Written() uint64 {
	return atomic.LoadUint64(&s.written)
}

// Close drains pending samples, flushes the CSV and gzip streams and closes
// the file. All producers must have returned before Close is called.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.ch)
		<-s.done

		if s.Err() == nil {
			s.csv.Flush()
			if err := s.csv.Error(); err != nil {
				s.fail(err)
			}
		}
		if err := s.gz.Close(); err != nil {
			s.fail(err)
		}
		if s.closer != nil {
			if err := s.closer.Close(); err != nil {
				s.fail(err)
			}
		}
	})
	return s.Err()
}

func (s *Sink) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.err = errors.Wrap(ErrSinkFailed, err.Error())
		s.mu.Unlock()
		close(s.failed)
	})
}

func (s *Sink) loop() {
	defer close(s.done)

	s.csv.Write(Header)
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		s.fail(err)
	}
	for batch := range s.ch {
		if s.Err() != nil {
			// keep draining so blocked producers are released
			continue
		}
		observed := s.observe()
		for _, smp := range batch {
			if smp.Time.IsZero() {
				smp.Time = observed
			}
			s.row = encode(smp, s.row)
			if err := s.csv.Write(s.row); err != nil {
				s.fail(err)
				break
			}
			atomic.AddUint64(&s.written, 1)
		}
		s.csv.Flush()
		if err := s.csv.Error(); err != nil {
			s.fail(err)
		}
	}
}

// observe returns the time the writer takes a batch off the queue. Every
// sample of the batch without its own time is stamped with it. Observations
// never go backwards, even when the wall clock is stepped.
func (s *Sink) observe() time.Time {
	t := s.now().Truncate(time.Microsecond)
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}
