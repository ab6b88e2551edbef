/*
PURPOSE:
  Decouples the producer of incremental-unit updates from the slow,
  serialized file I/O that persists them.

REQUIREMENTS:
  User-specified:
  - Ingest never blocks on I/O and never fails.
  - Output is one well-formed JSON array in exact acceptance order.
  - Shutdown drains everything already queued before closing the file.

  Implementation-discovered:
  - Two-phase start so the owner gets a handle to await (Wait/Close).
  - Wake-on-push instead of sleep polling; see queue.go.
  - Ingest after RequestShutdown is dropped, which bounds shutdown by the
    queue depth at the time of the request.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (replay), internal/server (serve)
  - Uses: internal/filter, internal/model, json.go, queue.go

ERROR HANDLING:
  - Empty filename or bad filter config: returned from NewBufferedWriter.
  - Open/write/close failures are fatal to the worker, not retried, and
    returned from Wait. The file is left unterminated.

IMPLEMENTATION RULES:
  - Exactly one worker goroutine owns the stream.
  - Flush the bufio.Writer whenever the queue runs dry.

USAGE:
  w, err := output.NewBufferedWriter(output.Options{Filename: "session"})
  w.Start()
  w.Ingest(batch)
  err = w.Close(ctx)

SELF-HEALING INSTRUCTIONS:
  - If records go missing at shutdown, check the gate lock in Ingest.

RELATED FILES:
  - internal/output/json.go
  - internal/output/queue.go
  - internal/filter/filter.go

MAINTENANCE:
  - Keep Stats in sync with the /v1/stats response.
*/

package output

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/daryltucker/iulog/internal/filter"
	"github.com/daryltucker/iulog/internal/model"
)

var (
	ErrInvalidFilename = errors.New("output filename must not be empty")
	ErrAlreadyStarted  = errors.New("writer already started")
	ErrNotStarted      = errors.New("writer not started")
)

// OpenFunc opens the output stream for writing.
// This allows tests to inject slow or failing streams.
type OpenFunc func(path string) (io.WriteCloser, error)

// Options configures a BufferedWriter.
type Options struct {
	Filename string
	Filter   filter.Config
	// Indent writes each record with two-space indentation.
	Indent bool
	// Open defaults to CreateFile.
	Open OpenFunc
}

// Stats is a point-in-time snapshot of the writer counters.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Dropped  int64 `json:"dropped"`
	Written  int64 `json:"written"`
	Pending  int   `json:"pending"`
}

// BufferedWriter accepts updates on any goroutine and writes them to a JSON
// array file from a single background worker.
type BufferedWriter struct {
	path   string
	indent bool
	open   OpenFunc
	filter *filter.Filter
	queue  *queue

	// gate orders Ingest against RequestShutdown so that nothing is pushed
	// after the worker may have observed the final empty queue.
	gate         sync.RWMutex
	shuttingDown bool
	shutdownOnce sync.Once
	shutdown     chan struct{}

	started atomic.Bool
	failed  atomic.Bool
	done    chan struct{}
	err     error

	accepted   atomic.Int64
	rejected   atomic.Int64
	dropped    atomic.Int64
	written    atomic.Int64
	dropLogged atomic.Bool
}

// NewBufferedWriter validates opts and builds the writer. The worker is not
// running until Start is called; Ingest may be called before that.
func NewBufferedWriter(opts Options) (*BufferedWriter, error) {
	path, err := NormalizeFilename(opts.Filename)
	if err != nil {
		return nil, err
	}
	f, err := filter.New(opts.Filter)
	if err != nil {
		return nil, err
	}
	open := opts.Open
	if open == nil {
		open = CreateFile
	}
	return &BufferedWriter{
		path:     path,
		indent:   opts.Indent,
		open:     open,
		filter:   f,
		queue:    newQueue(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// NormalizeFilename appends ".json" unless name already ends with it.
func NormalizeFilename(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrInvalidFilename
	}
	if strings.HasSuffix(name, ".json") {
		return name, nil
	}
	return name + ".json", nil
}

// CreateFile creates (or truncates) path, creating parent directories.
func CreateFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// Path returns the normalized output path.
func (w *BufferedWriter) Path() string {
	return w.path
}

// Start launches the background worker.
func (w *BufferedWriter) Start() error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	Logger.Debug("Writer starting", "path", w.path)
	go w.run()
	return nil
}

// Ingest filters the batch and queues accepted updates in order. It returns
// the number of updates accepted.
func (w *BufferedWriter) Ingest(batch []model.Update) int {
	accepted := make([]model.Update, 0, len(batch))
	for _, up := range batch {
		if w.filter.Accepts(up.Unit, up.Kind) {
			accepted = append(accepted, up)
		}
	}
	w.rejected.Add(int64(len(batch) - len(accepted)))
	if len(accepted) == 0 {
		return 0
	}

	w.gate.RLock()
	defer w.gate.RUnlock()
	if w.shuttingDown || w.failed.Load() {
		w.dropped.Add(int64(len(accepted)))
		if w.dropLogged.CompareAndSwap(false, true) {
			Logger.Warn("Dropping updates ingested after shutdown", "path", w.path, "count", len(accepted))
		}
		return 0
	}
	w.queue.push(accepted...)
	w.accepted.Add(int64(len(accepted)))
	return len(accepted)
}

// RequestShutdown asks the worker to drain the queue and close the file.
// It returns immediately; use Wait to block until the file is closed.
func (w *BufferedWriter) RequestShutdown() {
	w.shutdownOnce.Do(func() {
		w.gate.Lock()
		w.shuttingDown = true
		w.gate.Unlock()
		close(w.shutdown)
		Logger.Debug("Writer shutdown requested", "path", w.path, "pending", w.queue.len())
	})
}

// Wait blocks until the worker has exited and returns its fatal error, if any.
func (w *BufferedWriter) Wait() error {
	if !w.started.Load() {
		return ErrNotStarted
	}
	<-w.done
	return w.err
}

// Close requests shutdown and waits for the drain to finish or ctx to expire.
// An expired ctx only stops the wait; the worker keeps draining.
func (w *BufferedWriter) Close(ctx context.Context) error {
	w.RequestShutdown()
	if !w.started.Load() {
		return ErrNotStarted
	}
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the worker exits.
func (w *BufferedWriter) Done() <-chan struct{} {
	return w.done
}

// Stats returns the current counters.
func (w *BufferedWriter) Stats() Stats {
	return Stats{
		Accepted: w.accepted.Load(),
		Rejected: w.rejected.Load(),
		Dropped:  w.dropped.Load(),
		Written:  w.written.Load(),
		Pending:  w.queue.len(),
	}
}

func (w *BufferedWriter) run() {
	defer close(w.done)

	if err := w.drain(); err != nil {
		w.err = err
		w.failed.Store(true)
		Logger.Error("Writer failed", "path", w.path, "written", w.written.Load(), "error", err)
		return
	}
	Logger.Info("Writer closed", "path", w.path, "written", w.written.Load())
}

// drain owns the stream for the writer's lifetime.
func (w *BufferedWriter) drain() error {
	f, err := w.open(w.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	bw := bufio.NewWriter(f)
	enc := NewArrayEncoder(bw, w.indent)

	fail := func(op string, err error) error {
		// Flush what we can; the file stays unterminated.
		bw.Flush()
		f.Close()
		return fmt.Errorf("failed to %s %s: %w", op, w.path, err)
	}

	if err := enc.Begin(); err != nil {
		return fail("write", err)
	}

	for {
		if up, ok := w.queue.pop(); ok {
			if err := enc.Encode(model.NewRecord(up)); err != nil {
				return fail("write", err)
			}
			w.written.Add(1)
			continue
		}

		// Queue is dry: make the file catch up before sleeping.
		if err := bw.Flush(); err != nil {
			return fail("flush", err)
		}

		select {
		case <-w.queue.ready:
		case <-w.shutdown:
			if w.queue.len() == 0 {
				return w.finish(enc, bw, f)
			}
		}
	}
}

func (w *BufferedWriter) finish(enc *ArrayEncoder, bw *bufio.Writer, f io.WriteCloser) error {
	if err := enc.End(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush %s: %w", w.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, err)
	}
	return nil
}
