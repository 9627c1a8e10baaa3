// Package pipe provides an in-memory byte pipe whose reader consumes data in
// segments and acknowledges it explicitly, so a relay can forward exactly the
// bytes it has read and leave the rest for a later drain.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrReaderCompleted is returned to writers once the reading side is gone.
	ErrReaderCompleted = errors.New("pipe: reader completed")
	// ErrWriterCompleted is returned when writing after the writer completed.
	ErrWriterCompleted = errors.New("pipe: writer completed")
)

// Options tunes the backpressure of a Pipe.
type Options struct {
	// PauseThreshold is the amount of unread bytes at which Write blocks.
	// Zero disables backpressure.
	PauseThreshold int64
	// ResumeThreshold is the amount of unread bytes at which blocked writers
	// are released again.
	ResumeThreshold int64
}

// DefaultOptions matches a 64KiB window.
var DefaultOptions = Options{
	PauseThreshold:  64 * 1024,
	ResumeThreshold: 32 * 1024,
}

// ReadResult is one chunk handed to the reader.
type ReadResult struct {
	Segments  [][]byte
	Completed bool // writer completed; no data will follow Segments
	Canceled  bool // CancelPendingRead was called
}

// Len returns the number of bytes in the chunk.
func (r ReadResult) Len() int {
	n := 0
	for _, s := range r.Segments {
		n += len(s)
	}
	return n
}

// Bytes concatenates the segments.
func (r ReadResult) Bytes() []byte {
	b := make([]byte, 0, r.Len())
	for _, s := range r.Segments {
		b = append(b, s...)
	}
	return b
}

// Pipe is a single-reader single-writer byte pipe.
type Pipe struct {
	mu   sync.Mutex
	opts Options

	segs   [][]byte
	unread int64

	writerDone bool
	writerErr  error
	readerDone bool
	readerErr  error
	canceled   bool

	readable chan struct{}
	writable chan struct{}

	reader *Reader
	writer *Writer
}

// New creates a pipe.
func New(opts Options) *Pipe {
	if opts.ResumeThreshold > opts.PauseThreshold {
		opts.ResumeThreshold = opts.PauseThreshold
	}
	p := &Pipe{
		opts:     opts,
		readable: make(chan struct{}),
		writable: make(chan struct{}),
	}
	p.reader = &Reader{p: p}
	p.writer = &Writer{p: p}
	return p
}

// Reader returns the reading end.
func (p *Pipe) Reader() *Reader { return p.reader }

// Writer returns the writing end.
func (p *Pipe) Writer() *Writer { return p.writer }

// Unread returns the number of buffered bytes not yet acknowledged.
func (p *Pipe) Unread() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unread
}

// signalReadable and signalWritable must be called with mu held.
func (p *Pipe) signalReadable() {
	close(p.readable)
	p.readable = make(chan struct{})
}

func (p *Pipe) signalWritable() {
	close(p.writable)
	p.writable = make(chan struct{})
}

// snapshot must be called with mu held.
func (p *Pipe) snapshot() ReadResult {
	segs := make([][]byte, len(p.segs))
	copy(segs, p.segs)
	return ReadResult{
		Segments:  segs,
		Completed: p.writerDone,
	}
}

// Reader is the consuming end of a Pipe.
type Reader struct {
	p *Pipe
}

// Read blocks until data is available, the writer completed, or a pending
// read is canceled. ctx only interrupts the wait.
func (r *Reader) Read(ctx context.Context) (ReadResult, error) {
	p := r.p
	for {
		p.mu.Lock()
		res, ok, err := r.poll()
		wait := p.readable
		p.mu.Unlock()
		if err != nil || ok {
			return res, err
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return ReadResult{}, ctx.Err()
		}
	}
}

// TryRead returns whatever is available without waiting. ok is false when
// there is nothing to hand out.
func (r *Reader) TryRead() (res ReadResult, ok bool) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	res, ok, err := r.poll()
	if err != nil {
		return ReadResult{Completed: true}, true
	}
	return res, ok
}

// poll must be called with mu held.
func (r *Reader) poll() (ReadResult, bool, error) {
	p := r.p
	if p.readerDone {
		return ReadResult{}, false, ErrReaderCompleted
	}
	if p.canceled {
		p.canceled = false
		res := p.snapshot()
		res.Canceled = true
		return res, true, nil
	}
	if p.unread > 0 {
		return p.snapshot(), true, nil
	}
	if p.writerDone {
		if p.writerErr != nil {
			return ReadResult{Completed: true}, false, p.writerErr
		}
		return ReadResult{Completed: true}, true, nil
	}
	return ReadResult{}, false, nil
}

// AdvanceTo acknowledges the first consumed bytes of the buffered data.
func (r *Reader) AdvanceTo(consumed int) {
	if consumed <= 0 {
		return
	}
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if int64(consumed) > p.unread {
		panic(fmt.Sprintf("pipe: advance %d beyond %d unread bytes", consumed, p.unread))
	}
	p.unread -= int64(consumed)
	for consumed > 0 {
		head := p.segs[0]
		if len(head) > consumed {
			p.segs[0] = head[consumed:]
			break
		}
		consumed -= len(head)
		p.segs[0] = nil
		p.segs = p.segs[1:]
	}
	if p.opts.PauseThreshold == 0 || p.unread <= p.opts.ResumeThreshold {
		p.signalWritable()
	}
}

// CancelPendingRead makes the current or next Read return with Canceled set.
func (r *Reader) CancelPendingRead() {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = true
	p.signalReadable()
}

// Complete ends the reading side. Buffered data is dropped and writers fail
// with ErrReaderCompleted wrapping cause.
func (r *Reader) Complete(cause error) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readerDone {
		return
	}
	p.readerDone = true
	p.readerErr = cause
	p.segs = nil
	p.unread = 0
	p.signalWritable()
	p.signalReadable()
}

// Writer is the producing end of a Pipe.
type Writer struct {
	p *Pipe
}

// Write copies b into the pipe, waiting for room when the reader lags behind.
// ctx only interrupts the wait.
func (w *Writer) Write(ctx context.Context, b []byte) error {
	p := w.p
	for {
		p.mu.Lock()
		if p.readerDone {
			err := p.readerErr
			p.mu.Unlock()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrReaderCompleted, err)
			}
			return ErrReaderCompleted
		}
		if p.writerDone {
			p.mu.Unlock()
			return ErrWriterCompleted
		}
		if p.opts.PauseThreshold == 0 || p.unread < p.opts.PauseThreshold {
			break
		}
		wait := p.writable
		p.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer p.mu.Unlock()

	if len(b) == 0 {
		return nil
	}
	seg := make([]byte, len(b))
	copy(seg, b)
	p.segs = append(p.segs, seg)
	p.unread += int64(len(seg))
	p.signalReadable()
	return nil
}

// Complete ends the writing side. A non-nil cause is reported to the reader
// after the buffered data.
func (w *Writer) Complete(cause error) {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writerDone {
		return
	}
	p.writerDone = true
	p.writerErr = cause
	p.signalReadable()
}

// ReaderErr returns the cause the reader completed with, if any.
func (w *Writer) ReaderErr() error {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readerErr
}
