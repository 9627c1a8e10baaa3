package pump

import (
	"context"
	"io"
	"time"

	"github.com/beyondstorage/beyond-relay/pipe"
)

// aLongTimeAgo is a deadline that makes pending socket calls return at once.
var aLongTimeAgo = time.Unix(1, 0)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// interruptOn sets a deadline in the past once ctx is done. The returned func
// clears it again if it was set, waiting for a callback still in progress so
// the clear always lands last.
func interruptOn(ctx context.Context, setDeadline func(time.Time) error) func() {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = setDeadline(aLongTimeAgo)
	})
	return func() {
		if !stop() {
			<-fired
			_ = setDeadline(time.Time{})
		}
	}
}

// StreamSource reads chunks from an io.Reader. When the reader supports read
// deadlines (e.g. net.Conn) a canceled context interrupts a pending read;
// otherwise the read returns on its own, typically when the stream closes.
//
// A StreamSource is used by a single pump goroutine and is not safe for
// concurrent use.
type StreamSource struct {
	r   io.Reader
	buf []byte

	pending []byte
	eof     bool
	err     error
	cause   error
	done    bool
}

// NewStreamSource creates a source reading at most size bytes at a time.
func NewStreamSource(r io.Reader, size int) *StreamSource {
	if size <= 0 {
		size = 32 * 1024
	}
	return &StreamSource{r: r, buf: make([]byte, size)}
}

// Read implements Source.
func (s *StreamSource) Read(ctx context.Context) (pipe.ReadResult, error) {
	if res, ok := s.TryRead(); ok {
		return res, nil
	}
	if s.err != nil {
		return pipe.ReadResult{}, s.err
	}
	if err := ctx.Err(); err != nil {
		return pipe.ReadResult{}, err
	}

	if d, ok := s.r.(readDeadliner); ok && ctx.Done() != nil {
		defer interruptOn(ctx, d.SetReadDeadline)()
	}

	n, err := s.r.Read(s.buf)
	s.pending = append(s.pending, s.buf[:n]...)
	switch {
	case err == io.EOF:
		s.eof = true
	case err != nil && ctx.Err() != nil:
		if n == 0 {
			return pipe.ReadResult{}, ctx.Err()
		}
	case err != nil:
		if n == 0 {
			return pipe.ReadResult{}, err
		}
		s.err = err
	}
	return s.result(), nil
}

// TryRead implements Source. It only hands out bytes read earlier.
func (s *StreamSource) TryRead() (pipe.ReadResult, bool) {
	if s.done {
		return pipe.ReadResult{Completed: true}, true
	}
	if len(s.pending) == 0 && !s.eof {
		return pipe.ReadResult{}, false
	}
	return s.result(), true
}

// AdvanceTo implements Source.
func (s *StreamSource) AdvanceTo(consumed int) {
	s.pending = s.pending[consumed:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
}

// Complete implements Source. The underlying reader is left to its owner.
func (s *StreamSource) Complete(cause error) {
	s.done = true
	s.cause = cause
	s.pending = nil
}

// Cause returns the cause the source was completed with.
func (s *StreamSource) Cause() error {
	return s.cause
}

func (s *StreamSource) result() pipe.ReadResult {
	res := pipe.ReadResult{Completed: s.eof}
	if len(s.pending) > 0 {
		res.Segments = [][]byte{s.pending}
	}
	return res
}

// StreamSink writes to an io.Writer. When the writer supports write deadlines
// a canceled context interrupts a pending write.
type StreamSink struct {
	w io.Writer
}

// NewStreamSink creates a sink.
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w}
}

// Write implements Sink.
func (s *StreamSink) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := s.w.(writeDeadliner); ok && ctx.Done() != nil {
		defer interruptOn(ctx, d.SetWriteDeadline)()
	}

	_, err := s.w.Write(b)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
