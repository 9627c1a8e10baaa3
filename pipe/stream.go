package pipe

import (
	"context"
	"io"
)

type streamReader struct {
	ctx context.Context
	r   *Reader
}

// NewStreamReader exposes the reading end as an io.Reader. It returns io.EOF
// once the writer completed cleanly and the buffer is drained.
func NewStreamReader(ctx context.Context, r *Reader) io.Reader {
	return &streamReader{ctx: ctx, r: r}
}

func (s *streamReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		res, err := s.r.Read(s.ctx)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, seg := range res.Segments {
			c := copy(b[n:], seg)
			n += c
			if n == len(b) {
				break
			}
		}
		s.r.AdvanceTo(n)
		if n > 0 {
			return n, nil
		}
		if res.Completed {
			return 0, io.EOF
		}
		// A canceled read without data; try again.
		if res.Canceled {
			continue
		}
	}
}

type streamWriter struct {
	ctx context.Context
	w   *Writer
}

// NewStreamWriter exposes the writing end as an io.Writer.
func NewStreamWriter(ctx context.Context, w *Writer) io.Writer {
	return &streamWriter{ctx: ctx, w: w}
}

func (s *streamWriter) Write(b []byte) (int, error) {
	if err := s.w.Write(s.ctx, b); err != nil {
		return 0, err
	}
	return len(b), nil
}
