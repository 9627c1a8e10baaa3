package pump

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/beyondstorage/beyond-relay/pipe"
)

// IsDisconnect reports whether err means that one of the peers went away or
// the transfer was canceled, as opposed to an unexpected failure.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, pipe.ErrReaderCompleted),
		errors.Is(err, pipe.ErrWriterCompleted),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED):
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
