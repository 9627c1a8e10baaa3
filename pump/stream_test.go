package pump

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lateDeadlineConn releases a blocked call as soon as a past deadline is
// requested but stores that deadline only some time later, like a deadline
// callback losing the race with the call it interrupts.
type lateDeadlineConn struct {
	mu       sync.Mutex
	deadline time.Time
	release  chan struct{}
	once     sync.Once
}

func newLateDeadlineConn() *lateDeadlineConn {
	return &lateDeadlineConn{release: make(chan struct{})}
}

func (c *lateDeadlineConn) setDeadline(t time.Time) error {
	if !t.IsZero() {
		c.once.Do(func() { close(c.release) })
		time.Sleep(50 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *lateDeadlineConn) SetReadDeadline(t time.Time) error  { return c.setDeadline(t) }
func (c *lateDeadlineConn) SetWriteDeadline(t time.Time) error { return c.setDeadline(t) }

func (c *lateDeadlineConn) Read([]byte) (int, error) {
	<-c.release
	return 0, os.ErrDeadlineExceeded
}

func (c *lateDeadlineConn) Write([]byte) (int, error) {
	<-c.release
	return 0, os.ErrDeadlineExceeded
}

func (c *lateDeadlineConn) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

func cancelSoon() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	return ctx
}

func TestStreamSourceClearsDeadlineAfterInterrupt(t *testing.T) {
	conn := newLateDeadlineConn()

	_, err := NewStreamSource(conn, 16).Read(cancelSoon())
	require.ErrorIs(t, err, context.Canceled)

	// A later read on the same socket must not time out at once.
	assert.True(t, conn.Deadline().IsZero(), "deadline left at %v", conn.Deadline())
}

func TestStreamSinkClearsDeadlineAfterInterrupt(t *testing.T) {
	conn := newLateDeadlineConn()

	err := NewStreamSink(conn).Write(cancelSoon(), []byte("data"))
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, conn.Deadline().IsZero(), "deadline left at %v", conn.Deadline())
}
