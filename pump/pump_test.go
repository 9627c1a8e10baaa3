package pump

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beyondstorage/beyond-relay/pipe"
)

// memorySink collects everything written to it.
type memorySink struct {
	mu  sync.Mutex
	buf bytes.Buffer

	failAfter int // fail once more than failAfter bytes were written, if > 0
	err       error
	gate      chan struct{}
}

func (s *memorySink) Write(ctx context.Context, b []byte) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && s.buf.Len()+len(b) > s.failAfter {
		return s.err
	}
	s.buf.Write(b)
	return nil
}

func (s *memorySink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func newTestPump(src Source, sink Sink, opts ...Option) *Pump {
	opts = append([]Option{WithLogger(zap.NewNop()), WithName("test")}, opts...)
	return New(src, sink, opts...)
}

func TestPumpForwardsChunksInOrder(t *testing.T) {
	ctx := waitCtx(t)
	p := pipe.New(pipe.Options{})
	sink := &memorySink{}
	pu := newTestPump(p.Reader(), sink)
	require.NoError(t, pu.Start(context.Background()))

	var want []byte
	for _, n := range []int{10, 20, 5} {
		chunk := make([]byte, n)
		rand.Read(chunk)
		want = append(want, chunk...)
		require.NoError(t, p.Writer().Write(ctx, chunk))
	}
	p.Writer().Complete(nil)

	require.NoError(t, pu.Wait(ctx))
	assert.Equal(t, Stopped, pu.State())
	assert.Nil(t, pu.Err())
	assert.Equal(t, want, sink.Bytes())
	assert.Equal(t, int64(35), pu.Forwarded())
}

func TestPumpFidelityAcrossPauses(t *testing.T) {
	ctx := waitCtx(t)
	p := pipe.New(pipe.Options{PauseThreshold: 64, ResumeThreshold: 16})
	sink := &memorySink{}
	pu := newTestPump(p.Reader(), sink)
	require.NoError(t, pu.Start(context.Background()))

	var want []byte
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; i < 200; i++ {
			chunk := make([]byte, 1+rand.Intn(40))
			rand.Read(chunk)
			want = append(want, chunk...)
			assert.NoError(t, p.Writer().Write(ctx, chunk))
		}
		p.Writer().Complete(nil)
	}()

	for i := 0; i < 10; i++ {
		if pu.RequestPause() {
			if err := pu.Await(ctx, Paused); err != nil {
				break
			}
			pu.RequestPause()
			pu.RequestResume()
		}
		time.Sleep(time.Millisecond)
	}

	<-writerDone
	require.NoError(t, pu.Wait(ctx))
	assert.Equal(t, want, sink.Bytes())
}

func TestPumpFlushesBeforePaused(t *testing.T) {
	ctx := waitCtx(t)
	p := pipe.New(pipe.Options{})
	gate := make(chan struct{})
	sink := &memorySink{gate: gate}
	pu := newTestPump(p.Reader(), sink)
	require.NoError(t, pu.Start(context.Background()))

	// The loop picks up "first" and blocks on the gated sink.
	require.NoError(t, p.Writer().Write(ctx, []byte("first ")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, p.Writer().Write(ctx, []byte("second")))

	assert.True(t, pu.RequestPause())
	close(gate)
	require.NoError(t, pu.Await(ctx, Paused))

	assert.Equal(t, []byte("first second"), sink.Bytes())
	assert.Equal(t, int64(0), p.Unread())

	pu.RequestStop()
	require.NoError(t, pu.Wait(ctx))
}

func TestPumpStopDrainsAndCompletesSource(t *testing.T) {
	ctx := waitCtx(t)
	p := pipe.New(pipe.Options{})
	sink := &memorySink{}
	var stoppedWith error
	stopped := make(chan struct{})
	pu := newTestPump(p.Reader(), sink, WithOnStopped(func(cause error) {
		stoppedWith = cause
		close(stopped)
	}))

	require.NoError(t, p.Writer().Write(ctx, []byte("buffered")))
	require.NoError(t, pu.Start(context.Background()))
	pu.RequestPause()
	require.NoError(t, pu.Await(ctx, Paused))
	require.NoError(t, p.Writer().Write(ctx, []byte(" tail")))

	assert.True(t, pu.RequestStop())
	assert.False(t, pu.RequestStop())
	require.NoError(t, pu.Wait(ctx))
	<-stopped

	assert.Nil(t, stoppedWith)
	assert.Equal(t, []byte("buffered tail"), sink.Bytes())
	assert.True(t, errors.Is(p.Writer().Write(ctx, []byte("x")), pipe.ErrReaderCompleted))
}

func TestPumpFailureCompletesSourceWithCause(t *testing.T) {
	ctx := waitCtx(t)
	p := pipe.New(pipe.Options{})
	boom := errors.New("disk on fire")
	sink := &memorySink{failAfter: 4, err: boom}
	pu := newTestPump(p.Reader(), sink)
	require.NoError(t, pu.Start(context.Background()))

	require.NoError(t, p.Writer().Write(ctx, []byte("abc")))
	require.NoError(t, p.Writer().Write(ctx, []byte("defgh")))

	assert.Equal(t, boom, pu.Wait(ctx))
	assert.Equal(t, Stopped, pu.State())
	assert.Equal(t, []byte("abc"), sink.Bytes())

	err := p.Writer().Write(ctx, []byte("more"))
	assert.True(t, errors.Is(err, pipe.ErrReaderCompleted))
	assert.Equal(t, boom, p.Writer().ReaderErr())
}

func TestPumpCallerCancellation(t *testing.T) {
	p := pipe.New(pipe.Options{})
	pu := newTestPump(p.Reader(), &memorySink{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pu.Start(ctx))

	cancel()
	require.NoError(t, pu.Wait(waitCtx(t)))
	assert.Equal(t, Stopped, pu.State())
}

func TestPumpDumpHook(t *testing.T) {
	ctx := waitCtx(t)
	p := pipe.New(pipe.Options{})
	var mu sync.Mutex
	var lines []string
	pu := newTestPump(p.Reader(), &memorySink{}, WithDump(func(tag, line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, tag+" "+line)
	}))
	require.NoError(t, pu.Start(context.Background()))

	require.NoError(t, p.Writer().Write(ctx, []byte("0123456789abcdef")))
	p.Writer().Complete(nil)
	require.NoError(t, pu.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"Send 00000000  30 31 32 33 34 35 36 37  38 39 61 62 63 64 65 66  |0123456789abcdef|",
	}, lines)
}

func TestPumpOverSocket(t *testing.T) {
	ctx := waitCtx(t)
	server, client := net.Pipe()
	defer client.Close()

	in := pipe.New(pipe.Options{})
	pu := newTestPump(NewStreamSource(server, 8), in.Writer(), WithOnStopped(func(cause error) {
		in.Writer().Complete(cause)
	}))
	require.NoError(t, pu.Start(context.Background()))

	go func() {
		_, _ = client.Write([]byte("hello over the wire"))
		_ = client.Close()
	}()

	data, err := readAll(ctx, in.Reader())
	require.NoError(t, err)
	assert.Equal(t, "hello over the wire", string(data))
	require.NoError(t, pu.Wait(ctx))
}

func TestPumpStopInterruptsSocketRead(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	pu := newTestPump(NewStreamSource(server, 8), &memorySink{})
	require.NoError(t, pu.Start(context.Background()))
	time.Sleep(5 * time.Millisecond)

	pu.RequestStop()
	require.NoError(t, pu.Wait(waitCtx(t)))
}

func readAll(ctx context.Context, r *pipe.Reader) ([]byte, error) {
	var out []byte
	for {
		res, err := r.Read(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, res.Bytes()...)
		r.AdvanceTo(res.Len())
		if res.Completed {
			return out, nil
		}
	}
}

func TestHexDumpAlignment(t *testing.T) {
	lines := HexDump(13, []byte("hello"))
	assert.Equal(t, []string{
		"00000000                                          68 65 6c  |             hel|",
		"00000010  6c 6f                                             |lo              |",
	}, lines)
	assert.Nil(t, HexDump(0, nil))
}

func TestIsDisconnect(t *testing.T) {
	assert.True(t, IsDisconnect(context.Canceled))
	assert.True(t, IsDisconnect(net.ErrClosed))
	assert.True(t, IsDisconnect(pipe.ErrReaderCompleted))
	assert.False(t, IsDisconnect(errors.New("boom")))
	assert.False(t, IsDisconnect(nil))
}
