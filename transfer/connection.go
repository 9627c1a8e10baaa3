package transfer

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/beyondstorage/beyond-relay/pipe"
	"github.com/beyondstorage/beyond-relay/pump"
	"github.com/beyondstorage/beyond-relay/utils"
)

var errInputAbandoned = errors.New("data connection closed with unread input")

// Settings tunes the relay of a data connection.
type Settings struct {
	FlushGrace time.Duration // bound of drain writes and of the final send drain
	ReadBuffer int           // socket read size
	Pipe       pipe.Options  // backpressure of both directions
	Dump       pump.DumpFunc // optional hex dump hook
}

// DefaultSettings are used for zero fields.
var DefaultSettings = Settings{
	FlushGrace: pump.DefaultFlushGrace,
	ReadBuffer: 32 * 1024,
	Pipe:       pipe.DefaultOptions,
}

// DataConnection relays one data socket through two pumps: bytes the
// application writes to Output are sent to the client, bytes the client sends
// are delivered on Input. The socket belongs to the pumps until Close.
type DataConnection struct {
	id   string
	conn utils.Conn
	log  *zap.Logger
	s    Settings

	input  *pipe.Pipe
	output *pipe.Pipe

	send    *pump.Pump
	receive *pump.Pump
	cancel  context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewDataConnection wraps conn and starts relaying. Cancelling ctx tears the
// relay down; Close must still be called to release the socket.
func NewDataConnection(ctx context.Context, id string, conn utils.Conn, s Settings, log *zap.Logger) (*DataConnection, error) {
	if s.FlushGrace <= 0 {
		s.FlushGrace = DefaultSettings.FlushGrace
	}
	if s.ReadBuffer <= 0 {
		s.ReadBuffer = DefaultSettings.ReadBuffer
	}
	if log == nil {
		log = zap.L()
	}
	log = log.With(zap.String("id", id))

	d := &DataConnection{
		id:     id,
		conn:   conn,
		log:    log,
		s:      s,
		input:  pipe.New(s.Pipe),
		output: pipe.New(s.Pipe),
		closed: make(chan struct{}),
	}

	d.send = pump.New(d.output.Reader(), pump.NewStreamSink(conn),
		pump.WithName("send"),
		pump.WithLogger(log),
		pump.WithFlushGrace(s.FlushGrace),
		pump.WithDump(s.Dump),
	)
	d.receive = pump.New(pump.NewStreamSource(conn, s.ReadBuffer), d.input.Writer(),
		pump.WithName("receive"),
		pump.WithLogger(log),
		pump.WithFlushGrace(s.FlushGrace),
		pump.WithDump(s.Dump),
		pump.WithOnStopped(func(cause error) {
			d.input.Writer().Complete(cause)
		}),
	)

	var pctx context.Context
	pctx, d.cancel = context.WithCancel(ctx)
	if err := d.send.Start(pctx); err != nil {
		d.cancel()
		return nil, errors.Wrap(err, "start send pump")
	}
	if err := d.receive.Start(pctx); err != nil {
		d.send.RequestStop()
		d.cancel()
		return nil, errors.Wrap(err, "start receive pump")
	}
	return d, nil
}

// ID returns the id of the owning session.
func (d *DataConnection) ID() string { return d.id }

// Input is the reading end of the bytes received from the client.
func (d *DataConnection) Input() *pipe.Reader { return d.input.Reader() }

// Output is the writing end of the bytes sent to the client.
func (d *DataConnection) Output() *pipe.Writer { return d.output.Writer() }

// Reader exposes Input as an io.Reader.
func (d *DataConnection) Reader(ctx context.Context) io.Reader {
	return pipe.NewStreamReader(ctx, d.Input())
}

// Writer exposes Output as an io.Writer.
func (d *DataConnection) Writer(ctx context.Context) io.Writer {
	return pipe.NewStreamWriter(ctx, d.Output())
}

// Pause drains and pauses both directions.
func (d *DataConnection) Pause() {
	d.send.RequestPause()
	d.receive.RequestPause()
}

// Resume resumes both directions.
func (d *DataConnection) Resume() {
	d.send.RequestResume()
	d.receive.RequestResume()
}

// Close sends what the application wrote, then closes the socket and stops
// both pumps. It is safe to call more than once and from several goroutines;
// every call returns the result of the first.
func (d *DataConnection) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = d.close(ctx)
		close(d.closed)
	})

	select {
	case <-d.closed:
		return d.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DataConnection) close(ctx context.Context) error {
	defer d.cancel()

	// Let the send pump run to the end of the output.
	d.output.Writer().Complete(nil)
	d.send.RequestResume()

	timer := time.NewTimer(d.s.FlushGrace)
	defer timer.Stop()
	select {
	case <-d.send.Done():
	case <-timer.C:
		d.log.Warn("Data connection send drain timed out", zap.Duration("grace", d.s.FlushGrace))
		d.send.RequestStop()
	case <-ctx.Done():
		d.send.RequestStop()
	}

	d.receive.RequestStop()
	err := d.conn.Close()

	// The receive pump may be blocked on a full input nobody reads. Give a
	// reader the grace period to catch up, then drop the input.
	grace := time.NewTimer(d.s.FlushGrace)
	defer grace.Stop()
	select {
	case <-d.receive.Done():
	case <-grace.C:
		d.log.Debug("Dropping unread input", zap.Int64("unread", d.input.Unread()))
		d.input.Reader().Complete(errInputAbandoned)
	case <-ctx.Done():
		d.input.Reader().Complete(ctx.Err())
	}

	for _, p := range []*pump.Pump{d.send, d.receive} {
		select {
		case <-p.Done():
		case <-ctx.Done():
			err = multierr.Append(err, ctx.Err())
			return err
		}
	}
	d.input.Writer().Complete(nil)

	if sendErr := d.send.Err(); sendErr != nil && !pump.IsDisconnect(sendErr) {
		err = multierr.Append(err, errors.Wrap(sendErr, "send"))
	}
	d.log.Debug("Data connection closed",
		zap.Int64("sent", d.send.Forwarded()),
		zap.Int64("received", d.receive.Forwarded()),
	)
	return err
}

// Sent returns the number of bytes written to the socket.
func (d *DataConnection) Sent() int64 { return d.send.Forwarded() }

// Received returns the number of bytes read from the socket.
func (d *DataConnection) Received() int64 { return d.receive.Forwarded() }
