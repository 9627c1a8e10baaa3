// Package pump relays bytes from a source to a sink on a background goroutine
// under an explicit pause/resume/stop lifecycle.
//
// The live loop observes the caller's cancellation on reads only. Bytes that
// were already read are always written out, and every pause and stop drains
// what the source has buffered before the pump reports Paused or Stopped.
package pump

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/beyondstorage/beyond-relay/metrics"
	"github.com/beyondstorage/beyond-relay/pipe"
)

// Tags passed to the dump hook.
const (
	TagSend  = "Send"
	TagFlush = "Flush"
)

// DefaultFlushGrace bounds the writes of a drain.
const DefaultFlushGrace = 5 * time.Second

// CancelPolicy selects the cancellation a single call observes.
type CancelPolicy int

const (
	// CallerToken observes the caller's context.
	CallerToken CancelPolicy = iota
	// NoCancel waits unconditionally.
	NoCancel
	// FlushGrace observes a deadline of the pump's flush grace period only.
	FlushGrace
)

// Source is the readable side of a pump.
type Source interface {
	// Read waits for the next chunk. Only the wait observes ctx.
	Read(ctx context.Context) (pipe.ReadResult, error)
	// TryRead returns a chunk that is already available, without waiting.
	TryRead() (pipe.ReadResult, bool)
	// AdvanceTo acknowledges the first consumed bytes of the last chunk.
	AdvanceTo(consumed int)
	// Complete marks the source as finished because of cause.
	Complete(cause error)
}

// Sink is the writable side of a pump.
type Sink interface {
	Write(ctx context.Context, b []byte) error
}

// DumpFunc receives hex dump lines of forwarded blocks.
type DumpFunc func(tag, line string)

// Option configures a Pump.
type Option func(*Pump)

// WithName names the pump in logs and metrics.
func WithName(name string) Option {
	return func(p *Pump) { p.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pump) { p.log = l }
}

// WithFlushGrace sets the deadline applied to drain writes.
func WithFlushGrace(d time.Duration) Option {
	return func(p *Pump) { p.flushGrace = d }
}

// WithDump installs a diagnostic hex dump hook.
func WithDump(fn DumpFunc) Option {
	return func(p *Pump) { p.dump = fn }
}

// WithOnStopped registers fn to run once the pump is Stopped.
func WithOnStopped(fn func(cause error)) Option {
	return func(p *Pump) { p.onStopped = fn }
}

// Pump moves bytes from a Source to a Sink.
type Pump struct {
	name       string
	source     Source
	sink       Sink
	log        *zap.Logger
	flushGrace time.Duration
	dump       DumpFunc
	onStopped  func(cause error)

	machine   *Machine
	forwarded *atomic.Int64

	// offset of the next forwarded byte, owned by the driving goroutine.
	offset int64
}

// New creates an Idle pump.
func New(source Source, sink Sink, opts ...Option) *Pump {
	p := &Pump{
		name:       "pump",
		source:     source,
		sink:       sink,
		log:        zap.L(),
		flushGrace: DefaultFlushGrace,
		forwarded:  atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(zap.String("pump", p.name))

	p.machine = NewMachine(Hooks{
		OnPause: func(context.Context) {
			p.safeFlush()
		},
		OnPaused: func() {
			p.log.Debug("Pump paused", zap.Int64("forwarded", p.forwarded.Load()))
		},
		OnStopRequested: func(_ context.Context, cause error) {
			p.safeFlush()
			p.source.Complete(cause)
		},
		OnStopped: func(cause error) {
			p.log.Debug("Pump stopped", zap.Int64("forwarded", p.forwarded.Load()), zap.Error(cause))
			if p.onStopped != nil {
				p.onStopped(cause)
			}
		},
		OnFailed: func(err error) {
			metrics.PumpFailures.WithLabelValues(p.name).Inc()
			if IsDisconnect(err) {
				p.log.Debug("Pump ended by disconnect", zap.Error(err))
				return
			}
			p.log.Warn("Pump failed", zap.Error(err))
		},
	})
	return p
}

// Start starts relaying. ctx is the caller's cancellation signal: the pump
// observes it on reads and stops once it is done.
func (p *Pump) Start(ctx context.Context) error {
	return p.machine.Start(ctx, p.run)
}

// RequestPause asks the pump to drain and pause.
func (p *Pump) RequestPause() bool { return p.machine.RequestPause() }

// RequestResume resumes a paused pump.
func (p *Pump) RequestResume() bool { return p.machine.RequestResume() }

// RequestStop asks the pump to drain, complete its source and stop.
func (p *Pump) RequestStop() bool { return p.machine.RequestStop() }

// State returns the lifecycle state.
func (p *Pump) State() State { return p.machine.State() }

// Done is closed once the pump is Stopped.
func (p *Pump) Done() <-chan struct{} { return p.machine.Done() }

// Err returns the failure that stopped the pump, if any.
func (p *Pump) Err() error { return p.machine.Err() }

// Wait blocks until the pump is Stopped.
func (p *Pump) Wait(ctx context.Context) error { return p.machine.Wait(ctx) }

// Await blocks until the pump reaches state.
func (p *Pump) Await(ctx context.Context, state State) error { return p.machine.Await(ctx, state) }

// Forwarded returns the number of bytes written to the sink.
func (p *Pump) Forwarded() int64 { return p.forwarded.Load() }

func (p *Pump) run(ctx context.Context) Outcome {
	for {
		if ctx.Err() != nil {
			return Outcome{}
		}
		res, err := p.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}
			}
			return Outcome{Err: err}
		}

		wctx, cancel := p.withPolicy(ctx, NoCancel)
		consumed := 0
		for _, seg := range res.Segments {
			if err = p.forward(wctx, TagSend, seg); err != nil {
				break
			}
			consumed += len(seg)
			if res.Completed || res.Canceled {
				break
			}
		}
		cancel()
		p.source.AdvanceTo(consumed)

		if err != nil {
			return Outcome{Err: err}
		}
		if res.Completed {
			return Outcome{Completed: true}
		}
	}
}

// safeFlush forwards every chunk the source already holds without waiting
// for more. It never fails.
func (p *Pump) safeFlush() {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("Flush panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := p.withPolicy(context.Background(), FlushGrace)
	defer cancel()

	for {
		res, ok := p.source.TryRead()
		if !ok {
			return
		}

		consumed := 0
		var err error
		for _, seg := range res.Segments {
			if err = p.forward(ctx, TagFlush, seg); err != nil {
				break
			}
			consumed += len(seg)
		}
		p.source.AdvanceTo(consumed)

		if err != nil {
			if IsDisconnect(err) {
				p.log.Debug("Flush ended by disconnect", zap.Error(err))
			} else {
				p.log.Warn("Flush failed", zap.Error(err))
			}
			return
		}
		if res.Completed {
			return
		}
	}
}

func (p *Pump) forward(ctx context.Context, tag string, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := p.sink.Write(ctx, b); err != nil {
		return err
	}

	p.forwarded.Add(int64(len(b)))
	metrics.PumpBytes.WithLabelValues(p.name, tag).Add(float64(len(b)))
	if p.dump != nil {
		for _, line := range HexDump(p.offset, b) {
			p.dump(tag, line)
		}
	}
	p.offset += int64(len(b))
	return nil
}

func (p *Pump) withPolicy(ctx context.Context, policy CancelPolicy) (context.Context, context.CancelFunc) {
	switch policy {
	case CallerToken:
		return context.WithCancel(ctx)
	case FlushGrace:
		return context.WithTimeout(context.Background(), p.flushGrace)
	default:
		return context.Background(), func() {}
	}
}
