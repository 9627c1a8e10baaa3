package pump

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a pump.
type State int32

const (
	Idle State = iota
	Running
	PauseRequested
	Paused
	StopRequested
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case PauseRequested:
		return "PauseRequested"
	case Paused:
		return "Paused"
	case StopRequested:
		return "StopRequested"
	case Stopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ErrInvalidTransition is returned when a lifecycle request cannot apply to
// the current state, e.g. starting a stopped machine.
var ErrInvalidTransition = errors.New("pump: invalid lifecycle transition")

// Outcome is the result of one Running phase.
type Outcome struct {
	// Completed reports that the work is finished and the machine should stop.
	Completed bool
	// Err is a failure that ends the machine.
	Err error
}

// RunFunc is the work executed while Running. It must return once ctx is
// done; ctx is canceled on pause and stop requests.
type RunFunc func(ctx context.Context) Outcome

// Hooks are invoked by the driving goroutine at lifecycle transitions.
// Any of them may be nil.
type Hooks struct {
	// OnStart runs before the first Running phase. An error stops the machine.
	OnStart func(ctx context.Context) error
	// OnPause runs after the work yielded to a pause request and before the
	// machine reports Paused.
	OnPause func(ctx context.Context)
	// OnPaused runs once the machine is Paused.
	OnPaused func()
	// OnStopRequested runs after the work yielded to a stop request and before
	// the machine reports Stopped. cause is the captured failure, if any.
	OnStopRequested func(ctx context.Context, cause error)
	// OnStopped runs once the machine is Stopped.
	OnStopped func(cause error)
	// OnFailed runs for every captured failure.
	OnFailed func(err error)
}

// Machine is a pausable, stoppable lifecycle driving a RunFunc on its own
// goroutine. Requests are safe for concurrent use; duplicate requests for a
// transition already applied or in flight are no-ops.
type Machine struct {
	hooks Hooks

	mu        sync.Mutex
	state     State
	cause     error
	resume    bool
	cancelRun context.CancelFunc
	changed   chan struct{}

	wake     chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// NewMachine creates an Idle machine.
func NewMachine(hooks Hooks) *Machine {
	return &Machine{
		hooks:   hooks,
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the last captured failure.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cause
}

// Done is closed once the machine is Stopped.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the machine is Stopped and returns the captured failure.
func (m *Machine) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Await blocks until the machine reaches state. It fails with
// ErrInvalidTransition if the machine stops first.
func (m *Machine) Await(ctx context.Context, state State) error {
	for {
		m.mu.Lock()
		cur, ch := m.state, m.changed
		m.mu.Unlock()

		if cur == state {
			return nil
		}
		if cur == Stopped {
			return fmt.Errorf("%w: stopped while waiting for %s", ErrInvalidTransition, state)
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Start moves an Idle machine to Running and drives run on a new goroutine.
// ctx is the caller's cancellation signal; once it is done the machine stops.
// Starting a machine that already runs is a no-op.
func (m *Machine) Start(ctx context.Context, run RunFunc) error {
	m.mu.Lock()
	switch m.state {
	case Idle:
	case Stopped:
		m.mu.Unlock()
		return ErrInvalidTransition
	default:
		m.mu.Unlock()
		return nil
	}
	m.setState(Running)
	m.mu.Unlock()

	go m.drive(ctx, run)
	return nil
}

// RequestPause asks a Running machine to pause. It reports whether the
// request changed anything.
func (m *Machine) RequestPause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Running {
		return false
	}
	m.resume = false
	m.setState(PauseRequested)
	if m.cancelRun != nil {
		m.cancelRun()
	}
	return true
}

// RequestResume resumes a Paused machine. A resume arriving while the pause
// is still in flight takes effect as soon as the machine reports Paused.
func (m *Machine) RequestResume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Paused:
		m.setState(Running)
		m.signal()
		return true
	case PauseRequested:
		if m.resume {
			return false
		}
		m.resume = true
		return true
	}
	return false
}

// RequestStop asks the machine to stop. Stopping an Idle machine stops it
// immediately without running any hook.
func (m *Machine) RequestStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Idle:
		m.setState(Stopped)
		m.doneOnce.Do(func() { close(m.done) })
		return true
	case Running, PauseRequested, Paused:
		m.resume = false
		m.setState(StopRequested)
		if m.cancelRun != nil {
			m.cancelRun()
		}
		m.signal()
		return true
	}
	return false
}

// fail records err, last one wins, and drives the machine towards Stopped.
func (m *Machine) fail(err error) {
	m.mu.Lock()
	m.cause = err
	if m.state != StopRequested && m.state != Stopped {
		m.resume = false
		m.setState(StopRequested)
		if m.cancelRun != nil {
			m.cancelRun()
		}
	}
	m.mu.Unlock()

	if m.hooks.OnFailed != nil {
		m.hooks.OnFailed(err)
	}
}

func (m *Machine) drive(ctx context.Context, run RunFunc) {
	defer m.doneOnce.Do(func() { close(m.done) })

	if m.hooks.OnStart != nil {
		if err := m.hooks.OnStart(ctx); err != nil {
			m.fail(err)
		}
	}

	for {
		m.mu.Lock()
		state := m.state
		var runCtx context.Context
		if state == Running {
			runCtx, m.cancelRun = context.WithCancel(ctx)
		}
		cancel := m.cancelRun
		m.mu.Unlock()

		switch state {
		case Running:
			out := invoke(runCtx, run)
			cancel()
			switch {
			case out.Err != nil:
				m.fail(out.Err)
			case out.Completed, ctx.Err() != nil:
				m.RequestStop()
			}

		case PauseRequested:
			if m.hooks.OnPause != nil {
				m.hooks.OnPause(ctx)
			}
			m.mu.Lock()
			paused := m.state == PauseRequested
			if paused {
				m.setState(Paused)
			}
			m.mu.Unlock()

			if paused {
				if m.hooks.OnPaused != nil {
					m.hooks.OnPaused()
				}
				m.mu.Lock()
				if m.resume && m.state == Paused {
					m.resume = false
					m.setState(Running)
				}
				m.mu.Unlock()
			}

		case Paused:
			select {
			case <-m.wake:
			case <-ctx.Done():
				m.RequestStop()
			}

		case StopRequested:
			cause := m.Err()
			if m.hooks.OnStopRequested != nil {
				m.hooks.OnStopRequested(ctx, cause)
			}
			m.mu.Lock()
			m.setState(Stopped)
			m.mu.Unlock()
			if m.hooks.OnStopped != nil {
				m.hooks.OnStopped(cause)
			}
			return

		default:
			return
		}
	}
}

// invoke runs fn, turning a panic into a failed outcome.
func invoke(ctx context.Context, fn RunFunc) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("pump: panic: %v", r)}
		}
	}()
	return fn(ctx)
}

// setState must be called with mu held.
func (m *Machine) setState(s State) {
	m.state = s
	close(m.changed)
	m.changed = make(chan struct{})
}

// signal must be called with mu held.
func (m *Machine) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
