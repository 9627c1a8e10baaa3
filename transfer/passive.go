package transfer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/beyondstorage/beyond-relay/utils"
)

var errPassiveClosed = errors.New("passive transfer closed")

// AcceptTimeout bounds the wait for the client to connect to a passive port.
const AcceptTimeout = time.Minute

// PassiveHandler waits for the client on a listener opened by PASV/EPSV.
// Close may run on another goroutine than Open.
type PassiveHandler struct {
	TCPListener *net.TCPListener // TCP Listener (only keeping it to define a deadline during the accept)
	Listener    net.Listener     // TCP or SSL Listener

	mu         sync.Mutex
	connection net.Conn // TCP Connection established
	closed     bool
}

// Open waits for the client to connect.
func (p *PassiveHandler) Open(ctx context.Context) (utils.Conn, error) {
	return p.ConnectionWait(ctx, AcceptTimeout)
}

// Close closes the listener and the accepted connection.
func (p *PassiveHandler) Close() error {
	p.mu.Lock()
	p.closed = true
	conn := p.connection
	p.mu.Unlock()

	if p.TCPListener != nil {
		_ = p.TCPListener.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

// ConnectionWait waits at most wait, or until ctx is done, for the client.
func (p *PassiveHandler) ConnectionWait(ctx context.Context, wait time.Duration) (net.Conn, error) {
	p.mu.Lock()
	conn, closed := p.connection, p.closed
	p.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	if closed {
		return nil, errPassiveClosed
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.TCPListener.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set accept deadline")
	}
	stop := context.AfterFunc(ctx, func() {
		_ = p.TCPListener.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	conn, err := p.Listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, "accept data connection")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = conn.Close()
		return nil, errPassiveClosed
	}
	p.connection = conn
	return conn, nil
}
