package transfer

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/beyondstorage/beyond-relay/utils"
)

// DialTimeout bounds the dial of an active data connection.
const DialTimeout = 5 * time.Second

// ActiveHandler dials the client at the address announced by PORT.
type ActiveHandler struct {
	RemoteAddr *net.TCPAddr // remote address of the client

	conn net.Conn
}

// Open dials the client.
func (a *ActiveHandler) Open(ctx context.Context) (utils.Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", a.RemoteAddr.String())
	if err != nil {
		return nil, errors.Wrap(err, "could not establish active connection")
	}

	// Keep connection as it will be closed by Close().
	a.conn = conn

	return a.conn, nil
}

// Close closes only if connection is established.
func (a *ActiveHandler) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
