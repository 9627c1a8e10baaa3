package utils

import (
	"io"
)

// Conn is the byte stream of a control or data connection. Data connections
// whose Conn also has SetReadDeadline and SetWriteDeadline, as net.Conn does,
// can be interrupted by the relay pumps while blocked.
type Conn interface {
	io.ReadWriteCloser
}
