// Package command runs operations that need a data connection and posts the
// resulting server commands, in protocol order, to the session's serial sink.
package command

import (
	"context"
	"fmt"
	"io"

	"github.com/beyondstorage/beyond-relay/pipe"
)

// Reply codes produced by the orchestrator.
const (
	StatusCannotOpenDataConnection = 425
	StatusClosingDataConnection    = 226
	// StatusKeepDataConnection asks to keep the data connection open.
	StatusKeepDataConnection = 250
)

// Response is a reply on the control connection.
type Response struct {
	Code int
	Text string
}

func (r Response) String() string {
	return fmt.Sprintf("%d %s", r.Code, r.Text)
}

// DataConnection is the transfer channel handed to an operation.
type DataConnection interface {
	// Input carries bytes received from the client.
	Input() *pipe.Reader
	// Output carries bytes sent to the client.
	Output() *pipe.Writer
	// Reader and Writer adapt Input and Output to the io interfaces.
	Reader(ctx context.Context) io.Reader
	Writer(ctx context.Context) io.Writer
	// Close flushes Output and releases the connection.
	Close(ctx context.Context) error
}

// ServerCommand is a command posted to the session's serial sink.
type ServerCommand interface {
	serverCommand()
}

// SendResponse writes Response on the control connection.
type SendResponse struct {
	Response Response
}

// CloseDataConnection closes Connection.
type CloseDataConnection struct {
	Connection DataConnection
}

func (SendResponse) serverCommand()        {}
func (CloseDataConnection) serverCommand() {}

// Sink executes server commands one at a time, in the order they are written.
type Sink interface {
	Write(ctx context.Context, cmd ServerCommand) error
}

// OpenOptions are passed to an Opener.
type OpenOptions struct {
	Command string
}

// Opener opens data connections.
type Opener interface {
	Open(ctx context.Context, opts OpenOptions) (DataConnection, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, opts OpenOptions) (DataConnection, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, opts OpenOptions) (DataConnection, error) {
	return f(ctx, opts)
}

// Operation works on an open data connection. A nil response means the
// transfer finished normally.
type Operation func(ctx context.Context, conn DataConnection) (*Response, error)
