package command

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/beyondstorage/beyond-relay/metrics"
)

// Orchestrator runs operations against freshly opened data connections.
// It never touches sockets itself; everything goes through the Sink.
type Orchestrator struct {
	opener Opener
	sink   Sink
	log    *zap.Logger
}

// NewOrchestrator creates an Orchestrator. A nil logger discards logs.
func NewOrchestrator(opener Opener, sink Sink, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{opener: opener, sink: sink, log: log}
}

// Handle opens a data connection, runs op on it and posts the final reply.
//
// If the connection cannot be opened, a single 425 reply is posted. Otherwise
// the reply is op's response, or 226 when op returns none; unless its code is
// 250 the connection is closed before the reply is sent, and the reply is
// still sent if the sink rejects the close. Errors returned by op are passed
// through untouched and nothing is posted for them.
func (o *Orchestrator) Handle(ctx context.Context, commandName string, op Operation) error {
	log := o.log.With(zap.String("command", commandName))

	conn, err := o.opener.Open(ctx, OpenOptions{Command: commandName})
	if err != nil {
		metrics.OpenFailures.Inc()
		log.Warn("Could not open data connection", zap.Error(err))
		return o.send(ctx, commandName, Response{
			Code: StatusCannotOpenDataConnection,
			Text: "Could not open data connection",
		})
	}

	log.Debug("Running data connection operation")
	resp, err := op(ctx, conn)
	if err != nil {
		return err
	}

	final := Response{
		Code: StatusClosingDataConnection,
		Text: "Closing data connection.",
	}
	if resp != nil {
		final = *resp
	}

	var closeErr error
	if final.Code != StatusKeepDataConnection {
		if err := o.sink.Write(ctx, CloseDataConnection{Connection: conn}); err != nil {
			log.Warn("Could not post close data connection", zap.Error(err))
			closeErr = errors.Wrap(err, "post close data connection")
		}
	}
	// The reply is posted even when the close was rejected.
	return multierr.Append(closeErr, o.send(ctx, commandName, final))
}

func (o *Orchestrator) send(ctx context.Context, commandName string, resp Response) error {
	metrics.Responses.WithLabelValues(commandName, strconv.Itoa(resp.Code)).Inc()
	if err := o.sink.Write(ctx, SendResponse{Response: resp}); err != nil {
		return errors.Wrap(err, "post response")
	}
	return nil
}
