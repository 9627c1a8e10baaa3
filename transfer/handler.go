package transfer

import (
	"context"

	"github.com/beyondstorage/beyond-relay/utils"
)

// Handler presents active/passive transfer connection handler.
type Handler interface {
	// Open the connection to transfer data on.
	Open(ctx context.Context) (utils.Conn, error)

	// Close the connection (and any associated resource).
	Close() error
}
