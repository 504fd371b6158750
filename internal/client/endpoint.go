package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/transfer"
)

// Endpoint pairs a Connection with a transfer Manager: inbound manifest and
// chunk frames go to receive sessions, everything else to OnMessage.
type Endpoint struct {
	conn      *Connection
	transfers *transfer.Manager
	onMessage func(protocol.Frame)
	log       *zap.SugaredLogger
}

// NewEndpoint wires conn to a new transfer manager. onMessage may be nil.
func NewEndpoint(conn *Connection, cfg transfer.Config, observer transfer.Observer, onMessage func(protocol.Frame), log *zap.SugaredLogger) *Endpoint {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if onMessage == nil {
		onMessage = func(protocol.Frame) {}
	}
	return &Endpoint{
		conn:      conn,
		transfers: transfer.NewManager(cfg, observer, log),
		onMessage: onMessage,
		log:       log,
	}
}

// Transfers returns the endpoint's transfer manager.
func (e *Endpoint) Transfers() *transfer.Manager {
	return e.transfers
}

// SendChat sends a chat line.
func (e *Endpoint) SendChat(text string) error {
	return e.conn.Send(protocol.NewChat(text))
}

// SendFile starts sending the file at path to the room.
func (e *Endpoint) SendFile(path string) (*transfer.Session, error) {
	return e.transfers.Send(path, e.conn)
}

// Run reads from the connection until it closes or ctx is done.
func (e *Endpoint) Run(ctx context.Context) error {
	return e.conn.ReadLoop(ctx, e.dispatch)
}

func (e *Endpoint) dispatch(f protocol.Frame) {
	if !f.IsTransfer() {
		e.onMessage(f)
		return
	}

	if err := e.transfers.HandleFrame(f); err != nil {
		switch {
		case errors.Is(err, transfer.ErrUnknownTransfer), errors.Is(err, transfer.ErrSessionFinished):
			e.log.Debugw("endpoint", "error", err, "transfer_id", f.TransferID())
		default:
			e.log.Warnw("endpoint", "error", err, "transfer_id", f.TransferID())
		}
	}
}

// Close waits up to timeout for transfers in flight, then closes the
// connection.
func (e *Endpoint) Close(timeout time.Duration) error {
	waitErr := e.transfers.Shutdown(timeout)
	if err := e.conn.Close(); err != nil {
		return err
	}
	return waitErr
}
