package operation

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"google.golang.org/grpc"
)

// Call is an open streaming RPC. Recv is meant for a single reader; Send may
// be called from any goroutine while a Recv is in flight.
type Call struct {
	name   string
	ctx    context.Context
	stream grpc.ClientStream
	cancel context.CancelFunc

	sendMu sync.Mutex
}

// NewCall wraps an open client stream. cancel must tear the stream down; it
// is invoked by Release.
func NewCall(ctx context.Context, name string, stream grpc.ClientStream, cancel context.CancelFunc) *Call {
	return &Call{name: name, ctx: ctx, stream: stream, cancel: cancel}
}

// Name returns the name of the operation that opened the call.
func (c *Call) Name() string {
	return c.name
}

// Context returns the context the call runs under. It is done once the call
// has been released.
func (c *Call) Context() context.Context {
	return c.ctx
}

// Recv reads the next message into m. It returns io.EOF at the normal end
// of the stream and a translated error otherwise.
func (c *Call) Recv(m wire.Message) error {
	if err := c.stream.RecvMsg(m); err != nil {
		return translate.Error(c.name, err, c.stream.Trailer())
	}
	return nil
}

// Send writes m to the server. Once the call has ended, Send fails with
// esdberr.ErrSessionClosed.
func (c *Call) Send(m wire.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.ctx.Err() != nil {
		return esdberr.ErrSessionClosed
	}
	if err := c.stream.SendMsg(m); err != nil {
		if errors.Is(err, io.EOF) {
			return esdberr.ErrSessionClosed
		}
		return translate.Error(c.name, err, nil)
	}
	return nil
}

// CloseSend half-closes the client side of the call.
func (c *Call) CloseSend() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.stream.CloseSend()
}

// Release cancels the call and frees its server-side resources. It is safe
// to call more than once.
func (c *Call) Release() {
	c.cancel()
}
