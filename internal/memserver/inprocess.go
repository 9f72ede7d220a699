package memserver

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// InProcess is a Server listening on an in-memory connection.
type InProcess struct {
	*Server

	lis  *bufconn.Listener
	grpc *grpc.Server
	done chan struct{}
}

// StartInProcess starts a Server on a bufconn listener.
func StartInProcess(cfg Config) (*InProcess, error) {
	srv, err := New(cfg)
	if err != nil {
		return nil, err
	}

	p := &InProcess{
		Server: srv,
		lis:    bufconn.Listen(bufSize),
		grpc:   srv.NewGRPCServer(),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		if err := p.grpc.Serve(p.lis); err != nil {
			srv.logger.Warn("in-process server stopped", zap.Error(err))
		}
	}()
	return p, nil
}

// Dialer connects to the in-process listener whatever the target address.
func (p *InProcess) Dialer() func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return p.lis.DialContext(ctx)
	}
}

// DialOptions returns the options a client needs to reach p.
func (p *InProcess) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithContextDialer(p.Dialer()),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

// Dial opens a client connection to p.
func (p *InProcess) Dial() (*grpc.ClientConn, error) {
	cc, err := grpc.NewClient("passthrough:///"+p.cfg.Advertise, p.DialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("dial in-process server: %w", err)
	}
	return cc, nil
}

// Stop closes the server and waits for it to finish.
func (p *InProcess) Stop() {
	_ = p.Server.Close()
	p.grpc.Stop()
	<-p.done
}
