package server

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/orion/internal/transport"
)

// frontend implements the concurrent client connection logic.
//
// Connections are accepted on their own goroutines and every byte read from
// them is passed to the server loop, which is the only place session state is touched.
type frontend struct {
	Address        string
	MaxConnections int
	Logger         *logrus.Logger

	connections chan<- *transport.Conn
	chunks      chan<- transport.Chunk

	connected atomic.Int32
	listener  *net.TCPListener
}

// Listen opens the TCP socket connections will be accepted on.
func (f *frontend) Listen() error {
	hostAddr, err := net.ResolveTCPAddr("tcp", f.Address)
	if err != nil {
		return fmt.Errorf("error resolving address %s: %w", f.Address, err)
	}

	f.listener, err = net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return fmt.Errorf("error listening on socket: %w", err)
	}
	return nil
}

// Addr returns the address the frontend is listening on.
func (f *frontend) Addr() net.Addr {
	return f.listener.Addr()
}

// Serve runs the accept loop until ctx is cancelled, then waits for every
// connection goroutine to exit.
func (f *frontend) Serve(ctx context.Context) error {
	f.Logger.Infof("waiting for connections on %v", f.listener.Addr())

	go func() {
		<-ctx.Done()
		f.listener.Close()
	}()

	clientWg := &sync.WaitGroup{}
	defer func() {
		f.Logger.Info("frontend shutting down (waiting for connections to close)")
		clientWg.Wait()
	}()

	for {
		// Poll until we can accept more clients.
		for f.MaxConnections > 0 && int(f.connected.Load()) >= f.MaxConnections {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
		}

		connection, err := f.listener.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.Logger.Warnf("failed to accept connection: %s", err)
			continue
		}

		clientWg.Add(1)
		go f.acceptClient(ctx, connection, clientWg)
	}
}

// acceptClient hands a new connection to the server loop and then forwards
// everything read from it until it closes.
func (f *frontend) acceptClient(ctx context.Context, connection *net.TCPConn, wg *sync.WaitGroup) {
	defer wg.Done()

	c := transport.New(connection)
	f.connected.Add(1)
	defer f.closeConnectionAndRecover(c)

	f.Logger.Infof("accepted connection %d from %s", c.ID(), c.Addr())
	select {
	case f.connections <- c:
	case <-ctx.Done():
		return
	}
	c.ReadLoop(ctx, f.chunks)
}

// closeConnectionAndRecover is the failsafe that catches any panics and
// disconnects the client regardless of the state of the connection.
func (f *frontend) closeConnectionAndRecover(c *transport.Conn) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in client communication with %s: error=%s, trace: %s",
			c.Addr(), err, debug.Stack())
	}

	if err := c.Close(); err != nil {
		f.Logger.Debugf("failed to close client connection: %s", err)
	}
	f.connected.Add(-1)

	f.Logger.Infof("disconnected client %s", c.Addr())
}
