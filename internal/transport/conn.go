package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dcrodman/orion/internal/message"
)

const readBufferSize = 4096

// ErrConnectTimeout is returned by Dial when no connection could be made
// before the timeout elapsed.
var ErrConnectTimeout = errors.New("transport: connect timed out")

// SocketID identifies a connection for the lifetime of the process.
type SocketID uint64

var lastSocketID atomic.Uint64

// Chunk is a piece of the byte stream read from a connection. A non-nil Err
// is the last Chunk for that socket.
type Chunk struct {
	Socket SocketID
	Data   []byte
	Err    error
}

// Conn wraps one TCP connection between a client and the server.
type Conn struct {
	id         SocketID
	connection net.Conn
	addr       string

	alive     atomic.Bool
	closeOnce sync.Once
}

func New(connection net.Conn) *Conn {
	c := &Conn{
		id:         SocketID(lastSocketID.Add(1)),
		connection: connection,
		addr:       connection.RemoteAddr().String(),
	}
	c.alive.Store(true)
	return c
}

func (c *Conn) ID() SocketID { return c.id }
func (c *Conn) Addr() string { return c.addr }

// Alive reports whether the connection has neither failed nor been closed.
func (c *Conn) Alive() bool { return c.alive.Load() }

// Read consumes the available bytes directly from the TCP connection.
func (c *Conn) Read(b []byte) (int, error) {
	return c.connection.Read(b)
}

// Write directly sends data over the TCP connection.
func (c *Conn) Write(b []byte) (int, error) {
	return c.connection.Write(b)
}

// Close the TCP connection. Closing more than once is a no-op.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		err = c.connection.Close()
	})
	return err
}

// ReadLoop forwards everything read from the connection to sink until the
// connection fails or ctx is done. The final Chunk carries the read error.
func (c *Conn) ReadLoop(ctx context.Context, sink chan<- Chunk) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.connection.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case sink <- Chunk{Socket: c.id, Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			c.alive.Store(false)
			select {
			case sink <- Chunk{Socket: c.id, Err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// Send encodes a message into a frame and writes it to the connection.
func (c *Conn) Send(m message.Message) error {
	data, err := message.Encode(m)
	if err != nil {
		return err
	}
	return c.transmit(data)
}

// SendEvent is a shorthand for building the message for ev and sending it.
func (c *Conn) SendEvent(sender message.PlayerID, ev message.Event) error {
	m, err := message.From(sender, ev)
	if err != nil {
		return err
	}
	return c.Send(m)
}

// transmit writes the contents of data to the TCP connection until all of it
// has been accepted.
func (c *Conn) transmit(data []byte) error {
	bytesSent := 0

	for bytesSent < len(data) {
		n, err := c.Write(data[bytesSent:])
		if err != nil {
			c.alive.Store(false)
			return fmt.Errorf("failed to send to %v: %w", c.addr, err)
		}
		bytesSent += n
	}

	return nil
}

// Dial connects to addr, retrying with exponential backoff until timeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		dialer     net.Dialer
		connection net.Conn
	)
	connect := func() error {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		connection = conn
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = 0

	if err := backoff.Retry(connect, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %v", ErrConnectTimeout, addr, timeout)
		}
		return nil, fmt.Errorf("error connecting to %s: %w", addr, err)
	}
	return New(connection), nil
}
