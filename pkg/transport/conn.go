package transport

import (
	"errors"
	"io"
	"net"

	"github.com/google/uuid"

	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/wire"
)

// ErrConnClosed indicates the connection was closed locally.
var ErrConnClosed = errors.New("connection closed")

// Conn is one framed envelope stream. Each connection carries a UUID
// used to correlate log events across layers.
type Conn struct {
	id     string
	framer *Framer
	closer io.Closer
}

// NewConn wraps a stream in an envelope connection with a fresh
// connection id.
func NewConn(rw io.ReadWriteCloser, logger log.Logger) *Conn {
	id := uuid.NewString()
	framer := NewFramer(rw)
	framer.SetLogger(logger, id)
	return &Conn{id: id, framer: framer, closer: rw}
}

// ID returns the connection's UUID.
func (c *Conn) ID() string {
	return c.id
}

// Send encodes and writes one envelope.
func (c *Conn) Send(env *wire.Envelope) error {
	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return c.framer.WriteFrame(data)
}

// Receive reads and decodes one envelope. A frame that fails envelope
// validation returns wire.ErrMalformedEnvelope; callers close the
// connection on that error.
func (c *Conn) Receive() (*wire.Envelope, error) {
	data, err := c.framer.ReadFrame()
	if err != nil {
		return nil, err
	}
	return wire.DecodeEnvelope(data)
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.closer.Close()
}

// Dial connects to a hub daemon over TCP.
func Dial(address string, logger log.Logger) (*Conn, error) {
	nc, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, logger), nil
}

// Listener accepts framed envelope connections over TCP.
type Listener struct {
	ln     net.Listener
	logger log.Logger
}

// Listen starts a TCP listener on the address.
func Listen(address string, logger log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, logger: logger}, nil
}

// Accept waits for the next connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(nc, l.logger), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops the listener.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Loopback returns a connected in-process pair, for tests and
// same-process endpoints that want the full envelope path.
func Loopback(logger log.Logger) (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a, logger), NewConn(b, logger)
}
