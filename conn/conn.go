// Package conn holds the per-connection state shared by both server
// architectures: frame assembly on the read side, an ordered result queue on
// the write side, and the live connection registry.
package conn

import (
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/multisocket/archbench/utils"
)

// Conn is one accepted connection.
//
// Reader is touched only by the goroutine or loop serving reads, Queue's
// writer side only by the one serving writes. Workers talk to the
// connection exclusively through Queue.Complete and Queue.Fail.
type Conn struct {
	net.Conn
	Reader *ReadState
	Queue  *WriteQueue

	id      uint32
	onClose func(*Conn)
	done    chan struct{}

	sync.Mutex
	closed bool
}

var (
	connID = utils.NewRecyclableIDGenerator()
)

// New wraps nc. onClose, if not nil, runs once after the socket is closed.
func New(nc net.Conn, maxFrameSize uint32, onClose func(*Conn)) *Conn {
	return &Conn{
		Conn:    nc,
		Reader:  NewReadState(maxFrameSize),
		Queue:   NewWriteQueue(),
		id:      connID.NextID(),
		onClose: onClose,
		done:    make(chan struct{}),
	}
}

// ID returns the connection's identity, unique among live connections.
func (c *Conn) ID() uint32 {
	return c.id
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	c.Lock()
	defer c.Unlock()
	return c.closed
}

// Close closes the socket and drops queued output. Closing a closed
// connection is a no-op.
func (c *Conn) Close() error {
	c.Lock()
	if c.closed {
		c.Unlock()
		return nil
	}
	c.closed = true
	c.Unlock()

	close(c.done)
	c.Queue.Close()
	err := c.Conn.Close()

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "conn").
			WithFields(log.Fields{"id": c.id, "remoteAddress": c.RemoteAddr().String()}).
			Debug("close")
	}

	if c.onClose != nil {
		c.onClose(c)
	}
	connID.Recycle(c.id)
	return err
}
