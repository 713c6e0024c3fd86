// Package blocking implements the thread-per-connection architecture: each
// accepted connection gets a reader and a writer goroutine doing blocking
// I/O, and sorting runs on the shared worker pool.
package blocking

import (
	"net"

	"github.com/multisocket/archbench/conn"
	"github.com/multisocket/archbench/metrics"
	"github.com/multisocket/archbench/options"
	"github.com/multisocket/archbench/server"
)

// Server is the blocking architecture.
type Server struct {
	*server.Base
}

// New creates a blocking server; it does not listen until Start.
func New(ovs options.OptionValues, mopts ...metrics.Option) (*Server, error) {
	base, err := server.NewBase(server.ArchBlocking, ovs, mopts...)
	if err != nil {
		return nil, err
	}
	return &Server{Base: base}, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	return s.Base.Start(s.serveConn)
}

// Stop closes the listener and all connections and waits for every reader
// and writer to exit.
func (s *Server) Stop() error {
	return s.Base.Stop(nil)
}

func (s *Server) serveConn(tc *net.TCPConn) {
	c := s.NewConn(tc)
	if c == nil {
		return
	}

	wake := make(chan struct{}, 1)
	signal := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	s.Go(func() { s.read(c, signal) })
	s.Go(func() { s.write(c, wake) })
}

func (s *Server) read(c *conn.Conn, signal func()) {
	defer c.Reader.Reset()
	for {
		payload, done, err := c.Reader.ReadOnce(c)
		if err != nil {
			s.CloseWithError(c, err)
			return
		}
		if !done {
			continue
		}
		if err = s.Dispatch(c, payload, signal); err != nil {
			s.CloseWithError(c, err)
			return
		}
	}
}

func (s *Server) write(c *conn.Conn, wake <-chan struct{}) {
	for {
		select {
		case <-wake:
		case <-c.Done():
			return
		}
		if err := s.flush(c); err != nil {
			s.CloseWithError(c, err)
			return
		}
	}
}

// flush writes queued frames until the queue is drained.
func (s *Server) flush(c *conn.Conn) error {
	for {
		b, err := c.Queue.Next()
		if err != nil {
			return err
		}
		if b == nil {
			if c.Queue.Disarm() {
				return nil
			}
			continue
		}

		n, err := c.Write(b)
		if c.Queue.Advance(n) {
			s.Metrics.FramesOut.Inc()
		}
		if err != nil {
			return err
		}
	}
}
