//go:build linux

package reactor

import (
	"io"
	"net"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/multisocket/archbench/conn"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLRDHUP
	writeEvents = unix.EPOLLOUT
)

// rconn is a connection served by the loops. Raw reads and writes go
// through syscall.RawConn so the runtime keeps the descriptor alive while a
// syscall is in progress, even if the connection is closed concurrently.
type rconn struct {
	*conn.Conn
	raw   syscall.RawConn
	fd    int
	wpoll *poller
}

func (c *rconn) rawRead(p []byte) (n int, err error) {
	var serr error
	if err = c.raw.Read(func(fd uintptr) bool {
		n, serr = unix.Read(int(fd), p)
		return true
	}); err != nil {
		return 0, err
	}
	switch {
	case serr == unix.EAGAIN, serr == unix.EINTR:
		return 0, nil
	case serr != nil:
		return 0, serr
	case n == 0 && len(p) > 0:
		return 0, io.EOF
	}
	return n, nil
}

func (c *rconn) rawWrite(p []byte) (n int, err error) {
	var serr error
	if err = c.raw.Write(func(fd uintptr) bool {
		n, serr = unix.Write(int(fd), p)
		return true
	}); err != nil {
		return 0, err
	}
	switch {
	case serr == unix.EAGAIN, serr == unix.EINTR:
		return 0, nil
	case serr != nil:
		return 0, serr
	}
	return n, nil
}

// accept runs on the accept loop; the connection is registered by the
// reader loop on its next wake-up.
func (s *Server) accept(tc *net.TCPConn) {
	raw, err := tc.SyscallConn()
	if err != nil {
		log.WithField("domain", "reactor").WithError(err).Warn("syscall conn")
		tc.Close()
		return
	}
	fd := -1
	if err = raw.Control(func(sfd uintptr) { fd = int(sfd) }); err != nil {
		log.WithField("domain", "reactor").WithError(err).Warn("syscall conn")
		tc.Close()
		return
	}

	c := s.NewConn(tc)
	if c == nil {
		return
	}
	s.newConns.push(&rconn{Conn: c, raw: raw, fd: fd, wpoll: s.wpoll})
	s.rpoll.wake()
}

func (s *Server) readLoop(p *poller) {
	conns := make(map[int]*rconn)
	handle := func(fd int, events uint32) {
		c := conns[fd]
		if c == nil {
			return
		}
		if !c.IsClosed() {
			s.handleRead(c)
		}
		if c.IsClosed() {
			p.del(fd)
			delete(conns, fd)
		}
	}

	for {
		err := p.wait(handle)
		if !s.Running() {
			break
		}
		if err != nil {
			log.WithField("domain", "reactor").WithError(err).Error("read loop wait")
			break
		}

		for _, c := range s.newConns.drain() {
			if c.IsClosed() {
				continue
			}
			if err := p.register(c.fd, readEvents); err != nil {
				s.CloseWithError(c.Conn, err)
				continue
			}
			conns[c.fd] = c
		}
	}

	for _, c := range conns {
		c.Reader.Reset()
	}
}

// handleRead performs one non-blocking read for c and dispatches a
// completed frame.
func (s *Server) handleRead(c *rconn) {
	n, err := c.rawRead(c.Reader.Buffer())
	if err != nil {
		if err == io.EOF && c.Reader.Partial() {
			err = io.ErrUnexpectedEOF
		}
		c.Reader.Reset()
		s.CloseWithError(c.Conn, err)
		return
	}
	if n == 0 {
		return
	}

	payload, done, err := c.Reader.Advance(n)
	if err != nil {
		c.Reader.Reset()
		s.CloseWithError(c.Conn, err)
		return
	}
	if done {
		if err = s.Dispatch(c.Conn, payload, func() { s.signalWrite(c) }); err != nil {
			s.CloseWithError(c.Conn, err)
		}
	}
}

// signalWrite runs on a worker: hand c to the writer loop.
func (s *Server) signalWrite(c *rconn) {
	s.readyConns.push(c)
	c.wpoll.wake()
}

func (s *Server) writeLoop(p *poller) {
	conns := make(map[int]*rconn)
	handle := func(fd int, events uint32) {
		c := conns[fd]
		if c == nil {
			return
		}
		if c.IsClosed() || s.handleWrite(c) {
			// drained or gone: stop watching writability
			p.del(fd)
			delete(conns, fd)
		}
	}

	for {
		err := p.wait(handle)
		if !s.Running() {
			break
		}
		if err != nil {
			log.WithField("domain", "reactor").WithError(err).Error("write loop wait")
			break
		}

		for _, c := range s.readyConns.drain() {
			if c.IsClosed() || conns[c.fd] == c {
				continue
			}
			if err := p.register(c.fd, writeEvents); err != nil {
				s.CloseWithError(c.Conn, err)
				continue
			}
			conns[c.fd] = c
		}
	}
}

// handleWrite performs one non-blocking write of c's pending output and
// reports whether the queue is drained.
func (s *Server) handleWrite(c *rconn) bool {
	b, err := c.Queue.Next()
	if err != nil {
		s.CloseWithError(c.Conn, err)
		return true
	}
	if b == nil {
		return c.Queue.Disarm()
	}

	n, err := c.rawWrite(b)
	if err != nil {
		s.CloseWithError(c.Conn, err)
		return true
	}
	if c.Queue.Advance(n) {
		s.Metrics.FramesOut.Inc()
	}
	return c.Queue.Disarm()
}
