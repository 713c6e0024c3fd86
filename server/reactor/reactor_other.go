//go:build !linux

package reactor

import (
	"net"

	"github.com/multisocket/archbench/errs"
)

// The reactor needs epoll; elsewhere Start fails with errs.ErrNotSupported.

type poller struct{}

type rconn struct{}

func newPoller() (*poller, error) {
	return nil, errs.ErrNotSupported
}

func (p *poller) wake() error {
	return nil
}

func (p *poller) close() {}

func (s *Server) accept(tc *net.TCPConn) {
	tc.Close()
}

func (s *Server) readLoop(p *poller) {}

func (s *Server) writeLoop(p *poller) {}
