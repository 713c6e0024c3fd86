// Package reactor implements the readiness-driven architecture: one reader
// loop and one writer loop, each multiplexing every connection on its own
// poller, with sorting on the shared worker pool.
//
// The reader loop owns read interest for all connections. The writer loop
// holds write interest only for connections with pending output and drops it
// as soon as their queue drains. New connections and newly writable queues
// reach the loops through handoff queues followed by a poller wake-up; the
// loops are the only ones that change their poller's interest set.
package reactor

import (
	"sync"

	"github.com/multisocket/archbench/errs"
	"github.com/multisocket/archbench/metrics"
	"github.com/multisocket/archbench/options"
	"github.com/multisocket/archbench/server"
)

// Server is the reactor architecture.
type Server struct {
	*server.Base

	newConns   *handoff
	readyConns *handoff

	lifecycle sync.Mutex
	// valid between Start and Stop
	rpoll *poller
	wpoll *poller
}

// New creates a reactor server; it does not listen until Start.
func New(ovs options.OptionValues, mopts ...metrics.Option) (*Server, error) {
	base, err := server.NewBase(server.ArchReactor, ovs, mopts...)
	if err != nil {
		return nil, err
	}
	return &Server{
		Base:       base,
		newConns:   &handoff{},
		readyConns: &handoff{},
	}, nil
}

// Start opens both pollers, begins accepting and runs the loops.
func (s *Server) Start() (err error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.rpoll != nil {
		return errs.ErrAlreadyStarted
	}

	var rpoll, wpoll *poller
	if rpoll, err = newPoller(); err != nil {
		return
	}
	if wpoll, err = newPoller(); err != nil {
		rpoll.close()
		return
	}

	s.rpoll, s.wpoll = rpoll, wpoll
	if err = s.Base.Start(s.accept); err != nil {
		rpoll.close()
		wpoll.close()
		s.rpoll, s.wpoll = nil, nil
		return
	}
	s.Go(func() { s.readLoop(rpoll) })
	s.Go(func() { s.writeLoop(wpoll) })
	return nil
}

// Stop wakes both loops, closes all connections, waits for the loops and
// the accept loop to exit and then releases the pollers.
func (s *Server) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	rpoll, wpoll := s.rpoll, s.wpoll
	if rpoll == nil {
		return nil
	}
	err := s.Base.Stop(func() {
		rpoll.wake()
		wpoll.wake()
	})
	rpoll.close()
	wpoll.close()
	s.rpoll, s.wpoll = nil, nil
	s.newConns.drain()
	s.readyConns.drain()
	return err
}

// handoff passes connections to a loop.
type handoff struct {
	sync.Mutex
	conns []*rconn
}

func (h *handoff) push(c *rconn) {
	h.Lock()
	h.conns = append(h.conns, c)
	h.Unlock()
}

func (h *handoff) drain() (conns []*rconn) {
	h.Lock()
	conns, h.conns = h.conns, nil
	h.Unlock()
	return
}
