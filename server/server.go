// Package server holds what the blocking and reactor architectures share:
// configuration, the accept loop, the start/stop lifecycle and request
// processing on the worker pool.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/multisocket/archbench/bytespool"
	"github.com/multisocket/archbench/conn"
	"github.com/multisocket/archbench/errs"
	"github.com/multisocket/archbench/frame"
	"github.com/multisocket/archbench/metrics"
	"github.com/multisocket/archbench/options"
	"github.com/multisocket/archbench/sorter"
)

// Server is a sorting server.
type Server interface {
	// Start begins listening and returns once the server accepts connections.
	Start() error
	// Stop shuts the server down and blocks until it is torn down.
	Stop() error
	// Addr is the bound listening address, nil when not started.
	Addr() net.Addr
}

// Architecture names
const (
	ArchBlocking = "blocking"
	ArchReactor  = "reactor"
)

// Base is the runtime state of one start/stop cycle, embedded by the
// architectures.
type Base struct {
	Config  *Config
	Metrics *metrics.Server

	arch    string
	running atomic.Bool
	wg      sync.WaitGroup

	// valid between Start and Stop
	Conns *conn.Set
	Pool  *sorter.Pool

	mu       sync.Mutex
	started  bool
	listener *net.TCPListener
}

// NewBase creates the shared runtime for arch.
func NewBase(arch string, ovs options.OptionValues, mopts ...metrics.Option) (*Base, error) {
	cfg, err := NewConfig(ovs)
	if err != nil {
		return nil, err
	}
	return &Base{
		Config:  cfg,
		Metrics: metrics.NewServer(arch, mopts...),
		arch:    arch,
	}, nil
}

// Arch returns the architecture name.
func (b *Base) Arch() string {
	return b.arch
}

// Running reports whether the server is between Start and Stop.
func (b *Base) Running() bool {
	return b.running.Load()
}

// Addr returns the bound listening address.
func (b *Base) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// Go runs f as a tracked goroutine; Stop waits for it.
func (b *Base) Go(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

// Start listens and runs the accept loop, passing accepted connections to
// handle.
func (b *Base) Start(handle func(*net.TCPConn)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errs.ErrAlreadyStarted
	}

	addr, err := ResolveTCPAddr(b.Config.Addr)
	if err != nil {
		return err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}

	b.listener = l
	b.Conns = conn.NewSet()
	b.Pool = sorter.NewPool(b.Config.Workers, b.Config.QueueSize)
	b.started = true
	b.running.Store(true)

	b.Go(func() { b.serve(l, handle) })

	log.WithField("domain", "server").
		WithFields(log.Fields{"arch": b.arch, "addr": l.Addr().String(), "codec": b.Config.Codec.Name()}).
		Info("started")
	return nil
}

// Stop clears the running flag, closes the listener, calls interrupt so
// that architecture loops notice, closes every live connection, waits for
// all tracked goroutines and finally drains the worker pool. Stopping a
// stopped server is a no-op.
func (b *Base) Stop(interrupt func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	b.running.Store(false)

	b.listener.Close()
	if interrupt != nil {
		interrupt()
	}
	b.Conns.CloseAll()
	b.wg.Wait()
	// anything registered while stopping
	b.Conns.CloseAll()
	b.Pool.Close()

	log.WithField("domain", "server").
		WithFields(log.Fields{"arch": b.arch, "addr": b.listener.Addr().String()}).
		Info("stopped")
	b.listener = nil
	return nil
}

// NewConn wraps an accepted connection and registers it as live. It returns
// nil when the server is stopping; the connection is closed then.
func (b *Base) NewConn(nc net.Conn) *conn.Conn {
	c := conn.New(nc, b.Config.MaxFrameSize, b.release)
	b.Conns.Add(c)
	b.Metrics.Connections.Inc()
	// Stop clears the flag before closing the set, so a connection added
	// after that snapshot is seen here.
	if !b.Running() {
		c.Close()
		return nil
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "server").
			WithFields(log.Fields{"arch": b.arch, "id": c.ID(), "remoteAddress": nc.RemoteAddr().String()}).
			Debug("add conn")
	}
	return c
}

func (b *Base) release(c *conn.Conn) {
	b.Conns.Remove(c)
	b.Metrics.Connections.Dec()
}

// CloseWithError closes c after a read or write failure. Peer disconnects
// and local closes are not failures; protocol errors are counted.
func (b *Base) CloseWithError(c *conn.Conn, err error) {
	fields := log.Fields{"arch": b.arch, "id": c.ID()}
	switch {
	case c.IsClosed(), errors.Is(err, net.ErrClosed):
	case err == io.EOF:
		if log.IsLevelEnabled(log.DebugLevel) {
			log.WithField("domain", "server").WithFields(fields).Debug("peer closed")
		}
	case errors.Is(err, errs.ErrProtocol), errors.Is(err, errs.ErrFrameTooLong), errors.Is(err, io.ErrUnexpectedEOF):
		b.Metrics.ProtocolErrors.Inc()
		log.WithField("domain", "server").WithFields(fields).WithError(err).Warn("protocol error")
	default:
		log.WithField("domain", "server").WithFields(fields).WithError(err).Warn("io error")
	}
	c.Close()
}

// Process decodes one request payload, sorts it and encodes the response
// frame.
func Process(codec frame.Codec, payload []byte) ([]byte, error) {
	seq, err := codec.DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	return frame.EncodeWith(codec, sorter.Sort(seq)), nil
}

// Dispatch hands a completed request payload of c to the worker pool. The
// result is queued on c in request order and signal is called whenever the
// connection's writer has to be woken. The payload is owned by Dispatch.
func (b *Base) Dispatch(c *conn.Conn, payload []byte, signal func()) error {
	b.Metrics.FramesIn.Inc()
	seq := c.Queue.Reserve()
	codec := b.Config.Codec
	return b.Pool.Submit(func() {
		start := time.Now()
		resp, err := Process(codec, payload)
		bytespool.Free(payload)
		b.Metrics.SortDuration.Observe(time.Since(start).Seconds())

		var wake bool
		if err != nil {
			wake = c.Queue.Fail(seq, fmt.Errorf("%w: %w", errs.ErrProtocol, err))
		} else {
			wake = c.Queue.Complete(seq, resp)
		}
		if wake {
			signal()
		}
	})
}
