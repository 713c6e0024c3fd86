// Package client is the load generator: a number of concurrent clients, each
// sending a series of random arrays over its own connection and timing every
// round trip.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/multisocket/archbench/errs"
	"github.com/multisocket/archbench/frame"
	"github.com/multisocket/archbench/metrics"
	"github.com/multisocket/archbench/sorter"
	"github.com/multisocket/archbench/stats"
	"github.com/multisocket/archbench/utils"
)

// Config describes one load run.
type Config struct {
	// Addr is the server address.
	Addr string
	// ArraySize is the length of every request array.
	ArraySize int
	// Requests is the number of requests each client sends.
	Requests int
	// Clients is the number of concurrent clients.
	Clients int
	// Delay is the pause between two sends of the same client. Sends do
	// not wait for responses.
	Delay time.Duration

	// Codec is the payload codec, frame.Binary when nil.
	Codec frame.Codec
	// Verify checks every response is the sorted request.
	Verify bool
	// StopOnFirstFinish stops recording samples as soon as any client has
	// sent and received all its requests. This reproduces a harness that
	// under-reports latency; it exists for comparison with such results
	// only.
	StopOnFirstFinish bool
	// DialTimeout bounds connection establishment, no bound when zero.
	DialTimeout time.Duration
	// MaxFrameSize bounds response payloads, frame.DefaultMaxFrameSize
	// when zero.
	MaxFrameSize uint32
	// Seed seeds the array generator, time based when zero.
	Seed int64
	// Metrics receives latency observations. Runners of one sweep share
	// it; a private set is created when nil.
	Metrics *metrics.Client
}

// Validate checks the parameters.
func (cfg *Config) Validate() error {
	if cfg.ArraySize < 0 || cfg.Requests < 0 || cfg.Clients < 0 || cfg.Delay < 0 {
		return fmt.Errorf("%w: negative load parameter", errs.ErrBadRange)
	}
	return nil
}

// Runner runs a load configuration against a server.
type Runner struct {
	cfg     Config
	metrics *metrics.Client
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Codec == nil {
		cfg.Codec = frame.Binary
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewClient()
	}
	return &Runner{
		cfg:     cfg,
		metrics: cfg.Metrics,
	}, nil
}

// Config returns the effective configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// Run starts every client and blocks until all of them are done. The
// statistics are returned even when some clients failed; the error then
// describes those failures.
func (r *Runner) Run(ctx context.Context) (*stats.Statistics, error) {
	var (
		st       = stats.New()
		finished atomic.Bool
		wg       sync.WaitGroup
		failures = make([]error, r.cfg.Clients)
	)

	start := time.Now()
	wg.Add(r.cfg.Clients)
	for i := 0; i < r.cfg.Clients; i++ {
		c := &client{
			id:       i,
			runner:   r,
			st:       st,
			finished: &finished,
			rng:      rand.New(rand.NewSource(r.cfg.Seed + int64(i))),
		}
		go func(i int) {
			defer wg.Done()
			if err := c.run(ctx); err != nil {
				r.metrics.Failures.Inc()
				log.WithField("domain", "client").
					WithField("id", i).
					WithError(err).
					Warn("client failed")
				failures[i] = fmt.Errorf("client %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "client").
			WithFields(log.Fields{"clients": r.cfg.Clients, "requests": r.cfg.Requests, "size": r.cfg.ArraySize, "delay": r.cfg.Delay}).
			WithField("elapsed", time.Since(start)).
			WithField("stats", st.String()).
			Debug("run")
	}
	return st, errors.Join(failures...)
}

type pending struct {
	req  []int32
	sent time.Time
}

type client struct {
	id       int
	runner   *Runner
	st       *stats.Statistics
	finished *atomic.Bool
	rng      *rand.Rand
}

func (c *client) generate() []int32 {
	seq := make([]int32, c.runner.cfg.ArraySize)
	for i := range seq {
		seq[i] = int32(c.rng.Uint32())
	}
	return seq
}

func (c *client) run(ctx context.Context) error {
	cfg := &c.runner.cfg

	d := net.Dialer{Timeout: cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return err
	}
	defer nc.Close()
	if tc, ok := nc.(*net.TCPConn); ok {
		// TCP no delay, please!
		tc.SetNoDelay(true)
	}
	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()

	inflight := make(chan pending, cfg.Requests)
	sendErr := make(chan error, 1)
	go func() {
		defer close(inflight)
		if err := c.send(ctx, nc, inflight); err != nil {
			sendErr <- err
			nc.Close()
		}
	}()

	var recvErr error
	for p := range inflight {
		if recvErr != nil {
			continue
		}
		recvErr = c.receive(nc, p)
	}

	select {
	case err = <-sendErr:
	default:
		err = recvErr
	}
	if err == nil {
		c.finished.Store(true)
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return err
}

// send writes every request, spaced by the configured delay.
func (c *client) send(ctx context.Context, nc net.Conn, inflight chan<- pending) error {
	cfg := &c.runner.cfg
	tm := utils.NewTimer()
	defer tm.Stop()

	for i := 0; i < cfg.Requests; i++ {
		if i > 0 {
			if err := tm.Sleep(ctx, cfg.Delay); err != nil {
				return err
			}
		}
		req := c.generate()
		b := frame.EncodeWith(cfg.Codec, req)

		// queued before writing so the response always finds it
		inflight <- pending{req: req, sent: time.Now()}
		if _, err := nc.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// receive reads the response to p, the oldest outstanding request.
func (c *client) receive(nc net.Conn, p pending) error {
	cfg := &c.runner.cfg

	payload, err := frame.ReadFrame(nc, cfg.MaxFrameSize)
	if err != nil {
		return err
	}
	latency := time.Since(p.sent)

	if !(cfg.StopOnFirstFinish && c.finished.Load()) {
		c.st.AddDuration(latency)
	}
	c.runner.metrics.Latency.Observe(latency.Seconds())
	c.runner.metrics.Requests.Inc()

	if !cfg.Verify {
		return nil
	}
	resp, err := cfg.Codec.DecodePayload(payload)
	if err != nil {
		return err
	}
	if !sorter.IsSorted(resp) || !sorter.IsPermutation(p.req, resp) {
		return fmt.Errorf("%w: response of %d elements is not the sorted request", errs.ErrBadResponse, len(resp))
	}
	return nil
}
