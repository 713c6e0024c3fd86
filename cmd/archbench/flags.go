package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/multisocket/archbench/bench"
	"github.com/multisocket/archbench/client"
	"github.com/multisocket/archbench/errs"
	"github.com/multisocket/archbench/frame"
	"github.com/multisocket/archbench/metrics"
	"github.com/multisocket/archbench/options"
	"github.com/multisocket/archbench/server"
	"github.com/multisocket/archbench/server/blocking"
	"github.com/multisocket/archbench/server/reactor"
)

type serverFlags struct {
	arch         string
	addr         string
	codec        string
	workers      int
	queueSize    int
	maxFrameSize uint32
	noDelay      bool
}

func (f *serverFlags) register(fs *pflag.FlagSet, defaultAddr string) {
	fs.StringVar(&f.arch, "arch", server.ArchBlocking, "Server architecture (blocking, reactor)")
	fs.StringVar(&f.addr, "addr", defaultAddr, "Listen address")
	fs.StringVar(&f.codec, "codec", frame.Binary.Name(), "Payload codec (binary, protobuf)")
	fs.IntVar(&f.workers, "workers", 0, "Sort workers, number of CPUs when 0")
	fs.IntVar(&f.queueSize, "queue-size", 0, "Sort queue size, default when 0")
	fs.Uint32Var(&f.maxFrameSize, "max-frame-size", frame.DefaultMaxFrameSize, "Largest accepted payload in bytes")
	fs.BoolVar(&f.noDelay, "nodelay", true, "Set TCP_NODELAY on accepted connections")
}

func (f *serverFlags) optionValues() options.OptionValues {
	return options.OptionValues{
		server.Options.Addr:         f.addr,
		server.Options.Codec:        f.codec,
		server.Options.Workers:      f.workers,
		server.Options.QueueSize:    f.queueSize,
		server.Options.MaxFrameSize: f.maxFrameSize,
		server.Options.TCP.NoDelay:  f.noDelay,
	}
}

// newServer creates a server of the selected architecture.
func (f *serverFlags) newServer() (server.Server, error) {
	mopts := []metrics.Option{metrics.WithRegistry(registry)}
	switch f.arch {
	case server.ArchBlocking:
		return blocking.New(f.optionValues(), mopts...)
	case server.ArchReactor:
		return reactor.New(f.optionValues(), mopts...)
	}
	return nil, fmt.Errorf("%w: unknown architecture %q", errs.ErrNotSupported, f.arch)
}

type loadFlags struct {
	size              int
	requests          int
	clients           int
	delay             time.Duration
	verify            bool
	stopOnFirstFinish bool
	dialTimeout       time.Duration
}

func (f *loadFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.size, "size", 100, "Array size (N)")
	fs.IntVar(&f.requests, "requests", 10, "Requests per client (X)")
	fs.IntVar(&f.clients, "clients", 10, "Concurrent clients (M)")
	fs.DurationVar(&f.delay, "delay", 0, "Delay between two sends of a client (D)")
	fs.BoolVar(&f.verify, "verify", false, "Check every response is the sorted request")
	fs.BoolVar(&f.stopOnFirstFinish, "stop-on-first-finish", false, "Stop sampling once any client finished")
	fs.DurationVar(&f.dialTimeout, "dial-timeout", 5*time.Second, "Connection timeout")
}

func (f *loadFlags) params() bench.Params {
	return bench.Params{
		ArraySize: f.size,
		Requests:  f.requests,
		Clients:   f.clients,
		Delay:     f.delay,
	}
}

// clientConfig builds the runner configuration for p against addr.
func (f *loadFlags) clientConfig(p bench.Params, addr, codec string, m *metrics.Client) (client.Config, error) {
	c, err := frame.CodecByName(codec)
	if err != nil {
		return client.Config{}, err
	}
	return client.Config{
		Addr:              addr,
		ArraySize:         p.ArraySize,
		Requests:          p.Requests,
		Clients:           p.Clients,
		Delay:             p.Delay,
		Codec:             c,
		Verify:            f.verify,
		StopOnFirstFinish: f.stopOnFirstFinish,
		DialTimeout:       f.dialTimeout,
		Metrics:           m,
	}, nil
}
