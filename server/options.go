package server

import (
	"time"

	"github.com/multisocket/archbench/frame"
	"github.com/multisocket/archbench/options"
)

type (
	tcpOptions struct {
		NoDelay         options.BoolOption
		KeepAlive       options.BoolOption
		KeepAlivePeriod options.TimeDurationOption
	}

	serverOptions struct {
		Addr         options.StringOption
		Workers      options.IntOption
		QueueSize    options.IntOption
		MaxFrameSize options.Uint32Option
		Codec        options.StringOption
		TCP          tcpOptions
	}
)

// Options for both server architectures
var Options = serverOptions{
	Addr:         options.NewStringOption("Server.Addr", "127.0.0.1:8888"),
	Workers:      options.NewIntOption("Server.Workers", 0),
	QueueSize:    options.NewIntOption("Server.QueueSize", 0),
	MaxFrameSize: options.NewUint32Option("Server.MaxFrameSize", frame.DefaultMaxFrameSize),
	Codec:        options.NewStringOption("Server.Codec", frame.Binary.Name()),
	TCP: tcpOptions{
		NoDelay:         options.NewBoolOption("Server.TCP.NoDelay", true),
		KeepAlive:       options.NewBoolOption("Server.TCP.KeepAlive", true),
		KeepAlivePeriod: options.NewTimeDurationOption("Server.TCP.KeepAlivePeriod", 0),
	},
}

// Config is a resolved set of server options.
type Config struct {
	Addr         string
	Workers      int
	QueueSize    int
	MaxFrameSize uint32
	Codec        frame.Codec

	NoDelay         bool
	KeepAlive       bool
	KeepAlivePeriod time.Duration
}

// NewConfig resolves ovs against the defaults.
func NewConfig(ovs options.OptionValues) (*Config, error) {
	if err := ovs.Validate(); err != nil {
		return nil, err
	}
	codec, err := frame.CodecByName(Options.Codec.ValueFrom(ovs))
	if err != nil {
		return nil, err
	}
	return &Config{
		Addr:            Options.Addr.ValueFrom(ovs),
		Workers:         Options.Workers.ValueFrom(ovs),
		QueueSize:       Options.QueueSize.ValueFrom(ovs),
		MaxFrameSize:    Options.MaxFrameSize.ValueFrom(ovs),
		Codec:           codec,
		NoDelay:         Options.TCP.NoDelay.ValueFrom(ovs),
		KeepAlive:       Options.TCP.KeepAlive.ValueFrom(ovs),
		KeepAlivePeriod: Options.TCP.KeepAlivePeriod.ValueFrom(ovs),
	}, nil
}
