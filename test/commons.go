// Package test runs the same scenarios against every server architecture.
package test

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/multisocket/archbench/errs"
	"github.com/multisocket/archbench/frame"
	"github.com/multisocket/archbench/metrics"
	"github.com/multisocket/archbench/options"
	"github.com/multisocket/archbench/server"
	"github.com/multisocket/archbench/server/blocking"
	"github.com/multisocket/archbench/server/reactor"
)

type newServerFunc func(ovs options.OptionValues, mopts ...metrics.Option) (server.Server, error)

var (
	archs = []struct {
		name      string
		newServer newServerFunc
	}{
		{server.ArchBlocking, func(ovs options.OptionValues, mopts ...metrics.Option) (server.Server, error) {
			return blocking.New(ovs, mopts...)
		}},
		{server.ArchReactor, func(ovs options.OptionValues, mopts ...metrics.Option) (server.Server, error) {
			return reactor.New(ovs, mopts...)
		}},
	}

	sizes = []struct {
		name string
		sz   int
	}{
		{"0", 0},
		{"1", 1},
		{"10", 10},
		{"100", 100},
		{"1K", 1000},
		{"5K", 5000},
	}
)

func init() {
	initRandSeed(0)
}

func initRandSeed(randSeed int64) int64 {
	if randSeed == 0 {
		randSeed = time.Now().UnixNano()
	}
	rand.Seed(randSeed)
	return randSeed
}

// errSkip reports an architecture this platform cannot run.
var errSkip = errors.New("architecture not supported here")

// startServer starts a server on an ephemeral loopback port, with its
// metrics on a private registry.
func startServer(newServer newServerFunc, ovses ...options.OptionValues) (s server.Server, reg *prometheus.Registry, err error) {
	ovs := options.OptionValues{server.Options.Addr: "127.0.0.1:0"}
	for _, o := range ovses {
		for opt, val := range o {
			ovs[opt] = val
		}
	}

	reg = prometheus.NewRegistry()
	if s, err = newServer(ovs, metrics.WithRegistry(reg)); err != nil {
		return
	}
	if err = s.Start(); errors.Is(err, errs.ErrNotSupported) {
		err = errSkip
	}
	return
}

func dial(s server.Server) (*net.TCPConn, error) {
	nc, err := net.DialTimeout("tcp", s.Addr().String(), 5*time.Second)
	if err != nil {
		return nil, err
	}
	return nc.(*net.TCPConn), nil
}

func genRandomSeq(n int) []int32 {
	seq := make([]int32, n)
	for i := range seq {
		seq[i] = int32(rand.Uint32())
	}
	return seq
}

func roundTrip(nc net.Conn, codec frame.Codec, seq []int32) ([]int32, error) {
	if _, err := nc.Write(frame.EncodeWith(codec, seq)); err != nil {
		return nil, err
	}
	return readSeq(nc, codec)
}

func readSeq(nc net.Conn, codec frame.Codec) ([]int32, error) {
	payload, err := frame.ReadFrame(nc, 0)
	if err != nil {
		return nil, err
	}
	return codec.DecodePayload(payload)
}

// header returns a bare length prefix.
func header(sz uint32) []byte {
	var b [frame.HeaderSize]byte
	binary.BigEndian.PutUint32(b[:], sz)
	return b[:]
}

// counterValue sums the samples of a counter or gauge family in reg.
func counterValue(reg prometheus.Gatherer, name string) float64 {
	mfs, err := reg.Gather()
	if err != nil {
		return -1
	}
	var v float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				v += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				v += m.GetGauge().GetValue()
			}
		}
	}
	return v
}
