package server

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multisocket/archbench/bytespool"
	"github.com/multisocket/archbench/errs"
	"github.com/multisocket/archbench/frame"
	"github.com/multisocket/archbench/metrics"
	"github.com/multisocket/archbench/options"
)

func TestResolveTCPAddr(t *testing.T) {
	addr, err := ResolveTCPAddr("*:8888")
	require.NoError(t, err)
	assert.Equal(t, 8888, addr.Port)
	assert.Nil(t, addr.IP)

	addr, err = ResolveTCPAddr("127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, addr.IP.IsLoopback())
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8888", cfg.Addr)
	assert.Equal(t, frame.Binary, cfg.Codec)
	assert.True(t, cfg.NoDelay)
	assert.Equal(t, uint32(frame.DefaultMaxFrameSize), cfg.MaxFrameSize)

	cfg, err = NewConfig(options.OptionValues{Options.Codec: "protobuf", Options.Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, frame.Protobuf, cfg.Codec)
	assert.Equal(t, 3, cfg.Workers)

	_, err = NewConfig(options.OptionValues{Options.Codec: "json"})
	assert.ErrorIs(t, err, errs.ErrBadCodec)

	_, err = NewConfig(options.OptionValues{Options.Workers: "many"})
	assert.Error(t, err)
}

func TestProcess(t *testing.T) {
	for _, codec := range []frame.Codec{frame.Binary, frame.Protobuf} {
		t.Run(codec.Name(), func(t *testing.T) {
			req := frame.EncodeWith(codec, []int32{3, -1, 2, 2})
			resp, err := Process(codec, req[frame.HeaderSize:])
			require.NoError(t, err)
			assert.Equal(t, frame.EncodeWith(codec, []int32{-1, 2, 2, 3}), resp)
		})
	}

	_, err := Process(frame.Binary, []byte{0, 0, 0, 2, 0, 0, 0, 1})
	assert.ErrorIs(t, err, errs.ErrMalformedPayload)
}

func newTestBase(t *testing.T) *Base {
	t.Helper()
	b, err := NewBase("test", options.OptionValues{Options.Addr: "127.0.0.1:0"},
		metrics.WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	return b
}

// Dispatch queues results in request order whatever the order the workers
// finish in.
func TestDispatchOrder(t *testing.T) {
	b := newTestBase(t)
	accepted := make(chan net.Conn, 1)
	require.NoError(t, b.Start(func(tc *net.TCPConn) { accepted <- tc }))
	defer b.Stop(nil)

	nc, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	defer nc.Close()
	c := b.NewConn(<-accepted)
	require.NotNil(t, c)
	assert.Equal(t, 1, b.Conns.Len())

	reqs := [][]int32{make([]int32, 3000), {2, 1}, {}, {9, 8, 7}}
	for i := range reqs[0] {
		reqs[0][i] = int32(len(reqs[0]) - i)
	}

	var signals atomic.Int32
	for _, req := range reqs {
		enc := frame.Encode(req)
		payload := bytespool.Alloc(len(enc) - frame.HeaderSize)
		copy(payload, enc[frame.HeaderSize:])
		require.NoError(t, b.Dispatch(c, payload, func() { signals.Add(1) }))
	}

	var got [][]int32
	assert.Eventually(t, func() bool {
		for {
			out, err := c.Queue.Next()
			if err != nil {
				return false
			}
			if out == nil {
				return len(got) == len(reqs)
			}
			seq, err := frame.DecodePayload(out[frame.HeaderSize:])
			if err != nil {
				return false
			}
			got = append(got, seq)
			c.Queue.Advance(len(out))
		}
	}, 5*time.Second, time.Millisecond)

	require.Len(t, got, len(reqs))
	assert.Len(t, got[0], 3000)
	assert.Equal(t, int32(1), got[0][0])
	assert.Equal(t, []int32{1, 2}, got[1])
	assert.Empty(t, got[2])
	assert.Equal(t, []int32{7, 8, 9}, got[3])
	assert.Equal(t, 4.0, testutil.ToFloat64(b.Metrics.FramesIn))
	assert.GreaterOrEqual(t, signals.Load(), int32(1))
}

func TestDispatchMalformed(t *testing.T) {
	b := newTestBase(t)
	accepted := make(chan net.Conn, 1)
	require.NoError(t, b.Start(func(tc *net.TCPConn) { accepted <- tc }))
	defer b.Stop(nil)

	nc, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	defer nc.Close()
	c := b.NewConn(<-accepted)
	require.NotNil(t, c)

	woken := make(chan struct{})
	payload := bytespool.Alloc(5)
	require.NoError(t, b.Dispatch(c, payload, func() { close(woken) }))
	<-woken

	_, err = c.Queue.Next()
	assert.ErrorIs(t, err, errs.ErrProtocol)
	assert.ErrorIs(t, err, errs.ErrMalformedPayload)

	b.CloseWithError(c, err)
	assert.True(t, c.IsClosed())
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics.ProtocolErrors))
	assert.Equal(t, 0, b.Conns.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Metrics.Connections))
}

func TestCloseWithErrorClassification(t *testing.T) {
	b := newTestBase(t)
	require.NoError(t, b.Start(func(tc *net.TCPConn) { tc.Close() }))
	defer b.Stop(nil)

	cases := []struct {
		name     string
		err      error
		protocol bool
	}{
		{"eof", io.EOF, false},
		{"closed", net.ErrClosed, false},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"too long", errs.ErrFrameTooLong, true},
		{"io", errors.New("connection reset"), false},
	}
	var want float64
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := net.Pipe()
			c := b.NewConn(a)
			require.NotNil(t, c)
			b.CloseWithError(c, tc.err)
			assert.True(t, c.IsClosed())
			if tc.protocol {
				want++
			}
			assert.Equal(t, want, testutil.ToFloat64(b.Metrics.ProtocolErrors))
		})
	}
}

func TestNewConnAfterStop(t *testing.T) {
	b := newTestBase(t)
	require.NoError(t, b.Start(func(tc *net.TCPConn) { tc.Close() }))
	assert.Equal(t, errs.ErrAlreadyStarted, b.Start(nil))
	require.NoError(t, b.Stop(nil))
	assert.Nil(t, b.Addr())
	assert.False(t, b.Running())

	a, p := net.Pipe()
	defer p.Close()
	assert.Nil(t, b.NewConn(a))
	_, err := a.Write([]byte{1})
	assert.Error(t, err)
	assert.Equal(t, 0, b.Conns.Len())
}
