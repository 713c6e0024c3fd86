package test

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/multisocket/archbench/errs"
	"github.com/multisocket/archbench/frame"
	"github.com/multisocket/archbench/options"
	"github.com/multisocket/archbench/server"
)

const (
	metricConnections    = "archbench_server_connections"
	metricProtocolErrors = "archbench_server_protocol_errors_total"
	metricFramesOut      = "archbench_server_frames_sent_total"
)

func withServer(t testing.TB, newServer newServerFunc, ovses ...options.OptionValues) (server.Server, *prometheus.Registry) {
	t.Helper()
	s, reg, err := startServer(newServer, ovses...)
	if err == errSkip {
		t.Skip(err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	return s, reg
}

func sorted(seq []int32) []int32 {
	s := slices.Clone(seq)
	slices.Sort(s)
	return s
}

func assertSortedOf(t *testing.T, req, resp []int32, msgAndArgs ...interface{}) {
	t.Helper()
	if len(req) == 0 {
		assert.Empty(t, resp, msgAndArgs...)
		return
	}
	assert.Equal(t, sorted(req), resp, msgAndArgs...)
}

func TestSortRoundTrip(t *testing.T) {
	for _, codec := range []frame.Codec{frame.Binary, frame.Protobuf} {
		codec := codec
		t.Run(codec.Name(), func(t *testing.T) {
			for idx := range archs {
				arch := archs[idx]
				t.Run(arch.name, func(t *testing.T) {
					s, _ := withServer(t, arch.newServer, options.OptionValues{server.Options.Codec: codec.Name()})
					nc, err := dial(s)
					require.NoError(t, err)
					defer nc.Close()

					for _, size := range sizes {
						seq := genRandomSeq(size.sz)
						resp, err := roundTrip(nc, codec, seq)
						require.NoError(t, err, size.name)
						assertSortedOf(t, seq, resp, size.name)
					}
				})
			}
		})
	}
}

func TestDuplicatesAndExtremes(t *testing.T) {
	seq := []int32{5, -3, 5, 2147483647, -2147483648, 0, 5}
	for idx := range archs {
		arch := archs[idx]
		t.Run(arch.name, func(t *testing.T) {
			s, _ := withServer(t, arch.newServer)
			nc, err := dial(s)
			require.NoError(t, err)
			defer nc.Close()

			resp, err := roundTrip(nc, frame.Binary, seq)
			require.NoError(t, err)
			assert.Equal(t, []int32{-2147483648, -3, 0, 5, 5, 5, 2147483647}, resp)
		})
	}
}

// Responses on one connection come back in request order even when a
// large request is followed by small ones that finish sorting first.
func TestPipelinedOrder(t *testing.T) {
	const (
		conns    = 8
		requests = 60
	)
	for idx := range archs {
		arch := archs[idx]
		t.Run(arch.name, func(t *testing.T) {
			s, _ := withServer(t, arch.newServer, options.OptionValues{server.Options.Workers: 4})

			var wg sync.WaitGroup
			failures := make([]error, conns)
			wg.Add(conns)
			for i := 0; i < conns; i++ {
				go func(i int) {
					defer wg.Done()
					failures[i] = pipeline(s, requests)
				}(i)
			}
			wg.Wait()
			for i, err := range failures {
				assert.NoError(t, err, "conn %d", i)
			}
		})
	}
}

func pipeline(s server.Server, requests int) error {
	nc, err := dial(s)
	if err != nil {
		return err
	}
	defer nc.Close()

	reqs := make([][]int32, requests)
	for i := range reqs {
		if i%3 == 0 {
			reqs[i] = genRandomSeq(3000)
		} else {
			reqs[i] = genRandomSeq(i % 7)
		}
	}

	werr := make(chan error, 1)
	go func() {
		for _, req := range reqs {
			if _, err := nc.Write(frame.Encode(req)); err != nil {
				werr <- err
				return
			}
		}
		werr <- nil
	}()

	for i, req := range reqs {
		resp, err := readSeq(nc, frame.Binary)
		if err != nil {
			return fmt.Errorf("response %d: %w", i, err)
		}
		if !slices.Equal(sorted(req), resp) {
			return fmt.Errorf("response %d out of order", i)
		}
	}
	return <-werr
}

func TestByteByByte(t *testing.T) {
	for idx := range archs {
		arch := archs[idx]
		t.Run(arch.name, func(t *testing.T) {
			s, _ := withServer(t, arch.newServer)
			nc, err := dial(s)
			require.NoError(t, err)
			defer nc.Close()
			nc.SetNoDelay(true)

			seq := genRandomSeq(20)
			for _, b := range frame.Encode(seq) {
				_, err = nc.Write([]byte{b})
				require.NoError(t, err)
				time.Sleep(time.Millisecond)
			}
			resp, err := readSeq(nc, frame.Binary)
			require.NoError(t, err)
			assertSortedOf(t, seq, resp)
		})
	}
}

// The valid request before a malformed one is answered, then only the
// offending connection is closed.
func TestMalformedPayload(t *testing.T) {
	for idx := range archs {
		arch := archs[idx]
		t.Run(arch.name, func(t *testing.T) {
			s, reg := withServer(t, arch.newServer)
			bad, err := dial(s)
			require.NoError(t, err)
			defer bad.Close()
			good, err := dial(s)
			require.NoError(t, err)
			defer good.Close()

			seq := genRandomSeq(10)
			_, err = bad.Write(frame.Encode(seq))
			require.NoError(t, err)
			// count says 5, one element follows
			_, err = bad.Write(append(header(8), 0, 0, 0, 5, 0, 0, 0, 1))
			require.NoError(t, err)

			resp, err := readSeq(bad, frame.Binary)
			require.NoError(t, err)
			assertSortedOf(t, seq, resp)

			bad.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err = frame.ReadFrame(bad, 0)
			assert.Error(t, err)
			assert.False(t, isTimeout(err))

			seq = genRandomSeq(100)
			resp, err = roundTrip(good, frame.Binary, seq)
			require.NoError(t, err)
			assertSortedOf(t, seq, resp)

			assert.Eventually(t, func() bool {
				return counterValue(reg, metricProtocolErrors) == 1 && counterValue(reg, metricConnections) == 1
			}, 5*time.Second, 10*time.Millisecond)
		})
	}
}

func TestTruncatedFrame(t *testing.T) {
	for idx := range archs {
		arch := archs[idx]
		t.Run(arch.name, func(t *testing.T) {
			s, reg := withServer(t, arch.newServer)
			nc, err := dial(s)
			require.NoError(t, err)
			_, err = nc.Write(append(header(100), make([]byte, 10)...))
			require.NoError(t, err)
			nc.Close()

			assert.Eventually(t, func() bool {
				return counterValue(reg, metricProtocolErrors) == 1 && counterValue(reg, metricConnections) == 0
			}, 5*time.Second, 10*time.Millisecond)

			nc, err = dial(s)
			require.NoError(t, err)
			defer nc.Close()
			seq := genRandomSeq(50)
			resp, err := roundTrip(nc, frame.Binary, seq)
			require.NoError(t, err)
			assertSortedOf(t, seq, resp)
		})
	}
}

func TestCleanDisconnect(t *testing.T) {
	for idx := range archs {
		arch := archs[idx]
		t.Run(arch.name, func(t *testing.T) {
			s, reg := withServer(t, arch.newServer)
			nc, err := dial(s)
			require.NoError(t, err)
			_, err = roundTrip(nc, frame.Binary, genRandomSeq(5))
			require.NoError(t, err)
			nc.Close()

			assert.Eventually(t, func() bool {
				return counterValue(reg, metricConnections) == 0
			}, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, 0.0, counterValue(reg, metricProtocolErrors))
			assert.Equal(t, 1.0, counterValue(reg, metricFramesOut))
		})
	}
}

func TestFrameTooLong(t *testing.T) {
	for idx := range archs {
		arch := archs[idx]
		t.Run(arch.name, func(t *testing.T) {
			s, reg := withServer(t, arch.newServer, options.OptionValues{server.Options.MaxFrameSize: uint32(1024)})
			nc, err := dial(s)
			require.NoError(t, err)
			defer nc.Close()

			_, err = nc.Write(header(4096))
			require.NoError(t, err)
			nc.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err = frame.ReadFrame(nc, 0)
			assert.Error(t, err)
			assert.False(t, isTimeout(err))

			assert.Eventually(t, func() bool {
				return counterValue(reg, metricProtocolErrors) == 1
			}, 5*time.Second, 10*time.Millisecond)
		})
	}
}

func TestStartStop(t *testing.T) {
	for idx := range archs {
		arch := archs[idx]
		t.Run(arch.name, func(t *testing.T) {
			s, _ := withServer(t, arch.newServer)
			assert.Equal(t, errs.ErrAlreadyStarted, s.Start())

			require.NoError(t, s.Stop())
			assert.Nil(t, s.Addr())
			assert.NoError(t, s.Stop())

			// a stopped server starts again
			require.NoError(t, s.Start())
			nc, err := dial(s)
			require.NoError(t, err)
			defer nc.Close()
			seq := genRandomSeq(30)
			resp, err := roundTrip(nc, frame.Binary, seq)
			require.NoError(t, err)
			assertSortedOf(t, seq, resp)
		})
	}
}

func TestStopWithOpenConnections(t *testing.T) {
	for _, n := range []int{0, 1, 50} {
		n := n
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			for idx := range archs {
				arch := archs[idx]
				t.Run(arch.name, func(t *testing.T) {
					testStopWithOpenConnections(t, arch.newServer, n)
				})
			}
		})
	}
}

func testStopWithOpenConnections(t *testing.T, newServer newServerFunc, n int) {
	s, reg := withServer(t, newServer)

	conns := make([]net.Conn, n)
	for i := range conns {
		nc, err := dial(s)
		require.NoError(t, err)
		defer nc.Close()
		_, err = roundTrip(nc, frame.Binary, genRandomSeq(10))
		require.NoError(t, err)
		conns[i] = nc
	}
	// in flight while stopping
	for _, nc := range conns {
		_, err := nc.Write(frame.Encode(genRandomSeq(2000)))
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("stop timed out")
	}

	assert.Nil(t, s.Addr())
	assert.Equal(t, 0.0, counterValue(reg, metricConnections))
	for i, nc := range conns {
		nc.SetReadDeadline(time.Now().Add(5 * time.Second))
		var err error
		for err == nil {
			// the in-flight response may or may not have been written
			_, err = frame.ReadFrame(nc, 0)
		}
		assert.False(t, isTimeout(err), "conn %d", i)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
