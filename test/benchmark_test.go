package test

import (
	"sync"
	"testing"

	"github.com/multisocket/archbench/frame"
)

func BenchmarkSingleLatency(b *testing.B) {
	for idx := range sizes {
		size := sizes[idx]
		b.Run(size.name, func(b *testing.B) {
			sz := size.sz
			for idx := range archs {
				arch := archs[idx]
				b.Run(arch.name, func(b *testing.B) {
					benchmarkSingleLatency(b, arch.newServer, sz)
				})
			}
		})
	}
}

func BenchmarkGroupLatency(b *testing.B) {
	for idx := range sizes {
		size := sizes[idx]
		b.Run(size.name, func(b *testing.B) {
			sz := size.sz
			for idx := range archs {
				arch := archs[idx]
				b.Run(arch.name, func(b *testing.B) {
					benchmarkGroupLatency(b, arch.newServer, sz, 16)
				})
			}
		})
	}
}

// benchmarkSingleLatency measures one round trip at a time on one
// connection.
func benchmarkSingleLatency(b *testing.B, newServer newServerFunc, sz int) {
	s, _ := withServer(b, newServer)
	nc, err := dial(s)
	if err != nil {
		b.Fatalf("dial error: %s", err)
	}
	defer nc.Close()
	nc.SetNoDelay(true)

	req := frame.Encode(genRandomSeq(sz))
	b.SetBytes(int64(len(req)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err = nc.Write(req); err != nil {
			b.Fatalf("send error: %s", err)
		}
		if _, err = frame.ReadFrame(nc, 0); err != nil {
			b.Fatalf("recv error: %s", err)
		}
	}
}

// benchmarkGroupLatency spreads b.N round trips over conns connections.
func benchmarkGroupLatency(b *testing.B, newServer newServerFunc, sz int, conns int) {
	s, _ := withServer(b, newServer)
	req := frame.Encode(genRandomSeq(sz))
	b.SetBytes(int64(len(req)))

	var (
		wg   sync.WaitGroup
		next = make(chan struct{}, b.N)
	)
	for i := 0; i < b.N; i++ {
		next <- struct{}{}
	}
	close(next)

	b.ResetTimer()
	wg.Add(conns)
	for i := 0; i < conns; i++ {
		go func() {
			defer wg.Done()
			nc, err := dial(s)
			if err != nil {
				b.Errorf("dial error: %s", err)
				return
			}
			defer nc.Close()
			for range next {
				if _, err = nc.Write(req); err != nil {
					b.Errorf("send error: %s", err)
					return
				}
				if _, err = frame.ReadFrame(nc, 0); err != nil {
					b.Errorf("recv error: %s", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
