package utils

import (
	"math/rand"
	"sync"
	"time"
)

// RecyclableIDGenerator hands out unique, non-zero ids; an id becomes
// available again after Recycle.
type RecyclableIDGenerator struct {
	sync.Mutex
	ids  map[uint32]struct{}
	next uint32
}

// NewRecyclableIDGenerator create an id generator
func NewRecyclableIDGenerator() *RecyclableIDGenerator {
	return &RecyclableIDGenerator{
		ids:  make(map[uint32]struct{}),
		next: uint32(rand.New(rand.NewSource(time.Now().UnixNano())).Int63()),
	}
}

// NextID get the next id
func (g *RecyclableIDGenerator) NextID() (id uint32) {
	g.Lock()
	defer g.Unlock()
	for {
		id = g.next
		g.next++
		if id == 0 {
			continue
		}
		if _, ok := g.ids[id]; !ok {
			g.ids[id] = struct{}{}
			break
		}
	}
	return
}

// Recycle recyle the id for future use.
func (g *RecyclableIDGenerator) Recycle(id uint32) {
	g.Lock()
	delete(g.ids, id)
	g.Unlock()
}

// InUse reports how many ids are currently handed out.
func (g *RecyclableIDGenerator) InUse() int {
	g.Lock()
	defer g.Unlock()
	return len(g.ids)
}
