package sorter

import (
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/multisocket/archbench/errs"
)

const (
	// DefaultQueueSize is the number of tasks that may wait for a worker.
	DefaultQueueSize = 1024
)

// Pool runs tasks on a fixed number of goroutines. Submitting to a full
// queue blocks, which is how a saturated pool pushes back on its callers.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	sync.RWMutex
	closed bool
}

// NewPool starts a pool with the given number of workers and queue size.
// Non-positive values select runtime.NumCPU() and DefaultQueueSize.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	p := &Pool{
		tasks: make(chan func(), queueSize),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "pool").
			WithFields(log.Fields{"workers": workers, "queueSize": queueSize}).
			Debug("create")
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("domain", "pool").
				WithField("panic", r).
				Error("task failed")
		}
	}()
	task()
}

// Submit queues task, blocking while the queue is full.
func (p *Pool) Submit(task func()) error {
	p.RLock()
	defer p.RUnlock()
	if p.closed {
		return errs.ErrClosed
	}
	p.tasks <- task
	return nil
}

// Close stops accepting tasks, runs the ones already queued and waits for
// the workers to exit. Closing twice is a no-op.
func (p *Pool) Close() {
	p.Lock()
	if p.closed {
		p.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.Unlock()

	p.wg.Wait()
}
