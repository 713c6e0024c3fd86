package conn

import (
	"sync"
)

type slot struct {
	b   []byte
	err error
}

// WriteQueue holds a connection's outbound frames. Results may be completed
// in any order by concurrent workers; they are released to the writer in the
// order their sequence numbers were reserved.
//
// Reserve, Complete, Fail and Close are safe for concurrent use. Next,
// Advance and Disarm belong to the connection's single writer.
type WriteQueue struct {
	sync.Mutex
	nextSeq    uint64
	releaseSeq uint64
	pending    map[uint64]slot
	ready      []slot
	armed      bool
	closed     bool

	// writer owned
	current []byte
}

// NewWriteQueue creates an empty WriteQueue.
func NewWriteQueue() *WriteQueue {
	return &WriteQueue{
		pending: make(map[uint64]slot),
	}
}

// Reserve returns the sequence number for the next request.
func (q *WriteQueue) Reserve() uint64 {
	q.Lock()
	seq := q.nextSeq
	q.nextSeq++
	q.Unlock()
	return seq
}

// Complete stores the encoded response for seq. It returns true when the
// writer was idle and must be signalled.
func (q *WriteQueue) Complete(seq uint64, b []byte) bool {
	return q.put(seq, slot{b: b})
}

// Fail marks seq as failed; the writer gets err once every earlier
// response was handed out.
func (q *WriteQueue) Fail(seq uint64, err error) bool {
	return q.put(seq, slot{err: err})
}

func (q *WriteQueue) put(seq uint64, s slot) bool {
	q.Lock()
	defer q.Unlock()
	if q.closed {
		return false
	}

	q.pending[seq] = s
	for {
		s, ok := q.pending[q.releaseSeq]
		if !ok {
			break
		}
		delete(q.pending, q.releaseSeq)
		q.ready = append(q.ready, s)
		q.releaseSeq++
	}

	if len(q.ready) > 0 && !q.armed {
		q.armed = true
		return true
	}
	return false
}

// Next returns the unwritten bytes of the in-flight frame, popping the next
// released frame when there is none. It returns nil when nothing is ready.
func (q *WriteQueue) Next() ([]byte, error) {
	if len(q.current) > 0 {
		return q.current, nil
	}

	q.Lock()
	if len(q.ready) == 0 {
		q.Unlock()
		return nil, nil
	}
	s := q.ready[0]
	q.ready[0] = slot{}
	q.ready = q.ready[1:]
	q.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	q.current = s.b
	return q.current, nil
}

// Advance drops n written bytes, keeping only the unwritten remainder. It
// reports whether the in-flight frame is now fully written.
func (q *WriteQueue) Advance(n int) bool {
	if q.current == nil {
		return false
	}
	q.current = q.current[n:]
	if len(q.current) == 0 {
		q.current = nil
		return true
	}
	return false
}

// Disarm reports whether the queue is drained. When it is, the writer must
// stop waiting for writability; the next Complete signals it again.
func (q *WriteQueue) Disarm() bool {
	if len(q.current) > 0 {
		return false
	}

	q.Lock()
	defer q.Unlock()
	if len(q.ready) > 0 {
		return false
	}
	q.armed = false
	return true
}

// Len returns the number of frames waiting, in flight or not yet released.
func (q *WriteQueue) Len() int {
	q.Lock()
	n := len(q.ready) + len(q.pending)
	q.Unlock()
	if len(q.current) > 0 {
		n++
	}
	return n
}

// Close drops everything queued; later completions are ignored.
func (q *WriteQueue) Close() {
	q.Lock()
	q.closed = true
	q.pending = make(map[uint64]slot)
	q.ready = nil
	q.Unlock()
}
