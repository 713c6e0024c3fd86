package conn

import (
	"io"

	"github.com/multisocket/archbench/bytespool"
	"github.com/multisocket/archbench/frame"
)

// ReadState assembles frames from arbitrarily chunked input. It is either
// awaiting the length prefix or awaiting the payload it declared; Buffer
// always returns exactly the bytes still missing for the current state, so a
// read into it never consumes bytes of the following frame.
type ReadState struct {
	maxSize uint32

	header [frame.HeaderSize]byte
	hn     int

	awaitingPayload bool
	payload         []byte
	pn              int
}

// NewReadState creates a ReadState accepting payloads up to maxSize bytes
// (0 means frame.DefaultMaxFrameSize).
func NewReadState(maxSize uint32) *ReadState {
	return &ReadState{maxSize: maxSize}
}

// AwaitingPayload reports whether the length prefix has been read.
func (s *ReadState) AwaitingPayload() bool {
	return s.awaitingPayload
}

// Partial reports whether some bytes of a frame have been buffered.
func (s *ReadState) Partial() bool {
	return s.awaitingPayload || s.hn > 0
}

// Buffer returns the region the next read should fill.
func (s *ReadState) Buffer() []byte {
	if s.awaitingPayload {
		return s.payload[s.pn:]
	}
	return s.header[s.hn:]
}

// Advance records n bytes read into Buffer. When a frame completes, its
// payload is returned with done set and the state goes back to awaiting a
// length. The payload comes from bytespool and is owned by the caller.
func (s *ReadState) Advance(n int) (payload []byte, done bool, err error) {
	if !s.awaitingPayload {
		s.hn += n
		if s.hn < frame.HeaderSize {
			return
		}

		var sz uint32
		if sz, err = frame.PayloadLength(s.header[:], s.maxSize); err != nil {
			return
		}
		s.hn = 0
		s.awaitingPayload = true
		s.payload = bytespool.Alloc(int(sz))
		s.pn = 0
		if sz > 0 {
			return
		}
		// empty payload completes right away
	} else {
		s.pn += n
		if s.pn < len(s.payload) {
			return
		}
	}

	payload, done = s.payload, true
	s.awaitingPayload = false
	s.payload = nil
	s.pn = 0
	return
}

// ReadOnce performs a single Read from r and advances the state. A peer
// closing between frames yields io.EOF, in the middle of one
// io.ErrUnexpectedEOF.
func (s *ReadState) ReadOnce(r io.Reader) (payload []byte, done bool, err error) {
	var n int
	n, err = r.Read(s.Buffer())
	if n > 0 {
		var aerr error
		if payload, done, aerr = s.Advance(n); aerr != nil {
			return nil, false, aerr
		}
		if done {
			return payload, done, nil
		}
	}
	if err == io.EOF && s.Partial() {
		err = io.ErrUnexpectedEOF
	}
	return
}

// Reset discards any partially assembled frame.
func (s *ReadState) Reset() {
	if s.payload != nil {
		bytespool.Free(s.payload)
	}
	s.hn = 0
	s.awaitingPayload = false
	s.payload = nil
	s.pn = 0
}
