// Package frame implements the length-prefixed wire format: a 4 byte
// big-endian payload length followed by the payload, which carries an ordered
// sequence of int32.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/multisocket/archbench/errs"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4
	// DefaultMaxFrameSize bounds the payload length accepted from a peer.
	DefaultMaxFrameSize = 64 * 1024 * 1024
)

// Encode encodes seq into a complete frame with the default codec.
func Encode(seq []int32) []byte {
	return EncodeWith(Binary, seq)
}

// EncodeWith encodes seq into a complete frame with codec c.
func EncodeWith(c Codec, seq []int32) []byte {
	b := make([]byte, HeaderSize, HeaderSize+c.PayloadSize(seq))
	b = c.AppendPayload(b, seq)
	binary.BigEndian.PutUint32(b, uint32(len(b)-HeaderSize))
	return b
}

// DecodePayload decodes a payload produced by the default codec.
func DecodePayload(p []byte) ([]int32, error) {
	return Binary.DecodePayload(p)
}

// PayloadLength parses a length prefix, checking it against maxSize
// (0 means DefaultMaxFrameSize).
func PayloadLength(header []byte, maxSize uint32) (uint32, error) {
	if len(header) < HeaderSize {
		return 0, errs.ErrProtocol
	}
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	sz := binary.BigEndian.Uint32(header)
	if sz > maxSize {
		return 0, fmt.Errorf("%w: %d > %d", errs.ErrFrameTooLong, sz, maxSize)
	}
	return sz, nil
}

// ReadFrame reads one complete frame from r and returns its payload.
// io.EOF is returned only when r ends cleanly between frames.
func ReadFrame(r io.Reader, maxSize uint32) (payload []byte, err error) {
	var header [HeaderSize]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return
	}

	var sz uint32
	if sz, err = PayloadLength(header[:], maxSize); err != nil {
		return
	}

	payload = make([]byte, sz)
	if _, err = io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		payload = nil
	}
	return
}

// WriteFrame writes payload to w prefixed with its length.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	buff := net.Buffers{header[:], payload}
	_, err := buff.WriteTo(w)
	return err
}
