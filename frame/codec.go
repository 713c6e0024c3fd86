package frame

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/multisocket/archbench/errs"
)

type (
	// Codec encodes an int32 sequence into a frame payload and back.
	Codec interface {
		Name() string
		PayloadSize(seq []int32) int
		AppendPayload(dst []byte, seq []int32) []byte
		DecodePayload(p []byte) ([]int32, error)
	}

	binaryCodec   struct{}
	protobufCodec struct{}
)

var (
	// Binary payload: int32 BE count followed by count int32 BE values.
	Binary Codec = binaryCodec{}
	// Protobuf payload: the IntArray message {int32 size = 1; repeated int32 elem = 2;}.
	Protobuf Codec = protobufCodec{}

	codecs = map[string]Codec{
		Binary.Name():   Binary,
		Protobuf.Name(): Protobuf,
	}
)

// CodecByName looks up a codec by its name.
func CodecByName(name string) (Codec, error) {
	if c, ok := codecs[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrBadCodec, name)
}

func (binaryCodec) Name() string {
	return "binary"
}

func (binaryCodec) PayloadSize(seq []int32) int {
	return 4 + 4*len(seq)
}

func (binaryCodec) AppendPayload(dst []byte, seq []int32) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(seq)))
	for _, v := range seq {
		dst = binary.BigEndian.AppendUint32(dst, uint32(v))
	}
	return dst
}

func (binaryCodec) DecodePayload(p []byte) ([]int32, error) {
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: payload of %d bytes has no count", errs.ErrMalformedPayload, len(p))
	}
	count := int32(binary.BigEndian.Uint32(p))
	body := p[4:]
	if count < 0 || len(body)%4 != 0 || len(body)/4 != int(count) {
		return nil, fmt.Errorf("%w: declared %d elements, %d bytes present", errs.ErrMalformedPayload, count, len(body))
	}

	seq := make([]int32, count)
	for i := range seq {
		seq[i] = int32(binary.BigEndian.Uint32(body[4*i:]))
	}
	return seq, nil
}

const (
	fieldSize protowire.Number = 1
	fieldElem protowire.Number = 2
)

func varintSize(v int32) int {
	return protowire.SizeVarint(uint64(int64(v)))
}

func (protobufCodec) Name() string {
	return "protobuf"
}

func (protobufCodec) PayloadSize(seq []int32) int {
	if len(seq) == 0 {
		return 0
	}
	sz := protowire.SizeTag(fieldSize) + varintSize(int32(len(seq)))
	packed := 0
	for _, v := range seq {
		packed += varintSize(v)
	}
	return sz + protowire.SizeTag(fieldElem) + protowire.SizeBytes(packed)
}

func (protobufCodec) AppendPayload(dst []byte, seq []int32) []byte {
	// proto3 leaves zero values out, so an empty sequence is an empty message
	if len(seq) == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, fieldSize, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(len(seq)))

	packed := 0
	for _, v := range seq {
		packed += varintSize(v)
	}
	dst = protowire.AppendTag(dst, fieldElem, protowire.BytesType)
	dst = protowire.AppendVarint(dst, uint64(packed))
	for _, v := range seq {
		dst = protowire.AppendVarint(dst, uint64(int64(v)))
	}
	return dst
}

func (protobufCodec) DecodePayload(p []byte) ([]int32, error) {
	var (
		size int32
		seq  []int32
	)
	for len(p) > 0 {
		num, typ, n := protowire.ConsumeTag(p)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, protowire.ParseError(n))
		}
		p = p[n:]

		switch {
		case num == fieldSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(p)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, protowire.ParseError(n))
			}
			size = int32(v)
			p = p[n:]
		case num == fieldElem && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(p)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, protowire.ParseError(n))
			}
			seq = append(seq, int32(v))
			p = p[n:]
		case num == fieldElem && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(p)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, protowire.ParseError(n))
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return nil, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, protowire.ParseError(m))
				}
				seq = append(seq, int32(v))
				packed = packed[m:]
			}
			p = p[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, p)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, protowire.ParseError(n))
			}
			p = p[n:]
		}
	}

	if int(size) != len(seq) {
		return nil, fmt.Errorf("%w: declared %d elements, decoded %d", errs.ErrMalformedPayload, size, len(seq))
	}
	if seq == nil {
		seq = []int32{}
	}
	return seq, nil
}
