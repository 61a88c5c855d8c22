package tlm2

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrPackLength is returned when a length field exceeds the array it
// describes.
var ErrPackLength = errors.New("tlm2: length exceeds array size")

// ErrShortBuffer is returned by Unpack when the buffer ends early.
var ErrShortBuffer = errors.New("tlm2: packed payload is truncated")

// Pack serializes the transfer fields. The layout is big-endian: address,
// command, length, dmi flag, length data bytes, response status, byte
// enable length, byte enable bytes and streaming width.
func (p *GenericPayload) Pack() ([]byte, error) {
	if int(p.Length) > len(p.Data) {
		return nil, errors.Wrapf(ErrPackLength,
			"PACK_DATA_ARR: data array size %d smaller than length %d",
			len(p.Data), p.Length)
	}

	if int(p.ByteEnableLength) > len(p.ByteEnable) {
		return nil, errors.Wrapf(ErrPackLength,
			"PACK_BYTE_EN_ARR: byte enable array size %d smaller than "+
				"byte enable length %d",
			len(p.ByteEnable), p.ByteEnableLength)
	}

	buf := make([]byte, 0, 29+p.Length+p.ByteEnableLength)

	buf = binary.BigEndian.AppendUint64(buf, p.Address)
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(p.Command)))
	buf = binary.BigEndian.AppendUint32(buf, p.Length)

	if p.DMIAllowed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	buf = append(buf, p.Data[:p.Length]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(p.Response)))
	buf = binary.BigEndian.AppendUint32(buf, p.ByteEnableLength)
	buf = append(buf, p.ByteEnable[:p.ByteEnableLength]...)
	buf = binary.BigEndian.AppendUint32(buf, p.StreamingWidth)

	return buf, nil
}

// Unpack restores the transfer fields written by Pack. Extensions and item
// identity are left untouched. On error p is not modified.
func (p *GenericPayload) Unpack(buf []byte) error {
	r := reader{buf: buf}

	var q GenericPayload

	q.Address = r.uint64()
	q.Command = Command(int32(r.uint32()))
	q.Length = r.uint32()
	q.DMIAllowed = r.bytes(1) != nil && r.last[0] != 0
	q.Data = r.bytes(int(q.Length))
	q.Response = ResponseStatus(int32(r.uint32()))
	q.ByteEnableLength = r.uint32()
	q.ByteEnable = r.bytes(int(q.ByteEnableLength))
	q.StreamingWidth = r.uint32()

	if r.short {
		return errors.Wrapf(ErrShortBuffer, "%d bytes", len(buf))
	}

	p.Address = q.Address
	p.Command = q.Command
	p.Length = q.Length
	p.DMIAllowed = q.DMIAllowed
	p.Data = q.Data
	p.Response = q.Response
	p.ByteEnableLength = q.ByteEnableLength
	p.ByteEnable = q.ByteEnable
	p.StreamingWidth = q.StreamingWidth

	return nil
}

type reader struct {
	buf   []byte
	last  []byte
	short bool
}

func (r *reader) bytes(n int) []byte {
	if r.short || n > len(r.buf) {
		r.short = true
		r.last = nil

		return nil
	}

	r.last = append([]byte(nil), r.buf[:n]...)
	r.buf = r.buf[n:]

	return r.last
}

func (r *reader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}

	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}

	return binary.BigEndian.Uint64(b)
}
