package protocol

import (
	"io"
)

const (
	SEGMENT_BITS = 0x7F
	CONTINUE_BIT = 0x80

	MaxVarIntLen  = 5
	MaxVarLongLen = 10
)

// ReadVarInt decodes a VarInt, reading at most MaxVarIntLen bytes.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var value uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&SEGMENT_BITS) << (7 * i)
		if b&CONTINUE_BIT == 0 {
			return int32(value), nil
		}
	}
	return 0, ErrVarIntTooLong
}

// ReadVarLong decodes a VarLong, reading at most MaxVarLongLen bytes.
func ReadVarLong(r io.ByteReader) (int64, error) {
	var value uint64
	for i := 0; i < MaxVarLongLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b&SEGMENT_BITS) << (7 * i)
		if b&CONTINUE_BIT == 0 {
			return int64(value), nil
		}
	}
	return 0, ErrVarLongTooLong
}

func WriteVarInt(w io.Writer, value int32) error {
	var buf [MaxVarIntLen]byte
	n := PutVarInt(buf[:], value)
	_, err := w.Write(buf[:n])
	return err
}

func WriteVarLong(w io.Writer, value int64) error {
	var buf [MaxVarLongLen]byte
	n := PutVarLong(buf[:], value)
	_, err := w.Write(buf[:n])
	return err
}

// PutVarInt encodes value into buf and returns the number of bytes written.
// buf must hold at least MaxVarIntLen bytes.
func PutVarInt(buf []byte, value int32) int {
	uv := uint32(value)
	i := 0
	for uv&^SEGMENT_BITS != 0 {
		buf[i] = byte(uv&SEGMENT_BITS) | CONTINUE_BIT
		uv >>= 7
		i++
	}
	buf[i] = byte(uv)
	return i + 1
}

func PutVarLong(buf []byte, value int64) int {
	uv := uint64(value)
	i := 0
	for uv&^SEGMENT_BITS != 0 {
		buf[i] = byte(uv&SEGMENT_BITS) | CONTINUE_BIT
		uv >>= 7
		i++
	}
	buf[i] = byte(uv)
	return i + 1
}

// VarIntLen returns the encoded size of value.
func VarIntLen(value int32) int {
	uv := uint32(value)
	n := 1
	for uv >= CONTINUE_BIT {
		uv >>= 7
		n++
	}
	return n
}

func VarLongLen(value int64) int {
	uv := uint64(value)
	n := 1
	for uv >= CONTINUE_BIT {
		uv >>= 7
		n++
	}
	return n
}
