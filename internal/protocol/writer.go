package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Writer builds one packet payload. Like Buffer it can carry a Context so
// encoders pick the layout of the negotiated version.
type Writer struct {
	buf bytes.Buffer
	ctx *Context
}

func NewWriter() *Writer {
	return &Writer{}
}

func NewPlayWriter(ctx *Context) *Writer {
	return &Writer{ctx: ctx}
}

func (w *Writer) Context() *Context {
	return w.ctx
}

func (w *Writer) Version() Version {
	if w.ctx == nil {
		return Latest
	}
	return w.ctx.Version
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) Len() int {
	return w.buf.Len()
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *Writer) WriteByte(v byte) error {
	return w.buf.WriteByte(v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *Writer) WriteInt8(v int8) {
	w.buf.WriteByte(byte(v))
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

func (w *Writer) WriteUint16(v uint16) {
	var raw [2]byte
	binary.BigEndian.PutUint16(raw[:], v)
	w.buf.Write(raw[:])
}

func (w *Writer) WriteInt32(v int32) {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], uint32(v))
	w.buf.Write(raw[:])
}

func (w *Writer) WriteInt64(v int64) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(v))
	w.buf.Write(raw[:])
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteInt32(int32(math.Float32bits(v)))
}

func (w *Writer) WriteFloat64(v float64) {
	w.WriteInt64(int64(math.Float64bits(v)))
}

func (w *Writer) WriteVarInt(v int32) {
	var raw [MaxVarIntLen]byte
	n := PutVarInt(raw[:], v)
	w.buf.Write(raw[:n])
}

func (w *Writer) WriteVarLong(v int64) {
	var raw [MaxVarLongLen]byte
	n := PutVarLong(raw[:], v)
	w.buf.Write(raw[:n])
}

func (w *Writer) WriteBytes(p []byte) {
	w.buf.Write(p)
}

func (w *Writer) WriteVarBytes(p []byte) {
	w.WriteVarInt(int32(len(p)))
	w.buf.Write(p)
}

// WritePrefixedBytes mirrors Buffer.ReadPrefixedBytes.
func (w *Writer) WritePrefixedBytes(p []byte) error {
	if w.Version() < V14W21A {
		if len(p) > math.MaxUint16 {
			return fmt.Errorf("%w: %d bytes for a short prefix", ErrLengthExceedsBuffer, len(p))
		}
		w.WriteUint16(uint16(len(p)))
		w.buf.Write(p)
		return nil
	}
	w.WriteVarBytes(p)
	return nil
}

// WriteString writes s without a length check; see WriteStringMax.
func (w *Writer) WriteString(s string) {
	w.WriteVarInt(int32(len(s)))
	w.buf.WriteString(s)
}

// WriteStringMax writes s if it has at most maxLen characters, the same bound
// ReadStringMax applies. Nothing is written on error.
func (w *Writer) WriteStringMax(s string, maxLen int) error {
	if count := utf8.RuneCountInString(s); count > maxLen {
		return fmt.Errorf("%w: %d characters, max %d", ErrStringTooLong, count, maxLen)
	}
	w.WriteString(s)
	return nil
}

// WriteBoundedString applies the context's string limit, like ReadString.
func (w *Writer) WriteBoundedString(s string) error {
	return w.WriteStringMax(s, w.ctx.maxString())
}

func (w *Writer) WriteUUID(id uuid.UUID) {
	w.buf.Write(id[:])
}

func (w *Writer) WriteLongArray(v []int64) {
	w.WriteVarInt(int32(len(v)))
	for _, l := range v {
		w.WriteInt64(l)
	}
}

func (w *Writer) WriteVarIntArray(v []int32) {
	w.WriteVarInt(int32(len(v)))
	for _, x := range v {
		w.WriteVarInt(x)
	}
}

func (w *Writer) WriteFixedPoint32(v float64) {
	w.WriteInt32(int32(math.Floor(v * 32.0)))
}

func (w *Writer) WriteFixedPoint8(v float64) {
	w.WriteInt8(int8(math.Floor(v * 32.0)))
}

func (w *Writer) WriteAngle(deg float32) {
	w.WriteInt8(DegreesToAngle(deg))
}

func (w *Writer) WritePosition(p Position) {
	if w.Version() < V14W04A {
		w.WriteInt32(p.X)
		w.WriteUint8(uint8(p.Y))
		w.WriteInt32(p.Z)
		return
	}
	w.WriteInt64(PackPosition(p, w.Version()))
}

func (w *Writer) WriteBitSet(set BitSet) {
	if w.Version() < V20W49A {
		var v uint64
		if len(set) > 0 {
			v = set[0]
		}
		w.WriteVarLong(int64(v))
		return
	}
	w.WriteLongArray(set.Longs())
}

func (w *Writer) WriteFixedBitSet(set BitSet, n int) {
	raw := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if set.Get(i) {
			raw[i/8] |= 1 << (i % 8)
		}
	}
	w.buf.Write(raw)
}

func (w *Writer) WriteLegacyBitSet(set BitSet, width int) {
	raw := make([]byte, width)
	for i := 0; i < width*8; i++ {
		if set.Get(i) {
			raw[width-1-i/8] |= 1 << (i % 8)
		}
	}
	w.buf.Write(raw)
}

func (w *Writer) WriteEntityID(id int32) {
	if w.Version() < V14W04A {
		w.WriteInt32(id)
		return
	}
	w.WriteVarInt(id)
}
