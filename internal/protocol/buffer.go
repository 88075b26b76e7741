package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultMaxStringLength is the protocol's general string ceiling, in characters.
const DefaultMaxStringLength = 32767

// Buffer is a forward-only read cursor over one packet payload. A Buffer
// created with NewPlayBuffer also carries the negotiated version and the id
// resolver so nested decoders can branch without globals.
type Buffer struct {
	data []byte
	off  int
	ctx  *Context
}

func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

func NewPlayBuffer(data []byte, ctx *Context) *Buffer {
	return &Buffer{data: data, ctx: ctx}
}

func (b *Buffer) Context() *Context {
	return b.ctx
}

// Version returns the negotiated version, or Latest when the buffer has no context.
func (b *Buffer) Version() Version {
	if b.ctx == nil {
		return Latest
	}
	return b.ctx.Version
}

func (b *Buffer) Resolver() Resolver {
	if b.ctx == nil || b.ctx.Resolver == nil {
		return PassthroughResolver{}
	}
	return b.ctx.Resolver
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

func (b *Buffer) Offset() int {
	return b.off
}

func (b *Buffer) Size() int {
	return len(b.data)
}

// Seek moves the cursor to an absolute offset.
func (b *Buffer) Seek(off int) error {
	if off < 0 || off > len(b.data) {
		return fmt.Errorf("%w: seek to %d in buffer of %d bytes", ErrLengthExceedsBuffer, off, len(b.data))
	}
	b.off = off
	return nil
}

func (b *Buffer) Skip(n int) error {
	_, err := b.take(n)
	return err
}

// Clone returns an independent cursor at the same position over the same bytes.
func (b *Buffer) Clone() *Buffer {
	return &Buffer{data: b.data, off: b.off, ctx: b.ctx}
}

// Sub consumes n bytes and returns a buffer limited to them. The parent cursor
// ends up after the n bytes no matter how much of the child is read.
func (b *Buffer) Sub(n int) (*Buffer, error) {
	data, err := b.take(n)
	if err != nil {
		return nil, err
	}
	return &Buffer{data: data, ctx: b.ctx}, nil
}

func (b *Buffer) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeLength, n)
	}
	if n > b.Len() {
		return nil, shortRead(n, b.Len())
	}
	out := b.data[b.off : b.off+n : b.off+n]
	b.off += n
	return out, nil
}

// Read implements io.Reader.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Len() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

// ReadByte implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Len() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	v := b.data[b.off]
	b.off++
	return v, nil
}

func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadByte()
	return v != 0, err
}

func (b *Buffer) ReadInt8() (int8, error) {
	v, err := b.ReadByte()
	return int8(v), err
}

func (b *Buffer) ReadUint8() (uint8, error) {
	return b.ReadByte()
}

func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *Buffer) ReadUint16() (uint16, error) {
	raw, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	raw, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

func (b *Buffer) ReadInt64() (int64, error) {
	raw, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

func (b *Buffer) ReadFloat32() (float32, error) {
	v, err := b.ReadInt32()
	return math.Float32frombits(uint32(v)), err
}

func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadInt64()
	return math.Float64frombits(uint64(v)), err
}

func (b *Buffer) ReadVarInt() (int32, error) {
	v, err := ReadVarInt(b)
	if err == io.ErrUnexpectedEOF {
		return 0, shortRead(1, 0)
	}
	return v, err
}

func (b *Buffer) ReadVarLong() (int64, error) {
	v, err := ReadVarLong(b)
	if err == io.ErrUnexpectedEOF {
		return 0, shortRead(1, 0)
	}
	return v, err
}

// ReadBytes returns a copy of the next n bytes.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	raw, err := b.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

// ReadRest returns a copy of everything left in the buffer.
func (b *Buffer) ReadRest() []byte {
	out, _ := b.ReadBytes(b.Len())
	return out
}

// ReadVarBytes reads a VarInt-prefixed byte array.
func (b *Buffer) ReadVarBytes() ([]byte, error) {
	n, err := b.ReadVarInt()
	if err != nil {
		return nil, err
	}
	return b.ReadBytes(int(n))
}

// ReadPrefixedBytes reads a byte array whose length prefix is an unsigned
// short before 14w21a and a VarInt after.
func (b *Buffer) ReadPrefixedBytes() ([]byte, error) {
	if b.Version() < V14W21A {
		n, err := b.ReadUint16()
		if err != nil {
			return nil, err
		}
		return b.ReadBytes(int(n))
	}
	return b.ReadVarBytes()
}

func (b *Buffer) ReadString() (string, error) {
	return b.ReadStringMax(b.ctx.maxString())
}

// ReadStringMax reads a VarInt-prefixed UTF-8 string of at most maxLen
// characters. Lengths are checked before anything is allocated.
func (b *Buffer) ReadStringMax(maxLen int) (string, error) {
	n, err := b.ReadVarInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: string length %d", ErrNegativeLength, n)
	}
	if int64(n) > int64(maxLen)*utf8.UTFMax {
		return "", fmt.Errorf("%w: %d bytes, max %d characters", ErrStringTooLong, n, maxLen)
	}
	raw, err := b.take(int(n))
	if err != nil {
		return "", err
	}
	if count := utf8.RuneCount(raw); count > maxLen {
		return "", fmt.Errorf("%w: %d characters, max %d", ErrStringTooLong, count, maxLen)
	}
	return string(raw), nil
}

func (b *Buffer) ReadUUID() (uuid.UUID, error) {
	var id uuid.UUID
	raw, err := b.take(16)
	if err != nil {
		return id, err
	}
	copy(id[:], raw)
	return id, nil
}

// ReadUUIDString reads the dashed textual form some older packets used.
func (b *Buffer) ReadUUIDString() (uuid.UUID, error) {
	s, err := b.ReadStringMax(36)
	if err != nil {
		return uuid.UUID{}, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: uuid %q: %v", ErrMalformed, s, err)
	}
	return id, nil
}

// ReadArrayLen reads a VarInt element count and checks that count elements of
// at least minElemSize bytes could still fit in the buffer.
func (b *Buffer) ReadArrayLen(minElemSize int) (int, error) {
	n, err := b.ReadVarInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: array length %d", ErrNegativeLength, n)
	}
	if minElemSize > 0 && int64(n)*int64(minElemSize) > int64(b.Len()) {
		return 0, shortRead(int(n)*minElemSize, b.Len())
	}
	return int(n), nil
}

func (b *Buffer) ReadLongArray() ([]int64, error) {
	n, err := b.ReadArrayLen(8)
	if err != nil {
		return nil, err
	}
	return b.ReadFixedLongArray(n)
}

func (b *Buffer) ReadFixedLongArray(n int) ([]int64, error) {
	raw, err := b.take(n * 8)
	if err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(binary.BigEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

func (b *Buffer) ReadVarIntArray() ([]int32, error) {
	n, err := b.ReadArrayLen(1)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		if out[i], err = b.ReadVarInt(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadFixedPoint32 reads an int holding a value scaled by 32.
func (b *Buffer) ReadFixedPoint32() (float64, error) {
	v, err := b.ReadInt32()
	return float64(v) / 32.0, err
}

// ReadFixedPoint8 reads a signed byte holding a value scaled by 32.
func (b *Buffer) ReadFixedPoint8() (float64, error) {
	v, err := b.ReadInt8()
	return float64(v) / 32.0, err
}

// ReadAngle reads a rotation stored in 1/256 turn steps and returns degrees.
func (b *Buffer) ReadAngle() (float32, error) {
	v, err := b.ReadInt8()
	return AngleToDegrees(v), err
}

// ReadPosition reads a block position: three separate fields before 14w04a,
// a packed long after that whose bit layout changed at 18w43a.
func (b *Buffer) ReadPosition() (Position, error) {
	if b.Version() < V14W04A {
		x, err := b.ReadInt32()
		if err != nil {
			return Position{}, err
		}
		y, err := b.ReadUint8()
		if err != nil {
			return Position{}, err
		}
		z, err := b.ReadInt32()
		if err != nil {
			return Position{}, err
		}
		return Position{X: x, Y: int32(y), Z: z}, nil
	}
	v, err := b.ReadInt64()
	if err != nil {
		return Position{}, err
	}
	return UnpackPosition(v, b.Version()), nil
}

// ReadBitSet reads a section mask: a single VarLong before 20w49a, a
// VarInt-prefixed long array after.
func (b *Buffer) ReadBitSet() (BitSet, error) {
	if b.Version() < V20W49A {
		v, err := b.ReadVarLong()
		if err != nil {
			return nil, err
		}
		return BitSet{uint64(v)}, nil
	}
	longs, err := b.ReadLongArray()
	if err != nil {
		return nil, err
	}
	return BitSetFromLongs(longs), nil
}

// ReadFixedBitSet reads a bit set of n bits stored in ceil(n/8) bytes,
// least significant byte first.
func (b *Buffer) ReadFixedBitSet(n int) (BitSet, error) {
	raw, err := b.take((n + 7) / 8)
	if err != nil {
		return nil, err
	}
	set := NewBitSet(n)
	for i := 0; i < n; i++ {
		if raw[i/8]&(1<<(i%8)) != 0 {
			set.Set(i)
		}
	}
	return set, nil
}

// ReadLegacyBitSet reads a big-endian mask of the given byte width.
func (b *Buffer) ReadLegacyBitSet(width int) (BitSet, error) {
	raw, err := b.take(width)
	if err != nil {
		return nil, err
	}
	set := NewBitSet(width * 8)
	for i := 0; i < width*8; i++ {
		if raw[width-1-i/8]&(1<<(i%8)) != 0 {
			set.Set(i)
		}
	}
	return set, nil
}

// ReadEntityID reads an entity id: an int before 14w04a, a VarInt after.
func (b *Buffer) ReadEntityID() (int32, error) {
	if b.Version() < V14W04A {
		return b.ReadInt32()
	}
	return b.ReadVarInt()
}

func (b *Buffer) ReadEnum(max int32) (int32, error) {
	v, err := b.ReadVarInt()
	if err != nil {
		return 0, err
	}
	if v < 0 || v >= max {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidEnum, v, max)
	}
	return v, nil
}
