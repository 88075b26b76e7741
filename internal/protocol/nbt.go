package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/klauspost/compress/gzip"
)

const (
	TagEnd       = 0
	TagByte      = 1
	TagShort     = 2
	TagInt       = 3
	TagLong      = 4
	TagFloat     = 5
	TagDouble    = 6
	TagByteArray = 7
	TagString    = 8
	TagList      = 9
	TagCompound  = 10
	TagIntArray  = 11
	TagLongArray = 12
)

// MaxTagDepth bounds compound/list nesting.
const MaxTagDepth = 512

// MaxLegacyNBTLength bounds the inflated size of gzip-wrapped NBT.
const MaxLegacyNBTLength = 2 << 20

// Tag is one node of a compound tree. Value holds byte, int16, int32, int64,
// float32, float64, []byte, string, *ListValue, map[string]*Tag, []int32 or
// []int64 depending on Type.
type Tag struct {
	Type  byte
	Value any
}

// ListValue keeps the element type so that empty lists survive a round trip.
type ListValue struct {
	ElemType byte
	Items    []*Tag
}

func NewCompound(entries map[string]*Tag) *Tag {
	if entries == nil {
		entries = map[string]*Tag{}
	}
	return &Tag{Type: TagCompound, Value: entries}
}

func NewList(elemType byte, items ...*Tag) *Tag {
	if items == nil {
		items = []*Tag{}
	}
	return &Tag{Type: TagList, Value: &ListValue{ElemType: elemType, Items: items}}
}

func (t *Tag) String() string {
	switch t.Type {
	case TagByte:
		return fmt.Sprintf("Byte(%d)", t.Value.(byte))
	case TagShort:
		return fmt.Sprintf("Short(%d)", t.Value.(int16))
	case TagInt:
		return fmt.Sprintf("Int(%d)", t.Value.(int32))
	case TagLong:
		return fmt.Sprintf("Long(%d)", t.Value.(int64))
	case TagFloat:
		return fmt.Sprintf("Float(%f)", t.Value.(float32))
	case TagDouble:
		return fmt.Sprintf("Double(%f)", t.Value.(float64))
	case TagByteArray:
		return fmt.Sprintf("ByteArray(%v)", t.Value.([]byte))
	case TagString:
		return fmt.Sprintf("String(%s)", t.Value.(string))
	case TagList:
		return fmt.Sprintf("List(%v)", t.Value.(*ListValue).Items)
	case TagCompound:
		return fmt.Sprintf("Compound(%v)", t.Value.(map[string]*Tag))
	case TagIntArray:
		return fmt.Sprintf("IntArray(%v)", t.Value.([]int32))
	case TagLongArray:
		return fmt.Sprintf("LongArray(%v)", t.Value.([]int64))
	default:
		return "Unknown"
	}
}

// Child returns a named entry of a compound.
func (t *Tag) Child(name string) (*Tag, bool) {
	if t == nil || t.Type != TagCompound {
		return nil, false
	}
	c, ok := t.Value.(map[string]*Tag)[name]
	return c, ok
}

// Int converts any integral tag to int64.
func (t *Tag) Int() (int64, bool) {
	if t == nil {
		return 0, false
	}
	switch v := t.Value.(type) {
	case byte:
		return int64(int8(v)), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func (t *Tag) Str() (string, bool) {
	if t == nil || t.Type != TagString {
		return "", false
	}
	return t.Value.(string), true
}

// ReadNBT reads a network compound tag in the layout of the buffer's version:
// gzip-wrapped with a short length before 14w28b, named root before 23w31a,
// nameless root after. A missing tag is returned as nil.
func (b *Buffer) ReadNBT() (*Tag, error) {
	if b.Version() < V14W28B {
		n, err := b.ReadInt16()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		raw, err := b.take(int(n))
		if err != nil {
			return nil, err
		}
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip nbt: %v", ErrMalformed, err)
		}
		inflated, err := io.ReadAll(io.LimitReader(zr, MaxLegacyNBTLength+1))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip nbt: %v", ErrMalformed, err)
		}
		if len(inflated) > MaxLegacyNBTLength {
			return nil, fmt.Errorf("%w: gzip nbt inflates past %d bytes", ErrMalformed, MaxLegacyNBTLength)
		}
		tag, _, err := ReadNamedTag(NewPlayBuffer(inflated, b.ctx))
		return tag, err
	}
	if b.Version() < V23W31A {
		tag, _, err := ReadNamedTag(b)
		return tag, err
	}
	typ, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	if typ == TagEnd {
		return nil, nil
	}
	return readTagPayload(b, typ, 0)
}

// ReadNamedTag reads a root tag preceded by its name, as stored in files.
func ReadNamedTag(b *Buffer) (*Tag, string, error) {
	typ, err := b.ReadByte()
	if err != nil {
		return nil, "", err
	}
	if typ == TagEnd {
		return nil, "", nil
	}
	name, err := readTagString(b)
	if err != nil {
		return nil, "", err
	}
	tag, err := readTagPayload(b, typ, 0)
	return tag, name, err
}

func readTagPayload(b *Buffer, typ byte, depth int) (*Tag, error) {
	if depth > MaxTagDepth {
		return nil, ErrTagTooDeep
	}
	switch typ {
	case TagByte:
		v, err := b.ReadByte()
		return &Tag{Type: typ, Value: v}, err
	case TagShort:
		v, err := b.ReadInt16()
		return &Tag{Type: typ, Value: v}, err
	case TagInt:
		v, err := b.ReadInt32()
		return &Tag{Type: typ, Value: v}, err
	case TagLong:
		v, err := b.ReadInt64()
		return &Tag{Type: typ, Value: v}, err
	case TagFloat:
		v, err := b.ReadFloat32()
		return &Tag{Type: typ, Value: v}, err
	case TagDouble:
		v, err := b.ReadFloat64()
		return &Tag{Type: typ, Value: v}, err
	case TagByteArray:
		n, err := readTagLen(b, 1)
		if err != nil {
			return nil, err
		}
		v, err := b.ReadBytes(n)
		return &Tag{Type: typ, Value: v}, err
	case TagString:
		v, err := readTagString(b)
		return &Tag{Type: typ, Value: v}, err
	case TagList:
		elemType, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		if elemType > TagLongArray {
			return nil, fmt.Errorf("%w: %d", ErrUnknownTagType, elemType)
		}
		n, err := readTagLen(b, minTagPayload[elemType])
		if err != nil {
			return nil, err
		}
		if elemType == TagEnd && n > 0 {
			return nil, fmt.Errorf("%w: list of %d end tags", ErrMalformed, n)
		}
		list := &ListValue{ElemType: elemType, Items: make([]*Tag, 0, min(n, b.Len()))}
		for i := 0; i < n; i++ {
			item, err := readTagPayload(b, elemType, depth+1)
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
		}
		return &Tag{Type: typ, Value: list}, nil
	case TagCompound:
		entries := make(map[string]*Tag)
		for {
			childType, err := b.ReadByte()
			if err != nil {
				return nil, err
			}
			if childType == TagEnd {
				break
			}
			name, err := readTagString(b)
			if err != nil {
				return nil, err
			}
			child, err := readTagPayload(b, childType, depth+1)
			if err != nil {
				return nil, err
			}
			entries[name] = child
		}
		return &Tag{Type: typ, Value: entries}, nil
	case TagIntArray:
		n, err := readTagLen(b, 4)
		if err != nil {
			return nil, err
		}
		v := make([]int32, n)
		for i := range v {
			if v[i], err = b.ReadInt32(); err != nil {
				return nil, err
			}
		}
		return &Tag{Type: typ, Value: v}, nil
	case TagLongArray:
		n, err := readTagLen(b, 8)
		if err != nil {
			return nil, err
		}
		v, err := b.ReadFixedLongArray(n)
		return &Tag{Type: typ, Value: v}, err
	case TagEnd:
		// only legal as the element type of an empty list
		return &Tag{Type: TagEnd}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTagType, typ)
	}
}

// minTagPayload is the smallest encoding of each tag type's payload, used to
// reject lengths the remaining bytes cannot hold.
var minTagPayload = [...]int{
	TagEnd:       0,
	TagByte:      1,
	TagShort:     2,
	TagInt:       4,
	TagLong:      8,
	TagFloat:     4,
	TagDouble:    8,
	TagByteArray: 4,
	TagString:    2,
	TagList:      5,
	TagCompound:  1,
	TagIntArray:  4,
	TagLongArray: 4,
}

func readTagLen(b *Buffer, elemSize int) (int, error) {
	n, err := b.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: tag length %d", ErrNegativeLength, n)
	}
	if int64(n)*int64(elemSize) > int64(b.Len()) {
		return 0, shortRead(int(n)*elemSize, b.Len())
	}
	return int(n), nil
}

func readTagString(b *Buffer) (string, error) {
	n, err := b.ReadUint16()
	if err != nil {
		return "", err
	}
	raw, err := b.take(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// WriteNBT is the inverse of Buffer.ReadNBT. A nil tag encodes as absent.
func (w *Writer) WriteNBT(t *Tag) error {
	if w.Version() < V14W28B {
		if t == nil {
			w.WriteInt16(-1)
			return nil
		}
		var raw bytes.Buffer
		zw := gzip.NewWriter(&raw)
		inner := NewPlayWriter(w.ctx)
		if err := WriteNamedTag(inner, "", t); err != nil {
			return err
		}
		if _, err := zw.Write(inner.Bytes()); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		if raw.Len() > math.MaxInt16 {
			return fmt.Errorf("compressed nbt too large: %d bytes", raw.Len())
		}
		w.WriteInt16(int16(raw.Len()))
		w.WriteBytes(raw.Bytes())
		return nil
	}
	if t == nil {
		return w.WriteByte(TagEnd)
	}
	if w.Version() < V23W31A {
		return WriteNamedTag(w, "", t)
	}
	w.WriteUint8(t.Type)
	return writeTagPayload(w, t, 0)
}

func WriteNamedTag(w *Writer, name string, t *Tag) error {
	w.WriteUint8(t.Type)
	writeTagString(w, name)
	return writeTagPayload(w, t, 0)
}

func writeTagPayload(w *Writer, t *Tag, depth int) error {
	if depth > MaxTagDepth {
		return ErrTagTooDeep
	}
	switch t.Type {
	case TagByte:
		w.WriteUint8(t.Value.(byte))
	case TagShort:
		w.WriteInt16(t.Value.(int16))
	case TagInt:
		w.WriteInt32(t.Value.(int32))
	case TagLong:
		w.WriteInt64(t.Value.(int64))
	case TagFloat:
		w.WriteFloat32(t.Value.(float32))
	case TagDouble:
		w.WriteFloat64(t.Value.(float64))
	case TagByteArray:
		v := t.Value.([]byte)
		w.WriteInt32(int32(len(v)))
		w.WriteBytes(v)
	case TagString:
		writeTagString(w, t.Value.(string))
	case TagList:
		list := t.Value.(*ListValue)
		w.WriteUint8(list.ElemType)
		w.WriteInt32(int32(len(list.Items)))
		for _, item := range list.Items {
			if item.Type != list.ElemType {
				return fmt.Errorf("list of %d holds a %d tag", list.ElemType, item.Type)
			}
			if err := writeTagPayload(w, item, depth+1); err != nil {
				return err
			}
		}
	case TagCompound:
		entries := t.Value.(map[string]*Tag)
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child := entries[name]
			w.WriteUint8(child.Type)
			writeTagString(w, name)
			if err := writeTagPayload(w, child, depth+1); err != nil {
				return err
			}
		}
		w.WriteUint8(TagEnd)
	case TagIntArray:
		v := t.Value.([]int32)
		w.WriteInt32(int32(len(v)))
		for _, x := range v {
			w.WriteInt32(x)
		}
	case TagLongArray:
		v := t.Value.([]int64)
		w.WriteInt32(int32(len(v)))
		for _, x := range v {
			w.WriteInt64(x)
		}
	case TagEnd:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTagType, t.Type)
	}
	return nil
}

func writeTagString(w *Writer, s string) {
	var raw [2]byte
	binary.BigEndian.PutUint16(raw[:], uint16(len(s)))
	w.WriteBytes(raw[:])
	w.WriteBytes([]byte(s))
}
