package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func sampleCompound() *Tag {
	return NewCompound(map[string]*Tag{
		"byte":   {Type: TagByte, Value: byte(0xFF)},
		"short":  {Type: TagShort, Value: int16(-2)},
		"int":    {Type: TagInt, Value: int32(-2147483648)},
		"long":   {Type: TagLong, Value: int64(9223372036854775807)},
		"float":  {Type: TagFloat, Value: float32(0.5)},
		"double": {Type: TagDouble, Value: float64(-1.25)},
		"bytes":  {Type: TagByteArray, Value: []byte{1, 2, 3}},
		"name":   {Type: TagString, Value: ""},
		"ints":   {Type: TagIntArray, Value: []int32{1, -1}},
		"longs":  {Type: TagLongArray, Value: []int64{}},
		"list":   NewList(TagInt, &Tag{Type: TagInt, Value: int32(1)}, &Tag{Type: TagInt, Value: int32(2)}),
		"empty":  NewList(TagEnd),
		"nested": NewCompound(map[string]*Tag{"x": {Type: TagString, Value: "y"}}),
	})
}

// TestNBTRoundTripAcrossEras 覆盖 gzip / 具名根 / 无名根 三种网络格式
func TestNBTRoundTripAcrossEras(t *testing.T) {
	tests := []struct {
		name    string
		version Version
	}{
		{"gzip 压缩 (14w28b 之前)", V1_7_6},
		{"具名根", V14W28B},
		{"具名根 1.20.1", V1_20},
		{"无名根", V23W31A},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &Context{Version: tt.version}
			w := NewPlayWriter(ctx)
			in := sampleCompound()
			if err := w.WriteNBT(in); err != nil {
				t.Fatalf("WriteNBT failed: %v", err)
			}
			b := NewPlayBuffer(w.Bytes(), ctx)
			out, err := b.ReadNBT()
			if err != nil {
				t.Fatalf("ReadNBT failed: %v", err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Errorf("往返结果不一致:\n got  %v\n want %v", out, in)
			}
			if b.Len() != 0 {
				t.Errorf("剩余 %d 字节", b.Len())
			}
		})
	}
}

func TestNBTAbsent(t *testing.T) {
	for _, v := range []Version{V1_7_6, V1_8, Latest} {
		ctx := &Context{Version: v}
		w := NewPlayWriter(ctx)
		if err := w.WriteNBT(nil); err != nil {
			t.Fatalf("WriteNBT(nil) failed: %v", err)
		}
		tag, err := NewPlayBuffer(w.Bytes(), ctx).ReadNBT()
		if err != nil || tag != nil {
			t.Errorf("%s: got %v, %v, 期望 nil", v, tag, err)
		}
	}
}

func TestNBTUnknownTagType(t *testing.T) {
	// compound { 0x0D "a" ... }
	payload := []byte{TagCompound, 0x0D, 0x00, 0x01, 'a', 0x00}
	_, err := NewPlayBuffer(payload, &Context{Version: Latest}).ReadNBT()
	if !errors.Is(err, ErrUnknownTagType) {
		t.Fatalf("期望 ErrUnknownTagType, 实际 %v", err)
	}
}

// TestNBTDeepNesting 深层嵌套往返与深度上限
func TestNBTDeepNesting(t *testing.T) {
	build := func(depth int) *Tag {
		tag := NewCompound(nil)
		for i := 0; i < depth; i++ {
			tag = NewCompound(map[string]*Tag{"c": tag})
		}
		return tag
	}

	ctx := &Context{Version: Latest}
	deep := build(200)
	w := NewPlayWriter(ctx)
	if err := w.WriteNBT(deep); err != nil {
		t.Fatalf("WriteNBT failed: %v", err)
	}
	got, err := NewPlayBuffer(w.Bytes(), ctx).ReadNBT()
	if err != nil {
		t.Fatalf("ReadNBT failed: %v", err)
	}
	if !reflect.DeepEqual(got, deep) {
		t.Errorf("深层嵌套往返不一致")
	}

	// hand-built stream deeper than the limit
	var raw []byte
	raw = append(raw, TagCompound)
	for i := 0; i < MaxTagDepth+2; i++ {
		raw = append(raw, TagCompound, 0x00, 0x00)
	}
	_, err = NewPlayBuffer(raw, ctx).ReadNBT()
	if !errors.Is(err, ErrTagTooDeep) {
		t.Fatalf("期望 ErrTagTooDeep, 实际 %v", err)
	}
}

func TestNBTListLengthExceedsBuffer(t *testing.T) {
	payload := []byte{TagCompound, TagList, 0x00, 0x01, 'l', TagLong, 0x7F, 0xFF, 0xFF, 0xFF}
	_, err := NewPlayBuffer(payload, &Context{Version: Latest}).ReadNBT()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("期望 ErrMalformed, 实际 %v", err)
	}
}

// TestNBTEndListWithCount 元素类型为 End 的列表只能为空
func TestNBTEndListWithCount(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantErr bool
	}{
		{"空 End 列表", []byte{TagCompound, TagList, 0x00, 0x01, 'l', TagEnd, 0, 0, 0, 0, TagEnd}, false},
		{"一个 End 元素", []byte{TagCompound, TagList, 0x00, 0x01, 'l', TagEnd, 0, 0, 0, 1, TagEnd}, true},
		{"巨大计数", []byte{TagCompound, TagList, 0x00, 0x01, 'l', TagEnd, 0x04, 0, 0, 0, TagEnd}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlayBuffer(tt.payload, &Context{Version: Latest}).ReadNBT()
			if tt.wantErr && !errors.Is(err, ErrMalformed) {
				t.Fatalf("期望 ErrMalformed, 实际 %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("ReadNBT failed: %v", err)
			}
		})
	}
}

// 嵌套列表的计数按每个元素的最小长度检查
func TestNBTNestedListCountBounded(t *testing.T) {
	// list of 100 compounds in 10 bytes
	payload := []byte{TagCompound, TagList, 0x00, 0x01, 'l', TagCompound, 0, 0, 0, 100, TagEnd}
	_, err := NewPlayBuffer(payload, &Context{Version: Latest}).ReadNBT()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("期望 ErrMalformed, 实际 %v", err)
	}
}

func TestLegacyNBTInflateLimit(t *testing.T) {
	var raw bytes.Buffer
	raw.Write([]byte{TagCompound, 0x00, 0x00, TagByteArray, 0x00, 0x01, 'b'})
	_ = binary.Write(&raw, binary.BigEndian, int32(MaxLegacyNBTLength))
	raw.Write(make([]byte, MaxLegacyNBTLength))
	raw.WriteByte(TagEnd)

	var zipped bytes.Buffer
	zw := gzip.NewWriter(&zipped)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	if zipped.Len() > 0x7FFF {
		t.Fatalf("压缩后 %d 字节, 超出 short 长度", zipped.Len())
	}

	payload := binary.BigEndian.AppendUint16(nil, uint16(zipped.Len()))
	payload = append(payload, zipped.Bytes()...)
	_, err := NewPlayBuffer(payload, &Context{Version: V1_7_6}).ReadNBT()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("期望 ErrMalformed, 实际 %v", err)
	}
}

func TestTagAccessors(t *testing.T) {
	tag := sampleCompound()
	c, ok := tag.Child("byte")
	if !ok {
		t.Fatal("缺少 byte")
	}
	if v, ok := c.Int(); !ok || v != -1 {
		t.Errorf("byte Int() = %d, %v", v, ok)
	}
	nested, _ := tag.Child("nested")
	x, _ := nested.Child("x")
	if s, ok := x.Str(); !ok || s != "y" {
		t.Errorf("Str() = %q, %v", s, ok)
	}
	if _, ok := tag.Child("missing"); ok {
		t.Errorf("不存在的键应返回 false")
	}
}
