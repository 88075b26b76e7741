package protocol

import (
	"errors"
	"math"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestBufferFixedWidthRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteInt8(-128)
	w.WriteUint8(255)
	w.WriteInt16(math.MinInt16)
	w.WriteUint16(math.MaxUint16)
	w.WriteInt32(math.MinInt32)
	w.WriteInt64(math.MaxInt64)
	w.WriteFloat32(1.5)
	w.WriteFloat64(-2.25)

	b := NewBuffer(w.Bytes())
	if v, _ := b.ReadBool(); !v {
		t.Errorf("ReadBool = false, 期望 true")
	}
	if v, _ := b.ReadBool(); v {
		t.Errorf("ReadBool = true, 期望 false")
	}
	if v, _ := b.ReadInt8(); v != -128 {
		t.Errorf("ReadInt8 = %d", v)
	}
	if v, _ := b.ReadUint8(); v != 255 {
		t.Errorf("ReadUint8 = %d", v)
	}
	if v, _ := b.ReadInt16(); v != math.MinInt16 {
		t.Errorf("ReadInt16 = %d", v)
	}
	if v, _ := b.ReadUint16(); v != math.MaxUint16 {
		t.Errorf("ReadUint16 = %d", v)
	}
	if v, _ := b.ReadInt32(); v != math.MinInt32 {
		t.Errorf("ReadInt32 = %d", v)
	}
	if v, _ := b.ReadInt64(); v != math.MaxInt64 {
		t.Errorf("ReadInt64 = %d", v)
	}
	if v, _ := b.ReadFloat32(); v != 1.5 {
		t.Errorf("ReadFloat32 = %v", v)
	}
	if v, _ := b.ReadFloat64(); v != -2.25 {
		t.Errorf("ReadFloat64 = %v", v)
	}
	if b.Len() != 0 {
		t.Errorf("剩余 %d 字节, 期望 0", b.Len())
	}
}

func TestBufferStringRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"空字符串", ""},
		{"ASCII", "hello"},
		{"多字节", "你好, 世界"},
		{"最大长度", strings.Repeat("a", 16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			w.WriteString(tt.input)
			got, err := NewBuffer(w.Bytes()).ReadStringMax(16)
			if err != nil {
				t.Fatalf("ReadStringMax failed: %v", err)
			}
			if got != tt.input {
				t.Errorf("got %q, 期望 %q", got, tt.input)
			}
		})
	}
}

func TestBufferStringTooLong(t *testing.T) {
	w := NewWriter()
	w.WriteString(strings.Repeat("a", 17))
	_, err := NewBuffer(w.Bytes()).ReadStringMax(16)
	if !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("期望 ErrStringTooLong, 实际 %v", err)
	}
}

// 写入与读取使用同一上限, 按字符计
func TestWriteStringMax(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxLen  int
		wantErr bool
	}{
		{"at limit", strings.Repeat("a", 16), 16, false},
		{"over limit", strings.Repeat("a", 17), 16, true},
		{"multibyte at limit", strings.Repeat("方", 16), 16, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			err := w.WriteStringMax(tt.input, tt.maxLen)
			if tt.wantErr {
				if !errors.Is(err, ErrStringTooLong) {
					t.Fatalf("期望 ErrStringTooLong, 实际 %v", err)
				}
				if w.Len() != 0 {
					t.Errorf("出错时写入了 %d 字节", w.Len())
				}
				return
			}
			if err != nil {
				t.Fatalf("WriteStringMax: %v", err)
			}
			got, err := NewBuffer(w.Bytes()).ReadStringMax(tt.maxLen)
			if err != nil || got != tt.input {
				t.Errorf("读回 %q, %v", got, err)
			}
		})
	}
}

func TestWriteBoundedStringUsesContextLimit(t *testing.T) {
	w := NewPlayWriter(&Context{Version: V1_12_2, MaxStringLength: 4})
	if err := w.WriteBoundedString("abcde"); !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("期望 ErrStringTooLong, 实际 %v", err)
	}
	if err := NewWriter().WriteBoundedString(strings.Repeat("a", DefaultMaxStringLength)); err != nil {
		t.Fatalf("默认上限内的字符串被拒绝: %v", err)
	}
	if err := NewWriter().WriteBoundedString(strings.Repeat("a", DefaultMaxStringLength+1)); !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("期望 ErrStringTooLong, 实际 %v", err)
	}
}

// TestBufferStringDeclaredTooLongDoesNotAllocate 声明长度超限时不得按声明长度分配
func TestBufferStringDeclaredTooLongDoesNotAllocate(t *testing.T) {
	w := NewWriter()
	w.WriteVarInt(1 << 30)
	w.WriteBytes([]byte("abc"))
	payload := w.Bytes()

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := NewBuffer(payload).ReadStringMax(DefaultMaxStringLength)
	runtime.ReadMemStats(&after)

	if !errors.Is(err, ErrStringTooLong) || !errors.Is(err, ErrMalformed) {
		t.Fatalf("期望 malformed ErrStringTooLong, 实际 %v", err)
	}
	if grown := after.TotalAlloc - before.TotalAlloc; grown > 1<<20 {
		t.Errorf("分配了 %d 字节", grown)
	}
}

func TestBufferLengthExceedsRemaining(t *testing.T) {
	w := NewWriter()
	w.WriteVarInt(10)
	w.WriteBytes([]byte{1, 2, 3})
	if _, err := NewBuffer(w.Bytes()).ReadVarBytes(); !errors.Is(err, ErrLengthExceedsBuffer) {
		t.Fatalf("期望 ErrLengthExceedsBuffer, 实际 %v", err)
	}

	w = NewWriter()
	w.WriteVarInt(1000)
	w.WriteInt64(1)
	if _, err := NewBuffer(w.Bytes()).ReadLongArray(); !errors.Is(err, ErrLengthExceedsBuffer) {
		t.Fatalf("期望 ErrLengthExceedsBuffer, 实际 %v", err)
	}
}

func TestBufferUUIDRoundTrip(t *testing.T) {
	ids := []uuid.UUID{
		uuid.Nil,
		uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5"),
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}
	for _, id := range ids {
		w := NewWriter()
		w.WriteUUID(id)
		if len(w.Bytes()) != 16 {
			t.Fatalf("UUID 编码为 %d 字节", len(w.Bytes()))
		}
		b := NewBuffer(w.Bytes())
		msb, _ := b.Clone().ReadInt64()
		got, err := b.ReadUUID()
		if err != nil {
			t.Fatalf("ReadUUID failed: %v", err)
		}
		if got != id {
			t.Errorf("got %s, 期望 %s", got, id)
		}
		wantMSB := int64(uint64(id[0])<<56 | uint64(id[1])<<48 | uint64(id[2])<<40 | uint64(id[3])<<32 |
			uint64(id[4])<<24 | uint64(id[5])<<16 | uint64(id[6])<<8 | uint64(id[7]))
		if msb != wantMSB {
			t.Errorf("高位 = %x, 期望 %x", msb, wantMSB)
		}
	}
}

func TestFixedPointAndAngle(t *testing.T) {
	w := NewWriter()
	w.WriteFixedPoint32(-12.5)
	w.WriteFixedPoint8(1.5)
	w.WriteAngle(90)
	b := NewBuffer(w.Bytes())

	if v, _ := b.ReadFixedPoint32(); v != -12.5 {
		t.Errorf("ReadFixedPoint32 = %v, 期望 -12.5", v)
	}
	if v, _ := b.ReadFixedPoint8(); v != 1.5 {
		t.Errorf("ReadFixedPoint8 = %v, 期望 1.5", v)
	}
	if v, _ := b.ReadAngle(); v != 90 {
		t.Errorf("ReadAngle = %v, 期望 90", v)
	}
	if AngleToDegrees(-128) != 180 {
		t.Errorf("AngleToDegrees(-128) = %v, 期望 180", AngleToDegrees(-128))
	}
}

// TestPositionPacking 覆盖 14w04a 与 18w43a 两个边界
func TestPositionPacking(t *testing.T) {
	pos := Position{X: -30000000 + 1, Y: -64, Z: 12345}
	tests := []struct {
		name    string
		version Version
		size    int
	}{
		{"1.7 三字段", V1_7_6, 9},
		{"14w04a 打包", V14W04A, 8},
		{"18w43a 前一版本", V1_13_2, 8},
		{"18w43a", V18W43A, 8},
		{"最新", Latest, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pos
			if tt.version < V14W04A {
				p.Y = 64
			}
			ctx := &Context{Version: tt.version}
			w := NewPlayWriter(ctx)
			w.WritePosition(p)
			if len(w.Bytes()) != tt.size {
				t.Fatalf("编码 %d 字节, 期望 %d", len(w.Bytes()), tt.size)
			}
			got, err := NewPlayBuffer(w.Bytes(), ctx).ReadPosition()
			if err != nil {
				t.Fatalf("ReadPosition failed: %v", err)
			}
			if got != p {
				t.Errorf("got %+v, 期望 %+v", got, p)
			}
		})
	}

	// same bits, different layout across the boundary
	packed := PackPosition(Position{X: 1, Y: 2, Z: 3}, V1_13_2)
	if UnpackPosition(packed, V18W43A) == (Position{X: 1, Y: 2, Z: 3}) {
		t.Errorf("18w43a 前后打包格式不应相同")
	}
}

func TestPrefixedBytesBoundary(t *testing.T) {
	data := []byte{9, 8, 7}
	tests := []struct {
		version Version
		size    int
	}{
		{V14W04A, 2 + 3},
		{V14W21A, 1 + 3},
	}
	for _, tt := range tests {
		ctx := &Context{Version: tt.version}
		w := NewPlayWriter(ctx)
		if err := w.WritePrefixedBytes(data); err != nil {
			t.Fatalf("WritePrefixedBytes failed: %v", err)
		}
		if w.Len() != tt.size {
			t.Errorf("%s: 编码 %d 字节, 期望 %d", tt.version, w.Len(), tt.size)
		}
		b := NewPlayBuffer(w.Bytes(), ctx)
		got, err := b.ReadPrefixedBytes()
		if err != nil || string(got) != string(data) || b.Len() != 0 {
			t.Errorf("%s: got %v err %v 剩余 %d", tt.version, got, err, b.Len())
		}
	}
}

func TestBitSetEncodings(t *testing.T) {
	set := NewBitSet(70).With(0).With(3).With(65)

	for _, v := range []Version{V1_16_4, V20W49A} {
		ctx := &Context{Version: v}
		w := NewPlayWriter(ctx)
		w.WriteBitSet(set)
		got, err := NewPlayBuffer(w.Bytes(), ctx).ReadBitSet()
		if err != nil {
			t.Fatalf("%s: ReadBitSet failed: %v", v, err)
		}
		// a VarLong cannot carry bit 65
		if !got.Get(0) || !got.Get(3) {
			t.Errorf("%s: 缺少低位", v)
		}
		if v >= V20W49A && !got.Get(65) {
			t.Errorf("%s: 缺少位 65", v)
		}
	}

	w := NewWriter()
	w.WriteLegacyBitSet(NewBitSet(16).With(3), 2)
	if got := w.Bytes(); got[0] != 0x00 || got[1] != 0x08 {
		t.Errorf("legacy mask = %x, 期望 0008", got)
	}
	legacy, err := NewBuffer(w.Bytes()).ReadLegacyBitSet(2)
	if err != nil || !legacy.Get(3) || legacy.Cardinality() != 1 {
		t.Errorf("ReadLegacyBitSet = %v, %v", legacy, err)
	}
}

func TestBufferSubAndSeek(t *testing.T) {
	b := NewBuffer([]byte{1, 2, 3, 4, 5, 6})
	_, _ = b.ReadByte()
	sub, err := b.Sub(3)
	if err != nil {
		t.Fatalf("Sub failed: %v", err)
	}
	if b.Offset() != 4 {
		t.Errorf("父游标 = %d, 期望 4", b.Offset())
	}
	if sub.Len() != 3 {
		t.Errorf("子缓冲长度 = %d, 期望 3", sub.Len())
	}
	clone := b.Clone()
	_, _ = clone.ReadByte()
	if b.Offset() != 4 {
		t.Errorf("Clone 不应移动原游标")
	}
	if err := b.Seek(7); !errors.Is(err, ErrLengthExceedsBuffer) {
		t.Errorf("越界 Seek 应失败, 实际 %v", err)
	}
}

func TestOfflineUUID(t *testing.T) {
	id := OfflineUUID("Notch")
	if id.Version() != 3 {
		t.Errorf("版本 = %d, 期望 3", id.Version())
	}
	if id.Variant() != uuid.RFC4122 {
		t.Errorf("变体 = %v, 期望 RFC4122", id.Variant())
	}
	if OfflineUUID("Notch") != id {
		t.Errorf("同名 UUID 应稳定")
	}
}
