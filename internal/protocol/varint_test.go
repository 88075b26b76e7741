package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

// TestWriteVarInt 测试 WriteVarInt 的字节输出
func TestWriteVarInt(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected []byte
	}{
		{"零值", 0, []byte{0x00}},
		{"小正数", 1, []byte{0x01}},
		{"127 (单字节最大值)", 127, []byte{0x7F}},
		{"128 (需要两字节)", 128, []byte{0x80, 0x01}},
		{"255", 255, []byte{0xFF, 0x01}},
		{"300", 300, []byte{0xAC, 0x02}},
		{"2097151", 2097151, []byte{0xFF, 0xFF, 0x7F}},
		{"MaxInt32", math.MaxInt32, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07}},
		{"-1", -1, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
		{"MinInt32", math.MinInt32, []byte{0x80, 0x80, 0x80, 0x80, 0x08}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			if err := WriteVarInt(buf, tt.input); err != nil {
				t.Fatalf("WriteVarInt failed: %v", err)
			}
			if !bytes.Equal(buf.Bytes(), tt.expected) {
				t.Errorf("WriteVarInt(%d) = %x, 期望 %x", tt.input, buf.Bytes(), tt.expected)
			}
			if VarIntLen(tt.input) != len(tt.expected) {
				t.Errorf("VarIntLen(%d) = %d, 期望 %d", tt.input, VarIntLen(tt.input), len(tt.expected))
			}
		})
	}
}

// TestVarIntRoundTrip 测试边界值的编解码往返
func TestVarIntRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 127, 128, 25565, math.MaxInt32, math.MinInt32}
	for _, v := range values {
		buf := &bytes.Buffer{}
		_ = WriteVarInt(buf, v)
		got, err := ReadVarInt(buf)
		if err != nil {
			t.Fatalf("ReadVarInt(%d) failed: %v", v, err)
		}
		if got != v {
			t.Errorf("往返 %d 得到 %d", v, got)
		}
		if buf.Len() != 0 {
			t.Errorf("往返 %d 后剩余 %d 字节", v, buf.Len())
		}
	}
}

// TestVarLongRoundTrip 测试 VarLong 边界值
func TestVarLongRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 2147483648, math.MaxInt64, math.MinInt64}
	for _, v := range values {
		buf := &bytes.Buffer{}
		_ = WriteVarLong(buf, v)
		if buf.Len() != VarLongLen(v) {
			t.Errorf("VarLongLen(%d) = %d, 实际写入 %d", v, VarLongLen(v), buf.Len())
		}
		got, err := ReadVarLong(buf)
		if err != nil {
			t.Fatalf("ReadVarLong(%d) failed: %v", v, err)
		}
		if got != v {
			t.Errorf("往返 %d 得到 %d", v, got)
		}
	}
}

// TestReadVarIntTooLong 超过最大字节数必须失败, 且只消费最大字节数
func TestReadVarIntTooLong(t *testing.T) {
	input := bytes.Repeat([]byte{0xFF}, 64)
	r := bytes.NewReader(input)
	_, err := ReadVarInt(r)
	if !errors.Is(err, ErrVarIntTooLong) {
		t.Fatalf("期望 ErrVarIntTooLong, 实际 %v", err)
	}
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("ErrVarIntTooLong 应属于 ErrMalformed")
	}
	if consumed := len(input) - r.Len(); consumed != MaxVarIntLen {
		t.Errorf("消费了 %d 字节, 期望 %d", consumed, MaxVarIntLen)
	}

	r = bytes.NewReader(input)
	_, err = ReadVarLong(r)
	if !errors.Is(err, ErrVarLongTooLong) {
		t.Fatalf("期望 ErrVarLongTooLong, 实际 %v", err)
	}
	if consumed := len(input) - r.Len(); consumed != MaxVarLongLen {
		t.Errorf("消费了 %d 字节, 期望 %d", consumed, MaxVarLongLen)
	}
}

// TestBufferVarIntTruncated 截断的 varint 属于 malformed
func TestBufferVarIntTruncated(t *testing.T) {
	b := NewBuffer([]byte{0x80, 0x80})
	_, err := b.ReadVarInt()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("期望 ErrMalformed, 实际 %v", err)
	}
}
