package world

import (
	"testing"

	"github.com/Versifine/mcwire/internal/protocol"
)

// TestBitsPerEntry 每个版本区间的位宽与打包长度
func TestBitsPerEntry(t *testing.T) {
	tests := []struct {
		name     string
		version  protocol.Version
		kind     PaletteKind
		size     int
		wantBits int
		wantLen  int
	}{
		{"1.18 单值", protocol.V1_18, BlockPalette, 1, 0, 0},
		{"1.18 两种", protocol.V1_18, BlockPalette, 2, 4, 256},
		{"1.18 16 种", protocol.V1_18, BlockPalette, 16, 4, 256},
		{"1.18 17 种", protocol.V1_18, BlockPalette, 17, 5, 342},
		{"1.18 256 种", protocol.V1_18, BlockPalette, 256, 8, 512},
		{"1.18 4096 种", protocol.V1_18, BlockPalette, 4096, 15, 1024},
		{"1.13 单值", protocol.V1_13, BlockPalette, 1, 4, 256},
		{"1.13 两种", protocol.V1_13, BlockPalette, 2, 4, 256},
		{"1.13 256 种", protocol.V1_13, BlockPalette, 256, 8, 512},
		{"1.13 4096 种", protocol.V1_13, BlockPalette, 4096, 14, 896},
		{"1.12 4096 种", protocol.V1_12_2, BlockPalette, 4096, 13, 832},
		{"1.16 4096 种", protocol.V1_16, BlockPalette, 4096, 15, 1024},
		{"1.18 生物群系单值", protocol.V1_18, BiomePalette, 1, 0, 0},
		{"1.18 生物群系两种", protocol.V1_18, BiomePalette, 2, 1, 1},
		{"1.18 生物群系 8 种", protocol.V1_18, BiomePalette, 8, 3, 4},
		{"1.18 生物群系 16 种", protocol.V1_18, BiomePalette, 16, 6, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits := BitsPerEntry(tt.size, tt.kind, tt.version)
			if bits != tt.wantBits {
				t.Fatalf("BitsPerEntry = %d, 期望 %d", bits, tt.wantBits)
			}
			entries := BlocksPerSection
			if tt.kind == BiomePalette {
				entries = BiomesPerSection
			}
			if got := PackedLength(entries, bits, tt.version); got != tt.wantLen {
				t.Errorf("PackedLength = %d, 期望 %d", got, tt.wantLen)
			}
		})
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for _, v := range []protocol.Version{protocol.V1_13, protocol.V1_18} {
		for _, bits := range []int{1, 4, 5, 13, 15} {
			values := make([]uint32, BlocksPerSection)
			for i := range values {
				values[i] = uint32(i*7) & uint32(valueMask(bits))
			}
			packed := PackValues(values, bits, v)
			got, err := unpackPalettedValues(packed, bits, len(values), v)
			if err != nil {
				t.Fatalf("%s bits=%d: %v", v, bits, err)
			}
			for i := range values {
				if uint32(got[i]) != values[i] {
					t.Fatalf("%s bits=%d: entry %d = %d, 期望 %d", v, bits, i, got[i], values[i])
				}
			}
		}
	}
}

func TestUnpackRejectsWrongLength(t *testing.T) {
	// 5 bits compacted needs 320 longs, padded needs 342
	if _, err := unpackPalettedValues(make([]uint64, 320), 5, BlocksPerSection, protocol.V1_18); err == nil {
		t.Fatal("1.18 使用紧凑长度应失败")
	}
	if _, err := unpackPalettedValues(make([]uint64, 320), 5, BlocksPerSection, protocol.V1_13); err != nil {
		t.Fatalf("1.13 紧凑长度应成功: %v", err)
	}
}
