package world

import (
	"fmt"
	"math/bits"

	"github.com/Versifine/mcwire/internal/protocol"
)

const (
	maxIndirectBlockBits   = 8
	maxIndirectBiomeBits   = 3
	minIndirectBlockBits   = 4
	maxPaletteBitsPerEntry = 32
)

// PaletteKind selects which registry a paletted container indexes.
type PaletteKind int

const (
	BlockPalette PaletteKind = iota
	BiomePalette
)

// GlobalBits is the width of a direct (registry-indexed) entry in version v.
func GlobalBits(kind PaletteKind, v protocol.Version) int {
	if kind == BiomePalette {
		return 6
	}
	switch {
	case v < protocol.FlatteningVersion:
		return 13
	case v < protocol.V20W17A:
		return 14
	default:
		return 15
	}
}

// BitsPerEntry is the width a vanilla server picks for a container holding
// paletteSize distinct values.
func BitsPerEntry(paletteSize int, kind PaletteKind, v protocol.Version) int {
	singleValue := v >= protocol.V21W37A
	if paletteSize <= 1 && singleValue {
		return 0
	}
	need := 0
	if paletteSize > 1 {
		need = bits.Len(uint(paletteSize - 1))
	}
	if kind == BiomePalette {
		if need <= maxIndirectBiomeBits {
			return max(need, 1)
		}
		return GlobalBits(kind, v)
	}
	switch {
	case need <= minIndirectBlockBits:
		return minIndirectBlockBits
	case need <= maxIndirectBlockBits:
		return need
	default:
		return GlobalBits(kind, v)
	}
}

// PackedLength is the number of longs holding entryCount values of width
// bitsPerEntry in the packing used by v.
func PackedLength(entryCount, bitsPerEntry int, v protocol.Version) int {
	if bitsPerEntry == 0 {
		return 0
	}
	if v < protocol.V20W17A {
		return expectedCompactedLen(entryCount, bitsPerEntry)
	}
	return expectedPaddedLen(entryCount, bitsPerEntry)
}

func isIndirect(bitsPerEntry int, kind PaletteKind, v protocol.Version) bool {
	if kind == BiomePalette {
		return bitsPerEntry <= maxIndirectBiomeBits
	}
	return bitsPerEntry <= maxIndirectBlockBits
}

// container is a decoded paletted container: either an indirect palette plus
// indices, or direct values.
type container struct {
	palette []int32
	values  []int32
}

// readPalettedContainer reads one container of entryCount entries and
// expands it to registry ids.
func readPalettedContainer(b *protocol.Buffer, entryCount int, kind PaletteKind) (*container, error) {
	v := b.Version()
	bitsByte, err := b.ReadUint8()
	if err != nil {
		return nil, err
	}
	bitsPerEntry := int(bitsByte)
	if bitsPerEntry > maxPaletteBitsPerEntry {
		return nil, fmt.Errorf("%w: bits per entry too large: %d", protocol.ErrMalformed, bitsPerEntry)
	}

	if bitsPerEntry == 0 && v >= protocol.V21W37A {
		value, err := b.ReadVarInt()
		if err != nil {
			return nil, err
		}
		// the (empty) data array is still length prefixed
		n, err := b.ReadArrayLen(8)
		if err != nil {
			return nil, err
		}
		if err := b.Skip(n * 8); err != nil {
			return nil, err
		}
		expanded := make([]int32, entryCount)
		for i := range expanded {
			expanded[i] = value
		}
		return &container{palette: []int32{value}, values: expanded}, nil
	}

	indirect := isIndirect(bitsPerEntry, kind, v)
	var palette []int32
	switch {
	case indirect:
		paletteLen, err := b.ReadArrayLen(1)
		if err != nil {
			return nil, err
		}
		palette = make([]int32, paletteLen)
		for i := range palette {
			if palette[i], err = b.ReadVarInt(); err != nil {
				return nil, err
			}
		}
	case v < protocol.FlatteningVersion:
		// the registry palette still writes an empty length
		if _, err := b.ReadVarInt(); err != nil {
			return nil, err
		}
	}

	longs, err := b.ReadLongArray()
	if err != nil {
		return nil, err
	}

	expanded := make([]int32, entryCount)
	if bitsPerEntry == 0 {
		if len(palette) > 0 {
			for i := range expanded {
				expanded[i] = palette[0]
			}
		}
		return &container{palette: palette, values: expanded}, nil
	}

	packed := make([]uint64, len(longs))
	for i, l := range longs {
		packed[i] = uint64(l)
	}
	indices, err := unpackPalettedValues(packed, bitsPerEntry, entryCount, v)
	if err != nil {
		return nil, err
	}

	if !indirect {
		for i := range indices {
			expanded[i] = int32(indices[i])
		}
		return &container{values: expanded}, nil
	}
	for i, paletteIndex := range indices {
		if paletteIndex >= len(palette) {
			return nil, fmt.Errorf("%w: palette index out of range: %d (palette len: %d)", protocol.ErrMalformed, paletteIndex, len(palette))
		}
		expanded[i] = palette[paletteIndex]
	}
	return &container{palette: palette, values: expanded}, nil
}

// distinct returns the ids a container refers to, for registry validation.
func (c *container) distinct() []int32 {
	if c.palette != nil {
		return c.palette
	}
	seen := make(map[int32]struct{})
	out := make([]int32, 0, 16)
	for _, v := range c.values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func unpackPalettedValues(data []uint64, bitsPerEntry, entryCount int, v protocol.Version) ([]int, error) {
	if bitsPerEntry <= 0 || bitsPerEntry > 64 {
		return nil, fmt.Errorf("%w: invalid bits per entry: %d", protocol.ErrMalformed, bitsPerEntry)
	}
	if entryCount == 0 {
		return []int{}, nil
	}
	want := PackedLength(entryCount, bitsPerEntry, v)
	if len(data) != want {
		return nil, fmt.Errorf("%w: data array length %d, want %d for %d bits", protocol.ErrMalformed, len(data), want, bitsPerEntry)
	}
	if v < protocol.V20W17A {
		return unpackCompacted(data, bitsPerEntry, entryCount)
	}
	return unpackPadded(data, bitsPerEntry, entryCount)
}

func unpackCompacted(data []uint64, bitsPerEntry, entryCount int) ([]int, error) {
	mask := valueMask(bitsPerEntry)
	values := make([]int, entryCount)

	for i := 0; i < entryCount; i++ {
		bitIndex := i * bitsPerEntry
		longIndex := bitIndex / 64
		bitOffset := bitIndex % 64
		if longIndex >= len(data) {
			return nil, fmt.Errorf("%w: packed data ended early at entry %d", protocol.ErrMalformed, i)
		}

		value := data[longIndex] >> bitOffset
		if bitOffset+bitsPerEntry > 64 {
			if longIndex+1 >= len(data) {
				return nil, fmt.Errorf("%w: packed data ended early at entry %d", protocol.ErrMalformed, i)
			}
			value |= data[longIndex+1] << (64 - bitOffset)
		}
		values[i] = int(value & mask)
	}
	return values, nil
}

func unpackPadded(data []uint64, bitsPerEntry, entryCount int) ([]int, error) {
	valuesPerLong := 64 / bitsPerEntry
	mask := valueMask(bitsPerEntry)
	values := make([]int, entryCount)
	for i := 0; i < entryCount; i++ {
		longIndex := i / valuesPerLong
		if longIndex >= len(data) {
			return nil, fmt.Errorf("%w: packed data ended early at entry %d", protocol.ErrMalformed, i)
		}
		bitOffset := (i % valuesPerLong) * bitsPerEntry
		values[i] = int((data[longIndex] >> bitOffset) & mask)
	}
	return values, nil
}

// PackValues is the inverse of the unpackers, used when building containers.
func PackValues(values []uint32, bitsPerEntry int, v protocol.Version) []uint64 {
	if bitsPerEntry == 0 {
		return nil
	}
	out := make([]uint64, PackedLength(len(values), bitsPerEntry, v))
	mask := valueMask(bitsPerEntry)
	if v < protocol.V20W17A {
		for i, value := range values {
			bitIndex := i * bitsPerEntry
			longIndex := bitIndex / 64
			bitOffset := bitIndex % 64
			out[longIndex] |= (uint64(value) & mask) << bitOffset
			if bitOffset+bitsPerEntry > 64 {
				out[longIndex+1] |= (uint64(value) & mask) >> (64 - bitOffset)
			}
		}
		return out
	}
	perLong := 64 / bitsPerEntry
	for i, value := range values {
		out[i/perLong] |= (uint64(value) & mask) << ((i % perLong) * bitsPerEntry)
	}
	return out
}

func expectedCompactedLen(entryCount, bitsPerEntry int) int {
	return (entryCount*bitsPerEntry + 63) / 64
}

func expectedPaddedLen(entryCount, bitsPerEntry int) int {
	valuesPerLong := 64 / bitsPerEntry
	if valuesPerLong <= 0 {
		return 0
	}
	return (entryCount + valuesPerLong - 1) / valuesPerLong
}

func valueMask(bitsPerEntry int) uint64 {
	if bitsPerEntry >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bitsPerEntry) - 1
}
