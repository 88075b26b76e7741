package world

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/Versifine/mcwire/internal/protocol"
)

const (
	ChunkSectionHeight = 16
	BlocksPerSection   = 16 * 16 * 16
	BiomesPerSection   = 4 * 4 * 4
	LegacyBiomeCount   = 16 * 16
	NibbleArrayLength  = BlocksPerSection / 2

	legacySectionCount = 16
	// upper bound for an inflated pre-14w28a chunk blob: 16 full sections
	// with add arrays plus biomes
	maxLegacyChunkData = legacySectionCount*(BlocksPerSection+4*NibbleArrayLength) + LegacyBiomeCount
)

var ErrChunkData = fmt.Errorf("%w: chunk data", protocol.ErrMalformed)

type ChunkPos struct {
	X int32
	Z int32
}

// Section is one 16x16x16 slice of a column. Block and biome values are
// registry ids of the connection's version; blocks are indexed y<<8|z<<4|x.
type Section struct {
	// BlockCount is the non-air count sent since 18w43a, -1 before.
	BlockCount int16
	Blocks     []int32
	// Biomes holds 4x4x4 entries since 21w37a and is nil before.
	Biomes []int32
	// BlockLight and SkyLight are nibble arrays carried inline before 18w43a.
	BlockLight []byte
	SkyLight   []byte
}

func blockIndex(x, y, z int) int {
	return y<<8 | z<<4 | x
}

func (s *Section) Block(x, y, z int) int32 {
	return s.Blocks[blockIndex(x, y, z)]
}

func (s *Section) SetBlock(x, y, z int, state int32) {
	s.Blocks[blockIndex(x, y, z)] = state
}

func (s *Section) clone() *Section {
	if s == nil {
		return nil
	}
	out := &Section{BlockCount: s.BlockCount}
	out.Blocks = append([]int32(nil), s.Blocks...)
	if s.Biomes != nil {
		out.Biomes = append([]int32(nil), s.Biomes...)
	}
	if s.BlockLight != nil {
		out.BlockLight = append([]byte(nil), s.BlockLight...)
	}
	if s.SkyLight != nil {
		out.SkyLight = append([]byte(nil), s.SkyLight...)
	}
	return out
}

// BlockEntity is a block entity sent with chunk data. Coordinates are
// absolute.
type BlockEntity struct {
	X    int32
	Y    int32
	Z    int32
	Type int32 // -1 before 21w37a, where the id lives in Data
	Data *protocol.Tag
}

// Column is a decoded chunk column.
type Column struct {
	Pos  ChunkPos
	Full bool
	// Sections are indexed from the dimension's lowest section; nil entries
	// were not sent.
	Sections []*Section
	// Biomes is the column-wide array used before 21w37a: 256 entries before
	// 19w36a, 1024 (4x4x4 per section) after.
	Biomes        []int32
	Heightmaps    *protocol.Tag
	BlockEntities []BlockEntity
	// Light is carried inside the chunk packet since 21w37a.
	Light *LightData
}

// SectionParams is the header information needed to read a chunk data blob.
type SectionParams struct {
	Dimension Dimension
	// Mask selects the sections present. A nil mask means every section of
	// the dimension (21w37a onwards).
	Mask protocol.BitSet
	// AddMask selects the sections carrying extended block ids (before 14w26a).
	AddMask protocol.BitSet
	Full    bool
}

// DecodeSections reads the data blob of a chunk packet. It returns the
// sections and, for versions keeping biomes inside the blob, the 2D biome
// array of a full chunk. Pre-flattening block values are remapped through
// the buffer's resolver, see tweakLegacySections.
func DecodeSections(b *protocol.Buffer, p SectionParams) ([]*Section, []int32, error) {
	v := b.Version()
	var (
		sections []*Section
		biomes   []int32
		err      error
	)
	switch {
	case v < protocol.V14W26A:
		sections, biomes, err = decodeNibbleSections(b, p)
	case v < protocol.V15W35A:
		sections, biomes, err = decodeShortSections(b, p)
	default:
		sections, biomes, err = decodePalettedSections(b, p)
	}
	if err != nil {
		return nil, nil, err
	}
	if v < protocol.FlatteningVersion {
		if err := tweakLegacySections(sections, b.Resolver()); err != nil {
			return nil, nil, err
		}
	}
	return sections, biomes, nil
}

// InflateLegacyData decompresses the zlib chunk blob used before 14w28a and
// returns a buffer sharing b's context.
func InflateLegacyData(b *protocol.Buffer, compressed []byte) (*protocol.Buffer, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.Join(ErrChunkData, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(io.LimitReader(zr, maxLegacyChunkData+1))
	if err != nil {
		return nil, errors.Join(ErrChunkData, err)
	}
	if len(data) > maxLegacyChunkData {
		return nil, fmt.Errorf("%w: inflated chunk exceeds %d bytes", ErrChunkData, maxLegacyChunkData)
	}
	return protocol.NewPlayBuffer(data, b.Context()), nil
}

func presentSections(mask protocol.BitSet, count int) []int {
	out := make([]int, 0, count)
	for i := 0; i < count; i++ {
		if mask == nil || mask.Get(i) {
			out = append(out, i)
		}
	}
	return out
}

func checkMask(mask protocol.BitSet, count int) error {
	if mask == nil {
		return nil
	}
	if n := mask.Len(); n > count {
		return fmt.Errorf("%w: section mask has bit %d set, column has %d sections", ErrChunkData, n-1, count)
	}
	return nil
}

// decodeNibbleSections reads the 1.7 layout: all block id bytes, then all
// meta nibbles, block light, sky light and add nibbles, each grouped by kind.
func decodeNibbleSections(b *protocol.Buffer, p SectionParams) ([]*Section, []int32, error) {
	if err := checkMask(p.Mask, legacySectionCount); err != nil {
		return nil, nil, err
	}
	present := presentSections(p.Mask, legacySectionCount)
	n := len(present)

	ids, err := b.ReadBytes(n * BlocksPerSection)
	if err != nil {
		return nil, nil, err
	}
	meta, err := b.ReadBytes(n * NibbleArrayLength)
	if err != nil {
		return nil, nil, err
	}
	blockLight, err := b.ReadBytes(n * NibbleArrayLength)
	if err != nil {
		return nil, nil, err
	}
	var skyLight []byte
	if p.Dimension.HasSkyLight {
		if skyLight, err = b.ReadBytes(n * NibbleArrayLength); err != nil {
			return nil, nil, err
		}
	}
	withAdd := make([]int, 0, n)
	for _, idx := range present {
		if p.AddMask.Get(idx) {
			withAdd = append(withAdd, idx)
		}
	}
	add, err := b.ReadBytes(len(withAdd) * NibbleArrayLength)
	if err != nil {
		return nil, nil, err
	}
	biomes, err := readLegacyBiomes(b, p.Full)
	if err != nil {
		return nil, nil, err
	}

	sections := make([]*Section, legacySectionCount)
	addSlot := 0
	for k, idx := range present {
		s := &Section{BlockCount: -1, Blocks: make([]int32, BlocksPerSection)}
		var addNibbles []byte
		if p.AddMask.Get(idx) {
			addNibbles = add[addSlot*NibbleArrayLength : (addSlot+1)*NibbleArrayLength]
			addSlot++
		}
		idBase := ids[k*BlocksPerSection:]
		metaBase := meta[k*NibbleArrayLength:]
		for i := 0; i < BlocksPerSection; i++ {
			id := int32(idBase[i])
			if addNibbles != nil {
				id |= int32(nibble(addNibbles, i)) << 8
			}
			s.Blocks[i] = id<<4 | int32(nibble(metaBase, i))
		}
		s.BlockLight = copyNibbles(blockLight, k)
		if skyLight != nil {
			s.SkyLight = copyNibbles(skyLight, k)
		}
		sections[idx] = s
	}
	return sections, biomes, nil
}

// decodeShortSections reads the 1.8 layout: one little-endian id<<4|meta
// short per block.
func decodeShortSections(b *protocol.Buffer, p SectionParams) ([]*Section, []int32, error) {
	if err := checkMask(p.Mask, legacySectionCount); err != nil {
		return nil, nil, err
	}
	present := presentSections(p.Mask, legacySectionCount)
	n := len(present)

	raw, err := b.ReadBytes(n * BlocksPerSection * 2)
	if err != nil {
		return nil, nil, err
	}
	blockLight, err := b.ReadBytes(n * NibbleArrayLength)
	if err != nil {
		return nil, nil, err
	}
	var skyLight []byte
	if p.Dimension.HasSkyLight {
		if skyLight, err = b.ReadBytes(n * NibbleArrayLength); err != nil {
			return nil, nil, err
		}
	}
	biomes, err := readLegacyBiomes(b, p.Full)
	if err != nil {
		return nil, nil, err
	}

	sections := make([]*Section, legacySectionCount)
	for k, idx := range present {
		s := &Section{BlockCount: -1, Blocks: make([]int32, BlocksPerSection)}
		base := raw[k*BlocksPerSection*2:]
		for i := 0; i < BlocksPerSection; i++ {
			s.Blocks[i] = int32(base[2*i]) | int32(base[2*i+1])<<8
		}
		s.BlockLight = copyNibbles(blockLight, k)
		if skyLight != nil {
			s.SkyLight = copyNibbles(skyLight, k)
		}
		sections[idx] = s
	}
	return sections, biomes, nil
}

func decodePalettedSections(b *protocol.Buffer, p SectionParams) ([]*Section, []int32, error) {
	v := b.Version()
	count := p.Dimension.SectionCount()
	if v < protocol.V21W03A {
		count = legacySectionCount
	}
	if err := checkMask(p.Mask, count); err != nil {
		return nil, nil, err
	}

	sections := make([]*Section, count)
	for _, idx := range presentSections(p.Mask, count) {
		s := &Section{BlockCount: -1}
		if v >= protocol.V18W43A {
			n, err := b.ReadInt16()
			if err != nil {
				return nil, nil, err
			}
			s.BlockCount = n
		}

		blocks, err := readPalettedContainer(b, BlocksPerSection, BlockPalette)
		if err != nil {
			return nil, nil, fmt.Errorf("section %d blocks: %w", idx, err)
		}
		if v >= protocol.FlatteningVersion {
			if err := resolveBlocks(b.Resolver(), blocks.distinct()); err != nil {
				return nil, nil, fmt.Errorf("section %d: %w", idx, err)
			}
		}
		s.Blocks = blocks.values

		if v >= protocol.V21W37A {
			biomes, err := readPalettedContainer(b, BiomesPerSection, BiomePalette)
			if err != nil {
				return nil, nil, fmt.Errorf("section %d biomes: %w", idx, err)
			}
			if err := resolveBiomes(b.Resolver(), biomes.distinct()); err != nil {
				return nil, nil, fmt.Errorf("section %d: %w", idx, err)
			}
			s.Biomes = biomes.values
		}

		if v < protocol.V18W43A {
			if s.BlockLight, err = b.ReadBytes(NibbleArrayLength); err != nil {
				return nil, nil, err
			}
			if p.Dimension.HasSkyLight {
				if s.SkyLight, err = b.ReadBytes(NibbleArrayLength); err != nil {
					return nil, nil, err
				}
			}
		}
		sections[idx] = s
	}

	var biomes []int32
	if v < protocol.V19W36A {
		var err error
		if biomes, err = readLegacyBiomes(b, p.Full); err != nil {
			return nil, nil, err
		}
	}
	return sections, biomes, nil
}

// readLegacyBiomes reads the 16x16 biome array of a full chunk: unsigned
// bytes before 1.13.2, ints after.
func readLegacyBiomes(b *protocol.Buffer, full bool) ([]int32, error) {
	if !full {
		return nil, nil
	}
	biomes := make([]int32, LegacyBiomeCount)
	for i := range biomes {
		if b.Version() < protocol.V1_13_2 {
			v, err := b.ReadUint8()
			if err != nil {
				return nil, err
			}
			biomes[i] = int32(v)
			continue
		}
		v, err := b.ReadInt32()
		if err != nil {
			return nil, err
		}
		biomes[i] = v
	}
	return biomes, nil
}

// ReadBiomeArray reads the column-wide 3D biome array sent in the chunk
// header between 19w36a and 21w37a: 1024 ints, VarInt-prefixed VarInts from
// 20w28a.
func ReadBiomeArray(b *protocol.Buffer) ([]int32, error) {
	var biomes []int32
	if b.Version() < protocol.V20W28A {
		biomes = make([]int32, 1024)
		for i := range biomes {
			v, err := b.ReadInt32()
			if err != nil {
				return nil, err
			}
			biomes[i] = v
		}
	} else {
		var err error
		if biomes, err = b.ReadVarIntArray(); err != nil {
			return nil, err
		}
	}
	if err := resolveBiomes(b.Resolver(), distinctIDs(biomes)); err != nil {
		return nil, err
	}
	return biomes, nil
}

// ReadBlockEntities reads the block entity list that follows the data blob
// from 1.9.4. Since 21w37a entries carry a packed in-chunk position and a
// type id; before that the position lives in the tag.
func ReadBlockEntities(b *protocol.Buffer, pos ChunkPos) ([]BlockEntity, error) {
	n, err := b.ReadArrayLen(1)
	if err != nil {
		return nil, err
	}
	out := make([]BlockEntity, 0, n)
	for i := 0; i < n; i++ {
		if b.Version() < protocol.V21W37A {
			tag, err := b.ReadNBT()
			if err != nil {
				return nil, fmt.Errorf("block entity %d: %w", i, err)
			}
			be := BlockEntity{Type: -1, Data: tag}
			be.X, be.Y, be.Z = tagPosition(tag)
			out = append(out, be)
			continue
		}
		xz, err := b.ReadUint8()
		if err != nil {
			return nil, err
		}
		y, err := b.ReadInt16()
		if err != nil {
			return nil, err
		}
		typ, err := b.ReadVarInt()
		if err != nil {
			return nil, err
		}
		tag, err := b.ReadNBT()
		if err != nil {
			return nil, fmt.Errorf("block entity %d: %w", i, err)
		}
		out = append(out, BlockEntity{
			X:    pos.X*16 + int32(xz>>4),
			Y:    int32(y),
			Z:    pos.Z*16 + int32(xz&0x0F),
			Type: typ,
			Data: tag,
		})
	}
	return out, nil
}

func tagPosition(tag *protocol.Tag) (x, y, z int32) {
	get := func(name string) int32 {
		c, ok := tag.Child(name)
		if !ok {
			return 0
		}
		n, _ := c.Int()
		return int32(n)
	}
	return get("x"), get("y"), get("z")
}

func resolveBlocks(r protocol.Resolver, ids []int32) error {
	for _, id := range ids {
		if _, err := r.ResolveBlock(id); err != nil {
			return err
		}
	}
	return nil
}

func resolveBiomes(r protocol.Resolver, ids []int32) error {
	for _, id := range ids {
		if _, err := r.ResolveBiome(id); err != nil {
			return err
		}
	}
	return nil
}

func distinctIDs(ids []int32) []int32 {
	c := container{values: ids}
	return c.distinct()
}

func nibble(arr []byte, i int) byte {
	if i&1 == 0 {
		return arr[i>>1] & 0x0F
	}
	return arr[i>>1] >> 4
}

func copyNibbles(all []byte, k int) []byte {
	out := make([]byte, NibbleArrayLength)
	copy(out, all[k*NibbleArrayLength:(k+1)*NibbleArrayLength])
	return out
}

// WriteBiomeArray is the inverse of ReadBiomeArray.
func WriteBiomeArray(w *protocol.Writer, biomes []int32) {
	if w.Version() < protocol.V20W28A {
		for _, b := range biomes {
			w.WriteInt32(b)
		}
		return
	}
	w.WriteVarIntArray(biomes)
}

// WriteBlockEntities is the inverse of ReadBlockEntities.
func WriteBlockEntities(w *protocol.Writer, entities []BlockEntity) error {
	w.WriteVarInt(int32(len(entities)))
	for i, be := range entities {
		if w.Version() >= protocol.V21W37A {
			w.WriteUint8(uint8(be.X&0x0F)<<4 | uint8(be.Z&0x0F))
			w.WriteInt16(int16(be.Y))
			w.WriteVarInt(be.Type)
		}
		if err := w.WriteNBT(be.Data); err != nil {
			return fmt.Errorf("block entity %d: %w", i, err)
		}
	}
	return nil
}
