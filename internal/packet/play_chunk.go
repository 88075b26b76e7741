package packet

import (
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/Versifine/mcwire/internal/world"
)

// ChunkData is one chunk column. The section blob is kept as sent and decoded
// by Column, because since 21w37a its layout depends on the height of the
// current dimension, which the packet does not carry.
type ChunkData struct {
	X, Z int32
	// Full is false for updates that only replace the listed sections.
	Full          bool
	IgnoreOldData bool
	Mask          protocol.BitSet
	// AddMask marks sections with extended block ids, before 14w26a.
	AddMask    protocol.BitSet
	Heightmaps *protocol.Tag
	// Biomes is the column-wide array sent in the header in [19w36a, 21w37a).
	Biomes []int32
	// Data is the section blob, zlib-compressed before 14w28a.
	Data          []byte
	BlockEntities []world.BlockEntity
	Light         *world.LightData

	ctx *protocol.Context
}

func (p *ChunkData) Pos() world.ChunkPos {
	return world.ChunkPos{X: p.X, Z: p.Z}
}

// Unload reports a full column without sections, which servers before 1.9
// sent instead of an unload packet.
func (p *ChunkData) Unload() bool {
	return p.ctx != nil && p.ctx.Version < protocol.V1_9 && p.Full && p.Mask.Empty()
}

// Column decodes the section blob for dim.
func (p *ChunkData) Column(dim world.Dimension) (*world.Column, error) {
	b := protocol.NewPlayBuffer(p.Data, p.ctx)
	if b.Version() < protocol.V14W28A {
		var err error
		if b, err = world.InflateLegacyData(b, p.Data); err != nil {
			return nil, err
		}
	}
	sections, biomes, err := world.DecodeSections(b, world.SectionParams{
		Dimension: dim,
		Mask:      p.Mask,
		AddMask:   p.AddMask,
		Full:      p.Full,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk %d,%d: %w", p.X, p.Z, err)
	}
	// anything left in b is padding some servers append
	if p.Biomes != nil {
		biomes = p.Biomes
	}
	return &world.Column{
		Pos:           p.Pos(),
		Full:          p.Full,
		Sections:      sections,
		Biomes:        biomes,
		Heightmaps:    p.Heightmaps,
		BlockEntities: p.BlockEntities,
		Light:         p.Light,
	}, nil
}

func captureContext[T any](set func(p *T, ctx *protocol.Context)) Step[T] {
	return Step[T]{
		Name:  "context",
		Range: protocol.AllVersions,
		Decode: func(b *protocol.Buffer, p *T) error {
			set(p, b.Context())
			return nil
		},
		Encode: func(*protocol.Writer, *T) error { return nil },
	}
}

func legacyMaskField(width int) field[protocol.BitSet] {
	return field[protocol.BitSet]{
		read: func(b *protocol.Buffer) (protocol.BitSet, error) { return b.ReadLegacyBitSet(width) },
		write: func(w *protocol.Writer, s protocol.BitSet) error {
			w.WriteLegacyBitSet(s, width)
			return nil
		},
	}
}

var varIntMaskField = field[protocol.BitSet]{
	read: func(b *protocol.Buffer) (protocol.BitSet, error) {
		v, err := b.ReadVarInt()
		if err != nil {
			return nil, err
		}
		return protocol.BitSet{uint64(uint32(v))}, nil
	},
	write: func(w *protocol.Writer, s protocol.BitSet) error {
		var v uint64
		if len(s) > 0 {
			v = s[0]
		}
		w.WriteVarInt(int32(uint32(v)))
		return nil
	},
}

var longArrayMaskField = field[protocol.BitSet]{
	read: func(b *protocol.Buffer) (protocol.BitSet, error) {
		longs, err := b.ReadLongArray()
		if err != nil {
			return nil, err
		}
		return protocol.BitSetFromLongs(longs), nil
	},
	write: func(w *protocol.Writer, s protocol.BitSet) error {
		w.WriteLongArray(s.Longs())
		return nil
	},
}

// legacyCompressedField is the int-prefixed zlib blob used before 14w28a.
var legacyCompressedField = field[[]byte]{
	read: func(b *protocol.Buffer) ([]byte, error) {
		n, err := b.ReadInt32()
		if err != nil {
			return nil, err
		}
		return b.ReadBytes(int(n))
	},
	write: func(w *protocol.Writer, data []byte) error {
		w.WriteInt32(int32(len(data)))
		w.WriteBytes(data)
		return nil
	},
}

func chunkMask(p *ChunkData) *protocol.BitSet    { return &p.Mask }
func chunkAddMask(p *ChunkData) *protocol.BitSet { return &p.AddMask }

var chunkDataLayout = Layout[ChunkData]{
	captureContext(func(p *ChunkData, ctx *protocol.Context) { p.ctx = ctx }),
	scalar("x", protocol.AllVersions, int32Field, func(p *ChunkData) *int32 { return &p.X }),
	scalar("z", protocol.AllVersions, int32Field, func(p *ChunkData) *int32 { return &p.Z }),
	scalar("full", protocol.Until(protocol.V20W45A), boolField, func(p *ChunkData) *bool { return &p.Full }),
	{
		Name:   "full",
		Range:  protocol.Since(protocol.V20W45A),
		Decode: func(_ *protocol.Buffer, p *ChunkData) error { p.Full = true; return nil },
		Encode: func(*protocol.Writer, *ChunkData) error { return nil },
	},
	scalar("ignore_old_data", protocol.Between(protocol.V1_16_PRE7, protocol.V1_16_2_PRE2), boolField, func(p *ChunkData) *bool { return &p.IgnoreOldData }),
	scalar("mask", protocol.Until(protocol.V15W34C), legacyMaskField(2), chunkMask),
	scalar("add_mask", protocol.Until(protocol.V14W26A), legacyMaskField(2), chunkAddMask),
	scalar("mask", protocol.Between(protocol.V15W34C, protocol.V15W36D), legacyMaskField(4), chunkMask),
	scalar("mask", protocol.Between(protocol.V15W36D, protocol.V21W03A), varIntMaskField, chunkMask),
	scalar("mask", protocol.Between(protocol.V21W03A, protocol.V21W37A), longArrayMaskField, chunkMask),
	scalar("heightmaps", protocol.Since(protocol.V18W44A), nbtField, func(p *ChunkData) **protocol.Tag { return &p.Heightmaps }),
	{
		Name:  "biomes",
		Range: protocol.Between(protocol.V19W36A, protocol.V21W37A),
		Decode: func(b *protocol.Buffer, p *ChunkData) error {
			if !p.Full {
				return nil
			}
			var err error
			p.Biomes, err = world.ReadBiomeArray(b)
			return err
		},
		Encode: func(w *protocol.Writer, p *ChunkData) error {
			if p.Full {
				world.WriteBiomeArray(w, p.Biomes)
			}
			return nil
		},
	},
	scalar("data", protocol.Until(protocol.V14W28A), legacyCompressedField, func(p *ChunkData) *[]byte { return &p.Data }),
	scalar("data", protocol.Since(protocol.V14W28A), varBytesField, func(p *ChunkData) *[]byte { return &p.Data }),
	{
		Name:  "block_entities",
		Range: protocol.Since(protocol.V1_9_4),
		Decode: func(b *protocol.Buffer, p *ChunkData) error {
			var err error
			p.BlockEntities, err = world.ReadBlockEntities(b, p.Pos())
			return err
		},
		Encode: func(w *protocol.Writer, p *ChunkData) error {
			return world.WriteBlockEntities(w, p.BlockEntities)
		},
	},
	{
		Name:  "light",
		Range: protocol.Since(protocol.V21W37A),
		Decode: func(b *protocol.Buffer, p *ChunkData) error {
			var err error
			p.Light, err = world.ReadLightData(b)
			return err
		},
		Encode: func(w *protocol.Writer, p *ChunkData) error {
			if p.Light == nil {
				(&world.LightData{}).Write(w)
				return nil
			}
			p.Light.Write(w)
			return nil
		},
	},
}

// BulkColumn is the header of one column inside a ChunkBulk.
type BulkColumn struct {
	X, Z    int32
	Mask    protocol.BitSet
	AddMask protocol.BitSet
}

// ChunkBulk carries several full columns, sent by servers before 1.9. The
// blobs are not delimited, so columns are decoded one after another.
type ChunkBulk struct {
	SkyLight bool
	Columns  []BulkColumn
	// Data is zlib-compressed before 14w28a.
	Data []byte

	ctx *protocol.Context
}

// Decode decodes every column for dim. The sky light flag of the packet
// overrides the dimension's.
func (p *ChunkBulk) Decode(dim world.Dimension) ([]*world.Column, error) {
	b := protocol.NewPlayBuffer(p.Data, p.ctx)
	if b.Version() < protocol.V14W28A {
		var err error
		if b, err = world.InflateLegacyData(b, p.Data); err != nil {
			return nil, err
		}
	}
	dim.HasSkyLight = p.SkyLight
	out := make([]*world.Column, 0, len(p.Columns))
	for _, c := range p.Columns {
		sections, biomes, err := world.DecodeSections(b, world.SectionParams{
			Dimension: dim,
			Mask:      c.Mask,
			AddMask:   c.AddMask,
			Full:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("bulk chunk %d,%d: %w", c.X, c.Z, err)
		}
		out = append(out, &world.Column{
			Pos:      world.ChunkPos{X: c.X, Z: c.Z},
			Full:     true,
			Sections: sections,
			Biomes:   biomes,
		})
	}
	return out, nil
}

var bulkColumnField = field[BulkColumn]{
	read: func(b *protocol.Buffer) (BulkColumn, error) {
		var c BulkColumn
		var err error
		if c.X, err = b.ReadInt32(); err != nil {
			return c, err
		}
		if c.Z, err = b.ReadInt32(); err != nil {
			return c, err
		}
		if c.Mask, err = b.ReadLegacyBitSet(2); err != nil {
			return c, err
		}
		if b.Version() < protocol.V14W26A {
			c.AddMask, err = b.ReadLegacyBitSet(2)
		}
		return c, err
	},
	write: func(w *protocol.Writer, c BulkColumn) error {
		w.WriteInt32(c.X)
		w.WriteInt32(c.Z)
		w.WriteLegacyBitSet(c.Mask, 2)
		if w.Version() < protocol.V14W26A {
			w.WriteLegacyBitSet(c.AddMask, 2)
		}
		return nil
	},
}

var chunkBulkLayout = Layout[ChunkBulk]{
	captureContext(func(p *ChunkBulk, ctx *protocol.Context) { p.ctx = ctx }),
	{
		// column count, blob size and sky light lead in 1.7
		Name:  "header",
		Range: protocol.Until(protocol.V14W28A),
		Decode: func(b *protocol.Buffer, p *ChunkBulk) error {
			count, err := b.ReadInt16()
			if err != nil {
				return err
			}
			if count < 0 {
				return fmt.Errorf("%w: column count %d", protocol.ErrNegativeLength, count)
			}
			size, err := b.ReadInt32()
			if err != nil {
				return err
			}
			if p.SkyLight, err = b.ReadBool(); err != nil {
				return err
			}
			if p.Data, err = b.ReadBytes(int(size)); err != nil {
				return err
			}
			p.Columns = make([]BulkColumn, count)
			for i := range p.Columns {
				if p.Columns[i], err = bulkColumnField.read(b); err != nil {
					return fmt.Errorf("column %d: %w", i, err)
				}
			}
			return nil
		},
		Encode: func(w *protocol.Writer, p *ChunkBulk) error {
			w.WriteInt16(int16(len(p.Columns)))
			w.WriteInt32(int32(len(p.Data)))
			w.WriteBool(p.SkyLight)
			w.WriteBytes(p.Data)
			for _, c := range p.Columns {
				if err := bulkColumnField.write(w, c); err != nil {
					return err
				}
			}
			return nil
		},
	},
	scalar("sky_light", protocol.Since(protocol.V14W28A), boolField, func(p *ChunkBulk) *bool { return &p.SkyLight }),
	scalar("columns", protocol.Since(protocol.V14W28A), listField(bulkColumnField, 10), func(p *ChunkBulk) *[]BulkColumn { return &p.Columns }),
	scalar("data", protocol.Since(protocol.V14W28A), restField, func(p *ChunkBulk) *[]byte { return &p.Data }),
}

type UnloadChunk struct {
	X, Z int32
}

var unloadChunkLayout = Layout[UnloadChunk]{
	scalar("x", protocol.Until(protocol.V1_20_2), int32Field, func(p *UnloadChunk) *int32 { return &p.X }),
	scalar("z", protocol.AllVersions, int32Field, func(p *UnloadChunk) *int32 { return &p.Z }),
	scalar("x", protocol.Since(protocol.V1_20_2), int32Field, func(p *UnloadChunk) *int32 { return &p.X }),
}

type LightUpdate struct {
	X, Z  int32
	Light *world.LightData
}

var lightUpdateLayout = Layout[LightUpdate]{
	scalar("x", protocol.AllVersions, varIntField, func(p *LightUpdate) *int32 { return &p.X }),
	scalar("z", protocol.AllVersions, varIntField, func(p *LightUpdate) *int32 { return &p.Z }),
	{
		Name:  "light",
		Range: protocol.AllVersions,
		Decode: func(b *protocol.Buffer, p *LightUpdate) error {
			var err error
			p.Light, err = world.ReadLightData(b)
			return err
		},
		Encode: func(w *protocol.Writer, p *LightUpdate) error {
			if p.Light == nil {
				return fmt.Errorf("no light data")
			}
			p.Light.Write(w)
			return nil
		},
	},
}

type ChunkBatchStart struct{}

type ChunkBatchFinished struct {
	BatchSize int32
}

func (p *ChunkBatchFinished) Check() error {
	if p.BatchSize < 0 {
		return fmt.Errorf("invalid batch size: %d", p.BatchSize)
	}
	return nil
}

// ChunkBatchReceived tells the server how fast the client takes chunks.
type ChunkBatchReceived struct {
	ChunksPerTick float32
}

var (
	chunkBatchStartLayout    = Layout[ChunkBatchStart]{}
	chunkBatchFinishedLayout = Layout[ChunkBatchFinished]{
		scalar("batch_size", protocol.AllVersions, varIntField, func(p *ChunkBatchFinished) *int32 { return &p.BatchSize }),
	}
	chunkBatchReceivedLayout = Layout[ChunkBatchReceived]{
		scalar("chunks_per_tick", protocol.AllVersions, float32Field, func(p *ChunkBatchReceived) *float32 { return &p.ChunksPerTick }),
	}
)
