package packet

import (
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
)

// BlockRecord is one changed block. State is the resolved state id; RawState
// is the wire value, id<<4|meta before the flattening.
type BlockRecord struct {
	Pos      protocol.Position
	State    int32
	RawState int32
}

type BlockChange struct {
	Record BlockRecord
}

// MultiBlockChange lists changes inside one chunk (before 20w28a) or one
// section (after). Record positions are absolute.
type MultiBlockChange struct {
	ChunkX, ChunkZ int32
	SectionY       int32
	SuppressLight  bool
	Records        []BlockRecord
}

// resolveState maps a wire block value to a state id.
func resolveState(b *protocol.Buffer, raw int32) (int32, error) {
	r := b.Resolver()
	if b.Version() < protocol.FlatteningVersion {
		return r.ResolveLegacyBlock(raw)
	}
	if _, err := r.ResolveBlock(raw); err != nil {
		return 0, err
	}
	return raw, nil
}

var blockChangeLayout = Layout[BlockChange]{
	{
		Name:  "record",
		Range: protocol.Until(protocol.V14W04A),
		Decode: func(b *protocol.Buffer, p *BlockChange) error {
			pos, err := b.ReadPosition()
			if err != nil {
				return err
			}
			id, err := b.ReadVarInt()
			if err != nil {
				return err
			}
			meta, err := b.ReadUint8()
			if err != nil {
				return err
			}
			return setRecord(b, &p.Record, pos, id<<4|int32(meta&0x0F))
		},
		Encode: func(w *protocol.Writer, p *BlockChange) error {
			w.WritePosition(p.Record.Pos)
			w.WriteVarInt(p.Record.RawState >> 4)
			w.WriteUint8(uint8(p.Record.RawState & 0x0F))
			return nil
		},
	},
	{
		Name:  "record",
		Range: protocol.Since(protocol.V14W04A),
		Decode: func(b *protocol.Buffer, p *BlockChange) error {
			pos, err := b.ReadPosition()
			if err != nil {
				return err
			}
			raw, err := b.ReadVarInt()
			if err != nil {
				return err
			}
			return setRecord(b, &p.Record, pos, raw)
		},
		Encode: func(w *protocol.Writer, p *BlockChange) error {
			w.WritePosition(p.Record.Pos)
			w.WriteVarInt(p.Record.RawState)
			return nil
		},
	},
}

func setRecord(b *protocol.Buffer, rec *BlockRecord, pos protocol.Position, raw int32) error {
	state, err := resolveState(b, raw)
	if err != nil {
		return err
	}
	*rec = BlockRecord{Pos: pos, State: state, RawState: raw}
	return nil
}

// 1.7 records are packed ints: x(4) z(4) y(8) id(12) meta(4).
func decodePackedRecords(b *protocol.Buffer, p *MultiBlockChange) error {
	var err error
	if p.ChunkX, err = b.ReadInt32(); err != nil {
		return err
	}
	if p.ChunkZ, err = b.ReadInt32(); err != nil {
		return err
	}
	count, err := b.ReadInt16()
	if err != nil {
		return err
	}
	size, err := b.ReadInt32()
	if err != nil {
		return err
	}
	if count < 0 || int(size) != int(count)*4 {
		return fmt.Errorf("%w: %d records in %d bytes", protocol.ErrMalformed, count, size)
	}
	p.Records = make([]BlockRecord, count)
	for i := range p.Records {
		v, err := b.ReadInt32()
		if err != nil {
			return err
		}
		u := uint32(v)
		pos := protocol.Position{
			X: p.ChunkX*16 + int32(u>>28),
			Z: p.ChunkZ*16 + int32(u>>24&0x0F),
			Y: int32(u >> 16 & 0xFF),
		}
		if err := setRecord(b, &p.Records[i], pos, int32(u&0xFFFF)); err != nil {
			return err
		}
	}
	return nil
}

func encodePackedRecords(w *protocol.Writer, p *MultiBlockChange) error {
	w.WriteInt32(p.ChunkX)
	w.WriteInt32(p.ChunkZ)
	w.WriteInt16(int16(len(p.Records)))
	w.WriteInt32(int32(len(p.Records) * 4))
	for _, r := range p.Records {
		x := uint32(r.Pos.X-p.ChunkX*16) & 0x0F
		z := uint32(r.Pos.Z-p.ChunkZ*16) & 0x0F
		w.WriteInt32(int32(x<<28 | z<<24 | uint32(r.Pos.Y&0xFF)<<16 | uint32(r.RawState&0xFFFF)))
	}
	return nil
}

// From 14w04a to 20w28a: chunk coordinates, then horizontal byte, y byte and
// a VarInt state per record.
func decodeChunkRecords(b *protocol.Buffer, p *MultiBlockChange) error {
	var err error
	if p.ChunkX, err = b.ReadInt32(); err != nil {
		return err
	}
	if p.ChunkZ, err = b.ReadInt32(); err != nil {
		return err
	}
	n, err := b.ReadArrayLen(3)
	if err != nil {
		return err
	}
	p.Records = make([]BlockRecord, n)
	for i := range p.Records {
		xz, err := b.ReadUint8()
		if err != nil {
			return err
		}
		y, err := b.ReadUint8()
		if err != nil {
			return err
		}
		raw, err := b.ReadVarInt()
		if err != nil {
			return err
		}
		pos := protocol.Position{
			X: p.ChunkX*16 + int32(xz>>4),
			Y: int32(y),
			Z: p.ChunkZ*16 + int32(xz&0x0F),
		}
		if err := setRecord(b, &p.Records[i], pos, raw); err != nil {
			return err
		}
	}
	return nil
}

func encodeChunkRecords(w *protocol.Writer, p *MultiBlockChange) error {
	w.WriteInt32(p.ChunkX)
	w.WriteInt32(p.ChunkZ)
	w.WriteVarInt(int32(len(p.Records)))
	for _, r := range p.Records {
		x := uint8(r.Pos.X-p.ChunkX*16) & 0x0F
		z := uint8(r.Pos.Z-p.ChunkZ*16) & 0x0F
		w.WriteUint8(x<<4 | z)
		w.WriteUint8(uint8(r.Pos.Y))
		w.WriteVarInt(r.RawState)
	}
	return nil
}

// sectionPos packs x and z in 22 bits each and y in 20.
func unpackSectionPos(v int64) (x, y, z int32) {
	return int32(v >> 42), int32(v << 44 >> 44), int32(v << 22 >> 42)
}

func packSectionPos(x, y, z int32) int64 {
	return int64(x&0x3FFFFF)<<42 | int64(z&0x3FFFFF)<<20 | int64(y&0xFFFFF)
}

var multiBlockChangeLayout = Layout[MultiBlockChange]{
	{Name: "records", Range: protocol.Until(protocol.V14W04A), Decode: decodePackedRecords, Encode: encodePackedRecords},
	{Name: "records", Range: protocol.Between(protocol.V14W04A, protocol.V20W28A), Decode: decodeChunkRecords, Encode: encodeChunkRecords},
	{
		Name:  "section",
		Range: protocol.Since(protocol.V20W28A),
		Decode: func(b *protocol.Buffer, p *MultiBlockChange) error {
			v, err := b.ReadInt64()
			if err != nil {
				return err
			}
			p.ChunkX, p.SectionY, p.ChunkZ = unpackSectionPos(v)
			return nil
		},
		Encode: func(w *protocol.Writer, p *MultiBlockChange) error {
			w.WriteInt64(packSectionPos(p.ChunkX, p.SectionY, p.ChunkZ))
			return nil
		},
	},
	scalar("suppress_light", protocol.Between(protocol.V20W28A, protocol.V1_20), boolField, func(p *MultiBlockChange) *bool { return &p.SuppressLight }),
	{
		Name:  "records",
		Range: protocol.Since(protocol.V20W28A),
		Decode: func(b *protocol.Buffer, p *MultiBlockChange) error {
			n, err := b.ReadArrayLen(1)
			if err != nil {
				return err
			}
			p.Records = make([]BlockRecord, n)
			for i := range p.Records {
				v, err := b.ReadVarLong()
				if err != nil {
					return err
				}
				pos := protocol.Position{
					X: p.ChunkX*16 + int32(v>>8&0x0F),
					Y: p.SectionY*16 + int32(v&0x0F),
					Z: p.ChunkZ*16 + int32(v>>4&0x0F),
				}
				if err := setRecord(b, &p.Records[i], pos, int32(v>>12)); err != nil {
					return err
				}
			}
			return nil
		},
		Encode: func(w *protocol.Writer, p *MultiBlockChange) error {
			w.WriteVarInt(int32(len(p.Records)))
			for _, r := range p.Records {
				x := int64(r.Pos.X) & 0x0F
				y := int64(r.Pos.Y) & 0x0F
				z := int64(r.Pos.Z) & 0x0F
				w.WriteVarLong(int64(r.RawState)<<12 | x<<8 | z<<4 | y)
			}
			return nil
		},
	},
}

type TimeUpdate struct {
	WorldAge  int64
	TimeOfDay int64
	// TickDayTime is false when the daylight cycle is frozen (from 1.21.2;
	// older servers send a negative TimeOfDay instead).
	TickDayTime bool
}

var timeUpdateLayout = Layout[TimeUpdate]{
	scalar("world_age", protocol.AllVersions, int64Field, func(p *TimeUpdate) *int64 { return &p.WorldAge }),
	scalar("time_of_day", protocol.AllVersions, int64Field, func(p *TimeUpdate) *int64 { return &p.TimeOfDay }),
	scalar("tick_day_time", protocol.Since(protocol.V1_21_2), boolField, func(p *TimeUpdate) *bool { return &p.TickDayTime }),
}
