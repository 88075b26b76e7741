package packet

import (
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/google/uuid"
)

// MetadataType is the decoded kind of an entity metadata value. Wire ids for
// these kinds are renumbered by almost every release, see metadataTables.
type MetadataType uint8

const (
	MetaByte MetadataType = iota
	MetaShort
	MetaInt
	MetaVarInt
	MetaVarLong
	MetaFloat
	MetaString
	MetaChat
	MetaOptChat
	MetaSlot
	MetaBool
	MetaRotation
	MetaPosition
	MetaOptPosition
	MetaDirection
	MetaOptUUID
	MetaBlockState
	MetaOptBlockState
	MetaNBT
	MetaParticle
	MetaParticles
	MetaVillagerData
	MetaOptVarInt
	MetaPose
	MetaCatVariant
	MetaWolfVariant
	MetaFrogVariant
	MetaOptGlobalPos
	MetaPaintingVariant
	MetaSnifferState
	MetaArmadilloState
	MetaVector3
	MetaQuaternion
	// MetaLegacyVector is the three-int vector of the 1.7 and 1.8 format.
	MetaLegacyVector
)

var metadataTypeNames = [...]string{
	"byte", "short", "int", "varint", "varlong", "float", "string", "chat",
	"optional_chat", "slot", "bool", "rotation", "position", "optional_position",
	"direction", "optional_uuid", "block_state", "optional_block_state", "nbt",
	"particle", "particles", "villager_data", "optional_varint", "pose",
	"cat_variant", "wolf_variant", "frog_variant", "optional_global_pos",
	"painting_variant", "sniffer_state", "armadillo_state", "vector3",
	"quaternion", "legacy_vector",
}

func (t MetadataType) String() string {
	if int(t) < len(metadataTypeNames) {
		return metadataTypeNames[t]
	}
	return fmt.Sprintf("MetadataType(%d)", uint8(t))
}

// Slot is an item stack. A nil *Slot is an empty slot.
type Slot struct {
	Item   int32
	Count  int8
	Damage int16
	NBT    *protocol.Tag
}

type VillagerData struct {
	Type       int32
	Profession int32
	Level      int32
}

// MetadataEntry is one tracked value. Value holds, by Type:
//
//	MetaByte int8, MetaShort int16, MetaInt and MetaVarInt int32,
//	MetaVarLong int64, MetaFloat float32, MetaString string, MetaChat Chat,
//	MetaOptChat *Chat, MetaSlot *Slot, MetaBool bool,
//	MetaRotation and MetaVector3 [3]float32, MetaQuaternion [4]float32,
//	MetaPosition protocol.Position, MetaOptPosition *protocol.Position,
//	MetaOptUUID *uuid.UUID, MetaNBT *protocol.Tag,
//	MetaVillagerData VillagerData, MetaOptVarInt *int32,
//	MetaOptGlobalPos *GlobalPos, MetaLegacyVector [3]int32.
//
// Enum-like kinds (direction, pose, variants, block states) are int32.
type MetadataEntry struct {
	Index uint8
	Type  MetadataType
	Value any
}

type EntityMetadata struct {
	EntityID int32
	Entries  []MetadataEntry
}

// Lookup returns the entry with the given index.
func (m *EntityMetadata) Lookup(index uint8) (MetadataEntry, bool) {
	for _, e := range m.Entries {
		if e.Index == index {
			return e, true
		}
	}
	return MetadataEntry{}, false
}

type metadataTable struct {
	since protocol.Version
	types []MetadataType
}

// metadataTables maps wire type ids to kinds, newest first.
var metadataTables = []metadataTable{
	{protocol.V1_20_5, []MetadataType{
		MetaByte, MetaVarInt, MetaVarLong, MetaFloat, MetaString, MetaChat, MetaOptChat,
		MetaSlot, MetaBool, MetaRotation, MetaPosition, MetaOptPosition, MetaDirection,
		MetaOptUUID, MetaBlockState, MetaOptBlockState, MetaNBT, MetaParticle, MetaParticles,
		MetaVillagerData, MetaOptVarInt, MetaPose, MetaCatVariant, MetaWolfVariant,
		MetaFrogVariant, MetaOptGlobalPos, MetaPaintingVariant, MetaSnifferState,
		MetaArmadilloState, MetaVector3, MetaQuaternion,
	}},
	{protocol.V1_19_4, []MetadataType{
		MetaByte, MetaVarInt, MetaVarLong, MetaFloat, MetaString, MetaChat, MetaOptChat,
		MetaSlot, MetaBool, MetaRotation, MetaPosition, MetaOptPosition, MetaDirection,
		MetaOptUUID, MetaBlockState, MetaOptBlockState, MetaNBT, MetaParticle,
		MetaVillagerData, MetaOptVarInt, MetaPose, MetaCatVariant, MetaFrogVariant,
		MetaOptGlobalPos, MetaPaintingVariant, MetaSnifferState, MetaVector3, MetaQuaternion,
	}},
	{protocol.V1_19_3, []MetadataType{
		MetaByte, MetaVarInt, MetaVarLong, MetaFloat, MetaString, MetaChat, MetaOptChat,
		MetaSlot, MetaBool, MetaRotation, MetaPosition, MetaOptPosition, MetaDirection,
		MetaOptUUID, MetaOptBlockState, MetaNBT, MetaParticle, MetaVillagerData,
		MetaOptVarInt, MetaPose, MetaCatVariant, MetaFrogVariant, MetaOptGlobalPos,
		MetaPaintingVariant,
	}},
	{protocol.V1_19, []MetadataType{
		MetaByte, MetaVarInt, MetaFloat, MetaString, MetaChat, MetaOptChat, MetaSlot,
		MetaBool, MetaRotation, MetaPosition, MetaOptPosition, MetaDirection, MetaOptUUID,
		MetaOptBlockState, MetaNBT, MetaParticle, MetaVillagerData, MetaOptVarInt, MetaPose,
		MetaCatVariant, MetaFrogVariant, MetaOptGlobalPos, MetaPaintingVariant,
	}},
	{protocol.V1_14, []MetadataType{
		MetaByte, MetaVarInt, MetaFloat, MetaString, MetaChat, MetaOptChat, MetaSlot,
		MetaBool, MetaRotation, MetaPosition, MetaOptPosition, MetaDirection, MetaOptUUID,
		MetaOptBlockState, MetaNBT, MetaParticle, MetaVillagerData, MetaOptVarInt, MetaPose,
	}},
	{protocol.V1_13, []MetadataType{
		MetaByte, MetaVarInt, MetaFloat, MetaString, MetaChat, MetaOptChat, MetaSlot,
		MetaBool, MetaRotation, MetaPosition, MetaOptPosition, MetaDirection, MetaOptUUID,
		MetaOptBlockState, MetaNBT, MetaParticle,
	}},
	{protocol.V1_12, []MetadataType{
		MetaByte, MetaVarInt, MetaFloat, MetaString, MetaChat, MetaSlot, MetaBool,
		MetaRotation, MetaPosition, MetaOptPosition, MetaDirection, MetaOptUUID,
		MetaOptBlockState, MetaNBT,
	}},
	{protocol.V15W31A, []MetadataType{
		MetaByte, MetaVarInt, MetaFloat, MetaString, MetaChat, MetaSlot, MetaBool,
		MetaRotation, MetaPosition, MetaOptPosition, MetaDirection, MetaOptUUID,
		MetaOptBlockState,
	}},
	{protocol.V1_7_2, []MetadataType{
		MetaByte, MetaShort, MetaInt, MetaFloat, MetaString, MetaSlot, MetaLegacyVector,
		MetaRotation,
	}},
}

func metadataTypesFor(v protocol.Version) []MetadataType {
	for _, t := range metadataTables {
		if v >= t.since {
			return t.types
		}
	}
	return nil
}

func metadataKind(v protocol.Version, id int32) (MetadataType, error) {
	types := metadataTypesFor(v)
	if id < 0 || int(id) >= len(types) {
		return 0, fmt.Errorf("%w: metadata type %d at %s", protocol.ErrMalformed, id, v)
	}
	return types[id], nil
}

func metadataWireID(v protocol.Version, kind MetadataType) (int32, error) {
	for i, t := range metadataTypesFor(v) {
		if t == kind {
			return int32(i), nil
		}
	}
	return 0, fmt.Errorf("%w: metadata type %s does not exist at %s", ErrNotEncodable, kind, v)
}

const (
	legacyMetadataEnd = 0x7F
	metadataEnd       = 0xFF
)

// legacyMetadataField is the 1.7 and 1.8 format: one byte holding the type in
// the top three bits and the index in the low five, terminated by 0x7F.
var legacyMetadataField = field[[]MetadataEntry]{
	read: func(b *protocol.Buffer) ([]MetadataEntry, error) {
		var out []MetadataEntry
		for {
			head, err := b.ReadUint8()
			if err != nil {
				return nil, err
			}
			if head == legacyMetadataEnd {
				return out, nil
			}
			kind, err := metadataKind(b.Version(), int32(head>>5))
			if err != nil {
				return nil, err
			}
			v, err := readMetadataValue(b, kind)
			if err != nil {
				return nil, fmt.Errorf("index %d (%s): %w", head&0x1F, kind, err)
			}
			out = append(out, MetadataEntry{Index: head & 0x1F, Type: kind, Value: v})
		}
	},
	write: func(w *protocol.Writer, entries []MetadataEntry) error {
		for _, e := range entries {
			id, err := metadataWireID(w.Version(), e.Type)
			if err != nil {
				return err
			}
			w.WriteUint8(uint8(id)<<5 | e.Index&0x1F)
			if err := writeMetadataValue(w, e.Type, e.Value); err != nil {
				return fmt.Errorf("index %d: %w", e.Index, err)
			}
		}
		w.WriteUint8(legacyMetadataEnd)
		return nil
	},
}

// metadataField is the format since 15w31a: index byte, type id, value,
// terminated by index 0xFF. The type id is a byte before 1.9.1-pre1.
var metadataField = field[[]MetadataEntry]{
	read: func(b *protocol.Buffer) ([]MetadataEntry, error) {
		var out []MetadataEntry
		for {
			index, err := b.ReadUint8()
			if err != nil {
				return nil, err
			}
			if index == metadataEnd {
				return out, nil
			}
			var id int32
			if b.Version() < protocol.V1_9_1_PRE1 {
				raw, err := b.ReadUint8()
				if err != nil {
					return nil, err
				}
				id = int32(raw)
			} else if id, err = b.ReadVarInt(); err != nil {
				return nil, err
			}
			kind, err := metadataKind(b.Version(), id)
			if err != nil {
				return nil, err
			}
			v, err := readMetadataValue(b, kind)
			if err != nil {
				return nil, fmt.Errorf("index %d (%s): %w", index, kind, err)
			}
			out = append(out, MetadataEntry{Index: index, Type: kind, Value: v})
		}
	},
	write: func(w *protocol.Writer, entries []MetadataEntry) error {
		for _, e := range entries {
			id, err := metadataWireID(w.Version(), e.Type)
			if err != nil {
				return err
			}
			w.WriteUint8(e.Index)
			if w.Version() < protocol.V1_9_1_PRE1 {
				w.WriteUint8(uint8(id))
			} else {
				w.WriteVarInt(id)
			}
			if err := writeMetadataValue(w, e.Type, e.Value); err != nil {
				return fmt.Errorf("index %d: %w", e.Index, err)
			}
		}
		w.WriteUint8(metadataEnd)
		return nil
	},
}

func readFloats(b *protocol.Buffer, out []float32) error {
	for i := range out {
		v, err := b.ReadFloat32()
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

// readOptVarInt reads the "0 is absent, otherwise value+1" encoding.
func readOptVarInt(b *protocol.Buffer) (*int32, error) {
	v, err := b.ReadVarInt()
	if err != nil || v == 0 {
		return nil, err
	}
	v--
	return &v, nil
}

func readMetadataValue(b *protocol.Buffer, kind MetadataType) (any, error) {
	switch kind {
	case MetaByte:
		return b.ReadInt8()
	case MetaShort:
		return b.ReadInt16()
	case MetaInt:
		return b.ReadInt32()
	case MetaVarInt, MetaDirection, MetaPose, MetaCatVariant, MetaFrogVariant,
		MetaSnifferState, MetaArmadilloState:
		return b.ReadVarInt()
	case MetaVarLong:
		return b.ReadVarLong()
	case MetaFloat:
		return b.ReadFloat32()
	case MetaString:
		return b.ReadString()
	case MetaChat:
		return chatField.read(b)
	case MetaOptChat:
		return optionalField(chatField).read(b)
	case MetaSlot:
		return readSlot(b)
	case MetaBool:
		return b.ReadBool()
	case MetaRotation, MetaVector3:
		var v [3]float32
		if err := readFloats(b, v[:]); err != nil {
			return nil, err
		}
		return v, nil
	case MetaQuaternion:
		var v [4]float32
		if err := readFloats(b, v[:]); err != nil {
			return nil, err
		}
		return v, nil
	case MetaLegacyVector:
		var v [3]int32
		for i := range v {
			n, err := b.ReadInt32()
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	case MetaPosition:
		return b.ReadPosition()
	case MetaOptPosition:
		return optionalField(positionField).read(b)
	case MetaOptUUID:
		return optionalField(uuidField).read(b)
	case MetaBlockState, MetaOptBlockState:
		raw, err := b.ReadVarInt()
		if err != nil {
			return nil, err
		}
		if raw == 0 && kind == MetaOptBlockState {
			return raw, nil
		}
		return resolveState(b, raw)
	case MetaNBT:
		return b.ReadNBT()
	case MetaVillagerData:
		var d VillagerData
		var err error
		if d.Type, err = b.ReadVarInt(); err != nil {
			return nil, err
		}
		if d.Profession, err = b.ReadVarInt(); err != nil {
			return nil, err
		}
		d.Level, err = b.ReadVarInt()
		return d, err
	case MetaOptVarInt:
		return readOptVarInt(b)
	case MetaOptGlobalPos:
		return optionalField(globalPosField).read(b)
	case MetaWolfVariant, MetaPaintingVariant:
		return readHolderID(b, kind)
	case MetaParticle, MetaParticles:
		return nil, fmt.Errorf("%w: %s values are not decoded", ErrCosmetic, kind)
	}
	return nil, fmt.Errorf("%w: metadata type %s", protocol.ErrMalformed, kind)
}

// readHolderID reads a registry reference. From 1.21 these may carry an
// inline definition, marked by id 0, which is not decoded.
func readHolderID(b *protocol.Buffer, kind MetadataType) (int32, error) {
	v, err := b.ReadVarInt()
	if err != nil || b.Version() < protocol.V1_21 {
		return v, err
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: inline %s", ErrCosmetic, kind)
	}
	return v - 1, nil
}

// readSlot reads an item stack:
//   - before 1.13.2: short id (-1 empty), count, damage before the flattening, nbt
//   - until 1.20.5: presence flag, VarInt id, count, nbt
//   - from 1.20.5: component-based stacks, only the empty form is decoded
func readSlot(b *protocol.Buffer) (*Slot, error) {
	v := b.Version()
	switch {
	case v < protocol.V1_13_2_PRE1:
		id, err := b.ReadInt16()
		if err != nil || id < 0 {
			return nil, err
		}
		s := &Slot{Item: int32(id)}
		if s.Count, err = b.ReadInt8(); err != nil {
			return nil, err
		}
		if v < protocol.FlatteningVersion {
			if s.Damage, err = b.ReadInt16(); err != nil {
				return nil, err
			}
		}
		if s.NBT, err = b.ReadNBT(); err != nil {
			return nil, err
		}
		return s, resolveItem(b, s.Item)
	case v < protocol.V1_20_5:
		present, err := b.ReadBool()
		if err != nil || !present {
			return nil, err
		}
		s := &Slot{}
		if s.Item, err = b.ReadVarInt(); err != nil {
			return nil, err
		}
		if s.Count, err = b.ReadInt8(); err != nil {
			return nil, err
		}
		if s.NBT, err = b.ReadNBT(); err != nil {
			return nil, err
		}
		return s, resolveItem(b, s.Item)
	default:
		count, err := b.ReadVarInt()
		if err != nil || count <= 0 {
			return nil, err
		}
		return nil, fmt.Errorf("%w: component item stacks are not decoded", ErrCosmetic)
	}
}

func resolveItem(b *protocol.Buffer, id int32) error {
	_, err := b.Resolver().ResolveItem(id)
	return err
}

func writeSlot(w *protocol.Writer, s *Slot) error {
	v := w.Version()
	switch {
	case v < protocol.V1_13_2_PRE1:
		if s == nil {
			w.WriteInt16(-1)
			return nil
		}
		w.WriteInt16(int16(s.Item))
		w.WriteInt8(s.Count)
		if v < protocol.FlatteningVersion {
			w.WriteInt16(s.Damage)
		}
		return w.WriteNBT(s.NBT)
	case v < protocol.V1_20_5:
		w.WriteBool(s != nil)
		if s == nil {
			return nil
		}
		w.WriteVarInt(s.Item)
		w.WriteInt8(s.Count)
		return w.WriteNBT(s.NBT)
	default:
		if s == nil {
			w.WriteVarInt(0)
			return nil
		}
		return fmt.Errorf("%w: component item stacks", ErrNotEncodable)
	}
}

func writeMetadataValue(w *protocol.Writer, kind MetadataType, value any) error {
	bad := func() error {
		return fmt.Errorf("%w: %T is not a %s value", ErrNotEncodable, value, kind)
	}
	switch kind {
	case MetaByte:
		v, ok := value.(int8)
		if !ok {
			return bad()
		}
		w.WriteInt8(v)
	case MetaShort:
		v, ok := value.(int16)
		if !ok {
			return bad()
		}
		w.WriteInt16(v)
	case MetaInt:
		v, ok := value.(int32)
		if !ok {
			return bad()
		}
		w.WriteInt32(v)
	case MetaVarInt, MetaDirection, MetaPose, MetaCatVariant, MetaFrogVariant,
		MetaSnifferState, MetaArmadilloState, MetaBlockState, MetaOptBlockState:
		v, ok := value.(int32)
		if !ok {
			return bad()
		}
		w.WriteVarInt(v)
	case MetaWolfVariant, MetaPaintingVariant:
		v, ok := value.(int32)
		if !ok {
			return bad()
		}
		if w.Version() >= protocol.V1_21 {
			v++
		}
		w.WriteVarInt(v)
	case MetaVarLong:
		v, ok := value.(int64)
		if !ok {
			return bad()
		}
		w.WriteVarLong(v)
	case MetaFloat:
		v, ok := value.(float32)
		if !ok {
			return bad()
		}
		w.WriteFloat32(v)
	case MetaString:
		v, ok := value.(string)
		if !ok {
			return bad()
		}
		w.WriteString(v)
	case MetaChat:
		v, ok := value.(Chat)
		if !ok {
			return bad()
		}
		return chatField.write(w, v)
	case MetaOptChat:
		v, ok := value.(*Chat)
		if !ok {
			return bad()
		}
		return optionalField(chatField).write(w, v)
	case MetaSlot:
		v, ok := value.(*Slot)
		if !ok {
			return bad()
		}
		return writeSlot(w, v)
	case MetaBool:
		v, ok := value.(bool)
		if !ok {
			return bad()
		}
		w.WriteBool(v)
	case MetaRotation, MetaVector3:
		v, ok := value.([3]float32)
		if !ok {
			return bad()
		}
		for _, f := range v {
			w.WriteFloat32(f)
		}
	case MetaQuaternion:
		v, ok := value.([4]float32)
		if !ok {
			return bad()
		}
		for _, f := range v {
			w.WriteFloat32(f)
		}
	case MetaLegacyVector:
		v, ok := value.([3]int32)
		if !ok {
			return bad()
		}
		for _, n := range v {
			w.WriteInt32(n)
		}
	case MetaPosition:
		v, ok := value.(protocol.Position)
		if !ok {
			return bad()
		}
		w.WritePosition(v)
	case MetaOptPosition:
		v, ok := value.(*protocol.Position)
		if !ok {
			return bad()
		}
		return optionalField(positionField).write(w, v)
	case MetaOptUUID:
		v, ok := value.(*uuid.UUID)
		if !ok {
			return bad()
		}
		return optionalField(uuidField).write(w, v)
	case MetaNBT:
		v, ok := value.(*protocol.Tag)
		if !ok {
			return bad()
		}
		return w.WriteNBT(v)
	case MetaVillagerData:
		v, ok := value.(VillagerData)
		if !ok {
			return bad()
		}
		w.WriteVarInt(v.Type)
		w.WriteVarInt(v.Profession)
		w.WriteVarInt(v.Level)
	case MetaOptVarInt:
		v, ok := value.(*int32)
		if !ok {
			return bad()
		}
		if v == nil {
			w.WriteVarInt(0)
		} else {
			w.WriteVarInt(*v + 1)
		}
	case MetaOptGlobalPos:
		v, ok := value.(*GlobalPos)
		if !ok {
			return bad()
		}
		return optionalField(globalPosField).write(w, v)
	default:
		return bad()
	}
	return nil
}

var entityMetadataLayout = Layout[EntityMetadata]{
	scalar("entity_id", protocol.AllVersions, entityIDField, func(p *EntityMetadata) *int32 { return &p.EntityID }),
	scalar("metadata", protocol.Until(protocol.V15W31A), legacyMetadataField, func(p *EntityMetadata) *[]MetadataEntry { return &p.Entries }),
	scalar("metadata", protocol.Since(protocol.V15W31A), metadataField, func(p *EntityMetadata) *[]MetadataEntry { return &p.Entries }),
}
