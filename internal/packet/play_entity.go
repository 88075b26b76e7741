package packet

import (
	"fmt"
	"slices"

	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/google/uuid"
)

// Vec3 is a position or velocity in blocks.
type Vec3 struct {
	X, Y, Z float64
}

// SpawnObject announces a non-living entity, and from 1.19 every entity.
type SpawnObject struct {
	EntityID int32
	UUID     uuid.UUID
	// Type is the object id before 1.14, the entity type registry id after.
	Type    int32
	Pos     Vec3
	Pitch   float32
	Yaw     float32
	HeadYaw float32
	Data    int32
	// Velocity is in blocks per tick. Before 15w31a it is only sent when
	// Data is not zero.
	Velocity Vec3
}

// velocityScale converts the short velocity fields to blocks per tick.
const velocityScale = 8000.0

var velocityField = field[Vec3]{
	read: func(b *protocol.Buffer) (Vec3, error) {
		var raw [3]int16
		for i := range raw {
			v, err := b.ReadInt16()
			if err != nil {
				return Vec3{}, err
			}
			raw[i] = v
		}
		return Vec3{
			X: float64(raw[0]) / velocityScale,
			Y: float64(raw[1]) / velocityScale,
			Z: float64(raw[2]) / velocityScale,
		}, nil
	},
	write: func(w *protocol.Writer, v Vec3) error {
		w.WriteInt16(int16(v.X * velocityScale))
		w.WriteInt16(int16(v.Y * velocityScale))
		w.WriteInt16(int16(v.Z * velocityScale))
		return nil
	},
}

func vecField(elem field[float64]) field[Vec3] {
	return field[Vec3]{
		read: func(b *protocol.Buffer) (Vec3, error) {
			var v Vec3
			var err error
			if v.X, err = elem.read(b); err != nil {
				return v, err
			}
			if v.Y, err = elem.read(b); err != nil {
				return v, err
			}
			v.Z, err = elem.read(b)
			return v, err
		},
		write: func(w *protocol.Writer, v Vec3) error {
			for _, c := range [3]float64{v.X, v.Y, v.Z} {
				if err := elem.write(w, c); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

var (
	fixedVecField  = vecField(fixed32Field)
	doubleVecField = vecField(float64Field)
)

// entityPosition is fixed-point before 16w06a and doubles after.
func entityPosition[T any](ref func(p *T) *Vec3) Layout[T] {
	return Layout[T]{
		scalar("position", protocol.Until(protocol.V16W06A), fixedVecField, ref),
		scalar("position", protocol.Since(protocol.V16W06A), doubleVecField, ref),
	}
}

var objectTypeField = field[int32]{
	read: func(b *protocol.Buffer) (int32, error) {
		v, err := b.ReadInt8()
		return int32(v), err
	},
	write: func(w *protocol.Writer, v int32) error {
		w.WriteInt8(int8(v))
		return nil
	},
}

var spawnObjectLayout = slices.Concat(
	Layout[SpawnObject]{
		scalar("entity_id", protocol.AllVersions, varIntField, func(p *SpawnObject) *int32 { return &p.EntityID }),
		scalar("uuid", protocol.Since(protocol.V15W31A), uuidField, func(p *SpawnObject) *uuid.UUID { return &p.UUID }),
		scalar("type", protocol.Until(protocol.V1_14), objectTypeField, func(p *SpawnObject) *int32 { return &p.Type }),
		{
			Name:  "type",
			Range: protocol.Since(protocol.V1_14),
			Decode: func(b *protocol.Buffer, p *SpawnObject) error {
				v, err := b.ReadVarInt()
				if err != nil {
					return err
				}
				if _, err := b.Resolver().ResolveEntityType(v); err != nil {
					return err
				}
				p.Type = v
				return nil
			},
			Encode: func(w *protocol.Writer, p *SpawnObject) error {
				w.WriteVarInt(p.Type)
				return nil
			},
		},
	},
	entityPosition(func(p *SpawnObject) *Vec3 { return &p.Pos }),
	Layout[SpawnObject]{
		scalar("pitch", protocol.AllVersions, angleField, func(p *SpawnObject) *float32 { return &p.Pitch }),
		scalar("yaw", protocol.AllVersions, angleField, func(p *SpawnObject) *float32 { return &p.Yaw }),
		scalar("head_yaw", protocol.Since(protocol.V1_19), angleField, func(p *SpawnObject) *float32 { return &p.HeadYaw }),
		scalar("data", protocol.Until(protocol.V1_19), int32Field, func(p *SpawnObject) *int32 { return &p.Data }),
		scalar("data", protocol.Since(protocol.V1_19), varIntField, func(p *SpawnObject) *int32 { return &p.Data }),
		{
			Name:  "velocity",
			Range: protocol.Until(protocol.V15W31A),
			Decode: func(b *protocol.Buffer, p *SpawnObject) error {
				if p.Data == 0 {
					return nil
				}
				var err error
				p.Velocity, err = velocityField.read(b)
				return err
			},
			Encode: func(w *protocol.Writer, p *SpawnObject) error {
				if p.Data == 0 {
					return nil
				}
				return velocityField.write(w, p.Velocity)
			},
		},
		scalar("velocity", protocol.Since(protocol.V15W31A), velocityField, func(p *SpawnObject) *Vec3 { return &p.Velocity }),
	},
)

type DestroyEntities struct {
	EntityIDs []int32
}

var destroyEntitiesLayout = Layout[DestroyEntities]{
	{
		Name:  "entity_ids",
		Range: protocol.Until(protocol.V14W04A),
		Decode: func(b *protocol.Buffer, p *DestroyEntities) error {
			n, err := b.ReadUint8()
			if err != nil {
				return err
			}
			if int(n)*4 > b.Len() {
				return fmt.Errorf("%w: %d entity ids in %d bytes", protocol.ErrMalformed, n, b.Len())
			}
			p.EntityIDs = make([]int32, n)
			for i := range p.EntityIDs {
				if p.EntityIDs[i], err = b.ReadInt32(); err != nil {
					return err
				}
			}
			return nil
		},
		Encode: func(w *protocol.Writer, p *DestroyEntities) error {
			if len(p.EntityIDs) > 0xFF {
				return fmt.Errorf("%d entity ids do not fit in one packet", len(p.EntityIDs))
			}
			w.WriteUint8(uint8(len(p.EntityIDs)))
			for _, id := range p.EntityIDs {
				w.WriteInt32(id)
			}
			return nil
		},
	},
	scalar("entity_ids", protocol.Between(protocol.V14W04A, protocol.V1_17), varIntListField, func(p *DestroyEntities) *[]int32 { return &p.EntityIDs }),
	{
		Name:  "entity_id",
		Range: protocol.Between(protocol.V1_17, protocol.V1_17_1),
		Decode: func(b *protocol.Buffer, p *DestroyEntities) error {
			id, err := b.ReadVarInt()
			p.EntityIDs = []int32{id}
			return err
		},
		Encode: func(w *protocol.Writer, p *DestroyEntities) error {
			if len(p.EntityIDs) != 1 {
				return fmt.Errorf("exactly one entity id per packet, got %d", len(p.EntityIDs))
			}
			w.WriteVarInt(p.EntityIDs[0])
			return nil
		},
	},
	scalar("entity_ids", protocol.Since(protocol.V1_17_1), varIntListField, func(p *DestroyEntities) *[]int32 { return &p.EntityIDs }),
}

var varIntListField = plain((*protocol.Buffer).ReadVarIntArray, (*protocol.Writer).WriteVarIntArray)

// EntityRelativeMove moves an entity by a small delta in blocks.
type EntityRelativeMove struct {
	EntityID int32
	Delta    Vec3
	OnGround bool
}

// Deltas are 1/32 block bytes before 16w06a and 1/4096 block shorts after.
const deltaScale = 4096.0

var (
	byteDeltaField  = vecField(plain((*protocol.Buffer).ReadFixedPoint8, (*protocol.Writer).WriteFixedPoint8))
	shortDeltaField = vecField(field[float64]{
		read: func(b *protocol.Buffer) (float64, error) {
			v, err := b.ReadInt16()
			return float64(v) / deltaScale, err
		},
		write: func(w *protocol.Writer, v float64) error {
			w.WriteInt16(int16(v * deltaScale))
			return nil
		},
	})
)

var entityRelativeMoveLayout = Layout[EntityRelativeMove]{
	scalar("entity_id", protocol.AllVersions, entityIDField, func(p *EntityRelativeMove) *int32 { return &p.EntityID }),
	scalar("delta", protocol.Until(protocol.V16W06A), byteDeltaField, func(p *EntityRelativeMove) *Vec3 { return &p.Delta }),
	scalar("delta", protocol.Since(protocol.V16W06A), shortDeltaField, func(p *EntityRelativeMove) *Vec3 { return &p.Delta }),
	scalar("on_ground", protocol.Since(protocol.V14W25B), boolField, func(p *EntityRelativeMove) *bool { return &p.OnGround }),
}

// EntityTeleport sets an absolute entity position. From 1.21.2 this is the
// position sync packet, which also carries velocity.
type EntityTeleport struct {
	EntityID int32
	Pos      Vec3
	Velocity Vec3
	Yaw      float32
	Pitch    float32
	OnGround bool
}

var entityTeleportLayout = slices.Concat(
	Layout[EntityTeleport]{
		scalar("entity_id", protocol.AllVersions, entityIDField, func(p *EntityTeleport) *int32 { return &p.EntityID }),
	},
	entityPosition(func(p *EntityTeleport) *Vec3 { return &p.Pos }),
	Layout[EntityTeleport]{
		scalar("velocity", protocol.Since(protocol.V1_21_2), doubleVecField, func(p *EntityTeleport) *Vec3 { return &p.Velocity }),
		scalar("yaw", protocol.Until(protocol.V1_21_2), angleField, func(p *EntityTeleport) *float32 { return &p.Yaw }),
		scalar("pitch", protocol.Until(protocol.V1_21_2), angleField, func(p *EntityTeleport) *float32 { return &p.Pitch }),
		scalar("yaw", protocol.Since(protocol.V1_21_2), float32Field, func(p *EntityTeleport) *float32 { return &p.Yaw }),
		scalar("pitch", protocol.Since(protocol.V1_21_2), float32Field, func(p *EntityTeleport) *float32 { return &p.Pitch }),
		scalar("on_ground", protocol.Since(protocol.V14W25B), boolField, func(p *EntityTeleport) *bool { return &p.OnGround }),
	},
)
