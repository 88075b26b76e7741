package packet

import (
	"slices"

	"github.com/Versifine/mcwire/internal/protocol"
)

// GlobalPos is a block position in a named dimension.
type GlobalPos struct {
	Dimension string
	Pos       protocol.Position
}

// SpawnInfo describes the world the player enters, on join and on respawn.
// Which of the dimension fields is set depends on the version:
//   - DimensionID before 1.16
//   - DimensionType in [1.16, 1.16.2) and [1.19, 1.20.5)
//   - DimensionTag in [1.16.2, 1.19)
//   - DimensionIndex from 1.20.5, an index into the dimension_type registry
type SpawnInfo struct {
	DimensionID      int32
	DimensionType    string
	DimensionTag     *protocol.Tag
	DimensionIndex   int32
	WorldName        string
	HashedSeed       int64
	Difficulty       uint8
	GameMode         uint8
	PreviousGameMode int8
	LevelType        string
	Debug            bool
	Flat             bool
	Death            *GlobalPos
	PortalCooldown   int32
	SeaLevel         int32
}

type JoinGame struct {
	EntityID            int32
	Hardcore            bool
	WorldNames          []string
	DimensionCodec      *protocol.Tag
	MaxPlayers          int32
	ViewDistance        int32
	SimulationDistance  int32
	ReducedDebugInfo    bool
	EnableRespawnScreen bool
	DoLimitedCrafting   bool
	Spawn               SpawnInfo
	EnforcesSecureChat  bool
}

type Respawn struct {
	Spawn SpawnInfo
	// DataKept is a bit set of what the client keeps (attributes, metadata).
	DataKept uint8
}

var globalPosField = field[GlobalPos]{
	read: func(b *protocol.Buffer) (GlobalPos, error) {
		var g GlobalPos
		var err error
		if g.Dimension, err = b.ReadString(); err != nil {
			return g, err
		}
		g.Pos, err = b.ReadPosition()
		return g, err
	},
	write: func(w *protocol.Writer, g GlobalPos) error {
		w.WriteString(g.Dimension)
		w.WritePosition(g.Pos)
		return nil
	},
}

var (
	uint8IntField = field[int32]{
		read: func(b *protocol.Buffer) (int32, error) {
			v, err := b.ReadUint8()
			return int32(v), err
		},
		write: func(w *protocol.Writer, v int32) error {
			w.WriteUint8(uint8(v))
			return nil
		},
	}
	stringListField = listField(stringField, 1)
)

// embed lifts the steps of a nested struct into the layout of its parent.
func embed[T, U any](steps Layout[U], ref func(p *T) *U) Layout[T] {
	out := make(Layout[T], len(steps))
	for i, s := range steps {
		out[i] = Step[T]{
			Name:  s.Name,
			Range: s.Range,
			Decode: func(b *protocol.Buffer, p *T) error {
				return s.Decode(b, ref(p))
			},
			Encode: func(w *protocol.Writer, p *T) error {
				return s.Encode(w, ref(p))
			},
		}
	}
	return out
}

const hardcoreFlag = 0x08

// legacyGameModeStep reads the game mode byte that carried the hardcore flag
// before 1.16.2.
var legacyGameModeStep = Step[JoinGame]{
	Name:  "game_mode",
	Range: protocol.Until(protocol.V1_16_2),
	Decode: func(b *protocol.Buffer, p *JoinGame) error {
		v, err := b.ReadUint8()
		if err != nil {
			return err
		}
		p.Hardcore = v&hardcoreFlag != 0
		p.Spawn.GameMode = v &^ hardcoreFlag
		return nil
	},
	Encode: func(w *protocol.Writer, p *JoinGame) error {
		v := p.Spawn.GameMode
		if p.Hardcore {
			v |= hardcoreFlag
		}
		w.WriteUint8(v)
		return nil
	},
}

// spawnInfoLayout is the shared world description used from 1.20.2.
var spawnInfoLayout = Layout[SpawnInfo]{
	scalar("dimension_type", protocol.Between(protocol.V1_20_2, protocol.V1_20_5), stringField, func(p *SpawnInfo) *string { return &p.DimensionType }),
	scalar("dimension_type", protocol.Since(protocol.V1_20_5), varIntField, func(p *SpawnInfo) *int32 { return &p.DimensionIndex }),
	scalar("world_name", protocol.AllVersions, stringField, func(p *SpawnInfo) *string { return &p.WorldName }),
	scalar("hashed_seed", protocol.AllVersions, int64Field, func(p *SpawnInfo) *int64 { return &p.HashedSeed }),
	scalar("game_mode", protocol.AllVersions, uint8Field, func(p *SpawnInfo) *uint8 { return &p.GameMode }),
	scalar("previous_game_mode", protocol.AllVersions, int8Field, func(p *SpawnInfo) *int8 { return &p.PreviousGameMode }),
	scalar("debug", protocol.AllVersions, boolField, func(p *SpawnInfo) *bool { return &p.Debug }),
	scalar("flat", protocol.AllVersions, boolField, func(p *SpawnInfo) *bool { return &p.Flat }),
	scalar("death", protocol.AllVersions, optionalField(globalPosField), func(p *SpawnInfo) **GlobalPos { return &p.Death }),
	scalar("portal_cooldown", protocol.AllVersions, varIntField, func(p *SpawnInfo) *int32 { return &p.PortalCooldown }),
	scalar("sea_level", protocol.Since(protocol.V1_21_2), varIntField, func(p *SpawnInfo) *int32 { return &p.SeaLevel }),
}

// legacyDimensionSteps are the dimension encodings used before 1.20.2.
func legacyDimensionSteps[T any](spawn func(p *T) *SpawnInfo, idField field[int32], idRange protocol.Range) Layout[T] {
	return Layout[T]{
		scalar("dimension", idRange, idField, func(p *T) *int32 { return &spawn(p).DimensionID }),
		scalar("dimension", protocol.Between(protocol.V1_16, protocol.V1_16_2), stringField, func(p *T) *string { return &spawn(p).DimensionType }),
		scalar("dimension", protocol.Between(protocol.V1_16_2, protocol.V1_19), nbtField, func(p *T) **protocol.Tag { return &spawn(p).DimensionTag }),
		scalar("dimension", protocol.Between(protocol.V1_19, protocol.V1_20_2), stringField, func(p *T) *string { return &spawn(p).DimensionType }),
	}
}

func joinSpawn(p *JoinGame) *SpawnInfo { return &p.Spawn }

var joinGameLayout = slices.Concat(
	Layout[JoinGame]{
		scalar("entity_id", protocol.AllVersions, int32Field, func(p *JoinGame) *int32 { return &p.EntityID }),
		scalar("hardcore", protocol.Since(protocol.V1_16_2), boolField, func(p *JoinGame) *bool { return &p.Hardcore }),
		legacyGameModeStep,
		scalar("game_mode", protocol.Between(protocol.V1_16_2, protocol.V1_20_2), uint8Field, func(p *JoinGame) *uint8 { return &p.Spawn.GameMode }),
		scalar("previous_game_mode", protocol.Between(protocol.V1_16, protocol.V1_20_2), int8Field, func(p *JoinGame) *int8 { return &p.Spawn.PreviousGameMode }),
		scalar("world_names", protocol.Between(protocol.V1_16, protocol.V1_20_2), stringListField, func(p *JoinGame) *[]string { return &p.WorldNames }),
		scalar("dimension_codec", protocol.Between(protocol.V1_16, protocol.V1_20_2), nbtField, func(p *JoinGame) **protocol.Tag { return &p.DimensionCodec }),
	},
	legacyDimensionSteps(joinSpawn, byteEnumField, protocol.Until(protocol.V1_9_1)),
	legacyDimensionSteps(joinSpawn, int32Field, protocol.Between(protocol.V1_9_1, protocol.V1_16))[:1],
	Layout[JoinGame]{
		scalar("world_name", protocol.Between(protocol.V1_16, protocol.V1_20_2), stringField, func(p *JoinGame) *string { return &p.Spawn.WorldName }),
		scalar("hashed_seed", protocol.Between(protocol.V1_15, protocol.V1_20_2), int64Field, func(p *JoinGame) *int64 { return &p.Spawn.HashedSeed }),
		scalar("difficulty", protocol.Until(protocol.V1_14), uint8Field, func(p *JoinGame) *uint8 { return &p.Spawn.Difficulty }),
		scalar("max_players", protocol.Until(protocol.V1_16_2), uint8IntField, func(p *JoinGame) *int32 { return &p.MaxPlayers }),
		scalar("max_players", protocol.Between(protocol.V1_16_2, protocol.V1_20_2), varIntField, func(p *JoinGame) *int32 { return &p.MaxPlayers }),
		scalar("level_type", protocol.Until(protocol.V1_16), stringMaxField(16), func(p *JoinGame) *string { return &p.Spawn.LevelType }),
		scalar("view_distance", protocol.Between(protocol.V1_14, protocol.V1_20_2), varIntField, func(p *JoinGame) *int32 { return &p.ViewDistance }),
		scalar("simulation_distance", protocol.Between(protocol.V1_18, protocol.V1_20_2), varIntField, func(p *JoinGame) *int32 { return &p.SimulationDistance }),
		scalar("reduced_debug_info", protocol.Between(protocol.V1_8, protocol.V1_20_2), boolField, func(p *JoinGame) *bool { return &p.ReducedDebugInfo }),
		scalar("enable_respawn_screen", protocol.Between(protocol.V1_15, protocol.V1_20_2), boolField, func(p *JoinGame) *bool { return &p.EnableRespawnScreen }),
		scalar("debug", protocol.Between(protocol.V1_16, protocol.V1_20_2), boolField, func(p *JoinGame) *bool { return &p.Spawn.Debug }),
		scalar("flat", protocol.Between(protocol.V1_16, protocol.V1_20_2), boolField, func(p *JoinGame) *bool { return &p.Spawn.Flat }),
		scalar("death", protocol.Between(protocol.V1_19, protocol.V1_20_2), optionalField(globalPosField), func(p *JoinGame) **GlobalPos { return &p.Spawn.Death }),
		scalar("portal_cooldown", protocol.Between(protocol.V1_20, protocol.V1_20_2), varIntField, func(p *JoinGame) *int32 { return &p.Spawn.PortalCooldown }),

		scalar("world_names", protocol.Since(protocol.V1_20_2), stringListField, func(p *JoinGame) *[]string { return &p.WorldNames }),
		scalar("max_players", protocol.Since(protocol.V1_20_2), varIntField, func(p *JoinGame) *int32 { return &p.MaxPlayers }),
		scalar("view_distance", protocol.Since(protocol.V1_20_2), varIntField, func(p *JoinGame) *int32 { return &p.ViewDistance }),
		scalar("simulation_distance", protocol.Since(protocol.V1_20_2), varIntField, func(p *JoinGame) *int32 { return &p.SimulationDistance }),
		scalar("reduced_debug_info", protocol.Since(protocol.V1_20_2), boolField, func(p *JoinGame) *bool { return &p.ReducedDebugInfo }),
		scalar("enable_respawn_screen", protocol.Since(protocol.V1_20_2), boolField, func(p *JoinGame) *bool { return &p.EnableRespawnScreen }),
		scalar("do_limited_crafting", protocol.Since(protocol.V1_20_2), boolField, func(p *JoinGame) *bool { return &p.DoLimitedCrafting }),
	},
	sinceModernSpawn(embed(spawnInfoLayout, joinSpawn)),
	Layout[JoinGame]{
		scalar("enforces_secure_chat", protocol.Since(protocol.V1_20_5), boolField, func(p *JoinGame) *bool { return &p.EnforcesSecureChat }),
	},
)

func respawnSpawn(p *Respawn) *SpawnInfo { return &p.Spawn }

var respawnLayout = slices.Concat(
	legacyDimensionSteps(respawnSpawn, int32Field, protocol.Until(protocol.V1_16)),
	Layout[Respawn]{
		scalar("world_name", protocol.Between(protocol.V1_16, protocol.V1_20_2), stringField, func(p *Respawn) *string { return &p.Spawn.WorldName }),
		scalar("difficulty", protocol.Until(protocol.V1_14), uint8Field, func(p *Respawn) *uint8 { return &p.Spawn.Difficulty }),
		scalar("hashed_seed", protocol.Between(protocol.V1_15, protocol.V1_20_2), int64Field, func(p *Respawn) *int64 { return &p.Spawn.HashedSeed }),
		scalar("game_mode", protocol.Until(protocol.V1_20_2), uint8Field, func(p *Respawn) *uint8 { return &p.Spawn.GameMode }),
		scalar("previous_game_mode", protocol.Between(protocol.V1_16, protocol.V1_20_2), int8Field, func(p *Respawn) *int8 { return &p.Spawn.PreviousGameMode }),
		scalar("level_type", protocol.Until(protocol.V1_16), stringMaxField(16), func(p *Respawn) *string { return &p.Spawn.LevelType }),
		scalar("debug", protocol.Between(protocol.V1_16, protocol.V1_20_2), boolField, func(p *Respawn) *bool { return &p.Spawn.Debug }),
		scalar("flat", protocol.Between(protocol.V1_16, protocol.V1_20_2), boolField, func(p *Respawn) *bool { return &p.Spawn.Flat }),
		scalar("data_kept", protocol.Between(protocol.V1_16, protocol.V1_20_2), uint8Field, func(p *Respawn) *uint8 { return &p.DataKept }),
		scalar("death", protocol.Between(protocol.V1_19, protocol.V1_20_2), optionalField(globalPosField), func(p *Respawn) **GlobalPos { return &p.Spawn.Death }),
		scalar("portal_cooldown", protocol.Between(protocol.V1_20, protocol.V1_20_2), varIntField, func(p *Respawn) *int32 { return &p.Spawn.PortalCooldown }),
	},
	sinceModernSpawn(embed(spawnInfoLayout, respawnSpawn)),
	Layout[Respawn]{
		scalar("data_kept", protocol.Since(protocol.V1_20_2), uint8Field, func(p *Respawn) *uint8 { return &p.DataKept }),
	},
)

// sinceModernSpawn clips embedded spawn steps to 1.20.2 and later.
func sinceModernSpawn[T any](l Layout[T]) Layout[T] {
	out := make(Layout[T], len(l))
	for i, s := range l {
		if s.Range.Since < protocol.V1_20_2 {
			s.Range.Since = protocol.V1_20_2
		}
		out[i] = s
	}
	return out
}
