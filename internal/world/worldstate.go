package world

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Position struct {
	X, Y, Z    float64
	Yaw, Pitch float32
}

// Distance is the euclidean distance between two points, ignoring rotation.
func (p Position) Distance(x, y, z float64) float64 {
	dx, dy, dz := x-p.X, y-p.Y, z-p.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

type GameTime struct {
	WorldTime int64
	Age       int64
}

// Clock renders the time of day as hh:mm, with tick 0 at 06:00. A negative
// world time means the daylight cycle is frozen at its absolute value.
func (g GameTime) Clock() string {
	t := g.WorldTime % 24000
	if t < 0 {
		t = -t
	}
	return fmt.Sprintf("%02d:%02d", (t/1000+6)%24, t%1000*60/1000)
}

type Entity struct {
	EntityID   int32
	UUID       uuid.UUID
	Type       int32
	TypeName   string
	X, Y, Z    float64
	Yaw, Pitch float32
	// Metadata holds the latest value per metadata index.
	Metadata map[uint8]any
}

func (e Entity) label() string {
	if e.TypeName != "" {
		return e.TypeName
	}
	return fmt.Sprintf("type#%d", e.Type)
}

// Snapshot is a copy of the tracked state; entities are ordered by id.
type Snapshot struct {
	Position      Position
	GameTime      GameTime
	DimensionName string
	EntityID      int32
	Entities      []Entity
}

func (s Snapshot) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "time=%s dim=%s pos=(%.2f, %.2f, %.2f) rot=(%.1f, %.1f) entities=%d",
		s.GameTime.Clock(), s.DimensionName,
		s.Position.X, s.Position.Y, s.Position.Z, s.Position.Yaw, s.Position.Pitch,
		len(s.Entities))
	for _, e := range s.Entities {
		fmt.Fprintf(&sb, " [#%d %s (%.1f, %.1f, %.1f) d=%.1f]",
			e.EntityID, e.label(), e.X, e.Y, e.Z, s.Position.Distance(e.X, e.Y, e.Z))
	}
	return sb.String()
}

// tracked is an entity slot. Metadata for an id that has not spawned yet is
// parked in a slot with spawned unset.
type tracked struct {
	Entity
	spawned bool
}

// WorldState tracks the player and the entities around it, fed by play
// packets. The zero value is ready to use and safe for concurrent use.
type WorldState struct {
	mu        sync.RWMutex
	self      int32
	dimension string
	position  Position
	time      GameTime
	entities  map[int32]*tracked
}

func (ws *WorldState) GetState() Snapshot {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	s := Snapshot{
		Position:      ws.position,
		GameTime:      ws.time,
		DimensionName: ws.dimension,
		EntityID:      ws.self,
		Entities:      make([]Entity, 0, len(ws.entities)),
	}
	for _, t := range ws.entities {
		if !t.spawned {
			continue
		}
		e := t.Entity
		e.Metadata = maps.Clone(t.Metadata)
		s.Entities = append(s.Entities, e)
	}
	slices.SortFunc(s.Entities, func(a, b Entity) int { return cmp.Compare(a.EntityID, b.EntityID) })
	return s
}

// Join resets the state for a new play session or a respawn into another
// dimension.
func (ws *WorldState) Join(entityID int32, dimensionName string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.self = entityID
	ws.dimension = dimensionName
	ws.entities = nil
}

func (ws *WorldState) UpdatePosition(pos Position) {
	ws.mu.Lock()
	ws.position = pos
	ws.mu.Unlock()
}

func (ws *WorldState) UpdateGameTime(t GameTime) {
	ws.mu.Lock()
	ws.time = t
	ws.mu.Unlock()
}

// slot returns the entry for id, creating an unspawned one. Callers hold mu.
func (ws *WorldState) slot(id int32) *tracked {
	if ws.entities == nil {
		ws.entities = make(map[int32]*tracked)
	}
	t, ok := ws.entities[id]
	if !ok {
		t = &tracked{Entity: Entity{EntityID: id}}
		ws.entities[id] = t
	}
	return t
}

func (ws *WorldState) AddEntity(e Entity) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	t := ws.slot(e.EntityID)
	var parked map[uint8]any
	if !t.spawned {
		parked = t.Metadata
	}
	t.Entity, t.spawned = e, true
	t.Metadata = maps.Clone(e.Metadata)
	if len(parked) > 0 {
		if t.Metadata == nil {
			t.Metadata = make(map[uint8]any, len(parked))
		}
		for k, v := range parked {
			if _, set := t.Metadata[k]; !set {
				t.Metadata[k] = v
			}
		}
	}
}

func (ws *WorldState) RemoveEntities(ids []int32) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, id := range ids {
		delete(ws.entities, id)
	}
}

// UpdateEntityPosition moves a spawned entity; unknown ids are ignored.
func (ws *WorldState) UpdateEntityPosition(entityID int32, x, y, z float64) {
	ws.moveEntity(entityID, func(e *Entity) { e.X, e.Y, e.Z = x, y, z })
}

func (ws *WorldState) UpdateEntityPositionRelative(entityID int32, dx, dy, dz float64) {
	ws.moveEntity(entityID, func(e *Entity) { e.X += dx; e.Y += dy; e.Z += dz })
}

func (ws *WorldState) moveEntity(id int32, f func(*Entity)) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if t, ok := ws.entities[id]; ok && t.spawned {
		f(&t.Entity)
	}
}

// UpdateEntityMetadata merges values into an entity, parking them when the
// spawn packet has not arrived yet.
func (ws *WorldState) UpdateEntityMetadata(entityID int32, values map[uint8]any) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	t := ws.slot(entityID)
	if t.Metadata == nil {
		t.Metadata = make(map[uint8]any, len(values))
	}
	maps.Copy(t.Metadata, values)
}
