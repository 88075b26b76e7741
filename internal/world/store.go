package world

import (
	"fmt"
	"sync"
)

// Store keeps the decoded columns of the current dimension. All methods are
// safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	dim     Dimension
	columns map[ChunkPos]*Column
	light   map[ChunkPos]ColumnLight
}

func NewStore(dim Dimension) *Store {
	return &Store{
		dim:     dim,
		columns: make(map[ChunkPos]*Column),
		light:   make(map[ChunkPos]ColumnLight),
	}
}

func (s *Store) Dimension() Dimension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// SetDimension switches to another dimension and drops every column.
func (s *Store) SetDimension(dim Dimension) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dim = dim
	s.columns = make(map[ChunkPos]*Column)
	s.light = make(map[ChunkPos]ColumnLight)
}

// StoreColumn stores a decoded column. A full column replaces what was
// there; a partial one only overwrites the sections it carries and needs the
// column to be loaded already.
func (s *Store) StoreColumn(col *Column) error {
	if col == nil {
		return fmt.Errorf("nil column")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, loaded := s.columns[col.Pos]
	if !col.Full && !loaded {
		return fmt.Errorf("partial update for unloaded chunk %d,%d", col.Pos.X, col.Pos.Z)
	}

	var stored *Column
	if col.Full || !loaded {
		stored = &Column{
			Pos:        col.Pos,
			Full:       true,
			Sections:   make([]*Section, len(col.Sections)),
			Biomes:     append([]int32(nil), col.Biomes...),
			Heightmaps: col.Heightmaps,
		}
	} else {
		stored = existing
		if len(stored.Sections) < len(col.Sections) {
			grown := make([]*Section, len(col.Sections))
			copy(grown, stored.Sections)
			stored.Sections = grown
		}
		if col.Heightmaps != nil {
			stored.Heightmaps = col.Heightmaps
		}
	}
	for i, sec := range col.Sections {
		if sec != nil {
			stored.Sections[i] = sec.clone()
		}
	}
	stored.BlockEntities = append(stored.BlockEntities[:0:0], col.BlockEntities...)
	s.columns[col.Pos] = stored

	// light updates can precede their column, so a full column merges too
	light := s.light[col.Pos]
	if legacy := LegacyColumnLight(col.Sections); len(legacy.Sky)+len(legacy.Block) > 0 {
		merged := light.clone()
		for k, v := range legacy.Sky {
			merged.Sky[k] = v
		}
		for k, v := range legacy.Block {
			merged.Block[k] = v
		}
		light = merged
	}
	if col.Light != nil {
		light = MergeLight(light, col.Light)
	}
	s.light[col.Pos] = light
	return nil
}

func (s *Store) UnloadColumn(pos ChunkPos) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.columns, pos)
	delete(s.light, pos)
}

// ApplyLight merges a light update. Updates may arrive before their column.
func (s *Store) ApplyLight(pos ChunkPos, update *LightData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.light[pos] = MergeLight(s.light[pos], update)
}

func (s *Store) Light(pos ChunkPos) (ColumnLight, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.light[pos]
	if !ok {
		return ColumnLight{}, false
	}
	return l.clone(), true
}

func (s *Store) IsLoaded(chunkX, chunkZ int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.columns[ChunkPos{X: chunkX, Z: chunkZ}]
	return ok
}

func (s *Store) LoadedChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.columns)
}

// BlockEntities returns a copy of the block entities of a loaded column.
func (s *Store) BlockEntities(pos ChunkPos) []BlockEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.columns[pos]
	if !ok {
		return nil
	}
	return append([]BlockEntity(nil), col.BlockEntities...)
}

func (s *Store) locate(x, y, z int) (ChunkPos, int, int) {
	pos := ChunkPos{X: int32(floorDiv16(x)), Z: int32(floorDiv16(z))}
	sectionIndex := floorDiv16(y) - s.dim.MinSection()
	return pos, sectionIndex, blockIndex(floorMod16(x), floorMod16(y), floorMod16(z))
}

func (s *Store) BlockState(x, y, z int) (int32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, sectionIndex, idx := s.locate(x, y, z)
	col, ok := s.columns[pos]
	if !ok {
		return 0, false
	}
	if sectionIndex < 0 || sectionIndex >= len(col.Sections) {
		return 0, false
	}
	sec := col.Sections[sectionIndex]
	if sec == nil {
		// an unsent section is all air
		return 0, true
	}
	return sec.Blocks[idx], true
}

// SetBlockState applies a block change to a loaded column.
func (s *Store) SetBlockState(x, y, z int, state int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, sectionIndex, idx := s.locate(x, y, z)
	col, ok := s.columns[pos]
	if !ok {
		return false
	}
	if sectionIndex < 0 || sectionIndex >= len(col.Sections) {
		return false
	}
	sec := col.Sections[sectionIndex]
	if sec == nil {
		sec = &Section{BlockCount: -1, Blocks: make([]int32, BlocksPerSection)}
		col.Sections[sectionIndex] = sec
	}
	sec.Blocks[idx] = state
	return true
}

func floorDiv16(v int) int {
	q := v / 16
	if v < 0 && v%16 != 0 {
		q--
	}
	return q
}

func floorMod16(v int) int {
	m := v % 16
	if m < 0 {
		m += 16
	}
	return m
}
