package world

import (
	"testing"

	"github.com/Versifine/mcwire/internal/protocol"
)

func overworld() Dimension {
	d, _ := VanillaDimension(DimensionOverworld, protocol.Latest)
	return d
}

func makeFilledSections(count int, fill int32) []*Section {
	sections := make([]*Section, count)
	for i := range sections {
		states := make([]int32, BlocksPerSection)
		for j := range states {
			states[j] = fill
		}
		sections[i] = &Section{BlockCount: -1, Blocks: states}
	}
	return sections
}

func TestStoreStoreGetAndUnloadColumn(t *testing.T) {
	s := NewStore(overworld())
	sections := makeFilledSections(24, 0)

	// Global (2,70,3) belongs to chunk (0,0), section index 8, localY 6.
	sections[8].SetBlock(2, 6, 3, 1)

	if err := s.StoreColumn(&Column{Pos: ChunkPos{0, 0}, Full: true, Sections: sections}); err != nil {
		t.Fatalf("StoreColumn failed: %v", err)
	}
	if !s.IsLoaded(0, 0) {
		t.Fatalf("chunk (0,0) should be loaded")
	}
	if s.LoadedChunkCount() != 1 {
		t.Fatalf("LoadedChunkCount = %d, want 1", s.LoadedChunkCount())
	}

	state, ok := s.BlockState(2, 70, 3)
	if !ok || state != 1 {
		t.Fatalf("BlockState = (%d,%v), want (1,true)", state, ok)
	}

	// 存储的是副本, 调用方修改不影响
	sections[8].SetBlock(2, 6, 3, 5)
	if state, _ := s.BlockState(2, 70, 3); state != 1 {
		t.Fatalf("Store 应持有副本, 实际读到 %d", state)
	}

	s.UnloadColumn(ChunkPos{0, 0})
	if s.IsLoaded(0, 0) {
		t.Fatalf("chunk (0,0) should be unloaded")
	}
	if _, ok := s.BlockState(2, 70, 3); ok {
		t.Fatalf("BlockState should return false after unload")
	}
}

func TestStoreNegativeCoordinates(t *testing.T) {
	s := NewStore(overworld())
	sections := makeFilledSections(24, 0)
	// Global (-1,-64,-1) belongs to chunk (-1,-1), local (15,0,15).
	sections[0].SetBlock(15, 0, 15, 7)
	if err := s.StoreColumn(&Column{Pos: ChunkPos{-1, -1}, Full: true, Sections: sections}); err != nil {
		t.Fatalf("StoreColumn failed: %v", err)
	}

	state, ok := s.BlockState(-1, -64, -1)
	if !ok || state != 7 {
		t.Fatalf("BlockState(-1,-64,-1) = (%d,%v), want (7,true)", state, ok)
	}
	if _, ok := s.BlockState(-1, -65, -1); ok {
		t.Fatalf("below the dimension should be out of range")
	}
	if _, ok := s.BlockState(-1, 320, -1); ok {
		t.Fatalf("above the dimension should be out of range")
	}
}

func TestStorePartialColumn(t *testing.T) {
	s := NewStore(overworld())
	partial := &Column{Pos: ChunkPos{3, 3}, Sections: make([]*Section, 24)}
	if err := s.StoreColumn(partial); err == nil {
		t.Fatalf("未加载区块的局部更新应失败")
	}

	if err := s.StoreColumn(&Column{Pos: ChunkPos{3, 3}, Full: true, Sections: makeFilledSections(24, 1)}); err != nil {
		t.Fatalf("StoreColumn failed: %v", err)
	}
	partial.Sections[4] = makeFilledSections(1, 9)[0]
	if err := s.StoreColumn(partial); err != nil {
		t.Fatalf("partial StoreColumn failed: %v", err)
	}
	if got, _ := s.BlockState(48, -64+4*16, 48); got != 9 {
		t.Errorf("更新的 section 应为 9, 实际 %d", got)
	}
	if got, _ := s.BlockState(48, -64, 48); got != 1 {
		t.Errorf("未更新的 section 应保持 1, 实际 %d", got)
	}
}

func TestSetBlockState(t *testing.T) {
	s := NewStore(overworld())
	if ok := s.SetBlockState(2, 70, 3, 1); ok {
		t.Fatalf("SetBlockState should return false for unloaded chunk")
	}

	sections := make([]*Section, 24) // nothing sent: all air
	if err := s.StoreColumn(&Column{Pos: ChunkPos{0, 0}, Full: true, Sections: sections}); err != nil {
		t.Fatalf("StoreColumn failed: %v", err)
	}
	if got, ok := s.BlockState(2, 70, 3); !ok || got != 0 {
		t.Fatalf("未发送的 section 应视为空气, got (%d,%v)", got, ok)
	}
	if ok := s.SetBlockState(2, 70, 3, 1); !ok {
		t.Fatalf("SetBlockState should return true for loaded block")
	}
	if got, _ := s.BlockState(2, 70, 3); got != 1 {
		t.Fatalf("BlockState = %d, want 1", got)
	}
}

func TestStoreLightBeforeColumn(t *testing.T) {
	s := NewStore(overworld())
	pos := ChunkPos{1, 2}
	arr := make([]byte, NibbleArrayLength)
	arr[0] = 0xFF
	s.ApplyLight(pos, &LightData{SkyMask: protocol.BitSet{1 << 3}, Sky: [][]byte{arr}})

	l, ok := s.Light(pos)
	if !ok || l.Sky[3][0] != 0xFF {
		t.Fatalf("光照更新应在区块到达前保留")
	}

	// the column arriving later keeps what was delivered first
	if err := s.StoreColumn(&Column{Pos: pos, Full: true, Sections: make([]*Section, 24)}); err != nil {
		t.Fatalf("StoreColumn failed: %v", err)
	}
	l, ok = s.Light(pos)
	if !ok || l.Sky[3] == nil || l.Sky[3][0] != 0xFF {
		t.Fatalf("完整区块不应丢弃先到的光照: %v", l.Sky)
	}

	// column light merges over the early update section by section
	blockArr := make([]byte, NibbleArrayLength)
	blockArr[1] = 0x22
	err := s.StoreColumn(&Column{Pos: pos, Full: true, Sections: make([]*Section, 24),
		Light: &LightData{BlockMask: protocol.BitSet{1 << 5}, Block: [][]byte{blockArr}}})
	if err != nil {
		t.Fatalf("StoreColumn failed: %v", err)
	}
	l, _ = s.Light(pos)
	if l.Sky[3][0] != 0xFF || l.Block[5][1] != 0x22 {
		t.Fatalf("光照应合并: sky=%v block=%v", l.Sky[3][:1], l.Block[5][:2])
	}
}

func TestSetDimensionClears(t *testing.T) {
	s := NewStore(overworld())
	_ = s.StoreColumn(&Column{Pos: ChunkPos{0, 0}, Full: true, Sections: makeFilledSections(24, 0)})
	nether, _ := VanillaDimension(DimensionNether, protocol.Latest)
	s.SetDimension(nether)
	if s.LoadedChunkCount() != 0 {
		t.Fatalf("LoadedChunkCount after SetDimension = %d, want 0", s.LoadedChunkCount())
	}
	if s.Dimension().Name != DimensionNether {
		t.Fatalf("Dimension = %q", s.Dimension().Name)
	}
}
