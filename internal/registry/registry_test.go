package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/Versifine/mcwire/internal/protocol"
	"github.com/Versifine/mcwire/internal/world"
)

var _ world.StateFinder = (*Registry)(nil)

const testBlocks = `[
  {"id":0,"name":"air","displayName":"Air","minStateId":0,"maxStateId":0,"defaultState":0,"states":[]},
  {"id":1,"name":"stone","displayName":"Stone","minStateId":1,"maxStateId":1,"defaultState":1,"states":[]},
  {"id":8,"name":"grass_block","displayName":"Grass Block","minStateId":2,"maxStateId":3,"defaultState":3,
   "states":[{"name":"snowy","type":"bool","num_values":2}]},
  {"id":160,"name":"furnace","displayName":"Furnace","minStateId":4,"maxStateId":11,"defaultState":5,
   "states":[
     {"name":"facing","type":"enum","num_values":4,"values":["north","south","west","east"]},
     {"name":"lit","type":"bool","num_values":2}
   ]}
]`

const testLegacy = `{"blocks":{
  "0:0":"minecraft:air",
  "1:0":"minecraft:stone",
  "2:0":"minecraft:grass_block[snowy=false]",
  "61:2":"minecraft:furnace[facing=north,lit=false]",
  "61:3":"minecraft:furnace[facing=south,lit=false]",
  "99:0":"minecraft:brown_mushroom_block[east=true]"
}}`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"blocks.json":   {Data: []byte(testBlocks)},
		"items.json":    {Data: []byte(`[{"id":0,"name":"air"},{"id":1,"name":"stone"}]`)},
		"entities.json": {Data: []byte(`[{"id":57,"name":"item"}]`)},
		"biomes.json":   {Data: []byte(`[{"id":0,"name":"plains"}]`)},
		"legacy.json":   {Data: []byte(testLegacy)},
	}
}

func mustLoad(t *testing.T, fsys fstest.MapFS) *Registry {
	t.Helper()
	r, err := LoadFS(fsys)
	if err != nil {
		t.Fatalf("LoadFS failed: %v", err)
	}
	return r
}

func TestResolveBlockProperties(t *testing.T) {
	r := mustLoad(t, testFS())
	tests := []struct {
		id    int32
		name  string
		props map[string]string
	}{
		{0, "minecraft:air", nil},
		{2, "minecraft:grass_block", map[string]string{"snowy": "true"}},
		{3, "minecraft:grass_block", map[string]string{"snowy": "false"}},
		{4, "minecraft:furnace", map[string]string{"facing": "north", "lit": "true"}},
		{7, "minecraft:furnace", map[string]string{"facing": "south", "lit": "false"}},
		{11, "minecraft:furnace", map[string]string{"facing": "east", "lit": "false"}},
	}
	for _, tt := range tests {
		state, err := r.ResolveBlock(tt.id)
		if err != nil {
			t.Fatalf("ResolveBlock(%d) failed: %v", tt.id, err)
		}
		if state.Name != tt.name {
			t.Errorf("state %d name = %q, want %q", tt.id, state.Name, tt.name)
		}
		for k, v := range tt.props {
			if state.Properties[k] != v {
				t.Errorf("state %d %s = %q, want %q", tt.id, k, state.Properties[k], v)
			}
		}
	}
	if r.BlockCount() != 12 {
		t.Errorf("BlockCount() = %d, want 12", r.BlockCount())
	}
}

func TestResolveUnknownIDs(t *testing.T) {
	r := mustLoad(t, testFS())
	var unknown *protocol.UnknownIDError

	if _, err := r.ResolveBlock(12); !errors.As(err, &unknown) || unknown.Registry != "block" {
		t.Errorf("ResolveBlock(12) err = %v", err)
	}
	if _, err := r.ResolveItem(2); !errors.As(err, &unknown) || unknown.Registry != "item" {
		t.Errorf("ResolveItem(2) err = %v", err)
	}
	if _, err := r.ResolveEntityType(-1); err == nil {
		t.Error("negative entity type should fail")
	}
	if b, err := r.ResolveBiome(0); err != nil || b.Name != "minecraft:plains" {
		t.Errorf("ResolveBiome(0) = %+v, %v", b, err)
	}
}

func TestMissingOptionalFilesPassThrough(t *testing.T) {
	fsys := testFS()
	delete(fsys, "items.json")
	delete(fsys, "legacy.json")
	r := mustLoad(t, fsys)

	item, err := r.ResolveItem(9999)
	if err != nil || item.ID != 9999 || item.Name != "" {
		t.Errorf("ResolveItem(9999) = %+v, %v", item, err)
	}
	if _, err := r.ResolveLegacyBlock(1 << 4); err == nil {
		t.Error("legacy lookup without legacy.json should fail")
	}
}

func TestBlocksJSONRequired(t *testing.T) {
	fsys := testFS()
	delete(fsys, "blocks.json")
	if _, err := LoadFS(fsys); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestRejectsInconsistentBlocks(t *testing.T) {
	tests := map[string]string{
		"empty":      `[]`,
		"bad range":  `[{"name":"stone","minStateId":3,"maxStateId":1}]`,
		"bad combos": `[{"name":"grass_block","minStateId":0,"maxStateId":2,"states":[{"name":"snowy","type":"bool"}]}]`,
		"not json":   `{`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFS(fstest.MapFS{"blocks.json": {Data: []byte(data)}}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFindState(t *testing.T) {
	r := mustLoad(t, testFS())
	tests := []struct {
		name  string
		props map[string]string
		want  int32
		ok    bool
	}{
		{"minecraft:grass_block", map[string]string{"snowy": "true"}, 2, true},
		{"grass_block", nil, 3, true},
		{"minecraft:furnace", map[string]string{"facing": "west"}, 9, true},
		{"minecraft:furnace", map[string]string{"facing": "up"}, 0, false},
		{"minecraft:furnace", map[string]string{"color": "red"}, 0, false},
		{"minecraft:stone", nil, 1, true},
		{"minecraft:dirt", nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := r.FindState(tt.name, tt.props)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("FindState(%s, %v) = %d, %v, want %d, %v", tt.name, tt.props, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolveLegacyBlock(t *testing.T) {
	r := mustLoad(t, testFS())
	tests := []struct {
		id, meta int32
		want     int32
	}{
		{1, 0, 1},
		{2, 0, 3},
		{61, 2, 5},
		{61, 3, 7},
		{1, 3, 1}, // unknown meta falls back to meta 0
	}
	for _, tt := range tests {
		got, err := r.ResolveLegacyBlock(tt.id<<4 | tt.meta)
		if err != nil {
			t.Fatalf("ResolveLegacyBlock(%d:%d) failed: %v", tt.id, tt.meta, err)
		}
		if got != tt.want {
			t.Errorf("ResolveLegacyBlock(%d:%d) = %d, want %d", tt.id, tt.meta, got, tt.want)
		}
	}
	// 99:0 names a block missing from blocks.json and is dropped
	if _, err := r.ResolveLegacyBlock(99 << 4); err == nil {
		t.Error("99:0 should be unknown")
	}
	if _, err := r.ResolveLegacyBlock(61<<4 | 5); err == nil {
		t.Error("61:5 has no meta 0 fallback and should be unknown")
	}
}

func TestBadLegacyKey(t *testing.T) {
	fsys := testFS()
	fsys["legacy.json"] = &fstest.MapFile{Data: []byte(`{"blocks":{"stone":"minecraft:stone"}}`)}
	if _, err := LoadFS(fsys); err == nil {
		t.Fatal("expected error for malformed legacy key")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blocks.json"), []byte(testBlocks), 0o644); err != nil {
		t.Fatalf("write blocks.json failed: %v", err)
	}
	r, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := r.ResolveBlock(11); err != nil {
		t.Errorf("ResolveBlock(11) failed: %v", err)
	}
}
