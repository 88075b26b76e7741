// Package registry resolves wire ids against minecraft-data style JSON dumps
// (blocks.json, items.json, entities.json, biomes.json and legacy.json).
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Versifine/mcwire/internal/protocol"
)

const namespace = "minecraft:"

type blockDefinition struct {
	ID           int32           `json:"id"`
	Name         string          `json:"name"`
	DisplayName  string          `json:"displayName"`
	MinStateID   int32           `json:"minStateId"`
	MaxStateID   int32           `json:"maxStateId"`
	DefaultState int32           `json:"defaultState"`
	States       []stateProperty `json:"states"`
}

type stateProperty struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	NumValues int      `json:"num_values"`
	Values    []string `json:"values"`
}

func (p stateProperty) values() []string {
	if p.Type == "bool" && len(p.Values) == 0 {
		return []string{"true", "false"}
	}
	return p.Values
}

type namedEntry struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

type legacyFile struct {
	Blocks map[string]string `json:"blocks"`
}

// Registry is an immutable id table. A registry whose file was absent
// accepts every non-negative id and returns entries without names.
type Registry struct {
	states   []protocol.BlockState
	blocks   map[string]*blockDefinition
	items    map[int32]string
	entities map[int32]string
	biomes   map[int32]string
	legacy   map[int32]int32
}

// Load reads the registry files from dir. Only blocks.json is required.
func Load(dir string) (*Registry, error) {
	return LoadFS(os.DirFS(dir))
}

func LoadFS(fsys fs.FS) (*Registry, error) {
	var (
		blocks                  []blockDefinition
		items, entities, biomes []namedEntry
		legacy                  legacyFile
		haveItems, haveEntities bool
		haveBiomes, haveLegacy  bool
	)

	var g errgroup.Group
	g.Go(func() error {
		ok, err := readJSON(fsys, "blocks.json", &blocks)
		if err == nil && !ok {
			err = fmt.Errorf("blocks.json: %w", fs.ErrNotExist)
		}
		return err
	})
	g.Go(func() (err error) { haveItems, err = readJSON(fsys, "items.json", &items); return })
	g.Go(func() (err error) { haveEntities, err = readJSON(fsys, "entities.json", &entities); return })
	g.Go(func() (err error) { haveBiomes, err = readJSON(fsys, "biomes.json", &biomes); return })
	g.Go(func() (err error) { haveLegacy, err = readJSON(fsys, "legacy.json", &legacy); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Registry{}
	if err := r.indexBlocks(blocks); err != nil {
		return nil, err
	}
	if haveItems {
		r.items = index(items)
	}
	if haveEntities {
		r.entities = index(entities)
	}
	if haveBiomes {
		r.biomes = index(biomes)
	}
	if haveLegacy {
		if err := r.indexLegacy(legacy.Blocks); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func readJSON(fsys fs.FS, name string, v any) (bool, error) {
	data, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

func index(entries []namedEntry) map[int32]string {
	m := make(map[int32]string, len(entries))
	for _, e := range entries {
		m[e.ID] = qualify(e.Name)
	}
	return m
}

func qualify(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return namespace + name
}

func (r *Registry) indexBlocks(blocks []blockDefinition) error {
	if len(blocks) == 0 {
		return fmt.Errorf("blocks.json has no block definitions")
	}
	maxStateID := int32(-1)
	for _, block := range blocks {
		if block.MinStateID < 0 || block.MaxStateID < block.MinStateID {
			return fmt.Errorf("invalid state id range for %s: min=%d max=%d",
				block.Name, block.MinStateID, block.MaxStateID)
		}
		combos := 1
		for _, p := range block.States {
			if len(p.values()) == 0 {
				return fmt.Errorf("block %s: property %s has no values", block.Name, p.Name)
			}
			combos *= len(p.values())
		}
		if int(block.MaxStateID-block.MinStateID)+1 != combos {
			return fmt.Errorf("block %s: %d states for %d property combinations",
				block.Name, block.MaxStateID-block.MinStateID+1, combos)
		}
		maxStateID = max(maxStateID, block.MaxStateID)
	}

	r.states = make([]protocol.BlockState, maxStateID+1)
	r.blocks = make(map[string]*blockDefinition, len(blocks))
	for i := range blocks {
		block := &blocks[i]
		name := qualify(block.Name)
		r.blocks[name] = block
		for id := block.MinStateID; id <= block.MaxStateID; id++ {
			r.states[id] = protocol.BlockState{ID: id, Name: name, Properties: block.properties(id)}
		}
	}
	return nil
}

// properties decodes a state id. The last property varies fastest.
func (b *blockDefinition) properties(id int32) map[string]string {
	if len(b.States) == 0 {
		return nil
	}
	out := make(map[string]string, len(b.States))
	offset := int(id - b.MinStateID)
	for i := len(b.States) - 1; i >= 0; i-- {
		values := b.States[i].values()
		out[b.States[i].Name] = values[offset%len(values)]
		offset /= len(values)
	}
	return out
}

func (b *blockDefinition) stateID(props map[string]string) (int32, bool) {
	def := b.DefaultState
	if def < b.MinStateID || def > b.MaxStateID {
		def = b.MinStateID
	}
	base := b.properties(def)
	offset := 0
	for _, p := range b.States {
		values := p.values()
		want, ok := props[p.Name]
		if !ok {
			want = base[p.Name]
		}
		idx := -1
		for i, v := range values {
			if v == want {
				idx = i
				break
			}
		}
		if idx < 0 {
			return 0, false
		}
		offset = offset*len(values) + idx
	}
	for name := range props {
		if _, ok := base[name]; !ok {
			return 0, false
		}
	}
	return b.MinStateID + int32(offset), true
}

// FindState looks a state up by block name and properties. Properties that
// are not given take the value of the block's default state.
func (r *Registry) FindState(name string, properties map[string]string) (int32, bool) {
	block, ok := r.blocks[qualify(name)]
	if !ok {
		return 0, false
	}
	return block.stateID(properties)
}

func (r *Registry) indexLegacy(entries map[string]string) error {
	r.legacy = make(map[int32]int32, len(entries))
	for key, value := range entries {
		idMeta, err := parseLegacyKey(key)
		if err != nil {
			return fmt.Errorf("legacy.json: %w", err)
		}
		name, props := parseStateString(value)
		state, ok := r.FindState(name, props)
		if !ok {
			// blocks.json of a newer release may lack removed states
			continue
		}
		r.legacy[idMeta] = state
	}
	return nil
}

func parseLegacyKey(key string) (int32, error) {
	idText, metaText, ok := strings.Cut(key, ":")
	if !ok {
		return 0, fmt.Errorf("bad legacy key %q", key)
	}
	id, err := strconv.ParseUint(idText, 10, 12)
	if err != nil {
		return 0, fmt.Errorf("bad legacy key %q: %w", key, err)
	}
	meta, err := strconv.ParseUint(metaText, 10, 4)
	if err != nil {
		return 0, fmt.Errorf("bad legacy key %q: %w", key, err)
	}
	return int32(id<<4 | meta), nil
}

// parseStateString splits "minecraft:name[k=v,k=v]".
func parseStateString(s string) (string, map[string]string) {
	name, rest, ok := strings.Cut(s, "[")
	if !ok {
		return s, nil
	}
	props := make(map[string]string)
	for _, pair := range strings.Split(strings.TrimSuffix(rest, "]"), ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			props[k] = v
		}
	}
	return name, props
}

func (r *Registry) ResolveBlock(id int32) (protocol.BlockState, error) {
	if id < 0 || int(id) >= len(r.states) || r.states[id].Name == "" {
		return protocol.BlockState{}, &protocol.UnknownIDError{Registry: "block", ID: id}
	}
	return r.states[id], nil
}

func (r *Registry) ResolveItem(id int32) (protocol.Item, error) {
	name, err := lookup(r.items, "item", id)
	return protocol.Item{ID: id, Name: name}, err
}

func (r *Registry) ResolveEntityType(id int32) (protocol.EntityType, error) {
	name, err := lookup(r.entities, "entity_type", id)
	return protocol.EntityType{ID: id, Name: name}, err
}

func (r *Registry) ResolveBiome(id int32) (protocol.Biome, error) {
	name, err := lookup(r.biomes, "biome", id)
	return protocol.Biome{ID: id, Name: name}, err
}

func lookup(m map[int32]string, registry string, id int32) (string, error) {
	if id < 0 {
		return "", &protocol.UnknownIDError{Registry: registry, ID: id}
	}
	if m == nil {
		return "", nil
	}
	name, ok := m[id]
	if !ok {
		return "", &protocol.UnknownIDError{Registry: registry, ID: id}
	}
	return name, nil
}

// ResolveLegacyBlock maps id<<4|meta to a state. Metadata the table does not
// list falls back to meta 0 of the same id.
func (r *Registry) ResolveLegacyBlock(idMeta int32) (int32, error) {
	if idMeta < 0 || r.legacy == nil {
		return 0, &protocol.UnknownIDError{Registry: "legacy_block", ID: idMeta}
	}
	if state, ok := r.legacy[idMeta]; ok {
		return state, nil
	}
	if state, ok := r.legacy[idMeta&^0xF]; ok {
		return state, nil
	}
	return 0, &protocol.UnknownIDError{Registry: "legacy_block", ID: idMeta}
}

// BlockCount is the number of block states known.
func (r *Registry) BlockCount() int {
	return len(r.states)
}
