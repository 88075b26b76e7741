package world

import (
	"github.com/Versifine/mcwire/internal/protocol"
)

const (
	legacyGrass     = 2
	legacySnowLayer = 78
	legacySnowBlock = 80
)

// StateFinder is implemented by resolvers that can look a block state up by
// name and properties. The legacy tweak uses it to pick states that the old
// id/meta encoding could not express.
type StateFinder interface {
	FindState(name string, properties map[string]string) (int32, bool)
}

// tweakLegacySections rewrites pre-flattening id<<4|meta values into state
// ids. Grass under snow becomes the snowy grass state, which older servers
// left for the client to derive.
func tweakLegacySections(sections []*Section, r protocol.Resolver) error {
	var snowyGrass int32 = -1
	if finder, ok := r.(StateFinder); ok {
		if id, ok := finder.FindState("minecraft:grass_block", map[string]string{"snowy": "true"}); ok {
			snowyGrass = id
		}
	}

	cache := make(map[int32]int32)
	for idx, s := range sections {
		if s == nil {
			continue
		}
		var above *Section
		if idx+1 < len(sections) {
			above = sections[idx+1]
		}
		raw := s.Blocks
		out := make([]int32, len(raw))
		for i, idMeta := range raw {
			if snowyGrass >= 0 && idMeta>>4 == legacyGrass && snowAbove(raw, above, i) {
				out[i] = snowyGrass
				continue
			}
			state, ok := cache[idMeta]
			if !ok {
				var err error
				if state, err = r.ResolveLegacyBlock(idMeta); err != nil {
					return err
				}
				cache[idMeta] = state
			}
			out[i] = state
		}
		s.Blocks = out
	}
	return nil
}

// snowAbove reports whether the block above index i (still in raw legacy
// form) is snow. above is the next section up, used for the top layer.
func snowAbove(raw []int32, above *Section, i int) bool {
	var idMeta int32
	if y := i >> 8; y < 15 {
		idMeta = raw[i+256]
	} else if above != nil {
		idMeta = above.Blocks[i&0xFF]
	} else {
		return false
	}
	id := idMeta >> 4
	return id == legacySnowLayer || id == legacySnowBlock
}
