package world

import (
	"github.com/Versifine/mcwire/internal/protocol"
)

const (
	DimensionOverworld = "minecraft:overworld"
	DimensionNether    = "minecraft:the_nether"
	DimensionEnd       = "minecraft:the_end"
)

// Dimension carries what chunk decoding needs to know about the world a
// column belongs to.
type Dimension struct {
	Name        string
	MinY        int
	Height      int
	HasSkyLight bool
}

func (d Dimension) MinSection() int {
	return floorDiv16(d.MinY)
}

func (d Dimension) SectionCount() int {
	if d.Height <= 0 {
		return 16
	}
	return (d.Height + ChunkSectionHeight - 1) / ChunkSectionHeight
}

// LightSectionCount includes the extra light section below and above the
// block sections.
func (d Dimension) LightSectionCount() int {
	return d.SectionCount() + 2
}

// VanillaDimension returns the bounds of a built-in dimension as of version v.
func VanillaDimension(name string, v protocol.Version) (Dimension, bool) {
	switch name {
	case DimensionOverworld:
		if v >= protocol.V21W37A {
			return Dimension{Name: name, MinY: -64, Height: 384, HasSkyLight: true}, true
		}
		return Dimension{Name: name, MinY: 0, Height: 256, HasSkyLight: true}, true
	case DimensionNether:
		return Dimension{Name: name, MinY: 0, Height: 256}, true
	case DimensionEnd:
		return Dimension{Name: name, MinY: 0, Height: 256}, true
	default:
		return Dimension{}, false
	}
}

// LegacyDimension maps the numeric dimension of pre-1.16 join/respawn packets.
func LegacyDimension(id int32, v protocol.Version) Dimension {
	name := DimensionOverworld
	switch id {
	case -1:
		name = DimensionNether
	case 1:
		name = DimensionEnd
	}
	d, _ := VanillaDimension(name, v)
	return d
}

// DimensionFromTag reads a dimension type compound (the join game codec
// entry or the inline 1.16.2+ type). Missing keys fall back to the vanilla
// bounds of name.
func DimensionFromTag(name string, tag *protocol.Tag, v protocol.Version) Dimension {
	d, ok := VanillaDimension(name, v)
	if !ok {
		d = Dimension{Name: name, MinY: 0, Height: 256, HasSkyLight: true}
	}
	if tag == nil {
		return d
	}
	if t, ok := tag.Child("min_y"); ok {
		if n, ok := t.Int(); ok {
			d.MinY = int(n)
		}
	}
	if t, ok := tag.Child("height"); ok {
		if n, ok := t.Int(); ok {
			d.Height = int(n)
		}
	}
	if t, ok := tag.Child("has_skylight"); ok {
		if n, ok := t.Int(); ok {
			d.HasSkyLight = n != 0
		}
	}
	return d
}
