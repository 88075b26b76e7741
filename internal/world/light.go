package world

import (
	"fmt"

	"github.com/Versifine/mcwire/internal/protocol"
)

// LightData is the light payload shared by the light update packet and, since
// 21w37a, the chunk packet. Sky and Block hold one nibble array per set bit
// of the matching mask, in ascending bit order. Bit i addresses the light
// section i-1 relative to the dimension's lowest block section.
type LightData struct {
	TrustEdges     bool
	SkyMask        protocol.BitSet
	BlockMask      protocol.BitSet
	EmptySkyMask   protocol.BitSet
	EmptyBlockMask protocol.BitSet
	Sky            [][]byte
	Block          [][]byte
}

// ReadLightData reads a light payload starting at the trust-edges flag.
func ReadLightData(b *protocol.Buffer) (*LightData, error) {
	l := &LightData{}
	var err error
	if v := b.Version(); v >= protocol.V1_16 && v < protocol.V1_20 {
		if l.TrustEdges, err = b.ReadBool(); err != nil {
			return nil, err
		}
	}
	for _, m := range []*protocol.BitSet{&l.SkyMask, &l.BlockMask, &l.EmptySkyMask, &l.EmptyBlockMask} {
		if *m, err = b.ReadBitSet(); err != nil {
			return nil, err
		}
	}
	if l.Sky, err = readLightArrays(b, l.SkyMask); err != nil {
		return nil, fmt.Errorf("sky light: %w", err)
	}
	if l.Block, err = readLightArrays(b, l.BlockMask); err != nil {
		return nil, fmt.Errorf("block light: %w", err)
	}
	return l, nil
}

func readLightArrays(b *protocol.Buffer, mask protocol.BitSet) ([][]byte, error) {
	count := mask.Cardinality()
	if b.Version() >= protocol.V20W49A {
		n, err := b.ReadArrayLen(NibbleArrayLength)
		if err != nil {
			return nil, err
		}
		if n != count {
			return nil, fmt.Errorf("%w: %d light arrays for %d mask bits", ErrChunkData, n, count)
		}
	}
	out := make([][]byte, count)
	for i := range out {
		arr, err := b.ReadVarBytes()
		if err != nil {
			return nil, err
		}
		if len(arr) != NibbleArrayLength {
			return nil, fmt.Errorf("%w: light array of %d bytes", ErrChunkData, len(arr))
		}
		out[i] = arr
	}
	return out, nil
}

func (l *LightData) Write(w *protocol.Writer) {
	if v := w.Version(); v >= protocol.V1_16 && v < protocol.V1_20 {
		w.WriteBool(l.TrustEdges)
	}
	for _, m := range []protocol.BitSet{l.SkyMask, l.BlockMask, l.EmptySkyMask, l.EmptyBlockMask} {
		w.WriteBitSet(m)
	}
	for _, arrays := range [][][]byte{l.Sky, l.Block} {
		if w.Version() >= protocol.V20W49A {
			w.WriteVarInt(int32(len(arrays)))
		}
		for _, arr := range arrays {
			w.WriteVarBytes(arr)
		}
	}
}

// ColumnLight is the light known for one column, keyed by light section
// index (mask bit).
type ColumnLight struct {
	Sky   map[int][]byte
	Block map[int][]byte
}

func (c ColumnLight) clone() ColumnLight {
	out := ColumnLight{
		Sky:   make(map[int][]byte, len(c.Sky)),
		Block: make(map[int][]byte, len(c.Block)),
	}
	for k, v := range c.Sky {
		out.Sky[k] = v
	}
	for k, v := range c.Block {
		out.Block[k] = v
	}
	return out
}

// MergeLight applies an update to existing light and returns the result.
// Sections named by a data mask are replaced, sections named by an empty
// mask are cleared to zero, all others are kept. Neither argument is
// modified, and applying the same update twice gives the same result.
func MergeLight(existing ColumnLight, update *LightData) ColumnLight {
	out := existing.clone()
	if update == nil {
		return out
	}
	applyLightMask(out.Sky, update.SkyMask, update.Sky)
	applyLightMask(out.Block, update.BlockMask, update.Block)
	clearLightMask(out.Sky, update.EmptySkyMask)
	clearLightMask(out.Block, update.EmptyBlockMask)
	return out
}

func applyLightMask(dst map[int][]byte, mask protocol.BitSet, arrays [][]byte) {
	k := 0
	for i := 0; i < mask.Len(); i++ {
		if !mask.Get(i) {
			continue
		}
		if k >= len(arrays) {
			return
		}
		dst[i] = append([]byte(nil), arrays[k]...)
		k++
	}
}

func clearLightMask(dst map[int][]byte, mask protocol.BitSet) {
	for i := 0; i < mask.Len(); i++ {
		if mask.Get(i) {
			dst[i] = make([]byte, NibbleArrayLength)
		}
	}
}

// LegacyColumnLight collects the light arrays carried inline in sections
// before 18w43a, shifted to light section indices.
func LegacyColumnLight(sections []*Section) ColumnLight {
	out := ColumnLight{Sky: map[int][]byte{}, Block: map[int][]byte{}}
	for i, s := range sections {
		if s == nil {
			continue
		}
		if s.SkyLight != nil {
			out.Sky[i+1] = s.SkyLight
		}
		if s.BlockLight != nil {
			out.Block[i+1] = s.BlockLight
		}
	}
	return out
}
