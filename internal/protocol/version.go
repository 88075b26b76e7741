package protocol

import (
	"fmt"
	"sort"
)

// Version is a position in the total order of game revisions. Every
// version-conditional field is written as a comparison against one of the
// constants below, so the order of this block is load bearing: a new revision
// is inserted where it was released, never appended.
//
// Snapshot constants only mark format boundaries. Releases additionally carry
// the wire protocol number sent in the handshake.
type Version int32

const (
	V1_7_2 Version = iota
	V1_7_6
	V14W04A // entity ids and keep-alive become VarInt, positions packed into a long
	V14W21A // byte arrays VarInt-prefixed
	V14W25B // on-ground flag on entity movement
	V14W26A // chunk sections as little-endian ushorts
	V14W28A // chunk data no longer zlib-compressed, set-compression packet
	V14W28B // NBT no longer gzip-compressed on the wire
	V14W31A // plugin message payload no longer length-prefixed
	V1_8
	V15W31A // entity metadata rewrite
	V15W34C // 4-byte section mask
	V15W35A // paletted sections
	V15W36D // VarInt section mask
	V16W06A // double precision entity positions
	V1_9
	V1_9_1_PRE1 // entity metadata type becomes VarInt
	V1_9_1
	V1_9_2
	V1_9_4 // block entities inside chunk data
	V1_10
	V1_11
	V1_11_1
	V1_12
	V1_12_1
	V1_12_2 // long keep-alive ids
	V17W45A
	V17W47A // the flattening
	V1_13
	V1_13_1
	V1_13_2_PRE1 // optional item stack form
	V1_13_2
	V18W43A // block count per section, light moves out of chunk data, new position packing
	V18W44A // heightmaps
	V1_14
	V1_14_1
	V1_14_2
	V1_14_3
	V1_14_4
	V19W36A // 3D biomes
	V1_15
	V1_15_1
	V1_15_2
	V20W12A // binary UUID in login success
	V20W17A // padded long arrays
	V1_16_PRE7
	V1_16
	V1_16_1
	V20W28A // VarInt biome arrays, section-position block changes
	V1_16_2_PRE2
	V1_16_2
	V1_16_3
	V1_16_4
	V20W45A // full-chunk flag removed
	V20W49A // BitSet masks
	V21W03A // long-array section mask
	V1_17
	V1_17_1
	V21W37A // chunk and light merged, biome containers, no section mask
	V1_18
	V1_18_2
	V1_19
	V1_19_1
	V1_19_3
	V1_19_4
	V1_20
	V23W31A // nameless network NBT root, configuration phase
	V1_20_2
	V23W40A // NBT text components
	V1_20_3
	V1_20_5
	V1_21
	V1_21_2
	V1_21_4

	versionCount
)

// FlatteningVersion is where block identity moved from id/meta pairs to a
// flat state registry.
const FlatteningVersion = V17W47A

// Latest is the newest version this codec knows.
const Latest = V1_21_4

type VersionInfo struct {
	Version  Version
	Name     string
	Protocol int32 // -1 for snapshots that only mark a boundary
}

var versionInfos = [versionCount]VersionInfo{
	{V1_7_2, "1.7.2", 4},
	{V1_7_6, "1.7.6", 5},
	{V14W04A, "14w04a", -1},
	{V14W21A, "14w21a", -1},
	{V14W25B, "14w25b", -1},
	{V14W26A, "14w26a", -1},
	{V14W28A, "14w28a", -1},
	{V14W28B, "14w28b", -1},
	{V14W31A, "14w31a", -1},
	{V1_8, "1.8", 47},
	{V15W31A, "15w31a", -1},
	{V15W34C, "15w34c", -1},
	{V15W35A, "15w35a", -1},
	{V15W36D, "15w36d", -1},
	{V16W06A, "16w06a", -1},
	{V1_9, "1.9", 107},
	{V1_9_1_PRE1, "1.9.1-pre1", -1},
	{V1_9_1, "1.9.1", 108},
	{V1_9_2, "1.9.2", 109},
	{V1_9_4, "1.9.4", 110},
	{V1_10, "1.10", 210},
	{V1_11, "1.11", 315},
	{V1_11_1, "1.11.1", 316},
	{V1_12, "1.12", 335},
	{V1_12_1, "1.12.1", 338},
	{V1_12_2, "1.12.2", 340},
	{V17W45A, "17w45a", -1},
	{V17W47A, "17w47a", -1},
	{V1_13, "1.13", 393},
	{V1_13_1, "1.13.1", 401},
	{V1_13_2_PRE1, "1.13.2-pre1", -1},
	{V1_13_2, "1.13.2", 404},
	{V18W43A, "18w43a", -1},
	{V18W44A, "18w44a", -1},
	{V1_14, "1.14", 477},
	{V1_14_1, "1.14.1", 480},
	{V1_14_2, "1.14.2", 485},
	{V1_14_3, "1.14.3", 490},
	{V1_14_4, "1.14.4", 498},
	{V19W36A, "19w36a", -1},
	{V1_15, "1.15", 573},
	{V1_15_1, "1.15.1", 575},
	{V1_15_2, "1.15.2", 578},
	{V20W12A, "20w12a", -1},
	{V20W17A, "20w17a", -1},
	{V1_16_PRE7, "1.16-pre7", -1},
	{V1_16, "1.16", 735},
	{V1_16_1, "1.16.1", 736},
	{V20W28A, "20w28a", -1},
	{V1_16_2_PRE2, "1.16.2-pre2", -1},
	{V1_16_2, "1.16.2", 751},
	{V1_16_3, "1.16.3", 753},
	{V1_16_4, "1.16.4", 754},
	{V20W45A, "20w45a", -1},
	{V20W49A, "20w49a", -1},
	{V21W03A, "21w03a", -1},
	{V1_17, "1.17", 755},
	{V1_17_1, "1.17.1", 756},
	{V21W37A, "21w37a", -1},
	{V1_18, "1.18", 757},
	{V1_18_2, "1.18.2", 758},
	{V1_19, "1.19", 759},
	{V1_19_1, "1.19.1", 760},
	{V1_19_3, "1.19.3", 761},
	{V1_19_4, "1.19.4", 762},
	{V1_20, "1.20", 763},
	{V23W31A, "23w31a", -1},
	{V1_20_2, "1.20.2", 764},
	{V23W40A, "23w40a", -1},
	{V1_20_3, "1.20.3", 765},
	{V1_20_5, "1.20.5", 766},
	{V1_21, "1.21", 767},
	{V1_21_2, "1.21.2", 768},
	{V1_21_4, "1.21.4", 769},
}

// Aliases for releases that share a wire protocol with the release above.
var versionAliases = map[string]Version{
	"1.7.10": V1_7_6,
	"1.8.9":  V1_8,
	"1.16.5": V1_16_4,
	"1.18.1": V1_18,
	"1.19.2": V1_19_1,
	"1.20.1": V1_20,
	"1.20.4": V1_20_3,
	"1.20.6": V1_20_5,
	"1.21.1": V1_21,
	"1.21.3": V1_21_2,
}

var (
	versionsByName     map[string]Version
	versionsByProtocol map[int32]Version
)

func init() {
	versionsByName = make(map[string]Version, len(versionInfos)+len(versionAliases))
	versionsByProtocol = make(map[int32]Version)
	for i, info := range versionInfos {
		if info.Version != Version(i) {
			panic(fmt.Sprintf("version table out of order at %d (%s)", i, info.Name))
		}
		versionsByName[info.Name] = info.Version
		if info.Protocol >= 0 {
			versionsByProtocol[info.Protocol] = info.Version
		}
	}
	for name, v := range versionAliases {
		versionsByName[name] = v
	}
}

func (v Version) Valid() bool {
	return v >= 0 && v < versionCount
}

func (v Version) Info() VersionInfo {
	if !v.Valid() {
		return VersionInfo{Version: v, Name: "unknown", Protocol: -1}
	}
	return versionInfos[v]
}

func (v Version) String() string {
	return v.Info().Name
}

// Protocol returns the handshake protocol number, or -1 for a boundary snapshot.
func (v Version) Protocol() int32 {
	return v.Info().Protocol
}

// Negotiable reports whether a client can announce this version.
func (v Version) Negotiable() bool {
	return v.Protocol() >= 0
}

func ParseVersion(name string) (Version, error) {
	v, ok := versionsByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, name)
	}
	return v, nil
}

func VersionByProtocol(protocol int32) (Version, error) {
	v, ok := versionsByProtocol[protocol]
	if !ok {
		return 0, fmt.Errorf("%w: protocol %d", ErrUnknownVersion, protocol)
	}
	return v, nil
}

// Releases lists the negotiable versions, oldest first.
func Releases() []VersionInfo {
	out := make([]VersionInfo, 0, len(versionInfos))
	for _, info := range versionInfos {
		if info.Protocol >= 0 {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Range is a half-open version interval [Since, Until). A zero Until means
// the range is open ended.
type Range struct {
	Since Version
	Until Version
}

var AllVersions = Range{}

func Since(v Version) Range { return Range{Since: v} }
func Until(v Version) Range { return Range{Until: v} }
func Between(since, until Version) Range { return Range{Since: since, Until: until} }

func (r Range) Contains(v Version) bool {
	if v < r.Since {
		return false
	}
	return r.Until == 0 || v < r.Until
}
