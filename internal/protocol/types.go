package protocol

import (
	"crypto/md5"
	"math"

	"github.com/google/uuid"
)

// Position is an absolute block coordinate.
type Position struct {
	X, Y, Z int32
}

// PackPosition packs p into the long layout used by v: x/y/z (26/12/26 bits)
// before 18w43a, x/z/y after.
func PackPosition(p Position, v Version) int64 {
	x := int64(p.X) & 0x3FFFFFF
	y := int64(p.Y) & 0xFFF
	z := int64(p.Z) & 0x3FFFFFF
	if v < V18W43A {
		return x<<38 | y<<26 | z
	}
	return x<<38 | z<<12 | y
}

func UnpackPosition(val int64, v Version) Position {
	if v < V18W43A {
		return Position{
			X: int32(val >> 38),
			Y: int32((val << 26) >> 52),
			Z: int32((val << 38) >> 38),
		}
	}
	return Position{
		X: int32(val >> 38),
		Y: int32((val << 52) >> 52),
		Z: int32((val << 26) >> 38),
	}
}

func AngleToDegrees(v int8) float32 {
	return float32(uint8(v)) * 360.0 / 256.0
}

func DegreesToAngle(deg float32) int8 {
	return int8(uint8(int32(math.Floor(float64(deg)*256.0/360.0)) & 0xFF))
}

// OfflineUUID derives the UUID an offline-mode server assigns to name.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}
