package protocol

import "math/bits"

// BitSet is a little-endian word array: bit i lives in word i/64.
type BitSet []uint64

func NewBitSet(n int) BitSet {
	return make(BitSet, (n+63)/64)
}

func BitSetFromLongs(longs []int64) BitSet {
	set := make(BitSet, len(longs))
	for i, l := range longs {
		set[i] = uint64(l)
	}
	return set
}

func (s BitSet) Get(i int) bool {
	if i < 0 || i/64 >= len(s) {
		return false
	}
	return s[i/64]&(1<<(i%64)) != 0
}

// Set marks bit i. The set must already be large enough.
func (s BitSet) Set(i int) {
	s[i/64] |= 1 << (i % 64)
}

// With returns a copy with bit i set, growing as needed.
func (s BitSet) With(i int) BitSet {
	out := make(BitSet, max(len(s), i/64+1))
	copy(out, s)
	out.Set(i)
	return out
}

func (s BitSet) Cardinality() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s BitSet) Empty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}

// Len is the index of the highest set bit plus one.
func (s BitSet) Len() int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != 0 {
			return i*64 + bits.Len64(s[i])
		}
	}
	return 0
}

func (s BitSet) Longs() []int64 {
	n := len(s)
	for n > 0 && s[n-1] == 0 {
		n--
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = int64(s[i])
	}
	return out
}
