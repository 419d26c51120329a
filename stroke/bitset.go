package stroke

import "math/bits"

// bitset tracks slot liveness. Bit i set means slot i holds a live stroke.
type bitset struct {
	words []uint64
}

func (b *bitset) grow(n int) {
	need := (n + 63) >> 6
	for len(b.words) < need {
		b.words = append(b.words, 0)
	}
}

func (b *bitset) set(i int) {
	b.grow(i + 1)
	b.words[i>>6] |= 1 << (uint(i) & 63)
}

func (b *bitset) clear(i int) {
	if i>>6 < len(b.words) {
		b.words[i>>6] &^= 1 << (uint(i) & 63)
	}
}

func (b *bitset) test(i int) bool {
	w := i >> 6
	return w < len(b.words) && b.words[w]&(1<<(uint(i)&63)) != 0
}

// truncate clears every bit at or above n.
func (b *bitset) truncate(n int) {
	w := n >> 6
	if w >= len(b.words) {
		return
	}
	b.words[w] &= (1 << (uint(n) & 63)) - 1
	for i := w + 1; i < len(b.words); i++ {
		b.words[i] = 0
	}
	b.words = b.words[:(n+63)>>6]
}

// selectNth returns the index of the k-th set bit (0-based), or -1.
func (b *bitset) selectNth(k int) int {
	for wi, w := range b.words {
		c := bits.OnesCount64(w)
		if k >= c {
			k -= c
			continue
		}
		for ; k > 0; k-- {
			w &= w - 1
		}
		return wi<<6 + bits.TrailingZeros64(w)
	}
	return -1
}

// next returns the first set bit at or after i, or -1.
func (b *bitset) next(i int) int {
	if i < 0 {
		i = 0
	}
	wi := i >> 6
	if wi >= len(b.words) {
		return -1
	}
	w := b.words[wi] &^ ((1 << (uint(i) & 63)) - 1)
	for {
		if w != 0 {
			return wi<<6 + bits.TrailingZeros64(w)
		}
		wi++
		if wi >= len(b.words) {
			return -1
		}
		w = b.words[wi]
	}
}
