package membership

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
)

// sampleIndexes picks min(k, n) distinct indexes out of n. The draw is a
// partial Fisher-Yates shuffle over a PCG stream derived from seed, key and
// collection, so a given triple always yields the same indexes in the same
// order.
func sampleIndexes(n, k int, seed int64, key, collection string) []int {
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(collection))
	sum := h.Sum64()

	rng := rand.New(rand.NewPCG(sum, sum^0x9e3779b97f4a7c15)) //nolint:gosec // sampling, not security
	for i := range k {
		j := i + rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
