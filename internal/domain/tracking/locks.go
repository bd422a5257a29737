package tracking

import (
	"hash/fnv"
	"sync"
)

// stripesPerShard multiplies the configured shard count into lock stripes.
const stripesPerShard = 64

// stripedLocks maps keys onto a fixed array of mutexes. Two keys may share
// a stripe; one key always maps to the same stripe.
type stripedLocks struct {
	stripes []sync.Mutex
}

func newStripedLocks(n int) *stripedLocks {
	if n < 1 {
		n = 1
	}
	return &stripedLocks{stripes: make([]sync.Mutex, n)}
}

func (l *stripedLocks) forKey(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}
