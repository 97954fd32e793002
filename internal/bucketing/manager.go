package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// Manager assigns users to fixed partition buckets so wide rows in Scylla
// stay bounded. Assignments are stable for a given bucket count.
type Manager struct {
	userBuckets int
	hasherPool  sync.Pool
}

func NewManager(userBuckets int) *Manager {
	if userBuckets <= 0 {
		userBuckets = 100
	}

	m := &Manager{userBuckets: userBuckets}
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// UserBucket returns the consistent bucket for a user ID (0 to userBuckets-1)
func (m *Manager) UserBucket(userID string) int {
	return int(m.getHash(userID) % uint64(m.userBuckets))
}

// DateBucket returns the UTC date partition key for event tables
func (m *Manager) DateBucket(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

func (m *Manager) UserBuckets() int {
	return m.userBuckets
}

func (m *Manager) getHash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
