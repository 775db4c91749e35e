package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"suvidha-service/internal/config"
)

// Manager assigns stable murmur3 buckets. Phone buckets spread the OTP
// record log across partitions; event buckets shard analytics rows.
type Manager struct {
	phoneBuckets int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		phoneBuckets: cfg.Bucketing.PhoneBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
	}
	if m.phoneBuckets <= 0 {
		m.phoneBuckets = 64
	}
	if m.eventBuckets <= 0 {
		m.eventBuckets = 16
	}

	// Pool of hashers to avoid per-call allocation
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// PhoneBucket returns a consistent bucket in [0, phoneBuckets) for a phone
// number.
func (m *Manager) PhoneBucket(phone string) int {
	return m.bucket(phone, m.phoneBuckets)
}

// EventBucket returns a bucket in [0, eventBuckets) for an analytics key.
func (m *Manager) EventBucket(key string) int {
	return m.bucket(key, m.eventBuckets)
}

// TimeBucket truncates t to windowSeconds boundaries.
func (m *Manager) TimeBucket(t time.Time, windowSeconds int) int64 {
	return t.Unix() / int64(windowSeconds) * int64(windowSeconds)
}

// DateBucket returns the UTC date partition for t.
func (m *Manager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (m *Manager) PhoneBuckets() int { return m.phoneBuckets }

func (m *Manager) EventBuckets() int { return m.eventBuckets }

func (m *Manager) bucket(key string, numBuckets int) int {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return int(hasher.Sum64() % uint64(numBuckets))
}
