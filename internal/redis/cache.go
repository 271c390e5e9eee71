package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"transit/internal/domain"
)

// DefaultCapacityCacheTTL bounds how stale a cached capacity may be if an
// invalidation is lost.
const DefaultCapacityCacheTTL = 5 * time.Second

const (
	capacityCachePrefix   = "cache:trip:capacity:"
	capacityVersionPrefix = "cache:trip:capacity-version:"

	// capacityVersionTTL only has to outlive a single cache fill. An
	// expired version reads as 0, which never matches a later fill.
	capacityVersionTTL = time.Hour
)

// setIfVersion stores ARGV[2] under KEYS[1] for ARGV[3] milliseconds when
// the version at KEYS[2] still equals ARGV[1].
var setIfVersion = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// CacheStore caches trip capacities in Redis.
type CacheStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore. A non-positive ttl selects
// DefaultCapacityCacheTTL.
func NewCacheStore(client redis.Cmdable, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultCapacityCacheTTL
	}
	return &CacheStore{client: client, ttl: ttl}
}

// CachedCapacity represents a cached capacity entry.
type CachedCapacity struct {
	AvailableCapacity int `json:"availableCapacity"`
	TotalCapacity     int `json:"totalCapacity"`
}

// GetCapacity retrieves a trip's capacity from cache.
func (s *CacheStore) GetCapacity(ctx context.Context, tripID string) (*domain.Capacity, error) {
	data, err := s.client.Get(ctx, capacityCachePrefix+tripID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached CachedCapacity
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &domain.Capacity{
		AvailableCapacity: cached.AvailableCapacity,
		TotalCapacity:     cached.TotalCapacity,
	}, nil
}

// CapacityVersion returns the number of invalidations seen for a trip.
func (s *CacheStore) CapacityVersion(ctx context.Context, tripID string) (int64, error) {
	version, err := s.client.Get(ctx, capacityVersionPrefix+tripID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// SetCapacity stores a trip's capacity in cache unless the trip was
// invalidated after version was read.
func (s *CacheStore) SetCapacity(ctx context.Context, tripID string, capacity *domain.Capacity, version int64) error {
	data, err := json.Marshal(CachedCapacity{
		AvailableCapacity: capacity.AvailableCapacity,
		TotalCapacity:     capacity.TotalCapacity,
	})
	if err != nil {
		return err
	}
	keys := []string{capacityCachePrefix + tripID, capacityVersionPrefix + tripID}
	return setIfVersion.Run(ctx, s.client, keys, version, data, s.ttl.Milliseconds()).Err()
}

// InvalidateCapacity removes a trip's capacity from cache and bumps its
// version so that in-flight fills are discarded.
func (s *CacheStore) InvalidateCapacity(ctx context.Context, tripID string) error {
	versionKey := capacityVersionPrefix + tripID
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, capacityVersionTTL)
		pipe.Del(ctx, capacityCachePrefix+tripID)
		return nil
	})
	return err
}
