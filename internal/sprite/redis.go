package sprite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// schemaVersion is baked into every key prefix. Bumping it orphans old
// records, which OpenRedisStore purges on first open after an upgrade.
const schemaVersion = 1

var (
	keyPrefix    = fmt.Sprintf("sprite:v%d:", schemaVersion)
	imgPrefix    = keyPrefix + "img:"
	geomPrefix   = keyPrefix + "geom:"
	metaPrefix   = keyPrefix + "meta:"
	indexKey     = keyPrefix + "lru"
	schemaKey    = "sprite:schema"
	legacyPrefix = "sprite:v"
)

// redisUsage is the persisted shape of a record's usage metadata. Sprite
// geometry lives under its own key so that recreating lost usage metadata
// never rewrites the geometry.
type redisUsage struct {
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// RedisStore persists sprite records in Redis. A record spans three keys:
// sprite:v<N>:img:<key> (PNG bytes), sprite:v<N>:geom:<key> (geometry JSON),
// and sprite:v<N>:meta:<key> (usage JSON); a ZSET scored by lastUsedAt unix
// seconds is the eviction index.
type RedisStore struct {
	client *redis.Client
}

// OpenRedisStore dials addr and verifies the stored schema version, purging
// records written by an incompatible older version.
func OpenRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	s := &RedisStore{client: client}
	if err := s.ensureSchema(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// RedisOpener returns a StoreOpener that dials a fresh connection per
// operation, per the open-transact-close policy.
func RedisOpener(addr string) StoreOpener {
	return func(ctx context.Context) (Store, error) {
		return OpenRedisStore(ctx, addr)
	}
}

func (s *RedisStore) ensureSchema(ctx context.Context) error {
	stored, err := s.client.Get(ctx, schemaKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read schema version: %w", err)
	}
	current := strconv.Itoa(schemaVersion)
	if stored == current {
		return nil
	}

	// Purge keys from any other schema version.
	if stored != "" {
		iter := s.client.Scan(ctx, 0, legacyPrefix+stored+":*", 200).Iterator()
		for iter.Next(ctx) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("purge old schema: %w", err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("purge old schema: %w", err)
		}
	}
	if err := s.client.Set(ctx, schemaKey, current, 0).Err(); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// GetRecord implements Store.GetRecord.
func (s *RedisStore) GetRecord(ctx context.Context, key string) (Record, bool, error) {
	png, err := s.client.Get(ctx, imgPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get sprite image: %w", err)
	}

	raw, err := s.client.Get(ctx, geomPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// An image without its geometry cannot be served; treat the orphan
		// as absent so the caller regenerates it.
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get sprite geometry: %w", err)
	}

	rec := Record{Key: key, PNG: png}
	if err := json.Unmarshal(raw, &rec.Meta); err != nil {
		return Record{}, false, fmt.Errorf("decode sprite geometry: %w", err)
	}
	return rec, true, nil
}

// PutRecord implements Store.PutRecord.
func (s *RedisStore) PutRecord(ctx context.Context, rec Record, meta Metadata) error {
	geom, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("encode sprite geometry: %w", err)
	}
	usage, err := json.Marshal(redisUsage{CreatedAt: meta.CreatedAt, LastUsedAt: meta.LastUsedAt})
	if err != nil {
		return fmt.Errorf("encode sprite metadata: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, imgPrefix+rec.Key, rec.PNG, 0)
	pipe.Set(ctx, geomPrefix+rec.Key, geom, 0)
	pipe.Set(ctx, metaPrefix+rec.Key, usage, 0)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(meta.LastUsedAt.Unix()), Member: rec.Key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put sprite record: %w", err)
	}
	return nil
}

// DeleteRecord implements Store.DeleteRecord.
func (s *RedisStore) DeleteRecord(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, imgPrefix+key, geomPrefix+key, metaPrefix+key)
	pipe.ZRem(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete sprite record: %w", err)
	}
	return nil
}

// TouchMetadata implements Store.TouchMetadata.
func (s *RedisStore) TouchMetadata(ctx context.Context, key string, usedAt time.Time) error {
	raw, err := s.client.Get(ctx, metaPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMetadataMissing
	}
	if err != nil {
		return fmt.Errorf("get sprite metadata: %w", err)
	}

	var usage redisUsage
	if err := json.Unmarshal(raw, &usage); err != nil {
		return fmt.Errorf("decode sprite metadata: %w", err)
	}
	usage.LastUsedAt = usedAt

	updated, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("encode sprite metadata: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, metaPrefix+key, updated, 0)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(usedAt.Unix()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch sprite metadata: %w", err)
	}
	return nil
}

// ListMetadata implements Store.ListMetadata, walking the lastUsedAt index
// ascending.
func (s *RedisStore) ListMetadata(ctx context.Context) ([]Metadata, error) {
	keys, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("list sprite index: %w", err)
	}

	out := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		raw, err := s.client.Get(ctx, metaPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get sprite metadata: %w", err)
		}
		var usage redisUsage
		if err := json.Unmarshal(raw, &usage); err != nil {
			return nil, fmt.Errorf("decode sprite metadata: %w", err)
		}
		out = append(out, Metadata{Key: key, CreatedAt: usage.CreatedAt, LastUsedAt: usage.LastUsedAt})
	}
	return out, nil
}

// PruneOlderThan implements Store.PruneOlderThan via a range query on the
// lastUsedAt index, avoiding a full scan.
func (s *RedisStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	maxScore := "(" + strconv.FormatInt(cutoff.Unix(), 10)
	keys, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan sprite index: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, imgPrefix+key, geomPrefix+key, metaPrefix+key)
		pipe.ZRem(ctx, indexKey, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("prune sprite records: %w", err)
	}
	return len(keys), nil
}

// Close implements Store.Close.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
