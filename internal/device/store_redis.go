package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis.
//
// Layout, with prefix p:
//
//	p:device:{id}   JSON-encoded Device
//	p:devices       sorted set of ids scored by insertion sequence
//	p:devices:seq   counter that hands out insertion sequences
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix defaults to "fota".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fota"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) deviceKey(id string) string { return s.prefix + ":device:" + id }
func (s *RedisStore) indexKey() string           { return s.prefix + ":devices" }
func (s *RedisStore) seqKey() string             { return s.prefix + ":devices:seq" }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Device, error) {
	raw, err := s.rdb.Get(ctx, s.deviceKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("getting device %s: %w", id, err)
	}

	var d Device
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding device %s: %w", id, err)
	}
	return &d, nil
}

// Put implements Store. A new id gets the next sequence number; ZADD NX
// keeps the original score for ids already indexed.
func (s *RedisStore) Put(ctx context.Context, d *Device) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding device %s: %w", d.ID, err)
	}

	_, err = s.rdb.ZScore(ctx, s.indexKey(), d.ID).Result()
	switch {
	case errors.Is(err, redis.Nil):
		seq, err := s.rdb.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("allocating sequence for %s: %w", d.ID, err)
		}
		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.deviceKey(d.ID), raw, 0)
			pipe.ZAddNX(ctx, s.indexKey(), redis.Z{Score: float64(seq), Member: d.ID})
			return nil
		})
		if err != nil {
			return fmt.Errorf("saving device %s: %w", d.ID, err)
		}
	case err != nil:
		return fmt.Errorf("checking device %s: %w", d.ID, err)
	default:
		if err := s.rdb.Set(ctx, s.deviceKey(d.ID), raw, 0).Err(); err != nil {
			return fmt.Errorf("saving device %s: %w", d.ID, err)
		}
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context) ([]Device, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing device ids: %w", err)
	}

	devices := make([]Device, 0, len(ids))
	if len(ids) == 0 {
		return devices, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.deviceKey(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}

	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Index entry without a body; skip rather than fail the listing.
			continue
		}
		var d Device
		if err := json.Unmarshal([]byte(str), &d); err != nil {
			return nil, fmt.Errorf("decoding device %s: %w", ids[i], err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}
