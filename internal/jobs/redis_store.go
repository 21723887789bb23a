package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "media-shrinker:job:"

	// maxTxRetries bounds optimistic-lock retries when two writers race on a key.
	maxTxRetries = 10
)

// RedisStore keeps job records as JSON strings with a native TTL.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. A ttl of 0 keeps records forever.
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get returns the record for key, or nil if none exists.
func (s *RedisStore) Get(ctx context.Context, key string) (rec *Record, err error) {
	defer func(start time.Time) { observeStore("redis", "get", start, err) }(time.Now())

	if key == "" {
		return nil, errors.New("job key is required")
	}
	return readRecord(ctx, s.rdb, jobKey(key))
}

// Put writes record under key inside a WATCH transaction so that a terminal
// record written concurrently is never overwritten.
func (s *RedisStore) Put(ctx context.Context, key string, record *Record) (err error) {
	defer func(start time.Time) { observeStore("redis", "put", start, err) }(time.Now())

	if err := record.Validate(); err != nil {
		return err
	}
	rkey := jobKey(key)

	txf := func(tx *redis.Tx) error {
		prev, err := readRecord(ctx, tx, rkey)
		if err != nil {
			return err
		}
		if err := checkTransition(key, prev, record); err != nil {
			return err
		}

		record.stamp(time.Now(), s.ttl)
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, payload, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, rkey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("put %s: %w after %d attempts", key, redis.TxFailedErr, maxTxRetries)
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// getter is the slice of the redis API shared by clients and transactions.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRecord(ctx context.Context, c getter, rkey string) (*Record, error) {
	data, err := c.Get(ctx, rkey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode %s: %w", rkey, err)
	}
	return &record, nil
}

func jobKey(key string) string {
	return jobKeyPrefix + key
}
