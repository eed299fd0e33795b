package blobstore

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over Redis, for a scheduler and workers that
// do not share a filesystem. Blobs are stored as plain string values
// keyed by path; a single set indexes every stored path for List (which
// returns matches in no particular order), and a hash tracks write
// timestamps for the tmp-GC janitor.
// Grounded on the teacher's control_plane/store/redis.go connection and
// latency-tracking shape.
type RedisStore struct {
	client *redis.Client
}

const redisBlobPrefix = "flowmr:blob:"
const redisBlobTimesKey = "flowmr:blob:mtimes"
const redisBlobIndexKey = "flowmr:blob:index"

// NewRedisStore connects to addr and verifies reachability before
// returning, matching the teacher's NewRedisStore Ping-on-construct
// pattern.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) key(path string) string { return redisBlobPrefix + path }

func (s *RedisStore) Write(ctx context.Context, path string, data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(path), buf, 0)
	pipe.SAdd(ctx, redisBlobIndexKey, path)
	pipe.HSet(ctx, redisBlobTimesKey, path, time.Now().Unix())
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	val, err := s.client.Get(ctx, s.key(path)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(val)), nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	all, err := s.client.SMembers(ctx, redisBlobIndexKey).Result()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range all {
		if len(p) >= len(prefix) && p[:len(prefix)] == prefix {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *RedisStore) Rename(ctx context.Context, src, dst string) error {
	val, err := s.client.Get(ctx, s.key(src)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(dst), val, 0)
	pipe.SAdd(ctx, redisBlobIndexKey, dst)
	pipe.HSet(ctx, redisBlobTimesKey, dst, time.Now().Unix())
	pipe.Del(ctx, s.key(src))
	pipe.SRem(ctx, redisBlobIndexKey, src)
	pipe.HDel(ctx, redisBlobTimesKey, src)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(path))
	pipe.SRem(ctx, redisBlobIndexKey, path)
	pipe.HDel(ctx, redisBlobTimesKey, path)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ModTime(ctx context.Context, path string) (int64, error) {
	val, err := s.client.HGet(ctx, redisBlobTimesKey, path).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return val, nil
}
