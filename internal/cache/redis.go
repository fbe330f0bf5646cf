package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch — COUNT для SCAN.
const scanBatch = 100

// redisClient — общее у redis.Client и redis.Ring.
type redisClient interface {
	redis.Cmdable
	Close() error
}

// redisStore — store поверх go-redis.
type redisStore struct {
	client redisClient
	first  *redis.Client // для SCAN; совпадает с client при одном узле
}

// newRedisStore создаёт клиента. Несколько узлов объединяются в redis.Ring,
// который сам шардирует ключи rendezvous-хешем.
func newRedisStore(hosts []Host, prefix string, timeout time.Duration) (*redisStore, KeyLister, error) {
	if len(hosts) == 0 {
		return nil, nil, ErrNoHosts
	}

	first := redis.NewClient(&redis.Options{
		Addr:         hosts[0].Addr(),
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	s := &redisStore{client: first, first: first}
	if len(hosts) > 1 {
		addrs := make(map[string]string, len(hosts))
		for i, h := range hosts {
			addrs[fmt.Sprintf("shard%d", i)] = h.Addr()
		}
		s.client = redis.NewRing(&redis.RingOptions{
			Addrs:        addrs,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		})
	}

	return s, &scanLister{client: first, match: prefix + ":*"}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errNotFound
	}
	return val, err
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) Close() error {
	err := s.client.Close()
	if s.first != s.client {
		if ferr := s.first.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

// scanLister перечисляет ключи первого узла командой SCAN.
type scanLister struct {
	client *redis.Client
	match  string
}

// ListKeys реализует KeyLister.
func (l *scanLister) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := l.client.Scan(ctx, 0, l.match, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", l.match, err)
	}
	return keys, nil
}
