package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// maxRelativeExpiration — memcached трактует бóльшие значения как unix time.
const maxRelativeExpiration = 30 * 24 * time.Hour

// memcachedStore — store поверх gomemcache.
type memcachedStore struct {
	client *memcache.Client
}

// newMemcachedStore создаёт клиента. Несколько узлов шардируются
// rendezvous-хешем, listing идёт через первый узел.
func newMemcachedStore(hosts []Host, timeout time.Duration) (*memcachedStore, KeyLister, error) {
	if len(hosts) == 0 {
		return nil, nil, ErrNoHosts
	}

	addrs := make([]string, len(hosts))
	for i, h := range hosts {
		addrs[i] = h.Addr()
	}

	var client *memcache.Client
	if len(addrs) == 1 {
		client = memcache.New(addrs[0])
	} else {
		selector, err := newRendezvousSelector(addrs)
		if err != nil {
			return nil, nil, err
		}
		client = memcache.NewFromSelector(selector)
	}
	client.Timeout = timeout

	lister := &cachedumpLister{addr: addrs[0], timeout: timeout, limit: cachedumpLimit}
	return &memcachedStore{client: client}, lister, nil
}

func (s *memcachedStore) Get(_ context.Context, key string) ([]byte, error) {
	item, err := s.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (s *memcachedStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: expiration(ttl),
	})
}

func (s *memcachedStore) Delete(_ context.Context, key string) (bool, error) {
	err := s.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close ничего не делает: gomemcache закрывает idle-соединения сам.
func (s *memcachedStore) Close() error {
	return nil
}

// expiration переводит ttl в формат memcached.
func expiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > maxRelativeExpiration {
		return int32(time.Now().Add(ttl).Unix())
	}
	secs := int32(ttl / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}

// rendezvousSelector — memcache.ServerSelector на rendezvous-хешировании.
//
// Ключ всегда попадает на один и тот же узел; при изменении набора узлов
// переезжает только доля ключей удалённого/добавленного узла.
type rendezvousSelector struct {
	table *rendezvous.Rendezvous
	addrs map[string]net.Addr
	order []net.Addr
}

func newRendezvousSelector(servers []string) (*rendezvousSelector, error) {
	s := &rendezvousSelector{
		addrs: make(map[string]net.Addr, len(servers)),
		order: make([]net.Addr, 0, len(servers)),
	}
	names := make([]string, 0, len(servers))
	for _, server := range servers {
		if _, dup := s.addrs[server]; dup {
			continue
		}
		addr, err := net.ResolveTCPAddr("tcp", server)
		if err != nil {
			return nil, fmt.Errorf("resolve cache node %s: %w", server, err)
		}
		s.addrs[server] = addr
		s.order = append(s.order, addr)
		names = append(names, server)
	}

	s.table = rendezvous.New(names, xxhash.Sum64String)
	return s, nil
}

// PickServer реализует memcache.ServerSelector.
func (s *rendezvousSelector) PickServer(key string) (net.Addr, error) {
	if len(s.order) == 0 {
		return nil, memcache.ErrNoServers
	}
	return s.addrs[s.table.Lookup(key)], nil
}

// Each реализует memcache.ServerSelector.
func (s *rendezvousSelector) Each(f func(net.Addr) error) error {
	for _, addr := range s.order {
		if err := f(addr); err != nil {
			return err
		}
	}
	return nil
}

// node возвращает адрес узла для ключа (для тестов и диагностики).
func (s *rendezvousSelector) node(key string) string {
	return s.table.Lookup(key)
}
