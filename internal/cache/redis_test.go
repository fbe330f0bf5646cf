package cache

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func miniredisHost(t *testing.T, m *miniredis.Miniredis) Host {
	t.Helper()
	host, portStr, err := net.SplitHostPort(m.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Host{Host: host, Port: port}
}

func newRedisCache(t *testing.T, servers ...*miniredis.Miniredis) *BlobCache {
	t.Helper()

	hosts := make([]Host, len(servers))
	for i, m := range servers {
		hosts[i] = miniredisHost(t, m)
	}

	c := New(Config{
		Backend:   BackendRedis,
		Hosts:     hosts,
		KeyPrefix: "test",
		Timeout:   time.Second,
	})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisBackend_GetPut(t *testing.T) {
	m := miniredis.RunT(t)
	c := newRedisCache(t, m)
	ctx := context.Background()

	assert.False(t, m.Exists("test:__probe__"), "probe key removed after connect")

	_, err := c.Get(ctx, "docs", "a.txt")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Put(ctx, "docs", "a.txt", []byte("hello")))
	got, err := m.Get("test:docs:a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, DefaultTTL, m.TTL("test:docs:a.txt"))

	data, err := c.Get(ctx, "docs", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestRedisBackend_TTLExpiry(t *testing.T) {
	m := miniredis.RunT(t)
	c := newRedisCache(t, m)
	ctx := context.Background()

	require.NoError(t, c.PutTTL(ctx, "docs", "short", []byte("x"), 30*time.Second))
	m.FastForward(31 * time.Second)

	_, err := c.Get(ctx, "docs", "short")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisBackend_DeleteAndQuery(t *testing.T) {
	m := miniredis.RunT(t)
	c := newRedisCache(t, m)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "docs", "a.txt", []byte("1")))
	require.NoError(t, c.Put(ctx, "docs", "b.txt", []byte("2")))
	require.NoError(t, c.Put(ctx, "logs", "c.txt", []byte("3")))
	require.NoError(t, m.Set("foreign:docs:x", "ignored"))

	refs, err := c.QueryKeys(ctx, "docs")
	require.NoError(t, err)
	assert.ElementsMatch(t, []KeyRef{{Tag: "docs", Blob: "a.txt"}, {Tag: "docs", Blob: "b.txt"}}, refs)

	refs, err = c.QueryKeys(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, refs, 3)

	assert.True(t, c.Delete(ctx, "docs", "a.txt"))
	assert.False(t, c.Delete(ctx, "docs", "a.txt"))

	n, err := c.InvalidateTag(ctx, "logs", []string{"c.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, m.Exists("test:logs:c.txt"))
}

func TestRedisBackend_Ring(t *testing.T) {
	m1 := miniredis.RunT(t)
	m2 := miniredis.RunT(t)
	c := newRedisCache(t, m1, m2)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		require.NoError(t, c.Put(ctx, "docs", "blob-"+strconv.Itoa(i), []byte("v")))
	}

	assert.Equal(t, 40, len(m1.Keys())+len(m2.Keys()))

	for i := 0; i < 40; i++ {
		_, err := c.Get(ctx, "docs", "blob-"+strconv.Itoa(i))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(40), c.Stats().Hits)
}

func TestRedisBackend_ReadFailureCountsAsMiss(t *testing.T) {
	m := miniredis.RunT(t)
	c := newRedisCache(t, m)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "docs", "a.txt", []byte("x")))
	m.Close()

	_, err := c.Get(ctx, "docs", "a.txt")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, int64(1), c.Stats().Misses)

	assert.Error(t, c.Put(ctx, "docs", "b.txt", []byte("y")))
}

// closeCountingStore считает вызовы Close.
type closeCountingStore struct {
	store
	closes int
}

func (s *closeCountingStore) Close() error {
	s.closes++
	return s.store.Close()
}

func TestRedisBackend_ReconnectClosesPreviousStore(t *testing.T) {
	m := miniredis.RunT(t)
	c := newRedisCache(t, m)

	first := &closeCountingStore{store: c.store}
	c.store = first

	require.NoError(t, c.Connect(context.Background()))

	assert.Equal(t, 1, first.closes, "previous store closed on reconnect")
	_, stillOld := c.store.(*closeCountingStore)
	assert.False(t, stillOld, "store replaced by a fresh connection")
	assert.True(t, c.Connected())

	require.NoError(t, c.Put(context.Background(), "docs", "a.txt", []byte("x")))
	assert.True(t, m.Exists("test:docs:a.txt"))
}
