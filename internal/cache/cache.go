package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/SIslamMun/AgentFactory/internal/telemetry"
)

// Backend — тип узлов кэша.
type Backend string

const (
	BackendMemcached Backend = "memcached"
	BackendRedis     Backend = "redis"
)

// Значения по умолчанию.
const (
	DefaultKeyPrefix = "iowarp"
	DefaultTTL       = time.Hour
	DefaultTimeout   = 2 * time.Second

	defaultMemcachedPort = 11211
	defaultRedisPort     = 6379

	probeTTL = 10 * time.Second
)

// errNotFound возвращается store'ами, когда ключа нет.
var errNotFound = errors.New("key not found")

// Host — адрес одного узла кэша.
type Host struct {
	Host string
	Port int
}

// Addr возвращает адрес в виде host:port.
func (h Host) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// ParseHosts разбирает список "host[:port],host[:port]".
// Без порта используется defaultPort.
func ParseHosts(s string, defaultPort int) ([]Host, error) {
	var hosts []Host
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(part)
		if err != nil {
			hosts = append(hosts, Host{Host: part, Port: defaultPort})
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in %q: %w", part, err)
		}
		hosts = append(hosts, Host{Host: host, Port: port})
	}
	return hosts, nil
}

// DefaultPort возвращает стандартный порт backend'а.
func DefaultPort(b Backend) int {
	if b == BackendRedis {
		return defaultRedisPort
	}
	return defaultMemcachedPort
}

// store — операции над узлами кэша. Реализации: memcachedStore, redisStore.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Close() error
}

// KeyLister перечисляет сырые ключи на одном узле кэша.
//
// Результат best-effort: не все ключи могут попасть в выдачу.
type KeyLister interface {
	ListKeys(ctx context.Context) ([]string, error)
}

// Config — конфигурация BlobCache.
type Config struct {
	// Backend — memcached (по умолчанию) или redis.
	Backend Backend

	// Hosts — узлы кэша. Один узел — прямой клиент, несколько — шардирование.
	Hosts []Host

	// KeyPrefix — префикс всех ключей.
	KeyPrefix string

	// DefaultTTL — время жизни записи, если не указано явно.
	DefaultTTL time.Duration

	// Timeout — таймаут сетевых операций.
	Timeout time.Duration

	// Lister заменяет встроенный способ перечисления ключей.
	Lister KeyLister

	Logger *slog.Logger
}

// Stats — счётчики hit/miss.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// BlobCache — cache-aside слой перед storage-сервисом.
type BlobCache struct {
	config Config
	logger *slog.Logger

	store  store
	lister KeyLister

	hits   int64
	misses int64
}

// New создаёт BlobCache. Подключение выполняется в Connect.
func New(cfg Config) *BlobCache {
	if cfg.Backend == "" {
		cfg.Backend = BackendMemcached
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []Host{{Host: "127.0.0.1", Port: DefaultPort(cfg.Backend)}}
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &BlobCache{
		config: cfg,
		logger: cfg.Logger.With("component", "cache", "backend", string(cfg.Backend)),
	}
}

// Connect открывает соединения и выполняет smoke test set/get/delete.
// Соединения предыдущего Connect закрываются.
func (c *BlobCache) Connect(ctx context.Context) error {
	if err := c.Close(); err != nil {
		c.logger.Warn("close previous cache connection", "error", err)
	}

	var (
		s      store
		lister KeyLister
		err    error
	)

	switch c.config.Backend {
	case BackendMemcached:
		s, lister, err = newMemcachedStore(c.config.Hosts, c.config.Timeout)
	case BackendRedis:
		s, lister, err = newRedisStore(c.config.Hosts, c.config.KeyPrefix, c.config.Timeout)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownBackend, c.config.Backend)
	}
	if err != nil {
		return &Error{Op: "connect", Err: err}
	}

	if err := probe(ctx, s, c.config.KeyPrefix+":__probe__"); err != nil {
		_ = s.Close()
		return &Error{Op: "connect", Err: fmt.Errorf("%w: %v", ErrProbeFailed, err)}
	}

	if c.config.Lister != nil {
		lister = c.config.Lister
	}

	c.store = s
	c.lister = lister

	c.logger.Info("cache connected",
		"nodes", len(c.config.Hosts),
		"prefix", c.config.KeyPrefix,
	)
	return nil
}

// probe проверяет, что узел принимает запись и отдаёт её обратно.
func probe(ctx context.Context, s store, key string) error {
	if err := s.Set(ctx, key, []byte("1"), probeTTL); err != nil {
		return err
	}
	val, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if !bytes.Equal(val, []byte("1")) {
		return fmt.Errorf("probe value mismatch: %q", val)
	}
	_, err = s.Delete(ctx, key)
	return err
}

// Connected возвращает true после успешного Connect.
func (c *BlobCache) Connected() bool {
	return c.store != nil
}

// Get читает blob. Промах и любая транспортная ошибка возвращают ErrMiss.
func (c *BlobCache) Get(ctx context.Context, tag, blob string) ([]byte, error) {
	if c.store == nil {
		return nil, &Error{Op: "get", Tag: tag, Blob: blob, Err: ErrNotConnected}
	}

	data, err := c.store.Get(ctx, MakeKey(c.config.KeyPrefix, tag, blob))
	if err != nil && !errors.Is(err, errNotFound) {
		c.logger.Warn("cache get failed, counting as miss",
			"tag", tag,
			"blob", blob,
			"error", err,
		)
	}

	if err != nil || len(data) == 0 {
		c.misses++
		telemetry.CacheOperations.WithLabelValues("get", "miss").Inc()
		return nil, ErrMiss
	}

	c.hits++
	telemetry.CacheOperations.WithLabelValues("get", "hit").Inc()
	return data, nil
}

// Put записывает blob с DefaultTTL.
func (c *BlobCache) Put(ctx context.Context, tag, blob string, data []byte) error {
	return c.PutTTL(ctx, tag, blob, data, c.config.DefaultTTL)
}

// PutTTL записывает blob с явным ttl. Ttl 0 — без срока.
func (c *BlobCache) PutTTL(ctx context.Context, tag, blob string, data []byte, ttl time.Duration) error {
	if c.store == nil {
		return &Error{Op: "put", Tag: tag, Blob: blob, Err: ErrNotConnected}
	}

	if err := c.store.Set(ctx, MakeKey(c.config.KeyPrefix, tag, blob), data, ttl); err != nil {
		telemetry.CacheOperations.WithLabelValues("put", "error").Inc()
		return &Error{Op: "put", Tag: tag, Blob: blob, Err: err}
	}

	telemetry.CacheOperations.WithLabelValues("put", "ok").Inc()
	c.logger.Debug("cache put", "tag", tag, "blob", blob, "bytes", len(data))
	return nil
}

// Delete удаляет blob. Возвращает true, если ключ существовал.
func (c *BlobCache) Delete(ctx context.Context, tag, blob string) bool {
	if c.store == nil {
		return false
	}

	existed, err := c.store.Delete(ctx, MakeKey(c.config.KeyPrefix, tag, blob))
	if err != nil {
		c.logger.Warn("cache delete failed", "tag", tag, "blob", blob, "error", err)
		telemetry.CacheOperations.WithLabelValues("delete", "error").Inc()
		return false
	}

	telemetry.CacheOperations.WithLabelValues("delete", "ok").Inc()
	return existed
}

// InvalidateTag удаляет перечисленные blob'ы тега и возвращает число удалённых.
//
// Кэш не хранит индекс blob'ов по тегу: без blobNames это no-op,
// вызывающий сам отслеживает состав тега.
func (c *BlobCache) InvalidateTag(ctx context.Context, tag string, blobNames []string) (int, error) {
	if c.store == nil {
		return 0, &Error{Op: "invalidate", Tag: tag, Err: ErrNotConnected}
	}

	if len(blobNames) == 0 {
		c.logger.Debug("invalidate without blob names is a no-op", "tag", tag)
		return 0, nil
	}

	removed := 0
	for _, name := range blobNames {
		if c.Delete(ctx, tag, name) {
			removed++
		}
	}
	return removed, nil
}

// QueryKeys перечисляет закэшированные (tag, blob) по шаблону тега.
//
// Смотрит только первый узел. Hashed ключи не видны. Ошибки перечисления
// логируются и дают пустой результат.
func (c *BlobCache) QueryKeys(ctx context.Context, tagPattern string) ([]KeyRef, error) {
	if c.store == nil {
		return nil, &Error{Op: "query_keys", Err: ErrNotConnected}
	}

	refs := make([]KeyRef, 0)
	if c.lister == nil {
		return refs, nil
	}

	if len(c.config.Hosts) > 1 {
		c.logger.Warn("query_keys on sharded cache inspects only the first node",
			"node", c.config.Hosts[0].Addr(),
		)
	}

	keys, err := c.lister.ListKeys(ctx)
	if err != nil {
		c.logger.Error("query_keys failed", "error", err)
		telemetry.CacheOperations.WithLabelValues("query_keys", "error").Inc()
		return refs, nil
	}

	for _, key := range keys {
		tag, blob, ok := ParseKey(c.config.KeyPrefix, key)
		if !ok || !matchTag(tagPattern, tag) {
			continue
		}
		refs = append(refs, KeyRef{Tag: tag, Blob: blob})
	}

	telemetry.CacheOperations.WithLabelValues("query_keys", "ok").Inc()
	return refs, nil
}

// Stats возвращает текущие счётчики.
func (c *BlobCache) Stats() Stats {
	return Stats{Hits: c.hits, Misses: c.misses}
}

// HitRate возвращает hits/(hits+misses), 0 без операций.
func (c *BlobCache) HitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// ResetStats обнуляет счётчики.
func (c *BlobCache) ResetStats() {
	c.hits = 0
	c.misses = 0
}

// NodeCount возвращает количество узлов кэша.
func (c *BlobCache) NodeCount() int {
	return len(c.config.Hosts)
}

// KeyPrefix возвращает префикс ключей.
func (c *BlobCache) KeyPrefix() string {
	return c.config.KeyPrefix
}

// Close закрывает соединения. Повторный вызов безопасен.
func (c *BlobCache) Close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	c.lister = nil
	return err
}
