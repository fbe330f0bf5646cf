package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/SIslamMun/AgentFactory/internal/bridge"
	"github.com/SIslamMun/AgentFactory/internal/cache"
	"github.com/SIslamMun/AgentFactory/internal/resolver"
)

// Переменные окружения.
const (
	EnvBridgeEndpoints      = "BRIDGE_ENDPOINTS"
	EnvBridgeConnectTimeout = "BRIDGE_CONNECT_TIMEOUT"
	EnvBridgeRequestTimeout = "BRIDGE_REQUEST_TIMEOUT"
	EnvCacheBackend         = "CACHE_BACKEND"
	EnvCacheHosts           = "CACHE_HOSTS"
	EnvCacheKeyPrefix       = "CACHE_KEY_PREFIX"
	EnvCacheTTL             = "CACHE_TTL"
	EnvResolverTempDir      = "RESOLVER_TEMP_DIR"
	EnvDBURL                = "DB_URL"
	EnvRabbitMQURL          = "RABBITMQ_URL"
	EnvMetricsAddr          = "METRICS_ADDR"
)

// ErrInvalidValue — значение переменной не разбирается.
var ErrInvalidValue = errors.New("invalid config value")

// Config — собранная конфигурация процесса.
type Config struct {
	Bridge   bridge.Config
	Cache    cache.Config
	Resolver resolver.Config

	// DBURL — строка подключения Postgres. Пусто — история не пишется.
	DBURL string

	// RabbitMQURL — адрес RabbitMQ. Пусто — события не публикуются.
	RabbitMQURL string

	// MetricsAddr — адрес для /metrics. Пусто — метрики не отдаются.
	MetricsAddr string
}

// LookupFunc возвращает значение переменной и признак её наличия.
type LookupFunc func(key string) (string, bool)

// Load подгружает envFile (если задан и существует) и читает окружение процесса.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup собирает Config из произвольного источника переменных.
func FromLookup(lookup LookupFunc) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := &Config{
		DBURL:       get(EnvDBURL),
		RabbitMQURL: get(EnvRabbitMQURL),
		MetricsAddr: get(EnvMetricsAddr),
	}

	if v := get(EnvBridgeEndpoints); v != "" {
		cfg.Bridge.Endpoints = splitList(v)
	}

	var err error
	if cfg.Bridge.ConnectTimeout, err = duration(EnvBridgeConnectTimeout, get(EnvBridgeConnectTimeout)); err != nil {
		return nil, err
	}
	if cfg.Bridge.RequestTimeout, err = duration(EnvBridgeRequestTimeout, get(EnvBridgeRequestTimeout)); err != nil {
		return nil, err
	}

	cfg.Cache.Backend = cache.Backend(strings.ToLower(get(EnvCacheBackend)))
	switch cfg.Cache.Backend {
	case "", cache.BackendMemcached, cache.BackendRedis:
	default:
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, EnvCacheBackend, cfg.Cache.Backend)
	}

	if v := get(EnvCacheHosts); v != "" {
		hosts, err := cache.ParseHosts(v, cache.DefaultPort(cfg.Cache.Backend))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, EnvCacheHosts, err)
		}
		cfg.Cache.Hosts = hosts
	}
	cfg.Cache.KeyPrefix = get(EnvCacheKeyPrefix)
	if cfg.Cache.DefaultTTL, err = duration(EnvCacheTTL, get(EnvCacheTTL)); err != nil {
		return nil, err
	}

	cfg.Resolver.TempDir = get(EnvResolverTempDir)

	return cfg, nil
}

// duration принимает "30s", "5m" или целое число секунд. Пусто — 0.
func duration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	var secs int64
	if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && fmt.Sprint(secs) == v {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
