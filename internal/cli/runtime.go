package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SIslamMun/AgentFactory/internal/bridge"
	"github.com/SIslamMun/AgentFactory/internal/cache"
	"github.com/SIslamMun/AgentFactory/internal/config"
	"github.com/SIslamMun/AgentFactory/internal/environment"
	"github.com/SIslamMun/AgentFactory/internal/mq"
	"github.com/SIslamMun/AgentFactory/internal/repo"
	"github.com/SIslamMun/AgentFactory/internal/resolver"
)

// Runtime лениво поднимает компоненты процесса по конфигурации.
//
// Каждая команда берёт только то, что ей нужно: ping не трогает кэш,
// cache keys не подключается к bridge.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	bridge *bridge.Client
	cache  *cache.BlobCache
	pool   *pgxpool.Pool
	mqConn *mq.Connection
}

// NewRuntime создаёт Runtime.
func NewRuntime(cfg *config.Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{cfg: cfg, logger: logger}
}

// Config возвращает конфигурацию процесса.
func (r *Runtime) Config() *config.Config {
	return r.cfg
}

// Bridge возвращает подключённый bridge-клиент.
func (r *Runtime) Bridge(ctx context.Context) (*bridge.Client, error) {
	if r.bridge != nil {
		return r.bridge, nil
	}

	bcfg := r.cfg.Bridge
	bcfg.Logger = r.logger
	client := bridge.New(bcfg)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	r.bridge = client
	return client, nil
}

// Cache возвращает подключённый кэш.
func (r *Runtime) Cache(ctx context.Context) (*cache.BlobCache, error) {
	if r.cache != nil {
		return r.cache, nil
	}

	ccfg := r.cfg.Cache
	ccfg.Logger = r.logger
	c := cache.New(ccfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	r.cache = c
	return c, nil
}

// Environment собирает окружение поверх bridge и кэша.
func (r *Runtime) Environment(ctx context.Context) (*environment.Environment, error) {
	client, err := r.Bridge(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect bridge: %w", err)
	}
	c, err := r.Cache(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}

	rcfg := r.cfg.Resolver
	rcfg.Cache = c
	rcfg.Logger = r.logger

	return environment.New(environment.Config{
		Storage:  client,
		Cache:    c,
		Resolver: resolver.New(rcfg),
		Logger:   r.logger,
	}), nil
}

// RunRepo возвращает репозиторий истории. Без DB_URL — nil без ошибки.
func (r *Runtime) RunRepo(ctx context.Context) (*repo.RunRepo, error) {
	if r.cfg.DBURL == "" {
		return nil, nil
	}
	if r.pool == nil {
		pool, err := repo.NewPool(ctx, r.cfg.DBURL)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		r.pool = pool
	}
	return repo.NewRunRepo(r.pool), nil
}

// MQ возвращает соединение с RabbitMQ. Без RABBITMQ_URL — nil без ошибки.
func (r *Runtime) MQ(ctx context.Context) (*mq.Connection, error) {
	if r.cfg.RabbitMQURL == "" {
		return nil, nil
	}
	if r.mqConn == nil {
		conn, err := mq.NewConnection(r.cfg.RabbitMQURL, r.logger)
		if err != nil {
			return nil, err
		}
		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		r.mqConn = conn
	}
	return r.mqConn, nil
}

// Close освобождает всё, что было поднято.
func (r *Runtime) Close() {
	if r.bridge != nil {
		r.bridge.Close()
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			r.logger.Warn("close cache", "error", err)
		}
	}
	if r.pool != nil {
		r.pool.Close()
	}
	if r.mqConn != nil {
		if err := r.mqConn.Close(); err != nil {
			r.logger.Warn("close amqp", "error", err)
		}
	}
}

// ServeMetrics отдаёт /metrics до отмены ctx. Пустой addr — ничего не делает.
func ServeMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
