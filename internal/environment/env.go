package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/SIslamMun/AgentFactory/internal/bridge"
	"github.com/SIslamMun/AgentFactory/internal/cache"
	"github.com/SIslamMun/AgentFactory/internal/domain"
	"github.com/SIslamMun/AgentFactory/internal/resolver"
	"github.com/SIslamMun/AgentFactory/internal/telemetry"
)

// Действия окружения.
const (
	ActionAssimilate = "assimilate"
	ActionQuery      = "query"
	ActionRetrieve   = "retrieve"
	ActionPrune      = "prune"
	ActionDestroy    = "destroy"
	ActionListBlobs  = "list_blobs"
)

// DefaultFormat — формат bundle по умолчанию.
const DefaultFormat = "arrow"

// Storage — операции storage-сервиса. Реализуется *bridge.Client.
type Storage interface {
	Bundle(ctx context.Context, params bridge.BundleParams) (*bridge.BundleResult, error)
	Query(ctx context.Context, tagPattern, blobPattern string) (*bridge.QueryResult, error)
	Retrieve(ctx context.Context, tag, blob string) (*bridge.RetrieveResult, error)
	Destroy(ctx context.Context, tags ...string) (*bridge.DestroyResult, error)
	Close()
}

// BlobCache — операции кэша. Реализуется *cache.BlobCache.
type BlobCache interface {
	Get(ctx context.Context, tag, blob string) ([]byte, error)
	Put(ctx context.Context, tag, blob string, data []byte) error
	InvalidateTag(ctx context.Context, tag string, blobNames []string) (int, error)
	QueryKeys(ctx context.Context, tagPattern string) ([]cache.KeyRef, error)
	Stats() cache.Stats
	HitRate() float64
	ResetStats()
	Close() error
}

// Resolver раскрывает дескрипторы источников. Реализуется *resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, descriptors ...string) ([]string, error)
}

// RewardConfig — награды за исходы шагов.
type RewardConfig struct {
	CacheHit   float64
	CacheMiss  float64
	Assimilate float64
	Query      float64
	Prune      float64
	Error      float64
}

// DefaultRewards возвращает стандартные награды.
func DefaultRewards() RewardConfig {
	return RewardConfig{
		CacheHit:   0.3,
		CacheMiss:  0.2,
		Assimilate: 0.1,
		Query:      0.1,
		Prune:      0.05,
		Error:      -0.5,
	}
}

// Config — конфигурация Environment.
type Config struct {
	Storage  Storage
	Cache    BlobCache
	Resolver Resolver

	// DefaultFormat — формат для assimilate без format.
	DefaultFormat string

	// Rewards — награды. Nil — DefaultRewards().
	Rewards *RewardConfig

	Logger *slog.Logger
}

// Environment — stateful окружение поверх storage и кэша.
//
// Разделяется всеми шагами одного прогона pipeline. Не синхронизирован.
type Environment struct {
	storage  Storage
	cache    BlobCache
	resolver Resolver
	format   string
	rewards  RewardConfig
	logger   *slog.Logger

	task domain.TaskSpec
	last domain.Observation
}

// New создаёт Environment.
func New(cfg Config) *Environment {
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = DefaultFormat
	}
	rewards := DefaultRewards()
	if cfg.Rewards != nil {
		rewards = *cfg.Rewards
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.New(resolver.Config{Cache: cfg.Cache, Logger: cfg.Logger})
	}

	return &Environment{
		storage:  cfg.Storage,
		cache:    cfg.Cache,
		resolver: cfg.Resolver,
		format:   cfg.DefaultFormat,
		rewards:  rewards,
		logger:   cfg.Logger.With("component", "environment"),
		last:     domain.Observation{Text: "Environment not yet reset."},
	}
}

// Reset начинает новый эпизод и обнуляет статистику кэша.
func (e *Environment) Reset(task domain.TaskSpec) domain.Observation {
	e.task = task
	e.cache.ResetStats()
	e.last = domain.Observation{
		Text: "Environment ready. Task: " + task.Instruction,
		Data: map[string]any{"task_id": task.ID},
	}
	return e.last
}

// Step выполняет действие.
//
// При ошибке возвращает и результат с наградой Error, и саму ошибку:
// решение, прерывать ли pipeline, принимает вызывающий.
func (e *Environment) Step(ctx context.Context, action domain.Action) (domain.StepResult, error) {
	var (
		res domain.StepResult
		err error
	)

	switch action.Name {
	case ActionAssimilate:
		res, err = e.assimilate(ctx, action)
	case ActionQuery:
		res, err = e.query(ctx, action)
	case ActionRetrieve:
		res, err = e.retrieve(ctx, action)
	case ActionPrune:
		res, err = e.prune(ctx, action)
	case ActionDestroy:
		res, err = e.destroy(ctx, action)
	case ActionListBlobs:
		res, err = e.listBlobs(ctx, action)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownAction, action.Name)
	}

	if err != nil {
		e.loggerFor(ctx).Warn("environment step failed", "action", action.Name, "error", err)
		e.last = domain.Observation{Text: "Error: " + err.Error()}
		return domain.StepResult{Observation: e.last, Reward: e.rewards.Error}, err
	}

	e.last = res.Observation
	return res, nil
}

// loggerFor берёт логгер шага из ctx, если оркестратор его положил.
func (e *Environment) loggerFor(ctx context.Context) *slog.Logger {
	return telemetry.FromContext(ctx, e.logger)
}

// Observe возвращает последнее наблюдение.
func (e *Environment) Observe() domain.Observation {
	return e.last
}

// Task возвращает текущую задачу.
func (e *Environment) Task() domain.TaskSpec {
	return e.task
}

// HitRate возвращает долю попаданий кэша в текущем эпизоде.
func (e *Environment) HitRate() float64 {
	return e.cache.HitRate()
}

// CacheStats возвращает счётчики кэша текущего эпизода.
func (e *Environment) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// Close закрывает storage и кэш.
func (e *Environment) Close() error {
	if e.storage != nil {
		e.storage.Close()
	}
	return e.cache.Close()
}

func (e *Environment) assimilate(ctx context.Context, a domain.Action) (domain.StepResult, error) {
	src, err := stringList(a, "src", true)
	if err != nil {
		return domain.StepResult{}, err
	}
	dst, err := requireString(a, "dst")
	if err != nil {
		return domain.StepResult{}, err
	}
	format := optionalString(a, "format", e.format)

	resolved, err := e.resolver.Resolve(ctx, src...)
	if err != nil {
		return domain.StepResult{}, err
	}

	result, err := e.storage.Bundle(ctx, bridge.BundleParams{Src: resolved, Dst: dst, Format: format})
	if err != nil {
		return domain.StepResult{}, err
	}

	// Write-through: локальные файлы кладём в кэш под базовым именем
	cached := 0
	for _, ref := range resolved {
		path, ok := strings.CutPrefix(ref, resolver.SchemeFile)
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			e.loggerFor(ctx).Warn("write-through read failed", "path", path, "error", err)
			continue
		}
		if err := e.cache.Put(ctx, dst, filepath.Base(path), data); err != nil {
			e.loggerFor(ctx).Warn("write-through cache failed", "path", path, "error", err)
			continue
		}
		cached++
	}

	tag := result.Tag
	if tag == "" {
		tag = dst
	}

	return domain.StepResult{
		Observation: domain.Observation{
			Text: fmt.Sprintf("Assimilated %d file(s) into tag '%s'. Cached %d blob(s).", len(resolved), dst, cached),
			Data: map[string]any{"tag": tag, "files": len(resolved), "cached": cached},
		},
		Reward: e.rewards.Assimilate,
	}, nil
}

func (e *Environment) query(ctx context.Context, a domain.Action) (domain.StepResult, error) {
	tagPattern := optionalString(a, "tag_pattern", "*")
	blobPattern := optionalString(a, "blob_pattern", "*")

	refs, err := e.cache.QueryKeys(ctx, tagPattern)
	if err == nil {
		matches := make([]any, len(refs))
		for i, r := range refs {
			matches[i] = map[string]any{"tag": r.Tag, "blob_name": r.Blob}
		}
		return domain.StepResult{
			Observation: domain.Observation{
				Text: fmt.Sprintf("Query returned %d match(es) from cache.", len(matches)),
				Data: map[string]any{"matches": matches},
			},
			Reward: e.rewards.Query,
		}, nil
	}

	e.loggerFor(ctx).Warn("cache query failed, falling back to storage", "error", err)
	result, err := e.storage.Query(ctx, tagPattern, blobPattern)
	if err != nil {
		return domain.StepResult{}, err
	}

	matches := bridgeMatches(result)
	return domain.StepResult{
		Observation: domain.Observation{
			Text: fmt.Sprintf("Query returned %d match(es).", len(matches)),
			Data: map[string]any{"matches": matches},
		},
		Reward: e.rewards.Query,
	}, nil
}

func (e *Environment) retrieve(ctx context.Context, a domain.Action) (domain.StepResult, error) {
	tag, err := requireString(a, "tag")
	if err != nil {
		return domain.StepResult{}, err
	}
	blob, err := requireString(a, "blob_name")
	if err != nil {
		return domain.StepResult{}, err
	}

	if data, err := e.cache.Get(ctx, tag, blob); err == nil {
		return domain.StepResult{
			Observation: domain.Observation{
				Text: fmt.Sprintf("Retrieved '%s' from cache (hit).", blob),
				Data: map[string]any{"tag": tag, "blob_name": blob, "cache_hit": true, "size": len(data)},
			},
			Reward: e.rewards.CacheHit,
		}, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		return domain.StepResult{}, err
	}

	result, err := e.storage.Retrieve(ctx, tag, blob)
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found() {
		return domain.StepResult{}, fmt.Errorf("%w: %s/%s", ErrBlobNotFound, tag, blob)
	}
	data, err := result.Bytes()
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("retrieve %s/%s: %w", tag, blob, err)
	}

	if len(data) > 0 {
		if err := e.cache.Put(ctx, tag, blob, data); err != nil {
			return domain.StepResult{}, err
		}
	}

	return domain.StepResult{
		Observation: domain.Observation{
			Text: fmt.Sprintf("Retrieved '%s' from storage (cache miss, now cached).", blob),
			Data: map[string]any{"tag": tag, "blob_name": blob, "cache_hit": false, "size": len(data)},
		},
		Reward: e.rewards.CacheMiss,
	}, nil
}

func (e *Environment) prune(ctx context.Context, a domain.Action) (domain.StepResult, error) {
	tag, err := requireString(a, "tag")
	if err != nil {
		return domain.StepResult{}, err
	}
	names, err := stringList(a, "blob_names", false)
	if err != nil {
		return domain.StepResult{}, err
	}
	if len(names) == 0 {
		return domain.StepResult{}, fmt.Errorf("%w: prune requires \"blob_names\", use destroy to delete whole tags", ErrMissingParam)
	}

	evicted, err := e.cache.InvalidateTag(ctx, tag, names)
	if err != nil {
		return domain.StepResult{}, err
	}

	return domain.StepResult{
		Observation: domain.Observation{
			Text: fmt.Sprintf("Pruned %d blob(s) from cache. Data remains in storage.", evicted),
			Data: map[string]any{"tag": tag, "pruned": names, "evicted": evicted},
		},
		Reward: e.rewards.Prune,
	}, nil
}

func (e *Environment) destroy(ctx context.Context, a domain.Action) (domain.StepResult, error) {
	tags, err := stringList(a, "tags", true)
	if err != nil {
		return domain.StepResult{}, err
	}

	// Состав тегов в кэше нужно узнать до удаления из storage
	cached := make(map[string][]string, len(tags))
	for _, tag := range tags {
		refs, err := e.cache.QueryKeys(ctx, tag)
		if err != nil {
			e.loggerFor(ctx).Warn("could not enumerate cached blobs", "tag", tag, "error", err)
			continue
		}
		for _, r := range refs {
			if r.Tag == tag {
				cached[tag] = append(cached[tag], r.Blob)
			}
		}
	}

	result, err := e.storage.Destroy(ctx, tags...)
	if err != nil {
		return domain.StepResult{}, err
	}

	invalidated := 0
	for _, tag := range tags {
		if len(cached[tag]) == 0 {
			continue
		}
		n, err := e.cache.InvalidateTag(ctx, tag, cached[tag])
		if err != nil {
			return domain.StepResult{}, err
		}
		invalidated += n
	}

	return domain.StepResult{
		Observation: domain.Observation{
			Text: fmt.Sprintf("Destroyed %d tag(s) from storage. Invalidated %d cache entries.", len(result.Destroyed), invalidated),
			Data: map[string]any{"destroyed": result.Destroyed, "cache_invalidated": invalidated},
		},
		Reward: e.rewards.Prune,
	}, nil
}

func (e *Environment) listBlobs(ctx context.Context, a domain.Action) (domain.StepResult, error) {
	result, err := e.storage.Query(ctx, optionalString(a, "tag_pattern", "*"), "*")
	if err != nil {
		return domain.StepResult{}, err
	}

	matches := bridgeMatches(result)
	return domain.StepResult{
		Observation: domain.Observation{
			Text: fmt.Sprintf("Listed blobs: %d match(es).", len(matches)),
			Data: map[string]any{"matches": matches},
		},
		Reward: e.rewards.Query,
	}, nil
}

// bridgeMatches приводит ответ bridge к тому же виду, что и ответ кэша.
func bridgeMatches(res *bridge.QueryResult) []any {
	matches := make([]any, len(res.Matches))
	for i, m := range res.Matches {
		entry := map[string]any{"tag": m.Tag, "blob_name": m.Blob}
		if m.Size != nil {
			entry["size"] = *m.Size
		}
		matches[i] = entry
	}
	return matches
}
