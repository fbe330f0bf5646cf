package resolver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Схемы дескрипторов.
const (
	SchemeFile   = "file::"
	SchemeHDF5   = "hdf5::"
	SchemeFolder = "folder::"
	SchemeMem    = "mem::"
)

// DefaultTempDir — каталог для файлов, восстановленных из кэша.
var DefaultTempDir = filepath.Join(os.TempDir(), "agent-factory", "uri-cache")

// passThrough — схемы, которые storage понимает сам.
var passThrough = []string{SchemeFile, SchemeHDF5}

// BlobSource — источник blob'ов для mem::. Реализуется cache.BlobCache.
type BlobSource interface {
	Get(ctx context.Context, tag, blob string) ([]byte, error)
}

// Config — конфигурация Resolver.
type Config struct {
	// Cache — источник для mem::. Nil — mem:: недоступна.
	Cache BlobSource

	// TempDir — каталог для временных файлов mem::.
	TempDir string

	Logger *slog.Logger
}

// Resolver раскрывает дескрипторы в список примитивных ссылок.
type Resolver struct {
	cache   BlobSource
	tempDir string
	logger  *slog.Logger
}

// New создаёт Resolver.
func New(cfg Config) *Resolver {
	if cfg.TempDir == "" {
		cfg.TempDir = DefaultTempDir
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		cache:   cfg.Cache,
		tempDir: cfg.TempDir,
		logger:  cfg.Logger.With("component", "resolver"),
	}
}

// Resolve раскрывает дескрипторы в плоский список с сохранением порядка.
func (r *Resolver) Resolve(ctx context.Context, descriptors ...string) ([]string, error) {
	var out []string
	for _, d := range descriptors {
		refs, err := r.resolveOne(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, descriptor string) ([]string, error) {
	switch {
	case strings.HasPrefix(descriptor, SchemeFolder):
		return r.resolveFolder(descriptor)
	case strings.HasPrefix(descriptor, SchemeMem):
		return r.resolveMem(ctx, descriptor)
	}

	for _, scheme := range passThrough {
		if strings.HasPrefix(descriptor, scheme) {
			return []string{descriptor}, nil
		}
	}
	return nil, &Error{Descriptor: descriptor, Err: ErrUnsupportedScheme}
}

// resolveFolder: folder::<dir> → file:: для каждого обычного файла.
// Symlink на обычный файл включается, в symlink на каталог обход не заходит.
func (r *Resolver) resolveFolder(descriptor string) ([]string, error) {
	dir := strings.TrimPrefix(descriptor, SchemeFolder)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &Error{Descriptor: descriptor, Err: ErrNotDirectory}
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isRegularFile(path, d) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Descriptor: descriptor, Err: err}
	}

	if len(files) == 0 {
		r.logger.Warn("folder resolved to zero files", "dir", dir)
		return nil, nil
	}

	sort.Strings(files)
	refs := make([]string, len(files))
	for i, f := range files {
		refs[i] = SchemeFile + f
	}
	return refs, nil
}

func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// resolveMem: mem::<tag>/<blob> → временный файл с содержимым blob'а.
func (r *Resolver) resolveMem(ctx context.Context, descriptor string) ([]string, error) {
	if r.cache == nil {
		return nil, &Error{Descriptor: descriptor, Err: ErrNoCache}
	}

	tag, blob, ok := strings.Cut(strings.TrimPrefix(descriptor, SchemeMem), "/")
	if !ok || tag == "" || blob == "" {
		return nil, &Error{Descriptor: descriptor, Err: ErrMalformedReference}
	}

	data, err := r.cache.Get(ctx, tag, blob)
	if err != nil || len(data) == 0 {
		return nil, &Error{
			Descriptor: descriptor,
			Err:        fmt.Errorf("%w: tag=%s blob=%s", ErrBlobNotCached, tag, blob),
		}
	}

	if err := os.MkdirAll(r.tempDir, 0o700); err != nil {
		return nil, &Error{Descriptor: descriptor, Err: err}
	}

	path := filepath.Join(r.tempDir, TempFileName(tag, blob))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, &Error{Descriptor: descriptor, Err: err}
	}

	r.logger.Debug("mem blob materialized", "tag", tag, "blob", blob, "path", path)
	return []string{SchemeFile + path}, nil
}

// TempFileName строит имя временного файла для (tag, blob).
//
// Обе части очищаются от разделителей пути; суффикс xxhash от исходной
// пары различает пары, совпавшие после очистки.
func TempFileName(tag, blob string) string {
	sum := xxhash.Sum64String(tag + "\x00" + blob)
	return sanitize(tag) + "__" + sanitize(blob) + "-" + strconv.FormatUint(sum, 16)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/', r == '\\', r == ':', r == 0:
			return '_'
		case r < 0x20:
			return '_'
		}
		return r
	}, s)
}
