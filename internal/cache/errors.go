package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotConnected — операция до Connect().
	ErrNotConnected = errors.New("cache not connected")

	// ErrMiss — ключа нет в кэше (или значение пустое).
	ErrMiss = errors.New("cache miss")

	// ErrProbeFailed — smoke test при подключении не прошёл.
	ErrProbeFailed = errors.New("cache probe failed")

	// ErrUnknownBackend — неизвестный тип backend'а.
	ErrUnknownBackend = errors.New("unknown cache backend")

	// ErrNoHosts — не задано ни одного узла.
	ErrNoHosts = errors.New("no cache hosts configured")
)

// Error — ошибка операции кэша с указанием ключа.
type Error struct {
	Op   string // connect, put, delete, query_keys
	Tag  string
	Blob string
	Err  error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	if e.Tag != "" || e.Blob != "" {
		return fmt.Sprintf("cache %s %s/%s: %v", e.Op, e.Tag, e.Blob, e.Err)
	}
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}
