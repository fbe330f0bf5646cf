package resolver

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnsupportedScheme — дескриптор с неизвестной схемой.
	ErrUnsupportedScheme = errors.New("unsupported descriptor scheme")

	// ErrNotDirectory — цель folder:: не является директорией.
	ErrNotDirectory = errors.New("folder target is not a directory")

	// ErrNoCache — mem:: без настроенного кэша.
	ErrNoCache = errors.New("mem scheme requires a cache")

	// ErrMalformedReference — mem:: не в форме tag/blob.
	ErrMalformedReference = errors.New("mem reference must be tag/blob")

	// ErrBlobNotCached — blob для mem:: отсутствует в кэше.
	ErrBlobNotCached = errors.New("blob not found in cache")
)

// Error — ошибка раскрытия одного дескриптора.
type Error struct {
	Descriptor string
	Err        error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Descriptor, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}
