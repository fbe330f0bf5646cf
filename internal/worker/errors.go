package worker

import "errors"

// Ошибки воркеров.
var (
	// ErrUnknownRole — для роли не зарегистрирован воркер.
	ErrUnknownRole = errors.New("unknown worker role")

	// ErrEmptyRole — попытка зарегистрировать воркер без роли.
	ErrEmptyRole = errors.New("worker role is empty")

	// ErrNoBackend — Constrain без backend-агента.
	ErrNoBackend = errors.New("constrained worker has no backend")
)
