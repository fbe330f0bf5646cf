package environment

import "errors"

// Ошибки окружения.
var (
	// ErrUnknownAction — действие не поддерживается.
	ErrUnknownAction = errors.New("unknown action")

	// ErrMissingParam — не передан обязательный параметр действия.
	ErrMissingParam = errors.New("missing action parameter")

	// ErrInvalidParam — параметр действия неверного типа.
	ErrInvalidParam = errors.New("invalid action parameter")

	// ErrBlobNotFound — blob нет ни в кэше, ни в storage.
	ErrBlobNotFound = errors.New("blob not found")
)
