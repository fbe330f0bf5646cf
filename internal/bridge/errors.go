package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrNotConnected — вызов до Connect().
	ErrNotConnected = errors.New("bridge client not connected")

	// ErrNoLivePeers — в пуле нет живых peer'ов.
	ErrNoLivePeers = errors.New("no live bridge peers")

	// ErrBadPong — ping вернул что-то кроме "pong".
	ErrBadPong = errors.New("unexpected ping reply")

	// ErrMalformedReply — ответ не является корректным конвертом.
	ErrMalformedReply = errors.New("malformed bridge reply")
)

// ConnectionError — ни один peer не смог обслужить запрос.
//
// При Connect содержит все недоступные endpoint'ы, при вызове —
// метод и последнюю причину отказа.
type ConnectionError struct {
	Method    string
	Endpoints []string
	Err       error
}

// Error реализует интерфейс error.
func (e *ConnectionError) Error() string {
	eps := strings.Join(e.Endpoints, ", ")
	if e.Method != "" {
		return fmt.Sprintf("all bridge peers failed for %q [%s]: %v", e.Method, eps, e.Err)
	}
	return fmt.Sprintf("all bridge endpoints failed [%s]: %v", eps, e.Err)
}

// Unwrap возвращает последнюю причину.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ApplicationError — bridge доступен, но сообщил об ошибке.
type ApplicationError struct {
	Method   string
	Endpoint string
	Message  string
}

// Error реализует интерфейс error.
func (e *ApplicationError) Error() string {
	return fmt.Sprintf("bridge error on %q at %s: %s", e.Method, e.Endpoint, e.Message)
}
