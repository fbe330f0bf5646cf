package mq

import "errors"

// Ошибки mq.
var (
	// ErrNoChannel — канал AMQP недоступен (нет соединения или идёт reconnect).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrClosed — соединение закрыто через Close.
	ErrClosed = errors.New("amqp connection closed")
)
