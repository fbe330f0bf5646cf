package mq

import "time"

// backoff — экспоненциальная задержка между попытками reconnect.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, next: initial}
}

// Next возвращает текущую задержку и удваивает следующую, не выше max.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.max)
	return d
}

// Reset возвращает задержку к начальной.
func (b *backoff) Reset() {
	b.next = b.initial
}
