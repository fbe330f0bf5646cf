// Package bridge — RPC-клиент storage-bridge с пулом peer'ов.
//
// Клиент держит по одному транспорту на каждый endpoint и распределяет
// вызовы round-robin по живым peer'ам. Сбой транспорта переводит peer
// в Dead, транспорт пересоздаётся, и вызов уходит на следующий peer.
// Число попыток ограничено числом живых peer'ов на момент вызова.
//
// Основные компоненты:
//   - client.go    — Client: Connect, типизированные вызовы, failover
//   - peer.go      — peer и его машина состояний Live/Dead
//   - protocol.go  — конверт {method, params, id} / {result, error, id}
//   - transport.go — Transport/Dialer и реализация на ZeroMQ REQ
//
// Client не синхронизирован: параллельные вызовы сериализуются снаружи.
package bridge
