// Package cache реализует cache-aside слой для blob'ов storage-сервиса.
//
// Основные компоненты:
//   - keys.go      — кодек ключей prefix:tag:blob с hashed fallback
//   - cache.go     — BlobCache: get/put/delete, статистика hit/miss
//   - memcached.go — backend на gomemcache, шардирование rendezvous-хешем
//   - cachedump.go — перечисление ключей через stats cachedump
//   - redis.go     — backend на go-redis (Client или Ring), SCAN для ключей
//
// Чтение никогда не возвращает транспортные ошибки: сбой считается промахом.
// Запись всегда возвращает ошибку (*Error).
//
// BlobCache не синхронизирован для конкурентного использования: вызывающий
// сериализует вызовы сам или держит отдельные экземпляры.
package cache
