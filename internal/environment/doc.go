// Package environment — окружение, в котором воркеры pipeline выполняют
// действия над storage.
//
// Environment связывает bridge-клиент, BlobCache и Resolver:
//
//	assimilate — раскрыть дескрипторы, bundle, write-through в кэш
//	query      — перечислить ключи кэша (fallback на bridge query)
//	retrieve   — cache-aside чтение blob'а
//	prune      — вытеснить blob'ы из кэша (данные в storage остаются)
//	destroy    — удалить теги в storage и инвалидировать кэш
//	list_blobs — перечислить blob'ы через bridge
//
// Каждый шаг возвращает награду (RewardConfig) для оценки эпизода.
package environment
