// Package worker описывает контракт воркера pipeline и его варианты.
//
// Воркер (Agent) получает наблюдение, возвращает рассуждение (Think)
// и действие для окружения (Act). Registry связывает роли шагов
// pipeline с воркерами.
//
// Варианты:
//   - Fixed     — одно действие, параметры из наблюдения
//   - Constrain — обёртка над любым Agent, ограничивающая набор действий
//     (Ingestor, Retriever)
//
// Воркеры на естественном языке подключаются снаружи через тот же
// интерфейс Agent.
package worker
