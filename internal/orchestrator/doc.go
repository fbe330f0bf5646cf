// Package orchestrator выполняет pipeline поверх общего окружения.
//
// Для каждого шага в топологическом порядке DAG:
//   - разрешает inputs по контексту переменных
//   - строит наблюдение и проводит воркер роли через Think и Act
//   - отдаёт действие окружению и проецирует результат в StepOutput
//   - сохраняет StepOutput в контекст для следующих шагов
//
// В режиме fail-fast первая ошибка шага прерывает run. Иначе упавший шаг
// оставляет output с ключом "error", и выполнение продолжается.
package orchestrator
