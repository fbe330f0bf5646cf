// Package engine содержит ядро pipeline: структуру и переменные.
//
// Включает:
//   - parser.go    — разбор PipelineSpec из YAML
//   - dag.go       — валидация графа шагов и топологический порядок (Kahn)
//   - variables.go — контекст переменных ${scope.key} одного прогона
//
// Engine не выполняет шаги: это делает orchestrator, который обходит
// DAG в порядке Order() и хранит outputs в Variables.
package engine
