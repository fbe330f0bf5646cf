// Package config собирает конфигурацию компонентов из переменных окружения.
//
// Перед чтением можно подгрузить .env файл: значения из окружения
// процесса имеют приоритет над файлом.
package config
