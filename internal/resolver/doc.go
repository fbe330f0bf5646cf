// Package resolver раскрывает дескрипторы источников в примитивные ссылки.
//
// Грамматика: <scheme>::<path-or-reference>.
//   - file::, hdf5::  — возвращаются как есть
//   - folder::<dir>   — все обычные файлы под dir, отсортированные, как file::
//   - mem::<tag>/<blob> — blob из кэша пишется во временный файл, file::
package resolver
