// Package scheduler запускает pipeline по cron-расписанию.
//
// Запуски идут строго по одному: если выполнение затянулось дольше
// интервала, пропущенные срабатывания не догоняются, следующее время
// считается от момента завершения. Pipeline разделяет stateful окружение,
// поэтому параллельных прогонов быть не должно.
package scheduler
