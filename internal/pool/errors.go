package pool

import "errors"

// Ошибки worker pool.
var (
	// ErrQueueFull — очередь класса достигла настроенной глубины.
	ErrQueueFull = errors.New("queue full")

	// ErrNoTask — нет задач, которые воркер может обслужить.
	ErrNoTask = errors.New("no task available")

	// ErrUnknownWorker — воркер не зарегистрирован.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrUnknownLease — лиза не найдена (истекла и была reclaimed).
	ErrUnknownLease = errors.New("unknown lease")

	// ErrUnknownTask — task не найден в пуле.
	ErrUnknownTask = errors.New("unknown task")

	// ErrUnknownClass — класс задачи не известен системе.
	ErrUnknownClass = errors.New("unknown task class")

	// ErrPoolStopped — пул остановлен.
	ErrPoolStopped = errors.New("pool stopped")
)
