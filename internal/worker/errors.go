package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownTaskType — нет executor'а для данного типа task.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrHTTPRequest — HTTP-вызов внешнего сервиса завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrRunnerStopped — runner остановлен.
	ErrRunnerStopped = errors.New("runner stopped")
)
