package connector

import (
	"errors"
	"fmt"
)

// Ошибки коннекторов. Каждая ошибка шага оборачивает ровно один из них.
var (
	// ErrIO — ошибка доступа к файловой системе.
	ErrIO = errors.New("io error")

	// ErrNetwork — ошибка транспорта или неуспешный HTTP-статус.
	ErrNetwork = errors.New("network error")

	// ErrDatabase — ошибка подключения, запроса или пустой результат.
	ErrDatabase = errors.New("database error")

	// ErrProcess — процесс не запустился или завершился с ненулевым кодом.
	ErrProcess = errors.New("process error")

	// ErrCacheMiss — в кэше нет значения, которое ожидает шаг.
	ErrCacheMiss = errors.New("cache miss")

	// ErrNotImplemented — комбинация направления и среды объявлена, но не реализована.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupported — для комбинации направления и среды нет коннектора.
	ErrUnsupported = errors.New("unsupported step")
)

// HTTPError — неуспешный HTTP-ответ.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %s", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %s: %s", e.Method, e.URL, e.Status, e.Body)
}

// ExitError — процесс завершился с ненулевым кодом.
type ExitError struct {
	Program string
	Code    int
	Stderr  string
}

// Error реализует интерфейс error.
func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Program, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Program, e.Code, e.Stderr)
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
