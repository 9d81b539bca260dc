package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CurrentKey — ключ кэша с последним произведённым значением.
//
// Каждый шаг, который производит данные (read, run), пишет результат
// и под собственным ключом, и под CurrentKey. Шаги-потребители без
// явного input читают именно его.
const CurrentKey = "_"

// StepKind — направление шага.
type StepKind string

const (
	// StepKindRead — чтение из источника в кэш.
	StepKindRead StepKind = "read"

	// StepKindWrite — запись из кэша в приёмник.
	StepKindWrite StepKind = "write"

	// StepKindRun — запуск внешнего процесса.
	StepKindRun StepKind = "run"
)

// Produces возвращает true, если шаг кладёт результат в кэш.
func (k StepKind) Produces() bool {
	return k == StepKindRead || k == StepKindRun
}

// Medium — среда, с которой работает шаг.
type Medium string

const (
	MediumFile     Medium = "file"
	MediumHTTP     Medium = "http"
	MediumPostgres Medium = "postgresql"
	MediumAMQP     Medium = "amqp"

	// MediumProcess — среда run-шагов.
	MediumProcess Medium = "process"
)

// HTTPMethod — закрытый набор HTTP-методов, допустимых в конфигурации.
type HTTPMethod string

const (
	HTTPMethodGet    HTTPMethod = "GET"
	HTTPMethodPost   HTTPMethod = "POST"
	HTTPMethodPut    HTTPMethod = "PUT"
	HTTPMethodPatch  HTTPMethod = "PATCH"
	HTTPMethodDelete HTTPMethod = "DELETE"
)

// ParseHTTPMethod парсит метод без учёта регистра.
// Пустая строка возвращает пустой метод (значение по умолчанию выбирает коннектор).
func ParseHTTPMethod(s string) (HTTPMethod, error) {
	if s == "" {
		return "", nil
	}
	switch m := HTTPMethod(strings.ToUpper(s)); m {
	case HTTPMethodGet, HTTPMethodPost, HTTPMethodPut, HTTPMethodPatch, HTTPMethodDelete:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported http method %q", s)
	}
}

// FileConfig — путь в файловой системе.
type FileConfig struct {
	Location string `yaml:"location" json:"location"`
}

// HTTPConfig — конфигурация HTTP-коннектора.
type HTTPConfig struct {
	URL     string            `json:"url"`
	Method  HTTPMethod        `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// DatabaseConfig — DSN и запрос для PostgreSQL.
type DatabaseConfig struct {
	Connection string `yaml:"connection" json:"connection"`
	Query      string `yaml:"query" json:"query"`
}

// AMQPConfig — конфигурация RabbitMQ.
//
// Для read используется Queue, для write — Exchange и RoutingKey.
type AMQPConfig struct {
	URL         string `yaml:"url" json:"url"`
	Queue       string `yaml:"queue" json:"queue,omitempty"`
	Exchange    string `yaml:"exchange" json:"exchange,omitempty"`
	RoutingKey  string `yaml:"routing_key" json:"routing_key,omitempty"`
	ContentType string `yaml:"content_type" json:"content_type,omitempty"`
}

// Connection — конфигурация read/write шага. Заполнено ровно одно поле.
type Connection struct {
	File     *FileConfig     `json:"file,omitempty"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`
	Database *DatabaseConfig `json:"postgresql,omitempty"`
	AMQP     *AMQPConfig     `json:"amqp,omitempty"`
}

// Medium возвращает среду подключения.
// Пустая строка означает, что ни одно поле не заполнено.
func (c Connection) Medium() Medium {
	switch {
	case c.File != nil:
		return MediumFile
	case c.HTTP != nil:
		return MediumHTTP
	case c.Database != nil:
		return MediumPostgres
	case c.AMQP != nil:
		return MediumAMQP
	default:
		return ""
	}
}

// Step — один шаг pipeline.
//
// Step создаётся загрузчиком конфигурации и после валидации
// только читается диспетчером.
type Step struct {
	// Name — необязательное имя шага. Используется как ключ кэша.
	Name string `json:"name,omitempty"`

	// Env — переменные окружения для run-шага.
	Env map[string]string `json:"env,omitempty"`

	// Kind — направление шага.
	Kind StepKind `json:"kind"`

	// Connection — конфигурация read/write шага.
	Connection Connection `json:"connection,omitempty"`

	// Command — исполняемый файл run-шага. Без аргументов и без shell.
	Command string `json:"command,omitempty"`

	// Input — ключ кэша, который читает шаг. Пусто — CurrentKey.
	Input string `json:"input,omitempty"`

	// Timeout — таймаут шага. 0 — используется значение диспетчера.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Medium возвращает среду шага.
func (s *Step) Medium() Medium {
	if s.Kind == StepKindRun {
		return MediumProcess
	}
	return s.Connection.Medium()
}

// Key возвращает ключ кэша, под которым шаг публикует результат.
func (s *Step) Key(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return StepKey(index)
}

// InputKey возвращает ключ кэша, который читает шаг.
func (s *Step) InputKey() string {
	if s.Input != "" {
		return s.Input
	}
	return CurrentKey
}

// Label возвращает человекочитаемое описание шага для логов и ошибок.
func (s *Step) Label(index int) string {
	if s.Name != "" {
		return fmt.Sprintf("#%d %q", index, s.Name)
	}
	return "#" + strconv.Itoa(index)
}

// StepKey возвращает ключ кэша для безымянного шага.
func StepKey(index int) string {
	return stepKeyPrefix + strconv.Itoa(index)
}

const stepKeyPrefix = "step-"

// IsReservedKey сообщает, совпадает ли имя с ключом, который кэш
// назначает сам: CurrentKey или step-<i> безымянного шага.
func IsReservedKey(name string) bool {
	if name == CurrentKey {
		return true
	}
	digits, ok := strings.CutPrefix(name, stepKeyPrefix)
	if !ok || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Pipeline — упорядоченный список шагов и общее окружение.
type Pipeline struct {
	// Env — базовое окружение для всех run-шагов.
	Env map[string]string `json:"env,omitempty"`

	// Steps — шаги в порядке выполнения.
	Steps []Step `json:"steps"`
}
