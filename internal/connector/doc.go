// Package connector содержит реализации шагов pipeline.
//
// Каждая пара (направление, среда) обслуживается одним коннектором:
//
//	read/file        → FileReader
//	write/file       → FileWriter
//	read/http        → HTTPConnector
//	write/http       → HTTPConnector
//	read/postgresql  → PostgresReader
//	write/postgresql → PostgresWriter (ErrNotImplemented)
//	read/amqp        → AMQPReader
//	write/amqp       → AMQPWriter
//	run/process      → Process
//
// Коннектор создаётся на один шаг, захватывает ресурсы в Open
// и освобождает их в Close. С кэшем он работает только через cache.Scope.
//
// Все ошибки оборачивают один из sentinel (ErrIO, ErrNetwork, ErrDatabase,
// ErrProcess, ErrCacheMiss, ErrNotImplemented), что позволяет
// диспетчеру классифицировать их через errors.Is.
package connector
