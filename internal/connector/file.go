package connector

import (
	"context"
	"fmt"
	"os"

	"github.com/shaiso/dash/internal/cache"
)

// FileReader — read/file: читает файл целиком и кладёт в кэш.
type FileReader struct {
	location string
}

// NewFileReader создаёт FileReader.
func NewFileReader(req *Request) (Connector, error) {
	return &FileReader{location: req.Step.Connection.File.Location}, nil
}

// Open ничего не делает: файл открывается в Execute.
func (c *FileReader) Open(context.Context) error { return nil }

// Execute читает файл.
func (c *FileReader) Execute(ctx context.Context, scope *cache.Scope) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	data, err := os.ReadFile(c.location)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	scope.Output(data)
	return nil
}

// Close ничего не делает.
func (c *FileReader) Close() error { return nil }

// FileWriter — write/file: записывает значение из кэша в файл,
// создавая или обрезая его.
type FileWriter struct {
	location string
}

// NewFileWriter создаёт FileWriter.
func NewFileWriter(req *Request) (Connector, error) {
	return &FileWriter{location: req.Step.Connection.File.Location}, nil
}

// Open ничего не делает.
func (c *FileWriter) Open(context.Context) error { return nil }

// Execute записывает файл.
// При промахе кэша файловая система не изменяется.
func (c *FileWriter) Execute(ctx context.Context, scope *cache.Scope) error {
	data, ok := scope.Input()
	if !ok {
		return fmt.Errorf("%w: key %q", ErrCacheMiss, scope.InputKey())
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := os.WriteFile(c.location, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// Close ничего не делает.
func (c *FileWriter) Close() error { return nil }
