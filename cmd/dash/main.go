// dash — декларативный запуск pipeline из YAML-конфигурации.
//
// Использование:
//
//	dash [--config PATH] [--step-timeout DUR] [--json] [--metrics-file PATH] [command]
//
// Команды:
//
//	run         Выполнить pipeline один раз (по умолчанию)
//	validate    Проверить конфигурацию
//	schedule    Выполнять pipeline по расписанию
//	connectors  Список поддерживаемых шагов
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/dash/internal/cli"
	"github.com/shaiso/dash/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// graceful shutdown: отмена прерывает текущий шаг
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := telemetry.SetupLogger(os.Stderr)

	app := cli.NewApp(cli.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	})

	code := app.Execute(ctx, os.Args[1:], version)
	cancel()
	os.Exit(code)
}
