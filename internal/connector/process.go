package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/dash/internal/cache"
	"github.com/shaiso/dash/internal/telemetry"
)

const (
	// waitDelay — сколько ждать закрытия stdout/stderr после отмены процесса.
	waitDelay = 5 * time.Second

	// stderrLimit — сколько байт stderr попадает в ошибку.
	stderrLimit = 500
)

// Process — run: запускает программу без аргументов и без shell,
// дожидается завершения и кладёт stdout в кэш.
//
// Окружение процесса: окружение dash, затем env pipeline, затем env шага.
// Если у шага задан input, значение из кэша подаётся в stdin,
// иначе stdin пустой.
type Process struct {
	program  string
	env      []string
	useInput bool
}

// NewProcess создаёт Process.
func NewProcess(req *Request) (Connector, error) {
	return &Process{
		program:  req.Step.Command,
		env:      MergeEnv(os.Environ(), req.Env, req.Step.Env),
		useInput: req.Step.Input != "",
	}, nil
}

// Open проверяет, что программа находится.
func (c *Process) Open(context.Context) error {
	if _, err := exec.LookPath(c.program); err != nil {
		return fmt.Errorf("%w: %v", ErrProcess, err)
	}
	return nil
}

// Execute запускает процесс.
// Отмена ctx убивает процесс.
func (c *Process) Execute(ctx context.Context, scope *cache.Scope) error {
	cmd := exec.CommandContext(ctx, c.program)
	cmd.Env = c.env
	cmd.WaitDelay = waitDelay

	if c.useInput {
		data, ok := scope.Input()
		if !ok {
			return fmt.Errorf("%w: key %q", ErrCacheMiss, scope.InputKey())
		}
		cmd.Stdin = bytes.NewReader(data)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %s: %w", ErrProcess, c.program, ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %w", ErrProcess, &ExitError{
				Program: c.program,
				Code:    exitErr.ExitCode(),
				Stderr:  truncate(strings.TrimSpace(stderr.String()), stderrLimit),
			})
		}
		return fmt.Errorf("%w: start %s: %v", ErrProcess, c.program, err)
	}

	telemetry.FromContext(ctx).Debug("process exited",
		"program", c.program,
		"stdout_bytes", stdout.Len(),
		"stderr_bytes", stderr.Len(),
	)

	scope.Output(stdout.Bytes())
	return nil
}

// Close ничего не делает: процесс завершён к моменту выхода из Execute.
func (c *Process) Close() error { return nil }

// MergeEnv объединяет окружение в формате KEY=VALUE с картами переопределений.
// Более поздние источники побеждают. Результат отсортирован.
func MergeEnv(base []string, overrides ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			merged[key] = value
		}
	}
	for _, m := range overrides {
		for key, value := range m {
			merged[key] = value
		}
	}

	out := make([]string, 0, len(merged))
	for key, value := range merged {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}
