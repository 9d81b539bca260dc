package engine

import (
	"fmt"
	"os"

	"github.com/shaiso/dash/internal/domain"
)

// DefaultConfigPath — путь к конфигурации по умолчанию.
const DefaultConfigPath = "./.dash/workflows/config.yml"

// Load читает файл конфигурации, подставляет ${{ ... }} и парсит результат.
// Если ctx == nil, используется окружение процесса.
func Load(path string, ctx *Context) (*domain.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}

	if ctx == nil {
		ctx = EnvContext()
	}

	rendered, err := Render(string(data), ctx)
	if err != nil {
		return nil, err
	}

	return Parse([]byte(rendered))
}
