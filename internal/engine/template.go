package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
)

// Context — данные, доступные в выражениях ${{ ... }}.
//
//	${{ env.API_TOKEN }}
//	${{ env.HOST | default "localhost" }}
type Context struct {
	// Env — переменные окружения.
	Env map[string]string
}

// NewContext создаёт контекст с переданным окружением.
func NewContext(env map[string]string) *Context {
	if env == nil {
		env = make(map[string]string)
	}
	return &Context{Env: env}
}

// EnvContext создаёт контекст из окружения процесса.
func EnvContext() *Context {
	ctx := NewContext(nil)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			ctx.Env[key] = value
		}
	}
	return ctx
}

// data возвращает корень шаблона: выражения пишутся в нижнем регистре, как в конфигурации.
func (c *Context) data() map[string]any {
	return map[string]any{"env": c.Env}
}

// templateFuncs — функции для шаблонов: библиотека sprig без доступа
// к окружению процесса. Окружение доступно только через корень env,
// чтобы рендеринг зависел лишь от Context.
var templateFuncs = func() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	delete(funcs, "env")
	delete(funcs, "expandenv")
	return funcs
}()

// expressionRe находит выражения ${{ ... }}.
var expressionRe = regexp.MustCompile(`\$\{\{\s*(.*?)\s*\}\}`)

// Render подставляет все выражения ${{ expr }} в тексте.
//
// Каждое выражение рендерится отдельным Go template с корнем {"env": ...}.
// Перед корнем env добавляется точка: ${{ env.HOME }} превращается в {{ .env.HOME }}.
// Текст вне ${{ }} не интерпретируется.
func Render(text string, ctx *Context) (string, error) {
	if !strings.Contains(text, "${{") {
		return text, nil
	}
	if ctx == nil {
		ctx = NewContext(nil)
	}

	var errs []error
	out := expressionRe.ReplaceAllStringFunc(text, func(match string) string {
		expr := expressionRe.FindStringSubmatch(match)[1]
		rendered, err := renderExpression(expr, ctx)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return rendered
	})
	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return out, nil
}

// renderExpression рендерит одно выражение.
func renderExpression(expr string, ctx *Context) (string, error) {
	if expr == "" {
		return "", nil
	}
	expr = qualifyRoots(expr)

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=zero").Parse("{{ " + expr + " }}")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx.data()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	// missingkey=zero для map[string]string даёт пустую строку,
	// но для вложенных отсутствующих значений text/template печатает "<no value>"
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// qualifyRoots добавляет точку перед корневыми именами вне строковых литералов:
// "lower env.NAME" превращается в "lower .env.NAME".
func qualifyRoots(expr string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' && i+1 < len(expr) {
				b.WriteByte(c)
				i++
				c = expr[i]
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '`':
			quote = c
		case strings.HasPrefix(expr[i:], rootName) && isRootAt(expr, i):
			b.WriteByte('.')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// rootName — единственный корень данных шаблона.
const rootName = "env"

func isRootAt(expr string, i int) bool {
	if i > 0 {
		prev := expr[i-1]
		if prev == '.' || prev == '$' || isIdentChar(prev) {
			return false
		}
	}
	end := i + len(rootName)
	return end == len(expr) || !isIdentChar(expr[end])
}

func isIdentChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// MustRender рендерит шаблон и паникует при ошибке.
// Используется только для тестов.
func MustRender(text string, ctx *Context) string {
	result, err := Render(text, ctx)
	if err != nil {
		panic(err)
	}
	return result
}
