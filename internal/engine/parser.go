package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/dash/internal/domain"
)

// pipelineDoc — YAML-представление конфигурации.
type pipelineDoc struct {
	Env   map[string]string `yaml:"env"`
	Steps []stepDoc         `yaml:"steps"`
}

// stepDoc — YAML-представление шага.
//
//	name: fetch
//	read:
//	  http:
//	    url: https://api.example.com/items
//	    headers:
//	      Authorization: Bearer ${{ env.TOKEN }}
type stepDoc struct {
	Name       string            `yaml:"name"`
	Env        map[string]string `yaml:"env"`
	Input      string            `yaml:"input"`
	TimeoutSec float64           `yaml:"timeout_sec"`

	Read  *connectionDoc `yaml:"read"`
	Write *connectionDoc `yaml:"write"`
	Run   *string        `yaml:"run"`
}

type connectionDoc struct {
	File       *domain.FileConfig     `yaml:"file"`
	HTTP       *httpDoc               `yaml:"http"`
	HTTPS      *httpDoc               `yaml:"https"`
	Postgresql *domain.DatabaseConfig `yaml:"postgresql"`
	AMQP       *domain.AMQPConfig     `yaml:"amqp"`
}

type httpDoc struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
}

// Parse декодирует YAML-конфигурацию и валидирует результат.
//
// Неизвестные поля считаются ошибкой. Все возвращаемые ошибки
// оборачивают ErrInvalidConfig.
func Parse(data []byte) (*domain.Pipeline, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc pipelineDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewValidationError(-1, "", "steps", "pipeline has no steps", ErrEmptySteps)
		}
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidConfig, err)
	}

	pipeline, err := doc.toPipeline()
	if err != nil {
		return nil, err
	}

	if err := Validate(pipeline); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// toPipeline переводит документ в доменную модель.
// Проверяет структурные ошибки, которые теряются после конвертации.
func (d *pipelineDoc) toPipeline() (*domain.Pipeline, error) {
	p := &domain.Pipeline{
		Env:   d.Env,
		Steps: make([]domain.Step, len(d.Steps)),
	}

	for i := range d.Steps {
		step, err := d.Steps[i].toStep(i)
		if err != nil {
			return nil, err
		}
		p.Steps[i] = step
	}
	return p, nil
}

func (s *stepDoc) toStep(index int) (domain.Step, error) {
	step := domain.Step{
		Name:  s.Name,
		Env:   s.Env,
		Input: s.Input,
	}

	if s.TimeoutSec < 0 {
		return step, NewValidationError(index, s.Name, "timeout_sec",
			"timeout_sec must not be negative", ErrInvalidTimeout)
	}
	step.Timeout = time.Duration(s.TimeoutSec * float64(time.Second))

	kinds := 0
	var conn *connectionDoc
	if s.Read != nil {
		kinds++
		step.Kind = domain.StepKindRead
		conn = s.Read
	}
	if s.Write != nil {
		kinds++
		step.Kind = domain.StepKindWrite
		conn = s.Write
	}
	if s.Run != nil {
		kinds++
		step.Kind = domain.StepKindRun
		step.Command = *s.Run
	}
	if kinds != 1 {
		return step, NewValidationError(index, s.Name, "",
			fmt.Sprintf("step declares %d of read/write/run", kinds), ErrStepKind)
	}

	if conn != nil {
		c, err := conn.toConnection(index, s.Name)
		if err != nil {
			return step, err
		}
		step.Connection = c
	}
	return step, nil
}

func (c *connectionDoc) toConnection(index int, name string) (domain.Connection, error) {
	var conn domain.Connection
	media := 0

	if c.File != nil {
		media++
		conn.File = c.File
	}
	// https — алиас http
	for _, h := range []*httpDoc{c.HTTP, c.HTTPS} {
		if h == nil {
			continue
		}
		media++
		method, err := domain.ParseHTTPMethod(h.Method)
		if err != nil {
			return conn, NewValidationError(index, name, "method", err.Error(), ErrInvalidMethod)
		}
		conn.HTTP = &domain.HTTPConfig{
			URL:     h.URL,
			Method:  method,
			Headers: h.Headers,
		}
	}
	if c.Postgresql != nil {
		media++
		conn.Database = c.Postgresql
	}
	if c.AMQP != nil {
		media++
		conn.AMQP = c.AMQP
	}

	if media != 1 {
		return conn, NewValidationError(index, name, "",
			fmt.Sprintf("connection declares %d media", media), ErrStepMedium)
	}
	return conn, nil
}
