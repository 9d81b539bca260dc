package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/dash/internal/connector"
	"github.com/shaiso/dash/internal/domain"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// PrintRun выводит итог run: статус каждого шага.
func (o *Output) PrintRun(run *domain.Run) {
	if o.jsonMode {
		o.JSON(run)
		return
	}

	headers := []string{"#", "NAME", "STEP", "KEY", "STATUS", "DURATION", "BYTES"}
	rows := make([][]string, len(run.Steps))
	for i, s := range run.Steps {
		rows[i] = []string{
			strconv.Itoa(s.Index),
			orDash(s.Name),
			string(s.Kind) + "/" + string(s.Medium),
			orDash(s.Key),
			string(s.Status),
			formatDuration(s.Duration, s.Status),
			strconv.Itoa(s.Bytes),
		}
	}
	o.Table(headers, rows)

	fmt.Fprintf(o.w, "\nrun %s %s in %s\n", run.ID, run.Status, run.Duration().Round(time.Millisecond))
}

// PrintPipeline выводит шаги провалидированного pipeline.
func (o *Output) PrintPipeline(p *domain.Pipeline) {
	if o.jsonMode {
		o.JSON(p)
		return
	}

	headers := []string{"#", "NAME", "STEP", "INPUT", "OUTPUT", "TIMEOUT"}
	rows := make([][]string, len(p.Steps))
	for i := range p.Steps {
		s := &p.Steps[i]

		input, output := "-", "-"
		if s.Kind == domain.StepKindWrite || s.Input != "" {
			input = s.InputKey()
		}
		if s.Kind.Produces() {
			output = s.Key(i)
		}

		timeout := "-"
		if s.Timeout > 0 {
			timeout = s.Timeout.String()
		}

		rows[i] = []string{
			strconv.Itoa(i),
			orDash(s.Name),
			connector.BindingOf(s).String(),
			input,
			output,
			timeout,
		}
	}
	o.Table(headers, rows)
}

// PrintBindings выводит зарегистрированные коннекторы.
func (o *Output) PrintBindings(bindings []connector.Binding) {
	rows := make([][]string, len(bindings))
	names := make([]string, len(bindings))
	for i, b := range bindings {
		rows[i] = []string{string(b.Kind), string(b.Medium)}
		names[i] = b.String()
	}
	o.Print([]string{"KIND", "MEDIUM"}, rows, names)
}

func formatDuration(d time.Duration, status domain.StepStatus) string {
	if status == domain.StepStatusPending || status == domain.StepStatusSkipped {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
