package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env      string
		expected slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := LogLevel(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", slog.LevelInfo)

	WithStep(WithRunID(logger, "run-1"), 2, "fetch", "read/http").Info("step started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("expected run_id run-1, got %v", entry["run_id"])
	}
	if entry["step"] != "fetch" {
		t.Errorf("expected step fetch, got %v", entry["step"])
	}
	if entry["step_index"] != float64(2) {
		t.Errorf("expected step_index 2, got %v", entry["step_index"])
	}
	if entry["step_kind"] != "read/http" {
		t.Errorf("expected step_kind read/http, got %v", entry["step_kind"])
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at WARN level: %s", out)
	}
	if !strings.Contains(out, "msg=visible") {
		t.Errorf("expected text format, got %s", out)
	}
}

func TestWithStep_Unnamed(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", slog.LevelInfo)

	WithStep(logger, 0, "", "run/process").Info("x")

	if strings.Contains(buf.String(), `"step":`) {
		t.Errorf("unnamed step should not log step attr: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("expected default logger for empty context")
	}

	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", slog.LevelInfo).With("step_index", 4)
	ctx := WithLogger(context.Background(), logger)

	FromContext(ctx).Info("from ctx")
	if !strings.Contains(buf.String(), "step_index=4") {
		t.Errorf("expected logger from context, got %q", buf.String())
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStep("read", "file", "SUCCEEDED", time.Second)
	m.ObserveCacheEntry(10)
	m.ObserveRun("DONE", time.Now())
}

func TestMetrics_Gather(t *testing.T) {
	m := NewMetrics(false)
	m.ObserveStep("read", "file", "SUCCEEDED", 10*time.Millisecond)
	m.ObserveStep("read", "file", "SUCCEEDED", 20*time.Millisecond)
	m.ObserveStep("write", "http", "FAILED", 5*time.Millisecond)
	m.ObserveCacheEntry(128)
	m.ObserveRun("FAILED", time.Now())

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true

		if f.GetName() != "dash_steps_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["kind"] == "read" && metric.GetCounter().GetValue() != 2 {
				t.Errorf("expected 2 read steps, got %v", metric.GetCounter().GetValue())
			}
		}
	}

	for _, name := range []string{
		"dash_runs_total",
		"dash_steps_total",
		"dash_step_duration_seconds",
		"dash_cache_entry_bytes",
		"dash_last_run_timestamp_seconds",
	} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics(false)
	m.ObserveRun("DONE", time.Now())

	path := filepath.Join(t.TempDir(), "dash.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `dash_runs_total{status="DONE"} 1`) {
		t.Errorf("unexpected textfile content:\n%s", data)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(true)
	m.ObserveRun("DONE", time.Now())

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "dash_runs_total") {
		t.Error("expected dash_runs_total in /metrics output")
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected runtime metrics in /metrics output")
	}
}
