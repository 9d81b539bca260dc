package domain

import "testing"

func TestParseHTTPMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    HTTPMethod
		wantErr bool
	}{
		{"", "", false},
		{"get", HTTPMethodGet, false},
		{"POST", HTTPMethodPost, false},
		{"Put", HTTPMethodPut, false},
		{"patch", HTTPMethodPatch, false},
		{"DELETE", HTTPMethodDelete, false},
		{"HEAD", "", true},
		{"OPTIONS", "", true},
	}

	for _, tt := range tests {
		got, err := ParseHTTPMethod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHTTPMethod(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHTTPMethod(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestStep_Keys(t *testing.T) {
	named := Step{Name: "fetch", Kind: StepKindRead}
	if named.Key(3) != "fetch" {
		t.Errorf("named step key should be its name, got %s", named.Key(3))
	}

	unnamed := Step{Kind: StepKindRun}
	if unnamed.Key(3) != "step-3" {
		t.Errorf("unnamed step key should be step-3, got %s", unnamed.Key(3))
	}

	if unnamed.InputKey() != CurrentKey {
		t.Errorf("default input should be %q, got %q", CurrentKey, unnamed.InputKey())
	}
	unnamed.Input = "fetch"
	if unnamed.InputKey() != "fetch" {
		t.Errorf("explicit input expected, got %q", unnamed.InputKey())
	}
}

func TestIsReservedKey(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"_", true},
		{"step-0", true},
		{"step-42", true},
		{"step-", false},
		{"step-x", false},
		{"step-1a", false},
		{"steps-1", false},
		{"fetch", false},
	}

	for _, tt := range tests {
		if got := IsReservedKey(tt.name); got != tt.want {
			t.Errorf("IsReservedKey(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStep_Medium(t *testing.T) {
	tests := []struct {
		step Step
		want Medium
	}{
		{Step{Kind: StepKindRun, Command: "a"}, MediumProcess},
		{Step{Kind: StepKindRead, Connection: Connection{File: &FileConfig{}}}, MediumFile},
		{Step{Kind: StepKindWrite, Connection: Connection{HTTP: &HTTPConfig{}}}, MediumHTTP},
		{Step{Kind: StepKindRead, Connection: Connection{Database: &DatabaseConfig{}}}, MediumPostgres},
		{Step{Kind: StepKindWrite, Connection: Connection{AMQP: &AMQPConfig{}}}, MediumAMQP},
		{Step{Kind: StepKindRead}, ""},
	}

	for _, tt := range tests {
		if got := tt.step.Medium(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestStepKind_Produces(t *testing.T) {
	if !StepKindRead.Produces() || !StepKindRun.Produces() {
		t.Error("read and run should produce")
	}
	if StepKindWrite.Produces() {
		t.Error("write should not produce")
	}
}

func TestRun_Lifecycle(t *testing.T) {
	p := &Pipeline{Steps: []Step{
		{Name: "a", Kind: StepKindRead, Connection: Connection{File: &FileConfig{Location: "x"}}},
		{Kind: StepKindWrite, Connection: Connection{File: &FileConfig{Location: "y"}}},
		{Kind: StepKindRun, Command: "z"},
	}}

	run := NewRun(p)
	if run.Status != RunStatusIdle {
		t.Errorf("expected IDLE, got %s", run.Status)
	}
	if run.Steps[0].Key != "a" || run.Steps[1].Key != "" || run.Steps[2].Key != "step-2" {
		t.Errorf("unexpected keys: %+v", run.Steps)
	}
	if run.Duration() != 0 {
		t.Error("duration of unfinished run should be 0")
	}

	run.MarkRunning()
	run.Steps[0].Status = StepStatusSucceeded
	run.MarkFailed("boom")

	if !run.IsFinished() || run.Error != "boom" {
		t.Errorf("expected finished FAILED run, got %s %q", run.Status, run.Error)
	}
	if run.Steps[0].Status != StepStatusSucceeded {
		t.Error("completed step should keep its status")
	}
	if run.Steps[1].Status != StepStatusSkipped || run.Steps[2].Status != StepStatusSkipped {
		t.Error("pending steps should be skipped")
	}
}
