package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/condition"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

const validDefinitions = `
processors:
  - id: energy-power
    name: Energy power calculation
    priority: 1
    timeout: 250ms
    filters:
      - field: type
        operator: equals
        value: energy
    transformations:
      - type: calculate
        field: power
        expression: voltage * current
    outputs:
      - type: cache
  - id: device-status
    name: Device status normalisation
    priority: 2
    active: false
    transformations:
      - type: normalize
        field: status
        lookup: device_status
`

func TestParseDefinitions(t *testing.T) {
	procs, err := ParseDefinitions([]byte(validDefinitions))
	if err != nil {
		t.Fatalf("ParseDefinitions() error = %v", err)
	}
	if len(procs) != 2 {
		t.Fatalf("len = %d, want 2", len(procs))
	}

	energy := procs[0]
	if energy.ID != "energy-power" || !energy.Active || energy.Timeout != 250*time.Millisecond {
		t.Errorf("energy processor = %+v", energy)
	}
	if len(energy.Filters) != 1 || energy.Filters[0].Operator != condition.Equals || energy.Filters[0].Value != "energy" {
		t.Errorf("filters = %+v", energy.Filters)
	}
	if energy.Transformations[0].Type != TransformCalculate || energy.Outputs[0].Type != OutputCache {
		t.Errorf("energy steps = %+v %+v", energy.Transformations, energy.Outputs)
	}
	if procs[1].Active {
		t.Error("active: false was ignored")
	}
}

func TestParseDefinitions_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "processors: [unclosed"},
		{"missing processors", "other: 1"},
		{"missing name", "processors:\n  - id: x\n"},
		{"unknown operator", "processors:\n  - id: x\n    name: x\n    filters:\n      - field: a\n        operator: near\n"},
		{"unknown transformation", "processors:\n  - id: x\n    name: x\n    transformations:\n      - type: teleport\n"},
		{"unknown output", "processors:\n  - id: x\n    name: x\n    outputs:\n      - type: fax\n"},
		{"unknown key", "processors:\n  - id: x\n    name: x\n    colour: red\n"},
		{"bad timeout", "processors:\n  - id: x\n    name: x\n    timeout: soon\n"},
		{"bad id", "processors:\n  - id: 'has space'\n    name: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDefinitions([]byte(tt.yaml)); !errors.Is(err, ErrInvalidDefinitions) {
				t.Errorf("error = %v, want ErrInvalidDefinitions", err)
			}
		})
	}
}

func TestLoadDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processors.yaml")
	if err := os.WriteFile(path, []byte(validDefinitions), 0o600); err != nil {
		t.Fatal(err)
	}

	procs, err := LoadDefinitions(path)
	if err != nil {
		t.Fatalf("LoadDefinitions() error = %v", err)
	}

	p := New(Config{}, WithOutput(OutputCache, NewCache()))
	if err := p.Load(procs); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(p.Processors()) != 2 {
		t.Errorf("loaded %d processors", len(p.Processors()))
	}

	if _, err := LoadDefinitions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_StopsAtInvalidProcessor(t *testing.T) {
	procs, err := ParseDefinitions([]byte(validDefinitions))
	if err != nil {
		t.Fatal(err)
	}

	// No cache handler registered.
	p := New(Config{})
	if err := p.Load(procs); !errors.Is(err, ErrNoOutputHandler) {
		t.Errorf("Load() error = %v, want ErrNoOutputHandler", err)
	}
}

func TestLoadDefinitions_ShippedFile(t *testing.T) {
	procs, err := LoadDefinitions(filepath.Join("..", "..", "configs", "processors.yaml"))
	if err != nil {
		t.Fatalf("LoadDefinitions() error = %v", err)
	}

	handler := OutputHandlerFunc(func(context.Context, Output, *telemetry.Record) error { return nil })
	p := New(Config{},
		WithOutput(OutputCache, NewCache()),
		WithOutput(OutputWebSocket, handler),
		WithOutput(OutputStream, handler),
		WithOutput(OutputAlert, handler),
		WithOutput(OutputPersistence, handler),
		WithEnricher("device", StaticEnricher{"site": "test"}),
	)
	if err := p.Load(procs); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(p.Processors()) != len(procs) {
		t.Errorf("loaded %d processors, want %d", len(p.Processors()), len(procs))
	}
}
