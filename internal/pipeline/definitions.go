package pipeline

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-telemetry/internal/condition"
)

//go:embed schema.json
var definitionSchema []byte

// definition is the file form of a Processor.
type definition struct {
	ID              string                `yaml:"id"`
	Name            string                `yaml:"name"`
	Priority        int                   `yaml:"priority"`
	Active          *bool                 `yaml:"active"`
	Timeout         string                `yaml:"timeout"`
	Filters         []condition.Condition `yaml:"filters"`
	Transformations []Transformation      `yaml:"transformations"`
	Outputs         []Output              `yaml:"outputs"`
}

type definitionFile struct {
	Processors []definition `yaml:"processors"`
}

// LoadDefinitions reads processor definitions from a YAML file.
//
// Parameters:
//   - path: Path to the processors file
//
// Returns:
//   - []Processor: Processors in file order (active unless stated otherwise)
//   - error: If the file cannot be read, fails schema validation, or is malformed
func LoadDefinitions(path string) ([]Processor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading processor definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions validates YAML processor definitions against the
// embedded JSON schema and converts them to processors.
func ParseDefinitions(data []byte) ([]Processor, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %w", ErrInvalidDefinitions, err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrInvalidDefinitions, err)
	}

	procs := make([]Processor, 0, len(file.Processors))
	for _, d := range file.Processors {
		p := Processor{
			ID:              d.ID,
			Name:            d.Name,
			Priority:        d.Priority,
			Active:          d.Active == nil || *d.Active,
			Filters:         d.Filters,
			Transformations: d.Transformations,
			Outputs:         d.Outputs,
		}
		if d.Timeout != "" {
			timeout, err := time.ParseDuration(d.Timeout)
			if err != nil {
				return nil, fmt.Errorf("%w: processor %s timeout: %w", ErrInvalidDefinitions, d.ID, err)
			}
			p.Timeout = timeout
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func validateDocument(doc any) error {
	// The schema validator works on JSON; yaml.v3 decodes to JSON-compatible maps.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: converting to json: %w", ErrInvalidDefinitions, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(definitionSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinitions, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidDefinitions, strings.Join(msgs, "; "))
}

// Load adds every processor, stopping at the first invalid one.
func (p *Pipeline) Load(procs []Processor) error {
	for _, proc := range procs {
		if err := p.AddProcessor(proc); err != nil {
			return err
		}
	}
	return nil
}
