package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/nerrad567/gray-logic-telemetry/internal/placeholder"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// Enricher supplies externally sourced fields for a record.
type Enricher interface {
	Enrich(ctx context.Context, rec *telemetry.Record) (map[string]any, error)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, rec *telemetry.Record) (map[string]any, error)

// Enrich calls f.
func (f EnricherFunc) Enrich(ctx context.Context, rec *telemetry.Record) (map[string]any, error) {
	return f(ctx, rec)
}

// StaticEnricher attaches the same fields to every record (site metadata).
type StaticEnricher map[string]any

// Enrich returns a copy of the static fields.
func (s StaticEnricher) Enrich(context.Context, *telemetry.Record) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// normalizeTables map lower-cased raw values to canonical ones.
var normalizeTables = map[string]map[string]any{
	"device_status": {
		"on": "On", "1": "On", "true": "On", "running": "On",
		"off": "Off", "0": "Off", "false": "Off", "stopped": "Off",
		"standby": "Standby", "idle": "Standby", "sleep": "Standby",
		"error": "Error", "fault": "Error", "failed": "Error",
	},
	"online": {
		"true": true, "1": true, "yes": true, "online": true, "up": true,
		"false": false, "0": false, "no": false, "offline": false, "down": false,
	},
	"severity": {
		"low": "low", "info": "low", "notice": "low",
		"medium": "medium", "warn": "medium", "warning": "medium",
		"high": "high", "error": "high", "major": "high",
		"critical": "critical", "crit": "critical", "fatal": "critical", "emergency": "critical",
	},
}

// step is a compiled transformation. A non-empty soft result is a
// validation message; err is a hard failure.
type step interface {
	apply(ctx context.Context, rec *telemetry.Record) (soft string, err error)
}

func compileTransformation(t Transformation, enrichers map[string]Enricher) (step, error) {
	switch t.Type {
	case TransformMap:
		if t.Field == "" {
			return nil, fmt.Errorf("%w: map requires field", ErrInvalidProcessor)
		}
		prog, err := compileExpr(t.Expression)
		if err != nil {
			return nil, err
		}
		return mapStep{field: t.Field, program: prog}, nil

	case TransformNormalize:
		if t.Field == "" {
			return nil, fmt.Errorf("%w: normalize requires field", ErrInvalidProcessor)
		}
		name := t.Lookup
		if name == "" {
			name = payloadKey(t.Field)
		}
		table, ok := normalizeTables[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown normalize table %q", ErrInvalidProcessor, name)
		}
		return normalizeStep{field: t.Field, table: table}, nil

	case TransformEnrich:
		e, ok := enrichers[t.Source]
		if !ok {
			return nil, fmt.Errorf("%w: unknown enricher %q", ErrInvalidProcessor, t.Source)
		}
		return enrichStep{field: t.Field, enricher: e}, nil

	case TransformCalculate:
		if t.Field == "" {
			return nil, fmt.Errorf("%w: calculate requires field", ErrInvalidProcessor)
		}
		prog, err := compileExpr(t.Expression)
		if err != nil {
			return nil, err
		}
		operands := identifiers(prog)
		if slices.Contains(operands, payloadKey(t.Field)) {
			return nil, fmt.Errorf("%w: calculate must not overwrite its operand %q", ErrInvalidProcessor, t.Field)
		}
		return calculateStep{field: t.Field, program: prog}, nil

	case TransformValidate:
		prog, err := compileExpr(t.Expression)
		if err != nil {
			return nil, err
		}
		msg := t.Message
		if msg == "" {
			msg = "validation failed: " + t.Expression
		}
		return validateStep{program: prog, message: msg}, nil

	case TransformFormat:
		if t.Field == "" || t.Template == "" {
			return nil, fmt.Errorf("%w: format requires field and template", ErrInvalidProcessor)
		}
		return formatStep{field: t.Field, template: t.Template}, nil
	}
	return nil, fmt.Errorf("%w: unknown transformation %q", ErrInvalidProcessor, t.Type)
}

func compileExpr(src string) (*vm.Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: expression is required", ErrInvalidProcessor)
	}
	prog, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: compiling %q: %w", ErrInvalidProcessor, src, err)
	}
	return prog, nil
}

// identifierCollector gathers the top-level names an expression reads.
type identifierCollector struct {
	names []string
}

func (c *identifierCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.add(n.Value)
	case *ast.MemberNode:
		// data.x reads payload key x.
		base, ok := n.Node.(*ast.IdentifierNode)
		prop, isStr := n.Property.(*ast.StringNode)
		if ok && isStr && base.Value == "data" {
			c.add(prop.Value)
		}
	}
}

func (c *identifierCollector) add(name string) {
	if !slices.Contains(c.names, name) {
		c.names = append(c.names, name)
	}
}

func identifiers(prog *vm.Program) []string {
	node := prog.Node()
	c := &identifierCollector{}
	ast.Walk(&node, c)
	return c.names
}

func evaluate(prog *vm.Program, rec *telemetry.Record) (any, error) {
	out, err := expr.Run(prog, rec.Fields())
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	return out, nil
}

// payloadKey strips an optional "data." prefix so both spellings address the payload.
func payloadKey(field string) string {
	return strings.TrimPrefix(field, "data.")
}

func setField(rec *telemetry.Record, field string, value any) {
	if rec.Data == nil {
		rec.Data = make(map[string]any)
	}
	rec.Data[payloadKey(field)] = value
}

type mapStep struct {
	field   string
	program *vm.Program
}

func (s mapStep) apply(_ context.Context, rec *telemetry.Record) (string, error) {
	v, err := evaluate(s.program, rec)
	if err != nil {
		return "", err
	}
	setField(rec, s.field, v)
	return "", nil
}

type normalizeStep struct {
	field string
	table map[string]any
}

func (s normalizeStep) apply(_ context.Context, rec *telemetry.Record) (string, error) {
	key := payloadKey(s.field)
	v, ok := rec.Data[key]
	if !ok || v == nil {
		return "", nil
	}
	if canonical, ok := s.table[strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))]; ok {
		rec.Data[key] = canonical
	}
	return "", nil
}

type enrichStep struct {
	field    string
	enricher Enricher
}

func (s enrichStep) apply(ctx context.Context, rec *telemetry.Record) (string, error) {
	extra, err := s.enricher.Enrich(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("enriching record: %w", err)
	}
	if len(extra) == 0 {
		return "", nil
	}
	if rec.Data == nil {
		rec.Data = make(map[string]any)
	}

	if s.field != "" {
		key := payloadKey(s.field)
		if _, exists := rec.Data[key]; !exists {
			rec.Data[key] = extra
		}
		return "", nil
	}
	for k, v := range extra {
		if _, exists := rec.Data[k]; !exists {
			rec.Data[k] = v
		}
	}
	return "", nil
}

type calculateStep struct {
	field   string
	program *vm.Program
}

func (s calculateStep) apply(_ context.Context, rec *telemetry.Record) (string, error) {
	v, err := evaluate(s.program, rec)
	if err != nil {
		return "", err
	}
	setField(rec, s.field, v)
	return "", nil
}

type validateStep struct {
	program *vm.Program
	message string
}

func (s validateStep) apply(_ context.Context, rec *telemetry.Record) (string, error) {
	v, err := evaluate(s.program, rec)
	if err != nil {
		return "", err
	}
	ok, isBool := v.(bool)
	if !isBool {
		return "", fmt.Errorf("validate expression returned %T, want bool", v)
	}
	if !ok {
		rec.AddError(s.message)
		return s.message, nil
	}
	return "", nil
}

type formatStep struct {
	field    string
	template string
}

func (s formatStep) apply(_ context.Context, rec *telemetry.Record) (string, error) {
	text, err := placeholder.Render(s.template, rec.Fields())
	if err != nil {
		return "", fmt.Errorf("formatting %s: %w", s.field, err)
	}
	setField(rec, s.field, text)
	return "", nil
}
