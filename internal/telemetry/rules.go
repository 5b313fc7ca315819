package telemetry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Kind is the expected type of a field value.
type Kind string

// Field kinds.
const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindEnum   Kind = "enum"
)

// FieldRule declares the constraints on one field of a raw record.
// Min and Max apply to numbers; Pattern applies to strings; Enum lists the
// accepted values for KindEnum. Custom runs last and only when the value
// passed every other check.
type FieldRule struct {
	Field    string
	Required bool
	Kind     Kind
	Min      *float64
	Max      *float64
	Pattern  *regexp.Regexp
	Enum     []string
	Custom   func(value any) error
}

func bound(v float64) *float64 { return &v }

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// commonRules apply to every record regardless of type.
var commonRules = []FieldRule{
	{Field: "deviceId", Required: true, Kind: KindString, Pattern: deviceIDPattern},
	{Field: "timestamp", Required: true, Kind: KindNumber, Min: bound(0)},
	{Field: "type", Required: true, Kind: KindEnum, Enum: []string{
		string(TypeEnergy), string(TypeDevice), string(TypeSensor), string(TypeAlert),
	}},
}

// defaultTypeRules holds the payload rules per record type.
func defaultTypeRules() map[RecordType][]FieldRule {
	return map[RecordType][]FieldRule{
		TypeEnergy: {
			{Field: "consumption", Required: true, Kind: KindNumber, Min: bound(0), Max: bound(1000)},
			{Field: "voltage", Required: true, Kind: KindNumber, Min: bound(200), Max: bound(250)},
			{Field: "current", Required: true, Kind: KindNumber, Min: bound(0), Max: bound(100)},
			{Field: "power", Kind: KindNumber, Min: bound(0), Max: bound(10000)},
			{Field: "frequency", Kind: KindNumber, Min: bound(45), Max: bound(55)},
		},
		TypeDevice: {
			{Field: "online", Required: true, Kind: KindBool},
			{Field: "status", Required: true, Kind: KindEnum, Enum: []string{"On", "Off", "Standby", "Error"}},
		},
		TypeSensor: {
			{Field: "value", Required: true, Kind: KindNumber},
			{Field: "unit", Kind: KindString},
		},
		TypeAlert: {
			{Field: "severity", Required: true, Kind: KindEnum, Enum: []string{
				string(SeverityLow), string(SeverityMedium), string(SeverityHigh), string(SeverityCritical),
			}},
			{Field: "message", Required: true, Kind: KindString},
		},
	}
}

// check applies the rule to raw and returns every violation found.
func (r FieldRule) check(raw map[string]any) []string {
	value, present := raw[r.Field]
	if !present || value == nil {
		if r.Required {
			return []string{fmt.Sprintf("%s is required", r.Field)}
		}
		return nil
	}

	var errs []string
	switch r.Kind {
	case KindNumber:
		n, ok := toFloat(value)
		if !ok {
			return []string{fmt.Sprintf("%s must be a number", r.Field)}
		}
		if r.Min != nil && n < *r.Min {
			errs = append(errs, fmt.Sprintf("%s must be >= %g", r.Field, *r.Min))
		}
		if r.Max != nil && n > *r.Max {
			errs = append(errs, fmt.Sprintf("%s must be <= %g", r.Field, *r.Max))
		}
	case KindString:
		s, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("%s must be a string", r.Field)}
		}
		if r.Pattern != nil && !r.Pattern.MatchString(s) {
			errs = append(errs, fmt.Sprintf("%s has invalid format", r.Field))
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return []string{fmt.Sprintf("%s must be a boolean", r.Field)}
		}
	case KindEnum:
		s, ok := value.(string)
		if !ok || !slices.Contains(r.Enum, s) {
			return []string{fmt.Sprintf("%s must be one of %s", r.Field, strings.Join(r.Enum, ", "))}
		}
	}

	if len(errs) == 0 && r.Custom != nil {
		if err := r.Custom(value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", r.Field, err))
		}
	}
	return errs
}

// toFloat converts the numeric shapes produced by JSON and YAML decoding.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
