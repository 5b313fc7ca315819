// Package placeholder renders {{name}} templates.
//
// Names may be dotted paths ("data.voltage") and may carry surrounding
// spaces inside the braces. Rendering is strict: every referenced name must
// resolve, otherwise ErrMissingVariable is returned listing all missing names.
package placeholder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-telemetry/internal/condition"
)

// ErrMissingVariable is returned when a template references an unknown name.
var ErrMissingVariable = errors.New("placeholder: missing variable")

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Variables returns the distinct names referenced by tmpl in order of first use.
func Variables(tmpl string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range tokenPattern.FindAllStringSubmatch(tmpl, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// Render substitutes every placeholder in tmpl from vars.
//
// Parameters:
//   - tmpl: Template text
//   - vars: Values by name; nested maps are reachable through dotted names
//
// Returns:
//   - string: Rendered text
//   - error: ErrMissingVariable naming every unresolved placeholder
func Render(tmpl string, vars map[string]any) (string, error) {
	var missing []string
	out := tokenPattern.ReplaceAllStringFunc(tmpl, func(tok string) string {
		name := tokenPattern.FindStringSubmatch(tok)[1]
		v, ok := condition.Lookup(vars, name)
		if !ok || v == nil {
			missing = append(missing, name)
			return tok
		}
		return format(v)
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}
	return out, nil
}

func format(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
