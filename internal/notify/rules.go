package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/condition"
)

// Logic joins a condition to the one after it.
type Logic string

// Condition connectives.
const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// RuleCondition is one predicate plus the connective to the next predicate.
// The last condition's Logic is ignored.
type RuleCondition struct {
	condition.Condition `yaml:",inline"`
	Logic               Logic `json:"logic,omitempty" yaml:"logic,omitempty"`
}

// ActionType names what a matching rule does.
type ActionType string

// Rule actions.
const (
	// ActionNotify sends a further notification (params: userId, title,
	// message, category, priority, templateId).
	ActionNotify ActionType = "notify"

	// ActionBroadcast publishes the notification on a hub channel (params: channel).
	ActionBroadcast ActionType = "broadcast"

	// ActionEscalate re-sends the notification at urgent priority to another
	// user (params: userId).
	ActionEscalate ActionType = "escalate"

	// ActionAudit writes an audit log entry.
	ActionAudit ActionType = "audit"
)

// Action is one configured rule action.
type Action struct {
	Type   ActionType     `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// param returns a string parameter or def.
func (a Action) param(key, def string) string {
	if v, ok := a.Params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Rule reacts to completed notifications.
type Rule struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Name          string          `json:"name"`
	Conditions    []RuleCondition `json:"conditions"`
	Actions       []Action        `json:"actions"`
	Priority      int             `json:"priority"`
	Active        bool            `json:"active"`
	TriggerCount  int             `json:"triggerCount"`
	LastTriggered *time.Time      `json:"lastTriggered,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Validate checks a rule before it is stored.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidRule)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidRule)
	}
	for i, c := range r.Conditions {
		if c.Field == "" {
			return fmt.Errorf("%w: condition %d has no field", ErrInvalidRule, i)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("%w: condition %d: %w %q", ErrInvalidRule, i, condition.ErrUnknownOperator, c.Operator)
		}
		switch c.Logic {
		case "", LogicAnd, LogicOr:
		default:
			return fmt.Errorf("%w: condition %d has logic %q", ErrInvalidRule, i, c.Logic)
		}
	}
	for i, a := range r.Actions {
		switch a.Type {
		case ActionNotify, ActionBroadcast, ActionEscalate, ActionAudit:
		default:
			return fmt.Errorf("%w: action %d has unknown type %q", ErrInvalidRule, i, a.Type)
		}
	}
	return nil
}

// Matches evaluates the conditions strictly left to right. Each result is
// folded into the running value with the previous condition's Logic, so
// "a OR b AND c" is (a OR b) AND c. A rule without conditions matches.
// A condition that cannot be evaluated counts as false.
func (r *Rule) Matches(fields map[string]any) bool {
	if len(r.Conditions) == 0 {
		return true
	}
	result := evalCondition(r.Conditions[0], fields)
	for i := 1; i < len(r.Conditions); i++ {
		next := evalCondition(r.Conditions[i], fields)
		if r.Conditions[i-1].Logic == LogicOr {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

func evalCondition(c RuleCondition, fields map[string]any) bool {
	ok, err := c.Match(fields)
	return err == nil && ok
}
