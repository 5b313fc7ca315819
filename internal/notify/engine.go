package notify

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
)

// evaluateRules runs every active rule for the event's user and SYSTEM in
// ascending priority. Notifications raised by actions are sent without
// evaluating rules again.
func (o *Orchestrator) evaluateRules(ctx context.Context, ev *Event) {
	if o.rules == nil {
		return
	}

	o.rulesMu.Lock()
	defer o.rulesMu.Unlock()

	rules, err := o.rules.ListActive(ctx, ev.UserID)
	if err != nil {
		o.logger.Warn("failed to load notification rules", "user", ev.UserID, "error", err)
		return
	}

	fields := ev.Fields()
	for i := range rules {
		rule := &rules[i]
		if !rule.Matches(fields) {
			continue
		}

		at := o.now()
		if err := o.rules.RecordTrigger(ctx, rule.ID, at); err != nil {
			o.logger.Warn("failed to record rule trigger", "rule", rule.ID, "error", err)
		}
		o.metrics.RuleTriggers.WithLabelValues(rule.ID).Inc()
		o.logger.Info("notification rule triggered", "rule", rule.ID, "notification", ev.ID)

		for _, action := range rule.Actions {
			if err := o.runAction(ctx, rule, action, ev); err != nil {
				o.logger.Warn("rule action failed",
					"rule", rule.ID, "action", action.Type, "notification", ev.ID, "error", err)
			}
		}
	}
}

func (o *Orchestrator) runAction(ctx context.Context, rule *Rule, action Action, ev *Event) error {
	switch action.Type {
	case ActionNotify:
		req := Request{
			UserID:     action.param("userId", ev.UserID),
			Category:   action.param("category", ev.Category),
			Priority:   Priority(action.param("priority", string(ev.Priority))),
			Title:      action.param("title", ev.Title),
			Message:    action.param("message", ev.Message),
			TemplateID: action.param("templateId", ""),
			Data:       map[string]any{"ruleId": rule.ID, "notificationId": ev.ID},
			Source:     SourceRule,
		}
		if req.TemplateID != "" {
			req.TemplateVariables = ev.Fields()
		}
		_, err := o.send(ctx, req, false)
		return err

	case ActionEscalate:
		target := action.param("userId", "")
		if target == "" {
			return fmt.Errorf("%w: escalate needs a userId", ErrInvalidRule)
		}
		_, err := o.send(ctx, Request{
			UserID:   target,
			Category: ev.Category,
			Priority: PriorityUrgent,
			Title:    ev.Title,
			Message:  ev.Message,
			Data:     map[string]any{"ruleId": rule.ID, "escalatedFrom": ev.UserID, "notificationId": ev.ID},
			Source:   SourceRule,
		}, false)
		return err

	case ActionBroadcast:
		if o.broadcaster == nil {
			return fmt.Errorf("broadcast action: no broadcaster configured")
		}
		channel := action.param("channel", hub.ChannelAlerts)
		env := hub.NewEnvelope(hub.TypeEvent, channel, ev)
		_, err := o.broadcaster.Publish(channel, env)
		return err

	case ActionAudit:
		if o.auditor == nil {
			return fmt.Errorf("audit action: no auditor configured")
		}
		return o.auditor.Create(ctx, &audit.AuditLog{
			Action:     audit.ActionRuleTriggered,
			EntityType: audit.EntityRule,
			EntityID:   rule.ID,
			UserID:     ev.UserID,
			Source:     "notify",
			Details: map[string]any{
				"notification": ev.ID,
				"category":     ev.Category,
				"priority":     string(ev.Priority),
			},
		})
	}
	return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, action.Type)
}
