package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteRuleStore stores rules in the notification_rules table.
type SQLiteRuleStore struct {
	db *sql.DB
}

// NewSQLiteRuleStore creates a rule repository.
func NewSQLiteRuleStore(db *sql.DB) *SQLiteRuleStore {
	return &SQLiteRuleStore{db: db}
}

const ruleColumns = `id, user_id, name, conditions, actions, priority, active, trigger_count, last_triggered, created_at, updated_at`

// Create validates and inserts a rule. The ID is generated if empty.
func (s *SQLiteRuleStore) Create(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = "rule-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	conds, actions, err := marshalRule(rule)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notification_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.UserID, rule.Name, conds, actions, rule.Priority, boolInt(rule.Active),
		rule.TriggerCount, nil, now.Format(timestampLayout), now.Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// Update replaces a rule's definition. Trigger statistics are preserved.
func (s *SQLiteRuleStore) Update(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.UpdatedAt = time.Now().UTC()

	conds, actions, err := marshalRule(rule)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_rules SET user_id = ?, name = ?, conditions = ?, actions = ?, priority = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		rule.UserID, rule.Name, conds, actions, rule.Priority, boolInt(rule.Active),
		rule.UpdatedAt.Format(timestampLayout), rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule.
func (s *SQLiteRuleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Get returns a rule by ID.
func (s *SQLiteRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM notification_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule: %w", err)
	}
	return rule, nil
}

// List returns rules for userID, or every rule when userID is empty,
// in ascending priority.
func (s *SQLiteRuleStore) List(ctx context.Context, userID string) ([]Rule, error) {
	if userID == "" {
		return s.query(ctx, `SELECT `+ruleColumns+` FROM notification_rules ORDER BY priority, id`)
	}
	return s.query(ctx, `SELECT `+ruleColumns+` FROM notification_rules WHERE user_id = ? ORDER BY priority, id`, userID)
}

// ListActive returns active rules for userID and SYSTEM in ascending priority.
func (s *SQLiteRuleStore) ListActive(ctx context.Context, userID string) ([]Rule, error) {
	return s.query(ctx,
		`SELECT `+ruleColumns+` FROM notification_rules
		 WHERE active = 1 AND user_id IN (?, ?) ORDER BY priority, id`,
		userID, SystemUser)
}

// RecordTrigger increments trigger_count and stamps last_triggered.
func (s *SQLiteRuleStore) RecordTrigger(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_rules SET trigger_count = trigger_count + 1, last_triggered = ? WHERE id = ?`,
		at.UTC().Format(timestampLayout), id)
	if err != nil {
		return fmt.Errorf("recording rule trigger: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *SQLiteRuleStore) query(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

func scanRule(s rowScanner) (*Rule, error) {
	var rule Rule
	var conds, actions, createdAt, updatedAt string
	var active int
	var lastTriggered sql.NullString

	if err := s.Scan(&rule.ID, &rule.UserID, &rule.Name, &conds, &actions, &rule.Priority,
		&active, &rule.TriggerCount, &lastTriggered, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rule.Active = active != 0

	if err := json.Unmarshal([]byte(conds), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshalling conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions: %w", err)
	}

	var err error
	if rule.LastTriggered, err = parseOptionalTime(lastTriggered); err != nil {
		return nil, fmt.Errorf("parsing last_triggered: %w", err)
	}
	if rule.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rule.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rule, nil
}

func marshalRule(rule *Rule) (conds, actions string, err error) {
	c := rule.Conditions
	if c == nil {
		c = []RuleCondition{}
	}
	cb, err := json.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("marshalling conditions: %w", err)
	}
	ab, err := json.Marshal(rule.Actions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling actions: %w", err)
	}
	return string(cb), string(ab), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
