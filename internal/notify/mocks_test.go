package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/delivery"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
)

var errAdapter = errors.New("adapter down")

// mockPush counts attempts and can fail or block.
type mockPush struct {
	calls  atomic.Int32
	err    error
	status delivery.Status
	hook   func(ctx context.Context) error
}

func (m *mockPush) SendNotification(ctx context.Context, _, _, _ string, _ map[string]any, _, _ string) (delivery.PushReceipt, error) {
	m.calls.Add(1)
	if m.hook != nil {
		if err := m.hook(ctx); err != nil {
			return delivery.PushReceipt{Status: delivery.StatusFailed}, err
		}
	}
	if m.err != nil {
		return delivery.PushReceipt{Status: delivery.StatusFailed}, m.err
	}
	status := m.status
	if status == "" {
		status = delivery.StatusSent
	}
	return delivery.PushReceipt{ID: "push-1", Status: status}, nil
}

type mockSMS struct {
	calls  atomic.Int32
	err    error
	phones []string
	mu     sync.Mutex
	hook   func(ctx context.Context) error
}

func (m *mockSMS) SendMessage(ctx context.Context, _, phone, _, _, _ string) (delivery.SMSReceipt, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.phones = append(m.phones, phone)
	m.mu.Unlock()
	if m.hook != nil {
		if err := m.hook(ctx); err != nil {
			return delivery.SMSReceipt{Status: delivery.StatusFailed}, err
		}
	}
	if m.err != nil {
		return delivery.SMSReceipt{Status: delivery.StatusFailed, Provider: "mock"}, m.err
	}
	return delivery.SMSReceipt{ID: "sms-1", Status: delivery.StatusSent, Provider: "mock", Cost: 0.05}, nil
}

type mockEmail struct {
	calls atomic.Int32
	err   error
}

func (m *mockEmail) SendEmail(context.Context, string, string, string) (delivery.EmailReceipt, error) {
	m.calls.Add(1)
	if m.err != nil {
		return delivery.EmailReceipt{Status: delivery.StatusFailed}, m.err
	}
	return delivery.EmailReceipt{ID: "email-1", Status: delivery.StatusSent, Provider: "mock"}, nil
}

type mockInApp struct {
	calls atomic.Int32
	err   error
	mu    sync.Mutex
	users []string
}

func (m *mockInApp) Deliver(_ context.Context, msg delivery.InAppMessage) (delivery.InAppReceipt, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.users = append(m.users, msg.UserID)
	m.mu.Unlock()
	if m.err != nil {
		return delivery.InAppReceipt{Status: delivery.StatusFailed}, m.err
	}
	return delivery.InAppReceipt{ID: msg.NotificationID, Status: delivery.StatusDelivered, Recipients: 1}, nil
}

// staticPrefs returns fixed preferences per user.
type staticPrefs map[string]Preferences

func (s staticPrefs) GetUserPreferences(_ context.Context, userID string) (Preferences, error) {
	if p, ok := s[userID]; ok {
		return p, nil
	}
	return Preferences{UserID: userID}, nil
}

// memoryRules is an in-memory RuleStore.
type memoryRules struct {
	mu    sync.Mutex
	rules map[string]*Rule
}

func newMemoryRules(rules ...Rule) *memoryRules {
	m := &memoryRules{rules: make(map[string]*Rule)}
	for i := range rules {
		r := rules[i]
		m.rules[r.ID] = &r
	}
	return m
}

func (m *memoryRules) ListActive(_ context.Context, userID string) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Rule
	for _, r := range m.rules {
		if r.Active && (r.UserID == userID || r.UserID == SystemUser) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryRules) RecordTrigger(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	r.TriggerCount++
	r.LastTriggered = &at
	return nil
}

func (m *memoryRules) count(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules[id].TriggerCount
}

type captureAudit struct {
	mu   sync.Mutex
	logs []*audit.AuditLog
}

func (c *captureAudit) Create(_ context.Context, l *audit.AuditLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, l)
	return nil
}

type captureBroadcast struct {
	channels []string
	envs     []hub.Envelope
}

func (c *captureBroadcast) Publish(channelID string, env hub.Envelope) (int, error) {
	c.channels = append(c.channels, channelID)
	c.envs = append(c.envs, env)
	return 1, nil
}

// adapters bundles one of each mock adapter.
type adapters struct {
	push  *mockPush
	sms   *mockSMS
	email *mockEmail
	inApp *mockInApp
}

func newAdapters() *adapters {
	return &adapters{push: &mockPush{}, sms: &mockSMS{}, email: &mockEmail{}, inApp: &mockInApp{}}
}

func (a *adapters) options() []Option {
	return []Option{WithPush(a.push), WithSMS(a.sms), WithEmail(a.email), WithInApp(a.inApp)}
}

func allChannelsPrefs(userID string) Preferences {
	return Preferences{
		UserID: userID, Phone: "+447700900123", Email: "user@example.com",
		PushEnabled: true, SMSEnabled: true, EmailEnabled: true,
	}
}
