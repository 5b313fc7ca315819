package notify

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-telemetry/internal/placeholder"
)

// Template is a reusable notification body with {{var}} placeholders.
// Category and Priority fill a request that leaves them empty.
type Template struct {
	ID       string   `json:"id" yaml:"id"`
	Category string   `json:"category" yaml:"category"`
	Priority Priority `json:"priority" yaml:"priority"`
	Title    string   `json:"title" yaml:"title"`
	Message  string   `json:"message" yaml:"message"`
}

// Variables lists every placeholder the template references.
func (t Template) Variables() []string {
	return placeholder.Variables(t.Title + "\n" + t.Message)
}

// Render substitutes vars into the title and message.
// A missing variable fails with ErrTemplate.
func (t Template) Render(vars map[string]any) (title, message string, err error) {
	title, err = placeholder.Render(t.Title, vars)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s title: %w", ErrTemplate, t.ID, err)
	}
	message, err = placeholder.Render(t.Message, vars)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s message: %w", ErrTemplate, t.ID, err)
	}
	return title, message, nil
}

// TemplateStore holds templates by ID. Safe for concurrent use.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateStore creates a store seeded with the built-in templates.
func NewTemplateStore() *TemplateStore {
	s := &TemplateStore{templates: make(map[string]Template)}
	for _, t := range defaultTemplates() {
		s.templates[t.ID] = t
	}
	return s
}

// Register adds or replaces a template.
func (s *TemplateStore) Register(t Template) error {
	if t.ID == "" {
		return fmt.Errorf("%w: template id is required", ErrTemplate)
	}
	if t.Title == "" && t.Message == "" {
		return fmt.Errorf("%w: template %s has no content", ErrTemplate, t.ID)
	}
	s.mu.Lock()
	s.templates[t.ID] = t
	s.mu.Unlock()
	return nil
}

// Get returns the template with id.
func (s *TemplateStore) Get(id string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	return t, ok
}

// List returns all templates sorted by ID.
func (s *TemplateStore) List() []Template {
	s.mu.RLock()
	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func defaultTemplates() []Template {
	return []Template{
		{
			ID:       "device_offline",
			Category: CategoryDeviceAlert,
			Priority: PriorityHigh,
			Title:    "{{deviceName}} is offline",
			Message:  "{{deviceName}} stopped reporting at {{lastSeen}}.",
		},
		{
			ID:       "energy_threshold",
			Category: CategoryEnergy,
			Priority: PriorityNormal,
			Title:    "Energy usage above {{threshold}} kWh",
			Message:  "{{deviceName}} consumed {{consumption}} kWh, above your {{threshold}} kWh threshold.",
		},
		{
			ID:       "system_alert",
			Category: CategorySystem,
			Priority: PriorityHigh,
			Title:    "{{kind}} alert",
			Message:  "{{message}}",
		},
	}
}
