package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-telemetry/internal/delivery"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/metrics"
)

// CategoryGeneral is used when a request names no category.
const CategoryGeneral = "general"

// Orchestrator dispatches notifications across delivery channels.
//
// Thread Safety: Send may be called concurrently. Rule evaluation is
// serialised so trigger counters advance one notification at a time.
type Orchestrator struct {
	push  delivery.PushSender
	sms   delivery.SMSSender
	email delivery.EmailSender
	inApp delivery.InAppSender

	prefs       PreferenceStore
	repo        Repository
	rules       RuleStore
	templates   *TemplateStore
	analytics   *Analytics
	broadcaster Broadcaster
	auditor     Auditor

	deliveryTimeout time.Duration
	logger          Logger
	metrics         *metrics.Metrics
	now             func() time.Time

	rulesMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPush sets the push adapter.
func WithPush(s delivery.PushSender) Option {
	return func(o *Orchestrator) { o.push = s }
}

// WithSMS sets the SMS adapter.
func WithSMS(s delivery.SMSSender) Option {
	return func(o *Orchestrator) { o.sms = s }
}

// WithEmail sets the email adapter.
func WithEmail(s delivery.EmailSender) Option {
	return func(o *Orchestrator) { o.email = s }
}

// WithInApp sets the in-app adapter.
func WithInApp(s delivery.InAppSender) Option {
	return func(o *Orchestrator) { o.inApp = s }
}

// WithPreferences sets the preference store.
func WithPreferences(p PreferenceStore) Option {
	return func(o *Orchestrator) { o.prefs = p }
}

// WithRepository persists notifications to r.
func WithRepository(r Repository) Option {
	return func(o *Orchestrator) { o.repo = r }
}

// WithRules enables rule evaluation against rs.
func WithRules(rs RuleStore) Option {
	return func(o *Orchestrator) { o.rules = rs }
}

// WithTemplates replaces the built-in template store.
func WithTemplates(t *TemplateStore) Option {
	return func(o *Orchestrator) { o.templates = t }
}

// WithBroadcaster enables the broadcast rule action.
func WithBroadcaster(b Broadcaster) Option {
	return func(o *Orchestrator) { o.broadcaster = b }
}

// WithAuditor enables the audit rule action.
func WithAuditor(a Auditor) Option {
	return func(o *Orchestrator) { o.auditor = a }
}

// WithDeliveryTimeout bounds each channel attempt. Zero means no deadline.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.deliveryTimeout = d }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics records notification activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. Channels without an adapter are never resolved.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		templates: NewTemplateStore(),
		analytics: NewAnalytics(),
		logger:    noopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	return o
}

// Templates returns the template store.
func (o *Orchestrator) Templates() *TemplateStore {
	return o.templates
}

// Analytics returns the running analytics.
func (o *Orchestrator) Analytics() *Analytics {
	return o.analytics
}

// Send renders, dispatches and records one notification, then evaluates rules.
//
// Channel failures are recorded in the returned Event and never surface as
// an error; the error return is reserved for requests that could not be
// dispatched at all.
//
// Parameters:
//   - ctx: Context passed to adapters and stores
//   - req: Notification request
//
// Returns:
//   - *Event: The completed notification
//   - error: ErrInvalidRequest or ErrTemplate, before anything is dispatched
func (o *Orchestrator) Send(ctx context.Context, req Request) (*Event, error) {
	if req.Source == "" {
		req.Source = SourceAPI
	}
	return o.send(ctx, req, true)
}

func (o *Orchestrator) send(ctx context.Context, req Request, evaluateRules bool) (*Event, error) {
	ev, err := o.prepare(req)
	if err != nil {
		return nil, err
	}

	prefs := o.preferences(ctx, ev.UserID)
	ev.Channels = o.resolveChannels(prefs, ev.Category)

	if o.repo != nil {
		if err := o.repo.Create(ctx, ev); err != nil {
			o.logger.Warn("failed to persist notification", "id", ev.ID, "error", err)
		}
	}

	ev.Results = o.dispatch(ctx, ev, prefs)
	ev.Status = aggregate(ev.Results)
	completed := o.now()
	ev.CompletedAt = &completed

	if o.repo != nil {
		if err := o.repo.Complete(ctx, ev); err != nil {
			o.logger.Warn("failed to persist delivery results", "id", ev.ID, "error", err)
		}
	}
	o.analytics.RecordEvent(ev)
	o.metrics.NotificationsSent.WithLabelValues(string(ev.Status)).Inc()
	o.logger.Info("notification dispatched",
		"id", ev.ID, "user", ev.UserID, "category", ev.Category,
		"channels", len(ev.Channels), "status", ev.Status)

	if evaluateRules {
		o.evaluateRules(ctx, ev)
	}
	return ev, nil
}

// prepare validates the request and renders its template.
func (o *Orchestrator) prepare(req Request) (*Event, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}

	title, message := req.Title, req.Message
	category, priority := req.Category, req.Priority
	if req.TemplateID != "" {
		tmpl, ok := o.templates.Get(req.TemplateID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown template %q", ErrTemplate, req.TemplateID)
		}
		var err error
		if title, message, err = tmpl.Render(req.TemplateVariables); err != nil {
			return nil, err
		}
		if category == "" {
			category = tmpl.Category
		}
		if priority == "" {
			priority = tmpl.Priority
		}
	}
	if title == "" && message == "" {
		return nil, fmt.Errorf("%w: title or message is required", ErrInvalidRequest)
	}
	if category == "" {
		category = CategoryGeneral
	}
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, priority)
	}

	return &Event{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Category:  category,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Data:      req.Data,
		Status:    StatusPending,
		Source:    req.Source,
		CreatedAt: o.now(),
	}, nil
}

func (o *Orchestrator) preferences(ctx context.Context, userID string) Preferences {
	if o.prefs == nil {
		return Preferences{UserID: userID}
	}
	p, err := o.prefs.GetUserPreferences(ctx, userID)
	if err != nil {
		o.logger.Warn("failed to load preferences, using in-app only", "user", userID, "error", err)
		return Preferences{UserID: userID}
	}
	return p
}

// resolveChannels drops channels that have no adapter configured.
func (o *Orchestrator) resolveChannels(p Preferences, category string) []Channel {
	var out []Channel
	for _, c := range p.Channels(category) {
		if o.hasAdapter(c) {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) hasAdapter(c Channel) bool {
	switch c {
	case ChannelPush:
		return o.push != nil
	case ChannelSMS:
		return o.sms != nil
	case ChannelEmail:
		return o.email != nil
	case ChannelInApp:
		return o.inApp != nil
	}
	return false
}

// dispatch runs one attempt per channel concurrently and waits for all of them.
func (o *Orchestrator) dispatch(ctx context.Context, ev *Event, prefs Preferences) []DeliveryResult {
	results := make([]DeliveryResult, len(ev.Channels))
	var g errgroup.Group
	for i, ch := range ev.Channels {
		g.Go(func() error {
			results[i] = o.attempt(ctx, ch, ev, prefs)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) attempt(ctx context.Context, ch Channel, ev *Event, prefs Preferences) (result DeliveryResult) {
	if o.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deliveryTimeout)
		defer cancel()
	}

	start := o.now()
	result = DeliveryResult{Channel: ch}
	defer func() {
		if r := recover(); r != nil {
			result.Status = delivery.StatusFailed
			result.Error = fmt.Sprintf("%v: adapter panic: %v", ErrDelivery, r)
		}
		result.Timestamp = o.now()
		result.Duration = result.Timestamp.Sub(start)
		o.metrics.DeliveryAttempts.WithLabelValues(string(ch), string(result.Status)).Inc()
		o.metrics.DeliveryDuration.WithLabelValues(string(ch)).Observe(result.Duration.Seconds())
		if result.Status == delivery.StatusFailed {
			o.logger.Warn("notification channel failed", "id", ev.ID, "channel", ch, "error", result.Error)
		}
	}()

	status, meta, err := o.deliverTo(ctx, ch, ev, prefs)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		result.Status = delivery.StatusFailed
		result.Error = fmt.Errorf("%w: %w", ErrDelivery, err).Error()
		result.Metadata = meta
		return result
	}
	result.Status = status
	result.Metadata = meta
	return result
}

func (o *Orchestrator) deliverTo(ctx context.Context, ch Channel, ev *Event, prefs Preferences) (delivery.Status, map[string]any, error) {
	switch ch {
	case ChannelPush:
		r, err := o.push.SendNotification(ctx, ev.UserID, ev.Title, ev.Message, ev.Data, string(ev.Priority), ev.Category)
		return r.Status, map[string]any{"id": r.ID}, err

	case ChannelSMS:
		if prefs.Phone == "" {
			return delivery.StatusFailed, nil, fmt.Errorf("%w: no phone number", delivery.ErrInvalidRecipient)
		}
		r, err := o.sms.SendMessage(ctx, ev.UserID, prefs.Phone, smsText(ev), smsType(ev.Priority), string(ev.Priority))
		return r.Status, map[string]any{"id": r.ID, "provider": r.Provider, "cost": r.Cost}, err

	case ChannelEmail:
		if prefs.Email == "" {
			return delivery.StatusFailed, nil, fmt.Errorf("%w: no email address", delivery.ErrInvalidRecipient)
		}
		r, err := o.email.SendEmail(ctx, prefs.Email, ev.Title, ev.Message)
		return r.Status, map[string]any{"id": r.ID, "provider": r.Provider}, err

	case ChannelInApp:
		r, err := o.inApp.Deliver(ctx, delivery.InAppMessage{
			NotificationID: ev.ID,
			UserID:         ev.UserID,
			Title:          ev.Title,
			Message:        ev.Message,
			Category:       ev.Category,
			Priority:       string(ev.Priority),
			Data:           ev.Data,
			Timestamp:      ev.CreatedAt,
		})
		return r.Status, map[string]any{"recipients": r.Recipients}, err
	}
	return delivery.StatusFailed, nil, fmt.Errorf("unknown channel %q", ch)
}

func smsText(ev *Event) string {
	if ev.Title == "" {
		return ev.Message
	}
	if ev.Message == "" {
		return ev.Title
	}
	return ev.Title + ": " + ev.Message
}

func smsType(p Priority) string {
	if p == PriorityLow {
		return "Promotional"
	}
	return "Transactional"
}

// aggregate computes the overall status. One successful channel is enough
// for delivered even when siblings failed.
func aggregate(results []DeliveryResult) Status {
	if len(results) == 0 {
		return StatusSent
	}
	for _, r := range results {
		if r.Status.Succeeded() {
			return StatusDelivered
		}
	}
	return StatusFailed
}

// MarkRead marks a notification read and counts the first read in analytics.
func (o *Orchestrator) MarkRead(ctx context.Context, id string) (*Event, error) {
	if o.repo == nil {
		return nil, ErrNotificationNotFound
	}
	ev, marked, err := o.repo.MarkRead(ctx, id, o.now())
	if err != nil {
		return nil, err
	}
	if marked {
		o.analytics.RecordRead(ev)
	}
	return ev, nil
}

// Inbox returns a user's stored notifications, newest first.
func (o *Orchestrator) Inbox(ctx context.Context, userID string, limit int) ([]Event, error) {
	if o.repo == nil {
		return []Event{}, nil
	}
	return o.repo.ListByUser(ctx, userID, limit)
}

// Notification returns a stored notification with its delivery results.
func (o *Orchestrator) Notification(ctx context.Context, id string) (*Event, error) {
	if o.repo == nil {
		return nil, ErrNotificationNotFound
	}
	return o.repo.Get(ctx, id)
}
