package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/metrics"
)

// Logger is the logging surface used by the hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Auditor records security events. audit.SQLiteRepository satisfies it.
type Auditor interface {
	Create(ctx context.Context, log *audit.AuditLog) error
}

// Config holds hub settings.
type Config struct {
	// AuthenticationRequired keeps new connections in Connecting until they
	// authenticate. Otherwise they start Active with user-role permissions.
	AuthenticationRequired bool
	HeartbeatInterval      time.Duration
	MaxMessagesPerMinute   int
	// RateWindow is the sliding window length (default one minute).
	RateWindow time.Duration
}

// Default hub settings.
const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultMaxMessagesPerMinute = 60
)

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MaxMessagesPerMinute == 0 {
		c.MaxMessagesPerMinute = DefaultMaxMessagesPerMinute
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
}

// Hub owns channels and connections.
type Hub struct {
	cfg     Config
	logger  Logger
	metrics *metrics.Metrics
	authn   auth.Authenticator
	auditor Auditor
	now     func() time.Time

	mu       sync.Mutex
	channels map[string]*channel
	conns    map[string]*connection
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithMetrics records hub activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithAuthenticator sets the token verifier used by Authenticate.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(h *Hub) { h.authn = a }
}

// WithAuditor records security events (denials, auth failures, timeouts).
func WithAuditor(a Auditor) Option {
	return func(h *Hub) { h.auditor = a }
}

// WithClock overrides the time source for activity and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// New creates a hub with the default channel catalog.
func New(cfg Config, opts ...Option) *Hub {
	cfg.applyDefaults()
	h := &Hub{
		cfg:      cfg,
		logger:   noopLogger{},
		now:      time.Now,
		channels: make(map[string]*channel),
		conns:    make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	for _, spec := range DefaultChannels() {
		h.channels[spec.ID] = newChannel(spec)
	}
	return h
}

// RegisterChannel adds a channel to the catalog.
func (h *Hub) RegisterChannel(spec ChannelSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalidMessage)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.channels[spec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrChannelExists, spec.ID)
	}
	h.channels[spec.ID] = newChannel(spec)
	return nil
}

// Channels returns a snapshot of every channel sorted by ID.
func (h *Hub) Channels() []ChannelInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ChannelInfo, 0, len(h.channels))
	for _, ch := range h.channels {
		out = append(out, ch.info())
	}
	slices.SortFunc(out, func(a, b ChannelInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Channel returns a snapshot of one channel.
func (h *Hub) Channel(id string) (ChannelInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[id]
	if !ok {
		return ChannelInfo{}, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return ch.info(), nil
}

// Connect attaches a transport and returns the new connection ID.
func (h *Hub) Connect(t Transport) string {
	now := h.now()
	c := &connection{
		id:           uuid.NewString(),
		transport:    t,
		state:        StateConnecting,
		channels:     make(map[string]struct{}),
		connectedAt:  now,
		lastActivity: now,
		window:       slidingWindow{limit: h.cfg.MaxMessagesPerMinute, period: h.cfg.RateWindow},
	}
	if !h.cfg.AuthenticationRequired {
		c.admit(auth.Identity{Role: auth.RoleUser})
		c.state = StateActive
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	h.metrics.HubConnections.WithLabelValues(string(c.state)).Inc()
	h.logger.Debug("hub connection opened", "connection", c.id, "state", c.state)
	return c.id
}

// Authenticate verifies token and activates the connection with the
// resulting identity. An identity is assigned once per connection.
//
// Returns:
//   - auth.Identity: The verified identity
//   - error: ErrConnectionNotFound, ErrAlreadyAuthenticated, or ErrNotAuthenticated wrapping the verifier error
func (h *Hub) Authenticate(ctx context.Context, connID, token string) (auth.Identity, error) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return auth.Identity{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	if c.authenticated {
		h.mu.Unlock()
		return auth.Identity{}, ErrAlreadyAuthenticated
	}
	h.mu.Unlock()

	if h.authn == nil {
		return auth.Identity{}, fmt.Errorf("%w: no authenticator configured", ErrNotAuthenticated)
	}
	id, err := h.authn.Authenticate(ctx, token)
	if err != nil {
		h.reject("auth_failed")
		h.audit(ctx, audit.ActionAuthFailed, connID, auth.Identity{}, map[string]any{"error": err.Error()})
		return auth.Identity{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}

	h.mu.Lock()
	c, ok = h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return auth.Identity{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	if c.authenticated {
		h.mu.Unlock()
		return auth.Identity{}, ErrAlreadyAuthenticated
	}
	prev := c.state
	c.authenticated = true
	c.admit(id)
	c.lastActivity = h.now()
	h.transition(c, prev, StateAuthenticated)
	h.transition(c, StateAuthenticated, StateActive)
	h.mu.Unlock()

	h.logger.Info("hub connection authenticated", "connection", connID, "identity", id.String())
	return id, nil
}

// transition moves c between states and updates the state gauge.
// Caller holds h.mu.
func (h *Hub) transition(c *connection, from, to State) {
	c.state = to
	h.metrics.HubConnections.WithLabelValues(string(from)).Dec()
	h.metrics.HubConnections.WithLabelValues(string(to)).Inc()
}

// lookup returns the connection and channel, checking the connection is Active.
// Caller holds h.mu.
func (h *Hub) lookup(connID, channelID string) (*connection, *channel, error) {
	c, ok := h.conns[connID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	if c.state != StateActive {
		return c, nil, ErrNotAuthenticated
	}
	ch, ok := h.channels[channelID]
	if !ok {
		return c, nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	return c, ch, nil
}

// Subscribe adds a connection to a channel.
//
// Returns:
//   - error: ErrConnectionNotFound, ErrNotAuthenticated, ErrChannelNotFound,
//     ErrPermissionDenied or ErrChannelFull
func (h *Hub) Subscribe(connID, channelID string) error {
	h.mu.Lock()
	c, ch, err := h.lookup(connID, channelID)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	if !c.permitted(ch) {
		id := c.identity
		h.mu.Unlock()
		h.reject("permission")
		h.audit(context.Background(), audit.ActionSubscribeDenied, connID, id, map[string]any{"channel": channelID})
		return fmt.Errorf("%w: %s on %s", ErrPermissionDenied, id.Role, channelID)
	}
	if _, already := ch.subscribers[connID]; already {
		h.mu.Unlock()
		return nil
	}
	if ch.full() {
		h.mu.Unlock()
		h.reject("capacity")
		return fmt.Errorf("%w: %s has %d subscribers", ErrChannelFull, channelID, ch.spec.MaxSubscribers)
	}
	ch.subscribers[connID] = struct{}{}
	ch.stats.TotalSubscribers++
	ch.stats.LastActivity = h.now()
	c.channels[channelID] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("hub subscription added", "connection", connID, "channel", channelID)
	return nil
}

// Unsubscribe removes a connection from a channel. It is a no-op when the
// connection is not subscribed or the channel does not exist.
func (h *Hub) Unsubscribe(connID, channelID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	if _, subscribed := c.channels[channelID]; !subscribed {
		return nil
	}
	delete(c.channels, channelID)
	if ch, ok := h.channels[channelID]; ok {
		delete(ch.subscribers, connID)
	}
	return nil
}

// Broadcast sends env from a connection to every other Active subscriber of
// a channel. The sender needs the same permissions as for Subscribe.
// Per-recipient send failures are logged and skipped.
//
// Parameters:
//   - channelID: Target channel
//   - env: Envelope to deliver; Channel is set to channelID
//   - senderID: Sending connection
//   - excludeSender: Skip the sender when it is itself subscribed
//
// Returns:
//   - int: Number of connections the envelope was handed to
//   - error: Lookup or permission error; delivery failures are not returned
func (h *Hub) Broadcast(channelID string, env Envelope, senderID string, excludeSender bool) (int, error) {
	h.mu.Lock()
	c, ch, err := h.lookup(senderID, channelID)
	if err != nil {
		h.mu.Unlock()
		return 0, err
	}
	if !c.permitted(ch) {
		id := c.identity
		h.mu.Unlock()
		h.reject("permission")
		h.audit(context.Background(), audit.ActionBroadcastDenied, senderID, id, map[string]any{"channel": channelID})
		return 0, fmt.Errorf("%w: %s on %s", ErrPermissionDenied, id.Role, channelID)
	}
	exclude := ""
	if excludeSender {
		exclude = senderID
	}
	targets := h.recipients(ch, exclude)
	h.mu.Unlock()

	return h.deliver(channelID, env, targets), nil
}

// Publish sends a system-originated envelope to every Active subscriber.
func (h *Hub) Publish(channelID string, env Envelope) (int, error) {
	h.mu.Lock()
	ch, ok := h.channels[channelID]
	if !ok {
		h.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	targets := h.recipients(ch, "")
	h.mu.Unlock()

	return h.deliver(channelID, env, targets), nil
}

type target struct {
	connID    string
	transport Transport
}

// recipients snapshots the Active subscribers of ch. Caller holds h.mu.
func (h *Hub) recipients(ch *channel, exclude string) []target {
	out := make([]target, 0, len(ch.subscribers))
	for id := range ch.subscribers {
		c := h.conns[id]
		if id == exclude || c == nil || c.state != StateActive {
			continue
		}
		out = append(out, target{connID: id, transport: c.transport})
	}
	return out
}

// deliver marshals env once and sends it to each target.
func (h *Hub) deliver(channelID string, env Envelope, targets []target) int {
	env.Channel = channelID
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = h.now().UTC()
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal envelope", "channel", channelID, "error", err)
		return 0
	}

	sent := 0
	for _, t := range targets {
		if err := t.transport.Send(data); err != nil {
			h.logger.Warn("hub send failed", "connection", t.connID, "channel", channelID, "error", err)
			continue
		}
		sent++
	}

	h.mu.Lock()
	if ch, ok := h.channels[channelID]; ok {
		ch.stats.MessagesSent += int64(sent)
		ch.stats.LastActivity = h.now()
	}
	h.mu.Unlock()
	h.metrics.HubMessages.WithLabelValues(channelID).Add(float64(sent))
	return sent
}

// SendToUser delivers env to every Active connection of a user and returns
// how many received it.
func (h *Hub) SendToUser(userID string, env Envelope) int {
	h.mu.Lock()
	var targets []target
	for _, c := range h.conns {
		if c.state == StateActive && c.identity.UserID == userID {
			targets = append(targets, target{connID: c.id, transport: c.transport})
		}
	}
	h.mu.Unlock()

	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal envelope", "user", userID, "error", err)
		return 0
	}
	sent := 0
	for _, t := range targets {
		if err := t.transport.Send(data); err != nil {
			h.logger.Warn("hub send failed", "connection", t.connID, "user", userID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Send delivers env to a single connection.
func (h *Hub) Send(connID string, env Envelope) error {
	h.mu.Lock()
	c, ok := h.conns[connID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}
	return c.transport.Send(data)
}

// Touch records inbound activity (such as a transport-level pong).
func (h *Hub) Touch(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		c.lastActivity = h.now()
	}
}

// Disconnect closes a connection, removes it from every channel and
// discards it. Disconnecting an unknown connection is a no-op.
func (h *Hub) Disconnect(connID, reason string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	for chID := range c.channels {
		if ch, ok := h.channels[chID]; ok {
			delete(ch.subscribers, connID)
		}
	}
	c.channels = nil
	h.metrics.HubConnections.WithLabelValues(string(c.state)).Dec()
	c.state = StateDisconnected
	delete(h.conns, connID)
	h.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		h.logger.Debug("closing transport", "connection", connID, "error", err)
	}
	h.logger.Debug("hub connection closed", "connection", connID, "reason", reason)
}

// Connections returns a snapshot of every open connection.
func (h *Hub) Connections() []ConnectionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ConnectionInfo, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c.info())
	}
	slices.SortFunc(out, func(a, b ConnectionInfo) int { return a.ConnectedAt.Compare(b.ConnectedAt) })
	return out
}

// Connection returns a snapshot of one connection.
func (h *Hub) Connection(connID string) (ConnectionInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return ConnectionInfo{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	return c.info(), nil
}

// CheckHeartbeats disconnects connections silent for more than twice the
// heartbeat interval and pings the rest. It returns the number disconnected.
func (h *Hub) CheckHeartbeats() int {
	now := h.now()
	limit := 2 * h.cfg.HeartbeatInterval

	h.mu.Lock()
	var expired []string
	var alive []target
	for id, c := range h.conns {
		if now.Sub(c.lastActivity) > limit {
			expired = append(expired, id)
			continue
		}
		alive = append(alive, target{connID: id, transport: c.transport})
	}
	h.mu.Unlock()

	for _, id := range expired {
		h.Disconnect(id, "heartbeat timeout")
		h.audit(context.Background(), audit.ActionHeartbeatTimeout, id, auth.Identity{}, nil)
		h.logger.Info("hub connection timed out", "connection", id, "silence_limit", limit)
	}
	for _, t := range alive {
		if err := t.transport.Ping(); err != nil {
			h.logger.Debug("heartbeat ping failed", "connection", t.connID, "error", err)
		}
	}
	return len(expired)
}

// Run checks heartbeats every HeartbeatInterval until ctx is cancelled,
// then disconnects every connection.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return nil
		case <-ticker.C:
			h.CheckHeartbeats()
		}
	}
}

// Close disconnects every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Disconnect(id, "hub shutdown")
	}
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) reject(reason string) {
	h.metrics.HubRejections.WithLabelValues(reason).Inc()
}

func (h *Hub) audit(ctx context.Context, action, connID string, id auth.Identity, details map[string]any) {
	if h.auditor == nil {
		return
	}
	entry := &audit.AuditLog{
		Action:     action,
		EntityType: audit.EntityConnection,
		EntityID:   connID,
		UserID:     id.UserID,
		Source:     "hub",
		Details:    details,
	}
	if err := h.auditor.Create(ctx, entry); err != nil {
		h.logger.Warn("failed to write audit log", "action", action, "error", err)
	}
}
