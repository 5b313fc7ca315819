package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/delivery"
	"github.com/nerrad567/gray-logic-telemetry/internal/device"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingest"
	"github.com/nerrad567/gray-logic-telemetry/internal/notify"
	"github.com/nerrad567/gray-logic-telemetry/internal/pipeline"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
	"github.com/nerrad567/gray-logic-telemetry/internal/testutil"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// capturePersister records every persisted batch.
type capturePersister struct {
	mu      sync.Mutex
	records []*telemetry.Record
}

func (p *capturePersister) Persist(_ context.Context, batch []*telemetry.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, batch...)
	return nil
}

// testEnv bundles a server with the components behind it.
type testEnv struct {
	srv     *Server
	handler http.Handler
	buffer  *ingest.Buffer
	cache   *pipeline.Cache
	hub     *hub.Hub
	devices *device.Registry
}

// testServer creates a Server over real components backed by a temp SQLite database.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.OpenDB(t)
	log := logging.Discard()
	authn := auth.NewJWTAuthenticator(testSecret, "")

	buf := ingest.NewBuffer(ingest.Config{BatchSize: 100, BatchTimeout: time.Hour}, &capturePersister{})
	ingestor := ingest.NewIngestor(telemetry.NewValidator(), buf, nil, nil)

	cache := pipeline.NewCache()
	pipe := pipeline.New(pipeline.Config{}, pipeline.WithOutput(pipeline.OutputCache, cache))
	if err := pipe.AddProcessor(pipeline.Processor{
		ID:      "latest",
		Name:    "Latest values",
		Outputs: []pipeline.Output{{Type: pipeline.OutputCache}},
		Active:  true,
	}); err != nil {
		t.Fatalf("AddProcessor: %v", err)
	}

	h := hub.New(hub.Config{}, hub.WithAuthenticator(authn))

	rules := notify.NewSQLiteRuleStore(db.DB)
	prefs := notify.NewSQLitePreferenceStore(db.DB)
	orch := notify.New(
		notify.WithInApp(delivery.HubInApp{Hub: h}),
		notify.WithRepository(notify.NewSQLiteRepository(db.DB)),
		notify.WithPreferences(prefs),
		notify.WithRules(rules),
		notify.WithBroadcaster(h),
	)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Hub:           config.HubConfig{MaxMessageSize: 8192},
		Logger:        log,
		Authenticator: authn,
		Ingestor:      ingestor,
		Pipeline:      pipe,
		Cache:         cache,
		ChannelHub:    h,
		Notifier:      orch,
		Rules:         rules,
		Preferences:   prefs,
		Devices:       registry,
		AuditRepo:     audit.NewSQLiteRepository(db.DB),
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{
		srv:     srv,
		handler: srv.Handler(),
		buffer:  buf,
		cache:   cache,
		hub:     h,
		devices: registry,
	}
}

func token(t *testing.T, id auth.Identity) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(id, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return tok
}

var (
	alice   = auth.Identity{UserID: "alice", Role: auth.RoleUser}
	bob     = auth.Identity{UserID: "bob", Role: auth.RoleUser}
	admin   = auth.Identity{UserID: "ops", Role: auth.RoleAdmin}
	meter01 = auth.Identity{DeviceID: "meter-01", Role: auth.RoleDevice}
)

// do performs a request against the router. A zero identity sends no token.
func (e *testEnv) do(t *testing.T, id auth.Identity, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if id.Role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, id))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func energyReading(deviceID string) map[string]any {
	return map[string]any{
		"deviceId":    deviceID,
		"timestamp":   time.Now().UnixMilli(),
		"type":        "energy",
		"consumption": 500.0,
		"voltage":     230.0,
		"current":     2.5,
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) should fail without a logger")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() should fail without an authenticator")
	}
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.Identity{}, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return context.DeadlineExceeded }

func TestHealth_Degraded(t *testing.T) {
	env := testServer(t)
	env.srv.healthChecks = map[string]HealthChecker{"mqtt": failingCheck{}}
	env.handler = env.srv.Handler()

	w := env.do(t, auth.Identity{}, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + mustToken(t, alice, "another-secret-that-is-long-enough!!"), http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, alice), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func mustToken(t *testing.T, id auth.Identity, secret string) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(id, secret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return tok
}

func TestPermissions(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name   string
		id     auth.Identity
		method string
		path   string
		body   any
		want   int
	}{
		{"user cannot push telemetry", alice, http.MethodPost, "/api/v1/telemetry", energyReading("meter-01"), http.StatusForbidden},
		{"device pushes telemetry", meter01, http.MethodPost, "/api/v1/telemetry", energyReading("meter-01"), http.StatusAccepted},
		{"user cannot read pipeline stats", alice, http.MethodGet, "/api/v1/pipeline/stats", nil, http.StatusForbidden},
		{"admin reads pipeline stats", admin, http.MethodGet, "/api/v1/pipeline/stats", nil, http.StatusOK},
		{"device cannot read latest energy", meter01, http.MethodGet, "/api/v1/telemetry/latest/meter-01", nil, http.StatusForbidden},
		{"user cannot send batch", alice, http.MethodPost, "/api/v1/notifications/batch", map[string]any{}, http.StatusForbidden},
		{"user cannot create device", alice, http.MethodPost, "/api/v1/devices", map[string]any{}, http.StatusForbidden},
		{"user reads device list", alice, http.MethodGet, "/api/v1/devices", nil, http.StatusOK},
		{"user cannot read audit", alice, http.MethodGet, "/api/v1/audit", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.id, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestIngestTelemetry_Single(t *testing.T) {
	env := testServer(t)

	w := env.do(t, meter01, http.MethodPost, "/api/v1/telemetry", energyReading("meter-01"))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", w.Code, w.Body.String())
	}
	resp := decode[ingestResponse](t, w)
	if !resp.Accepted || resp.ID == "" {
		t.Errorf("response = %+v, want accepted with id", resp)
	}
	if got := env.buffer.Len(telemetry.TypeEnergy); got != 1 {
		t.Errorf("buffered energy = %d, want 1", got)
	}
}

func TestIngestTelemetry_Invalid(t *testing.T) {
	env := testServer(t)

	raw := energyReading("meter-01")
	raw["voltage"] = 400.0

	w := env.do(t, meter01, http.MethodPost, "/api/v1/telemetry", raw)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	resp := decode[ingestResponse](t, w)
	if resp.Accepted || len(resp.Errors) == 0 {
		t.Errorf("response = %+v, want rejected with errors", resp)
	}
	if got := env.buffer.Len(telemetry.TypeEnergy); got != 0 {
		t.Errorf("buffered energy = %d, want 0", got)
	}
}

func TestIngestTelemetry_Batch(t *testing.T) {
	env := testServer(t)

	bad := energyReading("meter-02")
	bad["consumption"] = -1.0
	batch := []map[string]any{energyReading("meter-01"), bad, energyReading("meter-03")}

	w := env.do(t, admin, http.MethodPost, "/api/v1/telemetry", batch)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", w.Code, w.Body.String())
	}
	resp := decode[batchIngestResponse](t, w)
	if resp.Accepted != 2 || resp.Rejected != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 2/1", resp.Accepted, resp.Rejected)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].DeviceID != "meter-02" {
		t.Errorf("errors = %+v, want one for meter-02", resp.Errors)
	}
}

func TestIngestTelemetry_DeviceBinding(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"foreign device id", energyReading("meter-99"), http.StatusForbidden},
		{"foreign id in batch", []map[string]any{energyReading("meter-01"), energyReading("meter-99")}, http.StatusForbidden},
		{"omitted id is filled in", func() map[string]any {
			raw := energyReading("")
			delete(raw, "deviceId")
			return raw
		}(), http.StatusAccepted},
		{"malformed json", "{", http.StatusBadRequest},
		{"scalar body", "42", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, meter01, http.MethodPost, "/api/v1/telemetry", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestLatestTelemetry(t *testing.T) {
	env := testServer(t)

	w := env.do(t, alice, http.MethodGet, "/api/v1/telemetry/latest/meter-01", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before any record", w.Code)
	}

	rec := &telemetry.Record{ID: "r1", DeviceID: "meter-01", Type: telemetry.TypeEnergy, Timestamp: 1000,
		Data: map[string]any{"consumption": 1.5}}
	if err := env.cache.Deliver(context.Background(), pipeline.Output{}, rec); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	w = env.do(t, alice, http.MethodGet, "/api/v1/telemetry/latest/meter-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decode[struct {
		DeviceID string                       `json:"deviceId"`
		Latest   map[string]*telemetry.Record `json:"latest"`
	}](t, w)
	if body.Latest["energy"] == nil || body.Latest["energy"].ID != "r1" {
		t.Errorf("latest = %+v, want energy record r1", body.Latest)
	}
}

func TestPipelineProcessors(t *testing.T) {
	env := testServer(t)

	w := env.do(t, admin, http.MethodGet, "/api/v1/pipeline/processors", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if body := decode[map[string]any](t, w); body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}

	w = env.do(t, admin, http.MethodPatch, "/api/v1/pipeline/processors/latest", map[string]any{"active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d (%s)", w.Code, w.Body.String())
	}
	if env.srv.pipeline.Processors()[0].Active {
		t.Error("processor still active after PATCH active=false")
	}

	w = env.do(t, admin, http.MethodPatch, "/api/v1/pipeline/processors/missing", map[string]any{"active": true})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown processor status = %d, want 404", w.Code)
	}

	w = env.do(t, admin, http.MethodPatch, "/api/v1/pipeline/processors/latest", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing active status = %d, want 400", w.Code)
	}
}

func TestListChannels_FilteredByRole(t *testing.T) {
	env := testServer(t)

	ids := func(id auth.Identity) map[string]bool {
		w := env.do(t, id, http.MethodGet, "/api/v1/channels", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		body := decode[struct {
			Channels []hub.ChannelInfo `json:"channels"`
		}](t, w)
		out := make(map[string]bool)
		for _, c := range body.Channels {
			out[c.ID] = true
		}
		return out
	}

	userChannels := ids(alice)
	if !userChannels[hub.ChannelEnergyData] {
		t.Error("user should see ENERGY_DATA")
	}
	if userChannels[hub.ChannelAdminPanel] {
		t.Error("user should not see ADMIN_PANEL")
	}
	if !ids(admin)[hub.ChannelAdminPanel] {
		t.Error("admin should see ADMIN_PANEL")
	}
}

func TestSendNotification(t *testing.T) {
	env := testServer(t)

	w := env.do(t, alice, http.MethodPost, "/api/v1/notifications", map[string]any{
		"category": "energy",
		"priority": "high",
		"title":    "Usage spike",
		"message":  "Consumption doubled",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	ev := decode[notify.Event](t, w)
	if ev.UserID != "alice" {
		t.Errorf("userId = %q, want caller alice", ev.UserID)
	}
	if len(ev.Channels) != 1 || ev.Channels[0] != notify.ChannelInApp {
		t.Errorf("channels = %v, want [in_app]", ev.Channels)
	}
	// No live connection: in-app reports sent, which counts as a success.
	if ev.Status != notify.StatusDelivered {
		t.Errorf("status = %q, want delivered", ev.Status)
	}

	// Inbox lists it, read receipt sticks.
	w = env.do(t, alice, http.MethodGet, "/api/v1/notifications", nil)
	inbox := decode[struct {
		Notifications []notify.Event `json:"notifications"`
	}](t, w)
	if len(inbox.Notifications) != 1 || inbox.Notifications[0].ID != ev.ID {
		t.Fatalf("inbox = %+v", inbox.Notifications)
	}

	w = env.do(t, alice, http.MethodPost, "/api/v1/notifications/"+ev.ID+"/read", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("read status = %d (%s)", w.Code, w.Body.String())
	}
	if read := decode[notify.Event](t, w); read.ReadAt == nil {
		t.Error("readAt not set")
	}

	// Another user cannot see or mark it.
	w = env.do(t, bob, http.MethodPost, "/api/v1/notifications/"+ev.ID+"/read", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign read status = %d, want 404", w.Code)
	}
}

func TestSendNotification_Errors(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		id   auth.Identity
		body any
		want int
	}{
		{"other user", alice, map[string]any{"userId": "bob", "title": "x", "message": "y"}, http.StatusForbidden},
		{"admin may target others", admin, map[string]any{"userId": "bob", "title": "x", "message": "y"}, http.StatusCreated},
		{"missing template variable", alice, map[string]any{"templateId": "device_offline"}, http.StatusUnprocessableEntity},
		{"unknown template", alice, map[string]any{"templateId": "nope"}, http.StatusUnprocessableEntity},
		{"bad json", alice, "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.id, http.MethodPost, "/api/v1/notifications", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSendBatchAndAnalytics(t *testing.T) {
	env := testServer(t)

	w := env.do(t, admin, http.MethodPost, "/api/v1/notifications/batch", map[string]any{
		"notifications": []map[string]any{
			{"userId": "alice", "title": "a", "message": "1"},
			{"userId": "", "title": "b", "message": "2"},
			{"userId": "bob", "title": "c", "message": "3"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	res := decode[notify.BatchResult](t, w)
	if res.Status != notify.BatchStatusCompleted || res.Total != 3 || res.Succeeded != 2 || res.Failed != 1 {
		t.Errorf("batch = %+v, want completed 3/2/1", res)
	}

	w = env.do(t, admin, http.MethodGet, "/api/v1/notifications/analytics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analytics status = %d", w.Code)
	}
	report := decode[notify.Report](t, w)
	if report.Total.Sent != 2 {
		t.Errorf("total sent = %d, want 2", report.Total.Sent)
	}

	w = env.do(t, admin, http.MethodPost, "/api/v1/notifications/batch", map[string]any{"notifications": []any{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", w.Code)
	}
}

func TestRulesCRUD(t *testing.T) {
	env := testServer(t)

	rule := map[string]any{
		"name":     "Escalate urgent",
		"active":   true,
		"priority": 1,
		"conditions": []map[string]any{
			{"field": "priority", "operator": "equals", "value": "urgent"},
		},
		"actions": []map[string]any{{"type": "audit"}},
	}

	w := env.do(t, alice, http.MethodPost, "/api/v1/rules", rule)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	created := decode[notify.Rule](t, w)
	if created.ID == "" || created.UserID != "alice" {
		t.Fatalf("created = %+v", created)
	}

	select {
	case entry := <-env.srv.auditCh:
		if entry.Action != audit.ActionRuleCreated || entry.EntityID != created.ID {
			t.Errorf("audit entry = %+v", entry)
		}
	default:
		t.Error("rule creation was not audited")
	}

	w = env.do(t, alice, http.MethodGet, "/api/v1/rules", nil)
	if body := decode[map[string]any](t, w); body["count"] != float64(1) {
		t.Errorf("list count = %v, want 1", body["count"])
	}

	// Bob sees nothing and cannot touch Alice's rule.
	w = env.do(t, bob, http.MethodGet, "/api/v1/rules", nil)
	if body := decode[map[string]any](t, w); body["count"] != float64(0) {
		t.Errorf("bob list count = %v, want 0", body["count"])
	}
	if w := env.do(t, bob, http.MethodDelete, "/api/v1/rules/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("bob delete status = %d, want 404", w.Code)
	}

	rule["name"] = "Renamed"
	rule["userId"] = "bob"
	w = env.do(t, alice, http.MethodPut, "/api/v1/rules/"+created.ID, rule)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d (%s)", w.Code, w.Body.String())
	}
	updated := decode[notify.Rule](t, w)
	if updated.Name != "Renamed" || updated.UserID != "alice" {
		t.Errorf("updated = %+v, want renamed and still owned by alice", updated)
	}

	if w := env.do(t, alice, http.MethodDelete, "/api/v1/rules/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := env.do(t, alice, http.MethodGet, "/api/v1/rules/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestCreateRule_Invalid(t *testing.T) {
	env := testServer(t)

	w := env.do(t, alice, http.MethodPost, "/api/v1/rules", map[string]any{"name": "no actions"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	w = env.do(t, alice, http.MethodPost, "/api/v1/rules", map[string]any{
		"userId": "SYSTEM", "name": "x", "actions": []map[string]any{{"type": "audit"}},
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("user creating SYSTEM rule status = %d, want 403", w.Code)
	}
}

func TestPreferences(t *testing.T) {
	env := testServer(t)

	w := env.do(t, alice, http.MethodGet, "/api/v1/preferences", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if p := decode[notify.Preferences](t, w); p.UserID != "alice" || p.EmailEnabled {
		t.Errorf("defaults = %+v", p)
	}

	w = env.do(t, alice, http.MethodPut, "/api/v1/preferences", map[string]any{
		"userId":       "bob",
		"email":        "alice@example.com",
		"emailEnabled": true,
		"categories":   []string{"energy"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d (%s)", w.Code, w.Body.String())
	}

	w = env.do(t, alice, http.MethodGet, "/api/v1/preferences", nil)
	p := decode[notify.Preferences](t, w)
	if p.UserID != "alice" || !p.EmailEnabled || p.Email != "alice@example.com" {
		t.Errorf("stored = %+v", p)
	}

	if w := env.do(t, alice, http.MethodGet, "/api/v1/preferences?userId=bob", nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign read status = %d, want 403", w.Code)
	}
	if w := env.do(t, admin, http.MethodGet, "/api/v1/preferences?userId=alice", nil); w.Code != http.StatusOK {
		t.Errorf("admin read status = %d, want 200", w.Code)
	}
}

func TestDevicesCRUD(t *testing.T) {
	env := testServer(t)

	dev := map[string]any{"id": "meter-01", "name": "Main meter", "type": "energy_meter", "location": "plant-room"}

	if w := env.do(t, admin, http.MethodPost, "/api/v1/devices", dev); w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	if w := env.do(t, admin, http.MethodPost, "/api/v1/devices", dev); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
	if w := env.do(t, admin, http.MethodPost, "/api/v1/devices", map[string]any{"id": "bad id!", "name": "x", "type": "y"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid status = %d, want 422", w.Code)
	}

	w := env.do(t, alice, http.MethodGet, "/api/v1/devices?type=energy_meter", nil)
	if body := decode[map[string]any](t, w); body["count"] != float64(1) {
		t.Errorf("filtered count = %v, want 1", body["count"])
	}
	w = env.do(t, alice, http.MethodGet, "/api/v1/devices?location=roof", nil)
	if body := decode[map[string]any](t, w); body["count"] != float64(0) {
		t.Errorf("location count = %v, want 0", body["count"])
	}

	dev["name"] = "Main incomer"
	if w := env.do(t, admin, http.MethodPut, "/api/v1/devices/meter-01", dev); w.Code != http.StatusOK {
		t.Fatalf("update status = %d (%s)", w.Code, w.Body.String())
	}
	got, err := env.devices.GetDevice(context.Background(), "meter-01")
	if err != nil || got.Name != "Main incomer" {
		t.Errorf("after update = %+v, %v", got, err)
	}

	if w := env.do(t, admin, http.MethodDelete, "/api/v1/devices/meter-01", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := env.do(t, alice, http.MethodGet, "/api/v1/devices/meter-01", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestSystemMetrics(t *testing.T) {
	env := testServer(t)

	w := env.do(t, admin, http.MethodGet, "/api/v1/system", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	m := decode[SystemMetrics](t, w)
	if m.Version != "test" || m.Hub.Channels == 0 || m.Pipeline == nil {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRateLimit(t *testing.T) {
	env := testServer(t)
	env.srv.limiter = newClientLimiter(60, 2)
	env.handler = env.srv.Handler()

	codes := make([]int, 0, 3)
	for range 3 {
		w := env.do(t, auth.Identity{}, http.MethodGet, "/api/v1/health", nil)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestClientLimiter_Sweep(t *testing.T) {
	l := newClientLimiter(60, 1)
	l.allow("10.0.0.1")
	l.clients["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	l.allow("10.0.0.2")

	l.sweep(limiterIdleTTL)

	if _, ok := l.clients["10.0.0.1"]; ok {
		t.Error("idle client not swept")
	}
	if _, ok := l.clients["10.0.0.2"]; !ok {
		t.Error("active client swept")
	}
}

func TestCORS(t *testing.T) {
	env := testServer(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"https://panel.example"}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://panel.example")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://panel.example" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin echoed: %q", got)
	}
}

func TestStatusClassAndRoutePattern(t *testing.T) {
	for status, want := range map[int]string{200: "2xx", 404: "4xx", 503: "5xx"} {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", status, got, want)
		}
	}
	if got := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); got != "unmatched" {
		t.Errorf("routePattern without chi context = %q", got)
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?token=" + token(t, alice)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	resp.Body.Close()

	sub := hub.NewEnvelope(hub.TypeSubscribe, hub.ChannelEnergyData, nil)
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack hub.Envelope
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != hub.TypeResponse {
		t.Fatalf("ack type = %q, want response", ack.Type)
	}

	if _, err := env.hub.Publish(hub.ChannelEnergyData, hub.NewEnvelope(hub.TypeData, hub.ChannelEnergyData, map[string]any{"kw": 3.2})); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var data hub.Envelope
	if err := conn.ReadJSON(&data); err != nil {
		t.Fatalf("read data: %v", err)
	}
	if data.Type != hub.TypeData || data.Channel != hub.ChannelEnergyData {
		t.Errorf("data = %+v", data)
	}
}

func TestWebSocket_InvalidToken(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial with bogus token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}
