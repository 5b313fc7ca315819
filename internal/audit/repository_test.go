package audit

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/testutil"
)

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testutil.OpenDB(t).DB)
	ctx := context.Background()

	entries := []*AuditLog{
		{Action: ActionAuthFailed, EntityType: EntityConnection, EntityID: "conn-1", Source: "hub"},
		{Action: ActionSubscribeDenied, EntityType: EntityConnection, EntityID: "conn-2", UserID: "u1", Source: "hub",
			Details: map[string]any{"channel": "ADMIN_PANEL"}},
		{Action: ActionRuleCreated, EntityType: EntityRule, EntityID: "rule-1", UserID: "admin", Source: "api"},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Fatalf("Create() did not populate ID/CreatedAt: %+v", e)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"by action", Filter{Action: ActionSubscribeDenied}, 1},
		{"by entity type", Filter{EntityType: EntityConnection}, 2},
		{"by entity id", Filter{EntityID: "rule-1"}, 1},
		{"by user", Filter{UserID: "u1"}, 1},
		{"since future", Filter{Since: time.Now().Add(time.Hour)}, 0},
		{"limit", Filter{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(res.Logs) != tt.want {
				t.Errorf("List() returned %d logs, want %d", len(res.Logs), tt.want)
			}
		})
	}

	res, err := repo.List(ctx, Filter{Action: ActionSubscribeDenied})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := res.Logs[0]
	if got.UserID != "u1" || got.Details["channel"] != "ADMIN_PANEL" {
		t.Errorf("round-tripped entry = %+v", got)
	}
	if res.Total != 1 || res.Limit != 50 {
		t.Errorf("Total = %d, Limit = %d; want 1, 50", res.Total, res.Limit)
	}
}

func TestListClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(testutil.OpenDB(t).DB)
	res, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != 200 || res.Offset != 0 || len(res.Logs) != 0 {
		t.Errorf("List() = %+v", res)
	}
}
