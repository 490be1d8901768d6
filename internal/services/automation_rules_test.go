package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
)

func TestCreateRule_Validation(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewAutomationService(db, logrus.New())

	tests := []struct {
		name    string
		req     *AutomationRuleRequest
		wantErr string
	}{
		{
			name: "unsupported trigger",
			req: &AutomationRuleRequest{
				Name: "x", TriggerType: "ticket_created", ActionType: ActionCreateNotification,
			},
			wantErr: "unsupported trigger type",
		},
		{
			name: "unsupported action",
			req: &AutomationRuleRequest{
				Name: "x", TriggerType: TriggerDealCreated, ActionType: "send_carrier_pigeon",
			},
			wantErr: "unsupported action type",
		},
		{
			name: "valid",
			req: &AutomationRuleRequest{
				Name: "ok", TriggerType: TriggerDealCreated, ActionType: ActionCreateNotification,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := svc.CreateRule(context.Background(), tt.req)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateRule: %v", err)
			}
			if rule.ID == 0 {
				t.Error("expected persisted rule id")
			}
			if !rule.Enabled {
				t.Error("enabled should default to true")
			}
		})
	}
}

func TestCreateRule_NormalizesThresholdAndDefaults(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewAutomationService(db, logrus.New())

	rule, err := svc.CreateRule(context.Background(), &AutomationRuleRequest{
		Name:        "hot deals",
		TriggerType: TriggerDealProbabilityThreshold,
		Condition:   map[string]interface{}{"probability_gte": "85.5"},
		ActionType:  ActionCreateActivity,
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	// 阈值转成整数存储
	var cond map[string]interface{}
	if err := json.Unmarshal([]byte(rule.Condition), &cond); err != nil {
		t.Fatalf("condition json: %v", err)
	}
	if got, ok := toFloat(cond["probability_gte"]); !ok || got != 85 {
		t.Errorf("probability_gte = %v, want 85", cond["probability_gte"])
	}

	// create_activity 补默认动作参数
	var cfg map[string]interface{}
	if err := json.Unmarshal([]byte(rule.ActionConfig), &cfg); err != nil {
		t.Fatalf("action config json: %v", err)
	}
	if cfg["type"] != "task" {
		t.Errorf("type = %v, want task", cfg["type"])
	}
	if v, _ := toFloat(cfg["due_in_days"]); v != 3 {
		t.Errorf("due_in_days = %v, want 3", cfg["due_in_days"])
	}
	if cfg["description"] == nil || cfg["description"] == "" {
		t.Error("expected default description")
	}
}

func TestCreateRule_KeepsExplicitActionConfig(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewAutomationService(db, logrus.New())

	rule, err := svc.CreateRule(context.Background(), &AutomationRuleRequest{
		Name:         "custom follow-up",
		TriggerType:  TriggerDealStageChange,
		ActionType:   ActionCreateActivity,
		ActionConfig: map[string]interface{}{"type": "meeting", "due_in_days": 7},
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	var cfg map[string]interface{}
	_ = json.Unmarshal([]byte(rule.ActionConfig), &cfg)
	if cfg["type"] != "meeting" {
		t.Errorf("type = %v, want meeting", cfg["type"])
	}
	if v, _ := toFloat(cfg["due_in_days"]); v != 7 {
		t.Errorf("due_in_days = %v, want 7", cfg["due_in_days"])
	}
}

func TestUpdateRule_PartialAndValidation(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewAutomationService(db, logrus.New())
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, &AutomationRuleRequest{
		Name: "orig", TriggerType: TriggerDealCreated, ActionType: ActionCreateNotification,
		ActionConfig: map[string]interface{}{"message": "hi"},
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	name := "renamed"
	updated, err := svc.UpdateRule(ctx, rule.ID, &AutomationRuleUpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("name = %q", updated.Name)
	}
	if updated.TriggerType != TriggerDealCreated {
		t.Errorf("trigger unchanged expected, got %q", updated.TriggerType)
	}

	bad := "no_such_trigger"
	if _, err := svc.UpdateRule(ctx, rule.ID, &AutomationRuleUpdateRequest{TriggerType: &bad}); err == nil {
		t.Fatal("expected unsupported trigger error")
	}

	if _, err := svc.UpdateRule(ctx, 9999, &AutomationRuleUpdateRequest{Name: &name}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestToggleRule(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewAutomationService(db, logrus.New())
	ctx := context.Background()

	rule, _ := svc.CreateRule(ctx, &AutomationRuleRequest{
		Name: "t", TriggerType: TriggerContactCreated, ActionType: ActionCreateNotification,
	})

	toggled, err := svc.ToggleRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("ToggleRule: %v", err)
	}
	if toggled.Enabled {
		t.Error("expected disabled after first toggle")
	}

	toggled, err = svc.ToggleRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("ToggleRule: %v", err)
	}
	if !toggled.Enabled {
		t.Error("expected enabled after second toggle")
	}
}

func TestDeleteRule_NotFound(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewAutomationService(db, logrus.New())

	if err := svc.DeleteRule(context.Background(), 42); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestListRules_Filters(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewAutomationService(db, logrus.New())
	ctx := context.Background()

	off := false
	_, _ = svc.CreateRule(ctx, &AutomationRuleRequest{
		Name: "a", TriggerType: TriggerContactCreated, ActionType: ActionCreateNotification,
	})
	_, _ = svc.CreateRule(ctx, &AutomationRuleRequest{
		Name: "b", TriggerType: TriggerDealCreated, ActionType: ActionCreateNotification, Enabled: &off,
	})

	all, err := svc.ListRules(ctx, nil, "", 0)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(all))
	}

	on := true
	enabledOnly, err := svc.ListRules(ctx, &on, "", 0)
	if err != nil {
		t.Fatalf("ListRules enabled: %v", err)
	}
	if len(enabledOnly) != 1 || enabledOnly[0].Name != "a" {
		t.Fatalf("enabled filter mismatch: %+v", enabledOnly)
	}

	byTrigger, err := svc.ListRules(ctx, nil, TriggerDealCreated, 0)
	if err != nil {
		t.Fatalf("ListRules trigger: %v", err)
	}
	if len(byTrigger) != 1 || byTrigger[0].Name != "b" {
		t.Fatalf("trigger filter mismatch: %+v", byTrigger)
	}
}

func TestListRuns_FilterByRule(t *testing.T) {
	svc, db := newAutomationTestService(t)
	ctx := context.Background()

	r1 := seedRule(t, db, models.AutomationRule{
		Name: "r1", TriggerType: TriggerContactCreated, Condition: `{}`,
		ActionType: ActionCreateNotification, ActionConfig: `{"message":"x"}`, Enabled: true,
	})

	contact := &models.Contact{ID: 1, UserID: "u1", Name: "Ada", Email: "a@example.com"}
	_ = svc.EvaluateRules(ctx, TriggerContactCreated, contact, "u1")
	_ = svc.EvaluateRules(ctx, TriggerContactCreated, contact, "u1")

	runs, err := svc.ListRuns(ctx, r1.ID, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	for _, run := range runs {
		if run.RuleID != r1.ID || run.Status != "executed" {
			t.Errorf("unexpected run %+v", run)
		}
	}

	none, err := svc.ListRuns(ctx, 999, 0)
	if err != nil {
		t.Fatalf("ListRuns other: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no runs for other rule, got %d", len(none))
	}
}
