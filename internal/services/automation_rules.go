package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealflow/internal/models"

	"gorm.io/gorm"
)

// AutomationRuleRequest carries rule create/update payloads.
type AutomationRuleRequest struct {
	Name         string                 `json:"name" binding:"required"`
	TriggerType  string                 `json:"trigger_type" binding:"required"`
	Condition    map[string]interface{} `json:"condition"`
	ActionType   string                 `json:"action_type" binding:"required"`
	ActionConfig map[string]interface{} `json:"action_config"`
	Enabled      *bool                  `json:"enabled"`
}

// AutomationRuleUpdateRequest carries partial updates; nil fields are left
// untouched.
type AutomationRuleUpdateRequest struct {
	Name         *string                 `json:"name"`
	TriggerType  *string                 `json:"trigger_type"`
	Condition    *map[string]interface{} `json:"condition"`
	ActionType   *string                 `json:"action_type"`
	ActionConfig *map[string]interface{} `json:"action_config"`
	Enabled      *bool                   `json:"enabled"`
}

// ListRules returns rules newest first, optionally filtered by enabled state
// and trigger type.
func (s *AutomationService) ListRules(ctx context.Context, enabled *bool, triggerType string, limit int) ([]models.AutomationRule, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&models.AutomationRule{})
	if enabled != nil {
		query = query.Where("enabled = ?", *enabled)
	}
	if triggerType != "" {
		query = query.Where("trigger_type = ?", triggerType)
	}
	var rules []models.AutomationRule
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list automation rules: %w", err)
	}
	return rules, nil
}

func (s *AutomationService) GetRule(ctx context.Context, id uint) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rule not found")
		}
		return nil, fmt.Errorf("get automation rule: %w", err)
	}
	return &rule, nil
}

// CreateRule validates and normalizes the rule before persisting it.
// probability_gte thresholds are coerced to integers when possible, and
// create_activity configs receive the standard follow-up defaults.
func (s *AutomationService) CreateRule(ctx context.Context, req *AutomationRuleRequest) (*models.AutomationRule, error) {
	if !isSupportedTrigger(req.TriggerType) {
		return nil, fmt.Errorf("unsupported trigger type: %s", req.TriggerType)
	}
	if !isSupportedAction(req.ActionType) {
		return nil, fmt.Errorf("unsupported action type: %s", req.ActionType)
	}

	condition := normalizeCondition(req.Condition)
	actionConfig := normalizeActionConfig(req.ActionType, req.ActionConfig)

	condJSON, err := json.Marshal(condition)
	if err != nil {
		return nil, fmt.Errorf("encode condition: %w", err)
	}
	cfgJSON, err := json.Marshal(actionConfig)
	if err != nil {
		return nil, fmt.Errorf("encode action config: %w", err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := &models.AutomationRule{
		Name:         req.Name,
		TriggerType:  req.TriggerType,
		Condition:    string(condJSON),
		ActionType:   req.ActionType,
		ActionConfig: string(cfgJSON),
		Enabled:      enabled,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("create automation rule: %w", err)
	}
	s.logger.Infof("automation: created rule %q (%s -> %s)", rule.Name, rule.TriggerType, rule.ActionType)
	return rule, nil
}

func (s *AutomationService) UpdateRule(ctx context.Context, id uint, req *AutomationRuleUpdateRequest) (*models.AutomationRule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.TriggerType != nil {
		if !isSupportedTrigger(*req.TriggerType) {
			return nil, fmt.Errorf("unsupported trigger type: %s", *req.TriggerType)
		}
		updates["trigger_type"] = *req.TriggerType
	}
	if req.ActionType != nil {
		if !isSupportedAction(*req.ActionType) {
			return nil, fmt.Errorf("unsupported action type: %s", *req.ActionType)
		}
		updates["action_type"] = *req.ActionType
	}
	if req.Condition != nil {
		condJSON, err := json.Marshal(normalizeCondition(*req.Condition))
		if err != nil {
			return nil, fmt.Errorf("encode condition: %w", err)
		}
		updates["condition"] = string(condJSON)
	}
	if req.ActionConfig != nil {
		actionType := rule.ActionType
		if req.ActionType != nil {
			actionType = *req.ActionType
		}
		cfgJSON, err := json.Marshal(normalizeActionConfig(actionType, *req.ActionConfig))
		if err != nil {
			return nil, fmt.Errorf("encode action config: %w", err)
		}
		updates["action_config"] = string(cfgJSON)
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}

	if err := s.db.WithContext(ctx).Model(rule).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update automation rule: %w", err)
	}
	return s.GetRule(ctx, id)
}

// ToggleRule flips the enabled flag and returns the new state.
func (s *AutomationService) ToggleRule(ctx context.Context, id uint) (*models.AutomationRule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(rule).
		Updates(map[string]interface{}{"enabled": !rule.Enabled, "updated_at": time.Now()}).Error; err != nil {
		return nil, fmt.Errorf("toggle automation rule: %w", err)
	}
	rule.Enabled = !rule.Enabled
	return rule, nil
}

func (s *AutomationService) DeleteRule(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.AutomationRule{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete automation rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

// ListRuns returns the most recent execution records, newest first.
func (s *AutomationService) ListRuns(ctx context.Context, ruleID uint, limit int) ([]models.AutomationRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&models.AutomationRun{})
	if ruleID != 0 {
		query = query.Where("rule_id = ?", ruleID)
	}
	var runs []models.AutomationRun
	if err := query.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list automation runs: %w", err)
	}
	return runs, nil
}

// normalizeCondition coerces probability_gte to an integer threshold when the
// provided value converts cleanly; unconvertible values are stored as-is and
// fail the rule at evaluation time.
func normalizeCondition(cond map[string]interface{}) map[string]interface{} {
	if cond == nil {
		return map[string]interface{}{}
	}
	if v, ok := cond["probability_gte"]; ok {
		if f, numeric := toFloat(v); numeric {
			cond["probability_gte"] = int(f)
		}
	}
	return cond
}

// normalizeActionConfig fills the follow-up defaults for create_activity
// rules so the rendered rule is explicit about what it will do.
func normalizeActionConfig(actionType string, cfg map[string]interface{}) map[string]interface{} {
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	if actionType != ActionCreateActivity {
		return cfg
	}
	if _, ok := cfg["type"]; !ok {
		cfg["type"] = "task"
	}
	if _, ok := cfg["due_in_days"]; !ok {
		cfg["due_in_days"] = 3
	}
	if _, ok := cfg["description"]; !ok {
		cfg["description"] = "Auto-generated via automation rule"
	}
	return cfg
}

func isSupportedTrigger(trigger string) bool {
	switch trigger {
	case TriggerContactCreated, TriggerDealCreated, TriggerDealStageChange, TriggerDealProbabilityThreshold:
		return true
	}
	return false
}

func isSupportedAction(action string) bool {
	switch action {
	case ActionCreateNotification, ActionCreateActivity:
		return true
	}
	return false
}
