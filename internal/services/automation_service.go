package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dealflow/internal/metrics"
	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Trigger types fired by the CRUD layer.
const (
	TriggerContactCreated          = "contact_created"
	TriggerDealCreated             = "deal_created"
	TriggerDealStageChange         = "deal_stage_change"
	TriggerDealProbabilityThreshold = "deal_probability_threshold"
)

// Action types the executor knows how to run.
const (
	ActionCreateNotification = "create_notification"
	ActionCreateActivity     = "create_activity"
)

// AutomationService evaluates automation rules against triggering entities and
// executes their side effects. Misconfigured rules are absorbed as no-ops;
// persistence failures propagate to the caller.
type AutomationService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	hub       *NotificationHub
	executors map[string]actionFunc
}

type actionFunc func(ctx context.Context, cfg map[string]interface{}, entity models.Fielded, actingUserID string) error

func NewAutomationService(db *gorm.DB, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	s := &AutomationService{db: db, logger: logger}
	// 动作分发表：未注册的 action_type 静默忽略
	s.executors = map[string]actionFunc{
		ActionCreateNotification: s.execCreateNotification,
		ActionCreateActivity:     s.execCreateActivity,
	}
	return s
}

// SetNotificationHub attaches the realtime hub; created notifications are
// pushed to connected clients after commit.
func (s *AutomationService) SetNotificationHub(hub *NotificationHub) {
	s.hub = hub
}

// EvaluateRules runs every enabled rule for the trigger type against the
// entity, in insertion order. The first action error stops the pass; effects
// of earlier rules stay committed.
func (s *AutomationService) EvaluateRules(ctx context.Context, triggerType string, entity models.Fielded, actingUserID string) error {
	start := time.Now()
	defer func() { metrics.ObserveAutomationPass(triggerType, time.Since(start)) }()

	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("trigger_type = ? AND enabled = ?", triggerType, true).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return fmt.Errorf("load automation rules: %w", err)
	}

	for _, rule := range rules {
		metrics.IncRuleEvaluated(triggerType)
		if !s.ruleMatches(rule, entity) {
			continue
		}
		metrics.IncRuleMatched(triggerType)
		s.logger.Infof("automation: rule %q matched trigger %s", rule.Name, triggerType)

		if err := s.executeAction(ctx, rule, entity, actingUserID); err != nil {
			metrics.IncActionExecuted(rule.ActionType, "failed")
			s.recordRun(ctx, rule.ID, entity, "failed", err.Error())
			return fmt.Errorf("rule %q action %s: %w", rule.Name, rule.ActionType, err)
		}
		metrics.IncActionExecuted(rule.ActionType, "executed")
		s.recordRun(ctx, rule.ID, entity, "executed", "")
	}
	return nil
}

// ruleMatches applies the rule's conjunctive condition map. Attributes the
// entity does not expose are skipped; an empty condition always matches.
func (s *AutomationService) ruleMatches(rule models.AutomationRule, entity models.Fielded) bool {
	cond := map[string]interface{}{}
	if strings.TrimSpace(rule.Condition) != "" {
		if err := json.Unmarshal([]byte(rule.Condition), &cond); err != nil {
			s.logger.Warnf("automation: invalid condition for rule %q: %v", rule.Name, err)
			return false
		}
	}

	for key, expected := range cond {
		if key == "probability_gte" {
			threshold, ok := toFloat(expected)
			if !ok {
				s.logger.Warnf("automation: rule %q has non-numeric probability_gte %v", rule.Name, expected)
				return false
			}
			prob := 0.0
			if v, present := entity.GetAttribute("probability"); present && v != nil {
				if f, numeric := toFloat(v); numeric {
					prob = f
				}
			}
			if prob < threshold {
				return false
			}
			continue
		}

		actual, present := entity.GetAttribute(key)
		if !present {
			// 实体没有该属性：该键不构成约束
			continue
		}
		if fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected) {
			return false
		}
	}
	return true
}

// executeAction dispatches through the action table. Unknown action types are
// ignored without error.
func (s *AutomationService) executeAction(ctx context.Context, rule models.AutomationRule, entity models.Fielded, actingUserID string) error {
	exec, ok := s.executors[rule.ActionType]
	if !ok {
		s.logger.Debugf("automation: rule %q has unknown action type %q, skipping", rule.Name, rule.ActionType)
		return nil
	}

	cfg := map[string]interface{}{}
	if strings.TrimSpace(rule.ActionConfig) != "" {
		if err := json.Unmarshal([]byte(rule.ActionConfig), &cfg); err != nil {
			s.logger.Warnf("automation: invalid action config for rule %q: %v", rule.Name, err)
			return nil
		}
	}
	return exec(ctx, cfg, entity, actingUserID)
}

func (s *AutomationService) execCreateNotification(ctx context.Context, cfg map[string]interface{}, entity models.Fielded, actingUserID string) error {
	message := "Automation Alert"
	if v, ok := cfg["message"]; ok && v != nil {
		message = fmt.Sprintf("%v", v)
	}
	n := &models.Notification{
		UserID:    actingUserID,
		Title:     "Automation Rule",
		Message:   message,
		Type:      "system",
		Read:      false,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if s.hub != nil {
		s.hub.PublishNotification(n)
	}
	return nil
}

func (s *AutomationService) execCreateActivity(ctx context.Context, cfg map[string]interface{}, entity models.Fielded, actingUserID string) error {
	contactID := resolveEntityID(entity, "contact_id", models.EntityKindContact)
	if contactID == 0 {
		// 无法确定联系人时静默跳过
		s.logger.Debugf("automation: create_activity skipped, no contact resolvable for %s entity", entity.Kind())
		return nil
	}

	var dealID *uint
	if id := resolveEntityID(entity, "deal_id", models.EntityKindDeal); id != 0 {
		dealID = &id
	}

	days := 0
	if v, ok := cfg["due_in_days"]; ok && v != nil {
		parsed, err := toInt(v)
		if err != nil {
			return fmt.Errorf("invalid due_in_days %v: %w", v, err)
		}
		days = parsed
	}
	due := time.Now().AddDate(0, 0, days)

	activity := &models.Activity{
		ContactID:   contactID,
		DealID:      dealID,
		Type:        configString(cfg, "type", "task"),
		Subject:     configString(cfg, "subject", "Automated Task"),
		Description: configString(cfg, "description", "Created by automation rule"),
		Date:        due,
		Completed:   false,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// resolveEntityID prefers the named attribute, falling back to the entity's
// own id when the entity is itself a record of the wanted kind.
func resolveEntityID(entity models.Fielded, attr string, kind models.EntityKind) uint {
	if v, ok := entity.GetAttribute(attr); ok && v != nil {
		if id := toUint(v); id != 0 {
			return id
		}
	}
	if entity.Kind() == kind {
		if v, ok := entity.GetAttribute("id"); ok {
			return toUint(v)
		}
	}
	return 0
}

func (s *AutomationService) recordRun(ctx context.Context, ruleID uint, entity models.Fielded, status, message string) {
	var entityID uint
	if v, ok := entity.GetAttribute("id"); ok {
		entityID = toUint(v)
	}
	run := &models.AutomationRun{
		RuleID:    ruleID,
		EntityID:  entityID,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		s.logger.Warnf("automation: record run failed: %v", err)
	}
}

func configString(cfg map[string]interface{}, key, fallback string) string {
	if v, ok := cfg[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return fallback
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// toInt mirrors a strict integer cast: numeric strings convert, anything
// else is an error.
func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case float32:
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}

func toUint(v interface{}) uint {
	switch t := v.(type) {
	case uint:
		return t
	case uint64:
		return uint(t)
	case int:
		if t > 0 {
			return uint(t)
		}
	case int64:
		if t > 0 {
			return uint(t)
		}
	case float64:
		if t > 0 {
			return uint(t)
		}
	case string:
		if n, err := strconv.ParseUint(strings.TrimSpace(t), 10, 64); err == nil {
			return uint(n)
		}
	}
	return 0
}
